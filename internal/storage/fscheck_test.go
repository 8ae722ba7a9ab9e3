package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
)

func TestCheckLocalFilesystem_AllowsLocalFS(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "state.db")
	err := checkLocalFilesystemWithDetector("state.path", dbPath, func(string) (string, error) {
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("expected local filesystem to pass, got: %v", err)
	}
}

func TestCheckLocalFilesystem_RejectsNetworkFS(t *testing.T) {
	t.Parallel()

	for _, fsType := range []string{"NFS", "lustre", "gpfs", "beegfs", "fuse.sshfs"} {
		t.Run(fsType, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "staging")
			err := checkLocalFilesystemWithDetector("staging.dir", dir, func(string) (string, error) {
				return fsType, nil
			})
			if err == nil {
				t.Fatal("expected network filesystem error")
			}
			for _, want := range []string{"staging.dir", strings.ToLower(fsType), "local scratch"} {
				if !strings.Contains(strings.ToLower(err.Error()), want) {
					t.Fatalf("expected error to contain %q, got %q", want, err)
				}
			}
		})
	}
}

func TestCheckLocalFilesystem_UsesNearestExistingPath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	var inspected string
	err := checkLocalFilesystemWithDetector("state.path", filepath.Join(root, "a", "b", "state.db"), func(p string) (string, error) {
		inspected = p
		return "ext4", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inspected != root {
		t.Fatalf("expected detector to inspect %q, got %q", root, inspected)
	}
}

func TestCheckLocalFilesystem_UnsupportedPlatformPasses(t *testing.T) {
	t.Parallel()

	err := checkLocalFilesystemWithDetector("state.path", t.TempDir(), func(string) (string, error) {
		return "", errUnsupportedPlatform
	})
	if err != nil {
		t.Fatalf("expected unsupported platform to pass, got %v", err)
	}
}

func TestCheckLocalFilesystem_DetectorError(t *testing.T) {
	t.Parallel()

	err := checkLocalFilesystemWithDetector("state.path", t.TempDir(), func(string) (string, error) {
		return "", fmt.Errorf("statfs failed")
	})
	if err == nil {
		t.Fatal("expected detector error to surface")
	}
}
