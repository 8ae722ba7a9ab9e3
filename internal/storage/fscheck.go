package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// networkFilesystems are rejected for state.path and staging.dir. The
// cluster filesystems are where sequencing runs usually land, so they are
// the likeliest misconfiguration.
var networkFilesystems = map[string]struct{}{
	"afpfs":       {},
	"cifs":        {},
	"nfs":         {},
	"smbfs":       {},
	"smb2":        {},
	"webdav":      {},
	"lustre":      {},
	"gpfs":        {},
	"beegfs":      {},
	"ceph":        {},
	"fuse.sshfs":  {},
	"fuse.s3fs":   {},
	"fuse.rclone": {},
}

// CheckLocalFilesystem reports an error when path (or its nearest existing
// parent) sits on a network filesystem. SQLite locking and the staging
// cleanup's rename/remove semantics both assume local disk. Platforms where
// detection is unsupported pass.
func CheckLocalFilesystem(setting, path string) error {
	return checkLocalFilesystemWithDetector(setting, path, detectFilesystemType)
}

func checkLocalFilesystemWithDetector(setting, path string, detector func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("%s is empty", setting)
	}

	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return fmt.Errorf("resolve %s %q: %w", setting, path, err)
	}

	fsType, err := detector(inspectPath)
	if errors.Is(err, errUnsupportedPlatform) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", inspectPath, err)
	}

	if isNetworkFilesystem(fsType) {
		return fmt.Errorf("%s %q is on network filesystem %q; use local scratch instead", setting, path, fsType)
	}
	return nil
}

var errUnsupportedPlatform = errors.New("filesystem detection is unsupported on this platform")

func nearestExistingPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	candidate := absPath
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}

		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", absPath)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	_, found := networkFilesystems[strings.TrimSpace(strings.ToLower(fsType))]
	return found
}
