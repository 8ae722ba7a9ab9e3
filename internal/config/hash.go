package config

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
)

// hashPrefix is accepted on expected hashes so values copied from
// `config check` output or deploy manifests verify either way.
const hashPrefix = "blake3:"

// ResolvePath returns the config file Load would read for configPath.
func ResolvePath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("resolve config path %q: %w", configPath, err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}
	return absPath, nil
}

// ComputeBlake3Hash returns the hex BLAKE3-256 digest of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", filePath, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyFileHash checks a file against an expected BLAKE3 digest, with or
// without the "blake3:" prefix.
func VerifyFileHash(filePath, expectedHash string) error {
	want := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(expectedHash)), hashPrefix)
	got, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s", filepath.Base(filePath), want, got)
	}
	return nil
}

// ShortHash abbreviates a digest for log lines.
func ShortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}
