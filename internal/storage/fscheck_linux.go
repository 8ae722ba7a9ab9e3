//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

// From statfs(2) and the vendor headers for the cluster filesystems.
var linuxFilesystemMagic = map[uint64]string{
	0x6969:     "nfs",
	0xFF534D42: "cifs",
	0x517B:     "smbfs",
	0xFE534D42: "smb2",
	0x0BD00BD0: "lustre",
	0x47504653: "gpfs",
	0x19830326: "beegfs",
	0x00C36400: "ceph",
}

func detectFilesystemType(path string) (string, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}
	if name, ok := linuxFilesystemMagic[uint64(stat.Type)]; ok {
		return name, nil
	}
	return fmt.Sprintf("0x%x", uint64(stat.Type)), nil
}
