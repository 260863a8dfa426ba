//go:build windows

package filesystem

import (
	"syscall"

	"github.com/pkg/sftp"
	"golang.org/x/sys/windows"
)

// StatFS returns volume statistics for the filesystem holding path.
func (l *LocalFS) StatFS(path string) (*sftp.StatVFS, error) {
	name, err := l.localPath(path)
	if err != nil {
		return nil, err
	}
	drive, err := syscall.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}
	var freeBytesAvailable, totalNumberOfBytes, totalNumberOfFreeBytes uint64
	err = windows.GetDiskFreeSpaceEx(drive, &freeBytesAvailable, &totalNumberOfBytes, &totalNumberOfFreeBytes)
	if err != nil {
		return nil, err
	}

	// Bytes per sector and sectors per cluster are not available from
	// this call; assume a 4K block size.
	const bsize = 4096
	return &sftp.StatVFS{
		Bsize:   bsize,
		Frsize:  bsize,
		Blocks:  totalNumberOfBytes / bsize,
		Bfree:   totalNumberOfFreeBytes / bsize,
		Bavail:  freeBytesAvailable / bsize,
		Namemax: 255,
	}, nil
}
