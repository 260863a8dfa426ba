package filesystem

import (
	"fmt"

	"github.com/pkg/sftp"
	"golang.org/x/sys/unix"
)

// StatFS returns volume statistics for the filesystem holding path.
func (l *LocalFS) StatFS(path string) (*sftp.StatVFS, error) {
	name, err := l.localPath(path)
	if err != nil {
		return nil, err
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(name, &stat); err != nil {
		return nil, fmt.Errorf("error getting file system info: %w", err)
	}
	return &sftp.StatVFS{
		Bsize:  uint64(stat.Bsize),
		Frsize: uint64(stat.Bsize), // fragment size is a linux thing; use block size here
		Blocks: stat.Blocks,
		Bfree:  stat.Bfree,
		Bavail: stat.Bavail,
		Files:  stat.Files,
		Ffree:  stat.Ffree,
		Favail: stat.Ffree,
		Fsid:   uint64(stat.Fsid.Val[1])<<32 | uint64(stat.Fsid.Val[0]),
		Flag:   uint64(stat.Flags),
		// man 2 statfs shows: #define MAXPATHLEN 1024
		Namemax: 1024,
	}, nil
}
