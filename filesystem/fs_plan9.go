package filesystem

import (
	"fmt"
	"runtime"
	"syscall"

	"github.com/pkg/sftp"
)

// StatFS returns volume statistics for the filesystem holding path.
func (l *LocalFS) StatFS(path string) (*sftp.StatVFS, error) {
	return nil, fmt.Errorf("%w unsupported OS: %s", syscall.EPLAN9, runtime.GOOS)
}
