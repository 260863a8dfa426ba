package sftp

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/pkg/sftp"

	"github.com/telebroad/ftpd/filesystem"
)

// session serves the request side of one SFTP connection.
type session struct {
	fs     filesystem.FSWithReadWriteAt
	logger *slog.Logger
}

// newSessionHandlers wires one session into the four request callbacks
// the SFTP request server drives.
func newSessionHandlers(fs filesystem.FSWithReadWriteAt, logger *slog.Logger) sftp.Handlers {
	v := &session{fs: fs, logger: logger}
	return sftp.Handlers{
		FileGet:  v,
		FilePut:  v,
		FileCmd:  v,
		FileList: v,
	}
}

func (s *session) trace(request *sftp.Request) {
	s.logger.Debug("sftp request",
		"method", request.Method,
		"filepath", request.Filepath,
		"flags", request.Flags,
		"target", request.Target,
	)
}

func (s *session) Fileread(request *sftp.Request) (io.ReaderAt, error) {
	s.trace(request)
	file, err := s.fs.FileRead(request.Filepath, os.O_RDONLY)
	if err != nil {
		s.logger.Error("error opening file", "error", err)
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	return file, nil
}

func (s *session) Filewrite(request *sftp.Request) (io.WriterAt, error) {
	s.trace(request)
	file, err := s.fs.FileWrite(request.Filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		s.logger.Error("error opening file", "error", err)
		return nil, fmt.Errorf("error opening file: %w", err)
	}
	return file, nil
}

func (s *session) Filecmd(request *sftp.Request) error {
	s.trace(request)
	switch request.Method {
	case "Setstat", "chmod", "chown", "chgrp":
		return s.fs.SetStat(request.Filepath, uint32(request.Attributes().FileMode()))

	case "Rename":
		// SFTP-v2: it is an error if there already exists a file with
		// the name specified by newpath, unlike POSIX rename.
		if _, _, err := s.fs.Stat(request.Target); err == nil {
			return fs.ErrExist
		}
		return s.fs.Rename(request.Filepath, request.Target)

	case "Rmdir":
		return s.fs.RemoveDir(request.Filepath)

	case "Remove":
		// unlink semantics: files only, directories go through Rmdir.
		return s.fs.Remove(request.Filepath)

	case "Mkdir":
		return s.fs.MakeDir(request.Filepath)

	case "Link":
		return s.fs.Link(request.Filepath, request.Target)

	case "Symlink":
		// request.Filepath is the target, request.Target the link path.
		return s.fs.Symlink(request.Filepath, request.Target)
	}
	return errors.New("unsupported")
}

// StatVFS serves the statvfs@openssh.com extension.
func (s *session) StatVFS(request *sftp.Request) (*sftp.StatVFS, error) {
	s.trace(request)
	return s.fs.StatFS(request.Filepath)
}

// ListerAt adapts a FileInfo slice to the request server's pagination,
// modeled after strings.Reader's ReadAt.
type ListerAt []os.FileInfo

func (f ListerAt) ListAt(ls []os.FileInfo, offset int64) (int, error) {
	if offset >= int64(len(f)) {
		return 0, io.EOF
	}
	n := copy(ls, f[offset:])
	if n < len(ls) {
		return n, io.EOF
	}
	return n, nil
}

func (s *session) Filelist(request *sftp.Request) (sftp.ListerAt, error) {
	s.trace(request)

	switch request.Method {
	case "List":
		entries, err := s.fs.Dir(request.Filepath)
		if err != nil {
			return nil, fmt.Errorf("file list error: %w", err)
		}
		return ListerAt(entries), nil
	case "Stat":
		_, entry, err := s.fs.Stat(request.Filepath)
		if err != nil {
			return nil, fmt.Errorf("file stat error: %w", err)
		}
		return ListerAt{entry}, nil
	case "Lstat":
		_, entry, err := s.fs.Lstat(request.Filepath)
		if err != nil {
			return nil, fmt.Errorf("lstat error: %w", err)
		}
		return ListerAt{entry}, nil
	}
	return nil, errors.New("unsupported")
}
