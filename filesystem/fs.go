// Package filesystem defines the narrow capability interface the file
// servers use to touch storage, and a local-disk implementation confined
// beneath a root directory.
package filesystem

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
)

// FS is the filesystem interface the FTP server drives. Every path is
// virtual, absolute, and scoped beneath the implementation's root; an
// implementation must reject paths that escape it.
type FS interface {
	// RootDir returns the virtual root directory of the file system.
	RootDir() string
	// CheckDir checks that the given directory exists.
	CheckDir(dirName string) error
	// Dir returns the entries of the given directory.
	Dir(dirName string) ([]os.FileInfo, error)
	// MakeDir creates a new directory with the given name.
	MakeDir(dirName string) error
	// RemoveDir removes an empty directory.
	RemoveDir(dirName string) error
	// ReadFile copies the file into w and returns the byte count.
	ReadFile(fileName string, w io.Writer) (int64, error)
	// WriteFile stores the data from r into fileName.
	// transferType is "I" for binary or "A" for ASCII with line-ending
	// normalization; appendOnly appends instead of truncating.
	WriteFile(fileName string, r io.Reader, transferType string, appendOnly bool) error
	// Remove removes a file.
	Remove(fileName string) error
	// Rename renames or moves a file or directory.
	Rename(oldName, newName string) error
	// Stat returns an MLST-style fact line and the file info.
	Stat(fileName string) (string, fs.FileInfo, error)
	// Lstat is Stat without following symlinks.
	Lstat(fileName string) (string, fs.FileInfo, error)
	// ModifyTime sets the modification time from a YYYYMMDDHHMMSS stamp.
	ModifyTime(fileName string, newTime string) error
	// SetStat changes the file permission bits.
	SetStat(fileName string, newPermissions uint32) error
	// Link creates a hard link pointing to a file.
	Link(fileName string, target string) error
	// Symlink creates a symbolic link pointing to a file or directory.
	Symlink(fileName string, target string) error
}

// FSWithReadWriteAt extends FS with random-access file handles and
// volume statistics, which the SFTP request server needs.
type FSWithReadWriteAt interface {
	FS
	// FileRead opens the file for reading with the given flags.
	FileRead(fileName string, flag int) (*os.File, error)
	// FileWrite opens the file for writing with the given flags.
	FileWrite(fileName string, flag int) (*os.File, error)
	// StatFS returns volume statistics for the filesystem holding path.
	StatFS(path string) (*sftp.StatVFS, error)
}

// ErrPathOutsideRoot is returned for any path that resolves above the
// virtual root.
var ErrPathOutsideRoot = errors.New("access denied: path is outside the root directory")

// Ensure that LocalFS implements the interfaces.
var _ FSWithReadWriteAt = &LocalFS{}

// LocalFS serves a local directory as the virtual root "/".
type LocalFS struct {
	FS          fs.FS
	localDir    string // local directory backing the virtual root
	virtualRoot string // virtual root the clients see, normally "/"
}

// NewLocalFS returns a LocalFS rooted at localDir.
func NewLocalFS(localDir string) *LocalFS {
	return &LocalFS{
		localDir:    localDir,
		virtualRoot: "/",
		FS:          os.DirFS(localDir),
	}
}

// RootDir returns the virtual root directory of the file system.
func (l *LocalFS) RootDir() string {
	return l.virtualRoot
}

// GetFS returns the fs.FS backing the local filesystem.
func (l *LocalFS) GetFS() fs.FS {
	return l.FS
}

// securePath confines the given path beneath the virtual root and
// returns it cleaned. Escapes are rejected, never clamped, so the
// depth of every ".." is checked before cleaning can swallow it.
func (l *LocalFS) securePath(pathName string) (string, error) {
	depth := 0
	for _, segment := range strings.Split(pathName, "/") {
		switch segment {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return "", ErrPathOutsideRoot
			}
		default:
			depth++
		}
	}
	return path.Clean("/" + pathName), nil
}

// fsPath converts a virtual path into the relative form io/fs expects.
func (l *LocalFS) fsPath(pathName string) (string, error) {
	pathName, err := l.securePath(pathName)
	if err != nil {
		return "", err
	}
	pathName = strings.TrimPrefix(pathName, "/")
	if pathName == "" {
		pathName = "."
	}
	return pathName, nil
}

// localPath converts a virtual path into an absolute path on disk.
func (l *LocalFS) localPath(pathName string) (string, error) {
	pathName, err := l.securePath(pathName)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.localDir, pathName), nil
}

// CheckDir checks that the given directory exists.
func (l *LocalFS) CheckDir(dirName string) error {
	name, err := l.fsPath(dirName)
	if err != nil {
		return err
	}
	if _, err := fs.ReadDir(l.FS, name); err != nil {
		return fmt.Errorf("error checking directory: %w", err)
	}
	return nil
}

// Dir returns the entries of the given directory.
func (l *LocalFS) Dir(dirName string) ([]os.FileInfo, error) {
	name, err := l.fsPath(dirName)
	if err != nil {
		return nil, err
	}
	entries, err := fs.ReadDir(l.FS, name)
	if err != nil {
		return nil, fmt.Errorf("error reading directory: %w", err)
	}
	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("error reading directory entry: %w", err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// MakeDir creates a new directory with the given name.
func (l *LocalFS) MakeDir(dirName string) error {
	name, err := l.localPath(dirName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(name, 0777); err != nil {
		return fmt.Errorf("error creating directory: %w", err)
	}
	return nil
}

// RemoveDir removes an empty directory.
func (l *LocalFS) RemoveDir(dirName string) error {
	name, err := l.localPath(dirName)
	if err != nil {
		return err
	}
	info, err := os.Stat(name)
	if err != nil {
		return fmt.Errorf("error getting directory info: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dirName)
	}
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("error removing directory: %w", err)
	}
	return nil
}

// ReadFile copies the file into w and returns the byte count.
func (l *LocalFS) ReadFile(fileName string, w io.Writer) (int64, error) {
	name, err := l.fsPath(fileName)
	if err != nil {
		return 0, err
	}
	open, err := l.FS.Open(name)
	if err != nil {
		return 0, fmt.Errorf("error opening file: %w", err)
	}
	defer open.Close()
	n, err := io.Copy(w, open)
	if err != nil {
		return n, fmt.Errorf("error reading file: %w", err)
	}
	return n, nil
}

// WriteFile stores the data from r into fileName, honoring the transfer
// type and append flag.
func (l *LocalFS) WriteFile(fileName string, r io.Reader, transferType string, appendOnly bool) error {
	name, err := l.localPath(fileName)
	if err != nil {
		return err
	}
	access := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendOnly {
		access = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	file, err := os.OpenFile(name, access, 0666)
	if err != nil {
		return fmt.Errorf("creating file error: %w", err)
	}
	defer file.Close()

	switch transferType {
	case "I": // binary, byte-exact
		_, err = io.Copy(file, r)
	case "A": // ASCII, normalize line endings to the local convention
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if _, err = fmt.Fprintln(file, scanner.Text()); err != nil {
				break
			}
		}
		if err == nil {
			err = scanner.Err()
		}
	default:
		return fmt.Errorf("unsupported transfer type: %s, only type 'A' (text) or type 'I' (binary)", transferType)
	}
	if err != nil {
		return fmt.Errorf("writing file error: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing and saving file error: %w", err)
	}
	return nil
}

// Remove removes a file.
func (l *LocalFS) Remove(fileName string) error {
	name, err := l.localPath(fileName)
	if err != nil {
		return err
	}
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("error removing file: %w", err)
	}
	return nil
}

// Rename renames or moves a file or directory.
func (l *LocalFS) Rename(oldName, newName string) error {
	oldPath, err := l.localPath(oldName)
	if err != nil {
		return err
	}
	newPath, err := l.localPath(newName)
	if err != nil {
		return err
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("error renaming file: %w", err)
	}
	return nil
}

// ModifyTime sets the modification time from a YYYYMMDDHHMMSS stamp.
func (l *LocalFS) ModifyTime(fileName string, newTime string) error {
	name, err := l.localPath(fileName)
	if err != nil {
		return err
	}
	parsed, err := time.Parse("20060102150405", newTime)
	if err != nil {
		return fmt.Errorf("invalid time format got %q expected 'YYYYMMDDHHMMSS'", newTime)
	}
	if _, err := os.Stat(name); err != nil {
		return fmt.Errorf("error getting file info: %w", err)
	}
	if err := os.Chtimes(name, parsed, parsed); err != nil {
		return fmt.Errorf("error changing file modification time: %w", err)
	}
	return nil
}

// factLine renders the MLST-style fact line FTP clients parse.
func factLine(info fs.FileInfo) string {
	fileType := "file"
	if info.IsDir() {
		fileType = "dir"
	}
	return fmt.Sprintf("type=%s;size=%d;modify=%s;perm=%s; %s",
		fileType, info.Size(), info.ModTime().UTC().Format("20060102150405"),
		info.Mode().String(), info.Name())
}

// Stat returns an MLST-style fact line and the file info.
func (l *LocalFS) Stat(fileName string) (string, fs.FileInfo, error) {
	name, err := l.fsPath(fileName)
	if err != nil {
		return "", nil, err
	}
	info, err := fs.Stat(l.FS, name)
	if err != nil {
		return "", nil, fmt.Errorf("error getting file info: %w", err)
	}
	return factLine(info), info, nil
}

// Lstat is Stat without following symlinks.
func (l *LocalFS) Lstat(fileName string) (string, fs.FileInfo, error) {
	name, err := l.localPath(fileName)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Lstat(name)
	if err != nil {
		return "", nil, fmt.Errorf("error getting file info: %w", err)
	}
	return factLine(info), info, nil
}

// SetStat changes the file permission bits.
func (l *LocalFS) SetStat(fileName string, newPermissions uint32) error {
	name, err := l.localPath(fileName)
	if err != nil {
		return err
	}
	if newPermissions == 0 {
		return errors.New("invalid permissions")
	}
	if err := os.Chmod(name, os.FileMode(newPermissions)); err != nil {
		return fmt.Errorf("error changing file permissions: %w", err)
	}
	return nil
}

// Link creates a hard link pointing to a file.
func (l *LocalFS) Link(fileName string, target string) error {
	name, err := l.localPath(fileName)
	if err != nil {
		return fmt.Errorf("error cleaning filename path: %w", err)
	}
	targetPath, err := l.localPath(target)
	if err != nil {
		return fmt.Errorf("error cleaning target path: %w", err)
	}
	return os.Link(targetPath, name)
}

// Symlink creates a symbolic link pointing to a file or directory.
func (l *LocalFS) Symlink(fileName string, target string) error {
	name, err := l.localPath(fileName)
	if err != nil {
		return fmt.Errorf("error cleaning filename path: %w", err)
	}
	targetPath, err := l.localPath(target)
	if err != nil {
		return fmt.Errorf("error cleaning target path: %w", err)
	}
	return os.Symlink(targetPath, name)
}

// FileRead opens the file for reading with the given flags.
func (l *LocalFS) FileRead(fileName string, flag int) (*os.File, error) {
	name, err := l.localPath(fileName)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(name, flag, 0666)
	if err != nil {
		return nil, fmt.Errorf("opening file error: %w", err)
	}
	return file, nil
}

// FileWrite opens the file for writing with the given flags.
func (l *LocalFS) FileWrite(fileName string, flag int) (*os.File, error) {
	name, err := l.localPath(fileName)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(name, flag, 0666)
	if err != nil {
		return nil, fmt.Errorf("creating file error: %w", err)
	}
	return file, nil
}
