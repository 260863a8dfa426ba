package ftp

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"
)

// ErrPathEscapesRoot is reported when a client path, resolved against
// the working directory, would climb above the authorized root.
var ErrPathEscapesRoot = errors.New("path escapes the authorized root")

// resolvePath resolves a client-supplied path against the session's
// working directory into a clean, absolute virtual path confined to the
// session root (the user's home directory). Traversal attempts (any
// prefix of the path climbing above the root, such as "../../etc") are
// rejected rather than clamped.
func (s *Session) resolvePath(arg string) (string, error) {
	p := strings.TrimSpace(arg)
	if p == "" {
		return s.workingDir, nil
	}
	if !path.IsAbs(p) {
		p = s.workingDir + "/" + p
	}
	depth := 0
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return "", ErrPathEscapesRoot
			}
		default:
			depth++
		}
	}
	cleaned := path.Clean(p)
	if root := s.root; root != "" && root != "/" {
		if cleaned != root && !strings.HasPrefix(cleaned, root+"/") {
			return "", ErrPathEscapesRoot
		}
	}
	return cleaned, nil
}

// unixListLine renders one LIST line in the ls -l shape FTP clients parse.
func unixListLine(info fs.FileInfo) string {
	return fmt.Sprintf("%s %3d %-8s %-8s %12d %s %s",
		info.Mode().String(), 1, "owner", "group",
		info.Size(), lsTime(info.ModTime()), info.Name())
}

// lsTime formats a modification time the way ls does: recent files get
// the clock, older ones the year.
func lsTime(t time.Time) string {
	if time.Since(t) > 6*30*24*time.Hour || time.Until(t) > time.Hour {
		return t.Format("Jan _2  2006")
	}
	return t.Format("Jan _2 15:04")
}
