package filesystem

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *LocalFS {
	t.Helper()
	return NewLocalFS(t.TempDir())
}

func TestSecurePath(t *testing.T) {
	l := newTestFS(t)

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "root", in: "/", want: "/"},
		{name: "plain file", in: "/foo.txt", want: "/foo.txt"},
		{name: "relative", in: "foo/bar", want: "/foo/bar"},
		{name: "dot segments collapse", in: "/a/./b/../c", want: "/a/c"},
		{name: "escape above root", in: "/../etc/passwd", wantErr: true},
		{name: "deep escape", in: "/a/../../etc", wantErr: true},
		{name: "relative escape", in: "../secret", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.securePath(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPathOutsideRoot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteFileBinary(t *testing.T) {
	l := newTestFS(t)
	payload := []byte("abc\r\ndef\x00\x01binary")

	require.NoError(t, l.WriteFile("/data.bin", bytes.NewReader(payload), "I", false))

	var buf bytes.Buffer
	n, err := l.ReadFile("/data.bin", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, buf.Bytes(), "binary transfer must be byte-exact")
}

func TestWriteFileASCII(t *testing.T) {
	l := newTestFS(t)

	require.NoError(t, l.WriteFile("/notes.txt", strings.NewReader("one\r\ntwo\r\nthree"), "A", false))

	var buf bytes.Buffer
	_, err := l.ReadFile("/notes.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", buf.String(), "CRLF input normalized to local line endings")
}

func TestWriteFileAppend(t *testing.T) {
	l := newTestFS(t)

	require.NoError(t, l.WriteFile("/log.txt", strings.NewReader("first"), "I", false))
	require.NoError(t, l.WriteFile("/log.txt", strings.NewReader("+second"), "I", true))

	var buf bytes.Buffer
	_, err := l.ReadFile("/log.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, "first+second", buf.String())

	// without append the file is truncated
	require.NoError(t, l.WriteFile("/log.txt", strings.NewReader("reset"), "I", false))
	buf.Reset()
	_, err = l.ReadFile("/log.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, "reset", buf.String())
}

func TestWriteFileRejectsUnknownType(t *testing.T) {
	l := newTestFS(t)
	err := l.WriteFile("/x", strings.NewReader("x"), "E", false)
	assert.Error(t, err)
}

func TestDirectoryLifecycle(t *testing.T) {
	l := newTestFS(t)

	require.NoError(t, l.MakeDir("/inbox"))
	require.NoError(t, l.CheckDir("/inbox"))
	require.NoError(t, l.WriteFile("/inbox/a.txt", strings.NewReader("a"), "I", false))

	infos, err := l.Dir("/inbox")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "a.txt", infos[0].Name())

	// non-empty directory cannot be removed
	assert.Error(t, l.RemoveDir("/inbox"))

	require.NoError(t, l.Remove("/inbox/a.txt"))
	require.NoError(t, l.RemoveDir("/inbox"))
	assert.Error(t, l.CheckDir("/inbox"))
}

func TestRename(t *testing.T) {
	l := newTestFS(t)
	require.NoError(t, l.WriteFile("/old.txt", strings.NewReader("body"), "I", false))
	require.NoError(t, l.MakeDir("/sub"))

	require.NoError(t, l.Rename("/old.txt", "/sub/new.txt"))

	_, _, err := l.Stat("/old.txt")
	assert.Error(t, err)
	var buf bytes.Buffer
	_, err = l.ReadFile("/sub/new.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, "body", buf.String())

	// neither endpoint may escape the root
	assert.ErrorIs(t, l.Rename("/sub/new.txt", "/../outside"), ErrPathOutsideRoot)
	assert.ErrorIs(t, l.Rename("/../outside", "/in"), ErrPathOutsideRoot)
}

func TestStatFactLine(t *testing.T) {
	l := newTestFS(t)
	require.NoError(t, l.WriteFile("/f.txt", strings.NewReader("12345"), "I", false))

	line, info, err := l.Stat("/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "f.txt", info.Name())
	assert.Contains(t, line, "type=file;")
	assert.Contains(t, line, "size=5;")
	assert.True(t, strings.HasSuffix(line, " f.txt"), "fact line ends with the file name: %q", line)

	require.NoError(t, l.MakeDir("/d"))
	line, _, err = l.Stat("/d")
	require.NoError(t, err)
	assert.Contains(t, line, "type=dir;")
}

func TestModifyTime(t *testing.T) {
	l := newTestFS(t)
	require.NoError(t, l.WriteFile("/f.txt", strings.NewReader("x"), "I", false))

	require.NoError(t, l.ModifyTime("/f.txt", "20240102150405"))
	_, info, err := l.Stat("/f.txt")
	require.NoError(t, err)
	want := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	assert.True(t, info.ModTime().UTC().Equal(want), "got %s", info.ModTime().UTC())

	assert.Error(t, l.ModifyTime("/f.txt", "not-a-stamp"))
	assert.Error(t, l.ModifyTime("/missing", "20240102150405"))
}

func TestTraversalNeverTouchesDisk(t *testing.T) {
	root := t.TempDir()
	parent := filepath.Dir(root)
	l := NewLocalFS(root)

	err := l.WriteFile("/../escaped.txt", strings.NewReader("x"), "I", false)
	assert.ErrorIs(t, err, ErrPathOutsideRoot)
	_, statErr := os.Stat(filepath.Join(parent, "escaped.txt"))
	assert.True(t, os.IsNotExist(statErr), "no file may appear above the root")

	assert.ErrorIs(t, l.MakeDir("/../../escaped-dir"), ErrPathOutsideRoot)
	assert.ErrorIs(t, l.Remove("/../escaped.txt"), ErrPathOutsideRoot)
	_, err = l.Dir("/..")
	assert.ErrorIs(t, err, ErrPathOutsideRoot)
}
