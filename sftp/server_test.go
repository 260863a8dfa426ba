package sftp

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/telebroad/ftpd/filesystem"
	"github.com/telebroad/ftpd/users"
)

// newTestServer starts an SFTP server on a loopback port over a fresh
// temp root.
func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	root := t.TempDir()

	u := users.NewLocalUsers()
	u.Add("admin", "secret")

	srv := NewServer("127.0.0.1:0", filesystem.NewLocalFS(root), u)
	require.NoError(t, srv.TryListenAndServe(time.Second))
	t.Cleanup(srv.Close)

	// the listener carries the port the kernel picked
	require.NotNil(t, srv.listener)
	srv.Addr = srv.listener.Addr().String()
	return srv, root
}

func dialClient(t *testing.T, srv *Server, user, pass string) (*sftp.Client, error) {
	t.Helper()
	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.Password(pass)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	}
	sshConn, err := ssh.Dial("tcp", srv.Addr, config)
	if err != nil {
		return nil, err
	}
	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return nil, err
	}
	t.Cleanup(func() {
		client.Close()
		sshConn.Close()
	})
	return client, nil
}

func TestPasswordAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("valid credentials", func(t *testing.T) {
		client, err := dialClient(t, srv, "admin", "secret")
		require.NoError(t, err)
		_, err = client.Getwd()
		assert.NoError(t, err)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := dialClient(t, srv, "admin", "wrong")
		assert.Error(t, err)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := dialClient(t, srv, "ghost", "secret")
		assert.Error(t, err)
	})
}

func TestFileRoundTrip(t *testing.T) {
	srv, root := newTestServer(t)
	client, err := dialClient(t, srv, "admin", "secret")
	require.NoError(t, err)

	payload := []byte("sftp payload \x00\x01\x02")
	w, err := client.Create("/data.bin")
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// the bytes landed beneath the local root
	onDisk, err := os.ReadFile(filepath.Join(root, "data.bin"))
	require.NoError(t, err)
	assert.Equal(t, payload, onDisk)

	r, err := client.Open("/data.bin")
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, payload, got)
}

func TestDirectoryOperations(t *testing.T) {
	srv, root := newTestServer(t)
	client, err := dialClient(t, srv, "admin", "secret")
	require.NoError(t, err)

	require.NoError(t, client.Mkdir("/inbox"))
	info, err := os.Stat(filepath.Join(root, "inbox"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	w, err := client.Create("/inbox/a.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	entries, err := client.ReadDir("/inbox")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name())

	require.NoError(t, client.Rename("/inbox/a.txt", "/inbox/b.txt"))
	_, err = os.Stat(filepath.Join(root, "inbox", "b.txt"))
	assert.NoError(t, err)

	require.NoError(t, client.Remove("/inbox/b.txt"))
	require.NoError(t, client.RemoveDirectory("/inbox"))
	_, err = os.Stat(filepath.Join(root, "inbox"))
	assert.True(t, os.IsNotExist(err))
}

func TestStatAndChmod(t *testing.T) {
	srv, root := newTestServer(t)
	client, err := dialClient(t, srv, "admin", "secret")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("12345"), 0644))

	info, err := client.Stat("/f.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	require.NoError(t, client.Chmod("/f.txt", 0600))
	onDisk, err := os.Stat(filepath.Join(root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), onDisk.Mode().Perm())
}

func TestTraversalConfined(t *testing.T) {
	srv, root := newTestServer(t)
	client, err := dialClient(t, srv, "admin", "secret")
	require.NoError(t, err)

	// the request server cleans dot segments, the filesystem rejects
	// whatever still escapes; either way nothing lands above the root
	if w, err := client.Create("/../escape.txt"); err == nil {
		w.Write([]byte("x"))
		w.Close()
	}
	_, statErr := os.Stat(filepath.Join(filepath.Dir(root), "escape.txt"))
	assert.True(t, os.IsNotExist(statErr))
}
