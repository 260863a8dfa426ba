package users

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalUsersFind(t *testing.T) {
	u := NewLocalUsers()
	u.Add("alice", "secret")

	t.Run("valid credentials", func(t *testing.T) {
		user, err := u.Find("alice", "secret", "192.168.1.5:50311")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
		assert.Equal(t, PermAll, user.Perms)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := u.Find("alice", "nope", "192.168.1.5:50311")
		assert.ErrorIs(t, err, ErrWrongPassword)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := u.Find("bob", "secret", "192.168.1.5:50311")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("empty username", func(t *testing.T) {
		_, err := u.Find("", "", "192.168.1.5:50311")
		assert.Error(t, err)
	})
}

func TestLocalUsersFindIPRestrictions(t *testing.T) {
	u := NewLocalUsers()
	user := u.Add("carol", "pw")
	require.NoError(t, user.AddIP("10.0.0.0/8"))
	require.NoError(t, user.AddIP("::1"))

	t.Run("inside prefix", func(t *testing.T) {
		_, err := u.Find("carol", "pw", "10.20.30.40:2121")
		assert.NoError(t, err)
	})

	t.Run("outside prefix", func(t *testing.T) {
		_, err := u.Find("carol", "pw", "8.8.8.8:2121")
		assert.ErrorIs(t, err, ErrIPNotAllowed)
	})

	t.Run("bare v6 address widened to /128", func(t *testing.T) {
		_, err := u.Find("carol", "pw", "[::1]:2121")
		assert.NoError(t, err)
	})

	t.Run("removed prefix no longer matches", func(t *testing.T) {
		user.RemoveIP("10.0.0.0/8")
		_, err := u.Find("carol", "pw", "10.20.30.40:2121")
		assert.ErrorIs(t, err, ErrIPNotAllowed)
	})
}

func TestAnonymousBypass(t *testing.T) {
	u := NewLocalUsers()

	t.Run("disabled by default", func(t *testing.T) {
		_, err := u.Find("anonymous", "guest@", "127.0.0.1:1000")
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	u.AllowAnonymous("/pub", "")

	t.Run("any password accepted", func(t *testing.T) {
		for _, password := range []string{"", "guest@", "whatever"} {
			user, err := u.Find("anonymous", password, "127.0.0.1:1000")
			require.NoError(t, err)
			assert.Equal(t, "/pub", user.HomeDir)
			assert.Equal(t, PermReadOnly, user.Perms)
		}
	})

	t.Run("ftp alias works case insensitively", func(t *testing.T) {
		_, err := u.Find("FTP", "x", "127.0.0.1:1000")
		assert.NoError(t, err)
	})

	t.Run("named users still need a password", func(t *testing.T) {
		u.Add("dave", "pw")
		_, err := u.Find("dave", "guessing", "127.0.0.1:1000")
		assert.ErrorIs(t, err, ErrWrongPassword)
	})
}

func TestUserCan(t *testing.T) {
	readOnly := &User{Perms: PermReadOnly}
	assert.True(t, readOnly.Can(PermList))
	assert.True(t, readOnly.Can(PermRead))
	assert.False(t, readOnly.Can(PermWrite))
	assert.False(t, readOnly.Can(PermDelete))

	full := &User{Perms: PermAll}
	for _, perm := range []byte{PermChangeDir, PermList, PermRead, PermAppend, PermWrite, PermDelete, PermRename, PermMakeDir} {
		assert.True(t, full.Can(perm))
	}

	var nobody *User
	assert.False(t, nobody.Can(PermRead))
}
