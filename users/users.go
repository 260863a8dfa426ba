// Package users holds the authorizer the file servers validate
// credentials against. Anonymous access is a configuration of the
// authorizer, not a separate implementation.
package users

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
)

// Permission letters, following the pyftpdlib convention.
const (
	PermChangeDir byte = 'e' // change directory (CWD, CDUP)
	PermList      byte = 'l' // list files (LIST, NLST, MLSD)
	PermRead      byte = 'r' // retrieve files (RETR)
	PermAppend    byte = 'a' // append to files (APPE)
	PermWrite     byte = 'w' // store files (STOR)
	PermDelete    byte = 'd' // delete files and directories (DELE, RMD)
	PermRename    byte = 'f' // rename files (RNFR, RNTO)
	PermMakeDir   byte = 'm' // create directories (MKD)
)

// PermReadOnly is the default permission set for anonymous logins,
// PermAll the default for named users.
const (
	PermReadOnly = "elr"
	PermAll      = "elradfwm"
)

// anonymousNames are the usernames that trigger the anonymous bypass
// when it is enabled.
var anonymousNames = []string{"anonymous", "ftp"}

// IsAnonymous reports whether username is one of the anonymous login names.
func IsAnonymous(username string) bool {
	for _, name := range anonymousNames {
		if strings.EqualFold(username, name) {
			return true
		}
	}
	return false
}

// User is the credential the authorizer issues for a session. It is
// immutable for the session's lifetime once issued.
type User struct {
	Username string
	Password string
	HomeDir  string
	Perms    string
	IPs      map[string]netip.Prefix // allowed source prefixes; empty means any
}

// Can reports whether the user holds the given permission letter.
// A nil user holds no permissions.
func (u *User) Can(perm byte) bool {
	return u != nil && strings.IndexByte(u.Perms, perm) >= 0
}

// AddIP adds an allowed source prefix to the user. A bare address gets
// a /32 (or /128) prefix.
func (u *User) AddIP(ip string) error {
	prefix, err := parsePrefix(ip)
	if err != nil {
		return fmt.Errorf("error parsing IP: %w", err)
	}
	u.IPs[prefix.String()] = prefix
	return nil
}

// RemoveIP removes an allowed source prefix from the user.
func (u *User) RemoveIP(ip string) {
	if prefix, err := parsePrefix(ip); err == nil {
		delete(u.IPs, prefix.String())
	}
}

func parsePrefix(ip string) (netip.Prefix, error) {
	if !strings.Contains(ip, "/") {
		if strings.Contains(ip, ":") {
			ip += "/128"
		} else {
			ip += "/32"
		}
	}
	return netip.ParsePrefix(ip)
}

// allowedFrom reports whether addr falls in one of the user's allowed
// prefixes. Users with no prefixes configured accept any source.
func (u *User) allowedFrom(addr string) bool {
	if len(u.IPs) == 0 {
		return true
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	parsed, err := netip.ParseAddr(addr)
	if err != nil {
		return false
	}
	for _, prefix := range u.IPs {
		if prefix.Contains(parsed) {
			return true
		}
	}
	return false
}

// Users is the authorizer interface the servers depend on.
// Find validates a username/password pair arriving from remoteAddr and
// returns the credential for the session, or an error on failure.
type Users interface {
	Find(username, password, remoteAddr string) (*User, error)
}

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrWrongPassword = errors.New("wrong password")
	ErrIPNotAllowed  = errors.New("source address not allowed")
	errEmptyUsername = errors.New("empty username")
)

var _ Users = &LocalUsers{}

// LocalUsers is an in-memory authorizer.
type LocalUsers struct {
	users map[string]*User
	anon  *User // non-nil when the anonymous bypass is enabled
	mu    sync.RWMutex
}

// NewLocalUsers returns an empty in-memory authorizer.
func NewLocalUsers() *LocalUsers {
	return &LocalUsers{users: make(map[string]*User)}
}

// AllowAnonymous enables the anonymous bypass: logins as "anonymous" or
// "ftp" succeed with any password and receive the given home directory
// and permission set. An empty perms grants read-only access.
func (u *LocalUsers) AllowAnonymous(homeDir, perms string) *User {
	if perms == "" {
		perms = PermReadOnly
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.anon = &User{
		Username: "anonymous",
		HomeDir:  homeDir,
		Perms:    perms,
		IPs:      make(map[string]netip.Prefix),
	}
	return u.anon
}

// Add registers a named user with the full permission set.
func (u *LocalUsers) Add(username, password string) *User {
	u.mu.Lock()
	defer u.mu.Unlock()
	newUser := &User{
		Username: username,
		Password: password,
		HomeDir:  "/",
		Perms:    PermAll,
		IPs:      make(map[string]netip.Prefix),
	}
	u.users[username] = newUser
	return newUser
}

// Remove deletes a user and returns it.
func (u *LocalUsers) Remove(username string) *User {
	u.mu.Lock()
	defer u.mu.Unlock()
	oldUser := u.users[username]
	delete(u.users, username)
	return oldUser
}

// Get finds a user by username.
func (u *LocalUsers) Get(username string) (*User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// List returns the registered users.
func (u *LocalUsers) List() (map[string]*User, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.users, nil
}

// Find validates the credentials. When the anonymous bypass is enabled,
// the anonymous usernames succeed regardless of password.
func (u *LocalUsers) Find(username, password, remoteAddr string) (*User, error) {
	if username == "" {
		return nil, errEmptyUsername
	}
	u.mu.RLock()
	anon := u.anon
	user, ok := u.users[username]
	u.mu.RUnlock()

	if anon != nil && IsAnonymous(username) {
		if !anon.allowedFrom(remoteAddr) {
			return nil, ErrIPNotAllowed
		}
		return anon, nil
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	if user.Password != password {
		return nil, ErrWrongPassword
	}
	if !user.allowedFrom(remoteAddr) {
		return nil, ErrIPNotAllowed
	}
	return user, nil
}
