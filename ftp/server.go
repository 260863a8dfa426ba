package ftp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/telebroad/ftpd/filesystem"
	"github.com/telebroad/ftpd/users"
)

// Users is the authorizer the server asks to validate credentials.
// Anonymous access is a configuration of the authorizer, not of the server.
type Users interface {
	Find(username, password, remoteAddr string) (*users.User, error)
}

// Server is an FTP/FTPS server bound to a single address.
// All exported fields must be set before ListenAndServe and are not
// mutated afterwards, so one configuration is never shared mid-flight
// between connections.
type Server struct {
	// Addr is the TCP address to listen on, in the form "host:port".
	Addr string

	// WelcomeMessage is sent in the 220 greeting.
	WelcomeMessage string

	// FsHandler serves every filesystem operation, scoped beneath its root.
	FsHandler filesystem.FS

	// PasvMinPort and PasvMaxPort bound the passive-mode port pool.
	// When zero the pool defaults to 60000-65535.
	PasvMinPort int
	PasvMaxPort int

	// PublicServerIPv4 is the masquerade address advertised in PASV
	// replies, for servers behind NAT. When unset the local address of
	// the control connection is advertised.
	PublicServerIPv4 [4]byte

	// IdleTimeout is the per-connection deadline for reading the next
	// command on the control channel. Zero means no timeout.
	IdleTimeout time.Duration

	// DataTimeout bounds waiting for the client on a passive data
	// connection and dialing out on an active one.
	DataTimeout time.Duration

	users          Users
	logger         *slog.Logger
	listener       net.Listener
	sessionManager *SessionManager
	pasvPool       *PortPool

	// supportsTLS enables AUTH TLS upgrades (explicit mode), implicitTLS
	// means the listener itself already speaks TLS.
	supportsTLS bool
	implicitTLS bool
	tlsConfig   *tls.Config

	closed chan struct{}
}

// NewServer returns a Server for addr serving fs, authorizing against users.
func NewServer(addr string, fs filesystem.FS, users Users) (*Server, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if users == nil {
		return nil, fmt.Errorf("users authorizer is required")
	}
	s := &Server{
		Addr:           addr,
		WelcomeMessage: "Welcome to the FTP Server",
		FsHandler:      fs,
		users:          users,
		DataTimeout:    30 * time.Second,
		sessionManager: NewSessionManager(),
		closed:         make(chan struct{}),
	}
	return s, nil
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(l *slog.Logger) {
	s.logger = l
}

// Logger returns the logger for the server.
func (s *Server) Logger() *slog.Logger {
	if s.logger == nil {
		s.logger = slog.Default().With("module", "ftp-server")
	}
	return s.logger
}

// SetPublicServerIPv4 sets the masquerade address advertised in PASV replies.
func (s *Server) SetPublicServerIPv4(ip string) error {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return fmt.Errorf("error parsing public server ip: %w", err)
	}
	if !addr.Is4() {
		return fmt.Errorf("public server ip %q is not an IPv4 address", ip)
	}
	s.PublicServerIPv4 = addr.As4()
	return nil
}

// ListenAndServe starts the server in plain-text mode. AUTH TLS is
// rejected unless a TLS configuration was installed first.
// The bind error is returned; it is fatal at startup.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("error starting server: %w", err)
	}
	s.listener = listener
	s.Logger().Info("FTP server listening", "addr", s.Addr)
	return s.serve(listener)
}

// ListenAndServeTLS starts the server in implicit-TLS mode (FTPS):
// every accepted connection performs the TLS handshake before the first
// protocol byte.
func (s *Server) ListenAndServeTLS(certFile, keyFile string) error {
	if err := s.loadTLSConfig(certFile, keyFile); err != nil {
		return err
	}
	s.implicitTLS = true
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("error starting server: %w", err)
	}
	s.listener = tls.NewListener(listener, s.tlsConfig)
	s.Logger().Info("FTPS server listening (implicit TLS)", "addr", s.Addr)
	return s.serve(s.listener)
}

// ListenAndServeTLSe starts the server in explicit-TLS mode (FTPES):
// connections begin in plain text and the client upgrades the control
// channel with AUTH TLS.
func (s *Server) ListenAndServeTLSe(certFile, keyFile string) error {
	if err := s.loadTLSConfig(certFile, keyFile); err != nil {
		return err
	}
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("error starting server: %w", err)
	}
	s.listener = listener
	s.Logger().Info("FTP server listening (explicit TLS available)", "addr", s.Addr)
	return s.serve(listener)
}

// TryListenAndServe starts the server and returns nil if it is still
// serving after the grace period d, otherwise the startup error.
func (s *Server) TryListenAndServe(d time.Duration) error {
	return s.try(d, s.ListenAndServe)
}

// TryListenAndServeTLS is TryListenAndServe for implicit TLS.
func (s *Server) TryListenAndServeTLS(certFile, keyFile string, d time.Duration) error {
	return s.try(d, func() error { return s.ListenAndServeTLS(certFile, keyFile) })
}

// TryListenAndServeTLSe is TryListenAndServe for explicit TLS.
func (s *Server) TryListenAndServeTLSe(certFile, keyFile string, d time.Duration) error {
	return s.try(d, func() error { return s.ListenAndServeTLSe(certFile, keyFile) })
}

func (s *Server) try(d time.Duration, start func() error) error {
	errC := make(chan error, 1)
	go func() {
		if err := start(); err != nil {
			errC <- err
		}
	}()
	select {
	case err := <-errC:
		return err
	case <-time.After(d):
		return nil
	}
}

func (s *Server) loadTLSConfig(certFile, keyFile string) error {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return fmt.Errorf("error loading certificate: %w", err)
	}
	s.tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	s.supportsTLS = true
	return nil
}

// serve accepts control connections until the listener is closed.
// Per-connection accept failures are logged and do not stop the loop.
func (s *Server) serve(listener net.Listener) error {
	if s.pasvPool == nil {
		min, max := s.PasvMinPort, s.PasvMaxPort
		if min == 0 && max == 0 {
			min, max = 60000, 65535
		}
		pool, err := NewPortPool(min, max)
		if err != nil {
			return err
		}
		s.pasvPool = pool
	}
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.Logger().Error("error accepting connection", "error", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// Close stops the listener and tears down every active session,
// cancelling in-flight transfers and releasing their passive ports.
func (s *Server) Close(err error) {
	select {
	case <-s.closed:
		return
	default:
		close(s.closed)
	}
	s.Logger().Info("FTP server closing", "reason", err)
	if s.listener != nil {
		s.listener.Close()
	}
	s.sessionManager.CloseAll()
}
