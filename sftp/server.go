// Package sftp serves the same filesystem and authorizer as the FTP
// engine over SFTP, using an SSH password handshake.
package sftp

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/telebroad/ftpd/filesystem"
	"github.com/telebroad/ftpd/keys"
	"github.com/telebroad/ftpd/users"
)

// Server is an SFTP server bound to a single address.
type Server struct {
	Addr string

	// PrivateKey is the PEM host key. When nil a fresh RSA key is
	// generated at startup.
	PrivateKey []byte

	logger    *slog.Logger
	fs        filesystem.FSWithReadWriteAt
	users     users.Users
	sshConfig *ssh.ServerConfig
	listener  net.Listener
	closed    chan struct{}
}

// NewServer returns an SFTP server for addr serving fs, authorizing
// against users.
func NewServer(addr string, fs filesystem.FSWithReadWriteAt, users users.Users) *Server {
	return &Server{
		Addr:   addr,
		fs:     fs,
		users:  users,
		closed: make(chan struct{}),
	}
}

// SetPrivateKey sets the PEM host key for the server.
func (s *Server) SetPrivateKey(pk []byte) {
	s.PrivateKey = pk
}

// SetPrivateKeyFile loads the PEM host key from a file.
func (s *Server) SetPrivateKeyFile(name string) error {
	pk, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("error reading private key file: %w", err)
	}
	s.PrivateKey = pk
	return nil
}

// SetLogger sets the logger for the server.
func (s *Server) SetLogger(l *slog.Logger) {
	s.logger = l
}

// Logger returns the logger for the server.
func (s *Server) Logger() *slog.Logger {
	if s.logger == nil {
		s.logger = slog.Default().With("module", "sftp-server")
	}
	return s.logger
}

// ListenAndServe starts the SSH listener and serves SFTP sessions until
// Close. The bind error is returned; per-connection failures are logged.
func (s *Server) ListenAndServe() error {
	if s.PrivateKey == nil {
		pk, _, err := keys.GeneratesRSAKeys(2048)
		if err != nil {
			return fmt.Errorf("error generating host key: %w", err)
		}
		s.PrivateKey = pk
	}
	hostKey, err := ssh.ParsePrivateKey(s.PrivateKey)
	if err != nil {
		return fmt.Errorf("error parsing private key: %w", err)
	}

	s.sshConfig = &ssh.ServerConfig{PasswordCallback: s.authHandler}
	s.sshConfig.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.Logger().Info("SFTP server listening", "addr", s.Addr)

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
		go s.sshHandler(conn)
	}
}

// TryListenAndServe starts the server and returns nil if it is still
// serving after the grace period d, otherwise the startup error.
func (s *Server) TryListenAndServe(d time.Duration) error {
	errC := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil {
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

// Close stops the listener.
func (s *Server) Close() {
	select {
	case <-s.closed:
		return
	default:
		close(s.closed)
	}
	if s.listener != nil {
		s.listener.Close()
	}
}

// authHandler is called by the SSH server when a client attempts to
// authenticate.
func (s *Server) authHandler(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
	if _, err := s.users.Find(c.User(), string(pass), c.RemoteAddr().String()); err != nil {
		s.Logger().Debug("login rejected", "user", c.User(), "error", err)
		return nil, fmt.Errorf("password rejected for %q", c.User())
	}
	return nil, nil
}

// sshHandler upgrades one TCP connection to SSH and serves SFTP on its
// session channels.
func (s *Server) sshHandler(conn net.Conn) {
	defer conn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, s.sshConfig)
	if err != nil {
		s.Logger().Error("failed to handshake", "error", err)
		return
	}
	defer sshConn.Close()

	logger := s.Logger().With("remote", sshConn.RemoteAddr().String(), "user", sshConn.User())
	logger.Info("new SSH connection", "clientVersion", string(sshConn.ClientVersion()))

	// The incoming request channel must be serviced.
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		// SFTP operates over a single "session" channel.
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			logger.Error("could not accept channel", "error", err)
			return
		}
		go s.subsystemHandler(requests, logger)

		handlers := newSessionHandlers(s.fs, logger)
		server := sftp.NewRequestServer(channel, handlers)
		if err := server.Serve(); err == io.EOF {
			server.Close()
			logger.Info("sftp client exited session")
		} else if err != nil {
			logger.Error("sftp server completed with error", "error", err)
		}
	}
}

// subsystemHandler accepts the "sftp" subsystem request and rejects
// everything else.
func (s *Server) subsystemHandler(in <-chan *ssh.Request, logger *slog.Logger) {
	for req := range in {
		ok := req.Type == "subsystem" &&
			len(req.Payload) > 4 && string(req.Payload[4:]) == "sftp"
		if err := req.Reply(ok, nil); err != nil {
			logger.Error("failed to reply to channel request", "error", err)
			return
		}
	}
}
