package ftp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Errors the data channel manager reports; handlers map them to
// 425/426-class replies and the control channel stays usable.
var (
	// ErrDataChannelTimeout means no client connected to the passive
	// listener within the configured window.
	ErrDataChannelTimeout = errors.New("timed out waiting for data connection")

	// ErrChannelUnreachable means the client's advertised active-mode
	// endpoint could not be dialed.
	ErrChannelUnreachable = errors.New("cannot connect to data endpoint")

	// ErrNoDataConnection means neither PASV/EPSV nor PORT/EPRT
	// preceded the transfer command.
	ErrNoDataConnection = errors.New("no data connection mode negotiated")

	// ErrPoolExhausted means every port in the passive range is reserved.
	// Policy for exhaustion is to reject the PASV, not to queue it.
	ErrPoolExhausted = errors.New("no available ports in the passive range")
)

// PortPool hands out listeners on ports from a bounded range for
// passive-mode transfers. A port is reserved by at most one session at a
// time; Release returns it for reuse. Acquire and Release are safe for
// concurrent use from every session goroutine.
type PortPool struct {
	min, max int
	mu       sync.Mutex
	inUse    map[int]bool
}

// NewPortPool returns a pool over the inclusive port range min..max.
func NewPortPool(min, max int) (*PortPool, error) {
	if min <= 0 || max < min || max > 65535 {
		return nil, fmt.Errorf("invalid passive port range %d-%d", min, max)
	}
	return &PortPool{min: min, max: max, inUse: make(map[int]bool)}, nil
}

// Acquire reserves a free port from the range and returns a TCP listener
// bound to it. The caller owns the listener but must hand the port back
// with Release once the transfer completes or is aborted.
func (p *PortPool) Acquire() (net.Listener, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for port := p.min; port <= p.max; port++ {
		if p.inUse[port] {
			continue
		}
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			// Something outside the pool holds this port.
			continue
		}
		p.inUse[port] = true
		return listener, port, nil
	}
	return nil, 0, ErrPoolExhausted
}

// Release returns a port to the pool. Releasing a port that is not
// reserved is a no-op.
func (p *PortPool) Release(port int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inUse, port)
}

// Reserved returns how many ports are currently handed out.
func (p *PortPool) Reserved() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// openPassive reserves a pool port and starts listening on it, recording
// the listener on the session. The returned port is what PASV/EPSV
// advertise to the client. A session already closing hands the port
// straight back so shutdown never strands a reservation.
func (s *Session) openPassive() (port int, err error) {
	// One data mode per transfer: negotiating again drops the old one.
	s.closeDataConn()
	listener, port, err := s.ftpServer.pasvPool.Acquire()
	if err != nil {
		return 0, err
	}
	s.dataMu.Lock()
	if s.closing {
		s.dataMu.Unlock()
		listener.Close()
		s.ftpServer.pasvPool.Release(port)
		return 0, errSessionClosed
	}
	s.dataListener = listener
	s.dataPort = port
	s.dataMu.Unlock()
	return port, nil
}

// openActive dials the client's advertised endpoint for an active-mode
// transfer and records the connection on the session.
func (s *Session) openActive(addr string) error {
	s.closeDataConn()
	conn, err := net.DialTimeout("tcp", addr, s.ftpServer.DataTimeout)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrChannelUnreachable, addr)
	}
	s.dataMu.Lock()
	if s.closing {
		s.dataMu.Unlock()
		conn.Close()
		return errSessionClosed
	}
	s.dataCaller = conn
	s.dataMu.Unlock()
	return nil
}

// hasDataMode reports whether a data mode was negotiated since the last
// transfer.
func (s *Session) hasDataMode() bool {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	return s.dataListener != nil || s.dataCaller != nil
}

// dataConn produces the established data connection for a transfer:
// in passive mode it waits (bounded by DataTimeout) for the client to
// connect, in active mode it hands back the dialed connection. With
// PROT P the connection is wrapped in TLS using the server certificate.
// The wait happens outside dataMu so Close can abort it by closing the
// listener.
func (s *Session) dataConn() (net.Conn, error) {
	s.dataMu.Lock()
	listener, caller := s.dataListener, s.dataCaller
	s.dataCaller = nil // ownership moves to the transfer
	s.dataMu.Unlock()

	var conn net.Conn
	switch {
	case listener != nil:
		if t, ok := listener.(*net.TCPListener); ok && s.ftpServer.DataTimeout > 0 {
			t.SetDeadline(time.Now().Add(s.ftpServer.DataTimeout))
		}
		accepted, err := listener.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return nil, ErrDataChannelTimeout
			}
			return nil, fmt.Errorf("error accepting data connection: %w", err)
		}
		conn = accepted
	case caller != nil:
		conn = caller
	default:
		return nil, ErrNoDataConnection
	}

	if s.prot == 'P' {
		conn = tls.Server(conn, s.ftpServer.tlsConfig)
	}
	return conn, nil
}

// closeDataConn aborts whatever data mode is pending and releases the
// session's passive port. It is called after every transfer, on ABOR and
// on session teardown, fulfilling the one-data-mode-per-transfer rule.
func (s *Session) closeDataConn() {
	s.dataMu.Lock()
	listener, port, caller := s.dataListener, s.dataPort, s.dataCaller
	s.dataListener, s.dataPort, s.dataCaller = nil, 0, nil
	s.dataMu.Unlock()

	if listener != nil {
		listener.Close()
		s.ftpServer.pasvPool.Release(port)
	}
	if caller != nil {
		caller.Close()
	}
}

// asciiWriter converts bare LF line endings to CRLF for ASCII-mode
// downloads. Binary ("I") transfers bypass it and stay byte-exact.
type asciiWriter struct {
	w    io.Writer
	last byte
}

func newASCIIWriter(w io.Writer) *asciiWriter {
	return &asciiWriter{w: w}
}

func (a *asciiWriter) Write(p []byte) (int, error) {
	out := make([]byte, 0, len(p)+len(p)/8)
	for _, b := range p {
		if b == '\n' && a.last != '\r' {
			out = append(out, '\r')
		}
		out = append(out, b)
		a.last = b
	}
	if _, err := a.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}
