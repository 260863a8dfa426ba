package ftp

import (
	"log/slog"
	"net"
	"sync"

	"github.com/telebroad/ftpd/tools"
	"github.com/telebroad/ftpd/users"
)

// Session represents an individual client FTP session.
// It is owned by the goroutine handling its control connection; the
// data-channel fields are additionally touched by Close during server
// shutdown, so they live behind dataMu.
type Session struct {
	ftpServer    *Server                 // the server the session belongs to
	conn         net.Conn                // the control connection
	ctrl         *tools.BufLogReadWriter // buffered, debug-logged control reader/writer
	logger       *slog.Logger            // connection-scoped logger
	userInfo     *users.User             // authenticated user, nil until PASS succeeds
	pendingUser  string                  // username awaiting PASS
	workingDir   string                  // current working directory (virtual, rooted at "/")
	root         string                  // virtual root the session is confined to
	transferType string                  // "I" binary or "A" ASCII
	prot         byte                    // data channel protection level, 'C' clear or 'P' TLS
	tlsUpgraded  bool                    // control channel upgraded via AUTH TLS
	renamingFile string                  // source path between RNFR and RNTO
	helpCommands string
	closeOnce    sync.Once

	dataMu       sync.Mutex   // guards the fields below against Close
	dataListener net.Listener // passive-mode data listener
	dataPort     int          // pool port backing dataListener
	dataCaller   net.Conn     // active-mode data connection
	closing      bool         // set by Close; no new data mode may be recorded
}

// loggedIn reports whether authentication has completed.
// A transfer may only proceed while this holds.
func (s *Session) loggedIn() bool {
	return s.userInfo != nil
}

// Close tears down the control connection and any in-flight data
// channel, releasing the session's passive port. It is safe to call
// from the session manager while the owning goroutine is mid-command.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.dataMu.Lock()
		s.closing = true
		s.dataMu.Unlock()
		s.closeDataConn()
		s.conn.Close()
	})
}

// SessionManager tracks the active sessions so the server can tear
// them all down on shutdown.
type SessionManager struct {
	sessions map[string]*Session // Map of active sessions
	lock     sync.RWMutex        // Protects the sessions map
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

// Add adds a new session for the client.
func (manager *SessionManager) Add(id string, session *Session) {
	manager.lock.Lock()
	defer manager.lock.Unlock()
	manager.sessions[id] = session
}

// Get retrieves a session by its ID.
func (manager *SessionManager) Get(id string) (*Session, bool) {
	manager.lock.RLock()
	defer manager.lock.RUnlock()
	session, exists := manager.sessions[id]
	return session, exists
}

// Remove removes a session by its ID.
func (manager *SessionManager) Remove(id string) {
	manager.lock.Lock()
	defer manager.lock.Unlock()
	delete(manager.sessions, id)
}

// Len returns the number of active sessions.
func (manager *SessionManager) Len() int {
	manager.lock.RLock()
	defer manager.lock.RUnlock()
	return len(manager.sessions)
}

// CloseAll closes every active session.
func (manager *SessionManager) CloseAll() {
	manager.lock.Lock()
	defer manager.lock.Unlock()
	for id, session := range manager.sessions {
		session.Close()
		delete(manager.sessions, id)
	}
}
