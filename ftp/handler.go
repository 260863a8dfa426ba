package ftp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/telebroad/ftpd/tools"
	"github.com/telebroad/ftpd/users"
)

// errSessionClosed signals an orderly end of the command loop (QUIT or a
// fatal transport error after the reply was already written).
var errSessionClosed = errors.New("session closed")

type handlerMap map[string]func(cmd, arg string) error

// authExempt lists the verbs a client may issue before logging in.
// Everything else answers 530 without touching the filesystem.
var authExempt = map[string]bool{
	"USER": true, "PASS": true, "QUIT": true, "NOOP": true,
	"AUTH": true, "PBSZ": true, "PROT": true,
	"SYST": true, "FEAT": true, "HELP": true, "OPTS": true,
}

func generateSessionID(conn net.Conn) string {
	return conn.RemoteAddr().String()
}

// handleConnection runs one control connection from greeting to
// disconnect. Commands are processed strictly in the order received;
// per-command errors become protocol replies and only fatal transport
// errors end the loop.
func (s *Server) handleConnection(conn net.Conn) {
	logger := s.Logger().With("remote", conn.RemoteAddr().String())
	defer func() {
		if r := recover(); r != nil {
			logger.Error("recovered from panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	session := &Session{
		ftpServer:    s,
		conn:         conn,
		ctrl:         tools.NewBufLogReadWriter(conn, logger),
		logger:       logger,
		workingDir:   "/",
		root:         "/",
		transferType: "I",
		prot:         'C',
	}
	defer session.Close()

	sessionID := generateSessionID(conn)
	s.sessionManager.Add(sessionID, session)
	defer s.sessionManager.Remove(sessionID)

	handlers := handlerMap{
		"AUTH": session.AuthCommand,                    // upgrade the control channel to TLS
		"PBSZ": session.ProtectionBufferSizeCommand,    // TLS protection buffer size, always 0
		"PROT": session.ProtectionLevelCommand,         // data channel protection level
		"USER": session.UserCommand,                    // specify the username
		"PASS": session.PassCommand,                    // specify the password
		"SYST": session.SystemCommand,                  // get the system type
		"FEAT": session.FeaturesCommand,                // get the supported features
		"OPTS": session.OptsCommand,                    // specify options for the server
		"HELP": session.HelpCommand,                    // get help
		"NOOP": session.NoopCommand,                    // keep the connection alive
		"PWD":  session.PrintWorkingDirectoryCommand,   // print the current working directory
		"CWD":  session.ChangeDirectoryCommand,         // change the working directory
		"CDUP": session.ChangeDirectoryToParentCommand, // change to the parent directory
		"TYPE": session.TypeCommand,                    // set the transfer type (ASCII/binary)
		"MODE": session.ModeCommand,                    // set the transfer mode
		"STRU": session.StruCommand,                    // set the file structure
		"REST": session.RestartCommand,                 // restart an interrupted transfer
		"PASV": session.PassiveModeCommand,             // enter passive mode
		"EPSV": session.ExtendedPassiveModeCommand,     // enter extended passive mode
		"PORT": session.ActiveModeCommand,              // connect out to the client's data port
		"EPRT": session.ExtendedActiveModeCommand,      // extended active mode
		"ABOR": session.AbortCommand,                   // abort the pending transfer
		"LIST": session.ListCommand,                    // list directory contents, ls -l format
		"NLST": session.NameListCommand,                // list file names only
		"MLSD": session.GetDirInfoCommand,              // machine-readable directory listing
		"MLST": session.GetFileInfoCommand,             // machine-readable file facts
		"STAT": session.StatusCommand,                  // server or file status on the control channel
		"SIZE": session.SizeCommand,                    // get the size of a file
		"MDTM": session.ModifyTimeCommand,              // get or set a file modification time
		"RETR": session.RetrieveCommand,                // download a file
		"STOR": session.SaveCommand,                    // upload a file
		"APPE": session.SaveCommand,                    // upload, appending to an existing file
		"DELE": session.RemoveCommand,                  // delete a file
		"MKD":  session.MakeDirCommand,                 // create a directory
		"XMKD": session.MakeDirCommand,                 // create a directory (extended verb)
		"RMD":  session.RemoveDirCommand,               // remove a directory
		"XRMD": session.RemoveDirCommand,               // remove a directory (extended verb)
		"RNFR": session.RenameFromCommand,              // rename, source half
		"RNTO": session.RenameToCommand,                // rename, destination half
		"QUIT": session.CloseCommand,                   // terminate the session
	}
	helpCommands := make([]string, 0, len(handlers))
	for k := range handlers {
		helpCommands = append(helpCommands, k)
	}
	sort.Strings(helpCommands)
	session.helpCommands = strings.Join(helpCommands, " ")

	session.reply(StatusServiceReadyForNewUser, "%s", s.WelcomeMessage)

	for {
		cmd, arg, err := session.parseCommand()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				session.reply(StatusServiceNotAvailable, "Idle timeout, closing control connection.")
			}
			return
		}
		if cmd == "" {
			session.reply(StatusSyntaxError, "Empty command.")
			continue
		}

		handler, ok := handlers[cmd]
		if !ok {
			session.UnknownCommand(cmd, arg)
			continue
		}
		if !authExempt[cmd] && !session.loggedIn() {
			session.reply(StatusNotLoggedIn, "Please login with USER and PASS.")
			continue
		}
		if err := handler(cmd, arg); err != nil {
			if !errors.Is(err, errSessionClosed) {
				logger.Debug("session ended", "cmd", cmd, "error", err)
			}
			return
		}
	}
}

// parseCommand reads one line from the control channel and splits it
// into an upper-cased verb and its raw argument.
func (s *Session) parseCommand() (cmd, arg string, err error) {
	if t := s.ftpServer.IdleTimeout; t > 0 {
		s.conn.SetReadDeadline(time.Now().Add(t))
	}
	line, err := s.ctrl.ReadString('\n')
	if err != nil {
		return "", "", fmt.Errorf("error reading from connection: %w", err)
	}
	command := strings.SplitN(strings.TrimSpace(line), " ", 2)
	cmd = strings.ToUpper(command[0])
	if len(command) > 1 {
		arg = command[1]
	}
	return cmd, arg, nil
}

// reply writes exactly one status line to the control channel.
func (s *Session) reply(code StatusCode, format string, args ...any) {
	fmt.Fprintf(s.ctrl, "%d %s\r\n", code, fmt.Sprintf(format, args...))
}

// replyLines writes a bounded multi-line response using the code-dash
// continuation convention.
func (s *Session) replyLines(code StatusCode, first string, lines []string, last string) {
	fmt.Fprintf(s.ctrl, "%d-%s\r\n", code, first)
	for _, line := range lines {
		fmt.Fprintf(s.ctrl, " %s\r\n", line)
	}
	fmt.Fprintf(s.ctrl, "%d %s\r\n", code, last)
}

// AuthCommand handles the AUTH command, upgrading the control channel to
// TLS. The upgrade is legal before login; every later command, including
// USER and PASS, then travels over the negotiated channel.
func (s *Session) AuthCommand(cmd, arg string) error {
	mech := strings.ToUpper(strings.TrimSpace(arg))
	if mech != "TLS" && mech != "SSL" {
		s.reply(StatusCommandNotImplementedForParam, "AUTH command not implemented for this type")
		return nil
	}
	if !s.ftpServer.supportsTLS {
		s.reply(StatusSyntaxError, "TLS not supported")
		return nil
	}
	if s.tlsUpgraded || s.ftpServer.implicitTLS {
		s.reply(StatusBadSequenceOfCommands, "Control channel already protected")
		return nil
	}
	s.reply(StatusSecurityExchangeOK, "AUTH command ok. Expecting TLS Negotiation.")

	tlsConn := tls.Server(s.conn, s.ftpServer.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		// Handshake failure is a fatal transport error for this session.
		return fmt.Errorf("TLS handshake failed: %w", err)
	}
	s.conn = tlsConn
	s.ctrl = tools.NewBufLogReadWriter(tlsConn, s.logger)
	s.tlsUpgraded = true
	return nil
}

// ProtectionBufferSizeCommand handles PBSZ. Only PBSZ 0 is meaningful on
// a TLS channel.
func (s *Session) ProtectionBufferSizeCommand(cmd, arg string) error {
	if !s.tlsUpgraded && !s.ftpServer.implicitTLS {
		s.reply(StatusBadSequenceOfCommands, "PBSZ requires a protected control channel")
		return nil
	}
	s.reply(StatusCommandOK, "PBSZ=0")
	return nil
}

// ProtectionLevelCommand handles PROT. P protects the data channel with
// TLS, C returns it to clear; S and E are not supported.
func (s *Session) ProtectionLevelCommand(cmd, arg string) error {
	if !s.tlsUpgraded && !s.ftpServer.implicitTLS {
		s.reply(StatusBadSequenceOfCommands, "PROT requires a protected control channel")
		return nil
	}
	switch strings.ToUpper(strings.TrimSpace(arg)) {
	case "P":
		s.prot = 'P'
		s.reply(StatusCommandOK, "Protection set to Private")
	case "C":
		s.prot = 'C'
		s.reply(StatusCommandOK, "Protection set to Clear")
	case "S", "E":
		s.reply(StatusProtLevelNotSupported, "PROT level not supported")
	default:
		s.reply(StatusSyntaxErrorInParameters, "Unknown PROT level")
	}
	return nil
}

// UserCommand handles the USER command from the client.
func (s *Session) UserCommand(cmd, arg string) error {
	if arg == "" {
		s.reply(StatusSyntaxErrorInParameters, "User name not specified")
		return nil
	}
	s.pendingUser = arg
	s.userInfo = nil
	if users.IsAnonymous(arg) {
		s.reply(StatusUserNameOK, "Anonymous login ok, send any password")
		return nil
	}
	s.reply(StatusUserNameOK, "Please specify the password")
	return nil
}

// PassCommand completes authentication. The credential the authorizer
// issues is held unchanged for the rest of the session.
func (s *Session) PassCommand(cmd, arg string) error {
	if s.pendingUser == "" {
		s.reply(StatusBadSequenceOfCommands, "Login with USER first")
		return nil
	}
	user, err := s.ftpServer.users.Find(s.pendingUser, arg, s.conn.RemoteAddr().String())
	if err != nil {
		s.reply(StatusInvalidUsernameOrPassword, "Invalid username or password")
		return nil
	}
	s.userInfo = user
	// The credential's home directory is the root the session is
	// confined to for its whole lifetime.
	home := user.HomeDir
	if home == "" {
		home = "/"
	}
	s.root = path.Clean("/" + strings.TrimPrefix(home, "/"))
	s.workingDir = s.root
	s.reply(StatusUserLoggedIn, "Login successful")
	return nil
}

// SystemCommand returns the system type.
func (s *Session) SystemCommand(cmd, arg string) error {
	switch runtime.GOOS {
	case "windows":
		s.reply(StatusNameSystemType, "WINDOWS Type: L8")
	case "linux", "darwin":
		s.reply(StatusNameSystemType, "UNIX Type: L8")
	default:
		s.reply(StatusNameSystemType, "OS Type: %s", runtime.GOOS)
	}
	return nil
}

// FeaturesCommand advertises the supported feature set.
func (s *Session) FeaturesCommand(cmd, arg string) error {
	features := []string{
		"UTF8",
		"SIZE",
		"MDTM",
		"EPSV",
		"EPRT",
		"MLSD",
	}
	if s.ftpServer.supportsTLS {
		features = append(features, "AUTH TLS", "AUTH SSL", "PBSZ", "PROT")
	}
	s.replyLines(StatusSystemStatus, "Features:", features, "End")
	return nil
}

// OptsCommand handles the OPTS command from the client.
func (s *Session) OptsCommand(cmd, arg string) error {
	switch strings.ToUpper(arg) {
	case "UTF8 ON":
		s.reply(StatusCommandOK, "Always in UTF8 mode.")
	default:
		s.reply(StatusSyntaxError, "Unknown option.")
	}
	return nil
}

// HelpCommand lists the recognized commands.
func (s *Session) HelpCommand(cmd, arg string) error {
	s.replyLines(StatusHelpMessage,
		"The following commands are recognized.",
		[]string{s.helpCommands},
		"Help OK.")
	return nil
}

// NoopCommand keeps the connection alive.
func (s *Session) NoopCommand(cmd, arg string) error {
	s.reply(StatusCommandOK, "NOOP ok.")
	return nil
}

// PrintWorkingDirectoryCommand handles PWD.
func (s *Session) PrintWorkingDirectoryCommand(cmd, arg string) error {
	s.reply(StatusPathnameCreated, "%q is current directory", s.workingDir)
	return nil
}

func (s *Session) changeDir(target string) error {
	requestedDir, err := s.resolvePath(target)
	if err != nil {
		s.reply(StatusFileUnavailable, "Access denied: %s", err)
		return nil
	}
	if !s.userInfo.Can(users.PermChangeDir) {
		s.reply(StatusFileUnavailable, "Permission denied.")
		return nil
	}
	if err := s.ftpServer.FsHandler.CheckDir(requestedDir); err != nil {
		s.reply(StatusFileUnavailable, "Failed to change directory: %s", err)
		return nil
	}
	s.workingDir = requestedDir
	s.reply(StatusFileActionOK, "Directory successfully changed to %q", requestedDir)
	return nil
}

// ChangeDirectoryCommand handles CWD.
func (s *Session) ChangeDirectoryCommand(cmd, arg string) error {
	return s.changeDir(arg)
}

// ChangeDirectoryToParentCommand handles CDUP.
func (s *Session) ChangeDirectoryToParentCommand(cmd, arg string) error {
	if s.workingDir == s.root {
		// Climbing above the root is a traversal, not a syntax error.
		s.reply(StatusFileUnavailable, "Access denied: %s", ErrPathEscapesRoot)
		return nil
	}
	return s.changeDir("..")
}

// TypeCommand sets the session transfer type: I binary, A ASCII.
func (s *Session) TypeCommand(cmd, arg string) error {
	switch strings.ToUpper(strings.TrimSpace(arg)) {
	case "I":
		s.transferType = "I"
		s.reply(StatusCommandOK, "Type set to I")
	case "A":
		s.transferType = "A"
		s.reply(StatusCommandOK, "Type set to A")
	default:
		s.reply(StatusCommandNotImplementedForParam, "Unsupported type")
	}
	return nil
}

// ModeCommand handles the MODE command; only stream mode is supported.
func (s *Session) ModeCommand(cmd, arg string) error {
	if strings.EqualFold(arg, "S") {
		s.reply(StatusCommandOK, "Mode set to S.")
	} else {
		s.reply(StatusCommandNotImplementedForParam, "Unsupported mode.")
	}
	return nil
}

// StruCommand handles the STRU command; only file structure is supported.
func (s *Session) StruCommand(cmd, arg string) error {
	if strings.EqualFold(arg, "F") {
		s.reply(StatusCommandOK, "Structure set to F.")
	} else {
		s.reply(StatusCommandNotImplementedForParam, "Structure %s not implemented.", arg)
	}
	return nil
}

// RestartCommand handles REST. Transfers always run from offset zero,
// so a nonzero restart marker is refused rather than silently ignored;
// accepting it would hand a resuming client wrong bytes.
func (s *Session) RestartCommand(cmd, arg string) error {
	if arg == "0" || arg == "" {
		s.reply(StatusFileActionPending, "Ready for file transfer.")
		return nil
	}
	s.reply(StatusCommandNotImplementedYet, "REST not implemented for nonzero offsets.")
	return nil
}

// pasvAddr returns the IPv4 address to advertise in a 227 reply: the
// configured masquerade address when set, the control connection's local
// address otherwise.
func (s *Session) pasvAddr() [4]byte {
	if s.ftpServer.PublicServerIPv4 != ([4]byte{}) {
		return s.ftpServer.PublicServerIPv4
	}
	if addr, ok := s.conn.LocalAddr().(*net.TCPAddr); ok {
		if v4 := addr.IP.To4(); v4 != nil {
			return [4]byte(v4)
		}
	}
	return [4]byte{127, 0, 0, 1}
}

// PassiveModeCommand handles PASV: reserve a pool port, listen and
// advertise it.
func (s *Session) PassiveModeCommand(cmd, arg string) error {
	port, err := s.openPassive()
	if err != nil {
		s.reply(StatusCantOpenDataConnection, "Can't open data connection: %s", err)
		return nil
	}
	ip := s.pasvAddr()
	s.reply(StatusEnteringPassiveMode, "Entering Passive Mode (%d,%d,%d,%d,%d,%d)",
		ip[0], ip[1], ip[2], ip[3], port/256, port%256)
	return nil
}

// ExtendedPassiveModeCommand handles EPSV.
func (s *Session) ExtendedPassiveModeCommand(cmd, arg string) error {
	port, err := s.openPassive()
	if err != nil {
		s.reply(StatusCantOpenDataConnection, "Can't open data connection: %s", err)
		return nil
	}
	s.reply(StatusEnteringExtendedPassiveMode, "Entering Extended Passive Mode (|||%d|)", port)
	return nil
}

// ActiveModeCommand handles PORT: h1,h2,h3,h4,p1,p2.
func (s *Session) ActiveModeCommand(cmd, arg string) error {
	parts := strings.Split(arg, ",")
	if len(parts) != 6 {
		s.reply(StatusSyntaxErrorInParameters, "Syntax error in parameters or arguments.")
		return nil
	}
	p1, err1 := strconv.Atoi(parts[4])
	p2, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil {
		s.reply(StatusSyntaxErrorInParameters, "Syntax error in parameters or arguments.")
		return nil
	}
	addr := fmt.Sprintf("%s:%d", strings.Join(parts[0:4], "."), p1*256+p2)
	if err := s.openActive(addr); err != nil {
		s.reply(StatusCantOpenDataConnection, "Can't open data connection: %s", err)
		return nil
	}
	s.reply(StatusCommandOK, "PORT command successful.")
	return nil
}

// ExtendedActiveModeCommand handles EPRT: |1|ip|port| or |2|ip|port|.
func (s *Session) ExtendedActiveModeCommand(cmd, arg string) error {
	parts := strings.Split(arg, "|")
	if len(parts) != 5 || (parts[1] != "1" && parts[1] != "2") {
		s.reply(StatusSyntaxErrorInParameters, "Syntax error in parameters or arguments.")
		return nil
	}
	if err := s.openActive(net.JoinHostPort(parts[2], parts[3])); err != nil {
		s.reply(StatusCantOpenDataConnection, "Can't open data connection: %s", err)
		return nil
	}
	s.reply(StatusCommandOK, "EPRT command successful.")
	return nil
}

// AbortCommand handles ABOR: whatever transfer is pending is dropped and
// its port released, the control channel stays open.
func (s *Session) AbortCommand(cmd, arg string) error {
	s.closeDataConn()
	s.reply(StatusClosingDataConnection, "ABOR command successful.")
	return nil
}

// ListCommand handles LIST: a long-format directory listing over the
// data channel.
func (s *Session) ListCommand(cmd, arg string) error {
	return s.sendListing(arg, func(w io.Writer, infos []os.FileInfo) {
		for _, info := range infos {
			fmt.Fprintf(w, "%s\r\n", unixListLine(info))
		}
	})
}

// NameListCommand handles NLST: bare file names over the data channel.
func (s *Session) NameListCommand(cmd, arg string) error {
	return s.sendListing(arg, func(w io.Writer, infos []os.FileInfo) {
		for _, info := range infos {
			fmt.Fprintf(w, "%s\r\n", info.Name())
		}
	})
}

// GetDirInfoCommand handles MLSD: machine-readable fact lines over the
// data channel.
func (s *Session) GetDirInfoCommand(cmd, arg string) error {
	return s.sendListing(arg, func(w io.Writer, infos []os.FileInfo) {
		for _, info := range infos {
			fmt.Fprintf(w, "%s\r\n", factLine(info))
		}
	})
}

func factLine(info os.FileInfo) string {
	fileType := "file"
	if info.IsDir() {
		fileType = "dir"
	}
	return fmt.Sprintf("type=%s;size=%d;modify=%s; %s",
		fileType, info.Size(), info.ModTime().UTC().Format("20060102150405"), info.Name())
}

// sendListing runs one directory listing transfer: resolve and authorize
// the path, announce 150, stream the rendered entries over the data
// channel and close it, then acknowledge 226.
func (s *Session) sendListing(arg string, render func(io.Writer, []os.FileInfo)) error {
	defer s.closeDataConn()

	// LIST options such as -la are for humans; drop them.
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "-") {
		arg = ""
	}
	dirName, err := s.resolvePath(arg)
	if err != nil {
		s.reply(StatusFileUnavailable, "Access denied: %s", err)
		return nil
	}
	if !s.userInfo.Can(users.PermList) {
		s.reply(StatusFileUnavailable, "Permission denied.")
		return nil
	}
	infos, err := s.ftpServer.FsHandler.Dir(dirName)
	if err != nil {
		s.reply(StatusFileUnavailable, "Error getting directory listing: %s", err)
		return nil
	}
	if !s.hasDataMode() {
		s.reply(StatusCantOpenDataConnection, "Use PORT or PASV first.")
		return nil
	}

	s.reply(StatusFileStatusOK, "Here comes the directory listing.")
	dataConn, err := s.dataConn()
	if err != nil {
		s.reply(StatusCantOpenDataConnection, "Can't open data connection: %s", err)
		return nil
	}
	defer dataConn.Close()

	render(dataConn, infos)
	s.reply(StatusClosingDataConnection, "Directory send OK.")
	return nil
}

// GetFileInfoCommand handles MLST: facts for a single path on the
// control channel.
func (s *Session) GetFileInfoCommand(cmd, arg string) error {
	fileName, err := s.resolvePath(arg)
	if err != nil {
		s.reply(StatusFileUnavailable, "Access denied: %s", err)
		return nil
	}
	facts, _, err := s.ftpServer.FsHandler.Stat(fileName)
	if err != nil {
		s.reply(StatusFileUnavailable, "Error getting file info: %s", err)
		return nil
	}
	s.replyLines(StatusFileActionOK, "File details:", []string{facts}, "End")
	return nil
}

// StatusCommand handles STAT: without an argument, server status;
// with one, file facts. Both stay on the control channel.
func (s *Session) StatusCommand(cmd, arg string) error {
	if arg == "" {
		s.replyLines(StatusSystemStatus, "FTP Server Status:",
			[]string{fmt.Sprintf("Logged in as %s", s.userInfo.Username)},
			"End of status.")
		return nil
	}
	fileName, err := s.resolvePath(arg)
	if err != nil {
		s.reply(StatusFileUnavailable, "Access denied: %s", err)
		return nil
	}
	facts, _, err := s.ftpServer.FsHandler.Stat(fileName)
	if err != nil {
		s.reply(StatusFileUnavailable, "Error getting file info: %s", err)
		return nil
	}
	s.replyLines(StatusFileStatus, fmt.Sprintf("Status of %s:", arg),
		[]string{facts}, "End of status.")
	return nil
}

// SizeCommand handles SIZE.
func (s *Session) SizeCommand(cmd, arg string) error {
	fileName, err := s.resolvePath(arg)
	if err != nil {
		s.reply(StatusFileUnavailable, "Access denied: %s", err)
		return nil
	}
	_, fileInfo, err := s.ftpServer.FsHandler.Stat(fileName)
	if err != nil {
		s.reply(StatusFileUnavailable, "Error getting file info: %s", err)
		return nil
	}
	s.reply(StatusFileStatus, "%d", fileInfo.Size())
	return nil
}

// ModifyTimeCommand handles MDTM: with a bare path it reports the
// modification time, with a timestamp and path it sets it.
func (s *Session) ModifyTimeCommand(cmd, arg string) error {
	args := strings.SplitN(arg, " ", 2)
	switch {
	case arg == "":
		s.reply(StatusSyntaxErrorInParameters, "No file name given")
	case len(args) == 1:
		fileName, err := s.resolvePath(args[0])
		if err != nil {
			s.reply(StatusFileUnavailable, "Access denied: %s", err)
			return nil
		}
		_, info, err := s.ftpServer.FsHandler.Stat(fileName)
		if err != nil {
			s.reply(StatusSyntaxErrorInParameters, "Error getting file info: %s", err)
			return nil
		}
		s.reply(StatusFileStatus, "%s", info.ModTime().UTC().Format("20060102150405"))
	default:
		fileName, err := s.resolvePath(args[1])
		if err != nil {
			s.reply(StatusFileUnavailable, "Access denied: %s", err)
			return nil
		}
		if err := s.ftpServer.FsHandler.ModifyTime(fileName, args[0]); err != nil {
			s.reply(StatusSyntaxErrorInParameters, "Error setting modification time: %s", err)
			return nil
		}
		s.reply(StatusFileStatus, "File modification time set to: %s", args[0])
	}
	return nil
}

// RetrieveCommand handles RETR: stream a file to the client over the
// data channel, honoring the transfer type.
func (s *Session) RetrieveCommand(cmd, arg string) error {
	defer s.closeDataConn()

	fileName, err := s.resolvePath(arg)
	if err != nil {
		s.reply(StatusFileUnavailable, "Access denied: %s", err)
		return nil
	}
	if !s.userInfo.Can(users.PermRead) {
		s.reply(StatusFileUnavailable, "Permission denied.")
		return nil
	}
	if !s.hasDataMode() {
		s.reply(StatusCantOpenDataConnection, "Use PORT or PASV first.")
		return nil
	}

	s.reply(StatusFileStatusOK, "Opening data connection.")
	dataConn, err := s.dataConn()
	if err != nil {
		s.reply(StatusCantOpenDataConnection, "Can't open data connection: %s", err)
		return nil
	}
	defer dataConn.Close()

	var w io.Writer = dataConn
	if s.transferType == "A" {
		w = newASCIIWriter(dataConn)
	}
	if _, err := s.ftpServer.FsHandler.ReadFile(fileName, w); err != nil {
		s.reply(StatusFileUnavailable, "Error reading the file: %s", err)
		return nil
	}
	s.reply(StatusClosingDataConnection, "Transfer complete")
	return nil
}

// SaveCommand handles STOR and APPE: receive a file from the client over
// the data channel.
func (s *Session) SaveCommand(cmd, arg string) error {
	defer s.closeDataConn()

	fileName, err := s.resolvePath(arg)
	if err != nil {
		s.reply(StatusFileUnavailable, "Access denied: %s", err)
		return nil
	}
	appendOnly := cmd == "APPE"
	perm := users.PermWrite
	if appendOnly {
		perm = users.PermAppend
	}
	if !s.userInfo.Can(perm) {
		s.reply(StatusFileUnavailable, "Permission denied.")
		return nil
	}
	if !s.hasDataMode() {
		s.reply(StatusCantOpenDataConnection, "Use PORT or PASV first.")
		return nil
	}

	s.reply(StatusFileStatusOK, "Opening data connection.")
	dataConn, err := s.dataConn()
	if err != nil {
		s.reply(StatusCantOpenDataConnection, "Can't open data connection: %s", err)
		return nil
	}
	defer dataConn.Close()

	if err := s.ftpServer.FsHandler.WriteFile(fileName, dataConn, s.transferType, appendOnly); err != nil {
		s.reply(StatusFileUnavailable, "Error writing to the file: %s", err)
		return nil
	}
	s.reply(StatusClosingDataConnection, "Transfer complete")
	return nil
}

// RemoveCommand handles DELE.
func (s *Session) RemoveCommand(cmd, arg string) error {
	fileName, err := s.resolvePath(arg)
	if err != nil {
		s.reply(StatusFileUnavailable, "Access denied: %s", err)
		return nil
	}
	if !s.userInfo.Can(users.PermDelete) {
		s.reply(StatusFileUnavailable, "Permission denied.")
		return nil
	}
	if err := s.ftpServer.FsHandler.Remove(fileName); err != nil {
		s.reply(StatusFileUnavailable, "Error deleting file: %s", err)
		return nil
	}
	s.reply(StatusFileActionOK, "File deleted.")
	return nil
}

// MakeDirCommand handles MKD and XMKD.
func (s *Session) MakeDirCommand(cmd, arg string) error {
	if arg == "" {
		s.reply(StatusSyntaxErrorInParameters, "No directory name given")
		return nil
	}
	dirName, err := s.resolvePath(arg)
	if err != nil {
		s.reply(StatusFileUnavailable, "Access denied: %s", err)
		return nil
	}
	if !s.userInfo.Can(users.PermMakeDir) {
		s.reply(StatusFileUnavailable, "Permission denied.")
		return nil
	}
	if err := s.ftpServer.FsHandler.MakeDir(dirName); err != nil {
		s.reply(StatusFileUnavailable, "Error creating directory: %s", err)
		return nil
	}
	s.reply(StatusPathnameCreated, "%q created", dirName)
	return nil
}

// RemoveDirCommand handles RMD and XRMD.
func (s *Session) RemoveDirCommand(cmd, arg string) error {
	if arg == "" {
		s.reply(StatusSyntaxErrorInParameters, "No directory name given")
		return nil
	}
	dirName, err := s.resolvePath(arg)
	if err != nil {
		s.reply(StatusFileUnavailable, "Access denied: %s", err)
		return nil
	}
	if !s.userInfo.Can(users.PermDelete) {
		s.reply(StatusFileUnavailable, "Permission denied.")
		return nil
	}
	if err := s.ftpServer.FsHandler.RemoveDir(dirName); err != nil {
		s.reply(StatusFileUnavailable, "Error removing directory: %s", err)
		return nil
	}
	s.reply(StatusFileActionOK, "Directory removed.")
	return nil
}

// RenameFromCommand handles RNFR, the first half of a rename.
func (s *Session) RenameFromCommand(cmd, arg string) error {
	if arg == "" {
		s.reply(StatusSyntaxErrorInParameters, "No file specified")
		return nil
	}
	fileName, err := s.resolvePath(arg)
	if err != nil {
		s.reply(StatusFileUnavailable, "Access denied: %s", err)
		return nil
	}
	if !s.userInfo.Can(users.PermRename) {
		s.reply(StatusFileUnavailable, "Permission denied.")
		return nil
	}
	if _, _, err := s.ftpServer.FsHandler.Stat(fileName); err != nil {
		s.reply(StatusFileUnavailable, "Error getting file info: %s", err)
		return nil
	}
	s.renamingFile = fileName
	s.reply(StatusFileActionPending, "File exists, ready for destination name")
	return nil
}

// RenameToCommand handles RNTO, completing the rename started by RNFR.
func (s *Session) RenameToCommand(cmd, arg string) error {
	if arg == "" {
		s.reply(StatusSyntaxErrorInParameters, "No file specified")
		return nil
	}
	if s.renamingFile == "" {
		s.reply(StatusBadSequenceOfCommands, "Send RNFR first")
		return nil
	}
	newFileName, err := s.resolvePath(arg)
	if err != nil {
		s.reply(StatusFileUnavailable, "Access denied: %s", err)
		return nil
	}
	defer func() { s.renamingFile = "" }()
	if err := s.ftpServer.FsHandler.Rename(s.renamingFile, newFileName); err != nil {
		s.reply(StatusFileUnavailable, "Error renaming file: %s", err)
		return nil
	}
	s.reply(StatusFileActionOK, "File renamed successfully.")
	return nil
}

// CloseCommand handles QUIT.
func (s *Session) CloseCommand(cmd, arg string) error {
	s.reply(StatusServiceClosingControlConnection, "Goodbye.")
	return errSessionClosed
}

// UnknownCommand answers any verb the dispatcher does not recognize.
// The session state is left untouched.
func (s *Session) UnknownCommand(cmd, arg string) error {
	s.reply(StatusSyntaxError, "Unknown command. %s", strings.TrimSpace(cmd+" "+arg))
	return nil
}
