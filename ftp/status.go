// Description: FTP package
// This package contains the FTP server engine: the listener, the per
// connection session state machine, the command dispatcher and the data
// channel manager with its passive port pool.
// It also contains the FTP status codes used on the control channel.

package ftp

// StatusCode is a type for FTP status codes
type StatusCode = int

const (
	// Informational codes (1xx)
	StatusRestartMarkerReply        StatusCode = 110 // Restart marker reply
	StatusServiceReadyInMinutes     StatusCode = 120 // Service ready in nnn minutes
	StatusDataConnectionAlreadyOpen StatusCode = 125 // Data connection already open; transfer starting
	StatusFileStatusOK              StatusCode = 150 // File status okay; about to open data connection

	// Success codes (2xx)
	StatusCommandOK                       StatusCode = 200 // Command okay
	StatusCommandNotImplemented           StatusCode = 202 // Command not implemented, superfluous at this site
	StatusSystemStatus                    StatusCode = 211 // System status, or system help reply
	StatusDirectoryStatus                 StatusCode = 212 // Directory status
	StatusFileStatus                      StatusCode = 213 // File status
	StatusHelpMessage                     StatusCode = 214 // Help message
	StatusNameSystemType                  StatusCode = 215 // NAME system type
	StatusServiceReadyForNewUser          StatusCode = 220 // Service ready for new user
	StatusServiceClosingControlConnection StatusCode = 221 // Service closing control connection
	StatusDataConnectionOpen              StatusCode = 225 // Data connection open; no transfer in progress
	StatusClosingDataConnection           StatusCode = 226 // Closing data connection; requested file action successful
	StatusEnteringPassiveMode             StatusCode = 227 // Entering Passive Mode (h1,h2,h3,h4,p1,p2)
	StatusEnteringExtendedPassiveMode     StatusCode = 229 // Entering Extended Passive Mode (|||port|)
	StatusUserLoggedIn                    StatusCode = 230 // User logged in, proceed
	StatusSecurityExchangeOK              StatusCode = 234 // Server accepts authentication method/security mechanism
	StatusFileActionOK                    StatusCode = 250 // Requested file action okay, completed
	StatusPathnameCreated                 StatusCode = 257 // "PATHNAME" created

	// Intermediate codes (3xx)
	StatusUserNameOK          StatusCode = 331 // User name okay, need password
	StatusNeedAccountForLogin StatusCode = 332 // Need account for login
	StatusFileActionPending   StatusCode = 350 // Requested file action pending further information

	// Transient Negative Completion codes (4xx)
	StatusServiceNotAvailable             StatusCode = 421 // Service not available, closing control connection
	StatusCantOpenDataConnection          StatusCode = 425 // Can't open data connection
	StatusConnectionClosedTransferAborted StatusCode = 426 // Connection closed; transfer aborted
	StatusInvalidUsernameOrPassword       StatusCode = 430 // Invalid username or password
	StatusRequestedFileActionNotTaken     StatusCode = 450 // Requested file action not taken
	StatusLocalProcessingError            StatusCode = 451 // Requested action aborted: local error in processing
	StatusInsufficientStorage             StatusCode = 452 // Requested action not taken; insufficient storage space

	// Permanent Negative Completion codes (5xx)
	StatusSyntaxError                   StatusCode = 500 // Syntax error, command unrecognized
	StatusSyntaxErrorInParameters       StatusCode = 501 // Syntax error in parameters or arguments
	StatusCommandNotImplementedYet      StatusCode = 502 // Command not implemented
	StatusBadSequenceOfCommands         StatusCode = 503 // Bad sequence of commands
	StatusCommandNotImplementedForParam StatusCode = 504 // Command not implemented for that parameter
	StatusNotLoggedIn                   StatusCode = 530 // Not logged in
	StatusProtLevelNotSupported         StatusCode = 536 // Requested PROT level not supported
	StatusFileUnavailable               StatusCode = 550 // Requested action not taken; File unavailable
	StatusExceededStorageAllocation     StatusCode = 552 // Requested file action aborted; exceeded storage allocation
	StatusFileNameNotAllowed            StatusCode = 553 // Requested action not taken; file name not allowed
)

var statusText = map[StatusCode]string{
	110: "StatusRestartMarkerReply",
	120: "StatusServiceReadyInMinutes",
	125: "StatusDataConnectionAlreadyOpen",
	150: "StatusFileStatusOK",
	200: "StatusCommandOK",
	202: "StatusCommandNotImplemented",
	211: "StatusSystemStatus",
	212: "StatusDirectoryStatus",
	213: "StatusFileStatus",
	214: "StatusHelpMessage",
	215: "StatusNameSystemType",
	220: "StatusServiceReadyForNewUser",
	221: "StatusServiceClosingControlConnection",
	225: "StatusDataConnectionOpen",
	226: "StatusClosingDataConnection",
	227: "StatusEnteringPassiveMode",
	229: "StatusEnteringExtendedPassiveMode",
	230: "StatusUserLoggedIn",
	234: "StatusSecurityExchangeOK",
	250: "StatusFileActionOK",
	257: "StatusPathnameCreated",
	331: "StatusUserNameOK",
	332: "StatusNeedAccountForLogin",
	350: "StatusFileActionPending",
	421: "StatusServiceNotAvailable",
	425: "StatusCantOpenDataConnection",
	426: "StatusConnectionClosedTransferAborted",
	430: "StatusInvalidUsernameOrPassword",
	450: "StatusRequestedFileActionNotTaken",
	451: "StatusLocalProcessingError",
	452: "StatusInsufficientStorage",
	500: "StatusSyntaxError",
	501: "StatusSyntaxErrorInParameters",
	502: "StatusCommandNotImplementedYet",
	503: "StatusBadSequenceOfCommands",
	504: "StatusCommandNotImplementedForParam",
	530: "StatusNotLoggedIn",
	536: "StatusProtLevelNotSupported",
	550: "StatusFileUnavailable",
	552: "StatusExceededStorageAllocation",
	553: "StatusFileNameNotAllowed",
}

// StatusText returns the symbolic name of a status code, or "" if unknown.
func StatusText(code StatusCode) string {
	return statusText[code]
}
