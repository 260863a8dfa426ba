// Package tools holds small I/O helpers shared by the servers, mainly
// slog-backed wire tracing for debugging protocol exchanges.
package tools

import (
	"bufio"
	"io"
	"log/slog"
)

// LogReader logs everything read through it at Debug level.
type LogReader struct {
	Reader io.Reader
	logger *slog.Logger
}

func NewLogReader(r io.Reader, logger *slog.Logger) *LogReader {
	return &LogReader{Reader: r, logger: logger}
}

func (rw *LogReader) Read(b []byte) (int, error) {
	n, err := rw.Reader.Read(b)
	if rw.logger != nil && n > 0 { // log only what was actually read
		rw.logger.Debug("Request", "body", string(b[:n]))
	}
	return n, err
}

// LogWriter logs everything written through it at Debug level.
type LogWriter struct {
	Writer io.Writer
	logger *slog.Logger
}

func NewLogWriter(w io.Writer, logger *slog.Logger) *LogWriter {
	return &LogWriter{Writer: w, logger: logger}
}

func (rw *LogWriter) Write(b []byte) (int, error) {
	if rw.logger != nil {
		rw.logger.Debug("Respond", "body", string(b))
	}
	return rw.Writer.Write(b)
}

// LogReadWriter traces both directions of a connection.
type LogReadWriter struct {
	ReadWriter io.ReadWriter
	logger     *slog.Logger
}

// NewLogReadWriter creates a new LogReadWriter.
func NewLogReadWriter(rw io.ReadWriter, logger *slog.Logger) *LogReadWriter {
	return &LogReadWriter{ReadWriter: rw, logger: logger}
}

func (rw *LogReadWriter) Read(b []byte) (int, error) {
	n, err := rw.ReadWriter.Read(b)
	if rw.logger != nil && n > 0 {
		rw.logger.Debug("Request", "body", string(b[:n]))
	}
	return n, err
}

func (rw *LogReadWriter) Write(b []byte) (int, error) {
	if rw.logger != nil {
		rw.logger.Debug("Respond", "body", string(b))
	}
	return rw.ReadWriter.Write(b)
}

// BufLogReadWriter couples a buffered, traced reader with a traced
// writer. Reads are buffered so callers get ReadString and friends;
// writes go straight through so replies are never held back.
type BufLogReadWriter struct {
	io.Writer
	*bufio.Reader
}

// NewBufLogReadWriter wraps rw with Debug-level wire tracing on both
// directions.
func NewBufLogReadWriter(rw io.ReadWriter, logger *slog.Logger) *BufLogReadWriter {
	traced := &LogReadWriter{ReadWriter: rw, logger: logger}
	return &BufLogReadWriter{
		Reader: bufio.NewReader(traced),
		Writer: traced,
	}
}
