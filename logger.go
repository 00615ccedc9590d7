package mcpsession

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger defines the interface for logging operations
type Logger interface {
	// Errorf logs an error message with formatting
	Errorf(format string, args ...interface{})
	// Debugf logs a diagnostic message with formatting
	Debugf(format string, args ...interface{})
}

// StdLogger is a simple logger that writes errors to an io.Writer
type StdLogger struct {
	writer io.Writer
	debug  bool
}

// Errorf implements Logger.Errorf by writing a formatted error message to the writer
func (l *StdLogger) Errorf(format string, args ...interface{}) {
	if l.writer != nil {
		fmt.Fprintf(l.writer, format+"\n", args...)
	}
}

// Debugf writes only when the logger was created with debug enabled
func (l *StdLogger) Debugf(format string, args ...interface{}) {
	if l.debug && l.writer != nil {
		fmt.Fprintf(l.writer, format+"\n", args...)
	}
}

// NewStdLogger creates a new StdLogger with the specified writer
// If writer is nil, os.Stderr is used as the default
func NewStdLogger(writer io.Writer) *StdLogger {
	if writer == nil {
		writer = os.Stderr
	}
	return &StdLogger{writer: writer}
}

// NewDebugLogger creates a StdLogger that also emits debug messages
func NewDebugLogger(writer io.Writer) *StdLogger {
	ret := NewStdLogger(writer)
	ret.debug = true
	return ret
}

type nopLogger struct{}

func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// NopLogger discards everything
var NopLogger Logger = nopLogger{}

// SlogLogger adapts a *slog.Logger
type SlogLogger struct {
	logger *slog.Logger
}

func (l *SlogLogger) Errorf(format string, args ...interface{}) {
	l.logger.Log(context.Background(), slog.LevelError, fmt.Sprintf(format, args...))
}

func (l *SlogLogger) Debugf(format string, args ...interface{}) {
	if !l.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	l.logger.Log(context.Background(), slog.LevelDebug, fmt.Sprintf(format, args...))
}

// NewSlogLogger creates a Logger backed by slog; nil falls back to slog.Default()
func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogLogger{logger: logger}
}

// DefaultLogger is the default logger instance that writes to os.Stderr
var DefaultLogger Logger = NewStdLogger(os.Stderr)
