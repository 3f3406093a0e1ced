package log

import (
	"io"
	"os"

	"github.com/kataras/golog"
)

const defaultPrefix = "[kgqa] "

// GologLogger implements Logger interface using kataras/golog
type GologLogger struct {
	logger *golog.Logger
	level  LogLevel
}

var _ Logger = (*GologLogger)(nil)

// NewGologLogger wraps an existing golog.Logger at info level.
func NewGologLogger(logger *golog.Logger) *GologLogger {
	l := &GologLogger{logger: logger}
	l.SetLevel(LogLevelInfo)
	return l
}

// NewDefault creates a golog logger writing to stderr with the kgqa prefix.
func NewDefault(level LogLevel) *GologLogger {
	return NewWriter(os.Stderr, level)
}

// NewWriter creates a golog logger writing to out.
func NewWriter(out io.Writer, level LogLevel) *GologLogger {
	g := golog.New()
	g.SetOutput(out)
	g.SetPrefix(defaultPrefix)
	l := &GologLogger{logger: g}
	l.SetLevel(level)
	return l
}

// Debug logs debug messages
func (l *GologLogger) Debug(format string, v ...any) {
	if l.level <= LogLevelDebug {
		l.logger.Debugf(format, v...)
	}
}

// Info logs informational messages
func (l *GologLogger) Info(format string, v ...any) {
	if l.level <= LogLevelInfo {
		l.logger.Infof(format, v...)
	}
}

// Warn logs warning messages
func (l *GologLogger) Warn(format string, v ...any) {
	if l.level <= LogLevelWarn {
		l.logger.Warnf(format, v...)
	}
}

// Error logs error messages
func (l *GologLogger) Error(format string, v ...any) {
	if l.level <= LogLevelError {
		l.logger.Errorf(format, v...)
	}
}

// SetLevel sets the log level on both this wrapper and the golog instance.
func (l *GologLogger) SetLevel(level LogLevel) {
	l.level = level

	gologLevel := "info"
	switch level {
	case LogLevelDebug:
		gologLevel = "debug"
	case LogLevelWarn:
		gologLevel = "warn"
	case LogLevelError:
		gologLevel = "error"
	case LogLevelNone:
		gologLevel = "disable"
	}

	l.logger.SetLevel(gologLevel)
}

// GetLevel returns the current log level
func (l *GologLogger) GetLevel() LogLevel {
	return l.level
}

// Golog exposes the underlying golog.Logger.
func (l *GologLogger) Golog() *golog.Logger {
	return l.logger
}
