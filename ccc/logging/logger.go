package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

type LogLevel string

const (
	// LogLevelDebug is used for debug messages
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo is used for informational messages
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn is used for warning messages
	LogLevelWarn LogLevel = "warn"
	// LogLevelError is used for error messages
	LogLevelError LogLevel = "error"
)

// ParseLogLevel maps a config string onto a LogLevel, falling back to info.
func ParseLogLevel(s string) LogLevel {
	switch LogLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LogLevelDebug:
		return LogLevelDebug
	case LogLevelWarn:
		return LogLevelWarn
	case LogLevelError:
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) zerologLevel() zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// zerologLogger adapts a zerolog.Logger to the Logger interface.
// args are alternating key/value pairs.
type zerologLogger struct {
	z zerolog.Logger
}

// NewLogger wraps w in a Logger emitting JSON lines at the given level.
func NewLogger(logLevel LogLevel, w io.Writer) Logger {
	z := zerolog.New(w).Level(logLevel.zerologLevel()).With().Timestamp().Logger()
	return &zerologLogger{z: z}
}

func (l *zerologLogger) Info(msg string, args ...any) {
	l.z.Info().Fields(args).Msg(msg)
}

func (l *zerologLogger) Warn(msg string, args ...any) {
	l.z.Warn().Fields(args).Msg(msg)
}

func (l *zerologLogger) Error(msg string, args ...any) {
	l.z.Error().Fields(args).Msg(msg)
}

func (l *zerologLogger) Debug(msg string, args ...any) {
	l.z.Debug().Fields(args).Msg(msg)
}

// CreateLogger creates a logger that writes to daily rotating log files.
// When console is true, human readable output is also written to stderr.
func CreateLogger(logLevel LogLevel, logDir string, fileName string, console bool) Logger {
	var writers []io.Writer
	if console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	// Create log directory if it doesn't exist
	if err := os.MkdirAll(logDir, 0755); err != nil {
		// Fallback to console logging if we can't create the log directory
		if !console {
			writers = append(writers, os.Stderr)
		}
		return NewLogger(logLevel, zerolog.MultiLevelWriter(writers...))
	}

	writers = append(writers, newDailyRotatingWriter(logDir, fileName))
	return NewLogger(logLevel, zerolog.MultiLevelWriter(writers...))
}

// nopLogger is a no-operation logger that implements the Logger interface.
type nopLogger struct{}

// NopLogger is a singleton Logger that performs no operations.
var NopLogger Logger = &nopLogger{}

func (l *nopLogger) Info(msg string, args ...any)  {}
func (l *nopLogger) Warn(msg string, args ...any)  {}
func (l *nopLogger) Error(msg string, args ...any) {}
func (l *nopLogger) Debug(msg string, args ...any) {}
