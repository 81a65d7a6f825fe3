// Package logs is a thin slog wrapper shared by the library, the gateway and
// the demo backend.
package logs

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps "debug", "info", "warn" or "error" to a LogLevel. Anything
// else is LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type Logger struct {
	slogger *slog.Logger
}

type LogOption func(*logConfig)

type logConfig struct {
	level      LogLevel
	output     io.Writer
	jsonFormat bool
}

func WithLevel(level LogLevel) LogOption {
	return func(c *logConfig) { c.level = level }
}

func WithOutput(w io.Writer) LogOption {
	return func(c *logConfig) { c.output = w }
}

// WithJSONFormat switches between JSON (default) and slog's text format.
func WithJSONFormat(enabled bool) LogOption {
	return func(c *logConfig) { c.jsonFormat = enabled }
}

// New builds a logger writing JSON at info level to stdout unless overridden.
func New(opts ...LogOption) *Logger {
	conf := &logConfig{
		level:      LevelInfo,
		output:     os.Stdout,
		jsonFormat: true,
	}
	for _, opt := range opts {
		opt(conf)
	}

	handlerOpts := &slog.HandlerOptions{Level: conf.level.slogLevel()}

	var handler slog.Handler
	if conf.jsonFormat {
		handler = slog.NewJSONHandler(conf.output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(conf.output, handlerOpts)
	}

	return &Logger{slogger: slog.New(handler)}
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return New(WithOutput(io.Discard))
}

var defaultLogger atomic.Pointer[Logger]

// Default returns the process logger, creating a stdout JSON one on first use.
func Default() *Logger {
	if l := defaultLogger.Load(); l != nil {
		return l
	}
	defaultLogger.CompareAndSwap(nil, New())
	return defaultLogger.Load()
}

func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

func (l *Logger) Debug(msg string, args ...any) { l.slogger.Debug(msg, args...) }

func (l *Logger) Info(msg string, args ...any) { l.slogger.Info(msg, args...) }

func (l *Logger) Warn(msg string, args ...any) { l.slogger.Warn(msg, args...) }

func (l *Logger) Error(msg string, args ...any) { l.slogger.Error(msg, args...) }

// With returns a child logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slogger: l.slogger.With(args...)}
}
