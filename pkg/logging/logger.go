// Package logging provides structured logging for the runtime.
// The Logger interface is implemented on top of zerolog and supports JSON and
// console output, log levels, and integration with error contexts.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
)

// Level represents the severity of a log message
type Level int

const (
	// DebugLevel is for detailed information useful for debugging
	DebugLevel Level = iota - 1
	// InfoLevel is for general informational messages
	InfoLevel
	// WarnLevel is for warning messages
	WarnLevel
	// ErrorLevel is for error messages
	ErrorLevel
	// FatalLevel is for fatal errors that will terminate the program
	FatalLevel
)

// String returns the string representation of a log level
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name such as "debug" or "WARN" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	case FatalLevel:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Format selects the output encoding
type Format string

const (
	// FormatJSON writes one JSON object per line
	FormatJSON Format = "json"
	// FormatConsole writes human-readable colored lines
	FormatConsole Format = "console"
)

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates a 64-bit integer field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// ErrorField creates an error field
func ErrorField(err error) Field {
	return Field{Key: "error", Value: err}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Time creates a time field
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Logger is the interface for structured logging
type Logger interface {
	// Debug logs a debug message with fields
	Debug(msg string, fields ...Field)
	// Info logs an info message with fields
	Info(msg string, fields ...Field)
	// Warn logs a warning message with fields
	Warn(msg string, fields ...Field)
	// Error logs an error message with fields
	Error(msg string, fields ...Field)
	// Fatal logs a fatal message with fields and exits
	Fatal(msg string, fields ...Field)

	// WithFields returns a new logger with additional fields
	WithFields(fields ...Field) Logger
	// WithContext returns a new logger with context fields
	WithContext(ctx context.Context) Logger
	// WithError returns a new logger with error context
	WithError(err error) Logger

	// SetLevel sets the minimum log level
	SetLevel(level Level)
	// GetLevel returns the current log level
	GetLevel() Level
}

// Config describes how to build a logger
type Config struct {
	Level  string
	Format Format
	Output io.Writer
}

// zeroLogger implements Logger on top of a zerolog.Logger
type zeroLogger struct {
	mu    sync.RWMutex
	zl    zerolog.Logger
	level Level
}

// New creates a structured logger writing to output. A nil output writes to
// stderr, so stdout stays free for protocol traffic.
func New(output io.Writer, format Format) Logger {
	if output == nil {
		output = os.Stderr
	}
	if format == FormatConsole {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: `2006-01-02 15:04:05`}
	}

	zl := zerolog.New(output).With().Timestamp().Logger().Level(InfoLevel.zerolog())
	return &zeroLogger{zl: zl, level: InfoLevel}
}

// NewFromConfig creates a logger from configuration values
func NewFromConfig(cfg Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	format := cfg.Format
	switch format {
	case "":
		format = FormatJSON
	case FormatJSON, FormatConsole:
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	logger := New(cfg.Output, format)
	logger.SetLevel(level)
	return logger, nil
}

// NewNop returns a logger that discards everything
func NewNop() Logger {
	return &zeroLogger{zl: zerolog.Nop(), level: FatalLevel}
}

// Debug logs a debug message
func (l *zeroLogger) Debug(msg string, fields ...Field) {
	l.log(l.logger().Debug(), msg, fields)
}

// Info logs an info message
func (l *zeroLogger) Info(msg string, fields ...Field) {
	l.log(l.logger().Info(), msg, fields)
}

// Warn logs a warning message
func (l *zeroLogger) Warn(msg string, fields ...Field) {
	l.log(l.logger().Warn(), msg, fields)
}

// Error logs an error message
func (l *zeroLogger) Error(msg string, fields ...Field) {
	l.log(l.logger().Error(), msg, fields)
}

// Fatal logs a fatal message and exits
func (l *zeroLogger) Fatal(msg string, fields ...Field) {
	l.log(l.logger().WithLevel(zerolog.FatalLevel), msg, fields)
	os.Exit(1)
}

func (l *zeroLogger) logger() *zerolog.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	zl := l.zl
	return &zl
}

func (l *zeroLogger) log(ev *zerolog.Event, msg string, fields []Field) {
	if ev == nil {
		return
	}
	for _, f := range fields {
		ev = appendField(ev, f)
	}
	ev.Msg(msg)
}

func appendField(ev *zerolog.Event, f Field) *zerolog.Event {
	switch v := f.Value.(type) {
	case string:
		return ev.Str(f.Key, v)
	case int:
		return ev.Int(f.Key, v)
	case int64:
		return ev.Int64(f.Key, v)
	case bool:
		return ev.Bool(f.Key, v)
	case time.Duration:
		return ev.Dur(f.Key, v)
	case time.Time:
		return ev.Time(f.Key, v)
	case error:
		return ev.AnErr(f.Key, v)
	case fmt.Stringer:
		return ev.Stringer(f.Key, v)
	default:
		return ev.Interface(f.Key, v)
	}
}

// WithFields returns a new logger with additional fields
func (l *zeroLogger) WithFields(fields ...Field) Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	kv := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		value := f.Value
		if err, ok := value.(error); ok && err != nil {
			value = err.Error()
		}
		kv = append(kv, f.Key, value)
	}

	return &zeroLogger{
		zl:    l.zl.With().Fields(kv).Logger(),
		level: l.level,
	}
}

// WithContext returns a new logger with context fields
func (l *zeroLogger) WithContext(ctx context.Context) Logger {
	var fields []Field

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, String("request_id", requestID))
	}
	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		fields = append(fields, String("session_id", sessionID))
	}

	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields...)
}

// WithError returns a new logger with error context
func (l *zeroLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	fields := []Field{ErrorField(err)}

	if mcpErr, ok := mcperrors.AsMCPError(err); ok {
		fields = append(fields,
			Int("error_code", mcpErr.Code()),
			String("error_category", string(mcpErr.Category())),
			String("error_severity", string(mcpErr.Severity())),
		)

		if ctx := mcpErr.Context(); ctx != nil {
			if ctx.RequestID != "" {
				fields = append(fields, String("request_id", ctx.RequestID))
			}
			if ctx.Component != "" {
				fields = append(fields, String("component", ctx.Component))
			}
			if ctx.Operation != "" {
				fields = append(fields, String("operation", ctx.Operation))
			}
		}
	}

	return l.WithFields(fields...)
}

// SetLevel sets the minimum log level
func (l *zeroLogger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.zl = l.zl.Level(level.zerolog())
}

// GetLevel returns the current log level
func (l *zeroLogger) GetLevel() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	sessionIDKey contextKey = "session_id"
)

// ContextWithRequestID returns a context with a request ID
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from a context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// ContextWithSessionID returns a context with a session ID
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext extracts the session ID from a context
func SessionIDFromContext(ctx context.Context) string {
	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}
