package logging

import (
	"fmt"
	"sync"
)

// RetryableHTTPLogger adapts a Logger to the leveled logger interface of
// go-retryablehttp. Key-value pairs are turned into fields.
type RetryableHTTPLogger struct {
	logger Logger
}

// NewRetryableHTTPLogger creates an adapter tagged with the given component
func NewRetryableHTTPLogger(logger Logger, component string) *RetryableHTTPLogger {
	return &RetryableHTTPLogger{logger: logger.WithFields(String("component", component))}
}

// Error implements retryablehttp.LeveledLogger
func (a *RetryableHTTPLogger) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, kvFields(keysAndValues)...)
}

// Info implements retryablehttp.LeveledLogger
func (a *RetryableHTTPLogger) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, kvFields(keysAndValues)...)
}

// Debug implements retryablehttp.LeveledLogger
func (a *RetryableHTTPLogger) Debug(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, kvFields(keysAndValues)...)
}

// Warn implements retryablehttp.LeveledLogger
func (a *RetryableHTTPLogger) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn(msg, kvFields(keysAndValues)...)
}

func kvFields(kv []interface{}) []Field {
	fields := make([]Field, 0, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 >= len(kv) {
			fields = append(fields, Any("extra", kv[i]))
			break
		}
		fields = append(fields, Any(key, kv[i+1]))
	}
	return fields
}

var (
	globalMu     sync.RWMutex
	globalLogger = New(nil, FormatJSON)
)

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// OrGlobal returns logger, or the global logger when logger is nil
func OrGlobal(logger Logger) Logger {
	if logger != nil {
		return logger
	}
	return GetGlobalLogger()
}
