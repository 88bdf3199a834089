// Package errors provides structured error handling for the runtime.
// It defines error types that map to JSON-RPC error codes, sentinel errors
// for the session and transport failure taxonomy, and context for debugging.
package errors

import (
	"encoding/json"
	"time"
)

// Category groups error codes for handling and metrics labels.
type Category string

const (
	CategoryValidation Category = "validation"
	CategoryNotFound   Category = "not_found"
	CategoryTransport  Category = "transport"
	CategoryInternal   Category = "internal"
	CategoryTimeout    Category = "timeout"
	CategoryCancelled  Category = "cancelled"
	CategoryProtocol   Category = "protocol"
	CategorySession    Category = "session"
)

// Severity indicates how critical an error is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Context records where an error was raised.
type Context struct {
	RequestID string    `json:"request_id,omitempty"`
	Method    string    `json:"method,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`
}

// MCPError is the structured error returned by the session, transport and
// server packages. Category and severity are derived from the code registry.
// The With* methods return copies and never mutate the receiver.
type MCPError interface {
	error

	Code() int
	Message() string
	Details() string
	Data() interface{}
	Category() Category
	Severity() Severity
	Context() *Context

	WithContext(ctx *Context) MCPError
	WithDetail(detail string) MCPError
	WithData(data interface{}) MCPError

	Unwrap() error
	ToJSON() map[string]interface{}
}

type runtimeError struct {
	code    int
	message string
	details string
	data    interface{}
	context *Context
	cause   error
	// kind is the sentinel matched by errors.Is, if any
	kind error
}

func (e *runtimeError) Error() string {
	if e.details != "" {
		return e.message + ": " + e.details
	}
	return e.message
}

func (e *runtimeError) Code() int          { return e.code }
func (e *runtimeError) Message() string    { return e.message }
func (e *runtimeError) Details() string    { return e.details }
func (e *runtimeError) Data() interface{}  { return e.data }
func (e *runtimeError) Category() Category { return GetErrorCodeCategory(e.code) }
func (e *runtimeError) Severity() Severity { return GetErrorCodeSeverity(e.code) }
func (e *runtimeError) Context() *Context  { return e.context }
func (e *runtimeError) Unwrap() error      { return e.cause }

// Is matches the sentinel the error was built for; the cause chain is
// walked separately through Unwrap.
func (e *runtimeError) Is(target error) bool {
	return e.kind != nil && e.kind == target
}

func (e *runtimeError) WithContext(ctx *Context) MCPError {
	cp := *e
	if ctx != nil && ctx.Timestamp.IsZero() {
		c := *ctx
		c.Timestamp = time.Now()
		ctx = &c
	}
	cp.context = ctx
	return &cp
}

func (e *runtimeError) WithDetail(detail string) MCPError {
	cp := *e
	if cp.details == "" {
		cp.details = detail
	} else {
		cp.details = cp.details + "; " + detail
	}
	return &cp
}

func (e *runtimeError) WithData(data interface{}) MCPError {
	cp := *e
	cp.data = data
	return &cp
}

func (e *runtimeError) ToJSON() map[string]interface{} {
	out := map[string]interface{}{
		"code":     e.code,
		"name":     GetErrorCodeName(e.code),
		"message":  e.message,
		"category": string(e.Category()),
		"severity": string(e.Severity()),
	}
	if e.details != "" {
		out["details"] = e.details
	}
	if e.data != nil {
		out["data"] = e.data
	}
	if e.context != nil {
		out["context"] = e.context
	}
	if e.cause != nil {
		out["cause"] = e.cause.Error()
	}
	return out
}

func (e *runtimeError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToJSON())
}

func build(kind, cause error, code int, message string) *runtimeError {
	return &runtimeError{
		code:    code,
		message: message,
		cause:   cause,
		kind:    kind,
		context: &Context{Timestamp: time.Now()},
	}
}

// NewError creates an MCPError for code.
func NewError(code int, message string) MCPError {
	return build(nil, nil, code, message)
}

// WrapError wraps err as an MCPError for code. err stays reachable through
// errors.Is and errors.As.
func WrapError(err error, code int, message string) MCPError {
	return build(nil, err, code, message)
}

// AsMCPError extracts an MCPError from anywhere in the error chain
func AsMCPError(err error) (MCPError, bool) {
	if err == nil {
		return nil, false
	}
	var mcpErr MCPError
	if As(err, &mcpErr) {
		return mcpErr, true
	}
	return nil, false
}

// IsCategory checks if an error is of a specific category
func IsCategory(err error, category Category) bool {
	if mcpErr, ok := AsMCPError(err); ok {
		return mcpErr.Category() == category
	}
	return false
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code int) bool {
	if mcpErr, ok := AsMCPError(err); ok {
		return mcpErr.Code() == code
	}
	return false
}
