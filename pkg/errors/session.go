package errors

import (
	"fmt"
	"strings"
)

// SessionClosed reports an operation on, or interrupted by, a closed session.
// cause is the reason the session closed and may be nil.
func SessionClosed(cause error) MCPError {
	err := build(ErrSessionClosed, cause, CodeSessionClosed, "session closed")
	if cause != nil && cause != ErrSessionClosed {
		return err.WithDetail(cause.Error())
	}
	return err
}

// Cancelled reports a call that was cancelled before its response arrived.
// cause is the context error.
func Cancelled(method string, cause error) MCPError {
	err := build(ErrCancelled, cause, CodeRequestCancelled, fmt.Sprintf("call to %s cancelled", method))
	if cause != nil {
		return err.WithDetail(cause.Error())
	}
	return err
}

// NotInitialized reports an operation attempted before the handshake completed.
func NotInitialized(method string) MCPError {
	return build(ErrNotInitialized, nil, CodeNotInitialized, fmt.Sprintf("cannot %s: session not initialized", method))
}

// InitializationFailed reports a failed handshake.
func InitializationFailed(reason string, cause error) MCPError {
	err := MCPError(build(ErrInitializationFailed, cause, CodeInitializationFailed, "initialization failed"))
	if reason != "" {
		err = err.WithDetail(reason)
	}
	if cause != nil {
		err = err.WithDetail(cause.Error())
	}
	return err
}

// HandlerAlreadyRegistered reports a duplicate or reserved handler registration.
func HandlerAlreadyRegistered(method string) MCPError {
	return build(ErrHandlerAlreadyRegistered, nil, CodeHandlerAlreadyRegistered, fmt.Sprintf("handler for %q already registered", method))
}

// ProtocolViolation reports a message the peer should not have sent.
func ProtocolViolation(reason string) MCPError {
	return build(ErrProtocolViolation, nil, CodeProtocolViolation, "protocol violation").WithDetail(reason)
}

// VersionMismatch reports a protocol version outside the supported set.
func VersionMismatch(requested string, supported []string) MCPError {
	return build(ErrInitializationFailed, nil, CodeVersionMismatch,
		fmt.Sprintf("protocol version %q not supported", requested)).
		WithData(map[string]interface{}{"requested": requested, "supported": supported}).
		WithDetail("supported versions: " + strings.Join(supported, ", "))
}

// InvalidSequence reports a message that is legal in general but not in the
// current session state.
func InvalidSequence(expected, actual string) MCPError {
	return NewError(CodeInvalidSequence, "invalid message sequence").
		WithDetail(fmt.Sprintf("expected %s, got %s", expected, actual))
}
