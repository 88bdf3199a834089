package errors

import stderrors "errors"

// Sentinels for the failure taxonomy. Structured errors built by this package
// match them with Is, so callers can branch without type assertions:
//
//	if errors.Is(err, errors.ErrSessionClosed) { ... }
var (
	ErrTransportClosed          = stderrors.New("transport closed")
	ErrSessionClosed            = stderrors.New("session closed")
	ErrCancelled                = stderrors.New("request cancelled")
	ErrNotInitialized           = stderrors.New("session not initialized")
	ErrInitializationFailed     = stderrors.New("initialization failed")
	ErrHandlerAlreadyRegistered = stderrors.New("handler already registered")
	ErrStreamUnresumable        = stderrors.New("stream unresumable")
	ErrProtocolViolation        = stderrors.New("protocol violation")
)

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return stderrors.New(text)
}
