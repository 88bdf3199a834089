// Package auth gates the HTTP endpoint behind static bearer tokens or API
// keys.
package auth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Rheron1848/mcprt/pkg/logging"
)

// HeaderAPIKey carries an API key when no Authorization header is sent
const HeaderAPIKey = "X-API-Key"

// Common authentication error codes
const (
	ErrAuthRequired = "authentication_required"
	ErrTokenInvalid = "token_invalid"
)

// AuthError represents an authentication failure
type AuthError struct {
	// Code is the error code (e.g. "token_invalid")
	Code string

	// Message provides human-readable error details
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return e.Message
}

// NewAuthError creates a new authentication error.
func NewAuthError(code, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

// TokenSet validates presented credentials against a fixed list
type TokenSet struct {
	tokens []string
}

// NewTokenSet creates a validator accepting any of tokens. Empty entries
// are ignored.
func NewTokenSet(tokens ...string) *TokenSet {
	ts := &TokenSet{}
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			ts.tokens = append(ts.tokens, t)
		}
	}
	return ts
}

// Len returns the number of accepted tokens
func (ts *TokenSet) Len() int {
	return len(ts.tokens)
}

// Validate reports whether token is one of the accepted tokens. Every entry
// is compared in constant time.
func (ts *TokenSet) Validate(token string) error {
	if token == "" {
		return NewAuthError(ErrAuthRequired, "authentication required")
	}
	ok := false
	for _, accepted := range ts.tokens {
		if compareTokens(accepted, token) {
			ok = true
		}
	}
	if !ok {
		return NewAuthError(ErrTokenInvalid, "invalid token")
	}
	return nil
}

func compareTokens(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// TokenFromRequest extracts a bearer token or API key from r
func TokenFromRequest(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		lower := strings.ToLower(authz)
		switch {
		case strings.HasPrefix(lower, "bearer "):
			return strings.TrimSpace(authz[7:])
		case strings.HasPrefix(lower, "apikey "):
			return strings.TrimSpace(authz[7:])
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get(HeaderAPIKey))
}

// Middleware rejects requests without an accepted token with 401. CORS
// preflight requests pass through untouched.
func Middleware(ts *TokenSet, logger logging.Logger) func(http.Handler) http.Handler {
	logger = logging.OrGlobal(logger).WithFields(logging.String("component", "auth"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if err := ts.Validate(TokenFromRequest(r)); err != nil {
				code := ErrTokenInvalid
				if authErr, ok := err.(*AuthError); ok {
					code = authErr.Code
				}
				logger.Debug("Rejected request", logging.String("code", code), logging.String("remote", r.RemoteAddr))
				w.Header().Set("WWW-Authenticate", `Bearer realm="mcprt"`)
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(contextWithAuthenticated(r.Context())))
		})
	}
}

type contextKey string

const contextKeyAuthenticated contextKey = "mcprt_authenticated"

func contextWithAuthenticated(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKeyAuthenticated, true)
}

// Authenticated reports whether ctx passed through Middleware
func Authenticated(ctx context.Context) bool {
	ok, _ := ctx.Value(contextKeyAuthenticated).(bool)
	return ok
}
