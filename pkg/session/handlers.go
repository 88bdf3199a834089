package session

import (
	"context"
	"encoding/json"

	"github.com/Rheron1848/mcprt/pkg/protocol"
)

// RequestHandler serves one inbound request. The returned value is marshaled
// as the result. Returning a *protocol.Error sends it to the peer unchanged;
// any other error is mapped to an error object.
type RequestHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// NotificationHandler serves one inbound notification. Errors are logged.
type NotificationHandler func(ctx context.Context, params json.RawMessage) error

// InitializeHandler negotiates an inbound initialize request
type InitializeHandler func(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error)

// Typed adapts a function with typed params and result to a RequestHandler.
// Params that do not decode into P are answered with InvalidParams.
func Typed[P, R any](fn func(ctx context.Context, params P) (R, error)) RequestHandler {
	return func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
		var params P
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		return fn(ctx, params)
	}
}

// TypedNotification adapts a function with typed params to a
// NotificationHandler.
func TypedNotification[P any](fn func(ctx context.Context, params P) error) NotificationHandler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var params P
		if err := decodeParams(raw, &params); err != nil {
			return err
		}
		return fn(ctx, params)
	}
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return protocol.Errorf(protocol.InvalidParams, "invalid params: %v", err)
	}
	return nil
}

type sessionKey struct{}

func withSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session serving the handler that received ctx
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}
