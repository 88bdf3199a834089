package transport

import (
	"context"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
	"github.com/Rheron1848/mcprt/pkg/protocol"
)

// Transport moves whole JSON-RPC messages between two peers.
//
// Receive is a one-shot, finite sequence: it must be called by exactly one
// goroutine, and once the underlying stream ends it returns an error wrapping
// errors.ErrTransportClosed. A frame that cannot be decoded is reported as a
// *protocol.DecodeError and the sequence continues with the next frame.
//
// Send may be called from any goroutine. Writes are serialized so that frames
// never interleave, and a Send after Close fails with ErrTransportClosed.
type Transport interface {
	Send(ctx context.Context, msg protocol.Message) error
	Receive(ctx context.Context) (protocol.Message, error)
	Close() error
}

// PushStreamer is implemented by transports that can open a channel for
// messages the peer sends on its own initiative.
type PushStreamer interface {
	StartPushStream(ctx context.Context) error
}

// Degrader is implemented by transports that can lose part of their message
// history without closing.
type Degrader interface {
	Degraded() bool
}

// Type identifies a transport implementation in logs and metrics
type Type string

const (
	TypeStdio   Type = "stdio"
	TypeCommand Type = "command"
	TypeHTTP    Type = "http"
)

type relatedRequestKey struct{}

// ContextWithRelatedRequest marks ctx as belonging to the handling of the
// request with the given id. Transports that multiplex several streams use it
// to route outbound messages next to the request that caused them.
func ContextWithRelatedRequest(ctx context.Context, id protocol.RequestID) context.Context {
	return context.WithValue(ctx, relatedRequestKey{}, id)
}

// RelatedRequest returns the request id stored by ContextWithRelatedRequest
func RelatedRequest(ctx context.Context) (protocol.RequestID, bool) {
	id, ok := ctx.Value(relatedRequestKey{}).(protocol.RequestID)
	return id, ok && !id.IsZero()
}

// closedError builds the error Receive and Send return after the stream ended
func closedError(name Type, cause error) error {
	return mcperrors.TransportClosed(string(name), cause)
}
