// Package transport moves JSON-RPC messages between two peers.
//
// A Transport is a bidirectional message channel: Send writes one message,
// Receive yields the next inbound message, and Close ends both directions.
// The session layer owns the single reader and serializes its writes.
//
// # Transports
//
// StdioTransport frames messages as newline-delimited JSON over any reader
// and writer pair. A server uses it on its own stdin and stdout.
//
// CommandTransport launches a server process from a command and argument
// list and speaks to it over the process's stdio. The child's stderr is
// forwarded to the logger.
//
// StreamableHTTPClientTransport posts each message to a single endpoint. The
// server answers with one JSON message or with a server-sent event stream of
// every message related to the request. A separate GET stream carries
// messages the server initiates. Dropped streams resume from the last event
// id the client saw.
//
// # Usage
//
//	t := transport.NewStdioTransport(os.Stdin, os.Stdout)
//	defer t.Close()
//
//	msg, err := t.Receive(ctx)
//	if err != nil {
//		if errors.Is(err, mcperrors.ErrTransportClosed) {
//			return nil
//		}
//		var decodeErr *protocol.DecodeError
//		if errors.As(err, &decodeErr) {
//			// framing is intact, keep reading
//		}
//	}
package transport
