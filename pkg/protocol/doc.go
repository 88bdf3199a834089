// Package protocol defines the JSON-RPC 2.0 messages exchanged by sessions and
// the codec that turns them into bytes and back.
//
// # Messages
//
// A Message is one of three variants:
//
//   - *Request carries an id, a method and opaque params; it is answered by exactly one Response
//   - *Response carries the id of the request it answers and exactly one of a result or an Error
//   - *Notification carries a method and params and is never answered
//
// Params, results and error data are kept as json.RawMessage. The codec never
// interprets them.
//
// # Codec
//
// Encode produces compact JSON without raw newlines, which lets stream
// transports frame messages one per line. Decode classifies a frame by the
// fields it carries and reports anything that is not exactly one well-formed
// message as a *DecodeError:
//
//	msg, err := protocol.Decode(line)
//	var decodeErr *protocol.DecodeError
//	if errors.As(err, &decodeErr) {
//		// answer with decodeErr.Code() if decodeErr.ID is set
//	}
//
// # Error codes
//
// Codes between -32768 and -32000 are reserved for protocol errors such as
// ParseError, MethodNotFound or NotInitialized. Handlers report their own
// failures with codes outside that range, see NewApplicationError.
//
// # Handshake
//
// The initialize request carries InitializeParams and is answered with an
// InitializeResult:
//
//	{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"1.0","capabilities":{"progress":true},"clientInfo":{"name":"cli","version":"0.1.0"}}}
//	{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"1.0","capabilities":{"progress":true},"serverInfo":{"name":"mcprt","version":"0.1.0"}}}
//
// A requested version outside the responder's supported set fails the
// handshake; see NegotiateVersion.
package protocol
