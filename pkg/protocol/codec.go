package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeErrorKind classifies why a frame could not be decoded.
type DecodeErrorKind int

const (
	// KindParse means the bytes were not valid JSON.
	KindParse DecodeErrorKind = iota
	// KindInvalid means the JSON did not have the shape of a message.
	KindInvalid
)

// DecodeError reports a frame that could not be turned into a Message.
type DecodeError struct {
	Kind   DecodeErrorKind
	Reason string
	// ID is set when the frame carried a readable request id, so the
	// receiver can address an error response to it.
	ID RequestID
	// Response is set when the frame had the shape of a response. Such a
	// frame is never answered; the peer is not waiting for a reply.
	Response bool
	Cause    error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode message: %s: %v", e.Reason, e.Cause)
	}
	return "decode message: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// Code returns the JSON-RPC code that answers this decode failure.
func (e *DecodeError) Code() ErrorCode {
	if e.Kind == KindParse {
		return ParseError
	}
	return InvalidRequest
}

// wireMessage is the on-the-wire shape shared by all message variants.
type wireMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *RequestID      `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Encode serializes a message as compact JSON. The output never contains a
// raw newline, so it can be framed by newlines.
func Encode(msg Message) ([]byte, error) {
	w := wireMessage{JSONRPC: JSONRPCVersion}

	switch m := msg.(type) {
	case *Request:
		if m.Method == "" {
			return nil, fmt.Errorf("encode request: empty method")
		}
		if m.ID.IsZero() {
			return nil, fmt.Errorf("encode request %q: null id", m.Method)
		}
		id := m.ID
		w.ID = &id
		w.Method = m.Method
		w.Params = m.Params
	case *Response:
		if (m.Result != nil) == (m.Error != nil) {
			return nil, fmt.Errorf("encode response %s: exactly one of result and error must be set", m.ID)
		}
		id := m.ID
		w.ID = &id
		w.Result = m.Result
		w.Error = m.Error
	case *Notification:
		if m.Method == "" {
			return nil, fmt.Errorf("encode notification: empty method")
		}
		w.Method = m.Method
		w.Params = m.Params
	case nil:
		return nil, fmt.Errorf("encode: nil message")
	default:
		return nil, fmt.Errorf("encode: unsupported message type %T", msg)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&w); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// decodeShape keeps the raw form of every field so presence can be told
// apart from absence.
type decodeShape struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  *string         `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// Decode parses one frame into a Message. Any structural problem, including a
// response that carries both or neither of result and error, is reported as a
// *DecodeError.
func Decode(data []byte) (Message, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, &DecodeError{Kind: KindParse, Reason: "empty frame"}
	}
	if trimmed[0] == '[' {
		return nil, &DecodeError{Kind: KindInvalid, Reason: "batch messages are not supported"}
	}
	if trimmed[0] != '{' {
		return nil, &DecodeError{Kind: KindParse, Reason: "message is not a JSON object"}
	}

	var shape decodeShape
	if err := json.Unmarshal(trimmed, &shape); err != nil {
		return nil, &DecodeError{Kind: KindParse, Reason: "invalid JSON", Cause: err}
	}

	var id RequestID
	hasID := len(shape.ID) > 0
	if hasID {
		if err := id.UnmarshalJSON(shape.ID); err != nil {
			return nil, &DecodeError{Kind: KindInvalid, Reason: "invalid id", Cause: err}
		}
	}

	if shape.JSONRPC != JSONRPCVersion {
		return nil, &DecodeError{Kind: KindInvalid, ID: id, Reason: fmt.Sprintf("unsupported jsonrpc version %q", shape.JSONRPC)}
	}

	hasResult := len(shape.Result) > 0
	hasError := len(shape.Error) > 0 && string(shape.Error) != "null"

	if shape.Method != nil {
		if *shape.Method == "" {
			return nil, &DecodeError{Kind: KindInvalid, ID: id, Reason: "empty method"}
		}
		if hasResult || hasError {
			return nil, &DecodeError{Kind: KindInvalid, ID: id, Reason: "message has both method and result/error"}
		}
		if !hasID {
			return &Notification{Method: *shape.Method, Params: shape.Params}, nil
		}
		if id.IsZero() {
			return nil, &DecodeError{Kind: KindInvalid, Reason: "request id must not be null"}
		}
		return &Request{ID: id, Method: *shape.Method, Params: shape.Params}, nil
	}

	if !hasID {
		return nil, &DecodeError{Kind: KindInvalid, Reason: "message is neither a request, a response nor a notification"}
	}

	switch {
	case hasResult && hasError:
		return nil, &DecodeError{Kind: KindInvalid, ID: id, Response: true, Reason: "response has both result and error"}
	case !hasResult && !hasError:
		return nil, &DecodeError{Kind: KindInvalid, ID: id, Response: true, Reason: "response has neither result nor error"}
	case hasError:
		var rpcErr Error
		if err := json.Unmarshal(shape.Error, &rpcErr); err != nil {
			return nil, &DecodeError{Kind: KindInvalid, ID: id, Response: true, Reason: "invalid error object", Cause: err}
		}
		return &Response{ID: id, Error: &rpcErr}, nil
	default:
		return &Response{ID: id, Result: shape.Result}, nil
	}
}
