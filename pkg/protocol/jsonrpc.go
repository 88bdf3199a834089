package protocol

import (
	"encoding/json"
	"fmt"
)

const (
	// JSONRPCVersion is the supported JSON-RPC version
	JSONRPCVersion = "2.0"
)

// ErrorCode is the numeric code carried by an error object.
type ErrorCode int

// Error codes reserved by JSON-RPC 2.0
const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

// Session-level error codes. All of them sit inside the reserved range.
const (
	// InitializationFailed indicates the handshake was rejected
	InitializationFailed ErrorCode = -32000
	// NotInitialized indicates a request arrived before the handshake completed
	NotInitialized ErrorCode = -32002
	// ConnectionLost indicates the stream carrying a request was lost
	ConnectionLost ErrorCode = -32005
	// RequestCancelled indicates the caller cancelled the request
	RequestCancelled ErrorCode = -32800
)

const (
	reservedCodeMin ErrorCode = -32768
	reservedCodeMax ErrorCode = -32000
)

// IsProtocolCode reports whether code belongs to the range reserved for
// protocol-level errors. Every other code is available to handlers.
func IsProtocolCode(code ErrorCode) bool {
	return code >= reservedCodeMin && code <= reservedCodeMax
}

// Message is one of *Request, *Response or *Notification.
type Message interface {
	isMessage()
}

// Request is a JSON-RPC 2.0 request
type Request struct {
	ID     RequestID
	Method string
	Params json.RawMessage
}

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is set.
type Response struct {
	ID     RequestID
	Result json.RawMessage
	Error  *Error
}

// Notification is a JSON-RPC 2.0 notification
type Notification struct {
	Method string
	Params json.RawMessage
}

func (*Request) isMessage()      {}
func (*Response) isMessage()     {}
func (*Notification) isMessage() {}

// NewRequest creates a new JSON-RPC 2.0 request
func NewRequest(id RequestID, method string, params interface{}) (*Request, error) {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	return &Request{
		ID:     id,
		Method: method,
		Params: paramsJSON,
	}, nil
}

// NewResponse creates a new JSON-RPC 2.0 success response. A nil result is
// encoded as JSON null.
func NewResponse(id RequestID, result interface{}) (*Response, error) {
	if raw, ok := result.(json.RawMessage); ok && raw != nil {
		return &Response{ID: id, Result: raw}, nil
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		ID:     id,
		Result: resultJSON,
	}, nil
}

// NewErrorResponse creates a new JSON-RPC 2.0 error response
func NewErrorResponse(id RequestID, code ErrorCode, message string, data interface{}) (*Response, error) {
	rpcErr, err := NewError(code, message, data)
	if err != nil {
		return nil, err
	}

	return &Response{
		ID:    id,
		Error: rpcErr,
	}, nil
}

// NewNotification creates a new JSON-RPC 2.0 notification
func NewNotification(method string, params interface{}) (*Notification, error) {
	paramsJSON, err := marshalParams(params)
	if err != nil {
		return nil, err
	}

	return &Notification{
		Method: method,
		Params: paramsJSON,
	}, nil
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}
	return paramsJSON, nil
}

// Error is a JSON-RPC 2.0 error object. It implements the error interface so
// a handler can return one to control the code sent to the peer, and callers
// receive one when the peer answered with an error.
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewError builds an error object, marshaling data if present.
func NewError(code ErrorCode, message string, data interface{}) (*Error, error) {
	var dataJSON json.RawMessage
	if data != nil {
		var err error
		dataJSON, err = marshalParams(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal error data: %w", err)
		}
	}

	return &Error{
		Code:    code,
		Message: message,
		Data:    dataJSON,
	}, nil
}

// NewApplicationError builds an error object for a handler-defined failure.
// Codes in the reserved protocol range are not accepted and are replaced by
// InternalError.
func NewApplicationError(code ErrorCode, message string) *Error {
	if IsProtocolCode(code) {
		return &Error{Code: InternalError, Message: message}
	}
	return &Error{Code: code, Message: message}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Errorf builds an error object without data. Handlers use it to fail with a
// specific protocol code such as InvalidParams.
func Errorf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
