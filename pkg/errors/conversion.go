package errors

import (
	"encoding/json"

	"github.com/Rheron1848/mcprt/pkg/protocol"
)

// ToJSONRPCError converts any error returned by a handler to the error object
// sent to the peer. A *protocol.Error is passed through, an MCPError keeps
// its code and message, and anything else becomes an internal error.
func ToJSONRPCError(err error) *protocol.Error {
	if err == nil {
		return nil
	}

	var rpcErr *protocol.Error
	if As(err, &rpcErr) {
		return rpcErr
	}

	if mcpErr, ok := AsMCPError(err); ok {
		out := &protocol.Error{
			Code:    protocol.ErrorCode(mcpErr.Code()),
			Message: mcpErr.Error(),
		}
		if mcpErr.Data() != nil {
			if data, marshalErr := json.Marshal(mcpErr.Data()); marshalErr == nil {
				out.Data = data
			}
		}
		return out
	}

	return &protocol.Error{
		Code:    protocol.InternalError,
		Message: err.Error(),
	}
}

// FromJSONRPCError converts an error object received from the peer to an
// MCPError, keeping the object reachable through the error chain.
func FromJSONRPCError(rpcErr *protocol.Error) MCPError {
	if rpcErr == nil {
		return nil
	}

	code := int(rpcErr.Code)
	err := WrapError(rpcErr, code, rpcErr.Message)
	if len(rpcErr.Data) > 0 {
		err = err.WithData(rpcErr.Data)
	}
	return err
}

// ToJSONRPCResponse builds the error response for request id from err.
func ToJSONRPCResponse(err error, id protocol.RequestID) *protocol.Response {
	return &protocol.Response{ID: id, Error: ToJSONRPCError(err)}
}
