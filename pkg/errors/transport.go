package errors

import (
	"fmt"
	"net/http"
)

// TransportErrorData contains structured data for transport-related errors
type TransportErrorData struct {
	Transport  string `json:"transport"`
	Operation  string `json:"operation,omitempty"`
	Endpoint   string `json:"endpoint,omitempty"`
	Retryable  bool   `json:"retryable"`
	Reason     string `json:"reason,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}

// StreamErrorData identifies the event stream involved in a streaming failure
type StreamErrorData struct {
	StreamID    string `json:"stream_id,omitempty"`
	LastEventID string `json:"last_event_id,omitempty"`
}

// TransportError creates a generic transport error
func TransportError(transport, operation string, cause error) MCPError {
	message := fmt.Sprintf("%s transport error", transport)
	if operation != "" {
		message = fmt.Sprintf("%s transport error during %s", transport, operation)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	data := &TransportErrorData{
		Transport: transport,
		Operation: operation,
		Retryable: true,
	}
	if cause != nil {
		data.Reason = cause.Error()
	}

	return WrapError(cause, CodeTransportError, message).
		WithData(data).
		WithContext(&Context{Component: transport + "_transport", Operation: operation})
}

// TransportClosed reports use of a transport after it closed or after its
// underlying stream ended. cause is the underlying read or write error.
func TransportClosed(transport string, cause error) MCPError {
	message := fmt.Sprintf("%s transport closed", transport)
	err := build(ErrTransportClosed, cause, CodeTransportClosed, message).
		WithData(&TransportErrorData{Transport: transport})
	if cause != nil && cause != ErrTransportClosed {
		return err.WithDetail(cause.Error())
	}
	return err
}

// StdioTransportError creates an error for stdio transport failures
func StdioTransportError(operation string, cause error) MCPError {
	return TransportError("stdio", operation, cause)
}

// HTTPStatusError reports an unexpected HTTP status from the peer.
func HTTPStatusError(operation, endpoint string, statusCode int) MCPError {
	message := fmt.Sprintf("HTTP %d %s during %s", statusCode, http.StatusText(statusCode), operation)
	return NewError(CodeHTTPStatus, message).
		WithData(&TransportErrorData{
			Transport:  "http",
			Operation:  operation,
			Endpoint:   endpoint,
			StatusCode: statusCode,
			Retryable:  statusCode >= 500,
		}).
		WithContext(&Context{Component: "http_transport", Operation: operation})
}

// StreamUnresumable reports an event stream that could not be resumed because
// the server no longer holds the events after lastEventID.
func StreamUnresumable(streamID, lastEventID string, cause error) MCPError {
	message := "event stream cannot be resumed"
	if streamID != "" {
		message = fmt.Sprintf("event stream %s cannot be resumed", streamID)
	}
	return build(ErrStreamUnresumable, cause, CodeStreamUnresumable, message).
		WithData(&StreamErrorData{StreamID: streamID, LastEventID: lastEventID})
}
