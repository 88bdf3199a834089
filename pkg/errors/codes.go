package errors

import "github.com/Rheron1848/mcprt/pkg/protocol"

// JSON-RPC 2.0 Standard Error Codes
// These map to the protocol error codes sent on the wire
const (
	CodeParseError     = int(protocol.ParseError)
	CodeInvalidRequest = int(protocol.InvalidRequest)
	CodeMethodNotFound = int(protocol.MethodNotFound)
	CodeInvalidParams  = int(protocol.InvalidParams)
	CodeInternalError  = int(protocol.InternalError)
)

// Session error codes shared with the protocol package
const (
	CodeInitializationFailed = int(protocol.InitializationFailed)
	CodeNotInitialized       = int(protocol.NotInitialized)
	CodeConnectionLost       = int(protocol.ConnectionLost)
	CodeRequestCancelled     = int(protocol.RequestCancelled)
)

// Local error codes. These never leave the process; they classify failures
// reported to callers of the session and transport APIs.
const (
	// Session Errors (-32200 to -32299)
	CodeSessionClosed            int = -32200
	CodeHandlerAlreadyRegistered int = -32201

	// Operation Errors (-32300 to -32399)
	CodeOperationTimeout int = -32301

	// Transport Errors (-32500 to -32599)
	CodeTransportError    int = -32500
	CodeTransportClosed   int = -32501
	CodeStreamUnresumable int = -32504
	CodeHTTPStatus        int = -32505

	// Protocol Errors (-32900 to -32999)
	CodeProtocolViolation int = -32900
	CodeVersionMismatch   int = -32901
	CodeInvalidSequence   int = -32902
)

// ErrorCodeInfo provides human-readable information about error codes
type ErrorCodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

// errorCodeRegistry maps error codes to their information
var errorCodeRegistry = map[int]ErrorCodeInfo{
	CodeParseError:     {CodeParseError, "ParseError", "Invalid JSON was received", CategoryProtocol, SeverityError},
	CodeInvalidRequest: {CodeInvalidRequest, "InvalidRequest", "Invalid Request object", CategoryProtocol, SeverityError},
	CodeMethodNotFound: {CodeMethodNotFound, "MethodNotFound", "Method does not exist", CategoryProtocol, SeverityError},
	CodeInvalidParams:  {CodeInvalidParams, "InvalidParams", "Invalid method parameters", CategoryValidation, SeverityError},
	CodeInternalError:  {CodeInternalError, "InternalError", "Internal JSON-RPC error", CategoryInternal, SeverityError},

	CodeInitializationFailed: {CodeInitializationFailed, "InitializationFailed", "Session handshake failed", CategorySession, SeverityCritical},
	CodeNotInitialized:       {CodeNotInitialized, "NotInitialized", "Session not initialized", CategorySession, SeverityError},
	CodeConnectionLost:       {CodeConnectionLost, "ConnectionLost", "Connection lost", CategoryTransport, SeverityError},
	CodeRequestCancelled:     {CodeRequestCancelled, "RequestCancelled", "Request cancelled", CategoryCancelled, SeverityInfo},

	CodeSessionClosed:            {CodeSessionClosed, "SessionClosed", "Session closed", CategorySession, SeverityError},
	CodeHandlerAlreadyRegistered: {CodeHandlerAlreadyRegistered, "HandlerAlreadyRegistered", "Handler already registered", CategoryValidation, SeverityError},

	CodeOperationTimeout: {CodeOperationTimeout, "OperationTimeout", "Operation timed out", CategoryTimeout, SeverityError},

	CodeTransportError:    {CodeTransportError, "TransportError", "Transport error", CategoryTransport, SeverityError},
	CodeTransportClosed:   {CodeTransportClosed, "TransportClosed", "Transport closed", CategoryTransport, SeverityError},
	CodeStreamUnresumable: {CodeStreamUnresumable, "StreamUnresumable", "Event stream cannot be resumed", CategoryTransport, SeverityWarning},
	CodeHTTPStatus:        {CodeHTTPStatus, "HTTPStatus", "Unexpected HTTP status", CategoryTransport, SeverityError},

	CodeProtocolViolation: {CodeProtocolViolation, "ProtocolViolation", "Protocol violation", CategoryProtocol, SeverityWarning},
	CodeVersionMismatch:   {CodeVersionMismatch, "VersionMismatch", "Protocol version mismatch", CategoryProtocol, SeverityError},
	CodeInvalidSequence:   {CodeInvalidSequence, "InvalidSequence", "Invalid message sequence", CategoryProtocol, SeverityError},
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, exists := errorCodeRegistry[code]
	return info, exists
}

// GetErrorCodeName returns the name of an error code
func GetErrorCodeName(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Name
	}
	return "UnknownError"
}

// GetErrorCodeCategory returns the category of an error code
func GetErrorCodeCategory(code int) Category {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Category
	}
	return CategoryInternal
}

// GetErrorCodeSeverity returns the severity of an error code
func GetErrorCodeSeverity(code int) Severity {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Severity
	}
	return SeverityError
}
