package protocol

import (
	"fmt"
	"sort"
)

const (
	// Methods for lifecycle management
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"

	// Methods for utilities
	MethodPing      = "ping"
	MethodCancelled = "notifications/cancelled"
	MethodProgress  = "notifications/progress"
)

// Protocol versions understood by this module, newest first.
const (
	ProtocolVersion11 = "1.1"
	ProtocolVersion10 = "1.0"

	// LatestProtocolVersion is what a client asks for unless configured otherwise
	LatestProtocolVersion = ProtocolVersion11
)

// SupportedProtocolVersions lists the versions both runtimes accept by default.
var SupportedProtocolVersions = []string{ProtocolVersion11, ProtocolVersion10}

// IsReservedMethod reports whether method is handled by the session itself
// and cannot be bound to an application handler.
func IsReservedMethod(method string) bool {
	switch method {
	case MethodInitialize, MethodInitialized, MethodPing, MethodCancelled:
		return true
	}
	return false
}

// InitializeParams defines the parameters for the initialize request
type InitializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    map[string]bool `json:"capabilities"`
	ClientInfo      *ClientInfo     `json:"clientInfo,omitempty"`
}

// ClientInfo provides additional information about the client
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult defines the response for the initialize request
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    map[string]bool `json:"capabilities"`
	ServerInfo      *ServerInfo     `json:"serverInfo,omitempty"`
}

// ServerInfo provides additional information about the server
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// CancelledParams is carried by the cancellation notification
type CancelledParams struct {
	RequestID RequestID `json:"requestId"`
	Reason    string    `json:"reason,omitempty"`
}

// ProgressParams reports how far a long-running request has come. RequestID
// names the request the progress belongs to.
type ProgressParams struct {
	RequestID RequestID `json:"requestId"`
	Progress  float64   `json:"progress"`
	Total     float64   `json:"total,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// NegotiateVersion picks the version a responder answers with. The requested
// version is accepted only if it is in supported; there is no fallback to an
// older version, so a mismatch fails the handshake.
func NegotiateVersion(requested string, supported []string) (string, error) {
	if requested == "" {
		return "", fmt.Errorf("protocol version is required")
	}
	for _, v := range supported {
		if v == requested {
			return v, nil
		}
	}
	return "", fmt.Errorf("protocol version %q is not supported (supported: %v)", requested, supported)
}

// MissingCapabilities returns the entries of required that are not enabled in
// offered, sorted by name.
func MissingCapabilities(offered map[string]bool, required []string) []string {
	var missing []string
	for _, name := range required {
		if !offered[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
