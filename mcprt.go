package mcprt

import (
	"github.com/Rheron1848/mcprt/pkg/client"
	"github.com/Rheron1848/mcprt/pkg/protocol"
	"github.com/Rheron1848/mcprt/pkg/server"
	"github.com/Rheron1848/mcprt/pkg/transport"
)

// Version represents the current version of the runtime
const Version = "0.1.0"

// These exports provide direct access to the core components
var (
	// NewServer creates a server
	NewServer = server.New

	// NewHTTPHandler serves a server over streamable HTTP
	NewHTTPHandler = server.NewHTTPHandler

	// Connect runs the handshake on a transport and returns a client
	Connect = client.Connect

	// ConnectCommand launches a server process and connects to it
	ConnectCommand = client.ConnectCommand

	// NewStdioTransport creates a transport over a reader and a writer
	NewStdioTransport = transport.NewStdioTransport

	// NewCommandTransport launches a process and talks to its stdio
	NewCommandTransport = transport.NewCommandTransport

	// NewStreamableHTTPClientTransport creates a streamable HTTP client transport
	NewStreamableHTTPClientTransport = transport.NewStreamableHTTPClientTransport
)

// Protocol versions
const (
	ProtocolVersion10     = protocol.ProtocolVersion10
	ProtocolVersion11     = protocol.ProtocolVersion11
	LatestProtocolVersion = protocol.LatestProtocolVersion
)

// Client options
var (
	WithClientName       = client.WithName
	WithClientVersion    = client.WithVersion
	WithClientCapability = client.WithCapability
)

// Server options
var (
	WithServerCapability = server.WithCapability
	WithProtocolVersions = server.WithProtocolVersions
	WithLogger           = server.WithLogger
)
