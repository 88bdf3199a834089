package client

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/observability"
	"github.com/Rheron1848/mcprt/pkg/protocol"
	"github.com/Rheron1848/mcprt/pkg/session"
)

// Option configures a Client
type Option func(*options)

type options struct {
	name             string
	version          string
	protocolVersion  string
	capabilities     map[string]bool
	requiredCaps     []string
	requestTimeout   time.Duration
	handshakeTimeout time.Duration
	logger           logging.Logger
	metrics          observability.Metrics
	tracer           trace.Tracer
	requests         map[string]session.RequestHandler
	notifications    map[string]session.NotificationHandler
	progress         ProgressHandler
}

func defaultOptions() options {
	return options{
		name:            "mcprt-client",
		version:         "0.1.0",
		protocolVersion: protocol.LatestProtocolVersion,
		capabilities:    make(map[string]bool),
		requests:        make(map[string]session.RequestHandler),
		notifications:   make(map[string]session.NotificationHandler),
	}
}

// WithName sets the client name sent in the handshake
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithVersion sets the client version sent in the handshake
func WithVersion(version string) Option {
	return func(o *options) {
		o.version = version
	}
}

// WithProtocolVersion sets the protocol version the client asks for
func WithProtocolVersion(version string) Option {
	return func(o *options) {
		o.protocolVersion = version
	}
}

// WithCapability advertises or withdraws a client capability
func WithCapability(name string, enabled bool) Option {
	return func(o *options) {
		o.capabilities[name] = enabled
	}
}

// WithRequiredServerCapabilities fails Connect unless the server offers
// every named capability.
func WithRequiredServerCapabilities(caps ...string) Option {
	return func(o *options) {
		o.requiredCaps = append(o.requiredCaps, caps...)
	}
}

// WithRequestTimeout bounds calls whose context has no deadline. Zero
// disables the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		o.requestTimeout = d
	}
}

// WithHandshakeTimeout bounds the initialize exchange
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = d
	}
}

// WithLogger sets the client logger
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(metrics observability.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithTracer sets the tracer for call spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithRequestHandler serves a request the server sends to the client
func WithRequestHandler(method string, h session.RequestHandler) Option {
	return func(o *options) {
		o.requests[method] = h
	}
}

// WithNotificationHandler serves a notification sent by the server
func WithNotificationHandler(method string, h session.NotificationHandler) Option {
	return func(o *options) {
		o.notifications[method] = h
	}
}

// WithProgressHandler receives progress notifications for running calls
func WithProgressHandler(h ProgressHandler) Option {
	return func(o *options) {
		o.progress = h
	}
}
