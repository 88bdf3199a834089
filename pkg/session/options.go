package session

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/observability"
	"github.com/Rheron1848/mcprt/pkg/protocol"
)

const (
	// DefaultHandshakeTimeout bounds the initialize exchange
	DefaultHandshakeTimeout = 30 * time.Second

	// DefaultMaxConcurrentHandlers caps request handlers running at once
	DefaultMaxConcurrentHandlers = 64
)

// Option configures a Session
type Option func(*options)

type options struct {
	logger            logging.Logger
	metrics           observability.Metrics
	tracer            trace.Tracer
	handshakeTimeout  time.Duration
	maxHandlers       int64
	sessionID         string
	transportName     string
	initHandler       InitializeHandler
	supportedVersions []string
	requiredCaps      []string
}

func defaultOptions() options {
	return options{
		handshakeTimeout:  DefaultHandshakeTimeout,
		maxHandlers:       DefaultMaxConcurrentHandlers,
		supportedVersions: protocol.SupportedProtocolVersions,
	}
}

// WithLogger sets the session logger
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

// WithTracer sets the tracer used for call and handler spans
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithHandshakeTimeout bounds the initialize exchange
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.handshakeTimeout = d
		}
	}
}

// WithMaxConcurrentHandlers caps the number of request handlers running at
// once. Further requests wait for a free slot.
func WithMaxConcurrentHandlers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxHandlers = int64(n)
		}
	}
}

// WithSessionID sets the id attached to logs
func WithSessionID(id string) Option {
	return func(o *options) {
		o.sessionID = id
	}
}

// WithTransportName sets the transport label used in metrics
func WithTransportName(name string) Option {
	return func(o *options) {
		o.transportName = name
	}
}

// WithInitializeHandler makes the session the responder of the handshake.
// The handler negotiates the peer's initialize request.
func WithInitializeHandler(h InitializeHandler) Option {
	return func(o *options) {
		o.initHandler = h
	}
}

// WithSupportedVersions sets the versions an issuer accepts from the peer
func WithSupportedVersions(versions ...string) Option {
	return func(o *options) {
		if len(versions) > 0 {
			o.supportedVersions = versions
		}
	}
}

// WithRequiredCapabilities lists capabilities the peer must offer for the
// handshake issued by Initialize to succeed.
func WithRequiredCapabilities(caps ...string) Option {
	return func(o *options) {
		o.requiredCaps = caps
	}
}
