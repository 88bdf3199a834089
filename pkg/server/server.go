package server

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/observability"
	"github.com/Rheron1848/mcprt/pkg/protocol"
	"github.com/Rheron1848/mcprt/pkg/session"
	"github.com/Rheron1848/mcprt/pkg/transport"
)

// ErrServing is returned when a handler is registered after the server
// started serving sessions.
var ErrServing = errors.New("server: handlers must be registered before serving")

// Server binds request and notification handlers and serves them on any
// number of sessions. Every session answers the handshake with the same
// server info and capabilities.
type Server struct {
	info   protocol.ServerInfo
	opts   options
	logger logging.Logger

	mu                   sync.RWMutex
	requestHandlers      map[string]session.RequestHandler
	notificationHandlers map[string]session.NotificationHandler
	serving              atomic.Bool
}

// Option configures a Server
type Option func(*options)

type options struct {
	versions         []string
	capabilities     map[string]bool
	requiredCaps     []string
	logger           logging.Logger
	metrics          observability.Metrics
	tracer           trace.Tracer
	maxHandlers      int
	handshakeTimeout time.Duration
}

// WithProtocolVersions sets the versions the server accepts
func WithProtocolVersions(versions ...string) Option {
	return func(o *options) {
		if len(versions) > 0 {
			o.versions = versions
		}
	}
}

// WithCapability advertises a capability in the initialize result
func WithCapability(name string, enabled bool) Option {
	return func(o *options) {
		o.capabilities[name] = enabled
	}
}

// WithRequiredClientCapabilities rejects clients that do not offer caps
func WithRequiredClientCapabilities(caps ...string) Option {
	return func(o *options) {
		o.requiredCaps = caps
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics sink shared by all sessions
func WithMetrics(metrics observability.Metrics) Option {
	return func(o *options) {
		o.metrics = metrics
	}
}

// WithTracer sets the tracer shared by all sessions
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// WithMaxConcurrentHandlers caps concurrently running handlers per session
func WithMaxConcurrentHandlers(n int) Option {
	return func(o *options) {
		o.maxHandlers = n
	}
}

// WithHandshakeTimeout bounds the initialize exchange of each session
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = d
	}
}

// New creates a server that identifies itself with info
func New(info protocol.ServerInfo, opts ...Option) *Server {
	o := options{
		versions:     protocol.SupportedProtocolVersions,
		capabilities: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Server{
		info:                 info,
		opts:                 o,
		logger:               logging.OrGlobal(o.logger).WithFields(logging.String("component", "server")),
		requestHandlers:      make(map[string]session.RequestHandler),
		notificationHandlers: make(map[string]session.NotificationHandler),
	}
}

// Info returns the identity sent in initialize results
func (s *Server) Info() protocol.ServerInfo {
	return s.info
}

// HandleRequest binds h to method. It fails for reserved methods, for
// methods bound twice, and once serving started.
func (s *Server) HandleRequest(method string, h session.RequestHandler) error {
	if s.serving.Load() {
		return ErrServing
	}
	if protocol.IsReservedMethod(method) {
		return mcperrors.HandlerAlreadyRegistered(method)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requestHandlers[method]; exists {
		return mcperrors.HandlerAlreadyRegistered(method)
	}
	s.requestHandlers[method] = h
	return nil
}

// HandleNotification binds h to notification method
func (s *Server) HandleNotification(method string, h session.NotificationHandler) error {
	if s.serving.Load() {
		return ErrServing
	}
	if protocol.IsReservedMethod(method) {
		return mcperrors.HandlerAlreadyRegistered(method)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.notificationHandlers[method]; exists {
		return mcperrors.HandlerAlreadyRegistered(method)
	}
	s.notificationHandlers[method] = h
	return nil
}

// NewSession creates a responder session over t with every bound handler
// installed. The session is not running; call Run on it. Creating the first
// session freezes the handler registry.
func (s *Server) NewSession(t transport.Transport, opts ...session.Option) (*session.Session, error) {
	s.serving.Store(true)

	base := []session.Option{
		session.WithLogger(s.opts.logger),
		session.WithMetrics(s.opts.metrics),
		session.WithTracer(s.opts.tracer),
		session.WithInitializeHandler(s.negotiate),
		session.WithMaxConcurrentHandlers(s.opts.maxHandlers),
		session.WithHandshakeTimeout(s.opts.handshakeTimeout),
	}
	sess := session.New(t, append(base, opts...)...)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for method, h := range s.requestHandlers {
		if err := sess.HandleRequest(method, h); err != nil {
			_ = sess.Close()
			return nil, err
		}
	}
	for method, h := range s.notificationHandlers {
		if err := sess.HandleNotification(method, h); err != nil {
			_ = sess.Close()
			return nil, err
		}
	}
	return sess, nil
}

// negotiate answers an initialize request: the requested version must be
// supported and the client must offer every required capability.
func (s *Server) negotiate(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	version, err := protocol.NegotiateVersion(params.ProtocolVersion, s.opts.versions)
	if err != nil {
		return nil, mcperrors.VersionMismatch(params.ProtocolVersion, s.opts.versions)
	}
	if missing := protocol.MissingCapabilities(params.Capabilities, s.opts.requiredCaps); len(missing) > 0 {
		return nil, mcperrors.InitializationFailed("client lacks required capabilities", nil).
			WithData(map[string]interface{}{"missing": missing})
	}

	caps := make(map[string]bool, len(s.opts.capabilities))
	for k, v := range s.opts.capabilities {
		caps[k] = v
	}
	info := s.info
	return &protocol.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    caps,
		ServerInfo:      &info,
	}, nil
}

// ServeTransport runs one session over t until it closes. It returns nil
// when the peer went away cleanly and the closure cause otherwise.
func (s *Server) ServeTransport(ctx context.Context, t transport.Transport) error {
	sess, err := s.NewSession(t)
	if err != nil {
		return err
	}

	err = sess.Run(ctx)
	if cleanExit(err) {
		s.logger.Info("Peer disconnected")
		return nil
	}
	return err
}

// ServeStdio serves one session over r and w, normally os.Stdin and
// os.Stdout. Logs must go elsewhere; stdout carries only frames.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}
	return s.ServeTransport(ctx, transport.NewStdioTransport(r, w, transport.WithStdioLogger(s.opts.logger)))
}

func cleanExit(err error) bool {
	if err == nil {
		return true
	}
	return mcperrors.Is(err, mcperrors.ErrTransportClosed) && errors.Is(err, io.EOF)
}

// NotifyProgress reports progress for the request whose handler received
// ctx. The notification travels on the same stream as that request's
// response.
func NotifyProgress(ctx context.Context, progress, total float64, message string) error {
	sess, ok := session.FromContext(ctx)
	if !ok {
		return errors.New("server: no session in context")
	}
	id, ok := transport.RelatedRequest(ctx)
	if !ok {
		return errors.New("server: context does not belong to a request")
	}
	return sess.Notify(ctx, protocol.MethodProgress, protocol.ProgressParams{
		RequestID: id,
		Progress:  progress,
		Total:     total,
		Message:   message,
	})
}
