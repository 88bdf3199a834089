package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/observability"
	"github.com/Rheron1848/mcprt/pkg/protocol"
	"github.com/Rheron1848/mcprt/pkg/session"
	"github.com/Rheron1848/mcprt/pkg/transport"
)

const (
	DefaultPath          = "/mcp"
	DefaultIdleTimeout   = 30 * time.Minute
	DefaultSweepInterval = time.Minute
	DefaultMaxBodyBytes  = 4 << 20
	DefaultKeepAlive     = 15 * time.Second
)

// SessionInfo describes one live HTTP session
type SessionInfo struct {
	ID              string
	CreatedAt       time.Time
	LastUsedAt      time.Time
	State           string
	ProtocolVersion string
	ClientName      string
}

// HTTPOption configures an HTTPHandler
type HTTPOption func(*httpOptions)

type httpOptions struct {
	path           string
	allowedOrigins []string
	idleTimeout    time.Duration
	sweepInterval  time.Duration
	replayBuffer   int
	maxBodyBytes   int64
	keepAlive      time.Duration
	clock          clockwork.Clock
	logger         logging.Logger
	metrics        observability.Metrics
}

// WithPath sets the endpoint path, "/mcp" by default
func WithPath(path string) HTTPOption {
	return func(o *httpOptions) {
		if path != "" {
			o.path = path
		}
	}
}

// WithAllowedOrigins replaces the accepted browser origins. Loopback origins
// without a port match every port; "*" accepts any origin.
func WithAllowedOrigins(origins ...string) HTTPOption {
	return func(o *httpOptions) {
		o.allowedOrigins = origins
	}
}

// WithIdleTimeout closes sessions unused for d
func WithIdleTimeout(d time.Duration) HTTPOption {
	return func(o *httpOptions) {
		if d > 0 {
			o.idleTimeout = d
		}
	}
}

// WithSweepInterval sets how often idle sessions are looked for
func WithSweepInterval(d time.Duration) HTTPOption {
	return func(o *httpOptions) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// WithReplayBuffer sets how many delivered events each stream keeps for
// resumption. Zero disables replay.
func WithReplayBuffer(n int) HTTPOption {
	return func(o *httpOptions) {
		if n >= 0 {
			o.replayBuffer = n
		}
	}
}

// WithMaxBodyBytes caps POST bodies
func WithMaxBodyBytes(n int64) HTTPOption {
	return func(o *httpOptions) {
		if n > 0 {
			o.maxBodyBytes = n
		}
	}
}

// WithKeepAlive sets the interval of keepalive comments on open streams
func WithKeepAlive(d time.Duration) HTTPOption {
	return func(o *httpOptions) {
		if d > 0 {
			o.keepAlive = d
		}
	}
}

// WithClock replaces the clock driving the idle sweeper and keepalives
func WithClock(clock clockwork.Clock) HTTPOption {
	return func(o *httpOptions) {
		o.clock = clock
	}
}

// WithHTTPLogger sets the logger for the HTTP layer
func WithHTTPLogger(logger logging.Logger) HTTPOption {
	return func(o *httpOptions) {
		o.logger = logger
	}
}

// HTTPHandler serves a Server over streamable HTTP. Each client session is
// identified by an opaque token returned in the Mcp-Session-Id header of the
// initialize response.
type HTTPHandler struct {
	server *Server
	opts   httpOptions
	router chi.Router
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*httpSession
	closed   bool
	running  sync.WaitGroup

	sweeperDone chan struct{}
}

// NewHTTPHandler creates the handler and starts its idle sweeper. Close
// stops it.
func NewHTTPHandler(srv *Server, opts ...HTTPOption) *HTTPHandler {
	o := httpOptions{
		path:           DefaultPath,
		allowedOrigins: defaultAllowedOrigins,
		idleTimeout:    DefaultIdleTimeout,
		sweepInterval:  DefaultSweepInterval,
		replayBuffer:   DefaultReplayBuffer,
		maxBodyBytes:   DefaultMaxBodyBytes,
		keepAlive:      DefaultKeepAlive,
		clock:          clockwork.NewRealClock(),
		logger:         srv.opts.logger,
		metrics:        srv.opts.metrics,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = observability.NoopMetrics{}
	}

	h := &HTTPHandler{
		server:      srv,
		opts:        o,
		logger:      logging.OrGlobal(o.logger).WithFields(logging.String("component", "http_handler")),
		sessions:    make(map[string]*httpSession),
		sweeperDone: make(chan struct{}),
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())

	r := chi.NewRouter()
	r.Use(logging.HTTPMiddleware(h.logger))
	r.Use(cors.New(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return originAllowed(h.opts.allowedOrigins, origin)
		},
		AllowedMethods:   []string{http.MethodPost, http.MethodGet, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Accept", "Authorization", transport.HeaderSessionID, transport.HeaderLastEventID},
		ExposedHeaders:   []string{transport.HeaderSessionID},
		AllowCredentials: false,
		MaxAge:           86400,
	}).Handler)
	r.Use(h.validateOrigin)
	r.Post(o.path, h.handlePost)
	r.Get(o.path, h.handleGet)
	r.Delete(o.path, h.handleDelete)
	h.router = r

	go h.sweep()
	return h
}

// ServeHTTP implements http.Handler
func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *HTTPHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	msg, err := protocol.Decode(body)
	if err != nil {
		h.opts.metrics.DecodeError(string(transport.TypeHTTP))
		var decodeErr *protocol.DecodeError
		if !errors.As(err, &decodeErr) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeMessage(w, http.StatusBadRequest, &protocol.Response{
			ID:    decodeErr.ID,
			Error: &protocol.Error{Code: decodeErr.Code(), Message: decodeErr.Reason},
		})
		return
	}

	var hs *httpSession
	if token := r.Header.Get(transport.HeaderSessionID); token != "" {
		if hs = h.lookup(token); hs == nil {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
	} else {
		req, ok := msg.(*protocol.Request)
		if !ok || req.Method != protocol.MethodInitialize {
			http.Error(w, "missing "+transport.HeaderSessionID+" header", http.StatusBadRequest)
			return
		}
		if hs, err = h.createSession(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set(transport.HeaderSessionID, hs.token)
	}
	hs.touch(h.opts.clock.Now())

	req, ok := msg.(*protocol.Request)
	if !ok {
		if err := hs.deliver(r.Context(), msg); err != nil {
			http.Error(w, "session closed", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	h.serveRequest(w, r, hs, req)
}

// serveRequest feeds req to the session and writes what it produces. The
// answer is plain JSON when the final response comes first or the client
// cannot read event streams, and an event stream otherwise.
func (h *HTTPHandler) serveRequest(w http.ResponseWriter, r *http.Request, hs *httpSession, req *protocol.Request) {
	wantsStream := accepts(r, transport.ContentTypeEventStream)

	st, err := hs.openRequest(req.ID, !wantsStream)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, &protocol.Response{
			ID:    req.ID,
			Error: protocol.Errorf(protocol.InvalidRequest, "%v", err),
		})
		return
	}
	st.attach()
	defer st.detach()

	if err := hs.deliver(r.Context(), req); err != nil {
		hs.abandonRequest(req.ID)
		http.Error(w, "session closed", http.StatusNotFound)
		return
	}

	var finalOnly, empty bool
	for {
		var ready bool
		if ready, finalOnly, empty = st.peek(); ready {
			break
		}
		select {
		case <-st.signal:
		case <-r.Context().Done():
			return
		}
	}

	if finalOnly || empty || !wantsStream {
		events, _ := st.take()
		if len(events) == 0 || !events[0].final {
			// cancelled, or the session went away first
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.Header().Set("Content-Type", transport.ContentTypeJSON)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(events[0].event.Data)
		return
	}

	startEventStream(w)
	h.pump(w, r, st, "request")
}

func (h *HTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if !accepts(r, transport.ContentTypeEventStream) {
		http.Error(w, "GET requires Accept: "+transport.ContentTypeEventStream, http.StatusNotAcceptable)
		return
	}
	token := r.Header.Get(transport.HeaderSessionID)
	if token == "" {
		http.Error(w, "missing "+transport.HeaderSessionID+" header", http.StatusBadRequest)
		return
	}
	hs := h.lookup(token)
	if hs == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	hs.touch(h.opts.clock.Now())

	st := hs.push
	lastEventID := r.Header.Get(transport.HeaderLastEventID)
	if lastEventID != "" {
		streamID, seq, ok := parseEventID(lastEventID)
		if ok {
			st = hs.stream(streamID)
		}
		if !ok || st == nil {
			h.unresumable(w, mcperrors.StreamUnresumable(streamID, lastEventID, errors.New("unknown stream")))
			return
		}
		if !st.attach() {
			http.Error(w, "stream already has a reader", http.StatusConflict)
			return
		}
		if err := st.rewind(seq); err != nil {
			st.detach()
			h.unresumable(w, mcperrors.StreamUnresumable(streamID, lastEventID, err))
			return
		}
		h.opts.metrics.StreamResumed("ok")
		h.logger.Debug("Resuming event stream",
			logging.String("session_id", hs.token),
			logging.String("last_event_id", lastEventID))
	} else if !st.attach() {
		http.Error(w, "push stream already open", http.StatusConflict)
		return
	}
	defer st.detach()

	kind := "request"
	if st == hs.push {
		kind = pushStreamID
	}
	startEventStream(w)
	h.pump(w, r, st, kind)
}

func (h *HTTPHandler) unresumable(w http.ResponseWriter, err error) {
	h.opts.metrics.StreamResumed("unresumable")
	h.logger.WithError(err).Info("Refused stream resumption")
	http.Error(w, err.Error(), http.StatusConflict)
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(transport.HeaderSessionID)
	if token == "" {
		http.Error(w, "missing "+transport.HeaderSessionID+" header", http.StatusBadRequest)
		return
	}
	hs := h.lookup(token)
	if hs == nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	_ = hs.sess.Close()
	h.forget(token)
	w.WriteHeader(http.StatusNoContent)
}

// pump writes the events of st until it ends or the client goes away
func (h *HTTPHandler) pump(w http.ResponseWriter, r *http.Request, st *eventStream, kind string) {
	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}

	ticker := h.opts.clock.NewTicker(h.opts.keepAlive)
	defer ticker.Stop()

	for {
		events, done := st.take()
		for _, ev := range events {
			if err := transport.WriteEvent(w, ev.event); err != nil {
				h.logger.WithError(err).Debug("Event stream write failed")
				return
			}
			h.opts.metrics.EventStreamed(kind)
		}
		if len(events) > 0 {
			flush()
		}
		if done {
			return
		}

		select {
		case <-st.signal:
		case <-ticker.Chan():
			if err := transport.WriteComment(w, "keepalive"); err != nil {
				return
			}
			flush()
		case <-r.Context().Done():
			return
		}
	}
}

func (h *HTTPHandler) createSession() (*httpSession, error) {
	token := uuid.NewString()
	hs := newHTTPSession(token, h.opts.clock.Now(), h.opts.replayBuffer)

	sess, err := h.server.NewSession(hs,
		session.WithSessionID(token),
		session.WithTransportName(string(transport.TypeHTTP)))
	if err != nil {
		return nil, err
	}
	hs.sess = sess

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = sess.Close()
		return nil, errors.New("server is shutting down")
	}
	h.sessions[token] = hs
	h.running.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.running.Done()
		err := sess.Run(h.ctx)
		h.forget(token)
		h.logger.Debug("HTTP session ended", logging.String("session_id", token), logging.ErrorField(err))
	}()

	h.logger.Info("Created HTTP session", logging.String("session_id", token))
	return hs, nil
}

func (h *HTTPHandler) lookup(token string) *httpSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[token]
}

func (h *HTTPHandler) forget(token string) {
	h.mu.Lock()
	delete(h.sessions, token)
	h.mu.Unlock()
}

func (h *HTTPHandler) snapshot() []*httpSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*httpSession, 0, len(h.sessions))
	for _, hs := range h.sessions {
		out = append(out, hs)
	}
	return out
}

func (h *HTTPHandler) sweep() {
	defer close(h.sweeperDone)

	ticker := h.opts.clock.NewTicker(h.opts.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.Chan():
			if n := h.closeIdle(); n > 0 {
				h.logger.Info("Closed idle sessions", logging.Int("count", n))
			}
		}
	}
}

// closeIdle closes sessions unused for longer than the idle timeout
func (h *HTTPHandler) closeIdle() int {
	now := h.opts.clock.Now()
	closed := 0
	for _, hs := range h.snapshot() {
		if hs.idle(now) <= h.opts.idleTimeout {
			continue
		}
		_ = hs.sess.Close()
		h.forget(hs.token)
		closed++
	}
	return closed
}

// SessionCount returns the number of live sessions
func (h *HTTPHandler) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Sessions describes the live sessions
func (h *HTTPHandler) Sessions() []SessionInfo {
	var out []SessionInfo
	for _, hs := range h.snapshot() {
		out = append(out, hs.info())
	}
	return out
}

// Broadcast sends a notification to every ready session. It goes out on
// each session's push stream.
func (h *HTTPHandler) Broadcast(ctx context.Context, method string, params interface{}) error {
	var result *multierror.Error
	for _, hs := range h.snapshot() {
		if hs.sess.State() != session.StateReady {
			continue
		}
		if err := hs.sess.Notify(ctx, method, params); err != nil {
			result = multierror.Append(result, fmt.Errorf("session %s: %w", hs.token, err))
		}
	}
	return result.ErrorOrNil()
}

// Close closes every session and stops the sweeper. It waits for session
// loops to finish until ctx ends.
func (h *HTTPHandler) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	var result *multierror.Error
	for _, hs := range h.snapshot() {
		if err := hs.sess.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("session %s: %w", hs.token, err))
		}
	}
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.running.Wait()
		<-h.sweeperDone
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		result = multierror.Append(result, ctx.Err())
	}
	return result.ErrorOrNil()
}

func startEventStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", transport.ContentTypeEventStream)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func writeMessage(w http.ResponseWriter, status int, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", transport.ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// accepts reports whether the Accept header names mediaType explicitly
func accepts(r *http.Request, mediaType string) bool {
	for _, value := range r.Header.Values("Accept") {
		for _, part := range strings.Split(value, ",") {
			mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
			if err == nil && mt == mediaType {
				return true
			}
		}
	}
	return false
}
