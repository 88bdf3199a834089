// Package session runs one stateful JSON-RPC conversation over a transport.
//
// A Session owns the handshake state machine, allocates request ids, pairs
// responses with pending calls, and dispatches inbound requests and
// notifications to registered handlers. Both the client and the server
// runtimes are thin layers over it.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/observability"
	"github.com/Rheron1848/mcprt/pkg/protocol"
	"github.com/Rheron1848/mcprt/pkg/transport"
)

// State is a session's position in the handshake lifecycle
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Peer describes the other side as negotiated by the handshake
type Peer struct {
	ProtocolVersion string
	Capabilities    map[string]bool
	Name            string
	Version         string
}

// maxAbandoned bounds the ids of cancelled calls remembered so their late
// responses are dropped quietly.
const maxAbandoned = 1024

type outcome struct {
	resp *protocol.Response
	err  error
}

// Session is one JSON-RPC conversation. All methods are safe for concurrent
// use.
type Session struct {
	id            string
	transport     transport.Transport
	transportName string
	logger        logging.Logger
	instr         *observability.Instrumentation
	metrics       observability.Metrics
	opts          options

	state  atomic.Int32
	nextID atomic.Int64
	ready  chan struct{}
	peer   atomic.Pointer[Peer]

	mu                   sync.Mutex
	pending              map[protocol.RequestID]chan outcome
	abandoned            map[protocol.RequestID]struct{}
	inflight             map[protocol.RequestID]context.CancelFunc
	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string]NotificationHandler

	sem           *semaphore.Weighted
	notifications *notificationQueue
	handlers      sync.WaitGroup
	running       atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	// notifyCtx outlives ctx until notifications queued before the
	// transport ended have been handled.
	notifyCtx    context.Context
	notifyCancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

// New creates a session over t. The session does not read from t until Run
// is called.
func New(t transport.Transport, opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.transportName == "" {
		o.transportName = transportName(t)
	}

	s := &Session{
		id:                   o.sessionID,
		transport:            t,
		transportName:        o.transportName,
		opts:                 o,
		ready:                make(chan struct{}),
		pending:              make(map[protocol.RequestID]chan outcome),
		abandoned:            make(map[protocol.RequestID]struct{}),
		inflight:             make(map[protocol.RequestID]context.CancelFunc),
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string]NotificationHandler),
		sem:                  semaphore.NewWeighted(o.maxHandlers),
		notifications:        newNotificationQueue(),
		done:                 make(chan struct{}),
	}
	s.instr = observability.NewInstrumentation(o.tracer, o.metrics)
	s.metrics = s.instr.Metrics()

	fields := []logging.Field{logging.String("component", "session"), logging.String("transport", s.transportName)}
	if s.id != "" {
		fields = append(fields, logging.String("session_id", s.id))
	}
	s.logger = logging.OrGlobal(o.logger).WithFields(fields...)

	s.ctx, s.cancel = context.WithCancel(context.Background())
	if s.id != "" {
		s.ctx = logging.ContextWithSessionID(s.ctx, s.id)
	}
	s.ctx = withSession(s.ctx, s)
	s.notifyCtx, s.notifyCancel = context.WithCancel(context.WithoutCancel(s.ctx))

	s.metrics.SessionOpened(s.transportName)
	return s
}

func transportName(t transport.Transport) string {
	switch t.(type) {
	case *transport.CommandTransport:
		return string(transport.TypeCommand)
	case *transport.StdioTransport:
		return string(transport.TypeStdio)
	case *transport.StreamableHTTPClientTransport:
		return string(transport.TypeHTTP)
	default:
		return "custom"
	}
}

// ID returns the id given with WithSessionID
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state
func (s *Session) State() State {
	return State(s.state.Load())
}

// Ready is closed once the handshake completed
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Done is closed once the session closed
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session closed, or nil while it is open
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Peer returns what the handshake negotiated, or nil before Ready
func (s *Session) Peer() *Peer {
	return s.peer.Load()
}

// Transport returns the underlying transport
func (s *Session) Transport() transport.Transport {
	return s.transport
}

// HandleRequest registers the handler for method. Reserved methods and
// methods that already have a handler are rejected.
func (s *Session) HandleRequest(method string, h RequestHandler) error {
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

// HandleNotification registers the handler for notification method
func (s *Session) HandleNotification(method string, h NotificationHandler) error {
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

// Run reads and dispatches inbound messages until the transport ends, ctx is
// cancelled, or the session is closed. It returns the closure cause after
// every handler goroutine has finished.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session is already running")
	}

	stop := context.AfterFunc(ctx, func() {
		s.closeWithCause(mcperrors.SessionClosed(ctx.Err()), "context")
	})
	defer stop()

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		defer s.notifyCancel()
		s.notificationWorker()
	}()

	for {
		msg, err := s.transport.Receive(s.ctx)
		if err != nil {
			var decodeErr *protocol.DecodeError
			if errors.As(err, &decodeErr) {
				s.handleDecodeError(decodeErr)
				continue
			}
			if s.ctx.Err() == nil {
				s.closeWithCause(err, "transport")
			}
			break
		}
		s.dispatch(msg)
	}

	<-s.done
	s.handlers.Wait()
	<-workerDone
	return s.Err()
}

// Close closes the session and its transport. Pending calls fail with
// ErrSessionClosed. Close is idempotent.
func (s *Session) Close() error {
	s.closeWithCause(mcperrors.SessionClosed(nil), "local")
	return nil
}

func (s *Session) closeWithCause(cause error, reason string) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.errMu.Lock()
		s.err = cause
		s.errMu.Unlock()
		s.cancel()

		closedErr := cause
		if !mcperrors.Is(cause, mcperrors.ErrSessionClosed) {
			closedErr = mcperrors.SessionClosed(cause)
		}

		s.mu.Lock()
		pending := s.pending
		s.pending = make(map[protocol.RequestID]chan outcome)
		s.mu.Unlock()
		for _, ch := range pending {
			ch <- outcome{err: closedErr}
		}

		if reason == "transport" {
			// the peer is gone; what it sent before leaving is still handled
			s.notifications.close()
		} else {
			s.notifications.discard()
			s.notifyCancel()
		}
		if err := s.transport.Close(); err != nil {
			s.logger.WithError(err).Debug("Transport close failed")
		}

		s.metrics.SessionClosed(s.transportName, reason)
		s.logger.Info("Session closed", logging.String("reason", reason), logging.ErrorField(cause))
		close(s.done)
	})
}

// Initialize performs the handshake as the issuer. On success the session is
// Ready; on failure it is closed and the error wraps ErrInitializationFailed.
func (s *Session) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		if s.State() == StateClosed {
			return nil, mcperrors.SessionClosed(s.Err())
		}
		return nil, mcperrors.InvalidSequence(StateUninitialized.String(), s.State().String())
	}
	if params == nil {
		params = &protocol.InitializeParams{}
	}
	if params.ProtocolVersion == "" {
		params.ProtocolVersion = protocol.LatestProtocolVersion
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.handshakeTimeout)
	defer cancel()

	raw, err := s.call(ctx, protocol.MethodInitialize, params)
	if err != nil {
		return nil, s.failHandshake(mcperrors.InitializationFailed("initialize request failed", err))
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, s.failHandshake(mcperrors.InitializationFailed("malformed initialize result", err))
	}
	if !contains(s.opts.supportedVersions, result.ProtocolVersion) {
		return nil, s.failHandshake(mcperrors.VersionMismatch(result.ProtocolVersion, s.opts.supportedVersions))
	}
	if missing := protocol.MissingCapabilities(result.Capabilities, s.opts.requiredCaps); len(missing) > 0 {
		return nil, s.failHandshake(mcperrors.InitializationFailed(fmt.Sprintf("peer lacks required capabilities %v", missing), nil))
	}

	peer := &Peer{ProtocolVersion: result.ProtocolVersion, Capabilities: result.Capabilities}
	if result.ServerInfo != nil {
		peer.Name, peer.Version = result.ServerInfo.Name, result.ServerInfo.Version
	}
	if !s.becomeReady(peer) {
		return nil, mcperrors.SessionClosed(s.Err())
	}

	initialized, _ := protocol.NewNotification(protocol.MethodInitialized, nil)
	if err := s.transport.Send(ctx, initialized); err != nil {
		s.logger.WithError(err).Warn("Failed to send initialized notification")
	}

	s.logger.Info("Session initialized",
		logging.String("protocol_version", result.ProtocolVersion),
		logging.String("peer", peer.Name))
	return &result, nil
}

func (s *Session) failHandshake(err error) error {
	s.logger.WithError(err).Warn("Handshake failed")
	s.closeWithCause(err, "handshake")
	return err
}

func (s *Session) becomeReady(peer *Peer) bool {
	s.peer.Store(peer)
	if !s.state.CompareAndSwap(int32(StateInitializing), int32(StateReady)) {
		return false
	}
	close(s.ready)
	return true
}

// Call sends a request and waits for its outcome. Exactly one of these is
// returned: the result, the peer's *protocol.Error, an error wrapping
// ErrCancelled when ctx ends first, or one wrapping ErrSessionClosed. Calls
// before the handshake completed fail with ErrNotInitialized without sending
// anything.
func (s *Session) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	switch s.State() {
	case StateReady:
	case StateClosed:
		return nil, mcperrors.SessionClosed(s.Err())
	default:
		return nil, mcperrors.NotInitialized("call " + method)
	}
	return s.call(ctx, method, params)
}

func (s *Session) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := protocol.NewIntID(s.nextID.Add(1))
	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, mcperrors.WrapError(err, mcperrors.CodeInvalidParams, "failed to encode params")
	}

	ch := make(chan outcome, 1)
	s.mu.Lock()
	if s.State() == StateClosed {
		s.mu.Unlock()
		return nil, mcperrors.SessionClosed(s.Err())
	}
	s.pending[id] = ch
	s.mu.Unlock()

	ctx, finish := s.instr.StartCall(ctx, method)
	result, err := s.await(ctx, req, ch)
	finish(err)
	return result, err
}

func (s *Session) await(ctx context.Context, req *protocol.Request, ch chan outcome) (json.RawMessage, error) {
	if err := s.transport.Send(ctx, req); err != nil {
		if !s.release(req.ID) {
			return (<-ch).unpack()
		}
		switch {
		case ctx.Err() != nil:
			return nil, mcperrors.Cancelled(req.Method, ctx.Err())
		case mcperrors.Is(err, mcperrors.ErrTransportClosed):
			return nil, mcperrors.SessionClosed(err)
		}
		return nil, err
	}

	select {
	case o := <-ch:
		return o.unpack()
	case <-ctx.Done():
		if !s.release(req.ID) {
			// resolved while we were giving up; that outcome wins
			return (<-ch).unpack()
		}
		s.abandon(req.ID)
		go s.sendCancelled(req.ID, ctx.Err())
		return nil, mcperrors.Cancelled(req.Method, ctx.Err())
	}
}

// release removes the pending slot for id. It reports false when the slot was
// already taken by a response or by Close, in which case the channel holds
// the outcome.
func (s *Session) release(id protocol.RequestID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; !ok {
		return false
	}
	delete(s.pending, id)
	return true
}

func (s *Session) abandon(id protocol.RequestID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.abandoned) >= maxAbandoned {
		s.abandoned = make(map[protocol.RequestID]struct{})
	}
	s.abandoned[id] = struct{}{}
}

func (s *Session) sendCancelled(id protocol.RequestID, cause error) {
	n, err := protocol.NewNotification(protocol.MethodCancelled, protocol.CancelledParams{RequestID: id, Reason: cause.Error()})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	if err := s.transport.Send(ctx, n); err != nil {
		s.logger.WithError(err).Debug("Failed to send cancellation", logging.String("request_id", id.String()))
	}
}

func (o outcome) unpack() (json.RawMessage, error) {
	if o.err != nil {
		return nil, o.err
	}
	if o.resp.Error != nil {
		return nil, o.resp.Error
	}
	return o.resp.Result, nil
}

// Notify sends a notification. It is only legal once the session is Ready.
func (s *Session) Notify(ctx context.Context, method string, params interface{}) error {
	switch s.State() {
	case StateReady:
	case StateClosed:
		return mcperrors.SessionClosed(s.Err())
	default:
		return mcperrors.NotInitialized("notify " + method)
	}

	n, err := protocol.NewNotification(method, params)
	if err != nil {
		return mcperrors.WrapError(err, mcperrors.CodeInvalidParams, "failed to encode params")
	}
	if err := s.transport.Send(ctx, n); err != nil {
		if mcperrors.Is(err, mcperrors.ErrTransportClosed) {
			return mcperrors.SessionClosed(err)
		}
		return err
	}
	s.metrics.NotificationSent(method)
	return nil
}

func (s *Session) dispatch(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.Response:
		s.handleResponse(m)
	case *protocol.Request:
		s.handleRequest(m)
	case *protocol.Notification:
		s.handleNotification(m)
	}
}

func (s *Session) handleDecodeError(decodeErr *protocol.DecodeError) {
	s.metrics.DecodeError(s.transportName)
	if decodeErr.Response {
		s.handleMalformedResponse(decodeErr)
		return
	}
	s.logger.WithError(decodeErr).Warn("Discarding undecodable message")

	reply := &protocol.Response{ID: decodeErr.ID, Error: &protocol.Error{Code: decodeErr.Code(), Message: decodeErr.Reason}}
	if err := s.transport.Send(s.ctx, reply); err != nil {
		s.logger.WithError(err).Debug("Failed to report decode error")
	}
}

// handleMalformedResponse fails the call a broken response was addressed to.
// Nothing is sent back.
func (s *Session) handleMalformedResponse(decodeErr *protocol.DecodeError) {
	s.metrics.ProtocolViolation("malformed_response")
	violation := mcperrors.ProtocolViolation(decodeErr.Reason)
	s.logger.WithError(violation).Warn("Dropping malformed response", logging.String("request_id", decodeErr.ID.String()))

	if decodeErr.ID.IsZero() {
		return
	}
	s.mu.Lock()
	ch, ok := s.pending[decodeErr.ID]
	if ok {
		delete(s.pending, decodeErr.ID)
	}
	delete(s.abandoned, decodeErr.ID)
	s.mu.Unlock()

	if ok {
		ch <- outcome{err: violation}
	}
}

func (s *Session) handleResponse(resp *protocol.Response) {
	if resp.ID.IsZero() {
		s.logger.Warn("Peer reported an error without request id", logging.Any("error", resp.Error))
		return
	}

	s.mu.Lock()
	ch, ok := s.pending[resp.ID]
	if ok {
		delete(s.pending, resp.ID)
	}
	_, late := s.abandoned[resp.ID]
	if late {
		delete(s.abandoned, resp.ID)
	}
	s.mu.Unlock()

	switch {
	case ok:
		ch <- outcome{resp: resp}
	case late:
		s.logger.Debug("Discarding response to cancelled call", logging.String("request_id", resp.ID.String()))
	default:
		s.metrics.ProtocolViolation("unknown_response_id")
		s.logger.WithError(mcperrors.ProtocolViolation("response for unknown id "+resp.ID.String())).
			Warn("Dropping unexpected response")
	}
}

func (s *Session) handleRequest(req *protocol.Request) {
	switch req.Method {
	case protocol.MethodInitialize:
		s.handleInitialize(req)
		return
	case protocol.MethodPing:
		s.reply(req.ID, struct{}{}, nil)
		return
	}

	if state := s.State(); state != StateReady {
		s.reply(req.ID, nil, protocol.Errorf(protocol.NotInitialized, "session not initialized (state %s)", state))
		return
	}

	s.mu.Lock()
	h, ok := s.requestHandlers[req.Method]
	_, duplicate := s.inflight[req.ID]
	s.mu.Unlock()

	if !ok {
		s.reply(req.ID, nil, protocol.Errorf(protocol.MethodNotFound, "method not found: %s", req.Method))
		return
	}
	if duplicate {
		s.metrics.ProtocolViolation("duplicate_request_id")
		s.reply(req.ID, nil, protocol.Errorf(protocol.InvalidRequest, "request id %s is already in use", req.ID))
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	ctx = transport.ContextWithRelatedRequest(ctx, req.ID)
	ctx = logging.ContextWithRequestID(ctx, req.ID.String())

	s.mu.Lock()
	s.inflight[req.ID] = cancel
	s.mu.Unlock()

	s.handlers.Add(1)
	go func() {
		defer s.handlers.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, req.ID)
			s.mu.Unlock()
			cancel()
		}()

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return
		}
		defer s.sem.Release(1)

		hctx, finish := s.instr.StartHandler(ctx, req.Method)
		result, err := s.invoke(hctx, h, req)
		finish(err)

		// cancelled by the peer or by Close: the answer is not wanted
		if ctx.Err() != nil {
			return
		}
		s.reply(req.ID, result, err)
	}()
}

func (s *Session) invoke(ctx context.Context, h RequestHandler, req *protocol.Request) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithContext(ctx).Error("Handler panicked",
				logging.String("method", req.Method),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
			result, err = nil, protocol.Errorf(protocol.InternalError, "internal error")
		}
	}()
	return h(ctx, req.Params)
}

func (s *Session) reply(id protocol.RequestID, result interface{}, handlerErr error) {
	var resp *protocol.Response
	if handlerErr != nil {
		resp = mcperrors.ToJSONRPCResponse(handlerErr, id)
	} else {
		var err error
		resp, err = protocol.NewResponse(id, result)
		if err != nil {
			s.logger.WithError(err).Error("Failed to encode handler result")
			resp = &protocol.Response{ID: id, Error: protocol.Errorf(protocol.InternalError, "failed to encode result")}
		}
	}

	ctx := transport.ContextWithRelatedRequest(s.ctx, id)
	if err := s.transport.Send(ctx, resp); err != nil && s.ctx.Err() == nil {
		s.logger.WithError(err).Warn("Failed to send response", logging.String("request_id", id.String()))
	}
}

func (s *Session) handleInitialize(req *protocol.Request) {
	if s.opts.initHandler == nil {
		s.reply(req.ID, nil, protocol.Errorf(protocol.InvalidRequest, "peer does not accept initialize"))
		return
	}
	if !s.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		s.metrics.ProtocolViolation("repeated_initialize")
		s.reply(req.ID, nil, protocol.Errorf(protocol.InvalidRequest, "session already initialized"))
		return
	}

	var params protocol.InitializeParams
	if err := decodeParams(req.Params, &params); err != nil {
		s.rejectHandshake(req.ID, mcperrors.InitializationFailed("malformed initialize params", err))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.handshakeTimeout)
	defer cancel()

	result, err := s.opts.initHandler(ctx, &params)
	if err == nil && result == nil {
		err = mcperrors.InitializationFailed("no initialize result", nil)
	}
	if err != nil {
		if !mcperrors.Is(err, mcperrors.ErrInitializationFailed) {
			err = mcperrors.InitializationFailed("", err)
		}
		s.rejectHandshake(req.ID, err)
		return
	}

	peer := &Peer{ProtocolVersion: result.ProtocolVersion, Capabilities: params.Capabilities}
	if params.ClientInfo != nil {
		peer.Name, peer.Version = params.ClientInfo.Name, params.ClientInfo.Version
	}
	// Ready before replying, so a request right behind the peer's
	// initialized notification is not refused.
	if !s.becomeReady(peer) {
		return
	}
	s.reply(req.ID, result, nil)
	s.logger.Info("Session initialized",
		logging.String("protocol_version", result.ProtocolVersion),
		logging.String("peer", peer.Name))
}

// rejectHandshake answers initialize with InitializationFailed and closes
func (s *Session) rejectHandshake(id protocol.RequestID, err error) {
	rpcErr := mcperrors.ToJSONRPCError(err)
	if rpcErr.Code != protocol.InitializationFailed {
		rpcErr = &protocol.Error{Code: protocol.InitializationFailed, Message: rpcErr.Message, Data: rpcErr.Data}
	}
	s.reply(id, nil, rpcErr)
	s.logger.WithError(err).Warn("Handshake rejected")
	s.closeWithCause(err, "handshake")
}

func (s *Session) handleNotification(n *protocol.Notification) {
	switch n.Method {
	case protocol.MethodInitialized:
		s.logger.Debug("Peer confirmed initialization")
		return
	case protocol.MethodCancelled:
		s.handleCancelled(n)
		return
	}

	if s.State() != StateReady {
		s.logger.Debug("Dropping notification before initialization", logging.String("method", n.Method))
		return
	}
	s.metrics.NotificationReceived(n.Method)
	s.notifications.push(n)
}

func (s *Session) handleCancelled(n *protocol.Notification) {
	var params protocol.CancelledParams
	if err := json.Unmarshal(n.Params, &params); err != nil || params.RequestID.IsZero() {
		s.metrics.ProtocolViolation("malformed_cancel")
		return
	}

	s.mu.Lock()
	cancel, ok := s.inflight[params.RequestID]
	s.mu.Unlock()
	if ok {
		s.logger.Debug("Peer cancelled request",
			logging.String("request_id", params.RequestID.String()),
			logging.String("reason", params.Reason))
		cancel()
	}
}

func (s *Session) notificationWorker() {
	for {
		n, ok := s.notifications.pop()
		if !ok {
			return
		}

		s.mu.Lock()
		h, found := s.notificationHandlers[n.Method]
		s.mu.Unlock()
		if !found {
			s.logger.Debug("No handler for notification", logging.String("method", n.Method))
			continue
		}
		s.runNotification(h, n)
	}
}

func (s *Session) runNotification(h NotificationHandler, n *protocol.Notification) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Notification handler panicked",
				logging.String("method", n.Method),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
		}
	}()
	if err := h(s.notifyCtx, n.Params); err != nil {
		s.logger.WithError(err).Warn("Notification handler failed", logging.String("method", n.Method))
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
