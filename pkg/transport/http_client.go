package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/observability"
	"github.com/Rheron1848/mcprt/pkg/protocol"
)

const (
	// DefaultReconnectDelay is the pause before the push stream reconnects
	DefaultReconnectDelay = time.Second

	maxDrainBytes  = 64 << 10
	incomingBuffer = 256
)

type inbound struct {
	msg protocol.Message
	err error
}

// requestStream is one SSE response to a POST. It carries the responses to
// the requests in flight on it.
type requestStream struct {
	label       string
	lastEventID string
}

// StreamableHTTPClientTransport is the client side of the streamable HTTP
// binding. Each outbound message is a POST to one endpoint; the server
// answers with a single JSON message, with an SSE stream of related
// messages, or with 202 when there is nothing to answer. StartPushStream
// opens the GET stream the server uses for messages it initiates.
type StreamableHTTPClientTransport struct {
	endpoint       string
	client         *http.Client
	retry          *retryablehttp.Client
	headers        map[string]string
	logger         logging.Logger
	metrics        observability.Metrics
	reconnectDelay time.Duration
	retryMax       int
	retryWaitMin   time.Duration
	retryWaitMax   time.Duration

	mu        sync.Mutex
	sessionID string
	inflight  map[protocol.RequestID]*requestStream
	streamSeq int

	degraded atomic.Bool
	pushing  atomic.Bool
	expired  atomic.Bool

	incoming  chan inbound
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

// HTTPClientOption configures a StreamableHTTPClientTransport
type HTTPClientOption func(*StreamableHTTPClientTransport)

// WithHTTPClient sets the client used for every request. It must not set a
// Timeout because event streams stay open indefinitely.
func WithHTTPClient(client *http.Client) HTTPClientOption {
	return func(t *StreamableHTTPClientTransport) {
		t.client = client
	}
}

// WithHeader adds a header to every request
func WithHeader(key, value string) HTTPClientOption {
	return func(t *StreamableHTTPClientTransport) {
		t.headers[key] = value
	}
}

// WithHTTPLogger sets the transport's logger
func WithHTTPLogger(logger logging.Logger) HTTPClientOption {
	return func(t *StreamableHTTPClientTransport) {
		t.logger = logger
	}
}

// WithHTTPMetrics sets the metrics sink for stream resumptions
func WithHTTPMetrics(metrics observability.Metrics) HTTPClientOption {
	return func(t *StreamableHTTPClientTransport) {
		t.metrics = metrics
	}
}

// WithRetryPolicy configures the retries of GET stream requests
func WithRetryPolicy(maxRetries int, waitMin, waitMax time.Duration) HTTPClientOption {
	return func(t *StreamableHTTPClientTransport) {
		t.retryMax = maxRetries
		t.retryWaitMin = waitMin
		t.retryWaitMax = waitMax
	}
}

// WithReconnectDelay sets the pause before the push stream reconnects
func WithReconnectDelay(d time.Duration) HTTPClientOption {
	return func(t *StreamableHTTPClientTransport) {
		t.reconnectDelay = d
	}
}

// NewStreamableHTTPClientTransport creates a transport for the given endpoint
func NewStreamableHTTPClientTransport(endpoint string, opts ...HTTPClientOption) (*StreamableHTTPClientTransport, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, mcperrors.TransportError(string(TypeHTTP), "configure", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, mcperrors.TransportError(string(TypeHTTP), "configure", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme))
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &StreamableHTTPClientTransport{
		endpoint:       endpoint,
		client:         &http.Client{},
		headers:        make(map[string]string),
		metrics:        observability.NoopMetrics{},
		reconnectDelay: DefaultReconnectDelay,
		retryMax:       3,
		retryWaitMin:   500 * time.Millisecond,
		retryWaitMax:   10 * time.Second,
		inflight:       make(map[protocol.RequestID]*requestStream),
		incoming:       make(chan inbound, incomingBuffer),
		ctx:            ctx,
		cancel:         cancel,
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.OrGlobal(t.logger).WithFields(
		logging.String("transport", string(TypeHTTP)),
		logging.String("endpoint", endpoint),
	)

	t.retry = retryablehttp.NewClient()
	t.retry.HTTPClient = t.client
	t.retry.RetryMax = t.retryMax
	t.retry.RetryWaitMin = t.retryWaitMin
	t.retry.RetryWaitMax = t.retryWaitMax
	t.retry.Logger = logging.NewRetryableHTTPLogger(t.logger, "http_stream")

	return t, nil
}

// SessionID returns the session token assigned by the server, if any
func (t *StreamableHTTPClientTransport) SessionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionID
}

// Degraded reports whether a stream was lost without its history, so some
// server messages may never arrive.
func (t *StreamableHTTPClientTransport) Degraded() bool {
	return t.degraded.Load()
}

// Send POSTs msg to the endpoint and queues whatever the server answers
func (t *StreamableHTTPClientTransport) Send(ctx context.Context, msg protocol.Message) error {
	if t.isClosed() {
		return closedError(TypeHTTP, nil)
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	t.forgetCancelled(msg)

	// The request lives as long as the transport so a streamed answer
	// survives the caller; ctx only bounds the wait for response headers.
	reqCtx, cancelReq := context.WithCancel(t.ctx)
	stop := context.AfterFunc(ctx, cancelReq)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, t.endpoint, bytes.NewReader(data))
	if err != nil {
		stop()
		cancelReq()
		return mcperrors.TransportError(string(TypeHTTP), "post", err)
	}
	req.Header.Set("Content-Type", ContentTypeJSON)
	req.Header.Set("Accept", ContentTypeJSON+", "+ContentTypeEventStream)
	t.applyHeaders(req.Header)

	resp, err := t.client.Do(req)
	if !stop() {
		cancelReq()
		if resp != nil {
			_ = resp.Body.Close()
		}
		return ctx.Err()
	}
	if err != nil {
		cancelReq()
		if t.isClosed() {
			return closedError(TypeHTTP, err)
		}
		return mcperrors.TransportError(string(TypeHTTP), "post", err)
	}

	return t.handlePostResponse(msg, resp, cancelReq)
}

func (t *StreamableHTTPClientTransport) handlePostResponse(msg protocol.Message, resp *http.Response, cancelReq context.CancelFunc) error {
	if id := resp.Header.Get(HeaderSessionID); id != "" {
		t.mu.Lock()
		t.sessionID = id
		t.mu.Unlock()
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && t.SessionID() != "":
		drain(resp)
		cancelReq()
		t.logger.Warn("Session no longer exists on the server")
		t.expire()
		return closedError(TypeHTTP, mcperrors.HTTPStatusError("post", t.endpoint, resp.StatusCode))

	case resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent:
		drain(resp)
		cancelReq()
		return nil

	case resp.StatusCode >= http.StatusBadRequest:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDrainBytes))
		_ = resp.Body.Close()
		cancelReq()
		if reply := errorReply(msg, resp, body); reply != nil {
			t.deliver(reply, nil)
			return nil
		}
		return mcperrors.HTTPStatusError("post", t.endpoint, resp.StatusCode)
	}

	switch mediaType(resp) {
	case ContentTypeEventStream:
		st := t.openRequestStream(msg)
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			defer cancelReq()
			t.consumeRequestStream(st, resp.Body)
		}()
		return nil

	case ContentTypeJSON:
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		cancelReq()
		if err != nil {
			return mcperrors.TransportError(string(TypeHTTP), "read_response", err)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return nil
		}
		reply, err := protocol.Decode(body)
		t.deliver(reply, err)
		return nil

	default:
		drain(resp)
		cancelReq()
		return mcperrors.TransportError(string(TypeHTTP), "post",
			fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type")))
	}
}

// errorReply extracts a JSON-RPC error response from a rejected POST so the
// pending call resolves with the server's reason.
func errorReply(msg protocol.Message, resp *http.Response, body []byte) *protocol.Response {
	req, ok := msg.(*protocol.Request)
	if !ok || mediaType(resp) != ContentTypeJSON {
		return nil
	}
	decoded, err := protocol.Decode(body)
	if err != nil {
		return nil
	}
	reply, ok := decoded.(*protocol.Response)
	if !ok || reply.Error == nil {
		return nil
	}
	if reply.ID.IsZero() {
		reply.ID = req.ID
	}
	return reply
}

// forgetCancelled stops waiting for the response to a request the caller has
// cancelled, so its stream is not resumed for an answer nobody reads.
func (t *StreamableHTTPClientTransport) forgetCancelled(msg protocol.Message) {
	n, ok := msg.(*protocol.Notification)
	if !ok || n.Method != protocol.MethodCancelled {
		return
	}
	var params protocol.CancelledParams
	if err := json.Unmarshal(n.Params, &params); err != nil || params.RequestID.IsZero() {
		return
	}
	t.mu.Lock()
	delete(t.inflight, params.RequestID)
	t.mu.Unlock()
}

func (t *StreamableHTTPClientTransport) openRequestStream(msg protocol.Message) *requestStream {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.streamSeq++
	st := &requestStream{label: fmt.Sprintf("post-%d", t.streamSeq)}
	if req, ok := msg.(*protocol.Request); ok {
		t.inflight[req.ID] = st
	}
	return st
}

// consumeRequestStream reads a POST's event stream. If it drops while
// responses are still owed, it is resumed from the last event id with a
// growing pause between attempts. A resumed stream that ends without a new
// event has nothing left to give; it and any failed resumption answer the
// owed calls with ConnectionLost.
func (t *StreamableHTTPClientTransport) consumeRequestStream(st *requestStream, body io.ReadCloser) {
	delay := t.retryWaitMin
	for attempt := 0; ; attempt++ {
		delivered := t.readEvents(body, &st.lastEventID)
		if t.isClosed() || len(t.pendingOn(st)) == 0 {
			return
		}

		switch {
		case st.lastEventID == "":
			t.abandon(st, mcperrors.StreamUnresumable(st.label, "", nil))
			return
		case attempt > 0 && delivered == 0:
			t.abandon(st, mcperrors.StreamUnresumable(st.label, st.lastEventID,
				errors.New("resumed stream ended without new events")))
			return
		}

		if attempt > 0 {
			select {
			case <-t.ctx.Done():
				return
			case <-time.After(delay):
			}
			if delay *= 2; delay > t.retryWaitMax {
				delay = t.retryWaitMax
			}
		}

		t.logger.Debug("Resuming dropped response stream",
			logging.String("stream", st.label),
			logging.String("last_event_id", st.lastEventID))

		resp, err := t.openGet(t.ctx, st.lastEventID)
		if err != nil {
			t.metrics.StreamResumed("failed")
			t.abandon(st, mcperrors.StreamUnresumable(st.label, st.lastEventID, err))
			return
		}
		if resp.StatusCode != http.StatusOK || mediaType(resp) != ContentTypeEventStream {
			drain(resp)
			t.metrics.StreamResumed("unresumable")
			t.abandon(st, mcperrors.StreamUnresumable(st.label, st.lastEventID,
				mcperrors.HTTPStatusError("resume", t.endpoint, resp.StatusCode)))
			return
		}

		t.metrics.StreamResumed("resumed")
		body = resp.Body
	}
}

// readEvents delivers every message on an event stream until it ends and
// returns how many messages it delivered.
func (t *StreamableHTTPClientTransport) readEvents(body io.ReadCloser, lastEventID *string) int {
	defer body.Close()

	reader := NewEventReader(body)
	delivered := 0
	for {
		ev, err := reader.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && !t.isClosed() {
				t.logger.WithError(err).Debug("Event stream interrupted")
			}
			return delivered
		}
		if ev.ID != "" {
			*lastEventID = ev.ID
		}
		if len(ev.Data) == 0 {
			continue
		}
		delivered++

		msg, err := protocol.Decode(ev.Data)
		if resp, ok := msg.(*protocol.Response); ok {
			t.mu.Lock()
			delete(t.inflight, resp.ID)
			t.mu.Unlock()
		}
		t.deliver(msg, err)
	}
}

func (t *StreamableHTTPClientTransport) pendingOn(st *requestStream) []protocol.RequestID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var ids []protocol.RequestID
	for id, owner := range t.inflight {
		if owner == st {
			ids = append(ids, id)
		}
	}
	return ids
}

// abandon answers every call still owed by st with ConnectionLost
func (t *StreamableHTTPClientTransport) abandon(st *requestStream, cause error) {
	t.degraded.Store(true)
	t.logger.WithError(cause).Warn("Response stream lost", logging.String("stream", st.label))

	t.mu.Lock()
	var ids []protocol.RequestID
	for id, owner := range t.inflight {
		if owner == st {
			ids = append(ids, id)
			delete(t.inflight, id)
		}
	}
	t.mu.Unlock()

	for _, id := range ids {
		t.deliver(&protocol.Response{
			ID: id,
			Error: &protocol.Error{
				Code:    protocol.ConnectionLost,
				Message: "connection lost before the response was delivered",
			},
		}, nil)
	}
}

// StartPushStream opens the GET stream for server-initiated messages. It
// returns immediately; the stream reconnects after drops until ctx is done or
// the transport closes. Calling it again is a no-op.
func (t *StreamableHTTPClientTransport) StartPushStream(ctx context.Context) error {
	if t.isClosed() {
		return closedError(TypeHTTP, nil)
	}
	if t.SessionID() == "" {
		return mcperrors.TransportError(string(TypeHTTP), "push_stream", errors.New("no session established"))
	}
	if !t.pushing.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(t.ctx, cancel)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer stop()
		defer cancel()
		t.runPushStream(ctx)
	}()
	return nil
}

func (t *StreamableHTTPClientTransport) runPushStream(ctx context.Context) {
	var lastEventID string

	for {
		resp, err := t.openGet(ctx, lastEventID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.WithError(err).Warn("Push stream request failed")
		} else {
			switch status := resp.StatusCode; {
			case status == http.StatusOK:
				if lastEventID != "" {
					t.metrics.StreamResumed("resumed")
				}
				t.readEvents(resp.Body, &lastEventID)

			case status == http.StatusMethodNotAllowed:
				drain(resp)
				t.logger.Debug("Server does not offer a push stream")
				return

			case status == http.StatusNotFound:
				drain(resp)
				t.logger.Warn("Session no longer exists on the server")
				t.expire()
				return

			case status == http.StatusConflict && lastEventID != "":
				drain(resp)
				t.metrics.StreamResumed("unresumable")
				t.degraded.Store(true)
				t.logger.WithError(mcperrors.StreamUnresumable("push", lastEventID, nil)).
					Warn("Push stream history lost, reopening")
				lastEventID = ""
				continue

			case status == http.StatusConflict:
				drain(resp)
				t.logger.Warn("Another push stream is attached to this session")
				return

			default:
				drain(resp)
				t.logger.WithError(mcperrors.HTTPStatusError("push_stream", t.endpoint, status)).
					Warn("Push stream rejected")
			}
		}

		timer := time.NewTimer(t.reconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (t *StreamableHTTPClientTransport) openGet(ctx context.Context, lastEventID string) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, t.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", ContentTypeEventStream)
	t.applyHeaders(req.Header)
	if lastEventID != "" {
		req.Header.Set(HeaderLastEventID, lastEventID)
	}
	return t.retry.Do(req)
}

// Receive returns the next message from any of the transport's streams
func (t *StreamableHTTPClientTransport) Receive(ctx context.Context) (protocol.Message, error) {
	select {
	case in := <-t.incoming:
		return in.msg, in.err
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case in := <-t.incoming:
		return in.msg, in.err
	case <-t.closed:
		return nil, closedError(TypeHTTP, nil)
	}
}

func (t *StreamableHTTPClientTransport) deliver(msg protocol.Message, err error) {
	select {
	case t.incoming <- inbound{msg: msg, err: err}:
	case <-t.closed:
	}
}

// Close ends the session on the server with a DELETE, best effort, then
// stops every stream.
func (t *StreamableHTTPClientTransport) Close() error {
	t.closeOnce.Do(func() {
		if id := t.SessionID(); id != "" && !t.expired.Load() {
			t.deleteSession()
		}
		t.shutdown()
	})
	t.wg.Wait()
	return nil
}

func (t *StreamableHTTPClientTransport) deleteSession() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, t.endpoint, nil)
	if err != nil {
		return
	}
	t.applyHeaders(req.Header)

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.WithError(err).Debug("Session delete failed")
		return
	}
	drain(resp)
}

func (t *StreamableHTTPClientTransport) expire() {
	t.expired.Store(true)
	t.closeOnce.Do(t.shutdown)
}

func (t *StreamableHTTPClientTransport) shutdown() {
	close(t.closed)
	t.cancel()
}

func (t *StreamableHTTPClientTransport) isClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

func (t *StreamableHTTPClientTransport) applyHeaders(h http.Header) {
	for k, v := range t.headers {
		h.Set(k, v)
	}
	if id := t.SessionID(); id != "" {
		h.Set(HeaderSessionID, id)
	}
}

func mediaType(resp *http.Response) string {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}
