package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
	"github.com/Rheron1848/mcprt/pkg/protocol"
	"github.com/Rheron1848/mcprt/pkg/session"
	"github.com/Rheron1848/mcprt/pkg/transport"
)

// maxRetainedStreams bounds finished request streams kept for resumption
const maxRetainedStreams = 64

type requestRoute struct {
	stream *eventStream
	// jsonOnly routes everything but the final response to the push stream
	jsonOnly bool
}

// httpSession is the transport behind one HTTP session. POST bodies are fed
// to Receive; Send routes outbound messages onto event streams: anything
// related to an open POST request goes on that request's stream and the
// rest goes on the standalone push stream.
type httpSession struct {
	token     string
	sess      *session.Session
	createdAt time.Time

	inbound   chan protocol.Message
	closed    chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	lastUsed  time.Time
	push      *eventStream
	streams   map[string]*eventStream
	retired   []string
	byRequest map[protocol.RequestID]*requestRoute
	replay    int
}

func newHTTPSession(token string, now time.Time, replay int) *httpSession {
	push := newEventStream(pushStreamID, replay)
	return &httpSession{
		token:     token,
		createdAt: now,
		lastUsed:  now,
		inbound:   make(chan protocol.Message, 32),
		closed:    make(chan struct{}),
		push:      push,
		streams:   map[string]*eventStream{pushStreamID: push},
		byRequest: make(map[protocol.RequestID]*requestRoute),
		replay:    replay,
	}
}

func closedHTTP() error {
	return mcperrors.TransportClosed(string(transport.TypeHTTP), nil)
}

// Send implements transport.Transport
func (hs *httpSession) Send(ctx context.Context, msg protocol.Message) error {
	select {
	case <-hs.closed:
		return closedHTTP()
	default:
	}

	if resp, ok := msg.(*protocol.Response); ok && !resp.ID.IsZero() {
		hs.mu.Lock()
		route := hs.byRequest[resp.ID]
		delete(hs.byRequest, resp.ID)
		hs.mu.Unlock()

		if route != nil {
			err := route.stream.publish(resp, true)
			hs.retire(route.stream)
			return err
		}
	} else if id, ok := transport.RelatedRequest(ctx); ok {
		hs.mu.Lock()
		route := hs.byRequest[id]
		hs.mu.Unlock()

		if route != nil && !route.jsonOnly {
			if err := route.stream.publish(msg, false); err == nil {
				return nil
			}
		}
	}

	return hs.push.publish(msg, false)
}

// Receive implements transport.Transport
func (hs *httpSession) Receive(ctx context.Context) (protocol.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-hs.closed:
		return nil, closedHTTP()
	case msg := <-hs.inbound:
		return msg, nil
	}
}

// Close implements transport.Transport
func (hs *httpSession) Close() error {
	hs.closeOnce.Do(func() {
		close(hs.closed)

		hs.mu.Lock()
		defer hs.mu.Unlock()
		for _, st := range hs.streams {
			st.close()
		}
		for _, route := range hs.byRequest {
			route.stream.close()
		}
	})
	return nil
}

// deliver hands a POSTed message to the session
func (hs *httpSession) deliver(ctx context.Context, msg protocol.Message) error {
	if n, ok := msg.(*protocol.Notification); ok && n.Method == protocol.MethodCancelled {
		var params protocol.CancelledParams
		if json.Unmarshal(n.Params, &params) == nil {
			hs.abandonRequest(params.RequestID)
		}
	}

	select {
	case <-hs.closed:
		return closedHTTP()
	case <-ctx.Done():
		return ctx.Err()
	case hs.inbound <- msg:
		return nil
	}
}

// openRequest creates the stream that carries everything related to id
func (hs *httpSession) openRequest(id protocol.RequestID, jsonOnly bool) (*eventStream, error) {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	select {
	case <-hs.closed:
		return nil, closedHTTP()
	default:
	}
	if _, exists := hs.byRequest[id]; exists {
		return nil, fmt.Errorf("request id %s is already in use", id)
	}

	st := newEventStream(uuid.NewString(), hs.replay)
	hs.byRequest[id] = &requestRoute{stream: st, jsonOnly: jsonOnly}
	if !jsonOnly {
		hs.streams[st.id] = st
	}
	return st, nil
}

// abandonRequest ends the stream of a request that will get no response
func (hs *httpSession) abandonRequest(id protocol.RequestID) {
	hs.mu.Lock()
	route := hs.byRequest[id]
	delete(hs.byRequest, id)
	hs.mu.Unlock()

	if route != nil {
		hs.retire(route.stream)
	}
}

// retire finishes a request stream and keeps it around for late resumption
func (hs *httpSession) retire(st *eventStream) {
	st.finish()

	hs.mu.Lock()
	defer hs.mu.Unlock()
	if _, ok := hs.streams[st.id]; !ok {
		return
	}
	hs.retired = append(hs.retired, st.id)
	if len(hs.retired) > maxRetainedStreams {
		delete(hs.streams, hs.retired[0])
		hs.retired = hs.retired[1:]
	}
}

func (hs *httpSession) stream(id string) *eventStream {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return hs.streams[id]
}

func (hs *httpSession) touch(now time.Time) {
	hs.mu.Lock()
	hs.lastUsed = now
	hs.mu.Unlock()
}

// idle reports how long the session has been unused. Sessions with a
// request in flight or a reader attached are never idle.
func (hs *httpSession) idle(now time.Time) time.Duration {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if len(hs.byRequest) > 0 {
		return 0
	}
	for _, st := range hs.streams {
		if st.isAttached() {
			return 0
		}
	}
	return now.Sub(hs.lastUsed)
}

func (hs *httpSession) info() SessionInfo {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	info := SessionInfo{
		ID:         hs.token,
		CreatedAt:  hs.createdAt,
		LastUsedAt: hs.lastUsed,
		State:      hs.sess.State().String(),
	}
	if peer := hs.sess.Peer(); peer != nil {
		info.ProtocolVersion = peer.ProtocolVersion
		info.ClientName = peer.Name
	}
	return info
}
