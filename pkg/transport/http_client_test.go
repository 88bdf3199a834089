package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/protocol"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...HTTPClientOption) (*StreamableHTTPClientTransport, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append([]HTTPClientOption{
		WithHTTPLogger(logging.NewNop()),
		WithRetryPolicy(1, time.Millisecond, 10*time.Millisecond),
		WithReconnectDelay(10 * time.Millisecond),
	}, opts...)
	tr, err := NewStreamableHTTPClientTransport(srv.URL+"/mcp", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr, srv
}

func writeSSE(t *testing.T, w http.ResponseWriter, events ...Event) {
	t.Helper()
	for _, ev := range events {
		assert.NoError(t, WriteEvent(w, ev))
	}
	w.(http.Flusher).Flush()
}

func encode(t *testing.T, msg protocol.Message) []byte {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	return data
}

func receive(t *testing.T, tr Transport) protocol.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := tr.Receive(ctx)
	require.NoError(t, err)
	return msg
}

func TestNewStreamableHTTPClientTransportValidation(t *testing.T) {
	_, err := NewStreamableHTTPClientTransport("ftp://example.com/mcp")
	assert.Error(t, err)
	_, err = NewStreamableHTTPClientTransport("://bad")
	assert.Error(t, err)
}

func TestHTTPClientJSONResponseAndSessionHeader(t *testing.T) {
	var mu sync.Mutex
	var seenSessions []string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json, text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))

		mu.Lock()
		seenSessions = append(seenSessions, r.Header.Get(HeaderSessionID))
		mu.Unlock()

		body, _ := io.ReadAll(r.Body)
		msg, err := protocol.Decode(body)
		if !assert.NoError(t, err) {
			return
		}

		req, ok := msg.(*protocol.Request)
		if !ok {
			w.WriteHeader(http.StatusAccepted)
			return
		}
		resp, _ := protocol.NewResponse(req.ID, map[string]string{"method": req.Method})
		w.Header().Set(HeaderSessionID, "token-1")
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = w.Write(encode(t, resp))
	})

	tr, _ := newTestClient(t, handler, WithHeader("X-Test", "yes"))
	ctx := context.Background()

	require.NoError(t, tr.Send(ctx, &protocol.Request{ID: protocol.NewIntID(1), Method: protocol.MethodInitialize}))
	resp, ok := receive(t, tr).(*protocol.Response)
	require.True(t, ok)
	assert.Equal(t, protocol.NewIntID(1), resp.ID)
	assert.JSONEq(t, `{"method":"initialize"}`, string(resp.Result))
	assert.Equal(t, "token-1", tr.SessionID())

	require.NoError(t, tr.Send(ctx, &protocol.Notification{Method: protocol.MethodInitialized}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", "token-1"}, seenSessions)
}

func TestHTTPClientSSEResponse(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", ContentTypeEventStream)
		w.WriteHeader(http.StatusOK)
		writeSSE(t, w,
			Event{ID: "r1/1", Data: encode(t, &protocol.Notification{Method: "progress", Params: json.RawMessage(`{"n":1}`)})},
			Event{ID: "r1/2", Data: encode(t, &protocol.Notification{Method: "progress", Params: json.RawMessage(`{"n":2}`)})},
		)
		writeSSE(t, w, Event{ID: "r1/3", Data: encode(t, &protocol.Response{ID: protocol.NewIntID(7), Result: json.RawMessage(`{"done":true}`)})})
	})

	tr, _ := newTestClient(t, handler)
	require.NoError(t, tr.Send(context.Background(), &protocol.Request{ID: protocol.NewIntID(7), Method: "countdown"}))

	first := receive(t, tr).(*protocol.Notification)
	assert.JSONEq(t, `{"n":1}`, string(first.Params))
	second := receive(t, tr).(*protocol.Notification)
	assert.JSONEq(t, `{"n":2}`, string(second.Params))
	final := receive(t, tr).(*protocol.Response)
	assert.Equal(t, protocol.NewIntID(7), final.ID)
	assert.False(t, tr.Degraded())
}

func TestHTTPClientErrorStatuses(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-Case") {
		case "unavailable":
			w.WriteHeader(http.StatusServiceUnavailable)
		case "rpc-error":
			w.Header().Set("Content-Type", ContentTypeJSON)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32600,"message":"missing session"}}`))
		case "plain-text":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("hello"))
		}
	})

	t.Run("server error", func(t *testing.T) {
		tr, _ := newTestClient(t, handler, WithHeader("X-Case", "unavailable"))
		err := tr.Send(context.Background(), &protocol.Notification{Method: "x"})
		require.Error(t, err)
		assert.True(t, mcperrors.IsCode(err, mcperrors.CodeHTTPStatus))
	})

	t.Run("rejected request resolves with rpc error", func(t *testing.T) {
		tr, _ := newTestClient(t, handler, WithHeader("X-Case", "rpc-error"))
		require.NoError(t, tr.Send(context.Background(), &protocol.Request{ID: protocol.NewIntID(3), Method: "add"}))
		resp := receive(t, tr).(*protocol.Response)
		assert.Equal(t, protocol.NewIntID(3), resp.ID)
		assert.Equal(t, protocol.InvalidRequest, resp.Error.Code)
	})

	t.Run("unexpected content type", func(t *testing.T) {
		tr, _ := newTestClient(t, handler, WithHeader("X-Case", "plain-text"))
		err := tr.Send(context.Background(), &protocol.Request{ID: protocol.NewIntID(4), Method: "add"})
		assert.True(t, mcperrors.IsCategory(err, mcperrors.CategoryTransport))
	})
}

func TestHTTPClientSessionExpired(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderSessionID) == "" {
			w.Header().Set(HeaderSessionID, "gone-soon")
			w.WriteHeader(http.StatusAccepted)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	tr, _ := newTestClient(t, handler)
	require.NoError(t, tr.Send(context.Background(), &protocol.Notification{Method: "first"}))

	err := tr.Send(context.Background(), &protocol.Notification{Method: "second"})
	assert.True(t, mcperrors.Is(err, mcperrors.ErrTransportClosed))

	_, err = tr.Receive(context.Background())
	assert.True(t, mcperrors.Is(err, mcperrors.ErrTransportClosed))
}

func TestHTTPClientResumesDroppedStream(t *testing.T) {
	resumedFrom := make(chan string, 1)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", ContentTypeEventStream)
		switch r.Method {
		case http.MethodPost:
			writeSSE(t, w, Event{ID: "r1/1", Data: encode(t, &protocol.Notification{Method: "progress"})})
			// returning drops the stream before the response
		case http.MethodGet:
			resumedFrom <- r.Header.Get(HeaderLastEventID)
			writeSSE(t, w, Event{ID: "r1/2", Data: encode(t, &protocol.Response{ID: protocol.NewIntID(1), Result: json.RawMessage(`5`)})})
		}
	})

	tr, _ := newTestClient(t, handler)
	require.NoError(t, tr.Send(context.Background(), &protocol.Request{ID: protocol.NewIntID(1), Method: "add"}))

	assert.IsType(t, &protocol.Notification{}, receive(t, tr))
	resp := receive(t, tr).(*protocol.Response)
	assert.JSONEq(t, `5`, string(resp.Result))
	assert.Equal(t, "r1/1", <-resumedFrom)
	assert.False(t, tr.Degraded())
}

func TestHTTPClientUnresumableStream(t *testing.T) {
	tests := []struct {
		name      string
		firstID   string
		getStatus int
	}{
		{name: "server lost history", firstID: "r1/1", getStatus: http.StatusConflict},
		{name: "no event id to resume from", firstID: "", getStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodGet {
					w.WriteHeader(tt.getStatus)
					return
				}
				w.Header().Set("Content-Type", ContentTypeEventStream)
				writeSSE(t, w, Event{ID: tt.firstID, Data: encode(t, &protocol.Notification{Method: "progress"})})
			})

			tr, _ := newTestClient(t, handler)
			require.NoError(t, tr.Send(context.Background(), &protocol.Request{ID: protocol.NewIntID(9), Method: "slow"}))

			assert.IsType(t, &protocol.Notification{}, receive(t, tr))
			resp := receive(t, tr).(*protocol.Response)
			assert.Equal(t, protocol.NewIntID(9), resp.ID)
			require.NotNil(t, resp.Error)
			assert.Equal(t, protocol.ConnectionLost, resp.Error.Code)
			assert.True(t, tr.Degraded())
		})
	}
}

func TestHTTPClientStopsResumingFinishedStream(t *testing.T) {
	var gets atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", ContentTypeEventStream)
		if r.Method == http.MethodGet {
			// a retired stream replays nothing and ends
			gets.Add(1)
			w.WriteHeader(http.StatusOK)
			return
		}
		writeSSE(t, w, Event{ID: "r1/1", Data: encode(t, &protocol.Notification{Method: "progress"})})
	})

	tr, _ := newTestClient(t, handler)
	require.NoError(t, tr.Send(context.Background(), &protocol.Request{ID: protocol.NewIntID(2), Method: "slow"}))

	assert.IsType(t, &protocol.Notification{}, receive(t, tr))
	resp := receive(t, tr).(*protocol.Response)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.ConnectionLost, resp.Error.Code)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), gets.Load())
}

func TestHTTPClientCancelledCallIsNotResumed(t *testing.T) {
	var gets atomic.Int32
	cancelled := make(chan struct{})
	var once sync.Once

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
			w.Header().Set("Content-Type", ContentTypeEventStream)
			w.WriteHeader(http.StatusOK)
			return
		}
		body, _ := io.ReadAll(r.Body)
		msg, err := protocol.Decode(body)
		assert.NoError(t, err)
		if n, ok := msg.(*protocol.Notification); ok {
			assert.Equal(t, protocol.MethodCancelled, n.Method)
			once.Do(func() { close(cancelled) })
			w.WriteHeader(http.StatusAccepted)
			return
		}

		w.Header().Set("Content-Type", ContentTypeEventStream)
		writeSSE(t, w, Event{ID: "r1/1", Data: encode(t, &protocol.Notification{Method: "progress"})})
		select {
		case <-cancelled:
		case <-r.Context().Done():
		}
	})

	tr, _ := newTestClient(t, handler)
	require.NoError(t, tr.Send(context.Background(), &protocol.Request{ID: protocol.NewIntID(5), Method: "slow"}))
	assert.IsType(t, &protocol.Notification{}, receive(t, tr))

	cancel, err := protocol.NewNotification(protocol.MethodCancelled, protocol.CancelledParams{RequestID: protocol.NewIntID(5)})
	require.NoError(t, err)
	require.NoError(t, tr.Send(context.Background(), cancel))

	ctx, stop := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer stop()
	_, err = tr.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, gets.Load())
	assert.False(t, tr.Degraded())
}

func TestHTTPClientPushStream(t *testing.T) {
	var mu sync.Mutex
	var lastEventIDs []string
	gets := 0

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.Header().Set(HeaderSessionID, "s1")
			w.WriteHeader(http.StatusAccepted)
		case http.MethodGet:
			assert.Equal(t, ContentTypeEventStream, r.Header.Get("Accept"))
			assert.Equal(t, "s1", r.Header.Get(HeaderSessionID))

			mu.Lock()
			gets++
			n := gets
			lastEventIDs = append(lastEventIDs, r.Header.Get(HeaderLastEventID))
			mu.Unlock()

			switch n {
			case 1:
				w.Header().Set("Content-Type", ContentTypeEventStream)
				writeSSE(t, w, Event{ID: "push/1", Data: encode(t, &protocol.Notification{Method: "announce"})})
			case 2:
				w.WriteHeader(http.StatusConflict)
			case 3:
				w.Header().Set("Content-Type", ContentTypeEventStream)
				writeSSE(t, w, Event{ID: "push/9", Data: encode(t, &protocol.Request{ID: protocol.NewStringID("srv-1"), Method: "ask"})})
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		}
	})

	tr, _ := newTestClient(t, handler)
	err := tr.StartPushStream(context.Background())
	assert.Error(t, err, "push stream needs a session")

	require.NoError(t, tr.Send(context.Background(), &protocol.Notification{Method: "hello"}))
	require.NoError(t, tr.StartPushStream(context.Background()))
	require.NoError(t, tr.StartPushStream(context.Background()))

	assert.Equal(t, &protocol.Notification{Method: "announce"}, receive(t, tr))
	req := receive(t, tr).(*protocol.Request)
	assert.Equal(t, "ask", req.Method)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gets == 4
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"", "push/1", "", "push/9"}, lastEventIDs)
	mu.Unlock()
	assert.True(t, tr.Degraded())
}

func TestHTTPClientCloseDeletesSession(t *testing.T) {
	deleted := make(chan string, 1)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodDelete:
			deleted <- r.Header.Get(HeaderSessionID)
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set(HeaderSessionID, "to-delete")
			w.WriteHeader(http.StatusAccepted)
		}
	})

	tr, _ := newTestClient(t, handler)
	require.NoError(t, tr.Send(context.Background(), &protocol.Notification{Method: "hello"}))
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	select {
	case id := <-deleted:
		assert.Equal(t, "to-delete", id)
	case <-time.After(time.Second):
		t.Fatal("no DELETE sent")
	}

	err := tr.Send(context.Background(), &protocol.Notification{Method: "late"})
	assert.True(t, mcperrors.Is(err, mcperrors.ErrTransportClosed))
}
