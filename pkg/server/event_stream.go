package server

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
	"github.com/Rheron1848/mcprt/pkg/protocol"
	"github.com/Rheron1848/mcprt/pkg/transport"
)

const (
	// DefaultReplayBuffer is how many delivered events a stream keeps for
	// resumption
	DefaultReplayBuffer = 256

	// maxUndelivered caps events queued for a stream nobody is reading
	maxUndelivered = 1024

	pushStreamID = "push"
)

type streamEvent struct {
	seq   uint64
	final bool
	event transport.Event
}

// eventStream is an ordered, replayable sequence of SSE events. Events get
// ids "<stream>/<seq>". Queued events move to the history once handed to a
// writer; the history keeps the last replay events so a reader that lost its
// connection can resume after the last id it saw.
type eventStream struct {
	id     string
	replay int

	mu       sync.Mutex
	seq      uint64
	dropped  uint64 // highest seq evicted from the queue undelivered
	queue    []streamEvent
	history  []streamEvent
	attached bool
	finished bool
	closed   bool
	signal   chan struct{}
}

func newEventStream(id string, replay int) *eventStream {
	return &eventStream{
		id:     id,
		replay: replay,
		signal: make(chan struct{}, 1),
	}
}

func (st *eventStream) notify() {
	select {
	case st.signal <- struct{}{}:
	default:
	}
}

// publish appends msg. final marks the response that ends a request stream.
func (st *eventStream) publish(msg protocol.Message, final bool) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed || st.finished {
		return mcperrors.TransportClosed(string(transport.TypeHTTP), nil)
	}

	st.seq++
	st.queue = append(st.queue, streamEvent{
		seq:   st.seq,
		final: final,
		event: transport.Event{ID: fmt.Sprintf("%s/%d", st.id, st.seq), Type: "message", Data: data},
	})
	if len(st.queue) > maxUndelivered {
		st.dropped = st.queue[0].seq
		st.queue[0] = streamEvent{}
		st.queue = st.queue[1:]
	}
	st.notify()
	return nil
}

// finish marks the stream complete; readers end after draining the queue
func (st *eventStream) finish() {
	st.mu.Lock()
	st.finished = true
	st.mu.Unlock()
	st.notify()
}

// close ends the stream for good when its session goes away
func (st *eventStream) close() {
	st.mu.Lock()
	st.closed = true
	st.mu.Unlock()
	st.notify()
}

func (st *eventStream) attach() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.attached {
		return false
	}
	st.attached = true
	return true
}

func (st *eventStream) detach() {
	st.mu.Lock()
	st.attached = false
	st.mu.Unlock()
}

func (st *eventStream) isAttached() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.attached
}

// take hands the queued events to a writer. done reports that the stream
// has ended and nothing more will follow.
func (st *eventStream) take() (events []streamEvent, done bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	events = st.queue
	st.queue = nil
	if st.replay > 0 {
		st.history = append(st.history, events...)
		if excess := len(st.history) - st.replay; excess > 0 {
			st.history = append([]streamEvent(nil), st.history[excess:]...)
		}
	}
	return events, st.closed || st.finished
}

// peek reports whether a writer has something to act on. finalOnly means
// the only thing queued is the final response, which lets a POST answer
// with plain JSON; empty means the stream ended with nothing queued.
func (st *eventStream) peek() (ready, finalOnly, empty bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	ended := st.closed || st.finished
	ready = len(st.queue) > 0 || ended
	finalOnly = len(st.queue) == 1 && st.queue[0].final
	empty = ended && len(st.queue) == 0
	return ready, finalOnly, empty
}

// rewind requeues the events after lastSeq for a resuming reader. It fails
// when any of them is no longer held.
func (st *eventStream) rewind(lastSeq uint64) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if lastSeq > st.seq {
		return fmt.Errorf("event %d was never sent", lastSeq)
	}

	held := append(append([]streamEvent(nil), st.history...), st.queue...)
	if lastSeq == st.seq {
		return nil
	}
	if lastSeq < st.dropped || len(held) == 0 || held[0].seq > lastSeq+1 {
		return fmt.Errorf("events after %d are gone", lastSeq)
	}

	var keep, resend []streamEvent
	for _, ev := range st.history {
		if ev.seq > lastSeq {
			resend = append(resend, ev)
		} else {
			keep = append(keep, ev)
		}
	}
	st.history = keep
	st.queue = append(resend, st.queue...)
	st.notify()
	return nil
}

// parseEventID splits "<stream>/<seq>"
func parseEventID(id string) (string, uint64, bool) {
	i := strings.LastIndexByte(id, '/')
	if i <= 0 || i == len(id)-1 {
		return "", 0, false
	}
	seq, err := strconv.ParseUint(id[i+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return id[:i], seq, true
}
