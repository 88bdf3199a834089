package session

import (
	"sync"

	"github.com/Rheron1848/mcprt/pkg/protocol"
)

// notificationQueue is an unbounded FIFO feeding the notification worker.
// push never blocks, so the dispatch loop keeps reading while a slow
// notification handler runs.
type notificationQueue struct {
	mu     sync.Mutex
	items  []*protocol.Notification
	signal chan struct{}
	closed bool
}

func newNotificationQueue() *notificationQueue {
	return &notificationQueue{signal: make(chan struct{}, 1)}
}

func (q *notificationQueue) push(n *protocol.Notification) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, n)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	q.mu.Unlock()
}

// pop blocks until an item is available. It returns false once the queue is
// closed and empty.
func (q *notificationQueue) pop() (*protocol.Notification, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			n := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return n, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		q.mu.Unlock()
		<-q.signal
	}
}

// close stops accepting items. Items already queued are still handed out.
func (q *notificationQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// discard closes the queue and drops everything not yet handed out.
func (q *notificationQueue) discard() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	if !q.closed {
		q.closed = true
		close(q.signal)
	}
}
