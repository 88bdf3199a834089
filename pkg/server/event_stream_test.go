package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rheron1848/mcprt/pkg/protocol"
)

func publishN(t *testing.T, st *eventStream, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		note, err := protocol.NewNotification("tick", map[string]int{"n": i})
		require.NoError(t, err)
		require.NoError(t, st.publish(note, false))
	}
}

func seqs(events []streamEvent) []uint64 {
	out := make([]uint64, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.seq)
	}
	return out
}

func TestEventStreamTakeAndRewind(t *testing.T) {
	st := newEventStream("s1", 3)
	publishN(t, st, 5)

	events, done := st.take()
	assert.False(t, done)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5}, seqs(events))
	assert.Equal(t, "s1/1", events[0].event.ID)

	require.NoError(t, st.rewind(3))
	events, _ = st.take()
	assert.Equal(t, []uint64{4, 5}, seqs(events))

	assert.Error(t, st.rewind(1), "event 2 fell out of the replay buffer")
	assert.Error(t, st.rewind(9), "event 9 was never sent")

	require.NoError(t, st.rewind(5))
	events, _ = st.take()
	assert.Empty(t, events)
}

func TestEventStreamDropsUnreadEvents(t *testing.T) {
	st := newEventStream("push", 0)
	publishN(t, st, maxUndelivered+2)

	assert.Error(t, st.rewind(1))
	events, _ := st.take()
	require.Len(t, events, maxUndelivered)
	assert.Equal(t, uint64(3), events[0].seq)
}

func TestEventStreamFinish(t *testing.T) {
	st := newEventStream("r", DefaultReplayBuffer)

	ready, _, _ := st.peek()
	assert.False(t, ready)

	resp, err := protocol.NewResponse(protocol.NewIntID(1), "ok")
	require.NoError(t, err)
	require.NoError(t, st.publish(resp, true))
	ready, finalOnly, empty := st.peek()
	assert.True(t, ready)
	assert.True(t, finalOnly)
	assert.False(t, empty)

	st.finish()
	assert.Error(t, st.publish(resp, false))

	events, done := st.take()
	assert.True(t, done)
	require.Len(t, events, 1)
	assert.True(t, events[0].final)
	_, _, empty = st.peek()
	assert.True(t, empty)

	assert.True(t, st.attach())
	assert.False(t, st.attach())
	st.detach()
	assert.False(t, st.isAttached())
}

func TestParseEventID(t *testing.T) {
	tests := []struct {
		in     string
		stream string
		seq    uint64
		ok     bool
	}{
		{"push/4", "push", 4, true},
		{"a/b/12", "a/b", 12, true},
		{"push/", "", 0, false},
		{"/3", "", 0, false},
		{"push/x", "", 0, false},
		{"plain", "", 0, false},
	}
	for _, tt := range tests {
		stream, seq, ok := parseEventID(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.stream, stream, tt.in)
		assert.Equal(t, tt.seq, seq, tt.in)
	}
}
