package transport

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteEvent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEvent(&buf, Event{ID: "r1/1", Type: "message", Data: []byte(`{"a":1}`)}))
	require.NoError(t, WriteEvent(&buf, Event{Data: []byte("line one\nline two")}))
	require.NoError(t, WriteComment(&buf, "ping"))

	want := "id: r1/1\nevent: message\ndata: {\"a\":1}\n\n" +
		"data: line one\ndata: line two\n\n" +
		": ping\n\n"
	assert.Equal(t, want, buf.String())
}

func TestEventReaderRoundTrip(t *testing.T) {
	events := []Event{
		{ID: "push/1", Type: "message", Data: []byte(`{"jsonrpc":"2.0","method":"tick"}`)},
		{Data: []byte("multi\nline\ndata")},
		{ID: "push/3", Data: []byte(`{}`)},
	}

	var buf bytes.Buffer
	for _, ev := range events {
		require.NoError(t, WriteEvent(&buf, ev))
		require.NoError(t, WriteComment(&buf, "keepalive"))
	}

	reader := NewEventReader(&buf)
	for _, want := range events {
		got, err := reader.Next()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := reader.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEventReaderParsing(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Event
	}{
		{
			name:  "crlf line endings",
			input: "id: 1\r\ndata: x\r\n\r\n",
			want:  []Event{{ID: "1", Data: []byte("x")}},
		},
		{
			name:  "no space after colon",
			input: "id:7\nevent:note\ndata:y\n\n",
			want:  []Event{{ID: "7", Type: "note", Data: []byte("y")}},
		},
		{
			name:  "id only event",
			input: "id: s/4\n\n",
			want:  []Event{{ID: "s/4"}},
		},
		{
			name:  "leading blank lines and unknown fields",
			input: "\n\nretry: 100\nfoo: bar\ndata: z\n\n",
			want:  []Event{{Data: []byte("z")}},
		},
		{
			name:  "empty data field",
			input: "data:\n\n",
			want:  []Event{{Data: []byte{}}},
		},
		{
			name:  "truncated event is dropped",
			input: "data: complete\n\ndata: partial\n",
			want:  []Event{{Data: []byte("complete")}},
		},
		{
			name:  "id with nul is ignored",
			input: "id: a\x00b\ndata: q\n\n",
			want:  []Event{{Data: []byte("q")}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := NewEventReader(strings.NewReader(tt.input))
			var got []Event
			for {
				ev, err := reader.Next()
				if err != nil {
					assert.ErrorIs(t, err, io.EOF)
					break
				}
				got = append(got, ev)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
