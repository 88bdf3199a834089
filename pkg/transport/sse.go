package transport

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Header names and media types of the streamable HTTP binding
const (
	HeaderSessionID   = "Mcp-Session-Id"
	HeaderLastEventID = "Last-Event-ID"

	ContentTypeJSON        = "application/json"
	ContentTypeEventStream = "text/event-stream"
)

// Event is one server-sent event
type Event struct {
	ID   string
	Type string
	Data []byte
}

// WriteEvent writes ev in text/event-stream framing. Data containing newlines
// is split across several data lines.
func WriteEvent(w io.Writer, ev Event) error {
	var buf bytes.Buffer
	if ev.ID != "" {
		fmt.Fprintf(&buf, "id: %s\n", ev.ID)
	}
	if ev.Type != "" {
		fmt.Fprintf(&buf, "event: %s\n", ev.Type)
	}
	for _, line := range bytes.Split(ev.Data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteComment writes an SSE comment line, used as a keepalive
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}

// EventReader parses a text/event-stream body
type EventReader struct {
	r *bufio.Reader
}

// NewEventReader creates an EventReader over r
func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{r: bufio.NewReader(r)}
}

// Next returns the next event. Events that only carry an id are returned
// with empty Data so callers can track the resume position. An event cut off
// by the end of the stream is discarded and io.EOF is returned.
func (er *EventReader) Next() (Event, error) {
	var (
		ev      Event
		data    bytes.Buffer
		hasData bool
	)

	for {
		raw, err := er.r.ReadString('\n')
		if err != nil {
			return Event{}, err
		}

		line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
		if line == "" {
			if hasData || ev.ID != "" {
				if hasData {
					ev.Data = []byte(data.String())
				}
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "id":
			if !strings.ContainsRune(value, 0) {
				ev.ID = value
			}
		case "event":
			ev.Type = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		}
	}
}
