package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/hashicorp/go-multierror"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/protocol"
)

// StdioTransport exchanges newline-delimited JSON messages over a reader and
// a writer. It is used for the server side of a stdio connection, where the
// streams are the process's stdin and stdout, and as the framing layer of
// CommandTransport.
type StdioTransport struct {
	name    Type
	reader  *bufio.Reader
	writer  *bufio.Writer
	closers []io.Closer
	logger  logging.Logger

	writeMu sync.Mutex

	startRead sync.Once
	frames    chan []byte
	readErr   error // set before frames is closed

	closeOnce sync.Once
	done      chan struct{}
	closeErr  error
}

// StdioOption configures a StdioTransport
type StdioOption func(*StdioTransport)

// WithStdioLogger sets the logger used for read failures
func WithStdioLogger(logger logging.Logger) StdioOption {
	return func(t *StdioTransport) {
		t.logger = logger
	}
}

// withName overrides the transport name reported in errors
func withName(name Type) StdioOption {
	return func(t *StdioTransport) {
		t.name = name
	}
}

// NewStdioTransport creates a transport reading frames from r and writing
// frames to w. Close closes r and w when they implement io.Closer.
func NewStdioTransport(r io.Reader, w io.Writer, opts ...StdioOption) *StdioTransport {
	if r == nil {
		r = os.Stdin
	}
	if w == nil {
		w = os.Stdout
	}

	t := &StdioTransport{
		name:   TypeStdio,
		reader: bufio.NewReader(r),
		writer: bufio.NewWriter(w),
		frames: make(chan []byte),
		done:   make(chan struct{}),
	}
	if c, ok := w.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	if c, ok := r.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.OrGlobal(t.logger).WithFields(logging.String("transport", string(t.name)))
	return t
}

// Send writes one message followed by a newline and flushes it.
func (t *StdioTransport) Send(ctx context.Context, msg protocol.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-t.done:
		return closedError(t.name, nil)
	default:
	}

	if _, err := t.writer.Write(data); err != nil {
		return t.writeError(err)
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return t.writeError(err)
	}
	if err := t.writer.Flush(); err != nil {
		return t.writeError(err)
	}
	return nil
}

func (t *StdioTransport) writeError(err error) error {
	if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) || errors.Is(err, syscall.EPIPE) {
		return closedError(t.name, err)
	}
	return mcperrors.TransportError(string(t.name), "send", err)
}

// Receive returns the next message. Blank lines are skipped. A line that is
// not a valid message yields a *protocol.DecodeError.
func (t *StdioTransport) Receive(ctx context.Context) (protocol.Message, error) {
	t.startRead.Do(func() {
		go t.readLoop()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, closedError(t.name, nil)
	case frame, ok := <-t.frames:
		if !ok {
			return nil, closedError(t.name, t.readErr)
		}
		return protocol.Decode(frame)
	}
}

// readLoop feeds complete lines to Receive until the reader fails
func (t *StdioTransport) readLoop() {
	defer close(t.frames)

	for {
		line, err := t.reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			select {
			case t.frames <- line:
			case <-t.done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.logger.WithError(err).Debug("Stdio read ended")
			}
			t.readErr = err
			return
		}
	}
}

// Close closes the underlying streams, which also unblocks a Send stuck on a
// full pipe. Every Send flushes, so no buffered output is lost. It is safe to
// call more than once.
func (t *StdioTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)

		var result *multierror.Error
		for _, c := range t.closers {
			if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				result = multierror.Append(result, err)
			}
		}
		t.closeErr = result.ErrorOrNil()
	})
	return t.closeErr
}
