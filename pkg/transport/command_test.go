package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/protocol"
)

const helperEnv = "MCPRT_TRANSPORT_HELPER"

// TestHelperProcess is not a real test. It is the child process launched by
// the command transport tests.
func TestHelperProcess(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}

	fmt.Fprintln(os.Stderr, "helper started")
	switch mode {
	case "echo":
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			fmt.Fprintln(os.Stdout, scanner.Text())
		}
	case "hang":
		for {
			time.Sleep(time.Hour)
		}
	case "exit":
		fmt.Fprintln(os.Stdout, `{"jsonrpc":"2.0","method":"bye"}`)
	}
	os.Exit(0)
}

func startHelper(t *testing.T, mode string, opts ...CommandOption) *CommandTransport {
	t.Helper()
	opts = append([]CommandOption{WithEnv(helperEnv + "=" + mode)}, opts...)
	tr, err := NewCommandTransport(context.Background(), os.Args[0], []string{"-test.run=TestHelperProcess", "--"}, opts...)
	require.NoError(t, err)
	return tr
}

func TestCommandTransportEcho(t *testing.T) {
	var logs syncBuffer
	logger := logging.New(&logs, logging.FormatJSON)
	tr := startHelper(t, "echo", WithCommandLogger(logger))
	assert.NotZero(t, tr.Pid())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sent := &protocol.Request{ID: protocol.NewStringID("a"), Method: "echo", Params: json.RawMessage(`{"text":"hi"}`)}
	require.NoError(t, tr.Send(ctx, sent))

	got, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, sent, got)

	require.NoError(t, tr.Close())
	<-tr.Exited()

	assert.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "helper started")
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, logs.String(), `"transport":"command"`)
}

func TestCommandTransportChildExit(t *testing.T) {
	tr := startHelper(t, "exit", WithCommandLogger(logging.NewNop()))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, &protocol.Notification{Method: "bye"}, msg)

	_, err = tr.Receive(ctx)
	assert.True(t, mcperrors.Is(err, mcperrors.ErrTransportClosed), "got %v", err)
	assert.NoError(t, tr.Close())
}

func TestCommandTransportKillsAfterGrace(t *testing.T) {
	tr := startHelper(t, "hang", WithCommandLogger(logging.NewNop()), WithGracePeriod(100*time.Millisecond))

	start := time.Now()
	require.NoError(t, tr.Close())
	assert.Less(t, time.Since(start), 5*time.Second)

	select {
	case <-tr.Exited():
	default:
		t.Fatal("process still running after Close")
	}
}

func TestCommandTransportStartFailure(t *testing.T) {
	_, err := NewCommandTransport(context.Background(), "", nil)
	assert.Error(t, err)

	_, err = NewCommandTransport(context.Background(), "/definitely/not/a/binary", nil)
	require.Error(t, err)
	assert.True(t, mcperrors.IsCategory(err, mcperrors.CategoryTransport))
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes of a logger
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
