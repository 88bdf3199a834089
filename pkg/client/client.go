package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/protocol"
	"github.com/Rheron1848/mcprt/pkg/session"
	"github.com/Rheron1848/mcprt/pkg/transport"
)

// ProgressHandler receives the progress notifications a server emits while
// serving a call.
type ProgressHandler func(ctx context.Context, progress protocol.ProgressParams)

// Client is one initialized session with a server
type Client struct {
	sess    *session.Session
	opts    options
	logger  logging.Logger
	result  *protocol.InitializeResult
	stopRun context.CancelFunc
	runDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Connect starts a session on t and performs the handshake. When t can
// carry server-initiated messages on a separate stream, that stream is
// opened once the session is ready. The client owns t from here on.
func Connect(ctx context.Context, t transport.Transport, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	sessOpts := []session.Option{
		session.WithLogger(o.logger),
		session.WithMetrics(o.metrics),
		session.WithTracer(o.tracer),
		session.WithRequiredCapabilities(o.requiredCaps...),
	}
	if o.handshakeTimeout > 0 {
		sessOpts = append(sessOpts, session.WithHandshakeTimeout(o.handshakeTimeout))
	}
	sess := session.New(t, sessOpts...)

	if o.progress != nil {
		if _, exists := o.notifications[protocol.MethodProgress]; !exists {
			o.notifications[protocol.MethodProgress] = session.TypedNotification(func(ctx context.Context, p protocol.ProgressParams) error {
				o.progress(ctx, p)
				return nil
			})
		}
	}
	for method, h := range o.requests {
		if err := sess.HandleRequest(method, h); err != nil {
			_ = sess.Close()
			return nil, err
		}
	}
	for method, h := range o.notifications {
		if err := sess.HandleNotification(method, h); err != nil {
			_ = sess.Close()
			return nil, err
		}
	}

	runCtx, stop := context.WithCancel(context.Background())
	c := &Client{
		sess:    sess,
		opts:    o,
		logger:  logging.OrGlobal(o.logger).WithFields(logging.String("component", "client")),
		stopRun: stop,
		runDone: make(chan struct{}),
	}
	go func() {
		defer close(c.runDone)
		if err := sess.Run(runCtx); err != nil && !cleanClose(err) {
			c.logger.WithError(err).Debug("Session ended")
		}
	}()

	result, err := sess.Initialize(ctx, &protocol.InitializeParams{
		ProtocolVersion: o.protocolVersion,
		Capabilities:    o.capabilities,
		ClientInfo:      &protocol.ClientInfo{Name: o.name, Version: o.version},
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.result = result

	if ps, ok := t.(transport.PushStreamer); ok {
		if err := ps.StartPushStream(runCtx); err != nil {
			c.logger.WithError(err).Warn("Server push stream unavailable")
		}
	}
	return c, nil
}

// ConnectCommand launches command with args and connects to it over its
// standard streams.
func ConnectCommand(ctx context.Context, command string, args []string, opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	t, err := transport.NewCommandTransport(context.Background(), command, args, transport.WithCommandLogger(o.logger))
	if err != nil {
		return nil, err
	}
	return Connect(ctx, t, opts...)
}

// Call sends a request and waits for its result. A call made without a
// deadline gets the configured request timeout.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok && c.opts.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.requestTimeout)
		defer cancel()
	}
	return c.sess.Call(ctx, method, params)
}

// Invoke calls method and decodes the result into R
func Invoke[R any](ctx context.Context, c *Client, method string, params interface{}) (R, error) {
	var out R
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s result: %w", method, err)
	}
	return out, nil
}

// Notify sends a notification to the server
func (c *Client) Notify(ctx context.Context, method string, params interface{}) error {
	return c.sess.Notify(ctx, method, params)
}

// Ping checks that the server still answers
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, protocol.MethodPing, nil)
	return err
}

// ServerInfo returns what the server reported about itself
func (c *Client) ServerInfo() protocol.ServerInfo {
	if c.result.ServerInfo == nil {
		return protocol.ServerInfo{}
	}
	return *c.result.ServerInfo
}

// ProtocolVersion returns the negotiated protocol version
func (c *Client) ProtocolVersion() string {
	return c.result.ProtocolVersion
}

// ServerCapabilities returns the capabilities offered by the server
func (c *Client) ServerCapabilities() map[string]bool {
	caps := make(map[string]bool, len(c.result.Capabilities))
	for k, v := range c.result.Capabilities {
		caps[k] = v
	}
	return caps
}

// Session exposes the underlying session
func (c *Client) Session() *session.Session {
	return c.sess
}

// Done is closed once the session has ended
func (c *Client) Done() <-chan struct{} {
	return c.sess.Done()
}

// Err returns why the session ended
func (c *Client) Err() error {
	return c.sess.Err()
}

// Close ends the session and releases the transport
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.sess.Close()
		c.stopRun()
		<-c.runDone
	})
	return c.closeErr
}

func cleanClose(err error) bool {
	return mcperrors.Is(err, mcperrors.ErrSessionClosed) || mcperrors.Is(err, io.EOF)
}
