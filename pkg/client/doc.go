// Package client connects to a server over any transport and exposes the
// session as a small call API.
//
// Connect runs the handshake and returns a ready client:
//
//	t, err := transport.NewStreamableHTTPClientTransport("http://localhost:8080/mcp")
//	if err != nil {
//		return err
//	}
//	c, err := client.Connect(ctx, t, client.WithName("example"))
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//
//	sum, err := client.Invoke[map[string]int](ctx, c, "add", map[string]int{"a": 1, "b": 2})
//
// ConnectCommand does the same over the standard streams of a launched
// server process. A client never reconnects: once Done is closed every call
// fails with errors.ErrSessionClosed.
package client
