// Package mcprt is a stateful JSON-RPC 2.0 session runtime.
//
// Two peers exchange requests, responses and notifications over a
// transport. Each connection is a session that must complete an initialize
// handshake before any other traffic, after which either side may call the
// other. The runtime pairs responses with calls, cancels abandoned calls on
// both ends, and tears a session down cleanly when its transport goes away.
//
// # Packages
//
//   - pkg/protocol: message types, the codec and the handshake payload
//   - pkg/transport: stdio, child process and streamable HTTP client transports
//   - pkg/session: the session state machine and dispatch loop
//   - pkg/server: handler registration, stdio serving and the HTTP endpoint
//   - pkg/client: connect, call and notify
//   - pkg/config, pkg/logging, pkg/observability, pkg/errors: ambient support
//
// # Serving
//
//	srv := mcprt.NewServer(protocol.ServerInfo{Name: "calc", Version: "1.0.0"})
//	srv.HandleRequest("add", session.Typed(func(ctx context.Context, p addParams) (int, error) {
//		return p.A + p.B, nil
//	}))
//	err := srv.ServeStdio(ctx, os.Stdin, os.Stdout)
//
// Over HTTP the same server is mounted as an http.Handler:
//
//	http.ListenAndServe(":8080", mcprt.NewHTTPHandler(srv))
//
// # Calling
//
//	c, err := mcprt.ConnectCommand(ctx, "calc-server", nil)
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	sum, err := client.Invoke[int](ctx, c, "add", addParams{A: 1, B: 2})
package mcprt
