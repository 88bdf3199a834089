// Package server serves bound JSON-RPC handlers to clients.
//
// A Server holds the handler registry and the handshake policy: supported
// protocol versions, advertised capabilities and the capabilities a client
// must offer. Each connection becomes one session.Session.
//
// # Stdio
//
// ServeStdio runs exactly one session over standard input and output:
//
//	srv := server.New(protocol.ServerInfo{Name: "calc", Version: "1.0.0"})
//	_ = srv.HandleRequest("add", session.Typed(add))
//	if err := srv.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil {
//		log.Fatal(err)
//	}
//
// # Streamable HTTP
//
// HTTPHandler serves any number of sessions on one endpoint. A POST without
// a session token must carry initialize and creates a session; its token is
// returned in the Mcp-Session-Id header. Requests are answered with JSON or
// with an event stream carrying every message related to the request. GET
// opens the session's push stream, and DELETE ends the session. Event ids
// have the form "<stream>/<seq>" and a reader that lost its connection can
// resume with Last-Event-ID while the events are still held.
package server
