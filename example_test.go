package mcprt_test

import (
	"context"
	"fmt"

	"github.com/Rheron1848/mcprt"
	"github.com/Rheron1848/mcprt/internal/testutil"
	"github.com/Rheron1848/mcprt/pkg/client"
	"github.com/Rheron1848/mcprt/pkg/logging"
	"github.com/Rheron1848/mcprt/pkg/protocol"
	"github.com/Rheron1848/mcprt/pkg/session"
)

type addParams struct {
	A int `json:"a"`
	B int `json:"b"`
}

func Example() {
	ctx := context.Background()

	srv := mcprt.NewServer(protocol.ServerInfo{Name: "calc", Version: "1.0.0"}, mcprt.WithLogger(logging.NewNop()))
	_ = srv.HandleRequest("add", session.Typed(func(ctx context.Context, p addParams) (int, error) {
		return p.A + p.B, nil
	}))

	pipes := testutil.NewPipes()
	defer pipes.Close()
	go func() { _ = srv.ServeStdio(ctx, pipes.ServerReader, pipes.ServerWriter) }()

	c, err := mcprt.Connect(ctx, mcprt.NewStdioTransport(pipes.ClientReader, pipes.ClientWriter),
		client.WithLogger(logging.NewNop()))
	if err != nil {
		fmt.Println(err)
		return
	}
	defer c.Close()

	sum, err := client.Invoke[int](ctx, c, "add", addParams{A: 1, B: 2})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(c.ServerInfo().Name, c.ProtocolVersion(), sum)
	// Output: calc 1.1 3
}
