// Package demo holds the sample handlers served by the mcprt binary
package demo

import (
	"context"
	"fmt"
	"time"

	"github.com/Rheron1848/mcprt/pkg/protocol"
	"github.com/Rheron1848/mcprt/pkg/server"
	"github.com/Rheron1848/mcprt/pkg/session"
)

// AddParams are the operands of add
type AddParams struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// AddResult is the result of add
type AddResult struct {
	Sum float64 `json:"sum"`
}

// EchoParams carries the text echoed back
type EchoParams struct {
	Text string `json:"text"`
}

// CountdownParams configures countdown
type CountdownParams struct {
	From   int `json:"from"`
	StepMs int `json:"stepMs,omitempty"`
}

// CountdownResult is sent after the last progress notification
type CountdownResult struct {
	Done  bool `json:"done"`
	Steps int  `json:"steps"`
}

const maxCountdown = 100

// Register binds add, echo and countdown on srv
func Register(srv *server.Server) error {
	if err := srv.HandleRequest("add", session.Typed(Add)); err != nil {
		return err
	}
	if err := srv.HandleRequest("echo", session.Typed(Echo)); err != nil {
		return err
	}
	return srv.HandleRequest("countdown", session.Typed(Countdown))
}

// Add returns a + b
func Add(_ context.Context, p AddParams) (AddResult, error) {
	return AddResult{Sum: p.A + p.B}, nil
}

// Echo returns its params unchanged
func Echo(_ context.Context, p EchoParams) (EchoParams, error) {
	return p, nil
}

// Countdown emits one progress notification per step, from From down to
// one, then returns. It stops early when the call is cancelled.
func Countdown(ctx context.Context, p CountdownParams) (CountdownResult, error) {
	if p.From < 0 || p.From > maxCountdown {
		return CountdownResult{}, protocol.Errorf(protocol.InvalidParams, "from must be between 0 and %d", maxCountdown)
	}
	step := time.Duration(p.StepMs) * time.Millisecond

	for i := p.From; i > 0; i-- {
		if step > 0 {
			select {
			case <-time.After(step):
			case <-ctx.Done():
				return CountdownResult{}, ctx.Err()
			}
		}
		done := p.From - i + 1
		if err := server.NotifyProgress(ctx, float64(done), float64(p.From), fmt.Sprintf("%d", i)); err != nil {
			return CountdownResult{}, err
		}
	}
	return CountdownResult{Done: true, Steps: p.From}, nil
}
