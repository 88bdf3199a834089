package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/Rheron1848/mcprt/pkg/errors"
	"github.com/Rheron1848/mcprt/pkg/protocol"
)

// Status labels attached to call and handler metrics
const (
	StatusOK        = "ok"
	StatusCancelled = "cancelled"
	StatusTimeout   = "timeout"
	StatusClosed    = "closed"
)

// Instrumentation pairs a tracer with a Metrics sink. Sessions call it around
// every outbound call and every handler invocation.
type Instrumentation struct {
	tracer  trace.Tracer
	metrics Metrics
}

// NewInstrumentation creates an Instrumentation. A nil tracer uses the global
// otel tracer and nil metrics records nothing.
func NewInstrumentation(tracer trace.Tracer, metrics Metrics) *Instrumentation {
	if tracer == nil {
		tracer = otel.Tracer(InstrumentationName)
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Instrumentation{tracer: tracer, metrics: metrics}
}

// Metrics returns the metrics sink
func (in *Instrumentation) Metrics() Metrics {
	return in.metrics
}

// StartCall opens a client span for an outbound request. The returned finish
// function must be called exactly once with the call's outcome.
func (in *Instrumentation) StartCall(ctx context.Context, method string) (context.Context, func(error)) {
	return in.start(ctx, method, trace.SpanKindClient, in.metrics.CallCompleted)
}

// StartHandler opens a server span around a request handler
func (in *Instrumentation) StartHandler(ctx context.Context, method string) (context.Context, func(error)) {
	return in.start(ctx, method, trace.SpanKindServer, in.metrics.RequestHandled)
}

func (in *Instrumentation) start(ctx context.Context, method string, kind trace.SpanKind, record func(string, string, time.Duration)) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := startMethodSpan(ctx, in.tracer, method, kind)

	return ctx, func(err error) {
		status := StatusLabel(err)
		span.SetAttributes(attribute.String("mcp.status", status))
		if err != nil {
			RecordError(ctx, err)
		}
		span.End()
		record(method, status, time.Since(start))
	}
}

// StatusLabel categorizes an error for metric labels
func StatusLabel(err error) string {
	if err == nil {
		return StatusOK
	}

	var rpcErr *protocol.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case protocol.ParseError:
			return "parse_error"
		case protocol.InvalidRequest:
			return "invalid_request"
		case protocol.MethodNotFound:
			return "method_not_found"
		case protocol.InvalidParams:
			return "invalid_params"
		case protocol.InternalError:
			return "internal_error"
		case protocol.NotInitialized:
			return "not_initialized"
		case protocol.InitializationFailed:
			return "initialization_failed"
		case protocol.ConnectionLost:
			return "connection_lost"
		case protocol.RequestCancelled:
			return StatusCancelled
		}
		if protocol.IsProtocolCode(rpcErr.Code) {
			return "server_error"
		}
		return "application_error"
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return StatusTimeout
	case errors.Is(err, context.Canceled), mcperrors.Is(err, mcperrors.ErrCancelled):
		return StatusCancelled
	case mcperrors.Is(err, mcperrors.ErrSessionClosed), mcperrors.Is(err, mcperrors.ErrTransportClosed):
		return StatusClosed
	}

	if mcpErr, ok := mcperrors.AsMCPError(err); ok {
		return string(mcpErr.Category())
	}
	return "unknown"
}
