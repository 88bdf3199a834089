// Package observability provides metrics and tracing for sessions and transports
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer used by the runtime
const InstrumentationName = "github.com/Rheron1848/mcprt"

// methodKey carries the bare method name on every span so samplers and
// backends do not have to parse span names.
const methodKey = attribute.Key("mcp.method")

// ExporterType selects where spans go
type ExporterType string

const (
	ExporterTypeOTLPGRPC ExporterType = "otlp-grpc"
	ExporterTypeOTLPHTTP ExporterType = "otlp-http"
	ExporterTypeNoop     ExporterType = "noop"
)

// TracingConfig configures OpenTelemetry tracing
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	ExporterType ExporterType
	Endpoint     string
	Headers      map[string]string
	Insecure     bool

	// Exporter overrides ExporterType when set
	Exporter sdktrace.SpanExporter

	// SampleRate applies to methods not listed in AlwaysSample or NeverSample.
	SampleRate   float64
	AlwaysSample []string
	NeverSample  []string

	BatchTimeout time.Duration

	// SetGlobal installs the provider and a W3C propagator as otel globals
	SetGlobal bool
}

func (c *TracingConfig) setDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "mcprt"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "unknown"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 5 * time.Second
	}
	if c.ExporterType == "" {
		c.ExporterType = ExporterTypeNoop
	}
}

// TracingProvider owns the sdk tracer provider and its exporter
type TracingProvider struct {
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer

	mu       sync.Mutex
	shutdown func(context.Context) error
}

// NewTracingProvider builds a tracer provider that batches spans to the
// configured exporter.
func NewTracingProvider(config TracingConfig) (*TracingProvider, error) {
	config.setDefaults()

	exporter := config.Exporter
	if exporter == nil {
		var err error
		if exporter, err = newExporter(context.Background(), config); err != nil {
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(config.BatchTimeout)),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(newMethodSampler(config))),
	)

	if config.SetGlobal {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	}

	return &TracingProvider{
		tracerProvider: tp,
		tracer:         tp.Tracer(InstrumentationName),
		shutdown:       tp.Shutdown,
	}, nil
}

func newExporter(ctx context.Context, config TracingConfig) (sdktrace.SpanExporter, error) {
	switch config.ExporterType {
	case ExporterTypeOTLPGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(config.Endpoint), otlptracegrpc.WithHeaders(config.Headers)}
		if config.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	case ExporterTypeOTLPHTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.Endpoint), otlptracehttp.WithHeaders(config.Headers)}
		if config.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	case ExporterTypeNoop:
		return discardExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", config.ExporterType)
	}
}

// Tracer returns the tracer sessions should use
func (tp *TracingProvider) Tracer() trace.Tracer {
	return tp.tracer
}

// StartMethodSpan starts a span for an RPC method
func (tp *TracingProvider) StartMethodSpan(ctx context.Context, method string, kind trace.SpanKind) (context.Context, trace.Span) {
	return startMethodSpan(ctx, tp.tracer, method, kind)
}

// Shutdown flushes pending spans and stops the provider. Later calls are
// no-ops.
func (tp *TracingProvider) Shutdown(ctx context.Context) error {
	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.shutdown == nil {
		return nil
	}
	err := tp.shutdown(ctx)
	tp.shutdown = nil
	return err
}

// Outbound calls are named "mcp.call <method>", handlers "mcp.handle <method>".
func startMethodSpan(ctx context.Context, tracer trace.Tracer, method string, kind trace.SpanKind) (context.Context, trace.Span) {
	verb := "mcp.handle"
	if kind == trace.SpanKindClient {
		verb = "mcp.call"
	}
	return tracer.Start(ctx, verb+" "+method,
		trace.WithSpanKind(kind),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
			methodKey.String(method),
		),
	)
}

// RecordError marks the span in ctx as failed
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// methodSampler forces or drops root spans by method name and defers to a
// ratio sampler for everything else.
type methodSampler struct {
	always   map[string]bool
	never    map[string]bool
	fallback sdktrace.Sampler
	rate     float64
}

func newMethodSampler(config TracingConfig) sdktrace.Sampler {
	var fallback sdktrace.Sampler
	switch {
	case config.SampleRate >= 1:
		fallback = sdktrace.AlwaysSample()
	case config.SampleRate <= 0:
		fallback = sdktrace.NeverSample()
	default:
		fallback = sdktrace.TraceIDRatioBased(config.SampleRate)
	}
	if len(config.AlwaysSample) == 0 && len(config.NeverSample) == 0 {
		return fallback
	}

	ms := &methodSampler{always: map[string]bool{}, never: map[string]bool{}, fallback: fallback, rate: config.SampleRate}
	for _, m := range config.AlwaysSample {
		ms.always[m] = true
	}
	for _, m := range config.NeverSample {
		ms.never[m] = true
	}
	return ms
}

func (ms *methodSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	method := p.Name
	for _, kv := range p.Attributes {
		if kv.Key == methodKey {
			method = kv.Value.AsString()
			break
		}
	}

	switch {
	case ms.always[method]:
		return sdktrace.SamplingResult{Decision: sdktrace.RecordAndSample}
	case ms.never[method]:
		return sdktrace.SamplingResult{Decision: sdktrace.Drop}
	}
	return ms.fallback.ShouldSample(p)
}

func (ms *methodSampler) Description() string {
	return fmt.Sprintf("MethodSampler{rate=%.2f,always=%d,never=%d}", ms.rate, len(ms.always), len(ms.never))
}

type discardExporter struct{}

func (discardExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error { return nil }
func (discardExporter) Shutdown(context.Context) error                           { return nil }
