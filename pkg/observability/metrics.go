package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsConfig configures the metrics provider
type MetricsConfig struct {
	// Namespace prefixes every metric name (default: mcp)
	Namespace string
	// Subsystem is an optional second prefix
	Subsystem string
	// HistogramBuckets are the latency buckets in seconds
	HistogramBuckets []float64
	// ConstLabels are added to all metrics
	ConstLabels prometheus.Labels
	// Registry receives the collectors; a fresh registry is used when nil
	Registry *prometheus.Registry
}

// Metrics records the runtime's operational events. Implementations must be
// safe for concurrent use.
type Metrics interface {
	// SessionOpened counts a new session on the given transport
	SessionOpened(transport string)
	// SessionClosed counts a finished session and the reason it ended
	SessionClosed(transport, reason string)
	// CallCompleted records an outbound call and its outcome
	CallCompleted(method, status string, duration time.Duration)
	// RequestHandled records an inbound request served by a handler
	RequestHandled(method, status string, duration time.Duration)
	// NotificationSent counts an outbound notification
	NotificationSent(method string)
	// NotificationReceived counts an inbound notification
	NotificationReceived(method string)
	// DecodeError counts frames that could not be decoded
	DecodeError(transport string)
	// ProtocolViolation counts messages the peer should not have sent
	ProtocolViolation(kind string)
	// EventStreamed counts an event written to an SSE stream
	EventStreamed(stream string)
	// StreamResumed records the outcome of a Last-Event-ID resumption
	StreamResumed(result string)
}

// PrometheusMetrics implements Metrics with Prometheus collectors
type PrometheusMetrics struct {
	registry *prometheus.Registry

	sessionsActive    *prometheus.GaugeVec
	sessionsTotal     *prometheus.CounterVec
	sessionsClosed    *prometheus.CounterVec
	callDuration      *prometheus.HistogramVec
	callTotal         *prometheus.CounterVec
	handlerDuration   *prometheus.HistogramVec
	handlerTotal      *prometheus.CounterVec
	notificationTotal *prometheus.CounterVec
	decodeErrors      *prometheus.CounterVec
	violations        *prometheus.CounterVec
	eventsStreamed    *prometheus.CounterVec
	resumptions       *prometheus.CounterVec
}

// NewPrometheusMetrics creates the collectors and registers them
func NewPrometheusMetrics(config MetricsConfig) (*PrometheusMetrics, error) {
	if config.Namespace == "" {
		config.Namespace = "mcp"
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = prometheus.DefBuckets
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: config.ConstLabels,
		}, labels)
	}
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        name,
			Help:        help,
			Buckets:     config.HistogramBuckets,
			ConstLabels: config.ConstLabels,
		}, labels)
	}

	m := &PrometheusMetrics{
		registry: config.Registry,
		sessionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sessions_active",
			Help:        "Number of sessions currently open",
			ConstLabels: config.ConstLabels,
		}, []string{"transport"}),
		sessionsTotal:     counter("sessions_opened_total", "Total number of sessions opened", "transport"),
		sessionsClosed:    counter("sessions_closed_total", "Total number of sessions closed by reason", "transport", "reason"),
		callDuration:      histogram("call_duration_seconds", "Duration of outbound calls", "method", "status"),
		callTotal:         counter("calls_total", "Total number of outbound calls", "method", "status"),
		handlerDuration:   histogram("handler_duration_seconds", "Duration of inbound request handlers", "method", "status"),
		handlerTotal:      counter("handled_requests_total", "Total number of inbound requests handled", "method", "status"),
		notificationTotal: counter("notifications_total", "Total number of notifications", "method", "direction"),
		decodeErrors:      counter("decode_errors_total", "Total number of frames that failed to decode", "transport"),
		violations:        counter("protocol_violations_total", "Total number of protocol violations by the peer", "kind"),
		eventsStreamed:    counter("sse_events_total", "Total number of events written to event streams", "stream"),
		resumptions:       counter("stream_resumptions_total", "Total number of event stream resumption attempts", "result"),
	}

	collectors := []prometheus.Collector{
		m.sessionsActive, m.sessionsTotal, m.sessionsClosed,
		m.callDuration, m.callTotal, m.handlerDuration, m.handlerTotal,
		m.notificationTotal, m.decodeErrors, m.violations,
		m.eventsStreamed, m.resumptions,
	}
	for _, c := range collectors {
		if err := config.Registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Registry returns the registry holding the collectors
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the collected metrics
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *PrometheusMetrics) SessionOpened(transport string) {
	m.sessionsActive.WithLabelValues(transport).Inc()
	m.sessionsTotal.WithLabelValues(transport).Inc()
}

func (m *PrometheusMetrics) SessionClosed(transport, reason string) {
	m.sessionsActive.WithLabelValues(transport).Dec()
	m.sessionsClosed.WithLabelValues(transport, reason).Inc()
}

func (m *PrometheusMetrics) CallCompleted(method, status string, duration time.Duration) {
	m.callDuration.WithLabelValues(method, status).Observe(duration.Seconds())
	m.callTotal.WithLabelValues(method, status).Inc()
}

func (m *PrometheusMetrics) RequestHandled(method, status string, duration time.Duration) {
	m.handlerDuration.WithLabelValues(method, status).Observe(duration.Seconds())
	m.handlerTotal.WithLabelValues(method, status).Inc()
}

func (m *PrometheusMetrics) NotificationSent(method string) {
	m.notificationTotal.WithLabelValues(method, "outbound").Inc()
}

func (m *PrometheusMetrics) NotificationReceived(method string) {
	m.notificationTotal.WithLabelValues(method, "inbound").Inc()
}

func (m *PrometheusMetrics) DecodeError(transport string) {
	m.decodeErrors.WithLabelValues(transport).Inc()
}

func (m *PrometheusMetrics) ProtocolViolation(kind string) {
	m.violations.WithLabelValues(kind).Inc()
}

func (m *PrometheusMetrics) EventStreamed(stream string) {
	m.eventsStreamed.WithLabelValues(stream).Inc()
}

func (m *PrometheusMetrics) StreamResumed(result string) {
	m.resumptions.WithLabelValues(result).Inc()
}

// NoopMetrics discards every observation
type NoopMetrics struct{}

func (NoopMetrics) SessionOpened(string)                         {}
func (NoopMetrics) SessionClosed(string, string)                 {}
func (NoopMetrics) CallCompleted(string, string, time.Duration)  {}
func (NoopMetrics) RequestHandled(string, string, time.Duration) {}
func (NoopMetrics) NotificationSent(string)                      {}
func (NoopMetrics) NotificationReceived(string)                  {}
func (NoopMetrics) DecodeError(string)                           {}
func (NoopMetrics) ProtocolViolation(string)                     {}
func (NoopMetrics) EventStreamed(string)                         {}
func (NoopMetrics) StreamResumed(string)                         {}

var (
	_ Metrics = (*PrometheusMetrics)(nil)
	_ Metrics = NoopMetrics{}
)
