// Package observe provides application-wide observability primitives for
// voxscribe: OpenTelemetry metrics, tracing helpers, and HTTP middleware for
// the scrape endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxscribe metrics.
const meterName = "github.com/voxscribe/voxscribe"

// Session outcome attribute values for [Metrics.RecordSession].
const (
	OutcomeOK          = "ok"
	OutcomeDecodeError = "decode_error"
	OutcomeEngineError = "engine_error"
	OutcomeWriteError  = "write_error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// EnginePassDuration tracks the latency of a single recognizer pass.
	// Use with attribute: attribute.String("op", "push"|"flush")
	EnginePassDuration metric.Float64Histogram

	// SessionDuration tracks the wall-clock lifetime of a client session
	// from accept to close.
	SessionDuration metric.Float64Histogram

	// --- Counters ---

	// Sessions counts completed client sessions. Use with attribute:
	//   attribute.String("outcome", ...), one of the Outcome* constants.
	Sessions metric.Int64Counter

	// SegmentsEmitted counts transcript lines written to clients. Duplicate
	// lines suppressed by the send path are not counted.
	SegmentsEmitted metric.Int64Counter

	// AudioBytes counts raw PCM bytes received from clients.
	AudioBytes metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live client sessions. The accept
	// loop serves one at a time, so this reads 0 or 1.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time on the scrape
	// endpoint. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// passBuckets defines histogram bucket boundaries (in seconds) sized for
// recognizer pass latencies.
var passBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// sessionBuckets defines histogram bucket boundaries (in seconds) sized for
// session lifetimes, which range from sub-second probes to hour-long streams.
var sessionBuckets = []float64{
	0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.EnginePassDuration, err = m.Float64Histogram("voxscribe.engine.pass.duration",
		metric.WithDescription("Latency of a single recognizer pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(passBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("voxscribe.session.duration",
		metric.WithDescription("Client session lifetime from accept to close."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Sessions, err = m.Int64Counter("voxscribe.sessions",
		metric.WithDescription("Total completed client sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsEmitted, err = m.Int64Counter("voxscribe.segments.emitted",
		metric.WithDescription("Total transcript lines written to clients."),
	); err != nil {
		return nil, err
	}
	if met.AudioBytes, err = m.Int64Counter("voxscribe.audio.received_bytes",
		metric.WithDescription("Total raw PCM bytes received from clients."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxscribe.active_sessions",
		metric.WithDescription("Number of live client sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxscribe.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSession is a convenience method that records a completed session with
// the given outcome. Use one of the Outcome* constants.
func (m *Metrics) RecordSession(ctx context.Context, outcome string) {
	m.Sessions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordEnginePass is a convenience method that records the latency of one
// recognizer pass for the given operation ("push" or "flush").
func (m *Metrics) RecordEnginePass(ctx context.Context, op string, seconds float64) {
	m.EnginePassDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("op", op)),
	)
}
