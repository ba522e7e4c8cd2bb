// Package observe provides application-wide observability primitives for
// tunetrace: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is set up by [InitProvider] and served on /metrics. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tunetrace metrics.
const meterName = "github.com/MrWong99/tunetrace"

// Recognition outcomes recorded by [Metrics.RecordRecognition].
const (
	OutcomeMatch       = "match"
	OutcomeNoMatch     = "no_match"
	OutcomeDecodeError = "decode_error"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// GatewayDuration tracks the latency of a single recognition provider
	// call. Use with attribute.String("provider", ...).
	GatewayDuration metric.Float64Histogram

	// RecognitionDuration tracks end-to-end latency of one recognition
	// request (decode, split, fan-out, merge).
	RecognitionDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Recognitions counts completed recognition requests. Use with
	//   attribute.String("outcome", ...)
	Recognitions metric.Int64Counter

	// Segments counts audio segments submitted to the recognition gateway.
	Segments metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of navigation sessions held in memory.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// provider round trips, which range from sub-second to the call timeout.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.GatewayDuration, err = m.Float64Histogram("tunetrace.gateway.duration",
		metric.WithDescription("Latency of a single recognition provider call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognitionDuration, err = m.Float64Histogram("tunetrace.recognition.duration",
		metric.WithDescription("End-to-end latency of a recognition request."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.ProviderRequests, err = m.Int64Counter("tunetrace.provider.requests",
		metric.WithDescription("Total provider API requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("tunetrace.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.Recognitions, err = m.Int64Counter("tunetrace.recognitions",
		metric.WithDescription("Total recognition requests by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Segments, err = m.Int64Counter("tunetrace.segments",
		metric.WithDescription("Total audio segments submitted for recognition."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("tunetrace.active_sessions",
		metric.WithDescription("Number of navigation sessions held in memory."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("tunetrace.http.request.duration",
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

// RecordProviderRequest records one provider call: the request counter with
// provider and status, and the latency histogram with provider.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string, seconds float64) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
	m.GatewayDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordRecognition records a finished recognition request.
func (m *Metrics) RecordRecognition(ctx context.Context, outcome string, seconds float64) {
	m.Recognitions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.RecognitionDuration.Record(ctx, seconds)
}
