// Package observe provides observability primitives for cuecard:
// OpenTelemetry metrics, tracing, trace-aware logging, and HTTP middleware
// for the metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is installed by [InitProvider] so that metrics can be
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

// meterName is the instrumentation scope name used for all cuecard metrics.
const meterName = "github.com/MrWong99/cuecard"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Sessions ---

	// SessionsStarted counts sessions whose capture came up. Use with
	// attribute.String("mode", ...).
	SessionsStarted metric.Int64Counter

	// SessionsFailed counts sessions that could not start. Use with
	// attribute.String("reason", ...).
	SessionsFailed metric.Int64Counter

	// ActiveSessions tracks the number of running sessions.
	ActiveSessions metric.Int64UpDownCounter

	// SessionDuration records the elapsed time of finished sessions.
	SessionDuration metric.Float64Histogram

	// --- Recognition and matching ---

	// TranscriptEvents counts transcript deliveries. Use with
	// attribute.Bool("final", ...).
	TranscriptEvents metric.Int64Counter

	// PhraseFires counts trigger phrases that fired. Use with
	// attribute.String("kind", ...).
	PhraseFires metric.Int64Counter

	// Advances counts cursor moves. Use with attribute.String("cause", ...).
	Advances metric.Int64Counter

	// EvaluationDuration tracks the latency of one matcher evaluation.
	EvaluationDuration metric.Float64Histogram

	// DegradedSessions counts sessions that fell back to manual navigation.
	DegradedSessions metric.Int64Counter

	// --- Providers ---

	// ProviderRequests counts provider stream starts. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// HTTPRequestDuration is operator endpoint latency, labelled by
	// method, route and status in [Middleware].
	HTTPRequestDuration metric.Float64Histogram
}

// evaluationBuckets are histogram boundaries (in seconds) for matcher
// evaluations, which run in microseconds to low milliseconds.
var evaluationBuckets = []float64{
	0.00001, 0.000025, 0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01,
}

// sessionBuckets are histogram boundaries (in seconds) for set lengths.
var sessionBuckets = []float64{
	60, 300, 600, 900, 1200, 1800, 2700, 3600, 5400,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Sessions.
	if met.SessionsStarted, err = m.Int64Counter("cuecard.sessions.started",
		metric.WithDescription("Total sessions whose capture started, by navigation mode."),
	); err != nil {
		return nil, err
	}
	if met.SessionsFailed, err = m.Int64Counter("cuecard.sessions.failed",
		metric.WithDescription("Total sessions that failed to start, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("cuecard.active_sessions",
		metric.WithDescription("Number of running sessions."),
	); err != nil {
		return nil, err
	}
	if met.SessionDuration, err = m.Float64Histogram("cuecard.session.duration",
		metric.WithDescription("Elapsed time of stopped sessions, excluding pauses."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}

	// Recognition and matching.
	if met.TranscriptEvents, err = m.Int64Counter("cuecard.transcript.events",
		metric.WithDescription("Total transcript events received, partial and final."),
	); err != nil {
		return nil, err
	}
	if met.PhraseFires, err = m.Int64Counter("cuecard.matcher.fires",
		metric.WithDescription("Total trigger phrases that fired, by candidate kind."),
	); err != nil {
		return nil, err
	}
	if met.Advances, err = m.Int64Counter("cuecard.navigator.advances",
		metric.WithDescription("Total cursor moves by cause."),
	); err != nil {
		return nil, err
	}
	if met.EvaluationDuration, err = m.Float64Histogram("cuecard.matcher.evaluation.duration",
		metric.WithDescription("Latency of one matcher evaluation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(evaluationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DegradedSessions, err = m.Int64Counter("cuecard.sessions.degraded",
		metric.WithDescription("Total sessions that lost recognition and continued with manual navigation."),
	); err != nil {
		return nil, err
	}

	// Providers.
	if met.ProviderRequests, err = m.Int64Counter("cuecard.provider.requests",
		metric.WithDescription("Total provider stream starts by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("cuecard.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("cuecard.http.request.duration",
		metric.WithDescription("Operator endpoint latency by method, route and status."),
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
// pointer. Panics if instrument creation fails.
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordTranscript counts one transcript event.
func (m *Metrics) RecordTranscript(ctx context.Context, final bool) {
	m.TranscriptEvents.Add(ctx, 1, metric.WithAttributes(attribute.Bool("final", final)))
}

// RecordFire counts a fired phrase of the given candidate kind.
func (m *Metrics) RecordFire(ctx context.Context, kind string) {
	m.PhraseFires.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordAdvance counts a cursor move with the given cause.
func (m *Metrics) RecordAdvance(ctx context.Context, cause string) {
	m.Advances.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", cause)))
}

// RecordSessionFailed counts a session that failed to start.
func (m *Metrics) RecordSessionFailed(ctx context.Context, reason string) {
	m.SessionsFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
