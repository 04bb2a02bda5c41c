// Package observe provides application-wide observability primitives for the
// exploration engine: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all engine metrics.
const meterName = "github.com/MrWong99/ivrwalker"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// DialDuration tracks the time from PlaceCall to call completion
	// webhook, i.e. the full duration of an outbound call leg.
	DialDuration metric.Float64Histogram

	// TranscriptionDuration tracks batch speech-to-text latency.
	TranscriptionDuration metric.Float64Histogram

	// LLMDuration tracks candidate-response proposal latency.
	LLMDuration metric.Float64Histogram

	// --- Counters ---

	// CallsAttempted counts outbound call attempts. Use with attribute:
	//   attribute.String("status", ...)
	CallsAttempted metric.Int64Counter

	// NodesDiscovered counts newly created graph nodes.
	NodesDiscovered metric.Int64Counter

	// EdgesDiscovered counts newly created graph edges.
	EdgesDiscovered metric.Int64Counter

	// TerminalsReached counts calls that ended at a terminal node.
	TerminalsReached metric.Int64Counter

	// LLMParseRetries counts reprompts issued after an unparsable LLM
	// response.
	LLMParseRetries metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveWorkers tracks the number of workers currently running a call.
	ActiveWorkers metric.Int64UpDownCounter

	// FrontierSize tracks the number of pending entries in the
	// exploration frontier.
	FrontierSize metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for telephony and inference latencies, which run much longer than typical
// RPC calls.
var latencyBuckets = []float64{
	0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.DialDuration, err = m.Float64Histogram("ivrwalker.dial.duration",
		metric.WithDescription("Duration of an outbound call leg, from placement to completion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("ivrwalker.transcription.duration",
		metric.WithDescription("Latency of batch recording transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("ivrwalker.llm.duration",
		metric.WithDescription("Latency of candidate response proposal."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.CallsAttempted, err = m.Int64Counter("ivrwalker.calls.attempted",
		metric.WithDescription("Total outbound calls attempted, by status."),
	); err != nil {
		return nil, err
	}
	if met.NodesDiscovered, err = m.Int64Counter("ivrwalker.nodes.discovered",
		metric.WithDescription("Total new conversation graph nodes created."),
	); err != nil {
		return nil, err
	}
	if met.EdgesDiscovered, err = m.Int64Counter("ivrwalker.edges.discovered",
		metric.WithDescription("Total new conversation graph edges created."),
	); err != nil {
		return nil, err
	}
	if met.TerminalsReached, err = m.Int64Counter("ivrwalker.terminals.reached",
		metric.WithDescription("Total calls that ended at a terminal node."),
	); err != nil {
		return nil, err
	}
	if met.LLMParseRetries, err = m.Int64Counter("ivrwalker.llm.parse_retries",
		metric.WithDescription("Total reprompts issued after an unparsable LLM response."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("ivrwalker.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveWorkers, err = m.Int64UpDownCounter("ivrwalker.active_workers",
		metric.WithDescription("Number of workers currently running a call."),
	); err != nil {
		return nil, err
	}
	if met.FrontierSize, err = m.Int64UpDownCounter("ivrwalker.frontier_size",
		metric.WithDescription("Number of pending entries in the exploration frontier."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("ivrwalker.http.request.duration",
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

// RecordCallAttempt is a convenience method that records a call attempt
// counter increment with the standard attribute set.
func (m *Metrics) RecordCallAttempt(ctx context.Context, status string) {
	m.CallsAttempted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordGraphGrowth is a convenience method that records newly discovered
// nodes and edges.
func (m *Metrics) RecordGraphGrowth(ctx context.Context, newNodes, newEdges int64) {
	if newNodes > 0 {
		m.NodesDiscovered.Add(ctx, newNodes)
	}
	if newEdges > 0 {
		m.EdgesDiscovered.Add(ctx, newEdges)
	}
}

// RecordTerminal is a convenience method that records a terminal-node call
// outcome.
func (m *Metrics) RecordTerminal(ctx context.Context) {
	m.TerminalsReached.Add(ctx, 1)
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
