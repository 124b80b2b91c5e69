// Package observe provides the service's observability primitives:
// OpenTelemetry metrics, tracing, trace-aware logging, and the HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exposed for
// Prometheus scraping through the exporter bridge set up by [InitProvider].
// [DefaultMetrics] returns a package-level instance bound to the global meter
// provider; tests should call [NewMetrics] with their own provider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every metric.
const meterName = "github.com/liamchens/quran-voice-buddy"

// Metrics holds the metric instruments of the service. All fields are safe
// for concurrent use.
type Metrics struct {
	// AdvanceDuration tracks the latency of one alignment step.
	AdvanceDuration metric.Float64Histogram

	// PassageLookupDuration tracks passage source latency. Attribute:
	//   attribute.String("status", "ok"|"not_found"|"error")
	PassageLookupDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request latency. Attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	// WordsAligned counts reference words leaving the pending state. Attribute:
	//   attribute.String("status", "correct"|"skipped")
	WordsAligned metric.Int64Counter

	// HypothesisTokens counts recognised tokens folded into an alignment.
	// Attribute: attribute.String("outcome", "matched"|"noise")
	HypothesisTokens metric.Int64Counter

	// Deferrals counts alignment steps that waited for the next word.
	Deferrals metric.Int64Counter

	// Completions counts recitations that reached the end of the passage.
	// Attribute: attribute.String("category", ...)
	Completions metric.Int64Counter

	// ProviderRequests counts provider calls. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// STTRestarts counts speech streams reopened while listening. Attribute:
	//   attribute.String("reason", "interrupted"|"stalled"|"reset")
	STTRestarts metric.Int64Counter

	// PassageCacheLookups counts cache lookups. Attribute:
	//   attribute.String("result", "hit"|"miss")
	PassageCacheLookups metric.Int64Counter

	// CircuitTransitions counts circuit breaker state changes. Attributes:
	//   attribute.String("name", ...), attribute.String("to", ...)
	CircuitTransitions metric.Int64Counter

	// ActiveSessions tracks open recitation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// ListeningSessions tracks sessions currently streaming speech.
	ListeningSessions metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds. Alignment steps take
// microseconds; passage lookups and requests take up to seconds.
var latencyBuckets = []float64{
	0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.AdvanceDuration, "voicebuddy.align.advance.duration", "Latency of one alignment step."},
		{&met.PassageLookupDuration, "voicebuddy.passage.lookup.duration", "Latency of passage source lookups."},
		{&met.HTTPRequestDuration, "voicebuddy.http.request.duration", "HTTP request latency by method and path."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.WordsAligned, "voicebuddy.align.words", "Reference words marked correct or skipped."},
		{&met.HypothesisTokens, "voicebuddy.align.hypothesis_tokens", "Recognised tokens consumed by alignment, by outcome."},
		{&met.Deferrals, "voicebuddy.align.deferrals", "Alignment steps deferred until the next word."},
		{&met.Completions, "voicebuddy.recitation.completions", "Completed recitations by encouragement category."},
		{&met.ProviderRequests, "voicebuddy.provider.requests", "Provider calls by provider, kind and status."},
		{&met.ProviderErrors, "voicebuddy.provider.errors", "Provider errors by provider and kind."},
		{&met.STTRestarts, "voicebuddy.stt.restarts", "Speech streams reopened while listening, by reason."},
		{&met.PassageCacheLookups, "voicebuddy.passage.cache.lookups", "Passage cache lookups by result."},
		{&met.CircuitTransitions, "voicebuddy.circuit.transitions", "Circuit breaker state changes."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("voicebuddy.active_sessions",
		metric.WithDescription("Number of open recitation sessions."),
	); err != nil {
		return nil, err
	}
	if met.ListeningSessions, err = m.Int64UpDownCounter("voicebuddy.listening_sessions",
		metric.WithDescription("Number of sessions currently streaming speech."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first use
// from [otel.GetMeterProvider]. It panics if an instrument cannot be
// created, which does not happen with the global provider.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// AdvanceStats is what one alignment step did.
type AdvanceStats struct {
	Matched  int
	Skipped  int
	Noise    int
	Deferred bool
}

// RecordAdvance records the latency and effect of one alignment step.
func (m *Metrics) RecordAdvance(ctx context.Context, d time.Duration, s AdvanceStats) {
	m.AdvanceDuration.Record(ctx, d.Seconds())
	if s.Matched > 0 {
		m.WordsAligned.Add(ctx, int64(s.Matched), metric.WithAttributes(Attr("status", "correct")))
		m.HypothesisTokens.Add(ctx, int64(s.Matched), metric.WithAttributes(Attr("outcome", "matched")))
	}
	if s.Skipped > 0 {
		m.WordsAligned.Add(ctx, int64(s.Skipped), metric.WithAttributes(Attr("status", "skipped")))
	}
	if s.Noise > 0 {
		m.HypothesisTokens.Add(ctx, int64(s.Noise), metric.WithAttributes(Attr("outcome", "noise")))
	}
	if s.Deferred {
		m.Deferrals.Add(ctx, 1)
	}
}

// RecordCompletion counts a finished recitation.
func (m *Metrics) RecordCompletion(ctx context.Context, category string) {
	m.Completions.Add(ctx, 1, metric.WithAttributes(Attr("category", category)))
}

// RecordProviderRequest counts a provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
		Attr("status", status),
	))
}

// RecordProviderError counts a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider),
		Attr("kind", kind),
	))
}

// RecordSTTRestart counts a reopened speech stream.
func (m *Metrics) RecordSTTRestart(ctx context.Context, reason string) {
	m.STTRestarts.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordPassageLookup records a passage source lookup.
func (m *Metrics) RecordPassageLookup(ctx context.Context, d time.Duration, status string) {
	m.PassageLookupDuration.Record(ctx, d.Seconds(), metric.WithAttributes(Attr("status", status)))
}

// RecordCacheLookup counts a passage cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.PassageCacheLookups.Add(ctx, 1, metric.WithAttributes(Attr("result", result)))
}

// RecordCircuitTransition counts a circuit breaker state change.
func (m *Metrics) RecordCircuitTransition(ctx context.Context, name, to string) {
	m.CircuitTransitions.Add(ctx, 1, metric.WithAttributes(Attr("name", name), Attr("to", to)))
}
