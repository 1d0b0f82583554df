// Package observe holds the hifz telemetry: OpenTelemetry metrics and
// traces, session-aware structured logging and the HTTP middleware that
// ties them to requests.
//
// [InitProvider] installs the SDK and returns a [Telemetry] whose private
// Prometheus registry backs the /metrics endpoint. Code that is not handed
// a [Metrics] falls back to [DefaultMetrics] on the global provider. Tests
// build their own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Hifz metrics.
const meterName = "github.com/MrWong99/hifz"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per provider kind ---

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// LLMDuration tracks LLM completion latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// BatchGenerationDuration tracks how long producing one question batch
	// takes end to end (passage pick, prompt, parse).
	BatchGenerationDuration metric.Float64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// Answers counts judged answers. Use with attributes:
	//   attribute.String("verdict", "correct"|"wrong"), attribute.String("tier", ...)
	Answers metric.Int64Counter

	// Prefetches counts background batch fetches. Use with attribute:
	//   attribute.String("outcome", "appended"|"empty")
	Prefetches metric.Int64Counter

	// QuestionsGenerated counts questions produced by the generator.
	QuestionsGenerated metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of quiz sessions held in memory.
	ActiveSessions metric.Int64UpDownCounter

	// InflightPrefetches tracks prefetch goroutines currently running.
	InflightPrefetches metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...), attribute.String("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Question
// generation routinely takes several seconds, so the tail is long.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40,
}

// NewMetrics creates every instrument on mp. It fails on the first
// instrument the provider rejects.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "hifz.stt.duration", "Latency of transcribing one recorded answer."},
		{&met.LLMDuration, "hifz.llm.duration", "Latency of LLM completions."},
		{&met.TTSDuration, "hifz.tts.duration", "Latency of synthesising one correction phrase."},
		{&met.BatchGenerationDuration, "hifz.batch_generation.duration", "Latency of producing one question batch."},
		{&met.HTTPRequestDuration, "hifz.http.request.duration", "HTTP request latency by method, route and status."},
	}
	for _, h := range histograms {
		v, err := m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		if err != nil {
			return nil, fmt.Errorf("observe: histogram %s: %w", h.name, err)
		}
		*h.dst = v
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "hifz.provider.requests", "Provider API requests by provider, kind and status."},
		{&met.ProviderErrors, "hifz.provider.errors", "Provider errors by provider and kind."},
		{&met.Answers, "hifz.answers", "Judged answers by verdict and decision tier."},
		{&met.Prefetches, "hifz.prefetches", "Background batch fetches by outcome."},
		{&met.QuestionsGenerated, "hifz.questions.generated", "Questions produced by the generator."},
		{&met.BreakerTransitions, "hifz.breaker.transitions", "Circuit breaker state changes by provider and target state."},
	}
	for _, c := range counters {
		v, err := m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("observe: counter %s: %w", c.name, err)
		}
		*c.dst = v
	}

	gauges := []struct {
		dst  *metric.Int64UpDownCounter
		name string
		desc string
	}{
		{&met.ActiveSessions, "hifz.active_sessions", "Quiz sessions held in memory."},
		{&met.InflightPrefetches, "hifz.inflight_prefetches", "Background batch fetches currently running."},
	}
	for _, g := range gauges {
		v, err := m.Int64UpDownCounter(g.name, metric.WithDescription(g.desc))
		if err != nil {
			return nil, fmt.Errorf("observe: gauge %s: %w", g.name, err)
		}
		*g.dst = v
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

// RecordProviderRequest records a provider request counter increment with
// the standard attribute set.
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

// RecordAnswer records one judged answer.
func (m *Metrics) RecordAnswer(ctx context.Context, correct bool, tier string) {
	verdict := "wrong"
	if correct {
		verdict = "correct"
	}
	m.Answers.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("verdict", verdict),
			attribute.String("tier", tier),
		),
	)
}

// RecordPrefetch records the outcome of one background batch fetch.
func (m *Metrics) RecordPrefetch(ctx context.Context, outcome string) {
	m.Prefetches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordBreakerTransition records one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, provider, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("to", to),
		),
	)
}
