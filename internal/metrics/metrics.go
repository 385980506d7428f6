// Package metrics provides Prometheus instrumentation for a batch run.
//
// A batch job has no scrape endpoint, so metrics live on a private registry
// and are written once to a node-exporter textfile when the run ends. All
// methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	// Invocations counts completed invocations by style and outcome
	// ("success" or an error kind).
	Invocations *prometheus.CounterVec

	// InvokeDuration tracks per-prompt latency in seconds, cache hits included.
	InvokeDuration *prometheus.HistogramVec

	CacheLookups *prometheus.CounterVec

	// PromptTokens is only populated when token estimation is enabled.
	PromptTokens prometheus.Counter

	BatchPrompts      prometheus.Gauge
	BatchLastSuccess  prometheus.Gauge
	BatchDurationSecs prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Invocations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_batch_invocations_total",
				Help: "Total number of prompt invocations by outcome.",
			},
			[]string{"style", "outcome"},
		),
		InvokeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_batch_invoke_duration_seconds",
				Help:    "Per-prompt invocation latency in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"style"},
		),
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_batch_cache_lookups_total",
				Help: "Response cache lookups by result.",
			},
			[]string{"result"}, // "hit" or "miss"
		),
		PromptTokens: f.NewCounter(
			prometheus.CounterOpts{
				Name: "llm_batch_prompt_tokens_total",
				Help: "Estimated prompt tokens sent (cl100k_base).",
			},
		),
		BatchPrompts: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "llm_batch_prompts",
				Help: "Number of prompts in the last run.",
			},
		),
		BatchLastSuccess: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "llm_batch_last_success_timestamp_seconds",
				Help: "Unix time the last run wrote its output file.",
			},
		),
		BatchDurationSecs: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "llm_batch_duration_seconds",
				Help: "Wall-clock duration of the last run.",
			},
		),
	}
}

func (m *Metrics) ObserveInvoke(style, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Invocations.WithLabelValues(style, outcome).Inc()
	m.InvokeDuration.WithLabelValues(style).Observe(d.Seconds())
}

func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

func (m *Metrics) AddPromptTokens(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PromptTokens.Add(float64(n))
}

func (m *Metrics) ObserveBatch(prompts int, d time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.BatchPrompts.Set(float64(prompts))
	m.BatchDurationSecs.Set(d.Seconds())
	m.BatchLastSuccess.Set(float64(finishedAt.Unix()))
}

// WriteTextfile dumps the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
