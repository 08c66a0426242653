// Package metrics holds the Prometheus collectors exported by studysearch.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests and one-shot CLI commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "studysearch"

// Metrics is the set of collectors shared by the core components.
type Metrics struct {
	registry *prometheus.Registry

	retryAttempts     *prometheus.CounterVec
	breakerOpen       *prometheus.GaugeVec
	embeddingRequests *prometheus.CounterVec
	rateLimitUsage    prometheus.Gauge
	searchRequests    *prometheus.CounterVec
	searchDuration    prometheus.Histogram
	ingestedChunks    prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		retryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Retries scheduled by the retry engine, by operation and error kind.",
		}, []string{"op", "kind"}),
		breakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_open",
			Help:      "1 while the circuit breaker for an operation is open.",
		}, []string{"op"}),
		embeddingRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Embedding requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		rateLimitUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rate_limit_requests_in_window",
			Help:      "Embedding requests recorded in the current one-minute window.",
		}),
		searchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by execution mode.",
		}, []string{"mode"}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end search latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		ingestedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Chunks written by the ingestion pipeline.",
		}),
	}

	m.registry.MustRegister(
		m.retryAttempts,
		m.breakerOpen,
		m.embeddingRequests,
		m.rateLimitUsage,
		m.searchRequests,
		m.searchDuration,
		m.ingestedChunks,
	)
	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RetryAttempt(op, kind string) {
	if m == nil {
		return
	}
	m.retryAttempts.WithLabelValues(op, kind).Inc()
}

func (m *Metrics) BreakerState(op string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.breakerOpen.WithLabelValues(op).Set(v)
}

func (m *Metrics) EmbeddingRequest(provider string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.embeddingRequests.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RateLimitUsage(n int) {
	if m == nil {
		return
	}
	m.rateLimitUsage.Set(float64(n))
}

// SearchCompleted records one search in the given mode ("hybrid",
// "vector", "keyword", "failed", "cached").
func (m *Metrics) SearchCompleted(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.searchRequests.WithLabelValues(mode).Inc()
	m.searchDuration.Observe(d.Seconds())
}

func (m *Metrics) ChunksIngested(n int) {
	if m == nil {
		return
	}
	m.ingestedChunks.Add(float64(n))
}
