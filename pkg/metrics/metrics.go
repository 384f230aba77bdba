// Package metrics provides Prometheus metrics for the prediction service.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/richard-senior/podds/pkg/cache"
)

// Metrics collects upstream, cache and prediction metrics on its own registry
type Metrics struct {
	registry *prometheus.Registry

	UpstreamCalls   *prometheus.CounterVec
	UpstreamLatency *prometheus.HistogramVec
	QuotaRejections prometheus.Counter

	Predictions       *prometheus.CounterVec
	PredictionLatency prometheus.Histogram
	DefaultedInputs   *prometheus.CounterVec

	EloUpdates prometheus.Counter
}

// New creates and registers every collector
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		UpstreamCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "podds_upstream_calls_total",
				Help: "Calls made to the sports data vendor by operation and result",
			},
			[]string{"operation", "result"},
		),
		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "podds_upstream_latency_seconds",
				Help:    "Latency of sports data vendor calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		QuotaRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podds_quota_rejections_total",
			Help: "Upstream calls refused because a user quota was exhausted",
		}),
		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "podds_predictions_total",
				Help: "Predictions produced by status and ensemble method",
			},
			[]string{"status", "method"},
		),
		PredictionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "podds_prediction_latency_seconds",
			Help:    "End to end latency of a single fixture prediction",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 30},
		}),
		DefaultedInputs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "podds_defaulted_inputs_total",
				Help: "Feature inputs that fell back to documented defaults",
			},
			[]string{"input"},
		),
		EloUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "podds_elo_updates_total",
			Help: "Finished matches applied to the Elo store",
		}),
	}

	registry.MustRegister(
		m.UpstreamCalls,
		m.UpstreamLatency,
		m.QuotaRejections,
		m.Predictions,
		m.PredictionLatency,
		m.DefaultedInputs,
		m.EloUpdates,
	)
	return m
}

// ObserveUpstream records one vendor call
func (m *Metrics) ObserveUpstream(operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamCalls.WithLabelValues(operation, result).Inc()
	m.UpstreamLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObservePrediction records one finished prediction
func (m *Metrics) ObservePrediction(status, method string, elapsed time.Duration, defaulted []string) {
	if m == nil {
		return
	}
	m.Predictions.WithLabelValues(status, method).Inc()
	m.PredictionLatency.Observe(elapsed.Seconds())
	for _, d := range defaulted {
		m.DefaultedInputs.WithLabelValues(d).Inc()
	}
}

// RegisterCache exports the cache tier counters
func (m *Metrics) RegisterCache(c *cache.MatchCache) {
	stat := func(pick func(cache.Stats) float64) func() float64 {
		return func() float64 { return pick(c.Stats(context.Background())) }
	}
	for _, tier := range []string{"l1", "l2"} {
		tier := tier
		get := func(s cache.Stats) cache.TierStats {
			if tier == "l1" {
				return s.L1
			}
			return s.L2
		}
		labels := prometheus.Labels{"tier": tier}
		m.registry.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "podds_cache_hits_total", Help: "Cache hits", ConstLabels: labels,
			}, stat(func(s cache.Stats) float64 { return float64(get(s).Hits) })),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "podds_cache_misses_total", Help: "Cache misses", ConstLabels: labels,
			}, stat(func(s cache.Stats) float64 { return float64(get(s).Misses) })),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Name: "podds_cache_evictions_total", Help: "Cache evictions", ConstLabels: labels,
			}, stat(func(s cache.Stats) float64 { return float64(get(s).Evictions) })),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "podds_cache_entries", Help: "Entries held", ConstLabels: labels,
			}, stat(func(s cache.Stats) float64 { return float64(get(s).Entries) })),
		)
	}
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
