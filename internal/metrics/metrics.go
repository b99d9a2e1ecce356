// Package metrics exposes Prometheus instrumentation for the generation
// pipeline. All methods are nil-receiver safe so tests can pass a nil
// collector without stubbing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline aggregates the pipeline's Prometheus collectors.
type Pipeline struct {
	registry *prometheus.Registry

	cacheLookups     *prometheus.CounterVec
	requests         *prometheus.CounterVec
	providerAttempts *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
}

// NewPipeline constructs the collectors on a private registry.
func NewPipeline() *Pipeline {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Pipeline{
		registry: registry,
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vizor",
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by outcome.",
		}, []string{"outcome"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vizor",
			Name:      "requests_total",
			Help:      "Generation requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		providerAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vizor",
			Name:      "provider_attempts_total",
			Help:      "Backend invocations by provider and outcome.",
		}, []string{"provider", "outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vizor",
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent per pipeline stage.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
		}, []string{"stage"}),
	}
}

// ObserveCache records a cache lookup outcome.
func (p *Pipeline) ObserveCache(hit bool) {
	if p == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	p.cacheLookups.WithLabelValues(outcome).Inc()
}

// RequestOutcome records the terminal outcome of a request.
func (p *Pipeline) RequestOutcome(mode, outcome string) {
	if p == nil {
		return
	}
	p.requests.WithLabelValues(mode, outcome).Inc()
}

// ProviderAttempt records one backend invocation.
func (p *Pipeline) ProviderAttempt(name, outcome string) {
	if p == nil {
		return
	}
	p.providerAttempts.WithLabelValues(name, outcome).Inc()
}

// ObserveStage records the duration of a completed stage.
func (p *Pipeline) ObserveStage(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Handler serves the scrape endpoint for this collector set.
func (p *Pipeline) Handler() http.Handler {
	if p == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
