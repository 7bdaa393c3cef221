// Package prometheus provides a Prometheus implementation of metrics.Recorder.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-repository-mirror/metrics"
)

// timer wraps a Prometheus histogram to implement the Timer interface.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

// Default histogram buckets for reconciliation latency (in seconds).
var defaultBuckets = []float64{
	.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30,
}

// Recorder implements metrics.Recorder with Prometheus collectors labelled by repo.
type Recorder struct {
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	fallbacks         *prometheus.CounterVec
	reconcileDuration *prometheus.HistogramVec
	reconcileFailures *prometheus.CounterVec
}

var _ metrics.Recorder = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repository_mirror_cache_hits_total",
			Help: "Total number of reads served from the cache store",
		}, []string{"repo"}),

		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repository_mirror_cache_misses_total",
			Help: "Total number of reads that went to the origin",
		}, []string{"repo"}),

		fallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repository_mirror_fallbacks_total",
			Help: "Total number of reads served from the cache after an origin failure",
		}, []string{"repo"}),

		reconcileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "repository_mirror_reconcile_duration_seconds",
			Help:    "Reconciliation pass latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"repo"}),

		reconcileFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repository_mirror_reconcile_failures_total",
			Help: "Total number of failed reconciliation passes",
		}, []string{"repo"}),
	}

	reg.MustRegister(
		r.cacheHits,
		r.cacheMisses,
		r.fallbacks,
		r.reconcileDuration,
		r.reconcileFailures,
	)

	return r
}

func (r *Recorder) CacheHit(repo string) {
	r.cacheHits.WithLabelValues(repo).Inc()
}

func (r *Recorder) CacheMiss(repo string) {
	r.cacheMisses.WithLabelValues(repo).Inc()
}

func (r *Recorder) Fallback(repo string) {
	r.fallbacks.WithLabelValues(repo).Inc()
}

func (r *Recorder) ReconcileDuration(repo string) metrics.Timer {
	return &timer{h: r.reconcileDuration.WithLabelValues(repo), start: time.Now()}
}

func (r *Recorder) ReconcileFailed(repo string) {
	r.reconcileFailures.WithLabelValues(repo).Inc()
}
