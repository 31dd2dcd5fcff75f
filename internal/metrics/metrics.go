// Package metrics exposes Prometheus collectors for coordinators and RPCs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/groupsplit/internal/coordinator"
)

const namespace = "groupsplit"

// Metrics implements coordinator.Recorder and records RPC outcomes.
type Metrics struct {
	recomputes       *prometheus.CounterVec
	recomputeSeconds *prometheus.HistogramVec
	feedErrors       *prometheus.CounterVec
	coordinators     *prometheus.GaugeVec
	rpcs             *prometheus.CounterVec
	rpcSeconds       *prometheus.HistogramVec
}

var _ coordinator.Recorder = (*Metrics)(nil)

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		recomputes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recomputes_total",
			Help:      "Full recomputations performed by coordinators.",
		}, []string{"kind"}),
		recomputeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recompute_duration_seconds",
			Help:      "Time spent recomputing a coordinator's output.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"kind"}),
		feedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_errors_total",
			Help:      "Feed failures observed by coordinators.",
		}, []string{"kind", "feed"}),
		coordinators: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coordinators",
			Help:      "Running coordinators by state.",
		}, []string{"kind", "state"}),
		rpcs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Handled RPCs by procedure and status code.",
		}, []string{"procedure", "code"}),
		rpcSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "RPC handling time. Streams are measured until they close.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
	}

	reg.MustRegister(m.recomputes, m.recomputeSeconds, m.feedErrors, m.coordinators, m.rpcs, m.rpcSeconds)
	return m
}

// Recomputed implements coordinator.Recorder.
func (m *Metrics) Recomputed(kind string, elapsed time.Duration) {
	m.recomputes.WithLabelValues(kind).Inc()
	m.recomputeSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// FeedFailed implements coordinator.Recorder.
func (m *Metrics) FeedFailed(kind, feed string) {
	m.feedErrors.WithLabelValues(kind, feed).Inc()
}

// StateChanged implements coordinator.Recorder. Uninitialized coordinators
// are not counted.
func (m *Metrics) StateChanged(kind string, from, to coordinator.State) {
	if from != coordinator.Uninitialized {
		m.coordinators.WithLabelValues(kind, from.String()).Dec()
	}
	if to != coordinator.Uninitialized {
		m.coordinators.WithLabelValues(kind, to.String()).Inc()
	}
}

// ObserveRPC records one finished RPC.
func (m *Metrics) ObserveRPC(procedure, code string, elapsed time.Duration) {
	m.rpcs.WithLabelValues(procedure, code).Inc()
	m.rpcSeconds.WithLabelValues(procedure).Observe(elapsed.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
