package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes engine counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Noops counts silently ignored requests by operation and reason.
	Noops          *prometheus.CounterVec
	Inferences     *prometheus.CounterVec
	Discoveries    *prometheus.CounterVec
	OracleFailures prometheus.Counter
	HistoryDropped prometheus.Counter
	SpreadNodes    prometheus.Histogram
}

// New registers the engine metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Noops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "semnet_noop_total",
			Help: "Requests ignored because of unknown ids or missing edges",
		}, []string{"operation", "reason"}),
		Inferences: f.NewCounterVec(prometheus.CounterOpts{
			Name: "semnet_inferences_total",
			Help: "Inference calls by strategy",
		}, []string{"kind"}),
		Discoveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "semnet_discoveries_total",
			Help: "Relationships created by auto-discovery, by relation source",
		}, []string{"source"}),
		OracleFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "semnet_oracle_failures_total",
			Help: "Relation oracle calls that returned an error",
		}),
		HistoryDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "semnet_history_dropped_total",
			Help: "History records overwritten before being drained",
		}),
		SpreadNodes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "semnet_spread_nodes",
			Help:    "Concepts reached per spreading activation pass",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
	}
}

// Noop counts a request that was ignored, labelled by operation and reason.
func (m *Metrics) Noop(operation, reason string) {
	if m == nil {
		return
	}
	m.Noops.WithLabelValues(operation, reason).Inc()
}

// Inference counts one inference call of the given strategy.
func (m *Metrics) Inference(kind string) {
	if m == nil {
		return
	}
	m.Inferences.WithLabelValues(kind).Inc()
}

// Discovery counts one relationship created by auto-discovery.
func (m *Metrics) Discovery(source string) {
	if m == nil {
		return
	}
	m.Discoveries.WithLabelValues(source).Inc()
}

// OracleFailure counts a relation oracle error.
func (m *Metrics) OracleFailure() {
	if m == nil {
		return
	}
	m.OracleFailures.Inc()
}

// Dropped adds n overwritten history records.
func (m *Metrics) Dropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HistoryDropped.Add(float64(n))
}

// Spread observes how many concepts one spreading pass reached.
func (m *Metrics) Spread(nodes int) {
	if m == nil {
		return
	}
	m.SpreadNodes.Observe(float64(nodes))
}
