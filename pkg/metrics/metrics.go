// Package metrics exposes ringdb's prometheus gauges and counters.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Session metrics
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ringdb_active_sessions",
			Help: "Number of client sessions currently connected",
		},
	)

	// Gossip metrics
	GossipRoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ringdb_gossip_rounds_total",
			Help: "Total number of gossip rounds initiated by this node",
		},
	)

	GossipRoundFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ringdb_gossip_round_failures_total",
			Help: "Total number of gossip rounds that failed to reach the chosen peer",
		},
	)

	PeersByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ringdb_peers_by_state",
			Help: "Number of known peers by lifecycle state",
		},
		[]string{"state"},
	)

	// Hinted handoff metrics
	HintQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ringdb_hint_queue_depth",
			Help: "Number of pending hints queued per destination peer",
		},
		[]string{"destination"},
	)

	HintsRecordedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ringdb_hints_recorded_total",
			Help: "Total number of hints recorded for unreachable replicas",
		},
	)

	HintsReplayedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ringdb_hints_replayed_total",
			Help: "Total number of hints successfully replayed and acknowledged",
		},
	)

	// Delegation metrics
	ReplicaTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringdb_replica_timeouts_total",
			Help: "Total number of delegated calls that did not reach a replica before the deadline",
		},
		[]string{"replica"},
	)

	DelegateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ringdb_delegate_duration_seconds",
			Help:    "Time taken for a delegated query to reach its consistency threshold",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"}, // "read" or "write"
	)

	RepairsEmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ringdb_repairs_emitted_total",
			Help: "Total number of read-repair deltas pushed back to diverging replicas",
		},
	)

	// Query metrics
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ringdb_queries_total",
			Help: "Total number of QUERY frames handled, by statement kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(GossipRoundsTotal)
	prometheus.MustRegister(GossipRoundFailuresTotal)
	prometheus.MustRegister(PeersByState)
	prometheus.MustRegister(HintQueueDepth)
	prometheus.MustRegister(HintsRecordedTotal)
	prometheus.MustRegister(HintsReplayedTotal)
	prometheus.MustRegister(ReplicaTimeoutsTotal)
	prometheus.MustRegister(DelegateDuration)
	prometheus.MustRegister(RepairsEmittedTotal)
	prometheus.MustRegister(QueriesTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
