package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Cluster-wide gauges.
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "searchctl_nodes_total",
			Help: "Total number of search units by role and health",
		},
		[]string{"role", "health"},
	)

	IndicesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "searchctl_indices_total",
			Help: "Total number of indices in the catalogue",
		},
	)

	ShardsUnassigned = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "searchctl_shards_unassigned",
			Help: "Number of shards left with no planned writer in the last allocation pass",
		},
	)

	// Leadership.
	IsLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "searchctl_is_leader",
			Help: "Whether this process currently holds the scheduler leadership (1 = leader, 0 = follower)",
		},
	)

	// Reconciliation pass metrics.
	ReconciliationPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "searchctl_reconciliation_pass_duration_seconds",
			Help:    "Time taken for one Discovery -> Allocator -> Orchestrator -> Updater pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationPassesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "searchctl_reconciliation_passes_total",
			Help: "Total number of reconciliation passes completed",
		},
	)

	ReconciliationPassesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "searchctl_reconciliation_passes_failed_total",
			Help: "Total number of reconciliation passes aborted by an error",
		},
	)

	// Allocation engine metrics.
	AllocationDecisionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "searchctl_allocation_decision_duration_seconds",
			Help:    "Time taken by the allocation decision engine for one shard",
			Buckets: prometheus.DefBuckets,
		},
	)

	AllocationDiagnosticsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchctl_allocation_diagnostics_total",
			Help: "Total number of allocation diagnostics raised, by kind",
		},
		[]string{"kind"},
	)

	// Goal-state orchestrator metrics.
	GoalStateWriteDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "searchctl_goal_state_write_duration_seconds",
			Help:    "Time taken to write one node's goal state",
			Buckets: prometheus.DefBuckets,
		},
	)

	GoalStateWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "searchctl_goal_state_writes_total",
			Help: "Total number of goal-state writes by outcome",
		},
		[]string{"outcome"},
	)

	// Discovery / heartbeat metrics.
	NodesEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "searchctl_nodes_evicted_total",
			Help: "Total number of nodes evicted from the roster for stale heartbeats",
		},
	)
)

func init() {
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(IndicesTotal)
	prometheus.MustRegister(ShardsUnassigned)
	prometheus.MustRegister(IsLeader)
	prometheus.MustRegister(ReconciliationPassDuration)
	prometheus.MustRegister(ReconciliationPassesTotal)
	prometheus.MustRegister(ReconciliationPassesFailed)
	prometheus.MustRegister(AllocationDecisionDuration)
	prometheus.MustRegister(AllocationDiagnosticsTotal)
	prometheus.MustRegister(GoalStateWriteDuration)
	prometheus.MustRegister(GoalStateWritesTotal)
	prometheus.MustRegister(NodesEvictedTotal)
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, started now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
