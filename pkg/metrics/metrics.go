package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Role metrics
	RolesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rolekeeper_roles_total",
			Help: "Total number of roles managed by this process",
		},
	)

	RoleReplicas = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rolekeeper_role_replicas",
			Help: "Number of replicas of a role by state",
		},
		[]string{"role", "state"},
	)

	RoleCompleted = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rolekeeper_role_completed",
			Help: "Whether a role reached its target (1 = completed, 0 = converging)",
		},
		[]string{"role"},
	)

	ReplicasCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolekeeper_replicas_created_total",
			Help: "Total number of replicas created",
		},
		[]string{"role"},
	)

	ReplicasReleased = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolekeeper_replicas_released_total",
			Help: "Total number of replicas marked for release",
		},
		[]string{"role"},
	)

	BrokenRecover = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolekeeper_broken_recover_total",
			Help: "Broken worker recoveries by quota result",
		},
		[]string{"role", "result"},
	)

	// Scheduler adapter metrics
	AdapterCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolekeeper_adapter_calls_total",
			Help: "Scheduler adapter calls by call and status",
		},
		[]string{"call", "status"},
	)

	SlotsReleased = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolekeeper_slots_released_total",
			Help: "Total number of slots sent for release",
		},
		[]string{"role"},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rolekeeper_reconciliation_duration_seconds",
			Help:    "Reconciliation cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	ReconciliationCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolekeeper_reconciliation_cycles_total",
			Help: "Reconciliation cycles by phase and status",
		},
		[]string{"phase", "status"},
	)

	SnapshotWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rolekeeper_snapshot_writes_total",
			Help: "Role snapshot writes by status",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(RolesTotal)
	prometheus.MustRegister(RoleReplicas)
	prometheus.MustRegister(RoleCompleted)
	prometheus.MustRegister(ReplicasCreated)
	prometheus.MustRegister(ReplicasReleased)
	prometheus.MustRegister(BrokenRecover)
	prometheus.MustRegister(AdapterCalls)
	prometheus.MustRegister(SlotsReleased)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCycles)
	prometheus.MustRegister(SnapshotWrites)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Status returns "success" or "error" for use as a status label
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Timer measures the duration of an operation
type Timer struct {
	start time.Time
}

// NewTimer starts a timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the time elapsed since the timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration records the elapsed time in a histogram
func (t *Timer) ObserveDuration(h prometheus.Observer) {
	h.Observe(t.Duration().Seconds())
}

// ObserveDurationVec records the elapsed time in a histogram vec
func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
