package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "moodring"

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	cycles         prometheus.Counter
	cycleDuration  prometheus.Histogram
	ticksSkipped   prometheus.Counter
	membersTicked  prometheus.Counter
	memberFailures *prometheus.CounterVec
	roleOperations *prometheus.CounterVec
	chaosGrants    prometheus.Counter
	unlocks        *prometheus.CounterVec
	sweptTriggers  prometheus.Counter
}

// NewMetrics creates the engine collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "engine", Name: "cycles_total",
			Help: "Completed engine cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "engine", Name: "cycle_duration_seconds",
			Help:    "Wall time of one engine cycle.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "engine", Name: "ticks_skipped_total",
			Help: "Ticks skipped because the previous cycle was still running.",
		}),
		membersTicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "engine", Name: "members_ticked_total",
			Help: "Member updates attempted.",
		}),
		memberFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "engine", Name: "member_failures_total",
			Help: "Member updates that failed, by stage.",
		}, []string{"stage"}),
		roleOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "engine", Name: "role_operations_total",
			Help: "Executed role operations by kind, scope and outcome.",
		}, []string{"kind", "scope", "outcome"}),
		chaosGrants: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "engine", Name: "chaos_grants_total",
			Help: "Chaos roles granted.",
		}),
		unlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "engine", Name: "achievement_unlocks_total",
			Help: "Achievements unlocked, by achievement.",
		}, []string{"achievement"}),
		sweptTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "engine", Name: "triggers_swept_total",
			Help: "Expired triggers deactivated by sweeps.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.cycles, m.cycleDuration, m.ticksSkipped, m.membersTicked, m.memberFailures,
			m.roleOperations, m.chaosGrants, m.unlocks, m.sweptTriggers,
		)
	}
	return m
}

func (m *Metrics) observeCycle(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) tickSkipped() {
	if m == nil {
		return
	}
	m.ticksSkipped.Inc()
}

func (m *Metrics) memberTicked() {
	if m == nil {
		return
	}
	m.membersTicked.Inc()
}

func (m *Metrics) memberFailed(stage string) {
	if m == nil {
		return
	}
	m.memberFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) roleOperation(kind, scope string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.roleOperations.WithLabelValues(kind, scope, outcome).Inc()
}

func (m *Metrics) chaosGranted() {
	if m == nil {
		return
	}
	m.chaosGrants.Inc()
}

func (m *Metrics) achievementUnlocked(achievementID string) {
	if m == nil {
		return
	}
	m.unlocks.WithLabelValues(achievementID).Inc()
}

func (m *Metrics) triggersSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sweptTriggers.Add(float64(n))
}
