package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments. Construction takes a
// registerer so tests can use a fresh registry.
type Metrics struct {
	sessionsTotal    *prometheus.CounterVec
	sessionDuration  *prometheus.HistogramVec
	slotsTotal       *prometheus.CounterVec
	failoverAttempts prometheus.Histogram
	alertsTotal      prometheus.Counter
	costUSDTotal     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_sessions_total",
			Help: "Consensus sessions by tier, domain, and terminal state.",
		}, []string{"tier", "domain", "state"}),
		sessionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quorum_session_duration_seconds",
			Help:    "End-to-end consensus session duration.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"tier", "domain"}),
		slotsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_slots_total",
			Help: "Role slots by outcome.",
		}, []string{"outcome"}),
		failoverAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quorum_failover_attempts",
			Help:    "Candidates tried per slot before success or exhaustion.",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		}),
		alertsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "quorum_alerts_total",
			Help: "Operator alerts raised for failing paid models.",
		}),
		costUSDTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quorum_cost_usd_total",
			Help: "Actual model spend in USD.",
		}, []string{"tier", "domain"}),
	}
}

func (m *Metrics) ObserveSession(tier, domain, state string, elapsed time.Duration) {
	m.sessionsTotal.WithLabelValues(tier, domain, state).Inc()
	m.sessionDuration.WithLabelValues(tier, domain).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSlot(outcome string, attempts int) {
	m.slotsTotal.WithLabelValues(outcome).Inc()
	m.failoverAttempts.Observe(float64(attempts))
}

func (m *Metrics) IncAlert() {
	m.alertsTotal.Inc()
}

func (m *Metrics) AddCost(tier, domain string, usd float64) {
	m.costUSDTotal.WithLabelValues(tier, domain).Add(usd)
}
