package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TOOL2U/Application---Property-Management--sub002/internal/models"
	"github.com/TOOL2U/Application---Property-Management--sub002/internal/utils"
)

const namespace = "jobsync"

// Collector holds the service metrics. A nil *Collector records nothing.
type Collector struct {
	transitions         *prometheus.CounterVec
	claims              *prometheus.CounterVec
	notifications       *prometheus.CounterVec
	ledgerSuppressions  *prometheus.CounterVec
	relocations         *prometheus.CounterVec
	activeSubscriptions *prometheus.GaugeVec
}

// NewCollector registers every metric with reg (prometheus.DefaultRegisterer when nil).
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_transitions_total",
			Help:      "Persisted job status transitions",
		}, []string{"from", "to"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claim attempts by outcome",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification events by outcome",
		}, []string{"kind", "outcome"}),
		ledgerSuppressions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_suppressions_total",
			Help:      "Events dropped by the idempotency ledger",
		}, []string{"path"}),
		relocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relocations_total",
			Help:      "Completed-job relocations by outcome",
		}, []string{"outcome"}),
		activeSubscriptions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscriptions",
			Help:      "Open job change subscriptions",
		}, []string{"stream"}),
	}
	reg.MustRegister(
		c.transitions,
		c.claims,
		c.notifications,
		c.ledgerSuppressions,
		c.relocations,
		c.activeSubscriptions,
	)
	return c
}

// Handler exposes the default gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}

func (c *Collector) RecordTransition(from, to models.JobStatus) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (c *Collector) RecordClaim(err error) {
	if c == nil {
		return
	}
	c.claims.WithLabelValues(ClaimOutcome(err)).Inc()
}

// ClaimOutcome maps a claim result onto a low-cardinality label.
func ClaimOutcome(err error) string {
	switch {
	case err == nil:
		return "won"
	case errors.Is(err, utils.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, utils.ErrJobNotClaimable):
		return "not_claimable"
	case errors.Is(err, utils.ErrStaleVersion):
		return "stale"
	case errors.Is(err, utils.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "error"
	}
}

func (c *Collector) RecordNotification(kind models.NotificationKind, outcome string) {
	if c == nil {
		return
	}
	c.notifications.WithLabelValues(string(kind), outcome).Inc()
}

func (c *Collector) RecordSuppressed(path string) {
	if c == nil {
		return
	}
	c.ledgerSuppressions.WithLabelValues(path).Inc()
}

func (c *Collector) RecordRelocation(err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	c.relocations.WithLabelValues(outcome).Inc()
}

func (c *Collector) SubscriptionOpened(stream string) {
	if c == nil {
		return
	}
	c.activeSubscriptions.WithLabelValues(stream).Inc()
}

func (c *Collector) SubscriptionClosed(stream string) {
	if c == nil {
		return
	}
	c.activeSubscriptions.WithLabelValues(stream).Dec()
}
