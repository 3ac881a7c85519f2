package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Purchase outcomes.
const (
	OutcomeSuccess      = "success"
	OutcomeRejected     = "rejected"
	OutcomeLostRace     = "lost_race"
	OutcomeFailed       = "failed"
	CompensationOK      = "released"
	CompensationFailure = "failed"
)

// PurchaseMetrics counts purchase attempts and compensations.
type PurchaseMetrics struct {
	attempts      *prometheus.CounterVec
	compensations *prometheus.CounterVec
	duration      prometheus.Histogram
}

// NewPurchaseMetrics registers the purchase metrics on reg. A nil registerer
// yields a no-op recorder.
func NewPurchaseMetrics(reg prometheus.Registerer) *PurchaseMetrics {
	if reg == nil {
		return &PurchaseMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purchase_attempts_total",
		Help:      "Purchase attempts by outcome.",
	}, []string{"outcome"})
	compensations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "purchase_compensations_total",
		Help:      "Reservation releases after a failed order insert.",
	}, []string{"result"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "purchase_duration_seconds",
		Help:      "Time spent in the purchase workflow.",
		Buckets:   prometheus.DefBuckets,
	})
	reg.MustRegister(attempts, compensations, duration)
	return &PurchaseMetrics{
		attempts:      attempts,
		compensations: compensations,
		duration:      duration,
	}
}

// Observe records one finished purchase attempt.
func (p *PurchaseMetrics) Observe(outcome string, elapsed time.Duration) {
	if p == nil || p.attempts == nil {
		return
	}
	p.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
	p.duration.Observe(elapsed.Seconds())
}

// IncCompensation records a compensating release and its result.
func (p *PurchaseMetrics) IncCompensation(result string) {
	if p == nil || p.compensations == nil {
		return
	}
	p.compensations.WithLabelValues(normalizeLabel(result)).Inc()
}
