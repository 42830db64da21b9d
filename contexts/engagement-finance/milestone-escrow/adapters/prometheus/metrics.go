package prometheusadapter

import (
	"time"

	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records escrow counters on a Prometheus registerer.
type Metrics struct {
	verificationOutcomes *prometheus.CounterVec
	verificationDuration *prometheus.HistogramVec
	fundsOperations      *prometheus.CounterVec
	commits              *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		verificationOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "milestone_verification_outcomes_total",
				Help: "Verification tasks by outcome",
			},
			[]string{"outcome"},
		),
		verificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "milestone_verification_duration_seconds",
				Help:    "Time spent evaluating one submission",
				Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"outcome"},
		),
		fundsOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "milestone_funds_operations_total",
				Help: "Funds service calls by operation and result",
			},
			[]string{"operation", "result"},
		),
		commits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "milestone_aggregate_commits_total",
				Help: "Aggregate commits by operation and result",
			},
			[]string{"operation", "result"},
		),
	}
}

func (m *Metrics) ObserveVerification(outcome string, elapsed time.Duration) {
	m.verificationOutcomes.WithLabelValues(outcome).Inc()
	m.verificationDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveFundsOperation(operation string, err error) {
	m.fundsOperations.WithLabelValues(operation, resultLabel(err)).Inc()
}

func (m *Metrics) ObserveCommit(operation string, err error) {
	m.commits.WithLabelValues(operation, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch domainerrors.KindOf(err) {
	case domainerrors.ErrConflict:
		return "conflict"
	case domainerrors.ErrUpstream:
		return "upstream"
	case domainerrors.ErrNotFound:
		return "not_found"
	case domainerrors.ErrForbidden:
		return "forbidden"
	case domainerrors.ErrValidation:
		return "invalid"
	default:
		return "error"
	}
}
