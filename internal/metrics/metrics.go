package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "adearn"

// Metrics holds the Prometheus collectors for the API.
type Metrics struct {
	RequestCounter  *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	RewardsIssued   *prometheus.CounterVec
	RewardAmount    *prometheus.CounterVec
	ClickRejections *prometheus.CounterVec
	Withdrawals     *prometheus.CounterVec
}

// New registers the collectors on reg. Passing a fresh registry keeps
// tests independent of the global default registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"method", "path"},
		),
		RewardsIssued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "rewards_total",
				Help:      "Rewards credited, by kind",
			},
			[]string{"kind"},
		),
		RewardAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "reward_amount_total",
				Help:      "Sum of rewards credited in the reference currency, by kind",
			},
			[]string{"kind"},
		),
		ClickRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "clicks",
				Name:      "rejections_total",
				Help:      "Rejected link click claims, by error code",
			},
			[]string{"code"},
		),
		Withdrawals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "withdrawals",
				Name:      "events_total",
				Help:      "Withdrawal lifecycle events",
			},
			[]string{"event"},
		),
	}
}

// NewNop returns metrics bound to a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
