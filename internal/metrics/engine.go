package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/credits/internal/usecase/reconcile"
)

// Reconciliation engine metrics.
var (
	TicksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "ticks_total",
		Help:      "Completed reconciliation ticks",
	})

	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "tick_duration_seconds",
		Help:      "Reconciliation tick duration in seconds",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})

	GrantedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "granted_total",
		Help:      "Credits granted to users",
	})

	BilledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "billed_total",
		Help:      "Credits billed for leases",
	})

	LeasesStoppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "leases_stopped_total",
		Help:      "Leases stopped for insufficient credits",
	})

	ErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "errors_total",
		Help:      "Isolated reconciliation errors by scope",
	}, []string{"scope"})

	Users = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "users",
		Help:      "Credit records seen by the last tick",
	})

	BalanceSum = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "balance_sum",
		Help:      "Sum of all balances after the last tick",
	})
)

func init() {
	prometheus.MustRegister(
		TicksTotal, TickDuration, GrantedTotal, BilledTotal,
		LeasesStoppedTotal, ErrorsTotal, Users, BalanceSum,
	)
}

// Engine feeds reconciliation counters and, as a post-tick hook, the gauges.
type Engine struct{}

var (
	_ reconcile.Recorder     = Engine{}
	_ reconcile.PostTickHook = Engine{}
)

// TickCompleted implements reconcile.Recorder.
func (Engine) TickCompleted(d time.Duration) {
	TicksTotal.Inc()
	TickDuration.Observe(d.Seconds())
}

// CreditsGranted implements reconcile.Recorder.
func (Engine) CreditsGranted(n int64) { GrantedTotal.Add(float64(n)) }

// CreditsBilled implements reconcile.Recorder.
func (Engine) CreditsBilled(n int64) { BilledTotal.Add(float64(n)) }

// LeaseStopped implements reconcile.Recorder.
func (Engine) LeaseStopped() { LeasesStoppedTotal.Inc() }

// Error implements reconcile.Recorder.
func (Engine) Error(scope string) { ErrorsTotal.WithLabelValues(scope).Inc() }

// AfterTick publishes the tick summary gauges.
func (Engine) AfterTick(_ context.Context, r reconcile.TickReport) error {
	Users.Set(float64(r.Users))
	BalanceSum.Set(float64(r.BalanceSum))
	return nil
}
