package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		reconcileRunsTotal,
		reconcileOutcomesTotal,
		pendingTransactions,
		expiredRentalsTotal,
		outboxPublishedTotal,
	)
}

var (
	reconcileRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_reconcile_runs_total",
			Help: "Completed reconciliation sweeps.",
		},
	)

	// outcome: settled|failed|still_pending|error
	reconcileOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconcile_outcomes_total",
			Help: "Stale pending transactions examined by the reconciler, by outcome.",
		},
		[]string{"outcome"},
	)

	pendingTransactions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_pending_transactions",
			Help: "Transactions currently in pending status.",
		},
	)

	expiredRentalsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "access_expired_rentals_total",
			Help: "Rental grants removed after their window elapsed.",
		},
	)

	outboxPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_outbox_published_total",
			Help: "Outbox events published to the broker, by result.",
		},
		[]string{"result"}, // ok|error
	)
)

func IncReconcileRun()             { reconcileRunsTotal.Inc() }
func IncReconcileOutcome(o string) { reconcileOutcomesTotal.WithLabelValues(norm(o)).Inc() }
func SetPendingTransactions(n int) { pendingTransactions.Set(float64(n)) }
func AddExpiredRentals(n int64)    { expiredRentalsTotal.Add(float64(n)) }
func IncOutboxPublished(result string) {
	outboxPublishedTotal.WithLabelValues(norm(result)).Inc()
}
