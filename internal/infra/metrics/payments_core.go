package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		paymentFallbacksTotal,
		providerAttemptsTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by status (initiated/completed/failed).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Total minor-unit value of settled payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	paymentFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_fallbacks_total",
			Help: "Initiations that succeeded only after at least one provider declined.",
		},
		[]string{"provider"}, // the provider that ultimately accepted
	)

	providerAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_provider_attempts_total",
			Help: "Initiation attempts per provider by outcome.",
		},
		[]string{"provider", "outcome"}, // outcome: accepted|declined
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func IncFallback(provider string) {
	paymentFallbacksTotal.WithLabelValues(norm(provider)).Inc()
}

func IncProviderAttempt(provider, outcome string) {
	providerAttemptsTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}
