package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhooksTotal,
		webhookDuplicatesTotal,
	)
}

var (
	// outcome: settled|failed|ignored|invalid
	webhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Inbound provider webhooks by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	webhookDuplicatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_duplicates_total",
			Help: "Webhook deliveries dropped as duplicates of one already handled.",
		},
		[]string{"provider"},
	)
)

func IncWebhook(provider, outcome string) {
	webhooksTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func IncWebhookDuplicate(provider string) {
	webhookDuplicatesTotal.WithLabelValues(norm(provider)).Inc()
}
