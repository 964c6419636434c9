package redis

import (
	"context"
	"fmt"
	"time"
)

// WebhookDedupe remembers recently processed provider deliveries so a retried
// webhook becomes a cheap no-op before it ever reaches the settle path. The
// store-level CAS still protects correctness if redis forgets.
type WebhookDedupe struct {
	client RedisClient
	ttl    time.Duration
}

func NewWebhookDedupe(client RedisClient, ttl time.Duration) *WebhookDedupe {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &WebhookDedupe{client: client, ttl: ttl}
}

// FirstDelivery reports whether this (provider, providerTxID, status) triple
// is seen for the first time. Errors are reported as first deliveries so a
// redis outage never drops a webhook.
func (d *WebhookDedupe) FirstDelivery(ctx context.Context, provider, providerTxID, status string) bool {
	ok, err := d.client.SetNX(ctx, dedupeKey(provider, providerTxID, status), 1, d.ttl)
	if err != nil {
		return true
	}
	return ok
}

// Forget releases a delivery marker so the provider's retry of the same
// notification is processed again. Used when settling failed transiently.
func (d *WebhookDedupe) Forget(ctx context.Context, provider, providerTxID, status string) {
	_ = d.client.Del(ctx, dedupeKey(provider, providerTxID, status))
}

func dedupeKey(provider, providerTxID, status string) string {
	return fmt.Sprintf("webhook:%s:%s:%s", provider, providerTxID, status)
}
