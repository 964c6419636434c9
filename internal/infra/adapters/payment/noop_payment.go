package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*NoopProvider)(nil)

// NoopProvider is a simple in-memory provider for dev mode and tests.
// Every initiation succeeds and verifies as completed with the amount asked.
type NoopProvider struct {
	mu      sync.Mutex
	seq     int64
	intents map[string]adapter.PaymentParams
}

func NewNoopProvider() *NoopProvider {
	return &NoopProvider{intents: make(map[string]adapter.PaymentParams)}
}

func (g *NoopProvider) Name() string { return "noop" }

func (g *NoopProvider) ProcessPayment(ctx context.Context, params adapter.PaymentParams) adapter.PaymentResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	id := fmt.Sprintf("noop-%d", g.seq)
	g.intents[id] = params
	return adapter.PaymentResult{
		Success:      true,
		ProviderTxID: id,
		PaymentURL:   "https://example.test/pay/" + id,
		Reference:    "ref-" + id,
	}
}

func (g *NoopProvider) VerifyPayment(ctx context.Context, providerTxID string) adapter.PaymentVerification {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.intents[providerTxID]
	if !ok {
		return adapter.PaymentVerification{Status: adapter.StatusFailed, Error: "noop: unknown transaction"}
	}
	return adapter.PaymentVerification{
		Success:  true,
		Status:   adapter.StatusCompleted,
		Amount:   p.Amount,
		Currency: p.Currency,
		Ref:      "ref-" + providerTxID,
	}
}

func (g *NoopProvider) HandleWebhook(ctx context.Context, payload adapter.WebhookPayload) adapter.WebhookResult {
	return adapter.WebhookResult{Error: "noop: webhooks not supported"}
}
