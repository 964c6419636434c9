// File: internal/infra/adapters/payment/breaker.go
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/adapter"
)

var _ adapter.PaymentProvider = (*BreakerProvider)(nil)

// BreakerProvider wraps a provider in a circuit breaker so a flapping
// provider is skipped quickly instead of burning its timeout on every
// attempt. An open breaker surfaces as a soft failure, which is exactly
// what the orchestrator needs to move on to a fallback.
type BreakerProvider struct {
	inner   adapter.PaymentProvider
	process *gobreaker.CircuitBreaker
	verify  *gobreaker.CircuitBreaker
}

func WithBreaker(inner adapter.PaymentProvider) *BreakerProvider {
	mk := func(op string) *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    inner.Name() + ":" + op,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		})
	}
	return &BreakerProvider{inner: inner, process: mk("process"), verify: mk("verify")}
}

func (b *BreakerProvider) Name() string { return b.inner.Name() }

func (b *BreakerProvider) ProcessPayment(ctx context.Context, params adapter.PaymentParams) adapter.PaymentResult {
	out, err := b.process.Execute(func() (any, error) {
		res := b.inner.ProcessPayment(ctx, params)
		if !res.Success {
			return res, errSoftFailure
		}
		return res, nil
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return adapter.PaymentResult{Error: b.inner.Name() + " temporarily unavailable"}
	}
	return out.(adapter.PaymentResult)
}

func (b *BreakerProvider) VerifyPayment(ctx context.Context, providerTxID string) adapter.PaymentVerification {
	out, err := b.verify.Execute(func() (any, error) {
		v := b.inner.VerifyPayment(ctx, providerTxID)
		// Only transport-level failures count against the breaker; neither a
		// payer who has not paid yet nor one who declined is a provider outage.
		if v.TransportError {
			return v, errSoftFailure
		}
		return v, nil
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return adapter.PaymentVerification{Status: adapter.StatusPending, Error: b.inner.Name() + " temporarily unavailable"}
	}
	return out.(adapter.PaymentVerification)
}

func (b *BreakerProvider) HandleWebhook(ctx context.Context, payload adapter.WebhookPayload) adapter.WebhookResult {
	// Webhook parsing is local; nothing to shield.
	return b.inner.HandleWebhook(ctx, payload)
}

// errSoftFailure feeds the breaker's failure counter while the declined
// result itself is still returned to the caller.
var errSoftFailure = errors.New("provider declined")
