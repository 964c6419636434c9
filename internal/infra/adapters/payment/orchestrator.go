// File: internal/infra/adapters/payment/orchestrator.go
package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/adapter"
)

// Orchestrator holds the fixed provider registry and implements provider
// selection and fallback. The registry is built once at construction and
// never mutated, so the orchestrator is safe for concurrent use; every call
// is otherwise stateless.
type Orchestrator struct {
	providers map[string]adapter.PaymentProvider
	order     []string // registration order, used as default fallback order
	log       *zerolog.Logger
}

func NewOrchestrator(logger *zerolog.Logger, providers ...adapter.PaymentProvider) *Orchestrator {
	o := &Orchestrator{providers: make(map[string]adapter.PaymentProvider), log: logger}
	for _, p := range providers {
		if _, dup := o.providers[p.Name()]; dup {
			continue
		}
		o.providers[p.Name()] = p
		o.order = append(o.order, p.Name())
	}
	return o
}

// Providers returns the registered provider names in registration order.
func (o *Orchestrator) Providers() []string {
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// FallbacksFor returns every registered provider except primary, in
// registration order — the default fallback chain for an initiation.
func (o *Orchestrator) FallbacksFor(primary string) []string {
	var out []string
	for _, name := range o.order {
		if name != primary {
			out = append(out, name)
		}
	}
	return out
}

// ProcessPayment tries the named provider, then each fallback in order,
// returning the first success. An unregistered primary skips straight to the
// fallbacks. When everything fails the result carries the per-provider
// failure list alongside an aggregate error, so operators can see which
// provider declined and why.
func (o *Orchestrator) ProcessPayment(ctx context.Context, providerName string, params adapter.PaymentParams, fallbacks []string) adapter.PaymentResult {
	var failures []adapter.ProviderFailure

	tried := make(map[string]bool)
	for _, name := range append([]string{providerName}, fallbacks...) {
		if name == "" || tried[name] {
			continue
		}
		tried[name] = true

		p, ok := o.providers[name]
		if !ok {
			// Unregistered names are skipped, not fatal.
			o.log.Warn().Str("provider", name).Msg("skipping unregistered payment provider")
			continue
		}

		res := p.ProcessPayment(ctx, params)
		if res.Success {
			res.Provider = name
			res.Failures = failures
			return res
		}
		o.log.Warn().Str("provider", name).Str("reason", res.Error).Msg("payment attempt declined")
		failures = append(failures, adapter.ProviderFailure{Provider: name, Reason: res.Error})
	}

	return adapter.PaymentResult{
		Error:    aggregateError(failures),
		Failures: failures,
	}
}

func aggregateError(failures []adapter.ProviderFailure) string {
	if len(failures) == 0 {
		return domain.ErrAllProvidersFailed.Error()
	}
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Provider, f.Reason))
	}
	return domain.ErrAllProvidersFailed.Error() + " (" + strings.Join(parts, "; ") + ")"
}

// VerifyPayment delegates to the named provider.
func (o *Orchestrator) VerifyPayment(ctx context.Context, providerName, providerTxID string) (adapter.PaymentVerification, error) {
	p, ok := o.providers[providerName]
	if !ok {
		return adapter.PaymentVerification{}, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, providerName)
	}
	return p.VerifyPayment(ctx, providerTxID), nil
}

// HandleWebhook delegates to the named provider.
func (o *Orchestrator) HandleWebhook(ctx context.Context, providerName string, payload adapter.WebhookPayload) (adapter.WebhookResult, error) {
	p, ok := o.providers[providerName]
	if !ok {
		return adapter.WebhookResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, providerName)
	}
	return p.HandleWebhook(ctx, payload), nil
}

// regionalCurrencies routes card/regional-capable West/East-African
// currencies to Flutterwave.
var regionalCurrencies = map[string]bool{
	"NGN": true,
	"GHS": true,
	"UGX": true,
	"TZS": true,
}

// RecommendedProvider picks a provider from currency/country. This is a
// literal policy table: Kenyan signals select M-Pesa, the regional currency
// set selects Flutterwave, everything else defaults to PayPal.
func (o *Orchestrator) RecommendedProvider(currency, country string) string {
	if currency == "KES" || country == "KE" {
		return "mpesa"
	}
	if regionalCurrencies[currency] {
		return "flutterwave"
	}
	return "paypal"
}
