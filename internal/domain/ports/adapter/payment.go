package adapter

import (
	"context"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
)

// Normalized payment statuses shared by all providers.
type PaymentStatus string

const (
	StatusCompleted PaymentStatus = "completed"
	StatusPending   PaymentStatus = "pending"
	StatusFailed    PaymentStatus = "failed"
)

// PaymentParams is the input to one payment attempt. Immutable once built.
// Metadata must at minimum carry the internal transaction id under
// MetaTransactionID so asynchronous callbacks can be reconciled.
type PaymentParams struct {
	Amount   int64 // minor units
	Currency string
	Email    string
	Phone    string // required by M-Pesa, optional elsewhere
	FilmID   string
	UserID   string
	Kind     model.TransactionKind
	Metadata map[string]string
}

const MetaTransactionID = "transaction_id"

// ProviderFailure records one provider's reason for declining an attempt.
type ProviderFailure struct {
	Provider string
	Reason   string
}

// PaymentResult is the outcome of an initiation attempt. Exactly one of
// {Success with ProviderTxID} or {!Success with Error} holds.
type PaymentResult struct {
	Success      bool
	Provider     string // name of the provider that accepted, filled by the orchestrator
	ProviderTxID string
	PaymentURL   string // hosted-checkout redirect, empty for push providers
	Reference    string
	Error        string
	Failures     []ProviderFailure // per-provider detail, filled by the orchestrator
}

// PaymentVerification is the outcome of a status check. Amount and Currency
// are the provider's own numbers; callers must compare them against the
// stored transaction before granting anything. TransportError marks failures
// of the check itself (HTTP/auth trouble) as opposed to a provider-reported
// payment failure; circuit breakers count only the former.
type PaymentVerification struct {
	Success        bool
	Status         PaymentStatus
	Amount         int64 // minor units
	Currency       string
	Ref            string
	Error          string
	TransportError bool
}

// WebhookPayload is an inbound provider notification: the raw body plus the
// headers that matter for authenticity checks.
type WebhookPayload struct {
	Body    []byte
	Headers map[string]string
}

// WebhookResult is the outcome of processing one notification. Success means
// the payload was parsed and authenticated, independent of payment outcome.
// A !Success result with no ProviderTxID means "ignore, mutate nothing".
type WebhookResult struct {
	Success      bool
	ProviderTxID string
	Status       PaymentStatus // completed or failed; pending payloads are dropped
	Error        string
}

// PaymentProvider is the port every payment provider adapter implements.
// Implementations never panic and never return transport errors to callers:
// any failure is folded into the result's Success/Error fields so the
// orchestrator can fall back. All amount unit/precision conversion happens
// inside the adapter.
type PaymentProvider interface {
	Name() string
	// ProcessPayment authenticates with the provider and initiates a payment.
	ProcessPayment(ctx context.Context, params PaymentParams) PaymentResult
	// VerifyPayment queries current status of a previously-initiated payment.
	// "Still processing" provider codes map to StatusPending, never failed.
	VerifyPayment(ctx context.Context, providerTxID string) PaymentVerification
	// HandleWebhook parses one inbound notification. Adapters document whether
	// they authenticate the payload themselves or expect the HTTP layer to.
	HandleWebhook(ctx context.Context, payload WebhookPayload) WebhookResult
}
