// File: internal/usecase/payment_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/adapter"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/repository"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/logging"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/metrics"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/redis"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// Orchestrator is the provider-selection surface the payment flow needs.
// *payment.Orchestrator satisfies it.
type Orchestrator interface {
	ProcessPayment(ctx context.Context, providerName string, params adapter.PaymentParams, fallbacks []string) adapter.PaymentResult
	VerifyPayment(ctx context.Context, providerName, providerTxID string) (adapter.PaymentVerification, error)
	HandleWebhook(ctx context.Context, providerName string, payload adapter.WebhookPayload) (adapter.WebhookResult, error)
	RecommendedProvider(currency, country string) string
	FallbacksFor(primary string) []string
}

// RateLimiter throttles initiations per user.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// WebhookDeduper drops retried provider deliveries before they hit the
// settle path. Forget releases a marker again when settling hit a transient
// error, so the provider's retry is not thrown away with it.
type WebhookDeduper interface {
	FirstDelivery(ctx context.Context, provider, providerTxID, status string) bool
	Forget(ctx context.Context, provider, providerTxID, status string)
}

type InitiateInput struct {
	UserID   string
	FilmID   string
	Kind     model.TransactionKind
	Provider string // optional explicit provider; empty = route by currency/country
	Country  string // ISO-3166 alpha-2 hint for routing
	Currency string // routing hint only; the film's currency sets the charge
	Email    string // overrides the stored user email when set
	Phone    string // overrides the stored user phone when set
}

type InitiateResult struct {
	Transaction *model.Transaction
	Provider    string // the provider that accepted
	PaymentURL  string // hosted-checkout redirect, empty for push providers
	Failures    []adapter.ProviderFailure
}

type PaymentUseCase interface {
	// Initiate creates a pending transaction and asks a provider (with
	// fallback) to start collecting payment for it.
	Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error)
	// Verify checks provider-side status of the caller's transaction and
	// settles it when the provider reports a final state. Idempotent.
	Verify(ctx context.Context, userID, transactionID string) (*model.Transaction, error)
	// HandleWebhook processes one inbound provider notification.
	HandleWebhook(ctx context.Context, provider string, payload adapter.WebhookPayload) error
	// Reverify is the reconciler's entry: same as Verify but without an
	// ownership check.
	Reverify(ctx context.Context, t *model.Transaction) (*model.Transaction, error)
	// PollUntilSettled re-verifies on an interval until the transaction
	// leaves pending or the attempt budget runs out.
	PollUntilSettled(ctx context.Context, userID, transactionID string, interval time.Duration, maxAttempts uint64) (*model.Transaction, error)
}

// PaymentUCDeps wires the payment flow. All fields are required except
// Limiter and Dedupe, which degrade to no-ops when nil.
type PaymentUCDeps struct {
	Transactions repository.TransactionRepository
	Films        repository.FilmRepository
	Users        repository.UserRepository
	Grants       repository.AccessGrantRepository
	Outbox       repository.OutboxRepository
	TxManager    repository.TransactionManager
	Gateways     Orchestrator
	Locker       redis.Locker
	Limiter      RateLimiter
	Dedupe       WebhookDeduper
	Log          *zerolog.Logger

	SettledTopic   string // kafka topic settlement events are enqueued for
	InitiateLimit  int    // initiations allowed per user per window, 0 = default
	InitiateWindow time.Duration
}

type paymentUC struct {
	deps PaymentUCDeps
}

const settleLockTTL = 30 * time.Second

func NewPaymentUseCase(deps PaymentUCDeps) *paymentUC {
	if deps.InitiateLimit <= 0 {
		deps.InitiateLimit = 10
	}
	if deps.InitiateWindow <= 0 {
		deps.InitiateWindow = time.Minute
	}
	return &paymentUC{deps: deps}
}

func (u *paymentUC) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	log := logging.With(ctx, u.deps.Log)

	if in.UserID == "" || in.FilmID == "" || !in.Kind.Valid() {
		return nil, domain.ErrInvalidArgument
	}

	if u.deps.Limiter != nil {
		ok, err := u.deps.Limiter.Allow(ctx, redis.InitiateKey(in.UserID), u.deps.InitiateLimit, u.deps.InitiateWindow)
		if err != nil {
			log.Warn().Err(err).Msg("rate limiter unavailable, allowing initiation")
		} else if !ok {
			return nil, domain.ErrRateLimited
		}
	}

	user, err := u.deps.Users.FindByID(ctx, nil, in.UserID)
	if err != nil {
		return nil, err
	}
	film, err := u.deps.Films.FindPublishedByID(ctx, nil, in.FilmID)
	if err != nil {
		return nil, err
	}

	// A still-active grant makes another charge pointless.
	if g, err := u.deps.Grants.Find(ctx, nil, in.UserID, in.FilmID); err == nil && g.Active(time.Now()) {
		return nil, domain.ErrAlreadyHasAccess
	} else if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	price := film.PriceFor(in.Kind)
	if price <= 0 {
		return nil, domain.ErrInvalidPrice
	}

	email, phone := user.Email, user.Phone
	if in.Email != "" {
		email = in.Email
	}
	if in.Phone != "" {
		phone = in.Phone
	}

	// The pending row is written before any provider call so an initiation
	// that dies mid-flight still leaves a record for the reconciler.
	now := time.Now()
	t := &model.Transaction{
		ID:        ulid.Make().String(),
		UserID:    in.UserID,
		FilmID:    in.FilmID,
		Kind:      in.Kind,
		Amount:    price,
		Currency:  film.Currency,
		Status:    model.TransactionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.deps.Transactions.Save(ctx, nil, t); err != nil {
		return nil, err
	}
	metrics.IncPayment("initiated")

	primary := in.Provider
	if primary == "" {
		routeCurrency := film.Currency
		if in.Currency != "" {
			routeCurrency = in.Currency
		}
		primary = u.deps.Gateways.RecommendedProvider(routeCurrency, in.Country)
	}

	params := adapter.PaymentParams{
		Amount:   price,
		Currency: film.Currency,
		Email:    email,
		Phone:    phone,
		FilmID:   in.FilmID,
		UserID:   in.UserID,
		Kind:     in.Kind,
		Metadata: map[string]string{adapter.MetaTransactionID: t.ID},
	}

	res := u.deps.Gateways.ProcessPayment(ctx, primary, params, u.deps.Gateways.FallbacksFor(primary))
	for _, f := range res.Failures {
		metrics.IncProviderAttempt(f.Provider, "declined")
	}
	if !res.Success {
		reason := res.Error
		if _, err := u.deps.Transactions.UpdateStatusIfPending(ctx, nil, t.ID, model.TransactionStatusFailed, &repository.Settlement{FailureReason: reason}); err != nil {
			log.Error().Err(err).Str("tx_id", t.ID).Msg("failed to mark declined transaction")
		}
		metrics.IncPayment("failed")
		t.Status = model.TransactionStatusFailed
		t.FailureReason = reason
		log.Warn().Str("tx_id", t.ID).Str("reason", reason).Msg("all payment providers declined")
		return &InitiateResult{Transaction: t, Failures: res.Failures}, domain.ErrAllProvidersFailed
	}

	// The orchestrator names the provider that accepted; the requested primary
	// may have been skipped (unregistered) or declined.
	accepted := res.Provider
	if accepted != primary {
		metrics.IncFallback(accepted)
	}
	metrics.IncProviderAttempt(accepted, "accepted")

	if err := u.deps.Transactions.AttachProviderTx(ctx, nil, t.ID, accepted, res.ProviderTxID); err != nil {
		return nil, err
	}
	t.Provider = accepted
	t.ProviderTxID = &res.ProviderTxID

	log.Info().
		Str("tx_id", t.ID).
		Str("provider", accepted).
		Str("film_id", in.FilmID).
		Int64("amount", price).
		Str("currency", film.Currency).
		Msg("payment initiated")

	return &InitiateResult{
		Transaction: t,
		Provider:    accepted,
		PaymentURL:  res.PaymentURL,
		Failures:    res.Failures,
	}, nil
}

func (u *paymentUC) Verify(ctx context.Context, userID, transactionID string) (*model.Transaction, error) {
	t, err := u.deps.Transactions.FindByID(ctx, nil, transactionID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, domain.ErrNotOwner
	}
	return u.confirm(ctx, t)
}

func (u *paymentUC) Reverify(ctx context.Context, t *model.Transaction) (*model.Transaction, error) {
	return u.confirm(ctx, t)
}

// confirm asks the provider for the transaction's current status and settles
// when that status is final. A non-pending transaction is returned as-is, so
// repeated calls are cheap and idempotent.
func (u *paymentUC) confirm(ctx context.Context, t *model.Transaction) (*model.Transaction, error) {
	log := logging.With(ctx, u.deps.Log)

	if t.Status != model.TransactionStatusPending {
		return t, nil
	}
	if t.ProviderTxID == nil || t.Provider == "" {
		return t, domain.ErrInvalidArgument
	}

	v, err := u.deps.Gateways.VerifyPayment(ctx, t.Provider, *t.ProviderTxID)
	if err != nil {
		return t, err
	}
	if !v.Success {
		return t, fmt.Errorf("provider verification failed: %s", v.Error)
	}

	switch v.Status {
	case adapter.StatusCompleted:
		if err := u.checkAmount(ctx, t, v); err != nil {
			return u.settleFailed(ctx, t, err.Error(), domain.ErrAmountMismatch)
		}
		return u.settleCompleted(ctx, t, v.Ref)
	case adapter.StatusFailed:
		reason := v.Error
		if reason == "" {
			reason = "provider reported failure"
		}
		return u.settleFailed(ctx, t, reason, nil)
	default:
		log.Debug().Str("tx_id", t.ID).Str("provider", t.Provider).Msg("payment still pending at provider")
		return t, nil
	}
}

// checkAmount compares the provider-reported amount and currency against the
// stored transaction. Providers that omit the amount from their status query
// (M-Pesa while processing) report zero; that skips the check rather than
// failing a legitimate payment.
func (u *paymentUC) checkAmount(ctx context.Context, t *model.Transaction, v adapter.PaymentVerification) error {
	log := logging.With(ctx, u.deps.Log)

	if v.Amount == 0 {
		log.Warn().Str("tx_id", t.ID).Str("provider", t.Provider).Msg("verification carried no amount, skipping amount check")
		return nil
	}
	if v.Amount != t.Amount && v.Amount != roundedCharge(t) {
		return fmt.Errorf("%w: provider reported %d, expected %d", domain.ErrAmountMismatch, v.Amount, t.Amount)
	}
	if v.Currency != "" && v.Currency != t.Currency {
		return fmt.Errorf("%w: provider reported currency %s, expected %s", domain.ErrAmountMismatch, v.Currency, t.Currency)
	}
	return nil
}

// roundedCharge is the amount M-Pesa actually pushed: the STK API takes whole
// shillings, so a fractional price is charged rounded and the status query
// reports the rounded figure back. Other providers charge minor units exactly.
func roundedCharge(t *model.Transaction) int64 {
	if t.Provider != "mpesa" {
		return t.Amount
	}
	return model.WholeUnits(t.Amount) * 100
}

// settlementEvent is the outbox payload consumed by payout accounting.
type settlementEvent struct {
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	FilmID        string    `json:"film_id"`
	OwnerID       string    `json:"owner_id,omitempty"`
	Kind          string    `json:"kind"`
	Currency      string    `json:"currency"`
	Amount        int64     `json:"amount"`
	OwnerAmount   int64     `json:"owner_amount"`
	PlatformFee   int64     `json:"platform_fee"`
	Provider      string    `json:"provider"`
	ProviderRef   string    `json:"provider_ref,omitempty"`
	SettledAt     time.Time `json:"settled_at"`
}

// settleCompleted flips the transaction to completed, grants access, and
// queues the settlement event — all in one database transaction. The redis
// lock keeps a racing webhook and poll from both doing provider round-trips;
// the store-level CAS is what actually guarantees exactly-once settlement.
func (u *paymentUC) settleCompleted(ctx context.Context, t *model.Transaction, providerRef string) (*model.Transaction, error) {
	log := logging.With(ctx, u.deps.Log)

	token, err := u.deps.Locker.TryLock(ctx, redis.SettlementKey(t.ID), settleLockTTL)
	if err != nil {
		return t, err
	}
	defer func() {
		if err := u.deps.Locker.Unlock(ctx, redis.SettlementKey(t.ID), token); err != nil {
			log.Warn().Err(err).Str("tx_id", t.ID).Msg("failed to release settlement lock")
		}
	}()

	now := time.Now()
	var settled *model.Transaction
	err = u.deps.TxManager.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		fresh, err := u.deps.Transactions.FindByID(ctx, tx, t.ID)
		if err != nil {
			return err
		}
		if fresh.Status != model.TransactionStatusPending {
			settled = fresh
			return nil
		}

		owner, fee := model.SplitRevenue(fresh.Amount)
		ok, err := u.deps.Transactions.UpdateStatusIfPending(ctx, tx, fresh.ID, model.TransactionStatusCompleted, &repository.Settlement{
			ProviderRef: providerRef,
			OwnerAmount: owner,
			PlatformFee: fee,
			SettledAt:   now,
		})
		if err != nil {
			return err
		}
		if !ok {
			// Raced between the read and the CAS; reload and stand down.
			settled, err = u.deps.Transactions.FindByID(ctx, tx, t.ID)
			return err
		}

		grant := model.NewAccessGrant(fresh.UserID, fresh.FilmID, fresh.Kind, now)
		if err := u.deps.Grants.Upsert(ctx, tx, &grant); err != nil {
			return err
		}

		ev := settlementEvent{
			TransactionID: fresh.ID,
			UserID:        fresh.UserID,
			FilmID:        fresh.FilmID,
			Kind:          string(fresh.Kind),
			Currency:      fresh.Currency,
			Amount:        fresh.Amount,
			OwnerAmount:   owner,
			PlatformFee:   fee,
			Provider:      fresh.Provider,
			ProviderRef:   providerRef,
			SettledAt:     now,
		}
		if film, err := u.deps.Films.FindPublishedByID(ctx, tx, fresh.FilmID); err == nil {
			ev.OwnerID = film.OwnerID
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := u.deps.Outbox.Enqueue(ctx, tx, &repository.OutboxEvent{
			ID:            ulid.Make().String(),
			TransactionID: fresh.ID,
			Topic:         u.deps.SettledTopic,
			Payload:       payload,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		fresh.Status = model.TransactionStatusCompleted
		fresh.ProviderRef = providerRef
		fresh.OwnerAmount = owner
		fresh.PlatformFee = fee
		fresh.SettledAt = &now
		fresh.UpdatedAt = now
		settled = fresh
		return nil
	})
	if err != nil {
		return t, err
	}

	if settled.Status == model.TransactionStatusCompleted {
		metrics.IncPayment("completed")
		metrics.AddPaymentRevenue(settled.Currency, settled.Amount)
		log.Info().
			Str("tx_id", settled.ID).
			Str("provider", settled.Provider).
			Int64("owner_amount", settled.OwnerAmount).
			Int64("platform_fee", settled.PlatformFee).
			Msg("payment settled")
	}
	return settled, nil
}

// settleFailed flips the transaction to failed with a reason. terminal, when
// non-nil, is returned to the caller after the flip (amount mismatch).
func (u *paymentUC) settleFailed(ctx context.Context, t *model.Transaction, reason string, terminal error) (*model.Transaction, error) {
	log := logging.With(ctx, u.deps.Log)

	ok, err := u.deps.Transactions.UpdateStatusIfPending(ctx, nil, t.ID, model.TransactionStatusFailed, &repository.Settlement{FailureReason: reason})
	if err != nil {
		return t, err
	}
	if ok {
		metrics.IncPayment("failed")
		t.Status = model.TransactionStatusFailed
		t.FailureReason = reason
		log.Warn().Str("tx_id", t.ID).Str("reason", reason).Msg("payment marked failed")
	} else if fresh, err := u.deps.Transactions.FindByID(ctx, nil, t.ID); err == nil {
		t = fresh
	}
	return t, terminal
}

func (u *paymentUC) HandleWebhook(ctx context.Context, provider string, payload adapter.WebhookPayload) error {
	log := logging.With(ctx, u.deps.Log)

	res, err := u.deps.Gateways.HandleWebhook(ctx, provider, payload)
	if err != nil {
		return err
	}
	if !res.Success || res.ProviderTxID == "" {
		metrics.IncWebhook(provider, "invalid")
		log.Warn().Str("provider", provider).Str("error", res.Error).Msg("dropping unusable webhook payload")
		return nil
	}
	if res.Status == adapter.StatusPending {
		metrics.IncWebhook(provider, "ignored")
		return nil
	}

	if u.deps.Dedupe != nil && !u.deps.Dedupe.FirstDelivery(ctx, provider, res.ProviderTxID, string(res.Status)) {
		metrics.IncWebhookDuplicate(provider)
		return nil
	}
	// The marker is consumed before settling; a transient failure below hands
	// it back so the provider's redelivery gets another shot instead of
	// waiting for the reconciler.
	forget := func() {
		if u.deps.Dedupe != nil {
			u.deps.Dedupe.Forget(ctx, provider, res.ProviderTxID, string(res.Status))
		}
	}

	t, err := u.deps.Transactions.FindByProviderTxID(ctx, nil, res.ProviderTxID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.IncWebhook(provider, "ignored")
			log.Warn().Str("provider", provider).Str("provider_tx_id", res.ProviderTxID).Msg("webhook for unknown transaction")
			return nil
		}
		forget()
		return err
	}
	if t.Status != model.TransactionStatusPending {
		metrics.IncWebhook(provider, "ignored")
		return nil
	}

	switch res.Status {
	case adapter.StatusFailed:
		reason := res.Error
		if reason == "" {
			reason = "provider webhook reported failure"
		}
		if _, err := u.settleFailed(ctx, t, reason, nil); err != nil {
			forget()
			return err
		}
		metrics.IncWebhook(provider, "failed")
		return nil
	default:
		// A completed webhook is a hint, not an authority: re-verify with the
		// provider so the amount check always runs before access is granted.
		settled, err := u.confirm(ctx, t)
		if err != nil {
			if errors.Is(err, domain.ErrAmountMismatch) {
				metrics.IncWebhook(provider, "failed")
				return nil
			}
			forget()
			return err
		}
		if settled.Status == model.TransactionStatusCompleted {
			metrics.IncWebhook(provider, "settled")
		} else {
			metrics.IncWebhook(provider, "ignored")
		}
		return nil
	}
}
