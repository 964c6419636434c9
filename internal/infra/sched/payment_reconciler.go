package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/repository"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/metrics"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/worker"
	"github.com/ashiruma/Mbogiwood-Productions/internal/usecase"
)

// PaymentReconciler periodically scans for stale pending transactions and
// tries to finalize them by re-verifying with the provider. This covers the
// cases where the webhook never arrived, the client stopped polling, or the
// process crashed mid-settle. Rows whose provider call never completed (no
// provider transaction id) are failed outright after the grace period: there
// is nothing to ask the provider about.
type PaymentReconciler struct {
	uc           usecase.PaymentUseCase
	transactions repository.TransactionRepository
	pool         *worker.Pool
	interval     time.Duration // how often to scan
	staleAfter   time.Duration // how old a pending transaction must be to retry
	log          *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.PaymentUseCase, transactions repository.TransactionRepository, pool *worker.Pool, interval, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &PaymentReconciler{
		uc:           uc,
		transactions: transactions,
		pool:         pool,
		interval:     interval,
		staleAfter:   staleAfter,
		log:          logger,
	}
}

func (w *PaymentReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)

	if n, err := w.transactions.CountPending(ctx, nil); err == nil {
		metrics.SetPendingTransactions(n)
	}

	stale, err := w.transactions.ListPendingOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("reconciler: list stale pending failed")
		return
	}
	for _, t := range stale {
		t := t
		err := w.pool.Submit(func(ctx context.Context) error {
			settled, err := w.uc.Reverify(ctx, t)
			if err != nil {
				metrics.IncReconcileOutcome("error")
				w.log.Warn().Err(err).Str("tx_id", t.ID).Msg("reconciler: reverify failed")
				return nil // logged, not a pool error
			}
			switch settled.Status {
			case model.TransactionStatusCompleted:
				metrics.IncReconcileOutcome("settled")
				w.log.Info().Str("tx_id", t.ID).Msg("reconciler: settled stale transaction")
			case model.TransactionStatusFailed:
				metrics.IncReconcileOutcome("failed")
			default:
				metrics.IncReconcileOutcome("still_pending")
			}
			return nil
		})
		if err != nil {
			w.log.Warn().Err(err).Msg("reconciler: pool saturated, deferring to next sweep")
			break
		}
	}

	// Initiations that died before the provider assigned an id.
	orphans, err := w.transactions.ListPendingWithoutProviderTx(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("reconciler: list orphaned pending failed")
		return
	}
	for _, t := range orphans {
		ok, err := w.transactions.UpdateStatusIfPending(ctx, nil, t.ID, model.TransactionStatusFailed, &repository.Settlement{
			FailureReason: "initiation never completed",
		})
		if err != nil {
			w.log.Warn().Err(err).Str("tx_id", t.ID).Msg("reconciler: failed to close orphaned transaction")
			continue
		}
		if ok {
			metrics.IncReconcileOutcome("failed")
			w.log.Info().Str("tx_id", t.ID).Msg("reconciler: closed orphaned transaction")
		}
	}

	metrics.IncReconcileRun()
}
