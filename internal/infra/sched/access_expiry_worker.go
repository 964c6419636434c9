package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/repository"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/metrics"
)

// AccessExpiryWorker removes rental grants whose window has elapsed. Reads
// already treat an expired grant as inactive; this keeps the table from
// accumulating dead rows.
type AccessExpiryWorker struct {
	grants   repository.AccessGrantRepository
	interval time.Duration
	log      *zerolog.Logger
}

func NewAccessExpiryWorker(grants repository.AccessGrantRepository, interval time.Duration, logger *zerolog.Logger) *AccessExpiryWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &AccessExpiryWorker{grants: grants, interval: interval, log: logger}
}

func (w *AccessExpiryWorker) Start(ctx context.Context) {
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

func (w *AccessExpiryWorker) tick(ctx context.Context) {
	n, err := w.grants.DeleteExpiredRentals(ctx, nil, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("access-expiry: delete expired rentals failed")
		return
	}
	if n > 0 {
		metrics.AddExpiredRentals(n)
		w.log.Info().Int64("removed", n).Msg("access-expiry: removed expired rental grants")
	}
}
