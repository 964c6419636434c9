package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/repository"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/metrics"
)

// OutboxPublisher drains the settlement outbox to Kafka. Each sweep locks a
// batch inside one database transaction (SKIP LOCKED, so replicas can run
// concurrently), publishes, and marks rows published in the same transaction;
// a broker failure rolls the batch back and the next sweep retries it.
// Delivery is therefore at-least-once and consumers must dedupe on event id.
type OutboxPublisher struct {
	outbox   repository.OutboxRepository
	txm      repository.TransactionManager
	writer   *kafka.Writer
	interval time.Duration
	log      *zerolog.Logger
}

func NewOutboxPublisher(outbox repository.OutboxRepository, txm repository.TransactionManager, brokers []string, interval time.Duration, logger *zerolog.Logger) *OutboxPublisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &OutboxPublisher{outbox: outbox, txm: txm, writer: w, interval: interval, log: logger}
}

func (p *OutboxPublisher) Start(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := p.tick(ctx); err != nil {
				p.log.Error().Err(err).Msg("outbox: sweep failed")
			}
		}
	}
}

func (p *OutboxPublisher) Close() error {
	return p.writer.Close()
}

func (p *OutboxPublisher) tick(ctx context.Context) error {
	return p.txm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		events, err := p.outbox.ListUnpublished(ctx, tx, 100)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		now := time.Now()
		for _, e := range events {
			msg := kafka.Message{
				Topic: e.Topic,
				Key:   []byte(e.TransactionID),
				Value: e.Payload,
			}
			if err := p.writer.WriteMessages(ctx, msg); err != nil {
				metrics.IncOutboxPublished("error")
				return err // roll back; the batch is retried next sweep
			}
			if err := p.outbox.MarkPublished(ctx, tx, e.ID, now); err != nil {
				return err
			}
			metrics.IncOutboxPublished("ok")
		}
		p.log.Info().Int("published", len(events)).Msg("outbox: published settlement events")
		return nil
	})
}
