package repository

import (
	"context"
	"time"
)

// OutboxEvent is a settlement fact queued for asynchronous publishing
// (payout accounting consumes these; dispatch itself is out of scope here).
type OutboxEvent struct {
	ID            string // ULID
	TransactionID string
	Topic         string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, tx Tx, e *OutboxEvent) error
	ListUnpublished(ctx context.Context, tx Tx, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, tx Tx, id string, at time.Time) error
}
