package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/repository"
)

var _ repository.OutboxRepository = (*outboxRepo)(nil)

type outboxRepo struct{ pool *pgxpool.Pool }

func NewOutboxRepo(pool *pgxpool.Pool) *outboxRepo {
	return &outboxRepo{pool: pool}
}

func (r *outboxRepo) Enqueue(ctx context.Context, tx repository.Tx, e *repository.OutboxEvent) error {
	const q = `INSERT INTO settlement_outbox (id, transaction_id, topic, payload, created_at) VALUES ($1,$2,$3,$4,$5);`
	_, err := execSQL(ctx, r.pool, tx, q, e.ID, e.TransactionID, e.Topic, e.Payload, e.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *outboxRepo) ListUnpublished(ctx context.Context, tx repository.Tx, limit int) ([]*repository.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, transaction_id, topic, payload, created_at, published_at FROM settlement_outbox WHERE published_at IS NULL ORDER BY created_at ASC LIMIT $1`
	if _, isTx := tx.(interface{ Commit(context.Context) error }); isTx {
		q += " FOR UPDATE SKIP LOCKED"
	}
	q += ";"
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*repository.OutboxEvent
	for rows.Next() {
		e := &repository.OutboxEvent{}
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.Topic, &e.Payload, &e.CreatedAt, &e.PublishedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *outboxRepo) MarkPublished(ctx context.Context, tx repository.Tx, id string, at time.Time) error {
	const q = `UPDATE settlement_outbox SET published_at=$2 WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, at)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
