package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const txColumns = `id, user_id, film_id, kind, amount, currency, provider, provider_tx_id, status, owner_amount, platform_fee, provider_ref, failure_reason, created_at, updated_at, settled_at`

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	t := &model.Transaction{}
	if err := row.Scan(&t.ID, &t.UserID, &t.FilmID, &t.Kind, &t.Amount, &t.Currency, &t.Provider, &t.ProviderTxID, &t.Status, &t.OwnerAmount, &t.PlatformFee, &t.ProviderRef, &t.FailureReason, &t.CreatedAt, &t.UpdatedAt, &t.SettledAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}

func (r *transactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	const q = `
INSERT INTO transactions (
  id, user_id, film_id, kind, amount, currency, provider, provider_tx_id, status, owner_amount, platform_fee, provider_ref, failure_reason, created_at, updated_at, settled_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
) ON CONFLICT (id) DO UPDATE SET
  provider=$7, provider_tx_id=$8, status=$9, owner_amount=$10, platform_fee=$11, provider_ref=$12, failure_reason=$13, updated_at=$15, settled_at=$16;`

	_, err := execSQL(ctx, r.pool, tx, q, t.ID, t.UserID, t.FilmID, t.Kind, t.Amount, t.Currency, t.Provider, t.ProviderTxID, t.Status, t.OwnerAmount, t.PlatformFee, t.ProviderRef, t.FailureReason, t.CreatedAt, t.UpdatedAt, t.SettledAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *transactionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Transaction, error) {
	q := `SELECT ` + txColumns + ` FROM transactions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanTransaction(row)
}

func (r *transactionRepo) FindByProviderTxID(ctx context.Context, tx repository.Tx, providerTxID string) (*model.Transaction, error) {
	q := `SELECT ` + txColumns + ` FROM transactions WHERE provider_tx_id=$1 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, providerTxID)
	if err != nil {
		return nil, err
	}
	return scanTransaction(row)
}

func (r *transactionRepo) AttachProviderTx(ctx context.Context, tx repository.Tx, id, provider, providerTxID string) error {
	const q = `UPDATE transactions SET provider=$2, provider_tx_id=$3, updated_at=NOW() WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, id, provider, providerTxID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

// UpdateStatusIfPending atomically flips status only when the current status
// is 'pending'. Returns false when a racing path settled the row first; the
// caller must then skip its side effects (grant, split, outbox).
func (r *transactionRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, s *repository.Settlement) (bool, error) {
	const q = `
    UPDATE transactions
       SET status = $2,
           provider_ref = COALESCE(NULLIF($3, ''), provider_ref),
           owner_amount = $4,
           platform_fee = $5,
           failure_reason = $6,
           settled_at = $7,
           updated_at = NOW()
     WHERE id = $1
       AND status = 'pending';`

	var (
		ref, reason string
		owner, fee  int64
		settledAt   *time.Time
	)
	if s != nil {
		ref, reason = s.ProviderRef, s.FailureReason
		owner, fee = s.OwnerAmount, s.PlatformFee
		if !s.SettledAt.IsZero() {
			at := s.SettledAt
			settledAt = &at
		}
	}
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), ref, owner, fee, reason, settledAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *transactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + txColumns + ` FROM transactions WHERE status='pending' AND provider_tx_id IS NOT NULL AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, olderThan, limit)
}

func (r *transactionRepo) ListPendingWithoutProviderTx(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + txColumns + ` FROM transactions WHERE status='pending' AND provider_tx_id IS NULL AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, olderThan, limit)
}

func (r *transactionRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Transaction, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *transactionRepo) CountPending(ctx context.Context, tx repository.Tx) (int, error) {
	const q = `SELECT COUNT(*) FROM transactions WHERE status='pending';`
	row, err := pickRow(ctx, r.pool, tx, q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return n, nil
}
