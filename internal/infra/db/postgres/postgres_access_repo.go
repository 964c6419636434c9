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

var _ repository.AccessGrantRepository = (*accessGrantRepo)(nil)

type accessGrantRepo struct{ pool *pgxpool.Pool }

func NewAccessGrantRepo(pool *pgxpool.Pool) *accessGrantRepo {
	return &accessGrantRepo{pool: pool}
}

// Upsert writes the grant keyed by (user_id, film_id); a later grant
// overwrites the earlier one's kind and expiry, so a purchase after a rental
// extends access to permanent.
func (r *accessGrantRepo) Upsert(ctx context.Context, tx repository.Tx, g *model.AccessGrant) error {
	const q = `
INSERT INTO access_grants (user_id, film_id, kind, expires_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (user_id, film_id) DO UPDATE SET
  kind=$3, expires_at=$4, updated_at=$6;`

	_, err := execSQL(ctx, r.pool, tx, q, g.UserID, g.FilmID, g.Kind, g.ExpiresAt, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *accessGrantRepo) Find(ctx context.Context, tx repository.Tx, userID, filmID string) (*model.AccessGrant, error) {
	const q = `SELECT user_id, film_id, kind, expires_at, created_at, updated_at FROM access_grants WHERE user_id=$1 AND film_id=$2;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, filmID)
	if err != nil {
		return nil, err
	}
	g := &model.AccessGrant{}
	if err := row.Scan(&g.UserID, &g.FilmID, &g.Kind, &g.ExpiresAt, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return g, nil
}

func (r *accessGrantRepo) DeleteExpiredRentals(ctx context.Context, tx repository.Tx, before time.Time) (int64, error) {
	const q = `DELETE FROM access_grants WHERE kind='rental' AND expires_at IS NOT NULL AND expires_at < $1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, before)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return 0, err
		}
		return 0, domain.ErrOperationFailed
	}
	return cmd.RowsAffected(), nil
}
