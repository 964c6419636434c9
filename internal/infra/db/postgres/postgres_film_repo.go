package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/repository"
)

var _ repository.FilmRepository = (*filmRepo)(nil)

type filmRepo struct{ pool *pgxpool.Pool }

func NewFilmRepo(pool *pgxpool.Pool) *filmRepo {
	return &filmRepo{pool: pool}
}

func (r *filmRepo) FindPublishedByID(ctx context.Context, tx repository.Tx, id string) (*model.Film, error) {
	const q = `SELECT id, title, rental_price, purchase_price, currency, status, owner_id, created_at FROM films WHERE id=$1 AND status='published';`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	f := &model.Film{}
	if err := row.Scan(&f.ID, &f.Title, &f.RentalPrice, &f.PurchasePrice, &f.Currency, &f.Status, &f.OwnerID, &f.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrFilmNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return f, nil
}

func (r *filmRepo) Save(ctx context.Context, tx repository.Tx, f *model.Film) error {
	const q = `
INSERT INTO films (id, title, rental_price, purchase_price, currency, status, owner_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET
  title=$2, rental_price=$3, purchase_price=$4, currency=$5, status=$6, owner_id=$7;`

	_, err := execSQL(ctx, r.pool, tx, q, f.ID, f.Title, f.RentalPrice, f.PurchasePrice, f.Currency, f.Status, f.OwnerID, f.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
