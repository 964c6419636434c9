package repository

import (
	"context"
	"time"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
)

// Settlement carries the fields UpdateStatusIfPending records alongside the
// status flip when a transaction completes.
type Settlement struct {
	ProviderRef   string
	OwnerAmount   int64
	PlatformFee   int64
	FailureReason string
	SettledAt     time.Time
}

type TransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.Transaction) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Transaction, error)
	FindByProviderTxID(ctx context.Context, tx Tx, providerTxID string) (*model.Transaction, error)
	// AttachProviderTx records which adapter accepted the payment and the id
	// it assigned, once initiation succeeds.
	AttachProviderTx(ctx context.Context, tx Tx, id, provider, providerTxID string) error
	// UpdateStatusIfPending atomically flips status only when the current
	// status is pending. Returns false when another path settled first.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.TransactionStatus, s *Settlement) (bool, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Transaction, error)
	// ListPendingWithoutProviderTx finds rows whose provider call never
	// completed; the reconciler fails them after a grace period.
	ListPendingWithoutProviderTx(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Transaction, error)
	CountPending(ctx context.Context, tx Tx) (int, error)
}

type AccessGrantRepository interface {
	// Upsert keyed by (UserID, FilmID); a later grant overwrites kind/expiry.
	Upsert(ctx context.Context, tx Tx, g *model.AccessGrant) error
	Find(ctx context.Context, tx Tx, userID, filmID string) (*model.AccessGrant, error)
	DeleteExpiredRentals(ctx context.Context, tx Tx, before time.Time) (int64, error)
}

type FilmRepository interface {
	// FindPublishedByID returns only films visible to buyers.
	FindPublishedByID(ctx context.Context, tx Tx, id string) (*model.Film, error)
	Save(ctx context.Context, tx Tx, f *model.Film) error
}

type UserRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	Save(ctx context.Context, tx Tx, u *model.User) error
}
