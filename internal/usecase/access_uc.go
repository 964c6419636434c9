// File: internal/usecase/access_uc.go
package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/repository"
)

// Compile-time check
var _ AccessUseCase = (*accessUC)(nil)

type AccessUseCase interface {
	// HasAccess reports whether the user holds a currently-active grant.
	HasAccess(ctx context.Context, userID, filmID string) (bool, error)
	// Get returns the grant itself, domain.ErrNotFound when none exists.
	Get(ctx context.Context, userID, filmID string) (*model.AccessGrant, error)
	// Grant upserts an entitlement outside the payment flow (promos, support
	// overrides). The payment path writes grants itself, inside settlement.
	Grant(ctx context.Context, userID, filmID string, kind model.TransactionKind) (*model.AccessGrant, error)
}

type accessUC struct {
	grants repository.AccessGrantRepository
	films  repository.FilmRepository
}

func NewAccessUseCase(grants repository.AccessGrantRepository, films repository.FilmRepository) *accessUC {
	return &accessUC{grants: grants, films: films}
}

func (u *accessUC) HasAccess(ctx context.Context, userID, filmID string) (bool, error) {
	g, err := u.grants.Find(ctx, nil, userID, filmID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return g.Active(time.Now()), nil
}

func (u *accessUC) Get(ctx context.Context, userID, filmID string) (*model.AccessGrant, error) {
	return u.grants.Find(ctx, nil, userID, filmID)
}

func (u *accessUC) Grant(ctx context.Context, userID, filmID string, kind model.TransactionKind) (*model.AccessGrant, error) {
	if userID == "" || filmID == "" || !kind.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := u.films.FindPublishedByID(ctx, nil, filmID); err != nil {
		return nil, err
	}
	g := model.NewAccessGrant(userID, filmID, kind, time.Now())
	if err := u.grants.Upsert(ctx, nil, &g); err != nil {
		return nil, err
	}
	return &g, nil
}
