//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashiruma/Mbogiwood-Productions/internal/domain"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
	"github.com/ashiruma/Mbogiwood-Productions/internal/usecase"
)

func TestAccessUseCase_HasAccess(t *testing.T) {
	ctx := context.Background()
	grants := NewMockGrantRepo()
	films := NewMockFilmRepo()
	uc := usecase.NewAccessUseCase(grants, films)

	if ok, err := uc.HasAccess(ctx, "user-1", "film-1"); err != nil || ok {
		t.Fatalf("expected no access, got ok=%v err=%v", ok, err)
	}

	g := model.NewAccessGrant("user-1", "film-1", model.TransactionKindPurchase, time.Now())
	grants.Upsert(ctx, nil, &g)
	if ok, _ := uc.HasAccess(ctx, "user-1", "film-1"); !ok {
		t.Error("expected access after purchase grant")
	}

	exp := time.Now().Add(-time.Minute)
	grants.Upsert(ctx, nil, &model.AccessGrant{UserID: "user-2", FilmID: "film-1", Kind: model.AccessKindRental, ExpiresAt: &exp})
	if ok, _ := uc.HasAccess(ctx, "user-2", "film-1"); ok {
		t.Error("expected expired rental to deny access")
	}
}

func TestAccessUseCase_Grant(t *testing.T) {
	ctx := context.Background()
	grants := NewMockGrantRepo()
	films := NewMockFilmRepo()
	films.Save(ctx, nil, &model.Film{ID: "film-1", Currency: "KES", RentalPrice: 100, Status: model.FilmStatusPublished})
	uc := usecase.NewAccessUseCase(grants, films)

	g, err := uc.Grant(ctx, "user-1", "film-1", model.TransactionKindRental)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if g.ExpiresAt == nil {
		t.Error("expected a rental grant to expire")
	}

	if _, err := uc.Grant(ctx, "user-1", "missing", model.TransactionKindRental); !errors.Is(err, domain.ErrFilmNotFound) {
		t.Errorf("expected ErrFilmNotFound for unknown film, got %v", err)
	}
	if _, err := uc.Grant(ctx, "", "film-1", model.TransactionKindRental); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for empty user, got %v", err)
	}
}
