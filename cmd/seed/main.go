package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ashiruma/Mbogiwood-Productions/internal/config"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
	pg "github.com/ashiruma/Mbogiwood-Productions/internal/infra/db/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pg.Migrate(cfg.Database.URL); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	films := pg.NewFilmRepo(pool)
	users := pg.NewUserRepo(pool)

	// If the demo film already exists, do nothing.
	const demoFilmID = "film-demo-nairobi"
	if _, err := films.FindPublishedByID(ctx, nil, demoFilmID); err == nil {
		fmt.Println("seed data already present. No changes.")
		return
	} else if err != domain.ErrFilmNotFound {
		log.Fatalf("check film: %v", err)
	}

	now := time.Now()
	ownerID := uuid.NewString()

	seedUsers := []*model.User{
		{ID: ownerID, Email: "filmmaker@example.com", Phone: "254700000001", RegisteredAt: now},
		{ID: uuid.NewString(), Email: "viewer@example.com", Phone: "254700000002", RegisteredAt: now},
	}
	for _, u := range seedUsers {
		if err := users.Save(ctx, nil, u); err != nil {
			log.Fatalf("save user %s: %v", u.Email, err)
		}
		fmt.Printf("seeded user: %s (id=%s)\n", u.Email, u.ID)
	}

	seedFilms := []*model.Film{
		{
			ID:            demoFilmID,
			Title:         "Nairobi After Dark",
			RentalPrice:   25_000, // KES 250.00
			PurchasePrice: 80_000, // KES 800.00
			Currency:      "KES",
			Status:        model.FilmStatusPublished,
			OwnerID:       ownerID,
			CreatedAt:     now,
		},
		{
			ID:            "film-demo-lagos",
			Title:         "Lagos Crossing",
			RentalPrice:   150_000, // NGN 1500.00
			PurchasePrice: 500_000, // NGN 5000.00
			Currency:      "NGN",
			Status:        model.FilmStatusPublished,
			OwnerID:       ownerID,
			CreatedAt:     now,
		},
		{
			ID:          "film-demo-diaspora",
			Title:       "Letters Home",
			RentalPrice: 500, // USD 5.00
			Currency:    "USD",
			Status:      model.FilmStatusPublished,
			OwnerID:     ownerID,
			CreatedAt:   now,
		},
	}
	for _, f := range seedFilms {
		if err := films.Save(ctx, nil, f); err != nil {
			log.Fatalf("save film %q: %v", f.Title, err)
		}
		fmt.Printf("seeded film: %s (id=%s, %s)\n", f.Title, f.ID, f.Currency)
	}

	fmt.Println("Seeding complete.")
}
