package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/ashiruma/Mbogiwood-Productions/internal/config"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/model"
	pg "github.com/ashiruma/Mbogiwood-Productions/internal/infra/db/postgres"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/redis"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/web"
)

// Resets the local environment to a clean, predictable state for manual
// end-to-end testing: wipes Redis, truncates the database, re-runs the seed
// data and prints a ready-to-use session token for the demo viewer.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	redisClient, err := redis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisClient.Close()

	log.Println("--- Starting E2E Environment Setup ---")

	// 1. Stale locks, dedupe keys and rate-limit counters all go.
	log.Println("[1/4] Wiping Redis...")
	if err := redisClient.FlushDB(ctx); err != nil {
		log.Fatalf("failed to flush redis: %v", err)
	}

	// 2. Clean the database completely.
	log.Println("[2/4] Wiping all existing database data...")
	_, err = pool.Exec(ctx, `
		TRUNCATE
			users, films, transactions, access_grants, settlement_outbox
		RESTART IDENTITY CASCADE;
	`)
	if err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	// 3. Re-seed demo users and the film catalogue.
	log.Println("[3/4] Seeding demo catalogue...")
	viewerID, err := seed(ctx, pool)
	if err != nil {
		log.Fatalf("seed failed: %v", err)
	}

	// 4. Mint a session token so the API can be exercised with curl.
	log.Println("[4/4] Minting viewer session token...")
	auth := web.NewAuthManager(cfg.Web.JWTSecret, cfg.Web.SecureCookie, cfg.Web.CookieDomain, cfg.Web.SessionTTL)
	token, err := auth.Mint(discardWriter{}, viewerID)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}

	log.Println("--- E2E Environment Setup Complete ---")
	fmt.Printf("\nviewer user id: %s\n", viewerID)
	fmt.Printf("Authorization: Bearer %s\n\n", token)
	fmt.Println(`Try: curl -X POST localhost:8080/api/v1/payments/initiate \
  -H "Authorization: Bearer $TOKEN" \
  -d '{"filmId":"film-demo-nairobi","transactionType":"rental","phone":"254712345678","country":"KE"}'`)
}

// seed writes the demo users and films and returns the viewer's id.
func seed(ctx context.Context, pool *pgxpool.Pool) (string, error) {
	users := pg.NewUserRepo(pool)
	films := pg.NewFilmRepo(pool)
	now := time.Now()

	ownerID := uuid.NewString()
	viewerID := uuid.NewString()
	seedUsers := []*model.User{
		{ID: ownerID, Email: "filmmaker@example.com", Phone: "254700000001", RegisteredAt: now},
		{ID: viewerID, Email: "viewer@example.com", Phone: "254700000002", RegisteredAt: now},
	}
	for _, u := range seedUsers {
		if err := users.Save(ctx, nil, u); err != nil {
			return "", fmt.Errorf("save user %s: %w", u.Email, err)
		}
	}

	seedFilms := []*model.Film{
		{
			ID:            "film-demo-nairobi",
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
			return "", fmt.Errorf("save film %q: %w", f.Title, err)
		}
	}
	return viewerID, nil
}

// discardWriter satisfies http.ResponseWriter for Mint, which also wants to
// set a cookie we do not need here.
type discardWriter struct{}

func (discardWriter) Header() http.Header         { return http.Header{} }
func (discardWriter) Write(b []byte) (int, error) { return len(b), nil }
func (discardWriter) WriteHeader(int)             {}
