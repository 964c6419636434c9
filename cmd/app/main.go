// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashiruma/Mbogiwood-Productions/internal/config"
	"github.com/ashiruma/Mbogiwood-Productions/internal/domain/ports/adapter"
	payAdapters "github.com/ashiruma/Mbogiwood-Productions/internal/infra/adapters/payment"
	pg "github.com/ashiruma/Mbogiwood-Productions/internal/infra/db/postgres"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/logging"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/metrics"
	red "github.com/ashiruma/Mbogiwood-Productions/internal/infra/redis"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/sched"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/web"
	"github.com/ashiruma/Mbogiwood-Productions/internal/infra/worker"
	"github.com/ashiruma/Mbogiwood-Productions/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop payment provider, relaxed auth)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	if err := pg.Migrate(cfg.Database.URL); err != nil {
		logger.Fatal().Err(err).Msg("migrations")
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)
	dedupe := red.NewWebhookDedupe(redisClient, cfg.Redis.TTL)

	// ---- Repositories ----
	txRepo := pg.NewTransactionRepo(pool)
	filmRepo := pg.NewFilmRepo(pool)
	userRepo := pg.NewUserRepo(pool)
	grantRepo := pg.NewAccessGrantRepo(pool)
	outboxRepo := pg.NewOutboxRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Payment providers ----
	var providers []adapter.PaymentProvider
	if cfg.Runtime.Dev {
		providers = append(providers, payAdapters.NewNoopProvider())
	}
	if cfg.Payment.Mpesa.ConsumerKey != "" {
		mpesa, err := payAdapters.NewMpesaGateway(cfg.Payment.Mpesa, cfg.Web.BaseURL+"/api/v1/webhooks/mpesa")
		if err != nil {
			logger.Fatal().Err(err).Msg("mpesa gateway")
		}
		providers = append(providers, mpesa)
	}
	if cfg.Payment.Flutterwave.SecretKey != "" {
		flw, err := payAdapters.NewFlutterwaveGateway(cfg.Payment.Flutterwave, cfg.Web.BaseURL+"/payments/return")
		if err != nil {
			logger.Fatal().Err(err).Msg("flutterwave gateway")
		}
		providers = append(providers, flw)
	}
	if cfg.Payment.Paypal.ClientID != "" {
		pp, err := payAdapters.NewPaypalGateway(cfg.Payment.Paypal, cfg.Web.BaseURL+"/payments/return", cfg.Web.BaseURL+"/payments/cancel")
		if err != nil {
			logger.Fatal().Err(err).Msg("paypal gateway")
		}
		providers = append(providers, pp)
	}
	if len(providers) == 0 {
		logger.Fatal().Msgf("no payment provider configured: set payment.mpesa, payment.flutterwave or payment.paypal in %s", *cfgPath)
	}
	if cfg.Payment.BreakerEnabled {
		for i, p := range providers {
			providers[i] = payAdapters.WithBreaker(p)
		}
	}
	orchestrator := payAdapters.NewOrchestrator(logger, providers...)
	logger.Info().Strs("providers", orchestrator.Providers()).Msg("payment providers registered")

	// ---- Use cases ----
	paymentUC := usecase.NewPaymentUseCase(usecase.PaymentUCDeps{
		Transactions: txRepo,
		Films:        filmRepo,
		Users:        userRepo,
		Grants:       grantRepo,
		Outbox:       outboxRepo,
		TxManager:    txManager,
		Gateways:     orchestrator,
		Locker:       locker,
		Limiter:      rateLimiter,
		Dedupe:       dedupe,
		Log:          logger,
		SettledTopic: cfg.Kafka.Topic,
	})
	accessUC := usecase.NewAccessUseCase(grantRepo, filmRepo)

	// ---- Background jobs ----
	pool2 := worker.NewPool(cfg.Scheduler.Workers, logger)
	pool2.Start(ctx)
	defer pool2.Stop()

	reconciler := sched.NewPaymentReconciler(paymentUC, txRepo, pool2, cfg.Scheduler.ReconcileInterval, cfg.Scheduler.StaleAfter, logger)
	go reconciler.Start(ctx)

	expiry := sched.NewAccessExpiryWorker(grantRepo, cfg.Scheduler.ExpiryInterval, logger)
	go expiry.Start(ctx)

	if len(cfg.Kafka.Brokers) > 0 {
		publisher := sched.NewOutboxPublisher(outboxRepo, txManager, cfg.Kafka.Brokers, cfg.Scheduler.OutboxInterval, logger)
		go publisher.Start(ctx)
		defer publisher.Close()
	} else {
		logger.Warn().Msg("kafka.brokers not set; settlement events stay queued in the outbox")
	}

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Web.JWTSecret, cfg.Web.SecureCookie, cfg.Web.CookieDomain, cfg.Web.SessionTTL)
	server := web.NewServer(paymentUC, accessUC, auth, cfg.Payment.Flutterwave.WebhookSecret, logger)
	go func() {
		if err := server.Run(ctx, cfg.Web.Port); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			cancel()
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()
}
