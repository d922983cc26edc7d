package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Andrejs1979/tap2-wallet/config"
	httpHandler "github.com/Andrejs1979/tap2-wallet/internal/adapter/http/handler"
	"github.com/Andrejs1979/tap2-wallet/internal/adapter/processor"
	pgStorage "github.com/Andrejs1979/tap2-wallet/internal/adapter/storage/postgres"
	redisStorage "github.com/Andrejs1979/tap2-wallet/internal/adapter/storage/redis"
	"github.com/Andrejs1979/tap2-wallet/internal/core/ports"
	"github.com/Andrejs1979/tap2-wallet/internal/service"
	"github.com/Andrejs1979/tap2-wallet/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Tap2 Wallet")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	merchantRepo := pgStorage.NewMerchantRepo(pool)
	paymentRepo := pgStorage.NewMerchantPaymentRepo(pool)
	transferRepo := pgStorage.NewTransferRepo(pool)
	requestRepo := pgStorage.NewRequestRepo(pool)
	splitRepo := pgStorage.NewBillSplitRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)

	// Select the payment authorizer
	var authorizer ports.PaymentAuthorizer
	switch cfg.Authorizer.Provider {
	case "stripe":
		if cfg.Authorizer.StripeKey == "" {
			log.Fatal().Msg("authorizer.stripe_key is required for the stripe provider")
		}
		authorizer = processor.NewStripeAuthorizer(cfg.Authorizer.StripeKey, "usd")
	case "static":
		authorizer = processor.NewStaticAuthorizer()
	default:
		log.Fatal().Str("provider", cfg.Authorizer.Provider).Msg("unknown authorizer provider")
	}
	log.Info().Str("provider", cfg.Authorizer.Provider).Msg("Payment authorizer ready")

	// Initialize core services
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Initialize business services
	walletSvc := service.NewWalletService(
		walletRepo, txRepo, paymentRepo, transferRepo,
		idempotencyRepo, idempotencyCache, transactor, log,
	)
	ledgerSvc := service.NewLedgerService(
		walletRepo, txRepo, merchantRepo, paymentRepo,
		idempotencyRepo, idempotencyCache, nonceStore, authorizer, transactor,
		cfg.Authorizer.MaxAttempts, cfg.Authorizer.RetryBackoff, log,
	)
	transferSvc := service.NewTransferService(
		walletRepo, txRepo, transferRepo,
		idempotencyRepo, idempotencyCache, transactor,
		cfg.P2P.DefaultExpiry, log,
	)
	requestSvc := service.NewRequestService(
		walletRepo, txRepo, transferRepo, requestRepo,
		idempotencyRepo, idempotencyCache, transactor,
		cfg.P2P.DefaultExpiry, log,
	)
	splitSvc := service.NewBillSplitService(
		walletRepo, txRepo, transferRepo, splitRepo,
		idempotencyRepo, idempotencyCache, transactor,
		cfg.P2P.DefaultExpiry, log,
	)

	// Background sweeper for expired transfers and requests
	sweeper := service.NewSweeper(
		transferRepo, requestRepo, txRepo, transactor,
		cfg.Sweeper.Interval, cfg.Sweeper.BatchSize, log,
	)
	go sweeper.Run(ctx)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:      walletSvc,
		LedgerSvc:      ledgerSvc,
		TransferSvc:    transferSvc,
		RequestSvc:     requestSvc,
		BillSplitSvc:   splitSvc,
		TokenSvc:       tokenSvc,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM; the same context stops the sweeper.
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
