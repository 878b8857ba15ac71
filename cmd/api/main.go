package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-ledger/config"
	httpHandler "wallet-ledger/internal/adapter/http/handler"
	"wallet-ledger/internal/adapter/gateway/paystack"
	"wallet-ledger/internal/adapter/metrics"
	"wallet-ledger/internal/adapter/storage"
	redisStorage "wallet-ledger/internal/adapter/storage/redis"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/service"
	"wallet-ledger/internal/worker/reconciler"
	"wallet-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load(os.Getenv("WLT_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server exited")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Msg("Starting wallet ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, closeStores, err := storage.Open(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("opening ledger store: %w", err)
	}
	defer closeStores()

	healthCheckers := []ports.HealthChecker{stores.Health}

	var settlementCache ports.SettlementCache
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		settlementCache = redisStorage.NewSettlementCache(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	}

	m := metrics.New()
	gateway := paystack.New(cfg.Gateway, log)

	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	hasher := service.NewBlake2bKeyHasher(cfg.APIKey.Pepper)

	ledgerSvc := service.NewLedgerService(
		stores.Users,
		stores.Wallets,
		stores.Transactions,
		gateway,
		stores.Transactor,
		m,
		service.LedgerConfig{
			GatewayTimeout:       cfg.Gateway.Timeout,
			ReconcileConcurrency: cfg.Reconciler.Concurrency,
		},
		logger.Component(log, "ledger"),
	)
	keySvc := service.NewAPIKeyService(stores.Users, stores.APIKeys, hasher, stores.Transactor, m, logger.Component(log, "apikeys"))
	webhookSvc := service.NewWebhookService(
		sigSvc,
		ledgerSvc,
		stores.WebhookEvents,
		settlementCache,
		m,
		service.WebhookConfig{Secret: cfg.Gateway.SecretKey, SettledTTL: cfg.Cache.SettledTTL},
		logger.Component(log, "webhook"),
	)
	auditSvc := service.NewAuditService(stores.Audit, log)

	if stores.Driver == config.DriverMemory {
		userSvc := service.NewUserService(stores.Users, stores.Wallets, stores.Transactor, log)
		if err := seedDevUser(ctx, userSvc, tokenSvc, log); err != nil {
			return err
		}
	}

	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	gin.SetMode(cfg.Server.Mode)
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		APIKeySvc:      keySvc,
		WebhookSvc:     webhookSvc,
		TokenSvc:       tokenSvc,
		AuditSvc:       auditSvc,
		Metrics:        m,
		HealthCheckers: healthCheckers,
		Logger:         log,
	})

	var rec *reconciler.Reconciler
	if cfg.Reconciler.Enabled {
		rec = reconciler.New(ledgerSvc, m, cfg.Reconciler, log)
		if err := rec.Start(ctx); err != nil {
			return fmt.Errorf("starting reconciler: %w", err)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if rec != nil {
		if err := rec.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Reconciler did not stop in time")
		}
	}
	return nil
}

// seedDevUser gives an in-memory server one account to call the API with.
func seedDevUser(ctx context.Context, users ports.UserService, tokens ports.TokenService, log zerolog.Logger) error {
	res, err := users.Provision(ctx, ports.ProvisionRequest{Email: "dev@localhost", Name: "Developer"})
	if err != nil {
		return fmt.Errorf("provisioning dev user: %w", err)
	}
	token, expiresAt, err := tokens.Generate(res.User.ID, res.User.Email)
	if err != nil {
		return fmt.Errorf("issuing dev token: %w", err)
	}
	log.Warn().
		Str("email", res.User.Email).
		Str("wallet_number", res.Wallet.WalletNumber).
		Str("token", token).
		Time("expires_at", expiresAt).
		Msg("in-memory store seeded with a dev user")
	return nil
}
