// Package storage opens the configured Ledger Store backend and hands out its
// repositories behind the ports interfaces.
package storage

import (
	"context"
	"fmt"

	"wallet-ledger/config"
	"wallet-ledger/internal/adapter/storage/memory"
	"wallet-ledger/internal/adapter/storage/postgres"
	"wallet-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// Stores is one backend's repositories sharing a single transactor.
type Stores struct {
	Driver        string
	Users         ports.UserRepository
	Wallets       ports.WalletRepository
	Transactions  ports.TransactionRepository
	APIKeys       ports.APIKeyRepository
	Audit         ports.AuditRepository
	WebhookEvents ports.WebhookEventRepository
	Transactor    ports.DBTransactor
	Health        ports.HealthChecker
}

// Open connects the backend named by cfg.Driver. The returned cleanup
// releases it and must be called once the caller is done.
func Open(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*Stores, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		s := memory.New(memory.WithLockTimeout(cfg.LockTimeout))
		log.Warn().Msg("using in-memory ledger store, data is lost on exit")
		return &Stores{
			Driver:        cfg.Driver,
			Users:         memory.NewUserRepo(s),
			Wallets:       memory.NewWalletRepo(s),
			Transactions:  memory.NewTransactionRepo(s),
			APIKeys:       memory.NewAPIKeyRepo(s),
			Audit:         memory.NewAuditRepo(s),
			WebhookEvents: memory.NewWebhookEventRepo(s),
			Transactor:    s,
			Health:        s,
		}, func() {}, nil

	case config.DriverPostgres:
		if cfg.AutoMigrate {
			if err := Migrate(cfg, log, func(m *postgres.Migrator) error { return m.Up() }); err != nil {
				return nil, nil, err
			}
		}
		pool, err := postgres.NewPool(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return &Stores{
			Driver:        cfg.Driver,
			Users:         postgres.NewUserRepo(pool),
			Wallets:       postgres.NewWalletRepo(pool),
			Transactions:  postgres.NewTransactionRepo(pool),
			APIKeys:       postgres.NewAPIKeyRepo(pool),
			Audit:         postgres.NewAuditRepo(pool),
			WebhookEvents: postgres.NewWebhookEventRepo(pool),
			Transactor:    postgres.NewTransactor(pool),
			Health:        postgres.NewHealthCheck(pool),
		}, pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
}

// Migrate opens a migrator for cfg, runs fn and closes it.
func Migrate(cfg config.DatabaseConfig, log zerolog.Logger, fn func(*postgres.Migrator) error) error {
	if cfg.Driver != config.DriverPostgres {
		return fmt.Errorf("migrations need the %s driver, have %q", config.DriverPostgres, cfg.Driver)
	}
	m, err := postgres.NewMigrator(cfg.DSN(), log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("closing migrator")
		}
	}()
	return fn(m)
}
