package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-ledger/config"
	"wallet-ledger/internal/adapter/storage"
	"wallet-ledger/internal/adapter/storage/postgres"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/service"
	"wallet-ledger/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// env resolves the dependencies a command needs. Tests swap the openers.
type env struct {
	loadConfig func(path string) (*config.Config, error)
	openStores func(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*storage.Stores, func(), error)
	migrate    func(cfg config.DatabaseConfig, log zerolog.Logger, fn func(*postgres.Migrator) error) error

	configPath string
	cfg        *config.Config
	log        zerolog.Logger
}

func defaultEnv() *env {
	return &env{
		loadConfig: config.Load,
		openStores: storage.Open,
		migrate:    storage.Migrate,
	}
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "walletctl",
		Short:         "wallet ledger operator tool",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.loadConfig(e.configPath)
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.log = logger.NewWithWriter(cfg.Log.Level, cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", "", "config file (default ./config.yaml)")

	root.AddCommand(e.migrateCmd())
	root.AddCommand(e.provisionCmd())
	root.AddCommand(e.tokenCmd())
	return root
}

func (e *env) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply or roll back schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.migrate(e.cfg.Database, e.log, func(m *postgres.Migrator) error {
				return m.Up()
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.migrate(e.cfg.Database, e.log, func(m *postgres.Migrator) error {
				return m.Down(steps)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

func (e *env) provisionCmd() *cobra.Command {
	var req ports.ProvisionRequest
	cmd := &cobra.Command{
		Use:   "provision",
		Short: "create a user and wallet, or show the existing ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stores, closeStores, err := e.openStores(cmd.Context(), e.cfg.Database, e.log)
			if err != nil {
				return err
			}
			defer closeStores()

			users := service.NewUserService(stores.Users, stores.Wallets, stores.Transactor, e.log)
			res, err := users.Provision(cmd.Context(), req)
			if err != nil {
				return err
			}
			return jsonPrint(cmd, map[string]any{
				"user_id":       res.User.ID,
				"email":         res.User.Email,
				"wallet_number": res.Wallet.WalletNumber,
				"created":       res.Created,
			})
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "user email")
	cmd.Flags().StringVar(&req.GoogleID, "google-id", "", "identity provider subject (optional)")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name (optional)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (e *env) tokenCmd() *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "issue a session token for an existing user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if e.cfg.JWT.Secret == "" {
				return errors.New("jwt.secret is required")
			}
			stores, closeStores, err := e.openStores(cmd.Context(), e.cfg.Database, e.log)
			if err != nil {
				return err
			}
			defer closeStores()

			email = strings.ToLower(strings.TrimSpace(email))
			user, err := stores.Users.GetByEmail(cmd.Context(), email)
			if err != nil {
				return fmt.Errorf("looking up user: %w", err)
			}
			if user == nil {
				return fmt.Errorf("no user with email %q, run provision first", email)
			}

			expiry := e.cfg.JWT.Expiry
			if ttl > 0 {
				expiry = ttl
			}
			tokens := service.NewJWTTokenService(e.cfg.JWT.Secret, expiry, e.cfg.JWT.Issuer)
			token, expiresAt, err := tokens.Generate(user.ID, user.Email)
			if err != nil {
				return err
			}
			return jsonPrint(cmd, map[string]any{
				"token":      token,
				"expires_at": expiresAt.UTC().Format(time.RFC3339),
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default jwt.expiry)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func jsonPrint(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
