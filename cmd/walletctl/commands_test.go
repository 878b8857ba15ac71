package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"wallet-ledger/config"
	"wallet-ledger/internal/adapter/storage"
	"wallet-ledger/internal/adapter/storage/postgres"
	"wallet-ledger/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "walletctl-test-secret"

// newTestEnv shares one in-memory backend across command invocations.
func newTestEnv(t *testing.T) *env {
	t.Helper()
	dbCfg := config.DatabaseConfig{Driver: config.DriverMemory, LockTimeout: time.Second}
	stores, _, err := storage.Open(context.Background(), dbCfg, zerolog.Nop())
	require.NoError(t, err)

	return &env{
		loadConfig: func(string) (*config.Config, error) {
			return &config.Config{
				Database: dbCfg,
				JWT:      config.JWTConfig{Secret: testJWTSecret, Expiry: time.Hour, Issuer: "wallet-ledger"},
				Log:      config.LogConfig{Level: "error"},
			}, nil
		},
		openStores: func(context.Context, config.DatabaseConfig, zerolog.Logger) (*storage.Stores, func(), error) {
			return stores, func() {}, nil
		},
		migrate: storage.Migrate,
	}
}

func execute(t *testing.T, e *env, args ...string) (map[string]any, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(e)
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	if err := root.ExecuteContext(context.Background()); err != nil {
		return nil, err
	}
	var got map[string]any
	if out.Len() > 0 {
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	}
	return got, nil
}

func TestProvision(t *testing.T) {
	e := newTestEnv(t)

	first, err := execute(t, e, "provision", "--email", "Ada@Example.com", "--name", "Ada")
	require.NoError(t, err)
	assert.Equal(t, true, first["created"])
	assert.Equal(t, "ada@example.com", first["email"])
	assert.Len(t, first["wallet_number"], 13)

	again, err := execute(t, e, "provision", "--email", "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, false, again["created"])
	assert.Equal(t, first["wallet_number"], again["wallet_number"])
}

func TestProvision_RequiresEmail(t *testing.T) {
	_, err := execute(t, newTestEnv(t), "provision")
	assert.ErrorContains(t, err, `required flag(s) "email" not set`)
}

func TestToken(t *testing.T) {
	e := newTestEnv(t)
	provisioned, err := execute(t, e, "provision", "--email", "ada@example.com")
	require.NoError(t, err)

	got, err := execute(t, e, "token", "--email", " ADA@example.com", "--ttl", "5m")
	require.NoError(t, err)

	claims, err := service.NewJWTTokenService(testJWTSecret, time.Hour, "wallet-ledger").Validate(got["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, provisioned["user_id"], claims.UserID.String())

	expiresAt, err := time.Parse(time.RFC3339, got["expires_at"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, time.Minute)
}

func TestToken_UnknownUser(t *testing.T) {
	_, err := execute(t, newTestEnv(t), "token", "--email", "ghost@example.com")
	assert.ErrorContains(t, err, "run provision first")
}

func TestMigrate(t *testing.T) {
	e := newTestEnv(t)
	var steps []string
	e.migrate = func(cfg config.DatabaseConfig, _ zerolog.Logger, fn func(*postgres.Migrator) error) error {
		steps = append(steps, cfg.Driver)
		return nil
	}

	_, err := execute(t, e, "migrate", "up")
	require.NoError(t, err)
	_, err = execute(t, e, "migrate", "down", "--steps", "2")
	require.NoError(t, err)
	assert.Len(t, steps, 2)

	// Real migrations refuse the memory driver.
	e.migrate = storage.Migrate
	_, err = execute(t, e, "migrate", "up")
	assert.Error(t, err)
}

func TestConfigLoadFailure(t *testing.T) {
	e := newTestEnv(t)
	e.loadConfig = func(string) (*config.Config, error) { return nil, errors.New("bad yaml") }

	_, err := execute(t, e, "provision", "--email", "a@example.com")
	assert.ErrorContains(t, err, "bad yaml")
}

func TestUserIDIsUUID(t *testing.T) {
	got, err := execute(t, newTestEnv(t), "provision", "--email", "b@example.com")
	require.NoError(t, err)
	_, err = uuid.Parse(got["user_id"].(string))
	assert.NoError(t, err)
}
