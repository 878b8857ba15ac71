package postgres

import (
	"context"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiKeyCols() []string {
	return []string{"id", "user_id", "key_hash", "name", "permissions", "expires_at", "is_active", "created_at"}
}

func newTestAPIKey(userID uuid.UUID) *domain.APIKey {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.APIKey{
		ID:          uuid.New(),
		UserID:      userID,
		KeyHash:     "5f0c...hash",
		Name:        "bot",
		Permissions: []domain.Permission{domain.PermissionRead, domain.PermissionDeposit},
		ExpiresAt:   now.Add(24 * time.Hour),
		IsActive:    true,
		CreatedAt:   now,
	}
}

func apiKeyRow(rows *pgxmock.Rows, k *domain.APIKey) *pgxmock.Rows {
	return rows.AddRow(k.ID, k.UserID, k.KeyHash, k.Name, domain.PermissionStrings(k.Permissions),
		k.ExpiresAt, k.IsActive, k.CreatedAt)
}

func TestAPIKeyRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAPIKeyRepo(mock)
	k := newTestAPIKey(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO api_keys").
		WithArgs(k.ID, k.UserID, k.KeyHash, k.Name, []string{"read", "deposit"}, k.ExpiresAt, true, k.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, k))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepo_GetActiveByHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAPIKeyRepo(mock)
	k := newTestAPIKey(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM api_keys WHERE key_hash = \\$1 AND is_active = TRUE").
		WithArgs(k.KeyHash).
		WillReturnRows(apiKeyRow(pgxmock.NewRows(apiKeyCols()), k))

	got, err := repo.GetActiveByHash(context.Background(), k.KeyHash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, k.Permissions, got.Permissions)
	assert.True(t, got.HasPermission(domain.PermissionDeposit))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepo_CountUsable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAPIKeyRepo(mock)
	userID := uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM api_keys WHERE user_id = \\$1 AND is_active = TRUE AND expires_at > \\$2").
		WithArgs(userID, now).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(4))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	n, err := repo.CountUsable(context.Background(), tx, userID, now)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAPIKeyRepo_GetByIDForUser_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAPIKeyRepo(mock)
	id, userID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM api_keys WHERE id = \\$1 AND user_id = \\$2").
		WithArgs(id, userID).
		WillReturnRows(pgxmock.NewRows(apiKeyCols()))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	got, err := repo.GetByIDForUser(context.Background(), tx, id, userID)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestAPIKeyRepo_ListAndDeactivate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAPIKeyRepo(mock)
	userID := uuid.New()
	a, b := newTestAPIKey(userID), newTestAPIKey(userID)

	mock.ExpectQuery("SELECT .+ FROM api_keys WHERE user_id = \\$1 ORDER BY created_at DESC").
		WithArgs(userID).
		WillReturnRows(apiKeyRow(apiKeyRow(pgxmock.NewRows(apiKeyCols()), a), b))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE api_keys SET is_active = FALSE").
		WithArgs(a.ID, userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	keys, err := repo.ListByUser(context.Background(), userID)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)
	assert.NoError(t, repo.Deactivate(context.Background(), tx, a.ID, userID))
	assert.NoError(t, mock.ExpectationsWereMet())
}
