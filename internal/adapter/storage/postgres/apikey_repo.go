package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const apiKeyColumns = `id, user_id, key_hash, name, permissions, expires_at, is_active, created_at`

// APIKeyRepo implements ports.APIKeyRepository.
type APIKeyRepo struct {
	pool Pool
}

// NewAPIKeyRepo creates a new APIKeyRepo.
func NewAPIKeyRepo(pool Pool) *APIKeyRepo {
	return &APIKeyRepo{pool: pool}
}

// Create inserts a key inside the caller's unit of work.
func (r *APIKeyRepo) Create(ctx context.Context, tx pgx.Tx, k *domain.APIKey) error {
	query := `INSERT INTO api_keys (id, user_id, key_hash, name, permissions, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		k.ID, k.UserID, k.KeyHash, k.Name, domain.PermissionStrings(k.Permissions),
		k.ExpiresAt, k.IsActive, k.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert api key: %w", ports.ErrDuplicateKey)
		}
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetActiveByHash looks up an active key by the hash of its secret.
func (r *APIKeyRepo) GetActiveByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1 AND is_active = TRUE`
	return scanAPIKey(r.pool.QueryRow(ctx, query, keyHash))
}

// GetByIDForUser fetches one of the user's keys inside the caller's unit of work.
func (r *APIKeyRepo) GetByIDForUser(ctx context.Context, tx pgx.Tx, id, userID uuid.UUID) (*domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1 AND user_id = $2`
	return scanAPIKey(tx.QueryRow(ctx, query, id, userID))
}

// CountUsable counts the user's active, unexpired keys.
func (r *APIKeyRepo) CountUsable(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM api_keys WHERE user_id = $1 AND is_active = TRUE AND expires_at > $2`

	var n int
	if err := tx.QueryRow(ctx, query, userID, now).Scan(&n); err != nil {
		return 0, fmt.Errorf("count usable api keys: %w", err)
	}
	return n, nil
}

// ListByUser returns every key of a user, newest first.
func (r *APIKeyRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]domain.APIKey, 0)
	for rows.Next() {
		k, err := scanAPIKeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan api key row: %w", err)
		}
		keys = append(keys, *k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api key rows: %w", err)
	}
	return keys, nil
}

// Deactivate clears is_active. Keys are never deleted.
func (r *APIKeyRepo) Deactivate(ctx context.Context, tx pgx.Tx, id, userID uuid.UUID) error {
	query := `UPDATE api_keys SET is_active = FALSE WHERE id = $1 AND user_id = $2`

	tag, err := tx.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("deactivate api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("api key not found: %s", id)
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	k, err := scanAPIKeyRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan api key: %w", err)
	}
	return k, nil
}

func scanAPIKeyRow(row pgx.Row) (*domain.APIKey, error) {
	k := &domain.APIKey{}
	var perms []string
	if err := row.Scan(&k.ID, &k.UserID, &k.KeyHash, &k.Name, &perms, &k.ExpiresAt, &k.IsActive, &k.CreatedAt); err != nil {
		return nil, err
	}
	k.Permissions = make([]domain.Permission, 0, len(perms))
	for _, p := range perms {
		k.Permissions = append(k.Permissions, domain.Permission(p))
	}
	return k, nil
}
