package postgres

import (
	"context"
	"errors"
	"fmt"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, google_id, name, created_at`

// UserRepo implements ports.UserRepository.
type UserRepo struct {
	pool Pool
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(pool Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// Create inserts a user inside the caller's unit of work.
func (r *UserRepo) Create(ctx context.Context, tx pgx.Tx, u *domain.User) error {
	query := `INSERT INTO users (id, email, google_id, name, created_at) VALUES ($1, $2, $3, $4, $5)`

	_, err := tx.Exec(ctx, query, u.ID, u.Email, u.GoogleID, u.Name, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user: %w", ports.ErrDuplicateKey)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID fetches a user by its UUID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id), "get user by id")
}

// GetByEmail fetches a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email), "get user by email")
}

// GetByGoogleID fetches a user by identity-provider subject.
func (r *UserRepo) GetByGoogleID(ctx context.Context, googleID string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE google_id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, googleID), "get user by google id")
}

// LockByID fetches a user with FOR UPDATE, serializing per-user key issuance.
// This MUST be called within a transaction.
func (r *UserRepo) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`
	return scanUser(tx.QueryRow(ctx, query, id), "lock user")
}

func scanUser(row pgx.Row, op string) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(&u.ID, &u.Email, &u.GoogleID, &u.Name, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}
