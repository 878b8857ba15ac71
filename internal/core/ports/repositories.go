package ports

//go:generate mockgen -destination=mocks/mock_repositories.go -package=mocks wallet-ledger/internal/core/ports UserRepository,WalletRepository,TransactionRepository,APIKeyRepository,AuditRepository,WebhookEventRepository,DBTransactor

import (
	"context"
	"errors"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicateKey is wrapped by repositories when a unique constraint rejects a write.
var ErrDuplicateKey = errors.New("duplicate key")

// Lookups return (nil, nil) when the row does not exist.
// Methods accepting pgx.Tx run inside the caller's unit of work; the ForUpdate
// and Lock variants hold a row lock until the unit commits or rolls back.

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, tx pgx.Tx, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*domain.User, error)
	LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error)
}

// WalletRepository defines persistence operations for wallets.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByWalletNumber(ctx context.Context, walletNumber string) (*domain.Wallet, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance money.Money) error
}

// TransactionRepository defines persistence operations for ledger entries.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error
	// ListByWallet returns entries newest-first.
	ListByWallet(ctx context.Context, params TransactionListParams) ([]domain.Transaction, error)
	// ListPendingDeposits returns pending deposits created before olderThan, oldest first.
	ListPendingDeposits(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error)
}

// Page size bounds for ListTransactions.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// TransactionListParams holds pagination for listing a wallet's entries.
type TransactionListParams struct {
	WalletID uuid.UUID
	Page     int
	PageSize int
}

// APIKeyRepository defines persistence operations for API keys.
type APIKeyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, key *domain.APIKey) error
	// GetActiveByHash ignores deactivated keys; expiry is checked by the caller.
	GetActiveByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	GetByIDForUser(ctx context.Context, tx pgx.Tx, id, userID uuid.UUID) (*domain.APIKey, error)
	// CountUsable counts keys that are active and unexpired at now.
	CountUsable(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) (int, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error)
	Deactivate(ctx context.Context, tx pgx.Tx, id, userID uuid.UUID) error
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// WebhookEventRepository persists verified inbound gateway events.
type WebhookEventRepository interface {
	Create(ctx context.Context, event *domain.WebhookEvent) error
}

// DBTransactor opens a unit of work.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
