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

const transactionColumns = `id, wallet_id, kind, amount, status, reference,
		recipient_wallet_number, sender_wallet_number, created_at, updated_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new ledger entry within a database transaction.
// A reused reference is reported as ports.ErrDuplicateKey.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (id, wallet_id, kind, amount, status, reference,
		recipient_wallet_number, sender_wallet_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.WalletID, t.Kind, t.Amount, t.Status, t.Reference,
		t.RecipientWalletNumber, t.SenderWalletNumber, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert transaction: %w", ports.ErrDuplicateKey)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByReference fetches an entry by its reference (non-locking read).
func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, reference))
}

// GetByReferenceForUpdate locks the entry so that its status check and the
// resulting mutation happen in one unit of work.
// This MUST be called within a transaction.
func (r *TransactionRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1 FOR UPDATE`
	return scanTransaction(tx.QueryRow(ctx, query, reference))
}

// UpdateStatus updates an entry's status within a database transaction.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	query := `UPDATE transactions SET status = $1, updated_at = $2 WHERE id = $3`

	tag, err := tx.Exec(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// ListByWallet pages through a wallet's entries newest-first.
func (r *TransactionRepo) ListByWallet(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, error) {
	offset := (params.Page - 1) * params.PageSize
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE wallet_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, params.WalletID, params.PageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

// ListPendingDeposits returns the oldest pending deposits created before olderThan.
func (r *TransactionRepo) ListPendingDeposits(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE kind = $1 AND status = $2 AND created_at < $3 ORDER BY created_at ASC LIMIT $4`

	rows, err := r.pool.Query(ctx, query,
		domain.TransactionKindDeposit, domain.TransactionStatusPending, olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending deposits: %w", err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	txns := make([]domain.Transaction, 0)
	for rows.Next() {
		t := domain.Transaction{}
		if err := rows.Scan(
			&t.ID, &t.WalletID, &t.Kind, &t.Amount, &t.Status, &t.Reference,
			&t.RecipientWalletNumber, &t.SenderWalletNumber, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	err := row.Scan(
		&t.ID, &t.WalletID, &t.Kind, &t.Amount, &t.Status, &t.Reference,
		&t.RecipientWalletNumber, &t.SenderWalletNumber, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	return t, nil
}
