package postgres

import (
	"context"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransaction(walletID uuid.UUID) *domain.Transaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  walletID,
		Kind:      domain.TransactionKindDeposit,
		Amount:    money.MustParse("500"),
		Status:    domain.TransactionStatusPending,
		Reference: strPtr("dep_1700000000000_0011223344556677"),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func txCols() []string {
	return []string{"id", "wallet_id", "kind", "amount", "status", "reference",
		"recipient_wallet_number", "sender_wallet_number", "created_at", "updated_at"}
}

func txRow(rows *pgxmock.Rows, t *domain.Transaction) *pgxmock.Rows {
	return rows.AddRow(
		t.ID, t.WalletID, t.Kind, t.Amount, t.Status, t.Reference,
		t.RecipientWalletNumber, t.SenderWalletNumber, t.CreatedAt, t.UpdatedAt,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.WalletID, txn.Kind, moneyEq("500"), txn.Status, txn.Reference,
			txn.RecipientWalletNumber, txn.SenderWalletNumber, txn.CreatedAt, txn.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Create_DuplicateReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(anyArgs(10)...).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, newTestTransaction(uuid.New()))
	assert.ErrorIs(t, err, ports.ErrDuplicateKey)
}

func TestTransactionRepo_GetByReferenceForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM transactions WHERE reference .+ FOR UPDATE").
		WithArgs(*txn.Reference).
		WillReturnRows(txRow(pgxmock.NewRows(txCols()), txn))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	got, err := repo.GetByReferenceForUpdate(context.Background(), tx, *txn.Reference)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.TransactionStatusPending, got.Status)
	assert.Equal(t, "500.00", got.Amount.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByReference_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE reference").
		WithArgs("dep_missing").
		WillReturnRows(pgxmock.NewRows(txCols()))

	got, err := repo.GetByReference(context.Background(), "dep_missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestTransactionRepo_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions SET status").
		WithArgs(domain.TransactionStatusSuccess, pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE transactions SET status").
		WithArgs(domain.TransactionStatusFailed, pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.UpdateStatus(context.Background(), tx, id, domain.TransactionStatusSuccess))
	assert.ErrorContains(t, repo.UpdateStatus(context.Background(), tx, id, domain.TransactionStatusFailed), "transaction not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ListByWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	walletID := uuid.New()

	newer := newTestTransaction(walletID)
	newer.Kind = domain.TransactionKindTransferOut
	newer.Status = domain.TransactionStatusSuccess
	newer.RecipientWalletNumber = strPtr("1234567890123")
	older := newTestTransaction(walletID)
	older.CreatedAt = newer.CreatedAt.Add(-time.Minute)

	rows := txRow(txRow(pgxmock.NewRows(txCols()), newer), older)
	mock.ExpectQuery("SELECT .+ FROM transactions\\s+WHERE wallet_id = \\$1 ORDER BY created_at DESC").
		WithArgs(walletID, 20, 20).
		WillReturnRows(rows)

	got, err := repo.ListByWallet(context.Background(), ports.TransactionListParams{WalletID: walletID, Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer.ID, got[0].ID)
	assert.Equal(t, "1234567890123", *got[0].CounterpartyWalletNumber())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ListPendingDeposits(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	cutoff := time.Now().Add(-10 * time.Minute)
	txn := newTestTransaction(uuid.New())

	mock.ExpectQuery("SELECT .+ FROM transactions\\s+WHERE kind = \\$1 AND status = \\$2").
		WithArgs(domain.TransactionKindDeposit, domain.TransactionStatusPending, cutoff, 50).
		WillReturnRows(txRow(pgxmock.NewRows(txCols()), txn))

	got, err := repo.ListPendingDeposits(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, *txn.Reference, *got[0].Reference)
	assert.NoError(t, mock.ExpectationsWereMet())
}
