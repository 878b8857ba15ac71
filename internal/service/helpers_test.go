package service

import (
	"context"
	"io"
	"testing"
	"time"

	"wallet-ledger/internal/adapter/storage/memory"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/pkg/money"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestStore() *memory.Store {
	return memory.New(memory.WithLockTimeout(5 * time.Second))
}

// seedAccount commits a user and its wallet holding balance.
func seedAccount(t *testing.T, store *memory.Store, email, balance string) (*domain.User, *domain.Wallet) {
	t.Helper()
	ctx := context.Background()

	number, err := domain.NewWalletNumber()
	require.NoError(t, err)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	user := &domain.User{Email: email, Name: email}
	require.NoError(t, memory.NewUserRepo(store).Create(ctx, tx, user))
	wallet := &domain.Wallet{UserID: user.ID, WalletNumber: number, Balance: money.MustParse(balance)}
	require.NoError(t, memory.NewWalletRepo(store).Create(ctx, tx, wallet))
	require.NoError(t, tx.Commit(ctx))
	return user, wallet
}

// seedPendingDeposit commits a pending deposit created at createdAt.
func seedPendingDeposit(t *testing.T, store *memory.Store, wallet *domain.Wallet, amount string, createdAt time.Time) string {
	t.Helper()
	ctx := context.Background()

	reference, err := domain.NewReference(domain.ReferencePrefixDeposit)
	require.NoError(t, err)

	tx, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, memory.NewTransactionRepo(store).Create(ctx, tx, &domain.Transaction{
		WalletID:  wallet.ID,
		Kind:      domain.TransactionKindDeposit,
		Amount:    money.MustParse(amount),
		Status:    domain.TransactionStatusPending,
		Reference: &reference,
		CreatedAt: createdAt,
	}))
	require.NoError(t, tx.Commit(ctx))
	return reference
}
