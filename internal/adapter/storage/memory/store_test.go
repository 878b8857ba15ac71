package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedWallet(t *testing.T, s *Store, number string, balance string) *domain.Wallet {
	t.Helper()
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	user := &domain.User{Email: number + "@example.com", Name: "Seed"}
	require.NoError(t, NewUserRepo(s).Create(ctx, tx, user))
	w := &domain.Wallet{UserID: user.ID, WalletNumber: number, Balance: money.MustParse(balance)}
	require.NoError(t, NewWalletRepo(s).Create(ctx, tx, w))
	require.NoError(t, tx.Commit(ctx))
	return w
}

func TestStore_CommitPublishesAtomically(t *testing.T) {
	ctx := context.Background()
	s := New()
	wallets := NewWalletRepo(s)
	w := seedWallet(t, s, "1000000000001", "100")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, wallets.UpdateBalance(ctx, tx, w.ID, money.MustParse("250")))

	// Uncommitted writes are invisible outside the unit of work.
	got, err := wallets.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "100.00", got.Balance.String())

	// But visible inside it.
	locked, err := wallets.GetByIDForUpdate(ctx, tx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "250.00", locked.Balance.String())

	require.NoError(t, tx.Commit(ctx))

	got, err = wallets.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "250.00", got.Balance.String())
}

func TestStore_RollbackDiscards(t *testing.T) {
	ctx := context.Background()
	s := New()
	txns := NewTransactionRepo(s)
	w := seedWallet(t, s, "1000000000002", "0")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	ref := "dep_1_aaaa"
	require.NoError(t, txns.Create(ctx, tx, &domain.Transaction{
		WalletID:  w.ID,
		Kind:      domain.TransactionKindDeposit,
		Amount:    money.MustParse("10"),
		Status:    domain.TransactionStatusPending,
		Reference: &ref,
	}))
	require.NoError(t, tx.Rollback(ctx))

	got, err := txns.GetByReference(ctx, ref)
	require.NoError(t, err)
	assert.Nil(t, got)

	// The reference is free again after rollback.
	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txns.Create(ctx, tx, &domain.Transaction{
		WalletID: w.ID, Kind: domain.TransactionKindDeposit,
		Amount: money.MustParse("10"), Status: domain.TransactionStatusPending, Reference: &ref,
	}))
	require.NoError(t, tx.Commit(ctx))
}

func TestStore_ClosedTx(t *testing.T) {
	ctx := context.Background()
	s := New()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	assert.ErrorIs(t, tx.Rollback(ctx), pgx.ErrTxClosed)
	assert.ErrorIs(t, tx.Commit(ctx), pgx.ErrTxClosed)
	_, err = NewWalletRepo(s).GetByIDForUpdate(ctx, tx, uuid.New())
	assert.ErrorIs(t, err, pgx.ErrTxClosed)
}

func TestStore_UniqueViolation(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedWallet(t, s, "1000000000003", "0")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	err = NewWalletRepo(s).Create(ctx, tx, &domain.Wallet{UserID: uuid.New(), WalletNumber: "1000000000003"})
	assert.ErrorIs(t, err, ports.ErrDuplicateKey)

	err = NewUserRepo(s).Create(ctx, tx, &domain.User{Email: "1000000000003@example.com"})
	assert.ErrorIs(t, err, ports.ErrDuplicateKey)
}

func TestStore_SavepointRollbackKeepsParent(t *testing.T) {
	ctx := context.Background()
	s := New()
	users := NewUserRepo(s)
	wallets := NewWalletRepo(s)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	user := &domain.User{Email: "sp@example.com"}
	require.NoError(t, users.Create(ctx, tx, user))

	sp, err := tx.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, wallets.Create(ctx, sp, &domain.Wallet{UserID: user.ID, WalletNumber: "1000000000004"}))
	require.NoError(t, sp.Rollback(ctx))

	sp, err = tx.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, wallets.Create(ctx, sp, &domain.Wallet{UserID: user.ID, WalletNumber: "1000000000005"}))
	require.NoError(t, sp.Commit(ctx))
	require.NoError(t, tx.Commit(ctx))

	w, err := wallets.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "1000000000005", w.WalletNumber)

	gone, err := wallets.GetByWalletNumber(ctx, "1000000000004")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestStore_RowLockBlocksUntilCommit(t *testing.T) {
	ctx := context.Background()
	s := New()
	wallets := NewWalletRepo(s)
	w := seedWallet(t, s, "1000000000006", "100")

	first, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = wallets.GetByIDForUpdate(ctx, first, w.ID)
	require.NoError(t, err)

	acquired := make(chan string, 1)
	go func() {
		second, err := s.Begin(ctx)
		if err != nil {
			return
		}
		defer second.Rollback(ctx) //nolint:errcheck
		got, err := wallets.GetByIDForUpdate(ctx, second, w.ID)
		if err != nil {
			return
		}
		acquired <- got.Balance.String()
	}()

	select {
	case <-acquired:
		t.Fatal("second unit of work acquired a held row lock")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, wallets.UpdateBalance(ctx, first, w.ID, money.MustParse("40")))
	require.NoError(t, first.Commit(ctx))

	select {
	case bal := <-acquired:
		assert.Equal(t, "40.00", bal, "lock holder's write must be visible after acquiring")
	case <-time.After(time.Second):
		t.Fatal("row lock was not released on commit")
	}
}

func TestStore_LockTimeout(t *testing.T) {
	ctx := context.Background()
	s := New(WithLockTimeout(20 * time.Millisecond))
	wallets := NewWalletRepo(s)
	w := seedWallet(t, s, "1000000000007", "1")

	holder, err := s.Begin(ctx)
	require.NoError(t, err)
	defer holder.Rollback(ctx) //nolint:errcheck
	_, err = wallets.GetByIDForUpdate(ctx, holder, w.ID)
	require.NoError(t, err)

	waiter, err := s.Begin(ctx)
	require.NoError(t, err)
	defer waiter.Rollback(ctx) //nolint:errcheck
	_, err = wallets.GetByIDForUpdate(ctx, waiter, w.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStore_NegativeBalanceRejected(t *testing.T) {
	ctx := context.Background()
	s := New()
	w := seedWallet(t, s, "1000000000008", "5")

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck
	assert.Error(t, NewWalletRepo(s).UpdateBalance(ctx, tx, w.ID, money.MustParse("-0.01")))
}

func TestStore_ConcurrentIncrementsSerialize(t *testing.T) {
	ctx := context.Background()
	s := New()
	wallets := NewWalletRepo(s)
	w := seedWallet(t, s, "1000000000009", "0")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := s.Begin(ctx)
			if err != nil {
				return
			}
			defer tx.Rollback(ctx) //nolint:errcheck
			cur, err := wallets.GetByIDForUpdate(ctx, tx, w.ID)
			if err != nil {
				return
			}
			if err := wallets.UpdateBalance(ctx, tx, w.ID, cur.Balance.Add(money.MustParse("1"))); err != nil {
				return
			}
			_ = tx.Commit(ctx)
		}()
	}
	wg.Wait()

	got, err := wallets.GetByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", got.Balance.String())
}

func TestTransactionRepo_Listing(t *testing.T) {
	ctx := context.Background()
	s := New()
	txns := NewTransactionRepo(s)
	w := seedWallet(t, s, "1000000000010", "0")

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		tx, err := s.Begin(ctx)
		require.NoError(t, err)
		ref := "dep_" + string(rune('a'+i))
		status := domain.TransactionStatusPending
		if i%2 == 1 {
			status = domain.TransactionStatusSuccess
		}
		require.NoError(t, txns.Create(ctx, tx, &domain.Transaction{
			WalletID: w.ID, Kind: domain.TransactionKindDeposit, Amount: money.NewFromInt(int64(i + 1)),
			Status: status, Reference: &ref, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
		require.NoError(t, tx.Commit(ctx))
	}

	page1, err := txns.ListByWallet(ctx, ports.TransactionListParams{WalletID: w.ID, Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "5.00", page1[0].Amount.String())
	assert.Equal(t, "4.00", page1[1].Amount.String())

	page3, err := txns.ListByWallet(ctx, ports.TransactionListParams{WalletID: w.ID, Page: 3, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page3, 1)

	empty, err := txns.ListByWallet(ctx, ports.TransactionListParams{WalletID: w.ID, Page: 9, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, empty)

	pending, err := txns.ListPendingDeposits(ctx, base.Add(3*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "1.00", pending[0].Amount.String())
	assert.Equal(t, "3.00", pending[1].Amount.String())
}

func TestAPIKeyRepo_CountAndDeactivate(t *testing.T) {
	ctx := context.Background()
	s := New()
	keys := NewAPIKeyRepo(s)
	userID := uuid.New()
	now := time.Now().UTC()

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	live := &domain.APIKey{UserID: userID, KeyHash: "h1", Name: "a", Permissions: []domain.Permission{domain.PermissionRead}, ExpiresAt: now.Add(time.Hour), IsActive: true}
	expired := &domain.APIKey{UserID: userID, KeyHash: "h2", Name: "b", Permissions: []domain.Permission{domain.PermissionRead}, ExpiresAt: now.Add(-time.Hour), IsActive: true}
	require.NoError(t, keys.Create(ctx, tx, live))
	require.NoError(t, keys.Create(ctx, tx, expired))

	n, err := keys.CountUsable(ctx, tx, userID, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "staged keys count inside the unit of work")
	require.NoError(t, tx.Commit(ctx))

	found, err := keys.GetActiveByHash(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, live.ID, found.ID)

	tx, err = s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, keys.Deactivate(ctx, tx, live.ID, userID))
	assert.Error(t, keys.Deactivate(ctx, tx, expired.ID, uuid.New()), "other users' keys are invisible")
	require.NoError(t, tx.Commit(ctx))

	found, err = keys.GetActiveByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Nil(t, found)

	all, err := keys.ListByUser(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAppendOnlyRepos(t *testing.T) {
	ctx := context.Background()
	s := New()
	audit := NewAuditRepo(s)
	events := NewWebhookEventRepo(s)

	require.NoError(t, audit.Create(ctx, &domain.AuditLog{Action: domain.AuditActionTransfer, ResourceType: "transaction"}))
	require.NoError(t, events.Create(ctx, &domain.WebhookEvent{Event: "charge.success", Outcome: domain.WebhookOutcomeApplied}))

	require.Len(t, audit.Entries(), 1)
	assert.NotEqual(t, uuid.Nil, audit.Entries()[0].ID)
	require.Len(t, events.Entries(), 1)
	assert.Equal(t, domain.WebhookOutcomeApplied, events.Entries()[0].Outcome)
}
