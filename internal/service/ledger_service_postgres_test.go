package service

import (
	"context"
	"testing"
	"time"

	"wallet-ledger/internal/adapter/metrics"
	"wallet-ledger/internal/adapter/storage/postgres"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/core/ports/mocks"
	"wallet-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// stampedAt matches a time.Time query argument equal to at.
type stampedAt struct{ at time.Time }

func (s stampedAt) Match(v any) bool {
	got, ok := v.(time.Time)
	return ok && !got.IsZero() && got.Equal(s.at)
}

type pgLedgerFixture struct {
	mock    pgxmock.PgxPoolIface
	gateway *mocks.MockPaymentGateway
	svc     *LedgerServiceImpl
	now     time.Time
}

func newPgLedgerFixture(t *testing.T) *pgLedgerFixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	f := &pgLedgerFixture{
		mock:    mock,
		gateway: mocks.NewMockPaymentGateway(gomock.NewController(t)),
		now:     time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC),
	}
	f.svc = NewLedgerService(
		postgres.NewUserRepo(mock),
		postgres.NewWalletRepo(mock),
		postgres.NewTransactionRepo(mock),
		f.gateway,
		postgres.NewTransactor(mock),
		metrics.New(),
		LedgerConfig{GatewayTimeout: time.Second},
		newTestLogger(),
	)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func pgWalletRow(w *domain.Wallet) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "user_id", "wallet_number", "balance", "created_at", "updated_at"}).
		AddRow(w.ID, w.UserID, w.WalletNumber, w.Balance, w.CreatedAt, w.UpdatedAt)
}

func TestLedgerService_Postgres_DepositRowIsTimestamped(t *testing.T) {
	f := newPgLedgerFixture(t)
	userID := uuid.New()
	wallet := &domain.Wallet{ID: uuid.New(), UserID: userID, WalletNumber: "4839201746512", Balance: money.Zero}

	f.mock.ExpectQuery("SELECT .+ FROM users WHERE id").WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "email", "google_id", "name", "created_at"}).
			AddRow(userID, "ada@example.com", (*string)(nil), "Ada", f.now.Add(-time.Hour)))
	f.mock.ExpectQuery("SELECT .+ FROM wallets WHERE user_id").WithArgs(userID).
		WillReturnRows(pgWalletRow(wallet))
	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO transactions").
		WithArgs(pgxmock.AnyArg(), wallet.ID, domain.TransactionKindDeposit, pgxmock.AnyArg(),
			domain.TransactionStatusPending, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			stampedAt{f.now}, stampedAt{f.now}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()

	f.gateway.EXPECT().InitializeCharge(gomock.Any(), gomock.Any()).
		Return(&ports.ChargeInit{AuthorizationURL: "https://checkout.example/x"}, nil)

	_, err := f.svc.InitiateDeposit(context.Background(), userID, money.MustParse("250"))
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLedgerService_Postgres_TransferLegsAreTimestamped(t *testing.T) {
	f := newPgLedgerFixture(t)
	senderID := uuid.New()
	from := &domain.Wallet{ID: uuid.New(), UserID: senderID, WalletNumber: "4839201746512", Balance: money.MustParse("1000")}
	to := &domain.Wallet{ID: uuid.New(), UserID: uuid.New(), WalletNumber: "5839201746513", Balance: money.Zero}

	first, second := from, to
	if uuidLess(to.ID, from.ID) {
		first, second = to, from
	}

	f.mock.ExpectQuery("SELECT .+ FROM wallets WHERE user_id").WithArgs(senderID).WillReturnRows(pgWalletRow(from))
	f.mock.ExpectQuery("SELECT .+ FROM wallets WHERE wallet_number").WithArgs(to.WalletNumber).WillReturnRows(pgWalletRow(to))
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT .+ FROM wallets WHERE id .+ FOR UPDATE").WithArgs(first.ID).WillReturnRows(pgWalletRow(first))
	f.mock.ExpectQuery("SELECT .+ FROM wallets WHERE id .+ FOR UPDATE").WithArgs(second.ID).WillReturnRows(pgWalletRow(second))
	f.mock.ExpectExec("UPDATE wallets SET balance").WithArgs(pgxmock.AnyArg(), from.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectExec("UPDATE wallets SET balance").WithArgs(pgxmock.AnyArg(), to.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	for _, leg := range []struct {
		wallet uuid.UUID
		kind   domain.TransactionKind
	}{
		{from.ID, domain.TransactionKindTransferOut},
		{to.ID, domain.TransactionKindTransferIn},
	} {
		f.mock.ExpectExec("INSERT INTO transactions").
			WithArgs(pgxmock.AnyArg(), leg.wallet, leg.kind, pgxmock.AnyArg(),
				domain.TransactionStatusSuccess, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				stampedAt{f.now}, stampedAt{f.now}).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	f.mock.ExpectCommit()

	res, err := f.svc.Transfer(context.Background(), ports.TransferRequest{
		SenderUserID: senderID, RecipientWalletNumber: to.WalletNumber, Amount: money.MustParse("400"),
	})
	require.NoError(t, err)
	assert.Equal(t, f.now, res.Debit.CreatedAt)
	assert.Equal(t, f.now, res.Credit.CreatedAt)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
