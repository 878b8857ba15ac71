package service

import (
	"bytes"
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	// GatewayStatusUnavailable is reported by GetDepositStatus when the
	// gateway could not be reached.
	GatewayStatusUnavailable = "unavailable"
)

// LedgerConfig tunes the engine's outbound calls.
type LedgerConfig struct {
	GatewayTimeout       time.Duration
	ReconcileConcurrency int
}

// LedgerServiceImpl implements ports.LedgerService. It is the only writer
// of wallet balances and ledger entries.
type LedgerServiceImpl struct {
	userRepo   ports.UserRepository
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	gateway    ports.PaymentGateway
	transactor ports.DBTransactor
	metrics    ports.LedgerMetrics
	cfg        LedgerConfig
	log        zerolog.Logger
	now        func() time.Time
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	userRepo ports.UserRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	gateway ports.PaymentGateway,
	transactor ports.DBTransactor,
	metrics ports.LedgerMetrics,
	cfg LedgerConfig,
	log zerolog.Logger,
) *LedgerServiceImpl {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.ReconcileConcurrency <= 0 {
		cfg.ReconcileConcurrency = 4
	}
	return &LedgerServiceImpl{
		userRepo:   userRepo,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		gateway:    gateway,
		transactor: transactor,
		metrics:    metrics,
		cfg:        cfg,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// InitiateDeposit records a pending deposit, then asks the gateway for a
// payment URL. The pending row is committed before the gateway call so a
// gateway failure never loses the reference.
func (s *LedgerServiceImpl) InitiateDeposit(ctx context.Context, userID uuid.UUID, amount money.Money) (*ports.DepositIntent, error) {
	if !amount.IsPositive() || !amount.InRange() {
		return nil, apperror.ErrInvalidAmount()
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get user: %w", err))
	}
	if user == nil {
		return nil, apperror.ErrNotFound("user")
	}
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	reference, err := domain.NewReference(domain.ReferencePrefixDeposit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate reference: %w", err))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	now := s.now()
	txn := &domain.Transaction{
		ID:        uuid.New(),
		WalletID:  wallet.ID,
		Kind:      domain.TransactionKindDeposit,
		Amount:    amount,
		Status:    domain.TransactionStatusPending,
		Reference: &reference,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create deposit: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	s.metrics.DepositInitiated()

	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	charge, err := s.gateway.InitializeCharge(gwCtx, ports.ChargeRequest{
		Email:     user.Email,
		Amount:    amount,
		Reference: reference,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("gateway initialize failed, deposit left pending")
		return nil, apperror.ErrGatewayUnavailable(err).WithDetail("reference", reference)
	}

	s.log.Info().
		Str("reference", reference).
		Str("wallet_id", wallet.ID.String()).
		Str("amount", amount.String()).
		Msg("deposit initiated")

	return &ports.DepositIntent{
		Reference:        reference,
		AuthorizationURL: charge.AuthorizationURL,
		Status:           domain.TransactionStatusPending,
	}, nil
}

// SettleDeposit applies a gateway verdict to a pending deposit exactly once.
// The transaction row is locked before the wallet row.
func (s *LedgerServiceImpl) SettleDeposit(ctx context.Context, req ports.SettleRequest) (*ports.SettleResult, error) {
	switch req.Outcome {
	case domain.ChargeSucceeded, domain.ChargeFailed, domain.ChargePending:
	default:
		return nil, apperror.Validation(fmt.Sprintf("unknown charge outcome %q", req.Outcome))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	txn, err := s.txRepo.GetByReferenceForUpdate(ctx, dbTx, req.Reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrUnknownReference()
	}
	if txn.Kind != domain.TransactionKindDeposit {
		return nil, apperror.ErrNotADeposit()
	}
	if txn.Status == domain.TransactionStatusFailed && req.Outcome == domain.ChargeSucceeded {
		// The customer paid after the deposit was closed. Needs a manual credit.
		s.log.Error().
			Str("reference", req.Reference).
			Str("amount", req.Amount.String()).
			Msg("success verdict for a failed deposit, not credited")
	}
	if txn.IsTerminal() || req.Outcome == domain.ChargePending {
		return &ports.SettleResult{Transaction: txn, Applied: false}, nil
	}

	target := req.Outcome.TargetStatus()
	if req.Outcome == domain.ChargeSucceeded {
		if !req.Amount.Equal(txn.Amount) {
			return nil, apperror.ErrAmountMismatch().
				WithDetail("expected", txn.Amount.String()).
				WithDetail("received", req.Amount.String())
		}

		wallet, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, txn.WalletID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if wallet == nil {
			return nil, apperror.InternalError(fmt.Errorf("wallet %s of deposit %s missing", txn.WalletID, req.Reference))
		}
		if err := s.walletRepo.UpdateBalance(ctx, dbTx, wallet.ID, wallet.Balance.Add(txn.Amount)); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("credit wallet: %w", err))
		}
	}

	if err := s.txRepo.UpdateStatus(ctx, dbTx, txn.ID, target); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update status: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	txn.Status = target
	s.metrics.DepositSettled(target)
	s.log.Info().
		Str("reference", req.Reference).
		Str("status", string(target)).
		Str("amount", txn.Amount.String()).
		Msg("deposit settled")

	return &ports.SettleResult{Transaction: txn, Applied: true}, nil
}

// Transfer moves funds between two wallets in one unit of work. Both wallet
// rows are locked in ascending id order so opposing transfers cannot deadlock.
func (s *LedgerServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*ports.TransferResult, error) {
	if !req.Amount.IsPositive() || !req.Amount.InRange() {
		return nil, apperror.ErrInvalidAmount()
	}

	sender, err := s.walletRepo.GetByUserID(ctx, req.SenderUserID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get sender wallet: %w", err))
	}
	if sender == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	recipient, err := s.walletRepo.GetByWalletNumber(ctx, req.RecipientWalletNumber)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get recipient wallet: %w", err))
	}
	if recipient == nil {
		return nil, apperror.ErrNotFound("recipient wallet")
	}
	if sender.ID == recipient.ID {
		return nil, apperror.ErrSelfTransfer()
	}

	outRef, err := domain.NewReference(domain.ReferencePrefixTransfer)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate reference: %w", err))
	}
	inRef, err := domain.NewReference(domain.ReferencePrefixTransfer)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate reference: %w", err))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	first, second := sender.ID, recipient.ID
	if uuidLess(second, first) {
		first, second = second, first
	}
	locked := make(map[uuid.UUID]*domain.Wallet, 2)
	for _, id := range []uuid.UUID{first, second} {
		w, err := s.walletRepo.GetByIDForUpdate(ctx, dbTx, id)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
		}
		if w == nil {
			return nil, apperror.ErrNotFound("wallet")
		}
		locked[id] = w
	}
	from, to := locked[sender.ID], locked[recipient.ID]

	// Balance is re-read under the lock; the earlier read was only for routing.
	if !from.CanDebit(req.Amount) {
		return nil, apperror.ErrInsufficientFunds()
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, from.ID, from.Balance.Sub(req.Amount)); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("debit sender: %w", err))
	}
	if err := s.walletRepo.UpdateBalance(ctx, dbTx, to.ID, to.Balance.Add(req.Amount)); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("credit recipient: %w", err))
	}

	now := s.now()
	debit := &domain.Transaction{
		ID:                    uuid.New(),
		WalletID:              from.ID,
		Kind:                  domain.TransactionKindTransferOut,
		Amount:                req.Amount,
		Status:                domain.TransactionStatusSuccess,
		Reference:             &outRef,
		RecipientWalletNumber: &to.WalletNumber,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	credit := &domain.Transaction{
		ID:                 uuid.New(),
		WalletID:           to.ID,
		Kind:               domain.TransactionKindTransferIn,
		Amount:             req.Amount,
		Status:             domain.TransactionStatusSuccess,
		Reference:          &inRef,
		SenderWalletNumber: &from.WalletNumber,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.txRepo.Create(ctx, dbTx, debit); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create debit entry: %w", err))
	}
	if err := s.txRepo.Create(ctx, dbTx, credit); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create credit entry: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.metrics.TransferCompleted(req.Amount.Minor())
	s.log.Info().
		Str("reference", outRef).
		Str("from_wallet", from.WalletNumber).
		Str("to_wallet", to.WalletNumber).
		Str("amount", req.Amount.String()).
		Msg("transfer completed")

	return &ports.TransferResult{
		Status: domain.TransactionStatusSuccess,
		Debit:  debit,
		Credit: credit,
	}, nil
}

// GetBalance returns the caller's committed balance.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, userID uuid.UUID) (*ports.BalanceView, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	return &ports.BalanceView{Balance: wallet.Balance, WalletNumber: wallet.WalletNumber}, nil
}

// ListTransactions returns the caller's entries newest first.
func (s *LedgerServiceImpl) ListTransactions(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]domain.Transaction, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = ports.DefaultPageSize
	}
	if pageSize > ports.MaxPageSize {
		pageSize = ports.MaxPageSize
	}

	txns, err := s.txRepo.ListByWallet(ctx, ports.TransactionListParams{
		WalletID: wallet.ID,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list transactions: %w", err))
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	return txns, nil
}

// GetDepositStatus reports the ledger status of one of the caller's deposits
// together with the gateway's view. It never settles.
func (s *LedgerServiceImpl) GetDepositStatus(ctx context.Context, userID uuid.UUID, reference string) (*ports.DepositStatus, error) {
	txn, err := s.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrUnknownReference()
	}
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	// Another user's reference is indistinguishable from an unknown one.
	if wallet == nil || wallet.ID != txn.WalletID {
		return nil, apperror.ErrUnknownReference()
	}
	if txn.Kind != domain.TransactionKindDeposit {
		return nil, apperror.ErrNotADeposit()
	}

	status := &ports.DepositStatus{
		Reference:     reference,
		Status:        txn.Status,
		Amount:        txn.Amount,
		GatewayStatus: GatewayStatusUnavailable,
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	verification, err := s.gateway.VerifyCharge(gwCtx, reference)
	if err != nil {
		s.log.Warn().Err(err).Str("reference", reference).Msg("gateway verify failed, reporting ledger status only")
		return status, nil
	}
	status.GatewayStatus = verification.GatewayStatus
	return status, nil
}

// ReconcilePending re-verifies stale pending deposits with the gateway and
// settles those that reached a verdict. Per-deposit failures are counted,
// not returned, so one bad reference does not stall the batch.
func (s *LedgerServiceImpl) ReconcilePending(ctx context.Context, olderThan time.Time, limit int) (*ports.ReconcileReport, error) {
	pending, err := s.txRepo.ListPendingDeposits(ctx, olderThan, limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list pending deposits: %w", err))
	}

	var settled, stillPending, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ReconcileConcurrency)
	for _, txn := range pending {
		if txn.Reference == nil {
			continue
		}
		reference := *txn.Reference
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			applied, err := s.reconcileOne(gctx, reference)
			switch {
			case err != nil:
				failed.Add(1)
				s.log.Warn().Err(err).Str("reference", reference).Msg("reconcile deposit failed")
			case applied:
				settled.Add(1)
			default:
				stillPending.Add(1)
			}
			return nil
		})
	}
	waitErr := g.Wait()

	report := &ports.ReconcileReport{
		Checked: len(pending),
		Settled: int(settled.Load()),
		Pending: int(stillPending.Load()),
		Errors:  int(failed.Load()),
	}
	if waitErr != nil {
		return report, waitErr
	}
	return report, nil
}

func (s *LedgerServiceImpl) reconcileOne(ctx context.Context, reference string) (bool, error) {
	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	verification, err := s.gateway.VerifyCharge(gwCtx, reference)
	if err != nil {
		return false, fmt.Errorf("verify charge: %w", err)
	}
	if verification.Outcome == domain.ChargePending {
		return false, nil
	}

	result, err := s.SettleDeposit(ctx, ports.SettleRequest{
		Reference: reference,
		Outcome:   verification.Outcome,
		Amount:    verification.Amount,
	})
	if err != nil {
		return false, err
	}
	return result.Applied, nil
}

func uuidLess(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

var _ ports.LedgerService = (*LedgerServiceImpl)(nil)
