package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const maxWalletNumberAttempts = 5

// UserServiceImpl implements ports.UserService.
type UserServiceImpl struct {
	userRepo        ports.UserRepository
	walletRepo      ports.WalletRepository
	transactor      ports.DBTransactor
	log             zerolog.Logger
	newWalletNumber func() (string, error)
	now             func() time.Time
}

// NewUserService creates a new UserServiceImpl.
func NewUserService(
	userRepo ports.UserRepository,
	walletRepo ports.WalletRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *UserServiceImpl {
	return &UserServiceImpl{
		userRepo:        userRepo,
		walletRepo:      walletRepo,
		transactor:      transactor,
		log:             log,
		newWalletNumber: domain.NewWalletNumber,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Provision returns the user identified by google id or email together with
// its wallet, creating both in one unit of work when the user is new.
func (s *UserServiceImpl) Provision(ctx context.Context, req ports.ProvisionRequest) (*ports.ProvisionResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, apperror.Validation("email is required")
	}

	existing, err := s.findExisting(ctx, email, req.GoogleID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	user := &domain.User{
		ID:        uuid.New(),
		Email:     email,
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: s.now(),
	}
	if req.GoogleID != "" {
		googleID := req.GoogleID
		user.GoogleID = &googleID
	}
	if err := s.userRepo.Create(ctx, dbTx, user); err != nil {
		if errors.Is(err, ports.ErrDuplicateKey) {
			// Lost a race with a concurrent provision of the same identity.
			_ = dbTx.Rollback(ctx)
			return s.afterRace(ctx, email, req.GoogleID)
		}
		return nil, apperror.InternalError(fmt.Errorf("create user: %w", err))
	}

	wallet, err := s.createWallet(ctx, dbTx, user.ID, user.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("user_id", user.ID.String()).
		Str("wallet_number", wallet.WalletNumber).
		Msg("user provisioned")

	return &ports.ProvisionResult{User: *user, Wallet: *wallet, Created: true}, nil
}

// createWallet inserts the wallet inside a savepoint so a wallet number
// collision can be retried without losing the user row.
func (s *UserServiceImpl) createWallet(ctx context.Context, dbTx pgx.Tx, userID uuid.UUID, now time.Time) (*domain.Wallet, error) {
	for attempt := 1; attempt <= maxWalletNumberAttempts; attempt++ {
		number, err := s.newWalletNumber()
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("generate wallet number: %w", err))
		}

		sp, err := dbTx.Begin(ctx)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("begin savepoint: %w", err))
		}
		wallet := &domain.Wallet{
			ID:           uuid.New(),
			UserID:       userID,
			WalletNumber: number,
			Balance:      money.Zero,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err = s.walletRepo.Create(ctx, sp, wallet)
		if err == nil {
			if err := sp.Commit(ctx); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("release savepoint: %w", err))
			}
			return wallet, nil
		}
		_ = sp.Rollback(ctx)
		if !errors.Is(err, ports.ErrDuplicateKey) {
			return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
		}
		s.log.Warn().Int("attempt", attempt).Msg("wallet number collision, retrying")
	}
	return nil, apperror.InternalError(fmt.Errorf("no free wallet number after %d attempts", maxWalletNumberAttempts))
}

func (s *UserServiceImpl) findExisting(ctx context.Context, email, googleID string) (*ports.ProvisionResult, error) {
	var user *domain.User
	var err error
	if googleID != "" {
		user, err = s.userRepo.GetByGoogleID(ctx, googleID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get user by google id: %w", err))
		}
	}
	if user == nil {
		user, err = s.userRepo.GetByEmail(ctx, email)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get user by email: %w", err))
		}
	}
	if user == nil {
		return nil, nil
	}

	wallet, err := s.walletRepo.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.InternalError(fmt.Errorf("user %s has no wallet", user.ID))
	}
	return &ports.ProvisionResult{User: *user, Wallet: *wallet}, nil
}

func (s *UserServiceImpl) afterRace(ctx context.Context, email, googleID string) (*ports.ProvisionResult, error) {
	existing, err := s.findExisting(ctx, email, googleID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperror.ErrDuplicate("user")
	}
	return existing, nil
}

var _ ports.UserService = (*UserServiceImpl)(nil)
