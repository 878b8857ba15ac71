package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const apiKeySecretBytes = 32 // 64 hex chars

// APIKeyServiceImpl implements ports.APIKeyService.
type APIKeyServiceImpl struct {
	userRepo   ports.UserRepository
	keyRepo    ports.APIKeyRepository
	hasher     ports.KeyHasher
	transactor ports.DBTransactor
	metrics    ports.LedgerMetrics
	log        zerolog.Logger
	now        func() time.Time
}

// NewAPIKeyService creates a new APIKeyServiceImpl.
func NewAPIKeyService(
	userRepo ports.UserRepository,
	keyRepo ports.APIKeyRepository,
	hasher ports.KeyHasher,
	transactor ports.DBTransactor,
	metrics ports.LedgerMetrics,
	log zerolog.Logger,
) *APIKeyServiceImpl {
	return &APIKeyServiceImpl{
		userRepo:   userRepo,
		keyRepo:    keyRepo,
		hasher:     hasher,
		transactor: transactor,
		metrics:    metrics,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IssueKey validates the request, then creates a key under the user's row
// lock so concurrent issuance cannot exceed the cap.
func (s *APIKeyServiceImpl) IssueKey(ctx context.Context, req ports.IssueKeyRequest) (*ports.IssuedKey, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("name is required")
	}
	perms, err := domain.ParsePermissions(req.Permissions)
	if err != nil {
		return nil, apperror.ErrInvalidPermission(strings.Join(req.Permissions, ","))
	}
	expiry, err := domain.ParseExpirySpec(req.Expiry)
	if err != nil {
		return nil, apperror.ErrInvalidExpiry(req.Expiry)
	}

	issued, err := s.issue(ctx, req.UserID, expiry, func(context.Context, pgx.Tx) (string, []domain.Permission, error) {
		return name, perms, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user_id", req.UserID.String()).
		Str("key_id", issued.Key.ID.String()).
		Strs("permissions", domain.PermissionStrings(perms)).
		Msg("api key issued")
	return issued, nil
}

// RolloverKey replaces an expired key with a new one carrying the same
// permissions. The expired key is left as it is.
func (s *APIKeyServiceImpl) RolloverKey(ctx context.Context, req ports.RolloverKeyRequest) (*ports.IssuedKey, error) {
	expiry, err := domain.ParseExpirySpec(req.Expiry)
	if err != nil {
		return nil, apperror.ErrInvalidExpiry(req.Expiry)
	}

	var oldID uuid.UUID
	issued, err := s.issue(ctx, req.UserID, expiry, func(ctx context.Context, dbTx pgx.Tx) (string, []domain.Permission, error) {
		old, err := s.keyRepo.GetByIDForUser(ctx, dbTx, req.ExpiredKeyID, req.UserID)
		if err != nil {
			return "", nil, apperror.InternalError(fmt.Errorf("get api key: %w", err))
		}
		if old == nil {
			return "", nil, apperror.ErrNotFound("api key")
		}
		if !old.IsExpired(s.now()) {
			return "", nil, apperror.ErrKeyNotExpired()
		}
		oldID = old.ID
		return domain.RolloverName(old.Name), old.Permissions, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("user_id", req.UserID.String()).
		Str("old_key_id", oldID.String()).
		Str("key_id", issued.Key.ID.String()).
		Msg("api key rolled over")
	return issued, nil
}

// keySpec resolves the new key's name and permissions inside the issuing
// unit of work, after the user row is locked.
type keySpec func(ctx context.Context, dbTx pgx.Tx) (string, []domain.Permission, error)

func (s *APIKeyServiceImpl) issue(ctx context.Context, userID uuid.UUID, expiry domain.ExpirySpec, spec keySpec) (*ports.IssuedKey, error) {
	secret, err := newAPIKeySecret()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate secret: %w", err))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	user, err := s.userRepo.LockByID(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock user: %w", err))
	}
	if user == nil {
		return nil, apperror.ErrNotFound("user")
	}

	name, perms, err := spec(ctx, dbTx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	usable, err := s.keyRepo.CountUsable(ctx, dbTx, userID, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count api keys: %w", err))
	}
	if usable >= domain.MaxActiveAPIKeys {
		return nil, apperror.ErrKeyLimitReached(domain.MaxActiveAPIKeys)
	}

	key := &domain.APIKey{
		ID:          uuid.New(),
		UserID:      userID,
		KeyHash:     s.hasher.Hash(secret),
		Name:        name,
		Permissions: perms,
		ExpiresAt:   expiry.ExpiresAt(now),
		IsActive:    true,
		CreatedAt:   now,
	}
	if err := s.keyRepo.Create(ctx, dbTx, key); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create api key: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	return &ports.IssuedKey{RawSecret: secret, Key: *key}, nil
}

// Authenticate resolves a raw secret to its key and checks the permission.
func (s *APIKeyServiceImpl) Authenticate(ctx context.Context, rawSecret string, required domain.Permission) (*domain.APIKey, error) {
	key, err := s.authenticate(ctx, rawSecret, required)
	s.metrics.APIKeyAuthenticated(err == nil)
	return key, err
}

func (s *APIKeyServiceImpl) authenticate(ctx context.Context, rawSecret string, required domain.Permission) (*domain.APIKey, error) {
	if !strings.HasPrefix(rawSecret, domain.APIKeyPrefix) {
		return nil, apperror.ErrAPIKeyNotFound()
	}

	key, err := s.keyRepo.GetActiveByHash(ctx, s.hasher.Hash(rawSecret))
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get api key: %w", err))
	}
	if key == nil {
		return nil, apperror.ErrAPIKeyNotFound()
	}
	if key.IsExpired(s.now()) {
		return nil, apperror.ErrAPIKeyExpired()
	}
	if !key.HasPermission(required) {
		return nil, apperror.ErrForbidden(string(required))
	}
	return key, nil
}

// ListKeys returns every key of the user, newest first. Hashes are never exposed.
func (s *APIKeyServiceImpl) ListKeys(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	keys, err := s.keyRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list api keys: %w", err))
	}
	if keys == nil {
		keys = []domain.APIKey{}
	}
	return keys, nil
}

// RevokeKey deactivates a key. Revoking an inactive key is a no-op.
func (s *APIKeyServiceImpl) RevokeKey(ctx context.Context, userID, keyID uuid.UUID) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	key, err := s.keyRepo.GetByIDForUser(ctx, dbTx, keyID, userID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get api key: %w", err))
	}
	if key == nil {
		return apperror.ErrNotFound("api key")
	}
	if !key.IsActive {
		return nil
	}
	if err := s.keyRepo.Deactivate(ctx, dbTx, keyID, userID); err != nil {
		return apperror.InternalError(fmt.Errorf("deactivate api key: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().Str("user_id", userID.String()).Str("key_id", keyID.String()).Msg("api key revoked")
	return nil
}

func newAPIKeySecret() (string, error) {
	b := make([]byte, apiKeySecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return domain.APIKeyPrefix + hex.EncodeToString(b), nil
}

var _ ports.APIKeyService = (*APIKeyServiceImpl)(nil)
