package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/money"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func pickUsers(t *Tx) table[domain.User] { return t.users }
func pickWallets(t *Tx) table[domain.Wallet] { return t.wallets }
func pickTxns(t *Tx) table[domain.Transaction] { return t.txns }
func pickKeys(t *Tx) table[domain.APIKey] { return t.keys }
func committedUsers(s *Store) table[domain.User] { return s.users }
func committedWallets(s *Store) table[domain.Wallet] { return s.wallets }
func committedTxns(s *Store) table[domain.Transaction] { return s.txns }
func committedKeys(s *Store) table[domain.APIKey] { return s.keys }

func cloneKey(k domain.APIKey) domain.APIKey {
	k.Permissions = append([]domain.Permission(nil), k.Permissions...)
	return k
}

func lockKey(kind string, id uuid.UUID) string { return kind + ":" + id.String() }

// findCommitted returns the first committed row matching fn.
func findCommitted[T any](s *Store, rows func(*Store) table[T], fn func(T) bool) (*T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, row := range rows(s) {
		if fn(row) {
			r := row
			return &r, true
		}
	}
	return nil, false
}

// --- users ---

type UserRepo struct{ store *Store }

func NewUserRepo(s *Store) *UserRepo { return &UserRepo{store: s} }

func (r *UserRepo) Create(ctx context.Context, tx pgx.Tx, user *domain.User) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	keys := []string{"user.email:" + user.Email}
	if user.GoogleID != nil {
		keys = append(keys, "user.google:"+*user.GoogleID)
	}
	if err := r.store.reserve(t, user.ID, keys); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	t.users[user.ID] = *user
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, _ := findCommitted(r.store, committedUsers, func(u domain.User) bool { return u.ID == id })
	return u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, _ := findCommitted(r.store, committedUsers, func(u domain.User) bool { return u.Email == email })
	return u, nil
}

func (r *UserRepo) GetByGoogleID(ctx context.Context, googleID string) (*domain.User, error) {
	u, _ := findCommitted(r.store, committedUsers, func(u domain.User) bool {
		return u.GoogleID != nil && *u.GoogleID == googleID
	})
	return u, nil
}

func (r *UserRepo) LockByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, lockKey("user", id)); err != nil {
		return nil, err
	}
	u, ok := readRow(t, pickUsers, committedUsers, id)
	if !ok {
		return nil, nil
	}
	return &u, nil
}

// --- wallets ---

type WalletRepo struct{ store *Store }

func NewWalletRepo(s *Store) *WalletRepo { return &WalletRepo{store: s} }

func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	now := time.Now().UTC()
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = now
	}
	wallet.UpdatedAt = now
	keys := []string{
		"wallet.number:" + wallet.WalletNumber,
		"wallet.user:" + wallet.UserID.String(),
	}
	if err := r.store.reserve(t, wallet.ID, keys); err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	t.wallets[wallet.ID] = *wallet
	return nil
}

func (r *WalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	w, _ := findCommitted(r.store, committedWallets, func(w domain.Wallet) bool { return w.ID == id })
	return w, nil
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	w, _ := findCommitted(r.store, committedWallets, func(w domain.Wallet) bool { return w.UserID == userID })
	return w, nil
}

func (r *WalletRepo) GetByWalletNumber(ctx context.Context, number string) (*domain.Wallet, error) {
	w, _ := findCommitted(r.store, committedWallets, func(w domain.Wallet) bool { return w.WalletNumber == number })
	return w, nil
}

func (r *WalletRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Wallet, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, lockKey("wallet", id)); err != nil {
		return nil, err
	}
	w, ok := readRow(t, pickWallets, committedWallets, id)
	if !ok {
		return nil, nil
	}
	return &w, nil
}

// UpdateBalance enforces the same non-negative check as the wallets table.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, balance money.Money) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if balance.IsNegative() {
		return fmt.Errorf("update wallet balance: wallet %s: negative balance violates check constraint", walletID)
	}
	if err := t.lock(ctx, lockKey("wallet", walletID)); err != nil {
		return err
	}
	w, ok := readRow(t, pickWallets, committedWallets, walletID)
	if !ok {
		return fmt.Errorf("update wallet balance: wallet %s not found", walletID)
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	t.wallets[walletID] = w
	return nil
}

// --- transactions ---

type TransactionRepo struct{ store *Store }

func NewTransactionRepo(s *Store) *TransactionRepo { return &TransactionRepo{store: s} }

func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, txn *domain.Transaction) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	now := time.Now().UTC()
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = now
	}
	txn.UpdatedAt = now
	var keys []string
	if txn.Reference != nil {
		keys = append(keys, "txn.ref:"+*txn.Reference)
	}
	if err := r.store.reserve(t, txn.ID, keys); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	t.txns[txn.ID] = *txn
	return nil
}

func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	txn, _ := findCommitted(r.store, committedTxns, func(x domain.Transaction) bool {
		return x.Reference != nil && *x.Reference == reference
	})
	return txn, nil
}

func (r *TransactionRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Transaction, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	id, ok := r.store.lookupUnique(t, "txn.ref:"+reference)
	if !ok {
		return nil, nil
	}
	if err := t.lock(ctx, lockKey("txn", id)); err != nil {
		return nil, err
	}
	txn, ok := readRow(t, pickTxns, committedTxns, id)
	if !ok {
		return nil, nil
	}
	return &txn, nil
}

func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := t.lock(ctx, lockKey("txn", id)); err != nil {
		return err
	}
	txn, ok := readRow(t, pickTxns, committedTxns, id)
	if !ok {
		return fmt.Errorf("update transaction status: %s not found", id)
	}
	txn.Status = status
	txn.UpdatedAt = time.Now().UTC()
	t.txns[id] = txn
	return nil
}

// ListByWallet returns newest first, ties broken by insertion order.
func (r *TransactionRepo) ListByWallet(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, error) {
	r.store.mu.RLock()
	var rows []domain.Transaction
	seq := make(map[uuid.UUID]int64)
	for _, txn := range r.store.txns {
		if txn.WalletID == params.WalletID {
			rows = append(rows, txn)
			seq[txn.ID] = r.store.seq[txn.ID]
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return seq[rows[i].ID] > seq[rows[j].ID]
	})

	offset := (params.Page - 1) * params.PageSize
	if offset < 0 {
		offset = 0
	}
	if offset >= len(rows) {
		return []domain.Transaction{}, nil
	}
	end := offset + params.PageSize
	if params.PageSize <= 0 || end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end], nil
}

func (r *TransactionRepo) ListPendingDeposits(ctx context.Context, olderThan time.Time, limit int) ([]domain.Transaction, error) {
	r.store.mu.RLock()
	var rows []domain.Transaction
	for _, txn := range r.store.txns {
		if txn.Kind == domain.TransactionKindDeposit &&
			txn.Status == domain.TransactionStatusPending &&
			txn.CreatedAt.Before(olderThan) {
			rows = append(rows, txn)
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// --- api keys ---

type APIKeyRepo struct{ store *Store }

func NewAPIKeyRepo(s *Store) *APIKeyRepo { return &APIKeyRepo{store: s} }

func (r *APIKeyRepo) Create(ctx context.Context, tx pgx.Tx, key *domain.APIKey) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}
	if err := r.store.reserve(t, key.ID, []string{"apikey.hash:" + key.KeyHash}); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	t.keys[key.ID] = cloneKey(*key)
	return nil
}

func (r *APIKeyRepo) GetActiveByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	k, ok := findCommitted(r.store, committedKeys, func(k domain.APIKey) bool {
		return k.KeyHash == hash && k.IsActive
	})
	if !ok {
		return nil, nil
	}
	c := cloneKey(*k)
	return &c, nil
}

func (r *APIKeyRepo) GetByIDForUser(ctx context.Context, tx pgx.Tx, id, userID uuid.UUID) (*domain.APIKey, error) {
	t, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	k, ok := readRow(t, pickKeys, committedKeys, id)
	if !ok || k.UserID != userID {
		return nil, nil
	}
	c := cloneKey(k)
	return &c, nil
}

func (r *APIKeyRepo) CountUsable(ctx context.Context, tx pgx.Tx, userID uuid.UUID, now time.Time) (int, error) {
	t, err := asTx(tx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range viewRows(t, pickKeys, committedKeys) {
		if k.UserID == userID && k.IsUsable(now) {
			n++
		}
	}
	return n, nil
}

func (r *APIKeyRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	r.store.mu.RLock()
	var rows []domain.APIKey
	for _, k := range r.store.keys {
		if k.UserID == userID {
			rows = append(rows, cloneKey(k))
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	return rows, nil
}

func (r *APIKeyRepo) Deactivate(ctx context.Context, tx pgx.Tx, id, userID uuid.UUID) error {
	t, err := asTx(tx)
	if err != nil {
		return err
	}
	if err := t.lock(ctx, lockKey("apikey", id)); err != nil {
		return err
	}
	k, ok := readRow(t, pickKeys, committedKeys, id)
	if !ok || k.UserID != userID {
		return fmt.Errorf("deactivate api key: %s not found", id)
	}
	k.IsActive = false
	t.keys[id] = cloneKey(k)
	return nil
}

// --- append-only logs ---

type AuditRepo struct{ store *Store }

func NewAuditRepo(s *Store) *AuditRepo { return &AuditRepo{store: s} }

func (r *AuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	r.store.mu.Lock()
	r.store.audit = append(r.store.audit, *log)
	r.store.mu.Unlock()
	return nil
}

// Entries returns a snapshot of the audit trail.
func (r *AuditRepo) Entries() []domain.AuditLog {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]domain.AuditLog(nil), r.store.audit...)
}

type WebhookEventRepo struct{ store *Store }

func NewWebhookEventRepo(s *Store) *WebhookEventRepo { return &WebhookEventRepo{store: s} }

func (r *WebhookEventRepo) Create(ctx context.Context, event *domain.WebhookEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.store.mu.Lock()
	r.store.events = append(r.store.events, *event)
	r.store.mu.Unlock()
	return nil
}

// Entries returns a snapshot of recorded webhook deliveries.
func (r *WebhookEventRepo) Entries() []domain.WebhookEvent {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return append([]domain.WebhookEvent(nil), r.store.events...)
}

var (
	_ ports.DBTransactor           = (*Store)(nil)
	_ ports.HealthChecker          = (*Store)(nil)
	_ ports.UserRepository         = (*UserRepo)(nil)
	_ ports.WalletRepository       = (*WalletRepo)(nil)
	_ ports.TransactionRepository  = (*TransactionRepo)(nil)
	_ ports.APIKeyRepository       = (*APIKeyRepo)(nil)
	_ ports.AuditRepository        = (*AuditRepo)(nil)
	_ ports.WebhookEventRepository = (*WebhookEventRepo)(nil)
	_ pgx.Tx                       = (*Tx)(nil)
)
