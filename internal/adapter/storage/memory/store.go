// Package memory is an in-process ledger store with the same unit-of-work
// semantics as the PostgreSQL adapter: row locks held until commit or
// rollback, writes staged per transaction and published atomically, unique
// constraints, and savepoints via nested Begin.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errForeignTx = errors.New("memory: transaction was not opened by this store")

type table[T any] map[uuid.UUID]T

type reservation struct {
	owner *Tx
	id    uuid.UUID
}

// Store holds committed rows. It implements ports.DBTransactor.
type Store struct {
	mu      sync.RWMutex
	users   table[domain.User]
	wallets table[domain.Wallet]
	txns    table[domain.Transaction]
	keys    table[domain.APIKey]
	seq     map[uuid.UUID]int64
	nextSeq int64
	audit   []domain.AuditLog
	events  []domain.WebhookEvent

	// unique maps a constraint key (e.g. "wallet.number:123") to the owning row.
	unique   map[string]uuid.UUID
	reserved map[string]reservation

	locks       *lockTable
	lockTimeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long a unit of work waits for a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		users:    make(table[domain.User]),
		wallets:  make(table[domain.Wallet]),
		txns:     make(table[domain.Transaction]),
		keys:     make(table[domain.APIKey]),
		seq:      make(map[uuid.UUID]int64),
		unique:   make(map[string]uuid.UUID),
		reserved: make(map[string]reservation),
		locks:    &lockTable{chans: make(map[string]chan struct{})},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin opens a unit of work.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newTx(s, nil), nil
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(context.Context) error { return nil }

// Name implements ports.HealthChecker.
func (s *Store) Name() string { return "memory" }

// reserve claims unique constraint keys for a staged row.
func (s *Store) reserve(owner *Tx, id uuid.UUID, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range keys {
		if _, taken := s.unique[k]; taken {
			return fmt.Errorf("%w: %s", ports.ErrDuplicateKey, k)
		}
		if _, taken := s.reserved[k]; taken {
			return fmt.Errorf("%w: %s", ports.ErrDuplicateKey, k)
		}
	}
	for _, k := range keys {
		s.reserved[k] = reservation{owner: owner, id: id}
	}
	return nil
}

// lookupUnique resolves a constraint key visible to t (committed or staged in its chain).
func (s *Store) lookupUnique(t *Tx, key string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.unique[key]; ok {
		return id, true
	}
	if r, ok := s.reserved[key]; ok && t != nil && t.inChain(r.owner) {
		return r.id, true
	}
	return uuid.Nil, false
}

// lockTable hands out one single-slot channel per row key.
type lockTable struct {
	mu    sync.Mutex
	chans map[string]chan struct{}
}

func (l *lockTable) get(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.chans[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.chans[key] = ch
	}
	return ch
}

// Tx is a unit of work over a Store. It implements pgx.Tx so it can be
// passed through the same repository ports as a PostgreSQL transaction.
// A Tx must not be shared between goroutines.
type Tx struct {
	store  *Store
	parent *Tx
	done   bool

	// held is only populated on the root transaction.
	held map[string]struct{}

	users   table[domain.User]
	wallets table[domain.Wallet]
	txns    table[domain.Transaction]
	keys    table[domain.APIKey]
}

func newTx(s *Store, parent *Tx) *Tx {
	return &Tx{
		store:   s,
		parent:  parent,
		held:    make(map[string]struct{}),
		users:   make(table[domain.User]),
		wallets: make(table[domain.Wallet]),
		txns:    make(table[domain.Transaction]),
		keys:    make(table[domain.APIKey]),
	}
}

func (t *Tx) root() *Tx {
	r := t
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// inChain reports whether other is t or one of its ancestors.
func (t *Tx) inChain(other *Tx) bool {
	for cur := t; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

// lock takes the row lock for key, waiting until the holder finishes.
func (t *Tx) lock(ctx context.Context, key string) error {
	root := t.root()
	if _, ok := root.held[key]; ok {
		return nil
	}
	if t.store.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.store.lockTimeout)
		defer cancel()
	}

	select {
	case t.store.locks.get(key) <- struct{}{}:
		root.held[key] = struct{}{}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire row lock %s: %w", key, ctx.Err())
	}
}

func (t *Tx) releaseLocks() {
	for key := range t.held {
		<-t.store.locks.get(key)
	}
	t.held = map[string]struct{}{}
}

// releaseReservations drops constraint keys claimed by t itself.
// Caller holds store.mu.
func (t *Tx) releaseReservations() {
	for k, r := range t.store.reserved {
		if r.owner == t {
			delete(t.store.reserved, k)
		}
	}
}

// Begin opens a savepoint.
func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) {
	if t.done {
		return nil, pgx.ErrTxClosed
	}
	return newTx(t.store, t), nil
}

// Commit publishes staged rows. A savepoint merges into its parent; the root
// publishes to the store atomically and releases its row locks.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true

	s := t.store
	if t.parent != nil {
		mergeInto(t.parent.users, t.users)
		mergeInto(t.parent.wallets, t.wallets)
		mergeInto(t.parent.txns, t.txns)
		mergeInto(t.parent.keys, t.keys)

		s.mu.Lock()
		for k, r := range s.reserved {
			if r.owner == t {
				s.reserved[k] = reservation{owner: t.parent, id: r.id}
			}
		}
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	mergeInto(s.users, t.users)
	mergeInto(s.wallets, t.wallets)
	for id, row := range t.txns {
		if _, exists := s.txns[id]; !exists {
			s.nextSeq++
			s.seq[id] = s.nextSeq
		}
		s.txns[id] = row
	}
	for id, k := range t.keys {
		s.keys[id] = cloneKey(k)
	}
	for k, r := range s.reserved {
		if r.owner == t {
			s.unique[k] = r.id
			delete(s.reserved, k)
		}
	}
	s.mu.Unlock()

	t.releaseLocks()
	return nil
}

// Rollback discards staged rows. Calling it after Commit is a no-op that
// returns pgx.ErrTxClosed, matching pgx.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true

	t.store.mu.Lock()
	t.releaseReservations()
	t.store.mu.Unlock()

	if t.parent == nil {
		t.releaseLocks()
	}
	return nil
}

func mergeInto[T any](dst, src table[T]) {
	for id, row := range src {
		dst[id] = row
	}
}

// readRow resolves a row through the savepoint chain, then committed state.
func readRow[T any](t *Tx, pick func(*Tx) table[T], committed func(*Store) table[T], id uuid.UUID) (T, bool) {
	for cur := t; cur != nil; cur = cur.parent {
		if row, ok := pick(cur)[id]; ok {
			return row, true
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	row, ok := committed(t.store)[id]
	return row, ok
}

// viewRows merges committed rows with the chain's staged rows, newest write wins.
func viewRows[T any](t *Tx, pick func(*Tx) table[T], committed func(*Store) table[T]) table[T] {
	t.store.mu.RLock()
	out := make(table[T], len(committed(t.store)))
	mergeInto(out, committed(t.store))
	t.store.mu.RUnlock()

	var chain []*Tx
	for cur := t; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		mergeInto(out, pick(chain[i]))
	}
	return out
}

func asTx(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t == nil {
		return nil, errForeignTx
	}
	if t.done {
		return nil, pgx.ErrTxClosed
	}
	return t, nil
}

// The remaining pgx.Tx methods have no meaning for the memory store.

func (t *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errors.ErrUnsupported
}

func (t *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }

func (t *Tx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errors.ErrUnsupported
}

func (t *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.ErrUnsupported
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.ErrUnsupported
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }

func (t *Tx) Conn() *pgx.Conn { return nil }
