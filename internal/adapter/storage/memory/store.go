// Package memory is a process-local storage substrate. It serialises write
// transactions behind a single lock and reverts them with an undo log, which
// gives the same all-or-nothing semantics as the postgres adapter.
package memory

import (
	"context"
	"errors"
	"sync"

	"people-registry/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrForeignTx is returned when a repository receives a transaction it did
// not start, or one that has already finished.
var ErrForeignTx = errors.New("memory: transaction is closed or not owned by this store")

type personKey struct {
	ledgerID uuid.UUID
	owner    domain.Address
}

// Store holds all tables. Write transactions hold mu exclusively from Begin
// until Commit or Rollback; plain reads take it shared.
type Store struct {
	mu        sync.RWMutex
	ledgers   map[uuid.UUID]domain.Ledger
	persons   map[personKey]domain.Person
	accounts  map[domain.Address]domain.Account
	usernames map[string]domain.Address
	funds     map[string]decimal.Decimal
	events    map[uuid.UUID][]domain.LedgerEvent
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		ledgers:   make(map[uuid.UUID]domain.Ledger),
		persons:   make(map[personKey]domain.Person),
		accounts:  make(map[domain.Address]domain.Account),
		usernames: make(map[string]domain.Address),
		funds:     make(map[string]decimal.Decimal),
		events:    make(map[uuid.UUID][]domain.LedgerEvent),
	}
}

// Begin starts a write transaction, blocking until no other one is open.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &Tx{store: s}, nil
}

// Tx is a write transaction. Only Commit and Rollback are implemented; the
// embedded pgx.Tx is nil and the SQL methods must not be called.
type Tx struct {
	pgx.Tx
	store *Store
	undo  []func()
	done  bool
}

// Commit makes the transaction's writes permanent.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

// Rollback reverts every write in reverse order. It returns pgx.ErrTxClosed
// after Commit, like a pgx transaction.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.undo = nil
	t.store.mu.Unlock()
	return nil
}

func (t *Tx) onRollback(fn func()) {
	t.undo = append(t.undo, fn)
}

// txOf returns the open transaction behind tx if it belongs to s.
func (s *Store) txOf(tx pgx.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.store != s || t.done {
		return nil, ErrForeignTx
	}
	return t, nil
}
