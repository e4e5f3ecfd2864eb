package memory

import (
	"context"
	"fmt"

	"people-registry/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct {
	s *Store
}

func NewLedgerRepo(s *Store) *LedgerRepo {
	return &LedgerRepo{s: s}
}

func (r *LedgerRepo) Create(ctx context.Context, tx pgx.Tx, l *domain.Ledger) error {
	t, err := r.s.txOf(tx)
	if err != nil {
		return err
	}
	if _, ok := r.s.ledgers[l.ID]; ok {
		return fmt.Errorf("ledger %s: %w", l.ID, domain.ErrDuplicate)
	}
	r.s.ledgers[l.ID] = *l
	t.onRollback(func() { delete(r.s.ledgers, l.ID) })
	return nil
}

func (r *LedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ledger, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.get(id), nil
}

// GetByIDForUpdate reads inside tx; the store lock already excludes other writers.
func (r *LedgerRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Ledger, error) {
	if _, err := r.s.txOf(tx); err != nil {
		return nil, err
	}
	return r.get(id), nil
}

func (r *LedgerRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance decimal.Decimal) error {
	t, err := r.s.txOf(tx)
	if err != nil {
		return err
	}
	prev, ok := r.s.ledgers[id]
	if !ok {
		return fmt.Errorf("ledger %s not found", id)
	}
	next := prev
	next.Balance = balance
	next.UpdatedAt = now()
	r.s.ledgers[id] = next
	t.onRollback(func() { r.s.ledgers[id] = prev })
	return nil
}

func (r *LedgerRepo) get(id uuid.UUID) *domain.Ledger {
	l, ok := r.s.ledgers[id]
	if !ok {
		return nil
	}
	return &l
}
