package memory

import (
	"context"

	"people-registry/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository.
type EventRepo struct {
	s *Store
}

func NewEventRepo(s *Store) *EventRepo {
	return &EventRepo{s: s}
}

func (r *EventRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEvent) error {
	t, err := r.s.txOf(tx)
	if err != nil {
		return err
	}
	prev := r.s.events[e.LedgerID]
	r.s.events[e.LedgerID] = append(prev, *e)
	t.onRollback(func() {
		if len(prev) == 0 {
			delete(r.s.events, e.LedgerID)
			return
		}
		r.s.events[e.LedgerID] = prev
	})
	return nil
}

func (r *EventRepo) ListByLedger(ctx context.Context, ledgerID uuid.UUID, limit int) ([]domain.LedgerEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	all := r.s.events[ledgerID]
	out := make([]domain.LedgerEvent, 0, min(limit, len(all)))
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
