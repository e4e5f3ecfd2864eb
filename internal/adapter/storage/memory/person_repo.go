package memory

import (
	"context"

	"people-registry/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PersonRepo implements ports.PersonRepository.
type PersonRepo struct {
	s *Store
}

func NewPersonRepo(s *Store) *PersonRepo {
	return &PersonRepo{s: s}
}

func (r *PersonRepo) Upsert(ctx context.Context, tx pgx.Tx, p *domain.Person) error {
	t, err := r.s.txOf(tx)
	if err != nil {
		return err
	}
	key := personKey{ledgerID: p.LedgerID, owner: p.Owner}
	prev, existed := r.s.persons[key]
	r.s.persons[key] = *p
	t.onRollback(func() {
		if existed {
			r.s.persons[key] = prev
		} else {
			delete(r.s.persons, key)
		}
	})
	return nil
}

func (r *PersonRepo) Get(ctx context.Context, ledgerID uuid.UUID, owner domain.Address) (*domain.Person, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.persons[personKey{ledgerID: ledgerID, owner: owner}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *PersonRepo) Delete(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, owner domain.Address) (*domain.Person, error) {
	t, err := r.s.txOf(tx)
	if err != nil {
		return nil, err
	}
	key := personKey{ledgerID: ledgerID, owner: owner}
	p, ok := r.s.persons[key]
	if !ok {
		return nil, nil
	}
	delete(r.s.persons, key)
	t.onRollback(func() { r.s.persons[key] = p })
	return &p, nil
}

func (r *PersonRepo) Count(ctx context.Context, ledgerID uuid.UUID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var n int64
	for key := range r.s.persons {
		if key.ledgerID == ledgerID {
			n++
		}
	}
	return n, nil
}
