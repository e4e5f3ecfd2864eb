package memory

import (
	"context"
	"fmt"

	"people-registry/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	s *Store
}

func NewAccountRepo(s *Store) *AccountRepo {
	return &AccountRepo{s: s}
}

func (r *AccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Account) error {
	t, err := r.s.txOf(tx)
	if err != nil {
		return err
	}
	if _, taken := r.s.usernames[a.Username]; taken {
		return fmt.Errorf("username %q: %w", a.Username, domain.ErrDuplicate)
	}
	if _, taken := r.s.accounts[a.Address]; taken {
		return fmt.Errorf("address %s: %w", a.Address, domain.ErrDuplicate)
	}
	r.s.accounts[a.Address] = *a
	r.s.usernames[a.Username] = a.Address
	t.onRollback(func() {
		delete(r.s.accounts, a.Address)
		delete(r.s.usernames, a.Username)
	})
	return nil
}

func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	addr, ok := r.s.usernames[username]
	if !ok {
		return nil, nil
	}
	a := r.s.accounts[addr]
	return &a, nil
}

func (r *AccountRepo) GetByAddress(ctx context.Context, address domain.Address) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.accounts[address]
	if !ok {
		return nil, nil
	}
	return &a, nil
}
