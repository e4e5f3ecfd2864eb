package memory

import (
	"context"
	"fmt"
	"time"

	"people-registry/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Funds implements ports.FundsSubstrate.
type Funds struct {
	s *Store
}

func NewFunds(s *Store) *Funds {
	return &Funds{s: s}
}

func (f *Funds) Open(ctx context.Context, tx pgx.Tx, account domain.Address, allowance decimal.Decimal) error {
	t, err := f.s.txOf(tx)
	if err != nil {
		return err
	}
	key := account.String()
	if _, ok := f.s.funds[key]; ok {
		return fmt.Errorf("funds account %s: %w", account, domain.ErrDuplicate)
	}
	f.s.funds[key] = allowance
	t.onRollback(func() { delete(f.s.funds, key) })
	return nil
}

func (f *Funds) Charge(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, from domain.Address, amount decimal.Decimal) error {
	t, err := f.s.txOf(tx)
	if err != nil {
		return err
	}
	if err := f.debit(t, from.String(), amount); err != nil {
		return err
	}
	f.credit(t, domain.CustodyAccount(ledgerID), amount)
	return nil
}

func (f *Funds) PayOut(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, to domain.Address, amount decimal.Decimal) error {
	t, err := f.s.txOf(tx)
	if err != nil {
		return err
	}
	if err := f.debit(t, domain.CustodyAccount(ledgerID), amount); err != nil {
		return err
	}
	f.credit(t, to.String(), amount)
	return nil
}

func (f *Funds) BalanceOf(ctx context.Context, account domain.Address) (decimal.Decimal, error) {
	return f.read(account.String()), nil
}

func (f *Funds) Held(ctx context.Context, ledgerID uuid.UUID) (decimal.Decimal, error) {
	return f.read(domain.CustodyAccount(ledgerID)), nil
}

func (f *Funds) read(key string) decimal.Decimal {
	f.s.mu.RLock()
	defer f.s.mu.RUnlock()
	bal, ok := f.s.funds[key]
	if !ok {
		return decimal.Zero
	}
	return bal
}

func (f *Funds) debit(t *Tx, key string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("debit %s: negative amount %s", key, amount)
	}
	bal, ok := f.s.funds[key]
	if !ok || bal.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	f.s.funds[key] = bal.Sub(amount)
	t.onRollback(func() { f.s.funds[key] = bal })
	return nil
}

func (f *Funds) credit(t *Tx, key string, amount decimal.Decimal) {
	bal, existed := f.s.funds[key]
	f.s.funds[key] = bal.Add(amount)
	t.onRollback(func() {
		if existed {
			f.s.funds[key] = bal
		} else {
			delete(f.s.funds, key)
		}
	})
}

func now() time.Time {
	return time.Now().UTC()
}
