package postgres

import (
	"context"
	"errors"
	"fmt"

	"people-registry/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Funds implements ports.FundsSubstrate on the funds table. A CHECK
// constraint keeps balances non-negative; debits are conditional updates.
type Funds struct {
	pool Pool
}

// NewFunds creates a new Funds substrate.
func NewFunds(pool Pool) *Funds {
	return &Funds{pool: pool}
}

// Open credits a new account with its allowance.
func (f *Funds) Open(ctx context.Context, tx pgx.Tx, account domain.Address, allowance decimal.Decimal) error {
	query := `INSERT INTO funds (account, balance) VALUES ($1, $2::numeric)`

	if _, err := tx.Exec(ctx, query, account.String(), allowance.String()); err != nil {
		return translate("open funds account", err)
	}
	return nil
}

// Charge moves amount from the payer into the ledger's custody.
func (f *Funds) Charge(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, from domain.Address, amount decimal.Decimal) error {
	if err := debit(ctx, tx, from.String(), amount); err != nil {
		return fmt.Errorf("charge: %w", err)
	}
	if err := credit(ctx, tx, domain.CustodyAccount(ledgerID), amount); err != nil {
		return fmt.Errorf("charge: %w", err)
	}
	return nil
}

// PayOut moves amount from the ledger's custody to the recipient.
func (f *Funds) PayOut(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, to domain.Address, amount decimal.Decimal) error {
	if err := debit(ctx, tx, domain.CustodyAccount(ledgerID), amount); err != nil {
		return fmt.Errorf("pay out: %w", err)
	}
	if err := credit(ctx, tx, to.String(), amount); err != nil {
		return fmt.Errorf("pay out: %w", err)
	}
	return nil
}

// BalanceOf returns an account's funds; unknown accounts hold zero.
func (f *Funds) BalanceOf(ctx context.Context, account domain.Address) (decimal.Decimal, error) {
	return f.read(ctx, account.String())
}

// Held returns the funds in a ledger's custody account.
func (f *Funds) Held(ctx context.Context, ledgerID uuid.UUID) (decimal.Decimal, error) {
	return f.read(ctx, domain.CustodyAccount(ledgerID))
}

func (f *Funds) read(ctx context.Context, key string) (decimal.Decimal, error) {
	var raw string
	err := f.pool.QueryRow(ctx, `SELECT balance::text FROM funds WHERE account = $1`, key).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("read funds: %w", err)
	}
	return parseAmount("balance", raw)
}

func debit(ctx context.Context, tx pgx.Tx, key string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("debit %s: negative amount %s", key, amount)
	}
	query := `UPDATE funds SET balance = balance - $2::numeric, updated_at = NOW()
		WHERE account = $1 AND balance >= $2::numeric`

	tag, err := tx.Exec(ctx, query, key, amount.String())
	if err != nil {
		return fmt.Errorf("debit %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

func credit(ctx context.Context, tx pgx.Tx, key string, amount decimal.Decimal) error {
	query := `INSERT INTO funds (account, balance) VALUES ($1, $2::numeric)
		ON CONFLICT (account) DO UPDATE
		SET balance = funds.balance + EXCLUDED.balance, updated_at = NOW()`

	if _, err := tx.Exec(ctx, query, key, amount.String()); err != nil {
		return fmt.Errorf("credit %s: %w", key, err)
	}
	return nil
}
