package ports

//go:generate mockgen -source=repositories.go -destination=mocks/repositories_mock.go -package=mocks

import (
	"context"

	"people-registry/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepository defines persistence operations for ledgers.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type LedgerRepository interface {
	Create(ctx context.Context, tx pgx.Tx, ledger *domain.Ledger) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Ledger, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Ledger, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance decimal.Decimal) error
}

// PersonRepository defines persistence operations for person records.
// A ledger holds at most one record per owner.
type PersonRepository interface {
	// Upsert stores p, replacing any record the same owner already holds.
	Upsert(ctx context.Context, tx pgx.Tx, p *domain.Person) error
	Get(ctx context.Context, ledgerID uuid.UUID, owner domain.Address) (*domain.Person, error)
	// Delete removes the owner's record and returns it, or nil if there was none.
	Delete(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, owner domain.Address) (*domain.Person, error)
	Count(ctx context.Context, ledgerID uuid.UUID) (int64, error)
}

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	// Create returns domain.ErrDuplicate when the username is taken.
	Create(ctx context.Context, tx pgx.Tx, account *domain.Account) error
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetByAddress(ctx context.Context, address domain.Address) (*domain.Account, error)
}

// EventRepository is the append-only store of ledger events.
type EventRepository interface {
	Append(ctx context.Context, tx pgx.Tx, event *domain.LedgerEvent) error
	// ListByLedger returns up to limit events, newest first.
	ListByLedger(ctx context.Context, ledgerID uuid.UUID, limit int) ([]domain.LedgerEvent, error)
}

// FundsSubstrate holds native-currency balances for accounts and for each
// ledger's custody account. Debits never take a balance below zero.
type FundsSubstrate interface {
	// Open credits a new account with its starting allowance.
	Open(ctx context.Context, tx pgx.Tx, account domain.Address, allowance decimal.Decimal) error
	// Charge moves amount from the payer into the ledger's custody.
	Charge(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, from domain.Address, amount decimal.Decimal) error
	// PayOut moves amount from the ledger's custody to the recipient.
	PayOut(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, to domain.Address, amount decimal.Decimal) error
	BalanceOf(ctx context.Context, account domain.Address) (decimal.Decimal, error)
	Held(ctx context.Context, ledgerID uuid.UUID) (decimal.Decimal, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
