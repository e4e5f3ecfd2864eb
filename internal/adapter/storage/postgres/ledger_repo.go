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

// LedgerRepo implements ports.LedgerRepository.
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

const ledgerColumns = `id, owner, fee::text, balance::text, created_at, updated_at`

// Create inserts a freshly deployed ledger.
func (r *LedgerRepo) Create(ctx context.Context, tx pgx.Tx, l *domain.Ledger) error {
	query := `INSERT INTO ledgers (id, owner, fee, balance, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6)`

	_, err := tx.Exec(ctx, query,
		l.ID, l.Owner.String(), l.Fee.String(), l.Balance.String(), l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return translate("insert ledger", err)
	}
	return nil
}

// GetByID fetches a ledger by its UUID (without locking).
func (r *LedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ledger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledgers WHERE id = $1`

	l, err := scanLedger(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get ledger by id: %w", err)
	}
	return l, nil
}

// GetByIDForUpdate fetches a ledger with pessimistic locking.
// This MUST be called within a transaction.
func (r *LedgerRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Ledger, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledgers WHERE id = $1 FOR UPDATE`

	l, err := scanLedger(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get ledger for update: %w", err)
	}
	return l, nil
}

// UpdateBalance sets the ledger's balance counter within a transaction.
func (r *LedgerRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance decimal.Decimal) error {
	query := `UPDATE ledgers SET balance = $1::numeric, updated_at = NOW() WHERE id = $2`

	tag, err := tx.Exec(ctx, query, balance.String(), id)
	if err != nil {
		return fmt.Errorf("update ledger balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger not found: %s", id)
	}
	return nil
}

// scanLedger returns nil, nil when the row does not exist.
func scanLedger(row pgx.Row) (*domain.Ledger, error) {
	var (
		l            domain.Ledger
		owner        string
		fee, balance string
	)
	if err := row.Scan(&l.ID, &owner, &fee, &balance, &l.CreatedAt, &l.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	l.Owner = domain.Address(owner)

	var err error
	if l.Fee, err = parseAmount("fee", fee); err != nil {
		return nil, err
	}
	if l.Balance, err = parseAmount("balance", balance); err != nil {
		return nil, err
	}
	return &l, nil
}
