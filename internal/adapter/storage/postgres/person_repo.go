package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"people-registry/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PersonRepo implements ports.PersonRepository.
type PersonRepo struct {
	pool Pool
}

// NewPersonRepo creates a new PersonRepo.
func NewPersonRepo(pool Pool) *PersonRepo {
	return &PersonRepo{pool: pool}
}

// Upsert stores the caller's record, overwriting an existing one.
func (r *PersonRepo) Upsert(ctx context.Context, tx pgx.Tx, p *domain.Person) error {
	query := `INSERT INTO persons (ledger_id, owner, name, age, height, senior, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
		ON CONFLICT (ledger_id, owner) DO UPDATE
		SET name = EXCLUDED.name, age = EXCLUDED.age, height = EXCLUDED.height,
		    senior = EXCLUDED.senior, created_at = EXCLUDED.created_at`

	_, err := tx.Exec(ctx, query,
		p.LedgerID, p.Owner.String(), p.Name, int64(p.Age), strconv.FormatUint(p.Height, 10), p.Senior, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert person: %w", err)
	}
	return nil
}

// Get fetches the record owned by owner, or nil if there is none.
func (r *PersonRepo) Get(ctx context.Context, ledgerID uuid.UUID, owner domain.Address) (*domain.Person, error) {
	query := `SELECT ledger_id, owner, name, age, height::text, senior, created_at
		FROM persons WHERE ledger_id = $1 AND owner = $2`

	p, err := scanPerson(r.pool.QueryRow(ctx, query, ledgerID, owner.String()))
	if err != nil {
		return nil, fmt.Errorf("get person: %w", err)
	}
	return p, nil
}

// Delete removes the owner's record and returns what was removed.
func (r *PersonRepo) Delete(ctx context.Context, tx pgx.Tx, ledgerID uuid.UUID, owner domain.Address) (*domain.Person, error) {
	query := `DELETE FROM persons WHERE ledger_id = $1 AND owner = $2
		RETURNING ledger_id, owner, name, age, height::text, senior, created_at`

	p, err := scanPerson(tx.QueryRow(ctx, query, ledgerID, owner.String()))
	if err != nil {
		return nil, fmt.Errorf("delete person: %w", err)
	}
	return p, nil
}

// Count returns the number of records held by a ledger.
func (r *PersonRepo) Count(ctx context.Context, ledgerID uuid.UUID) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM persons WHERE ledger_id = $1`, ledgerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count persons: %w", err)
	}
	return n, nil
}

func scanPerson(row pgx.Row) (*domain.Person, error) {
	var (
		p      domain.Person
		owner  string
		age    int64
		height string
	)
	err := row.Scan(&p.LedgerID, &owner, &p.Name, &age, &height, &p.Senior, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.Owner = domain.Address(owner)
	p.Age = uint64(age)
	if p.Height, err = strconv.ParseUint(height, 10, 64); err != nil {
		return nil, fmt.Errorf("parse height %q: %w", height, err)
	}
	return &p, nil
}
