package postgres

import (
	"context"
	"errors"
	"fmt"

	"people-registry/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Create inserts a new account. A taken username yields domain.ErrDuplicate.
func (r *AccountRepo) Create(ctx context.Context, tx pgx.Tx, a *domain.Account) error {
	query := `INSERT INTO accounts (address, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := tx.Exec(ctx, query, a.Address.String(), a.Username, a.PasswordHash, a.CreatedAt)
	if err != nil {
		return translate("insert account", err)
	}
	return nil
}

// GetByUsername fetches an account for login.
func (r *AccountRepo) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT address, username, password_hash, created_at FROM accounts WHERE username = $1`

	a, err := scanAccount(r.pool.QueryRow(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("get account by username: %w", err)
	}
	return a, nil
}

// GetByAddress fetches an account by its address.
func (r *AccountRepo) GetByAddress(ctx context.Context, address domain.Address) (*domain.Account, error) {
	query := `SELECT address, username, password_hash, created_at FROM accounts WHERE address = $1`

	a, err := scanAccount(r.pool.QueryRow(ctx, query, address.String()))
	if err != nil {
		return nil, fmt.Errorf("get account by address: %w", err)
	}
	return a, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a    domain.Account
		addr string
	)
	if err := row.Scan(&addr, &a.Username, &a.PasswordHash, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.Address = domain.Address(addr)
	return &a, nil
}
