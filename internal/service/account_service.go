package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"people-registry/internal/core/domain"
	"people-registry/internal/core/ports"
	"people-registry/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AccountServiceImpl implements ports.AccountService.
type AccountServiceImpl struct {
	accounts   ports.AccountRepository
	funds      ports.FundsSubstrate
	transactor ports.DBTransactor
	hashSvc    ports.HashService
	tokenSvc   ports.TokenService
	allowance  decimal.Decimal
	log        zerolog.Logger
}

// NewAccountService creates a new AccountServiceImpl. Every registered
// account is opened with allowance funds.
func NewAccountService(
	accounts ports.AccountRepository,
	funds ports.FundsSubstrate,
	transactor ports.DBTransactor,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	allowance decimal.Decimal,
	log zerolog.Logger,
) *AccountServiceImpl {
	return &AccountServiceImpl{
		accounts:   accounts,
		funds:      funds,
		transactor: transactor,
		hashSvc:    hashSvc,
		tokenSvc:   tokenSvc,
		allowance:  allowance,
		log:        log,
	}
}

// Register creates an account with a fresh address and opens its funds.
func (s *AccountServiceImpl) Register(ctx context.Context, username, password string) (*domain.Account, error) {
	// Check username uniqueness
	existing, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check username: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrUsernameExists()
	}

	// Hash password with Argon2id
	passwordHash, err := s.hashSvc.Hash(password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	address, err := domain.NewAddress()
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("generate address: %w", err))
	}

	account := &domain.Account{
		Address:      address,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.accounts.Create(ctx, dbTx, account); err != nil {
		// Lost a race with a concurrent registration
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, apperror.ErrUsernameExists()
		}
		return nil, apperror.InternalError(fmt.Errorf("create account: %w", err))
	}

	if err := s.funds.Open(ctx, dbTx, address, s.allowance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("open funds: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("address", address.String()).
		Str("username", username).
		Str("allowance", s.allowance.String()).
		Msg("account registered")

	return account, nil
}

// Login validates credentials and returns a JWT token.
func (s *AccountServiceImpl) Login(ctx context.Context, username, password string) (string, time.Time, error) {
	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("find account: %w", err))
	}
	if account == nil {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	// Verify password
	valid, err := s.hashSvc.Verify(password, account.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	// Generate JWT
	token, expiry, err := s.tokenSvc.Generate(account.Address)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	return token, expiry, nil
}

// Profile returns the account behind address with its funds balance.
func (s *AccountServiceImpl) Profile(ctx context.Context, address domain.Address) (*ports.AccountProfile, error) {
	account, err := s.accounts.GetByAddress(ctx, address)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("find account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("Account")
	}

	funds, err := s.funds.BalanceOf(ctx, address)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get funds: %w", err))
	}

	return &ports.AccountProfile{Account: account, Funds: funds}, nil
}
