package ports

//go:generate mockgen -source=services.go -destination=mocks/services_mock.go -package=mocks

import (
	"context"
	"time"

	"people-registry/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(address domain.Address) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Address domain.Address
}

// IdempotencyCache is the Redis-layer idempotency check.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RateLimitResult describes the outcome of one rate-limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp when the window resets
}

// RateLimitStore counts requests per key in a fixed window.
type RateLimitStore interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// EventPublisher ships committed ledger events to an external broker.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.LedgerEvent) error
	Close()
}

// OperationObserver records the outcome and latency of service operations.
type OperationObserver interface {
	ObserveOperation(operation, outcome string, elapsed time.Duration)
}

// --- Service Ports (Business Logic) ---

// RegistryService is the registry ledger: record creation against a fixed
// fee, record lookup, and owner-only deletion and withdrawal.
type RegistryService interface {
	Deploy(ctx context.Context, caller domain.Address) (*domain.Ledger, error)
	Create(ctx context.Context, req CreatePersonRequest) (*domain.Person, error)
	GetPerson(ctx context.Context, ledgerID uuid.UUID, caller domain.Address) (*domain.Person, error)
	DeletePerson(ctx context.Context, ledgerID uuid.UUID, target, caller domain.Address) error
	WithdrawAll(ctx context.Context, ledgerID uuid.UUID, caller domain.Address) (decimal.Decimal, error)
	Balance(ctx context.Context, ledgerID uuid.UUID) (decimal.Decimal, error)
	Summary(ctx context.Context, ledgerID uuid.UUID) (*LedgerSummary, error)
	Events(ctx context.Context, ledgerID uuid.UUID, limit int) ([]domain.LedgerEvent, error)
}

// CreatePersonRequest holds validated input for record creation.
type CreatePersonRequest struct {
	LedgerID       uuid.UUID
	Caller         domain.Address
	Name           string
	Age            uint64
	Height         uint64
	Payment        decimal.Decimal
	IdempotencyKey string // optional
}

// LedgerSummary reports a ledger with its reconciliation state.
type LedgerSummary struct {
	Ledger     *domain.Ledger
	Held       decimal.Decimal // funds in the custody account
	Persons    int64
	Reconciled bool // Ledger.Balance equals Held
}

// AccountService defines account registration and authentication.
type AccountService interface {
	Register(ctx context.Context, username, password string) (*domain.Account, error)
	Login(ctx context.Context, username, password string) (string, time.Time, error) // token, expiry, error
	Profile(ctx context.Context, address domain.Address) (*AccountProfile, error)
}

// AccountProfile is an account with its current funds.
type AccountProfile struct {
	Account *domain.Account
	Funds   decimal.Decimal
}

// EventService dispatches committed ledger events.
type EventService interface {
	Dispatch(ctx context.Context, events ...*domain.LedgerEvent)
}
