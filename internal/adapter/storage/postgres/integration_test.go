//go:build integration

package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	"people-registry/internal/core/domain"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("people_registry"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, Migrate("pgx5"+strings.TrimPrefix(dsn, "postgres"), Up, newTestLogger()))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestIntegration_LedgerLifecycle(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, NewHealthCheck(pool).Ping(ctx))

	transactor := NewTransactor(pool)
	ledgers, persons, funds, events := NewLedgerRepo(pool), NewPersonRepo(pool), NewFunds(pool), NewEventRepo(pool)

	l := domain.NewLedger(owner, decimal.NewFromInt(1), time.Now().UTC())

	tx, err := transactor.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, ledgers.Create(ctx, tx, l))
	require.NoError(t, funds.Open(ctx, tx, caller, decimal.NewFromInt(2)))
	require.NoError(t, tx.Commit(ctx))

	// Create: charge, upsert, balance, event.
	tx, err = transactor.Begin(ctx)
	require.NoError(t, err)
	locked, err := ledgers.GetByIDForUpdate(ctx, tx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, locked)
	require.NoError(t, funds.Charge(ctx, tx, l.ID, caller, locked.Fee))
	p := domain.NewPerson(l.ID, caller, "Bob", 65, 190, time.Now().UTC())
	require.NoError(t, persons.Upsert(ctx, tx, p))
	require.NoError(t, ledgers.UpdateBalance(ctx, tx, l.ID, locked.Balance.Add(locked.Fee)))
	require.NoError(t, events.Append(ctx, tx, domain.PersonCreated(p, locked.Fee, time.Now().UTC())))
	require.NoError(t, tx.Commit(ctx))

	got, err := persons.Get(ctx, l.ID, caller)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Senior)

	held, err := funds.Held(ctx, l.ID)
	require.NoError(t, err)
	reloaded, err := ledgers.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, held.Equal(reloaded.Balance), "balance must equal custody funds")

	// A failed charge rolls back with the transaction.
	tx, err = transactor.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, funds.Charge(ctx, tx, l.ID, caller, decimal.NewFromInt(1)))
	assert.ErrorIs(t, funds.Charge(ctx, tx, l.ID, caller, decimal.NewFromInt(1)), domain.ErrInsufficientFunds)
	require.NoError(t, tx.Rollback(ctx))

	bal, err := funds.BalanceOf(ctx, caller)
	require.NoError(t, err)
	assert.Equal(t, "1", bal.String())

	list, err := events.ListByLedger(ctx, l.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.EventPersonCreated, list[0].Type)

	require.NoError(t, Migrate("pgx5"+strings.TrimPrefix(mustDSN(t, pool), "postgres"), Down, newTestLogger()))
}

func mustDSN(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	return pool.Config().ConnString()
}
