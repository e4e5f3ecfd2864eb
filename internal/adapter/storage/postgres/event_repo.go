package postgres

import (
	"context"
	"fmt"

	"people-registry/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Append records an event inside the mutation's transaction.
func (r *EventRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEvent) error {
	query := `INSERT INTO ledger_events (id, ledger_id, type, actor, subject, name, senior, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.LedgerID, string(e.Type), e.Actor.String(), e.Subject.String(),
		e.Name, e.Senior, e.Amount.String(), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger event: %w", err)
	}
	return nil
}

// ListByLedger returns the newest events first.
func (r *EventRepo) ListByLedger(ctx context.Context, ledgerID uuid.UUID, limit int) ([]domain.LedgerEvent, error) {
	query := `SELECT id, ledger_id, type, actor, subject, name, senior, amount::text, created_at
		FROM ledger_events WHERE ledger_id = $1
		ORDER BY seq DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, ledgerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.LedgerEvent, 0, limit)
	for rows.Next() {
		var (
			e                           domain.LedgerEvent
			typ, actor, subject, amount string
		)
		if err := rows.Scan(&e.ID, &e.LedgerID, &typ, &actor, &subject, &e.Name, &e.Senior, &amount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ledger event: %w", err)
		}
		e.Type = domain.EventType(typ)
		e.Actor = domain.Address(actor)
		e.Subject = domain.Address(subject)
		if e.Amount, err = parseAmount("amount", amount); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger events: %w", err)
	}
	return events, nil
}
