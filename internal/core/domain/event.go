package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType names a state change recorded by a ledger.
type EventType string

const (
	EventLedgerDeployed EventType = "LEDGER_DEPLOYED"
	EventPersonCreated  EventType = "PERSON_CREATED"
	EventPersonDeleted  EventType = "PERSON_DELETED"
	EventFundsWithdrawn EventType = "FUNDS_WITHDRAWN"
)

// LedgerEvent is an append-only record of a committed ledger mutation.
type LedgerEvent struct {
	ID        uuid.UUID       `json:"id"`
	LedgerID  uuid.UUID       `json:"ledger_id"`
	Type      EventType       `json:"type"`
	Actor     Address         `json:"actor"`
	Subject   Address         `json:"subject,omitempty"`
	Name      string          `json:"name,omitempty"`
	Senior    bool            `json:"senior"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

func newEvent(ledgerID uuid.UUID, typ EventType, actor Address, now time.Time) *LedgerEvent {
	return &LedgerEvent{
		ID:        uuid.New(),
		LedgerID:  ledgerID,
		Type:      typ,
		Actor:     actor,
		Amount:    decimal.Zero,
		CreatedAt: now,
	}
}

// LedgerDeployed records a new ledger and its fee.
func LedgerDeployed(l *Ledger, now time.Time) *LedgerEvent {
	e := newEvent(l.ID, EventLedgerDeployed, l.Owner, now)
	e.Amount = l.Fee
	return e
}

// PersonCreated records an accepted registration and the payment it carried.
func PersonCreated(p *Person, payment decimal.Decimal, now time.Time) *LedgerEvent {
	e := newEvent(p.LedgerID, EventPersonCreated, p.Owner, now)
	e.Subject = p.Owner
	e.Name = p.Name
	e.Senior = p.Senior
	e.Amount = payment
	return e
}

// PersonDeleted records the removal of p by the ledger owner.
func PersonDeleted(p *Person, deletedBy Address, now time.Time) *LedgerEvent {
	e := newEvent(p.LedgerID, EventPersonDeleted, deletedBy, now)
	e.Subject = p.Owner
	e.Name = p.Name
	e.Senior = p.Senior
	return e
}

// FundsWithdrawn records a full payout of the ledger balance.
func FundsWithdrawn(ledgerID uuid.UUID, owner Address, amount decimal.Decimal, now time.Time) *LedgerEvent {
	e := newEvent(ledgerID, EventFundsWithdrawn, owner, now)
	e.Subject = owner
	e.Amount = amount
	return e
}
