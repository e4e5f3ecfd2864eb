package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is one deployed registry instance. Owner and Fee never change after
// deployment; Balance tracks accepted payments not yet withdrawn and must
// always equal the funds held in the ledger's custody account.
type Ledger struct {
	ID        uuid.UUID       `json:"id"`
	Owner     Address         `json:"owner"`
	Fee       decimal.Decimal `json:"fee"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewLedger creates an empty ledger owned by the deployer.
func NewLedger(owner Address, fee decimal.Decimal, now time.Time) *Ledger {
	return &Ledger{
		ID:        uuid.New(),
		Owner:     owner,
		Fee:       fee,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsOwner reports whether caller may perform privileged operations.
func (l *Ledger) IsOwner(caller Address) bool {
	return l.Owner == caller
}

// AcceptsPayment reports whether payment exactly matches the fee.
func (l *Ledger) AcceptsPayment(payment decimal.Decimal) bool {
	return payment.Equal(l.Fee)
}

// CustodyAccount returns the funds account holding this ledger's payments.
func CustodyAccount(ledgerID uuid.UUID) string {
	return "custody:" + ledgerID.String()
}
