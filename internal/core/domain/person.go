package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// MaxAge is the highest age a record may carry.
	MaxAge uint64 = 150
	// SeniorAge is the age from which a record is flagged senior.
	SeniorAge uint64 = 65
)

// Person is the single record a caller may hold in a ledger.
type Person struct {
	LedgerID  uuid.UUID `json:"ledger_id"`
	Owner     Address   `json:"owner"`
	Name      string    `json:"name"`
	Age       uint64    `json:"age"`
	Height    uint64    `json:"height"`
	Senior    bool      `json:"senior"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidAge reports whether age is within the accepted bound.
func ValidAge(age uint64) bool {
	return age <= MaxAge
}

// IsSenior reports whether age qualifies for the senior flag.
func IsSenior(age uint64) bool {
	return age >= SeniorAge
}

// NewPerson builds a record with the senior flag derived from age.
// Callers are expected to have checked ValidAge first.
func NewPerson(ledgerID uuid.UUID, owner Address, name string, age, height uint64, now time.Time) *Person {
	return &Person{
		LedgerID:  ledgerID,
		Owner:     owner,
		Name:      name,
		Age:       age,
		Height:    height,
		Senior:    IsSenior(age),
		CreatedAt: now,
	}
}
