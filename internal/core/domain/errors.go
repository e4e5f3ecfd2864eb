package domain

import "errors"

// Sentinel errors raised by the storage substrates. Services translate them
// into apperror values.
var (
	// ErrInsufficientFunds is returned when a debit would take an account below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDuplicate is returned when a unique key is already taken.
	ErrDuplicate = errors.New("duplicate key")
)
