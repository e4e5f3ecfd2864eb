package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// AddressLength is the number of bytes in an account address.
const AddressLength = 20

// ErrInvalidAddress is returned when a string is not a well-formed address.
var ErrInvalidAddress = errors.New("invalid address")

// Address identifies an account: "0x" followed by 40 lowercase hex digits.
type Address string

// NewAddress returns a fresh random address.
func NewAddress() (Address, error) {
	b := make([]byte, AddressLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating address: %w", err)
	}
	return Address("0x" + hex.EncodeToString(b)), nil
}

// ParseAddress validates s and returns it in canonical (lowercase) form.
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") || len(s) != 2+2*AddressLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return Address(s), nil
}

func (a Address) String() string {
	return string(a)
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ""
}
