package domain

import "time"

// Account is a registered caller identity.
type Account struct {
	Address      Address   `json:"address"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Argon2id, never expose
	CreatedAt    time.Time `json:"created_at"`
}
