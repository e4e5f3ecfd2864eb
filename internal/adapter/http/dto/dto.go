package dto

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50,safe_id"`
	Password string `json:"password" binding:"required,min=8,max=128"`
}

// LoginRequest is the request body for account login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterResponse is the response body for successful registration.
type RegisterResponse struct {
	Address  string `json:"address"`
	Username string `json:"username"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// ProfileResponse is the response for GET /accounts/me.
type ProfileResponse struct {
	Address   string `json:"address"`
	Username  string `json:"username"`
	Funds     string `json:"funds"`
	CreatedAt string `json:"created_at"`
}

// CreatePersonRequest is the request body for record creation. Payment is
// a decimal string in native-currency units and must equal the ledger fee.
// Age is bounded by the ledger, not here, so out-of-range ages surface as
// REG_001. Name is stored exactly as sent.
type CreatePersonRequest struct {
	Name    string  `json:"name" sanitize:"-"`
	Age     *uint64 `json:"age" binding:"required"`
	Height  *uint64 `json:"height" binding:"required"`
	Payment string  `json:"payment" binding:"required,amount"`
}

// PersonResponse is a stored record.
type PersonResponse struct {
	LedgerID  string `json:"ledger_id"`
	Owner     string `json:"owner"`
	Name      string `json:"name"`
	Age       uint64 `json:"age"`
	Height    uint64 `json:"height"`
	Senior    bool   `json:"senior"`
	CreatedAt string `json:"created_at"`
}

// LedgerResponse is a deployed ledger.
type LedgerResponse struct {
	ID        string `json:"id"`
	Owner     string `json:"owner"`
	Fee       string `json:"fee"`
	Balance   string `json:"balance"`
	CreatedAt string `json:"created_at"`
}

// LedgerSummaryResponse is a ledger with its reconciliation state.
type LedgerSummaryResponse struct {
	LedgerResponse
	Held       string `json:"held"`
	Persons    int64  `json:"persons"`
	Reconciled bool   `json:"reconciled"`
}

// BalanceResponse is the response for the balance accessor.
type BalanceResponse struct {
	LedgerID string `json:"ledger_id"`
	Balance  string `json:"balance"`
}

// WithdrawResponse reports a completed withdrawal.
type WithdrawResponse struct {
	LedgerID string `json:"ledger_id"`
	Amount   string `json:"amount"`
	Balance  string `json:"balance"`
}

// EventResponse is one ledger event.
type EventResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Actor     string `json:"actor"`
	Subject   string `json:"subject,omitempty"`
	Name      string `json:"name,omitempty"`
	Senior    bool   `json:"senior"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
}

// EventListResponse wraps a ledger's events, newest first.
type EventListResponse struct {
	Items []EventResponse `json:"items"`
	Limit int             `json:"limit"`
}

// LedgerURI binds the :id path segment.
type LedgerURI struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// PersonURI binds the :id and :address path segments.
type PersonURI struct {
	ID      string `uri:"id" binding:"required,uuid"`
	Address string `uri:"address" binding:"required,address"`
}

// EventsQuery binds the event list query string.
type EventsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}
