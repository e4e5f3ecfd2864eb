package handler

import (
	"time"

	"people-registry/internal/adapter/http/dto"
	"people-registry/internal/adapter/http/middleware"
	"people-registry/internal/core/domain"
	"people-registry/internal/core/ports"
	"people-registry/pkg/apperror"
	"people-registry/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// HeaderIdempotencyKey lets clients retry record creation safely.
const HeaderIdempotencyKey = "Idempotency-Key"

// RegistryHandler handles ledger endpoints.
type RegistryHandler struct {
	registrySvc ports.RegistryService
}

// NewRegistryHandler creates a new RegistryHandler.
func NewRegistryHandler(registrySvc ports.RegistryService) *RegistryHandler {
	return &RegistryHandler{registrySvc: registrySvc}
}

// Deploy handles POST /api/v1/ledgers.
func (h *RegistryHandler) Deploy(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	ledger, err := h.registrySvc.Deploy(c.Request.Context(), caller)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toLedgerResponse(ledger))
}

// Summary handles GET /api/v1/ledgers/:id.
func (h *RegistryHandler) Summary(c *gin.Context) {
	ledgerID, ok := bindLedgerID(c)
	if !ok {
		return
	}

	summary, err := h.registrySvc.Summary(c.Request.Context(), ledgerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.LedgerSummaryResponse{
		LedgerResponse: toLedgerResponse(summary.Ledger),
		Held:           summary.Held.String(),
		Persons:        summary.Persons,
		Reconciled:     summary.Reconciled,
	})
}

// Balance handles GET /api/v1/ledgers/:id/balance.
func (h *RegistryHandler) Balance(c *gin.Context) {
	ledgerID, ok := bindLedgerID(c)
	if !ok {
		return
	}

	balance, err := h.registrySvc.Balance(c.Request.Context(), ledgerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		LedgerID: ledgerID.String(),
		Balance:  balance.String(),
	})
}

// Events handles GET /api/v1/ledgers/:id/events.
func (h *RegistryHandler) Events(c *gin.Context) {
	ledgerID, ok := bindLedgerID(c)
	if !ok {
		return
	}

	var q dto.EventsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if q.Limit == 0 {
		q.Limit = 20
	}

	events, err := h.registrySvc.Events(c.Request.Context(), ledgerID, q.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		items = append(items, toEventResponse(&events[i]))
	}
	response.OK(c, dto.EventListResponse{Items: items, Limit: q.Limit})
}

// CreatePerson handles POST /api/v1/ledgers/:id/persons.
func (h *RegistryHandler) CreatePerson(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	ledgerID, ok := bindLedgerID(c)
	if !ok {
		return
	}

	var req dto.CreatePersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	payment, err := dto.ParseAmount(req.Payment)
	if err != nil {
		response.Error(c, apperror.Validation("payment: "+err.Error()))
		return
	}

	person, err := h.registrySvc.Create(c.Request.Context(), ports.CreatePersonRequest{
		LedgerID:       ledgerID,
		Caller:         caller,
		Name:           req.Name,
		Age:            *req.Age,
		Height:         *req.Height,
		Payment:        payment,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, toPersonResponse(person))
}

// GetPerson handles GET /api/v1/ledgers/:id/persons/me.
func (h *RegistryHandler) GetPerson(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	ledgerID, ok := bindLedgerID(c)
	if !ok {
		return
	}

	person, err := h.registrySvc.GetPerson(c.Request.Context(), ledgerID, caller)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toPersonResponse(person))
}

// DeletePerson handles DELETE /api/v1/ledgers/:id/persons/:address.
func (h *RegistryHandler) DeletePerson(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	var uri dto.PersonURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	ledgerID := uuid.MustParse(uri.ID)
	target, _ := domain.ParseAddress(uri.Address)

	if err := h.registrySvc.DeletePerson(c.Request.Context(), ledgerID, target, caller); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"ledger_id": ledgerID.String(), "deleted": target.String()})
}

// Withdraw handles POST /api/v1/ledgers/:id/withdraw.
func (h *RegistryHandler) Withdraw(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}
	ledgerID, ok := bindLedgerID(c)
	if !ok {
		return
	}

	amount, err := h.registrySvc.WithdrawAll(c.Request.Context(), ledgerID, caller)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WithdrawResponse{
		LedgerID: ledgerID.String(),
		Amount:   amount.String(),
		Balance:  decimal.Zero.String(),
	})
}

// bindLedgerID parses the :id segment, writing a VAL_001 response on failure.
func bindLedgerID(c *gin.Context) (uuid.UUID, bool) {
	var uri dto.LedgerURI
	if err := c.ShouldBindUri(&uri); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return uuid.Nil, false
	}
	return uuid.MustParse(uri.ID), true
}

func toLedgerResponse(l *domain.Ledger) dto.LedgerResponse {
	return dto.LedgerResponse{
		ID:        l.ID.String(),
		Owner:     l.Owner.String(),
		Fee:       l.Fee.String(),
		Balance:   l.Balance.String(),
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
}

func toPersonResponse(p *domain.Person) dto.PersonResponse {
	return dto.PersonResponse{
		LedgerID:  p.LedgerID.String(),
		Owner:     p.Owner.String(),
		Name:      p.Name,
		Age:       p.Age,
		Height:    p.Height,
		Senior:    p.Senior,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

func toEventResponse(e *domain.LedgerEvent) dto.EventResponse {
	return dto.EventResponse{
		ID:        e.ID.String(),
		Type:      string(e.Type),
		Actor:     e.Actor.String(),
		Subject:   e.Subject.String(),
		Name:      e.Name,
		Senior:    e.Senior,
		Amount:    e.Amount.String(),
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}
