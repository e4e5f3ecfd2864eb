package handler

import (
	"time"

	"people-registry/internal/adapter/http/dto"
	"people-registry/internal/adapter/http/middleware"
	"people-registry/internal/core/ports"
	"people-registry/pkg/apperror"
	"people-registry/pkg/response"

	"github.com/gin-gonic/gin"
)

// AccountHandler handles account endpoints.
type AccountHandler struct {
	accountSvc ports.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountSvc ports.AccountService) *AccountHandler {
	return &AccountHandler{accountSvc: accountSvc}
}

// Register handles POST /api/v1/accounts/register.
func (h *AccountHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	account, err := h.accountSvc.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.RegisterResponse{
		Address:  account.Address.String(),
		Username: account.Username,
	})
}

// Login handles POST /api/v1/accounts/login.
func (h *AccountHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	token, expiry, err := h.accountSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.LoginResponse{
		Token:  token,
		Expiry: expiry.Unix(),
	})
}

// Me handles GET /api/v1/accounts/me.
func (h *AccountHandler) Me(c *gin.Context) {
	caller, ok := middleware.Caller(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidToken())
		return
	}

	profile, err := h.accountSvc.Profile(c.Request.Context(), caller)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ProfileResponse{
		Address:   profile.Account.Address.String(),
		Username:  profile.Account.Username,
		Funds:     profile.Funds.String(),
		CreatedAt: profile.Account.CreatedAt.Format(time.RFC3339),
	})
}
