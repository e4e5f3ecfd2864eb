package middleware

import (
	"fmt"
	"strconv"
	"time"

	"people-registry/internal/core/ports"
	"people-registry/pkg/apperror"
	"people-registry/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Rate limit groups.
const (
	GroupRegister = "accounts_register"
	GroupLogin    = "accounts_login"
	GroupCreate   = "persons_create"
	GroupOwner    = "ledger_owner"
	GroupRead     = "reads"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the limits per endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		GroupRegister: {Limit: 5, Window: time.Hour},
		GroupLogin:    {Limit: 10, Window: time.Minute},
		GroupCreate:   {Limit: 60, Window: time.Minute},
		GroupOwner:    {Limit: 30, Window: time.Minute},
		GroupRead:     {Limit: 120, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Store failures let the request through.
func RateLimiter(store ports.RateLimitStore, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := store.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		// Always set rate limit headers
		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := max(result.ResetAt-time.Now().Unix(), 1)
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Abort(c, apperror.ErrRateLimitExceeded())
			return
		}

		c.Next()
	}
}

// extractIdentifier keys authenticated callers by address and everyone
// else by client IP.
func extractIdentifier(c *gin.Context) string {
	if caller, ok := Caller(c); ok {
		return caller.String()
	}
	return c.ClientIP()
}
