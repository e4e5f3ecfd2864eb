package handler

import (
	"net/http"

	"people-registry/internal/adapter/http/middleware"
	"people-registry/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// MetricsProvider is an HTTP observer that can also serve its collectors.
type MetricsProvider interface {
	middleware.HTTPObserver
	Handler() http.Handler
}

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AccountSvc     ports.AccountService
	RegistrySvc    ports.RegistryService
	TokenSvc       ports.TokenService
	RateLimitStore ports.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Metrics        MetricsProvider // nil = no /metrics endpoint
	MaxBodyBytes   int64           // 0 = 1 MB
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBody))
	if deps.Metrics != nil {
		r.Use(middleware.Metrics(deps.Metrics))
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()

	// Returns the group's limiter, or a noop when no store is configured.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	accountHandler := NewAccountHandler(deps.AccountSvc)
	accounts := v1.Group("/accounts")
	{
		accounts.POST("/register", rl(middleware.GroupRegister), accountHandler.Register)
		accounts.POST("/login", rl(middleware.GroupLogin), accountHandler.Login)
		accounts.GET("/me", jwtAuth, rl(middleware.GroupRead), accountHandler.Me)
	}

	registryHandler := NewRegistryHandler(deps.RegistrySvc)
	ledgers := v1.Group("/ledgers", jwtAuth)
	{
		ledgers.POST("", rl(middleware.GroupOwner), registryHandler.Deploy)
		ledgers.GET("/:id", rl(middleware.GroupRead), registryHandler.Summary)
		ledgers.GET("/:id/balance", rl(middleware.GroupRead), registryHandler.Balance)
		ledgers.GET("/:id/events", rl(middleware.GroupRead), registryHandler.Events)
		ledgers.POST("/:id/persons", rl(middleware.GroupCreate), registryHandler.CreatePerson)
		ledgers.GET("/:id/persons/me", rl(middleware.GroupRead), registryHandler.GetPerson)
		ledgers.DELETE("/:id/persons/:address", rl(middleware.GroupOwner), registryHandler.DeletePerson)
		ledgers.POST("/:id/withdraw", rl(middleware.GroupOwner), registryHandler.Withdraw)
	}

	return r
}
