// Package app wires configuration, storage, services and the HTTP router
// into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"people-registry/config"
	"people-registry/internal/adapter/events/kafka"
	httpHandler "people-registry/internal/adapter/http/handler"
	"people-registry/internal/adapter/storage/memory"
	pgStorage "people-registry/internal/adapter/storage/postgres"
	redisStorage "people-registry/internal/adapter/storage/redis"
	"people-registry/internal/core/ports"
	"people-registry/internal/platform/metrics"
	"people-registry/internal/platform/tracing"
	"people-registry/internal/service"
	"people-registry/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 10 * time.Second

// Option customises New. Used by tests to inject in-process dependencies.
type Option func(*options)

type options struct {
	redis     *goredis.Client
	argon2    *service.Argon2Params
	publisher ports.EventPublisher
}

// WithRedisClient uses client instead of dialling cfg.Redis.
func WithRedisClient(client *goredis.Client) Option {
	return func(o *options) { o.redis = client }
}

// WithArgon2Params overrides the password hashing cost.
func WithArgon2Params(p service.Argon2Params) Option {
	return func(o *options) { o.argon2 = &p }
}

// WithEventPublisher uses publisher instead of the configured Kafka producer.
func WithEventPublisher(publisher ports.EventPublisher) Option {
	return func(o *options) { o.publisher = publisher }
}

// storage is the set of repositories one substrate provides.
type storage struct {
	ledgers    ports.LedgerRepository
	persons    ports.PersonRepository
	events     ports.EventRepository
	accounts   ports.AccountRepository
	funds      ports.FundsSubstrate
	transactor ports.DBTransactor
	health     []ports.HealthChecker
}

// App is an assembled registry server.
type App struct {
	cfg     *config.Config
	log     zerolog.Logger
	handler http.Handler
	metrics *metrics.Metrics
	tracing *tracing.Provider
	events  *service.EventServiceImpl
	closers []func()
}

// New builds every component named by cfg. The returned App owns all
// connections it opened; call Close to release them.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (_ *App, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if cfg.JWT.Secret == "" {
		return nil, errors.New("jwt.secret is required")
	}
	fee, err := cfg.Ledger.FeeAmount()
	if err != nil {
		return nil, err
	}
	allowance, err := cfg.Ledger.AllowanceAmount()
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log, metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.tracing, err = tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.closers = append(a.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := a.tracing.Shutdown(sctx); serr != nil {
			log.Warn().Err(serr).Msg("Tracer shutdown failed")
		}
	})

	store, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}
	healthCheckers := store.health

	var (
		idempCache     ports.IdempotencyCache
		rateLimitStore ports.RateLimitStore
	)
	rdb := o.redis
	if rdb == nil && cfg.Redis.Enabled {
		rdb, err = redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}
	if rdb != nil {
		idempCache = redisStorage.NewIdempotencyCache(rdb)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
	}

	publisher := o.publisher
	if publisher == nil && cfg.Kafka.Enabled {
		p, perr := kafka.NewPublisher(cfg.Kafka, logger.Component(log, "kafka"))
		if perr != nil {
			return nil, fmt.Errorf("kafka: %w", perr)
		}
		publisher = p
		healthCheckers = append(healthCheckers, p)
	}
	a.events = service.NewEventService(publisher, a.metrics, logger.Component(log, "events"))

	hashSvc := service.NewArgon2HashService()
	if o.argon2 != nil {
		hashSvc = service.NewArgon2HashServiceWithParams(*o.argon2)
	}
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	accountSvc := service.NewAccountService(
		store.accounts,
		store.funds,
		store.transactor,
		hashSvc,
		tokenSvc,
		allowance,
		logger.Component(log, "accounts"),
	)
	registrySvc := service.NewRegistryService(
		store.ledgers,
		store.persons,
		store.events,
		store.funds,
		store.transactor,
		idempCache,
		a.events,
		a.metrics,
		fee,
		logger.Component(log, "registry"),
	)

	a.handler = httpHandler.SetupRouter(httpHandler.RouterDeps{
		AccountSvc:     accountSvc,
		RegistrySvc:    registrySvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: healthCheckers,
		Metrics:        a.metrics,
		Logger:         log,
	})

	log.Info().
		Str("storage", cfg.Storage.Driver).
		Bool("redis", rdb != nil).
		Bool("kafka", publisher != nil).
		Bool("tracing", a.tracing.Enabled()).
		Str("fee", fee.String()).
		Msg("People registry assembled")

	return a, nil
}

func (a *App) openStorage(ctx context.Context) (*storage, error) {
	switch a.cfg.Storage.Driver {
	case config.StoragePostgres:
		if a.cfg.Database.AutoMigrate {
			if err := pgStorage.Migrate(a.cfg.Database.MigrationURL(), pgStorage.Up, a.log); err != nil {
				return nil, err
			}
		}
		pool, err := pgStorage.NewPool(ctx, a.cfg.Database, a.log)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		return &storage{
			ledgers:    pgStorage.NewLedgerRepo(pool),
			persons:    pgStorage.NewPersonRepo(pool),
			events:     pgStorage.NewEventRepo(pool),
			accounts:   pgStorage.NewAccountRepo(pool),
			funds:      pgStorage.NewFunds(pool),
			transactor: pgStorage.NewTransactor(pool),
			health:     []ports.HealthChecker{pgStorage.NewHealthCheck(pool)},
		}, nil
	default:
		a.log.Warn().Msg("Using in-memory storage; state is lost on restart")
		s := memory.NewStore()
		return &storage{
			ledgers:    memory.NewLedgerRepo(s),
			persons:    memory.NewPersonRepo(s),
			events:     memory.NewEventRepo(s),
			accounts:   memory.NewAccountRepo(s),
			funds:      memory.NewFunds(s),
			transactor: s,
		}, nil
	}
}

// Handler returns the HTTP handler serving the whole API.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Metrics exposes the app's collectors.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("Server forced to shutdown")
		return err
	}
	a.log.Info().Msg("Server exited")
	return nil
}

// Close drains pending event publishes and releases connections in reverse
// order of acquisition.
func (a *App) Close() {
	if a.events != nil {
		a.events.Close()
		a.events = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
