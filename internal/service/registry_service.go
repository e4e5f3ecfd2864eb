package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"people-registry/internal/core/domain"
	"people-registry/internal/core/ports"
	"people-registry/internal/platform/metrics"
	"people-registry/internal/platform/tracing"
	"people-registry/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const idempotencyTTL = 24 * time.Hour

// RegistryServiceImpl implements ports.RegistryService.
type RegistryServiceImpl struct {
	ledgers    ports.LedgerRepository
	persons    ports.PersonRepository
	events     ports.EventRepository
	funds      ports.FundsSubstrate
	transactor ports.DBTransactor
	idempCache ports.IdempotencyCache  // nil disables Idempotency-Key replay
	eventSvc   ports.EventService      // nil disables dispatch
	observer   ports.OperationObserver // nil disables metrics
	fee        decimal.Decimal
	tracer     trace.Tracer
	log        zerolog.Logger
}

// NewRegistryService creates a new RegistryServiceImpl. Ledgers deployed
// through it charge fee for every record.
func NewRegistryService(
	ledgers ports.LedgerRepository,
	persons ports.PersonRepository,
	events ports.EventRepository,
	funds ports.FundsSubstrate,
	transactor ports.DBTransactor,
	idempCache ports.IdempotencyCache,
	eventSvc ports.EventService,
	observer ports.OperationObserver,
	fee decimal.Decimal,
	log zerolog.Logger,
) *RegistryServiceImpl {
	return &RegistryServiceImpl{
		ledgers:    ledgers,
		persons:    persons,
		events:     events,
		funds:      funds,
		transactor: transactor,
		idempCache: idempCache,
		eventSvc:   eventSvc,
		observer:   observer,
		fee:        fee,
		tracer:     otel.Tracer(tracing.InstrumentationName),
		log:        log,
	}
}

// Deploy creates a new ledger owned by caller.
func (s *RegistryServiceImpl) Deploy(ctx context.Context, caller domain.Address) (ledger *domain.Ledger, err error) {
	ctx, done := s.begin(ctx, "deploy", attribute.String("caller", caller.String()))
	defer func() { done(err) }()

	ledger = domain.NewLedger(caller, s.fee, time.Now().UTC())
	event := domain.LedgerDeployed(ledger, ledger.CreatedAt)

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.ledgers.Create(ctx, dbTx, ledger); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create ledger: %w", err))
	}
	if err := s.events.Append(ctx, dbTx, event); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("append event: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("ledger_id", ledger.ID.String()).
		Str("owner", caller.String()).
		Str("fee", ledger.Fee.String()).
		Msg("ledger deployed")

	s.dispatch(ctx, event)
	return ledger, nil
}

// Create charges the caller the ledger fee and stores their record,
// replacing any record they already hold.
// Flow: age check → idempotency → fee check → Lock ledger → charge → store → balance → event → commit.
func (s *RegistryServiceImpl) Create(ctx context.Context, req ports.CreatePersonRequest) (person *domain.Person, err error) {
	ctx, done := s.begin(ctx, "create",
		attribute.String("ledger_id", req.LedgerID.String()),
		attribute.String("caller", req.Caller.String()),
		attribute.String("age", strconv.FormatUint(req.Age, 10)),
	)
	defer func() { done(err) }()

	// 1. Age bound
	if !domain.ValidAge(req.Age) {
		return nil, apperror.ErrInvalidAge()
	}

	// 2. Idempotency replay
	cacheKey := ""
	if req.IdempotencyKey != "" && s.idempCache != nil {
		cacheKey = buildIdempotencyKey(req)
		cached, err := s.idempCache.Get(ctx, cacheKey)
		if err != nil {
			s.log.Warn().Err(err).Str("key", cacheKey).Msg("redis idempotency check failed, continuing")
		}
		if cached != nil {
			if p, ok := s.replayable(ctx, req, cached); ok {
				return p, nil
			}
		}
	}

	// 3. Payment must match the ledger fee exactly
	ledger, err := s.ledgers.GetByID(ctx, req.LedgerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get ledger: %w", err))
	}
	if ledger == nil {
		return nil, apperror.ErrNotFound("Ledger")
	}
	if !ledger.AcceptsPayment(req.Payment) {
		return nil, apperror.ErrInsufficientPayment()
	}

	// 4. Transaction
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ledger, err = s.ledgers.GetByIDForUpdate(ctx, dbTx, req.LedgerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock ledger: %w", err))
	}
	if ledger == nil {
		return nil, apperror.ErrNotFound("Ledger")
	}

	if err := s.funds.Charge(ctx, dbTx, ledger.ID, req.Caller, req.Payment); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return nil, apperror.ErrInsufficientFunds()
		}
		return nil, apperror.InternalError(fmt.Errorf("charge payment: %w", err))
	}

	now := time.Now().UTC()
	person = domain.NewPerson(ledger.ID, req.Caller, req.Name, req.Age, req.Height, now)
	if err := s.persons.Upsert(ctx, dbTx, person); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("store person: %w", err))
	}

	if err := s.ledgers.UpdateBalance(ctx, dbTx, ledger.ID, ledger.Balance.Add(req.Payment)); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}

	event := domain.PersonCreated(person, req.Payment, now)
	if err := s.events.Append(ctx, dbTx, event); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("append event: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	// 5. Cache for replays (best-effort)
	if cacheKey != "" {
		if body, err := json.Marshal(person); err == nil {
			if err := s.idempCache.Set(ctx, cacheKey, body, idempotencyTTL); err != nil {
				s.log.Warn().Err(err).Str("key", cacheKey).Msg("failed to cache idempotency result")
			}
		}
	}

	s.log.Info().
		Str("ledger_id", ledger.ID.String()).
		Str("owner", req.Caller.String()).
		Uint64("age", person.Age).
		Bool("senior", person.Senior).
		Str("payment", req.Payment.String()).
		Msg("person created")

	s.dispatch(ctx, event)
	return person, nil
}

// GetPerson returns the record caller holds in the ledger.
func (s *RegistryServiceImpl) GetPerson(ctx context.Context, ledgerID uuid.UUID, caller domain.Address) (person *domain.Person, err error) {
	ctx, done := s.begin(ctx, "get_person",
		attribute.String("ledger_id", ledgerID.String()),
		attribute.String("caller", caller.String()),
	)
	defer func() { done(err) }()

	person, err = s.persons.Get(ctx, ledgerID, caller)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get person: %w", err))
	}
	if person == nil {
		return nil, apperror.ErrNotFound("Person")
	}
	return person, nil
}

// DeletePerson removes target's record. Only the ledger owner may delete,
// and deleting an absent record succeeds without effect.
func (s *RegistryServiceImpl) DeletePerson(ctx context.Context, ledgerID uuid.UUID, target, caller domain.Address) (err error) {
	ctx, done := s.begin(ctx, "delete_person",
		attribute.String("ledger_id", ledgerID.String()),
		attribute.String("caller", caller.String()),
		attribute.String("target", target.String()),
	)
	defer func() { done(err) }()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ledger, err := s.ledgers.GetByIDForUpdate(ctx, dbTx, ledgerID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock ledger: %w", err))
	}
	if ledger == nil {
		return apperror.ErrNotFound("Ledger")
	}
	if !ledger.IsOwner(caller) {
		return apperror.ErrUnauthorized()
	}

	removed, err := s.persons.Delete(ctx, dbTx, ledgerID, target)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("delete person: %w", err))
	}

	var event *domain.LedgerEvent
	if removed != nil {
		event = domain.PersonDeleted(removed, caller, time.Now().UTC())
		if err := s.events.Append(ctx, dbTx, event); err != nil {
			return apperror.InternalError(fmt.Errorf("append event: %w", err))
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	if event == nil {
		s.log.Debug().
			Str("ledger_id", ledgerID.String()).
			Str("target", target.String()).
			Msg("delete of absent person")
		return nil
	}

	s.log.Info().
		Str("ledger_id", ledgerID.String()).
		Str("target", target.String()).
		Str("deleted_by", caller.String()).
		Msg("person deleted")

	s.dispatch(ctx, event)
	return nil
}

// WithdrawAll pays the whole ledger balance out to the owner and returns
// the amount paid.
func (s *RegistryServiceImpl) WithdrawAll(ctx context.Context, ledgerID uuid.UUID, caller domain.Address) (amount decimal.Decimal, err error) {
	ctx, done := s.begin(ctx, "withdraw_all",
		attribute.String("ledger_id", ledgerID.String()),
		attribute.String("caller", caller.String()),
	)
	defer func() { done(err) }()

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	ledger, err := s.ledgers.GetByIDForUpdate(ctx, dbTx, ledgerID)
	if err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("lock ledger: %w", err))
	}
	if ledger == nil {
		return decimal.Zero, apperror.ErrNotFound("Ledger")
	}
	if !ledger.IsOwner(caller) {
		return decimal.Zero, apperror.ErrUnauthorized()
	}

	amount = ledger.Balance
	if amount.IsZero() {
		return decimal.Zero, nil
	}

	if err := s.funds.PayOut(ctx, dbTx, ledgerID, caller, amount); err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("pay out: %w", err))
	}
	if err := s.ledgers.UpdateBalance(ctx, dbTx, ledgerID, decimal.Zero); err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("update balance: %w", err))
	}

	event := domain.FundsWithdrawn(ledgerID, caller, amount, time.Now().UTC())
	if err := s.events.Append(ctx, dbTx, event); err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("append event: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("ledger_id", ledgerID.String()).
		Str("owner", caller.String()).
		Str("amount", amount.String()).
		Msg("funds withdrawn")

	s.dispatch(ctx, event)
	return amount, nil
}

// Balance returns the ledger's running balance.
func (s *RegistryServiceImpl) Balance(ctx context.Context, ledgerID uuid.UUID) (decimal.Decimal, error) {
	ledger, err := s.ledgers.GetByID(ctx, ledgerID)
	if err != nil {
		return decimal.Zero, apperror.InternalError(fmt.Errorf("get ledger: %w", err))
	}
	if ledger == nil {
		return decimal.Zero, apperror.ErrNotFound("Ledger")
	}
	return ledger.Balance, nil
}

// Summary reports the ledger together with the funds its custody account
// actually holds.
func (s *RegistryServiceImpl) Summary(ctx context.Context, ledgerID uuid.UUID) (*ports.LedgerSummary, error) {
	ledger, err := s.ledgers.GetByID(ctx, ledgerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get ledger: %w", err))
	}
	if ledger == nil {
		return nil, apperror.ErrNotFound("Ledger")
	}

	held, err := s.funds.Held(ctx, ledgerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get held funds: %w", err))
	}

	count, err := s.persons.Count(ctx, ledgerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count persons: %w", err))
	}

	reconciled := ledger.Balance.Equal(held)
	if !reconciled {
		s.log.Error().
			Str("ledger_id", ledgerID.String()).
			Str("balance", ledger.Balance.String()).
			Str("held", held.String()).
			Msg("ledger balance does not match held funds")
	}

	return &ports.LedgerSummary{
		Ledger:     ledger,
		Held:       held,
		Persons:    count,
		Reconciled: reconciled,
	}, nil
}

// Events lists the ledger's events, newest first.
func (s *RegistryServiceImpl) Events(ctx context.Context, ledgerID uuid.UUID, limit int) ([]domain.LedgerEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	ledger, err := s.ledgers.GetByID(ctx, ledgerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get ledger: %w", err))
	}
	if ledger == nil {
		return nil, apperror.ErrNotFound("Ledger")
	}

	events, err := s.events.ListByLedger(ctx, ledgerID, limit)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list events: %w", err))
	}
	return events, nil
}

// begin starts a span for operation and returns a func that ends it and
// records the outcome.
func (s *RegistryServiceImpl) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "registry."+operation, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		outcome := outcomeOf(err)
		if err != nil {
			span.RecordError(err)
			if outcome == metrics.OutcomeError {
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()

		if s.observer != nil {
			s.observer.ObserveOperation(operation, outcome, time.Since(start))
		}
	}
}

func (s *RegistryServiceImpl) dispatch(ctx context.Context, event *domain.LedgerEvent) {
	if s.eventSvc != nil {
		s.eventSvc.Dispatch(ctx, event)
	}
}

// outcomeOf separates caller mistakes (4xx) from failures of the service.
func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeSuccess
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.HTTPStatus < 500 {
		return metrics.OutcomeRejected
	}
	return metrics.OutcomeError
}

// buildIdempotencyKey scopes a client key to the ledger, the caller and
// the request body, so reusing a key with different fields is not a replay.
func buildIdempotencyKey(req ports.CreatePersonRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d\x00%s", req.Name, req.Age, req.Height, req.Payment.String())
	return fmt.Sprintf("create:%s:%s:%s:%s", req.LedgerID, req.Caller, req.IdempotencyKey, hex.EncodeToString(h.Sum(nil)))
}

// replayable decodes a cached create result and returns the stored record
// only while it is still the caller's current one. A record that was
// deleted or replaced since then is not replayed.
func (s *RegistryServiceImpl) replayable(ctx context.Context, req ports.CreatePersonRequest, cached []byte) (*domain.Person, bool) {
	var p domain.Person
	if err := json.Unmarshal(cached, &p); err != nil {
		return nil, false
	}
	current, err := s.persons.Get(ctx, req.LedgerID, req.Caller)
	if err != nil {
		s.log.Warn().Err(err).Str("ledger_id", req.LedgerID.String()).Msg("replay lookup failed, creating anew")
		return nil, false
	}
	if current == nil || !sameRecord(current, &p) {
		return nil, false
	}
	return current, true
}

// sameRecord compares at microsecond precision, which is what Postgres keeps.
func sameRecord(a, b *domain.Person) bool {
	return a.Name == b.Name && a.Age == b.Age && a.Height == b.Height &&
		a.CreatedAt.Truncate(time.Microsecond).Equal(b.CreatedAt.Truncate(time.Microsecond))
}
