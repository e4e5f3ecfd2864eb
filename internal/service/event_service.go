package service

import (
	"context"
	"sync"
	"time"

	"people-registry/internal/core/domain"
	"people-registry/internal/core/ports"

	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// PublishObserver counts publish attempts.
type PublishObserver interface {
	ObservePublish(err error)
}

const dispatchQueueSize = 256

type dispatchBatch struct {
	ctx    context.Context
	events []*domain.LedgerEvent
}

// EventServiceImpl implements ports.EventService. A single worker drains
// the queue, so events reach the publisher in dispatch order.
type EventServiceImpl struct {
	publisher ports.EventPublisher
	observer  PublishObserver
	log       zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan dispatchBatch
	wg     sync.WaitGroup
}

// NewEventService creates a new event service and starts its worker.
// If publisher is nil, events are only written to the logger.
func NewEventService(publisher ports.EventPublisher, observer PublishObserver, log zerolog.Logger) *EventServiceImpl {
	s := &EventServiceImpl{
		publisher: publisher,
		observer:  observer,
		log:       log,
		queue:     make(chan dispatchBatch, dispatchQueueSize),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Dispatch queues committed events for publishing without waiting on the
// broker. It blocks only while the queue is full. Events dispatched after
// Close are logged and dropped; the event table stays the source of truth.
func (s *EventServiceImpl) Dispatch(ctx context.Context, events ...*domain.LedgerEvent) {
	if len(events) == 0 {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		for _, e := range events {
			s.log.Warn().Str("event_id", e.ID.String()).Msg("event service closed, dropping ledger event")
		}
		return
	}
	s.queue <- dispatchBatch{ctx: context.WithoutCancel(ctx), events: events}
}

func (s *EventServiceImpl) run() {
	defer s.wg.Done()
	for batch := range s.queue {
		for _, e := range batch.events {
			s.publish(batch.ctx, e)
		}
	}
}

func (s *EventServiceImpl) publish(ctx context.Context, e *domain.LedgerEvent) {
	s.log.Info().
		Str("event_id", e.ID.String()).
		Str("ledger_id", e.LedgerID.String()).
		Str("type", string(e.Type)).
		Str("actor", e.Actor.String()).
		Msg("ledger event")

	if s.publisher == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	err := s.publisher.Publish(pubCtx, e)
	cancel()
	if err != nil {
		s.log.Warn().Err(err).Str("event_id", e.ID.String()).Msg("failed to publish ledger event")
	}
	if s.observer != nil {
		s.observer.ObservePublish(err)
	}
}

// Close drains queued events, stops the worker and closes the publisher.
// It is safe to call more than once.
func (s *EventServiceImpl) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	if s.publisher != nil {
		s.publisher.Close()
	}
}

var _ ports.EventService = (*EventServiceImpl)(nil)
