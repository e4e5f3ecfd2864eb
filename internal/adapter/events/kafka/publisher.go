// Package kafka publishes committed ledger events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"people-registry/config"
	"people-registry/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the part of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Ping(ctx context.Context) error
	Close()
}

// Publisher implements ports.EventPublisher and ports.HealthChecker.
// Records are keyed by ledger ID so one ledger's events stay ordered
// within a partition.
type Publisher struct {
	client Producer
	topic  string
	log    zerolog.Logger
}

// NewPublisher connects a franz-go client to the configured brokers.
func NewPublisher(cfg config.KafkaConfig, log zerolog.Logger) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ClientID("people-registry"),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("Kafka producer configured")

	return NewPublisherWithProducer(client, cfg.Topic, log), nil
}

// NewPublisherWithProducer wraps an existing producer.
func NewPublisherWithProducer(client Producer, topic string, log zerolog.Logger) *Publisher {
	return &Publisher{client: client, topic: topic, log: log}
}

// Publish writes one event and waits for the broker acknowledgement.
func (p *Publisher) Publish(ctx context.Context, event *domain.LedgerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}

	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.LedgerID.String()),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "event_id", Value: []byte(event.ID.String())},
		},
	}

	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce ledger event: %w", err)
	}

	p.log.Debug().
		Str("event_id", event.ID.String()).
		Str("type", string(event.Type)).
		Msg("ledger event published")
	return nil
}

// Ping checks broker connectivity.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Name returns the dependency name.
func (p *Publisher) Name() string {
	return "kafka"
}

// Close releases the client.
func (p *Publisher) Close() {
	p.client.Close()
}
