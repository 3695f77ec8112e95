// Package kafka publishes feed events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/papercomputeco/faultline/pkg/eventstream"
)

// Config configures the Kafka publisher.
type Config struct {
	Brokers []string
	Topic   string

	// BatchTimeout bounds how long messages wait for a batch to fill.
	// Defaults to 100ms.
	BatchTimeout time.Duration

	// OnDeliveryFailure is called from the writer's goroutine with the size
	// of each batch the brokers did not accept.
	OnDeliveryFailure func(messages int, err error)
}

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes one message per feed event. Messages are keyed by fault
// strand so occurrences of one strand stay ordered within a partition.
// Writes are asynchronous: PublishFeedEntry only enqueues, and delivery
// failures are reported through Config.OnDeliveryFailure.
type Publisher struct {
	writer MessageWriter
	topic  string
}

// NewPublisher creates a Publisher writing to cfg's brokers.
func NewPublisher(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}

	return NewPublisherWithWriter(newWriter(cfg), cfg.Topic), nil
}

func newWriter(cfg Config) *kafka.Writer {
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 100 * time.Millisecond
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           batchTimeout,
		Async:                  true,
		AllowAutoTopicCreation: true,
	}

	if onFailure := cfg.OnDeliveryFailure; onFailure != nil {
		w.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				onFailure(len(messages), err)
			}
		}
	}

	return w
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w MessageWriter, topic string) *Publisher {
	return &Publisher{writer: w, topic: topic}
}

// PublishFeedEntry marshals event to JSON and writes it.
func (p *Publisher) PublishFeedEntry(ctx context.Context, event *eventstream.FeedEntryEvent) error {
	if event == nil {
		return eventstream.ErrNilFeedEvent
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}

	msg := kafka.Message{
		Value: payload,
		Time:  event.EmittedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "schema_version", Value: fmt.Appendf(nil, "%d", event.SchemaVersion)},
		},
	}
	if event.Entry != nil {
		msg.Key = []byte(event.Entry.FaultStrandID.String())
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write feed event to %s: %w", p.topic, err)
	}

	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
