package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"signal_bridge/internal/event"
	"signal_bridge/internal/infra"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// envelope wraps an event with its type so consumers can dispatch.
type envelope struct {
	Type  event.Type  `json:"type"`
	Event event.Event `json:"event"`
}

// Publisher writes order events to a Kafka topic, keyed by order id so that
// events of the same order land on the same partition.
//
// The writer is async so a slow broker never stalls the recorder. Delivery
// failures surface through onCompletion, not through Publish.
type Publisher struct {
	writer  messageWriter
	topic   string
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a publisher for brokers/topic. metrics and logger may be nil.
func NewPublisher(brokers []string, topic string, metrics *infra.Metrics, logger *slog.Logger) *Publisher {
	p := newPublisherWithWriter(nil, topic, metrics, logger)
	p.writer = &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		Async:                  true,
		Completion:             p.onCompletion,
	}
	return p
}

func newPublisherWithWriter(w messageWriter, topic string, metrics *infra.Metrics, logger *slog.Logger) *Publisher {
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{writer: w, topic: topic, metrics: metrics, logger: logger}
}

// onCompletion is called by the async writer once per delivered batch.
func (p *Publisher) onCompletion(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	p.metrics.RecordPublishErrors(len(messages))
	p.logger.Warn("Event publish failed",
		slog.String("topic", p.topic), slog.Int("messages", len(messages)), slog.Any("error", err))
}

// Publish encodes and writes one event.
func (p *Publisher) Publish(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(envelope{
		Type:  ev.GetType(),
		Event: ev,
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", ev.GetType(), err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.OrderKey(), 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.GetType())},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
