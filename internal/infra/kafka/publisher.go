package kafka

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Salako07/WKL/internal/ports"
)

const (
	defaultBatchTimeout = 10 * time.Millisecond

	headerEventKind        = "event-kind"
	headerCorrelationToken = "correlation-token"

	eventKindSettled  = "settled"
	eventKindRejected = "rejected"
)

var _ ports.RunEventPublisher = (*Publisher)(nil)

// PublisherConfig configures the run events topic.
type PublisherConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// Publisher writes run events keyed by run id, so every event of one run
// lands on the same partition. Rejections have no run and are keyed by
// correlation token instead.
type Publisher struct {
	writer messageWriter
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewPublisher constructs a Publisher using the supplied configuration.
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker must be provided")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic must be provided")
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = defaultBatchTimeout
	}

	return newPublisher(&kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		AllowAutoTopicCreation: true,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           cfg.BatchTimeout,
	}), nil
}

func newPublisher(writer messageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// PublishRunEvent writes one event. Hidden test data is redacted before it
// leaves the process.
func (p *Publisher) PublishRunEvent(ctx context.Context, event ports.RunEvent) error {
	if p.writer == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	payload, err := encodeRunEvent(event)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, runEventMessage(event, payload)); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func runEventMessage(event ports.RunEvent, payload []byte) kafkago.Message {
	key, kind := event.RunID, eventKindSettled
	if event.Rejection != "" {
		kind = eventKindRejected
	}
	if key == "" {
		key = event.CorrelationToken
	}

	headers := []kafkago.Header{{Key: headerEventKind, Value: []byte(kind)}}
	if event.CorrelationToken != "" {
		headers = append(headers, kafkago.Header{Key: headerCorrelationToken, Value: []byte(event.CorrelationToken)})
	}

	return kafkago.Message{
		Key:     []byte(key),
		Value:   payload,
		Headers: headers,
		Time:    time.Now(),
	}
}

// Close flushes pending writes and releases the writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
