package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/ports"
)

const (
	defaultGroupID  = "codexec"
	defaultMinBytes = 1
	defaultMaxBytes = 10 << 20
	defaultMaxWait  = time.Second
)

// Config describes the submissions topic and the consumer group reading it.
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration
	// CommitInterval batches offset commits. Zero commits every message
	// synchronously.
	CommitInterval time.Duration
}

func (c Config) readerConfig() (kafkago.ReaderConfig, error) {
	if len(c.Brokers) == 0 {
		return kafkago.ReaderConfig{}, fmt.Errorf("at least one broker must be provided")
	}
	if c.Topic == "" {
		return kafkago.ReaderConfig{}, fmt.Errorf("topic must be provided")
	}
	rc := kafkago.ReaderConfig{
		Brokers:        c.Brokers,
		Topic:          c.Topic,
		GroupID:        c.GroupID,
		MinBytes:       c.MinBytes,
		MaxBytes:       c.MaxBytes,
		MaxWait:        c.MaxWait,
		CommitInterval: c.CommitInterval,
	}
	if rc.GroupID == "" {
		rc.GroupID = defaultGroupID
	}
	if rc.MinBytes <= 0 {
		rc.MinBytes = defaultMinBytes
	}
	if rc.MaxBytes <= 0 {
		rc.MaxBytes = defaultMaxBytes
	}
	if rc.MaxWait <= 0 {
		rc.MaxWait = defaultMaxWait
	}
	return rc, nil
}

var _ ports.SubmissionSource = (*Consumer)(nil)

// Consumer reads submissions from a Kafka topic. A "done" control message
// exhausts it for good.
type Consumer struct {
	reader    messageReader
	exhausted atomic.Bool
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// NewConsumer joins the configured consumer group.
func NewConsumer(cfg Config) (*Consumer, error) {
	rc, err := cfg.readerConfig()
	if err != nil {
		return nil, err
	}
	return newConsumer(kafkago.NewReader(rc)), nil
}

func newConsumer(reader messageReader) *Consumer {
	return &Consumer{reader: reader}
}

// NextSubmission blocks until the next submission message is available or the
// context is cancelled. Undecodable messages yield a
// *ports.MalformedSubmissionError naming the message position; their offset
// is committed, so they are not redelivered.
func (c *Consumer) NextSubmission(ctx context.Context) (execution.Submission, error) {
	if c.exhausted.Load() {
		return execution.Submission{}, io.EOF
	}

	msg, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return execution.Submission{}, err
	}

	sub, err := decodeSubmissionMessage(msg)
	if err != nil {
		var malformed *ports.MalformedSubmissionError
		switch {
		case errors.As(err, &malformed):
			malformed.Source = messagePosition(msg)
		case errors.Is(err, io.EOF):
			c.exhausted.Store(true)
		}
		return execution.Submission{}, err
	}
	return sub, nil
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

func messagePosition(msg kafkago.Message) string {
	return fmt.Sprintf("%s/%d@%d", msg.Topic, msg.Partition, msg.Offset)
}
