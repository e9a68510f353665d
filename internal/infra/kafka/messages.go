package kafka

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/infra/wire"
	"github.com/Salako07/WKL/internal/ports"
)

const (
	messageTypeSubmission = "submission"
	messageTypeDone       = "done"
)

type submissionEnvelope struct {
	Type string `json:"type,omitempty"`
	wire.Submission
}

type runEventEnvelope struct {
	RunID            string       `json:"run_id,omitempty"`
	CorrelationToken string       `json:"correlation_token,omitempty"`
	Owner            string       `json:"owner,omitempty"`
	State            string       `json:"state,omitempty"`
	Rejection        string       `json:"rejection,omitempty"`
	Result           *wire.Result `json:"result,omitempty"`
	Timestamp        time.Time    `json:"timestamp"`
}

func decodeSubmissionMessage(msg kafkago.Message) (execution.Submission, error) {
	var envelope submissionEnvelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return execution.Submission{}, &ports.MalformedSubmissionError{
			CorrelationToken: string(msg.Key),
			Err:              fmt.Errorf("decode message: %w", err),
		}
	}

	msgType := envelope.Type
	if msgType == "" {
		msgType = messageTypeSubmission
	}

	switch msgType {
	case messageTypeSubmission:
		return envelope.toSubmission(msg)
	case messageTypeDone:
		return execution.Submission{}, io.EOF
	default:
		return execution.Submission{}, &ports.MalformedSubmissionError{
			CorrelationToken: envelope.correlationToken(msg),
			Err:              fmt.Errorf("unknown message type %q", msgType),
		}
	}
}

func (e submissionEnvelope) correlationToken(msg kafkago.Message) string {
	if e.CorrelationToken != "" {
		return e.CorrelationToken
	}
	return string(msg.Key)
}

func (e submissionEnvelope) toSubmission(msg kafkago.Message) (execution.Submission, error) {
	if e.Source == "" {
		return execution.Submission{}, &ports.MalformedSubmissionError{
			CorrelationToken: e.correlationToken(msg),
			Err:              fmt.Errorf("submission message missing source"),
		}
	}
	if e.Environment == "" {
		return execution.Submission{}, &ports.MalformedSubmissionError{
			CorrelationToken: e.correlationToken(msg),
			Err:              fmt.Errorf("submission message missing environment"),
		}
	}

	sub := e.ToSubmission()
	if sub.ID == "" {
		sub.ID = string(msg.Key)
	}
	if sub.ID == "" {
		sub.ID = fmt.Sprintf("%s:%d", msg.Topic, msg.Offset)
	}
	sub.CorrelationToken = e.correlationToken(msg)
	if sub.SubmittedAt.IsZero() && !msg.Time.IsZero() {
		sub.SubmittedAt = msg.Time
	}
	return sub, nil
}

func encodeRunEvent(event ports.RunEvent) ([]byte, error) {
	payload, err := json.Marshal(makeRunEventEnvelope(event))
	if err != nil {
		return nil, fmt.Errorf("marshal run event: %w", err)
	}
	return payload, nil
}

func makeRunEventEnvelope(event ports.RunEvent) runEventEnvelope {
	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	return runEventEnvelope{
		RunID:            event.RunID,
		CorrelationToken: event.CorrelationToken,
		Owner:            event.Owner,
		State:            string(event.State),
		Rejection:        event.Rejection,
		Result:           wire.FromResult(event.Result.Redacted()),
		Timestamp:        timestamp,
	}
}
