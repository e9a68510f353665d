package ports

import (
	"context"
	"time"

	"github.com/Salako07/WKL/internal/domain/execution"
)

// RunEvent notifies downstream consumers about a run that reached a terminal
// state, or a submission that was rejected at admission.
type RunEvent struct {
	RunID            string
	CorrelationToken string
	Owner            string
	State            execution.RunState
	Result           *execution.Result
	Rejection        string
	Timestamp        time.Time
}

// RunEventPublisher publishes run events. Delivery is at-least-once and
// consumers de-duplicate by run id.
type RunEventPublisher interface {
	PublishRunEvent(ctx context.Context, event RunEvent) error
	Close() error
}
