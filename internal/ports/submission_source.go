package ports

import (
	"context"
	"fmt"

	"github.com/Salako07/WKL/internal/domain/execution"
)

// SubmissionSource yields submissions from an external intake. It returns
// io.EOF once the source is exhausted.
type SubmissionSource interface {
	NextSubmission(ctx context.Context) (execution.Submission, error)
}

// MalformedSubmissionError reports an intake message that could not be
// decoded. The source stays usable after returning it.
type MalformedSubmissionError struct {
	CorrelationToken string
	// Source locates the message within its intake, when known.
	Source string
	Err    error
}

func (e *MalformedSubmissionError) Error() string {
	return fmt.Sprintf("malformed submission: %v", e.Err)
}

func (e *MalformedSubmissionError) Unwrap() error {
	return e.Err
}
