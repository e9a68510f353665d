package intake

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/ports"
)

// StaticSource implements ports.SubmissionSource over an in-memory list.
type StaticSource struct {
	mu          sync.Mutex
	submissions []execution.Submission
	index       int
}

var _ ports.SubmissionSource = (*StaticSource)(nil)

// NewStaticSource builds a source that yields subs in order, then io.EOF.
func NewStaticSource(subs ...execution.Submission) *StaticSource {
	s := &StaticSource{}
	for _, sub := range subs {
		s.Add(sub)
	}
	return s
}

// NextSubmission returns the next submission or io.EOF when exhausted.
func (s *StaticSource) NextSubmission(ctx context.Context) (execution.Submission, error) {
	select {
	case <-ctx.Done():
		return execution.Submission{}, ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index >= len(s.submissions) {
		return execution.Submission{}, io.EOF
	}

	sub := s.submissions[s.index]
	s.index++

	return sub, nil
}

// Add appends a submission, assigning an ID when missing.
func (s *StaticSource) Add(sub execution.Submission) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.submissions = append(s.submissions, sub)
}
