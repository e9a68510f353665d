package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/Salako07/WKL/internal/app/coordinator"
	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/ports"
)

// Submitter admits submissions.
type Submitter interface {
	Submit(ctx context.Context, sub execution.Submission) (string, error)
}

// Service moves submissions from an external source into the engine and
// reports rejections back through the publisher.
type Service struct {
	submitter Submitter
	publisher ports.RunEventPublisher
	log       *zerolog.Logger
	now       func() time.Time

	// OnAdmitted, when set, is called for every admitted submission.
	OnAdmitted func(sub execution.Submission, runID string)
}

// NewService constructs an intake Service. publisher may be nil.
func NewService(submitter Submitter, publisher ports.RunEventPublisher, log *zerolog.Logger) *Service {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Service{
		submitter: submitter,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// Consume pulls submissions until the source is exhausted or ctx ends.
// Malformed and rejected submissions do not stop the loop.
func (s *Service) Consume(ctx context.Context, source ports.SubmissionSource) error {
	for {
		sub, err := source.NextSubmission(ctx)
		if err != nil {
			var malformed *ports.MalformedSubmissionError
			switch {
			case errors.Is(err, io.EOF),
				errors.Is(err, context.Canceled),
				errors.Is(err, context.DeadlineExceeded):
				return nil
			case errors.As(err, &malformed):
				s.log.Warn().
					Err(malformed.Err).
					Str("correlation_token", malformed.CorrelationToken).
					Str("source", malformed.Source).
					Msg("dropping malformed submission")
				s.reject(ctx, ports.RunEvent{
					CorrelationToken: malformed.CorrelationToken,
					Rejection:        string(coordinator.ReasonMalformed),
				})
				continue
			default:
				return fmt.Errorf("get next submission: %w", err)
			}
		}

		runID, err := s.submitter.Submit(ctx, sub)
		if err != nil {
			var rejected *coordinator.RejectedError
			if !errors.As(err, &rejected) {
				return fmt.Errorf("submit %s: %w", sub.ID, err)
			}
			s.log.Info().
				Str("submission_id", sub.ID).
				Str("reason", string(rejected.Reason)).
				Str("detail", rejected.Detail).
				Msg("submission rejected")
			s.reject(ctx, ports.RunEvent{
				CorrelationToken: sub.CorrelationToken,
				Owner:            sub.Owner,
				Rejection:        string(rejected.Reason),
			})
			continue
		}

		s.log.Debug().Str("submission_id", sub.ID).Str("run_id", runID).Msg("submission admitted")
		if s.OnAdmitted != nil {
			s.OnAdmitted(sub, runID)
		}
	}
}

func (s *Service) reject(ctx context.Context, event ports.RunEvent) {
	if s.publisher == nil {
		return
	}
	event.Timestamp = s.now().UTC()
	if err := s.publisher.PublishRunEvent(ctx, event); err != nil {
		s.log.Error().Err(err).Str("correlation_token", event.CorrelationToken).Msg("publish rejection")
	}
}
