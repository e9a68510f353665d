package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected is wrapped by every RejectedError.
	ErrRejected = errors.New("submission rejected")
	// ErrRunNotFound is returned for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
	// ErrNotTerminal is returned when a result is requested before the run ended.
	ErrNotTerminal = errors.New("run not terminal")
)

// RejectReason classifies why a submission was not admitted.
type RejectReason string

const (
	ReasonMalformed              RejectReason = "malformed"
	ReasonUnknownEnvironment     RejectReason = "unknown_environment"
	ReasonEnvironmentUnavailable RejectReason = "environment_unavailable"
	ReasonLimitsExceeded         RejectReason = "limits_exceeded"
	ReasonQueueFull              RejectReason = "queue_full"
	ReasonShuttingDown           RejectReason = "shutting_down"
)

// RejectedError reports a submission refused at admission. No run exists for
// a rejected submission.
type RejectedError struct {
	Reason RejectReason
	Detail string
}

func (e *RejectedError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("submission rejected: %s", e.Reason)
	}
	return fmt.Sprintf("submission rejected: %s: %s", e.Reason, e.Detail)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

func reject(reason RejectReason, format string, args ...any) *RejectedError {
	return &RejectedError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// CancelOutcome tells what a cancellation request achieved.
type CancelOutcome string

const (
	CancelOutcomeCancelled       CancelOutcome = "cancelled"
	CancelOutcomeAlreadyTerminal CancelOutcome = "already_terminal"
)
