package ports

import (
	"context"

	"github.com/Salako07/WKL/internal/domain/execution"
)

// PreparedProgram is a built submission ready to be executed. Every call to
// Run uses a fresh sandbox.
type PreparedProgram interface {
	Run(ctx context.Context, stdin string) (execution.Outcome, error)
	Close() error
}

// Runner prepares submissions for execution inside sandboxes.
//
// When the build phase of a compiled environment fails, Prepare returns a nil
// program together with the build outcome.
type Runner interface {
	Prepare(ctx context.Context, env execution.Environment, sub execution.Submission, limits execution.RunLimits) (PreparedProgram, *execution.Outcome, error)
	Close() error
}
