package ports

import (
	"context"
	"errors"

	"github.com/Salako07/WKL/internal/domain/execution"
)

// ErrRunNotStored is returned by a RunStore that has no record of a run.
var ErrRunNotStored = errors.New("run not stored")

// RunStore durably records terminal runs.
type RunStore interface {
	SaveRun(ctx context.Context, run execution.Run) error
	LoadRun(ctx context.Context, id string) (execution.Run, error)
	Close() error
}
