package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/infra/metrics"
	"github.com/Salako07/WKL/internal/ports"
)

// ErrSourceClosed signals that a JobSource will not hand out more jobs.
var ErrSourceClosed = errors.New("job source closed")

// JobSource hands out admitted jobs. Next blocks until a job is available.
type JobSource interface {
	Next(ctx context.Context) (Job, error)
}

// Pool runs jobs on a fixed number of worker slots.
type Pool struct {
	runner  *suiteRunner
	runtime ports.Runner
	slots   int
	log     *zerolog.Logger
}

// NewPool constructs a Pool with the provided runtime dependency.
func NewPool(runtime ports.Runner, slots int, log *zerolog.Logger) *Pool {
	if slots <= 0 {
		slots = 1
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Pool{
		runner:  newSuiteRunner(runtime),
		runtime: runtime,
		slots:   slots,
		log:     log,
	}
}

// Slots returns the number of worker slots.
func (p *Pool) Slots() int {
	return p.slots
}

// Serve pulls jobs from source and runs them with bounded parallelism.
//
// A slot is acquired before the next job is requested, so priority is only
// decided at the moment a slot frees up. Serve keeps consuming until ctx is
// cancelled or the source is exhausted, then waits for running jobs.
//
// onResult is invoked once per job with its terminal result, after the
// job's sandboxes were destroyed and its slot was released. Serve waits for
// pending onResult calls before returning.
func (p *Pool) Serve(ctx context.Context, source JobSource, onResult func(Job, *execution.Result)) error {
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.slots)

	finish := func(err error) error {
		wg.Wait()
		return err
	}

	for {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return finish(nil)
		}

		job, err := source.Next(ctx)
		if err != nil {
			<-sem
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, io.EOF) || errors.Is(err, ErrSourceClosed) {
				return finish(nil)
			}
			return finish(fmt.Errorf("get next job: %w", err))
		}

		wg.Add(1)
		metrics.BusySlots.Inc()
		go func(job Job) {
			defer wg.Done()

			result := p.Execute(job)
			metrics.BusySlots.Dec()
			<-sem

			if onResult != nil {
				onResult(job, result)
			}
		}(job)
	}
}

// Execute runs a single job in the calling goroutine.
func (p *Pool) Execute(job Job) *execution.Result {
	ctx := job.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	log := p.log.With().
		Str("run_id", job.RunID).
		Str("environment", string(job.Env.ID)).
		Logger()
	log.Debug().Msg("run started")

	start := time.Now()
	result := p.runner.Run(ctx, job)
	elapsed := time.Since(start)

	if result.FailureKind == execution.FailureSystemError {
		log.Error().Str("detail", result.Detail).Msg("run failed in sandbox infrastructure")
	}

	env := string(job.Env.ID)
	metrics.RunDuration.WithLabelValues(env, "total").Observe(float64(elapsed.Milliseconds()))
	if result.PeakMemoryBytes > 0 {
		metrics.PeakMemory.WithLabelValues(env).Observe(float64(result.PeakMemoryBytes / 1024))
	}

	log.Debug().
		Str("state", string(result.State)).
		Dur("elapsed", elapsed).
		Msg("run finished")
	return result
}

// Close releases any resources owned by the underlying runtime.
func (p *Pool) Close() error {
	return p.runtime.Close()
}
