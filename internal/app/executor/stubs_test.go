package executor

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/ports"
)

type concurrencyTracker struct {
	mu        sync.Mutex
	active    int
	maxActive int
}

func (c *concurrencyTracker) enter() func() {
	c.mu.Lock()
	c.active++
	if c.active > c.maxActive {
		c.maxActive = c.active
	}
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.active--
		c.mu.Unlock()
	}
}

func (c *concurrencyTracker) max() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxActive
}

type stubRunner struct {
	prepareFn func(ctx context.Context, env execution.Environment, sub execution.Submission, limits execution.RunLimits) (ports.PreparedProgram, *execution.Outcome, error)
	closeFn   func() error
}

func (s *stubRunner) Prepare(ctx context.Context, env execution.Environment, sub execution.Submission, limits execution.RunLimits) (ports.PreparedProgram, *execution.Outcome, error) {
	if s.prepareFn != nil {
		return s.prepareFn(ctx, env, sub, limits)
	}
	return nil, nil, nil
}

func (s *stubRunner) Close() error {
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

func preparedRunner(prepared ports.PreparedProgram) *stubRunner {
	return &stubRunner{
		prepareFn: func(context.Context, execution.Environment, execution.Submission, execution.RunLimits) (ports.PreparedProgram, *execution.Outcome, error) {
			return prepared, nil, nil
		},
	}
}

type stubPreparedProgram struct {
	runFn   func(ctx context.Context, stdin string) (execution.Outcome, error)
	closeFn func() error

	runs   []preparedRun
	mu     sync.Mutex
	calls  int
	stdins []string
	closed bool
}

type preparedRun struct {
	outcome execution.Outcome
	err     error
}

func (s *stubPreparedProgram) Run(ctx context.Context, stdin string) (execution.Outcome, error) {
	if s.runFn != nil {
		return s.runFn(ctx, stdin)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stdins = append(s.stdins, stdin)
	if s.calls >= len(s.runs) {
		return execution.Outcome{}, errors.New("unexpected run invocation")
	}
	call := s.runs[s.calls]
	s.calls++
	return call.outcome, call.err
}

func (s *stubPreparedProgram) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

func exited(code int64, stdout string) preparedRun {
	return preparedRun{outcome: execution.Outcome{State: execution.SandboxExited, ExitCode: code, Stdout: stdout}}
}

type sequenceJobSource struct {
	jobs  []Job
	index int
	mu    sync.Mutex
}

func (p *sequenceJobSource) Next(ctx context.Context) (Job, error) {
	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.index >= len(p.jobs) {
		return Job{}, io.EOF
	}

	job := p.jobs[p.index]
	p.index++
	return job, nil
}

type errorJobSource struct {
	err error
}

func (p errorJobSource) Next(ctx context.Context) (Job, error) {
	return Job{}, p.err
}
