package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Salako07/WKL/internal/app/executor"
	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/ports"
	runtimex "github.com/Salako07/WKL/internal/runtime"
)

type programFunc func(ctx context.Context, stdin string) (execution.Outcome, error)

type stubRunner struct {
	mu     sync.Mutex
	run    programFunc
	limits []execution.RunLimits
}

func (s *stubRunner) Prepare(_ context.Context, _ execution.Environment, _ execution.Submission, limits execution.RunLimits) (ports.PreparedProgram, *execution.Outcome, error) {
	s.mu.Lock()
	s.limits = append(s.limits, limits)
	s.mu.Unlock()
	return stubProgram{run: s.run}, nil, nil
}

func (s *stubRunner) Close() error { return nil }

func (s *stubRunner) preparedLimits() []execution.RunLimits {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]execution.RunLimits(nil), s.limits...)
}

type stubProgram struct {
	run programFunc
}

func (p stubProgram) Run(ctx context.Context, stdin string) (execution.Outcome, error) {
	if p.run == nil {
		return exited(0, ""), nil
	}
	return p.run(ctx, stdin)
}

func (p stubProgram) Close() error { return nil }

func exited(code int64, stdout string) execution.Outcome {
	return execution.Outcome{State: execution.SandboxExited, ExitCode: code, Stdout: stdout}
}

// blockUntilCancelled behaves like a sandbox that is killed on cancellation.
func blockUntilCancelled(ctx context.Context, _ string) (execution.Outcome, error) {
	<-ctx.Done()
	return execution.Outcome{State: execution.SandboxCancelled}, nil
}

type memoryStore struct {
	mu   sync.Mutex
	runs map[string]execution.Run
}

func newMemoryStore() *memoryStore {
	return &memoryStore{runs: make(map[string]execution.Run)}
}

func (s *memoryStore) SaveRun(_ context.Context, run execution.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *memoryStore) LoadRun(_ context.Context, id string) (execution.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return execution.Run{}, ports.ErrRunNotStored
	}
	return run, nil
}

func (s *memoryStore) Close() error { return nil }

type recordingPublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	events   []ports.RunEvent
}

func (p *recordingPublisher) PublishRunEvent(_ context.Context, event ports.RunEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) snapshot() (int, []ports.RunEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, append([]ports.RunEvent(nil), p.events...)
}

func testEnvironment(id string, status execution.EnvironmentStatus) execution.Environment {
	return execution.Environment{
		ID:         execution.EnvironmentID(id),
		Language:   "python",
		Image:      "python:3.11-slim",
		Workdir:    "/workspace",
		SourceFile: "main.py",
		RunCommand: []string{"python3", "{source}"},
		DefaultLimits: execution.RunLimits{
			TimeLimit:        2 * time.Second,
			MemoryLimitBytes: 128 << 20,
		},
		MaxLimits: execution.RunLimits{
			TimeLimit:        10 * time.Second,
			MemoryLimitBytes: 512 << 20,
		},
		Status: status,
	}
}

func newTestRegistry(t *testing.T) *runtimex.Registry {
	t.Helper()
	registry, err := runtimex.NewRegistry(
		testEnvironment("python3.11", execution.EnvironmentActive),
		testEnvironment("python2.7", execution.EnvironmentDisabled),
	)
	if err != nil {
		t.Fatalf("unexpected registry error: %v", err)
	}
	return registry
}

type harness struct {
	coord     *Coordinator
	runner    *stubRunner
	store     *memoryStore
	publisher *recordingPublisher
}

func newHarness(t *testing.T, cfg Config, slots int, run programFunc) *harness {
	t.Helper()
	runner := &stubRunner{run: run}
	store := newMemoryStore()
	publisher := &recordingPublisher{}
	if cfg.PublishBackoff == 0 {
		cfg.PublishBackoff = time.Millisecond
	}
	coord := New(cfg, newTestRegistry(t), executor.NewPool(runner, slots, nil),
		WithStore(store),
		WithPublisher(publisher),
	)
	return &harness{coord: coord, runner: runner, store: store, publisher: publisher}
}

// start runs the dispatch loop until the test ends.
func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.coord.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func submission(source string) execution.Submission {
	return execution.Submission{
		EnvironmentID: "python3.11",
		Source:        source,
	}
}

func waitTerminal(t *testing.T, c *Coordinator, runID string) execution.Run {
	t.Helper()
	done, err := c.Watch(context.Background(), runID)
	if err != nil {
		t.Fatalf("unexpected watch error: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("run %s did not finish", runID)
	}
	run, err := c.Status(context.Background(), runID)
	if err != nil {
		t.Fatalf("unexpected status error: %v", err)
	}
	return run
}

func waitState(t *testing.T, c *Coordinator, runID string, state execution.RunState) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		run, err := c.Status(context.Background(), runID)
		if err != nil {
			t.Fatalf("unexpected status error: %v", err)
		}
		if run.State == state {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached %s", runID, state)
}

func waitEvents(t *testing.T, p *recordingPublisher, n int) (int, []ports.RunEvent) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		calls, events := p.snapshot()
		if len(events) >= n {
			return calls, events
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d published events", n)
	return 0, nil
}
