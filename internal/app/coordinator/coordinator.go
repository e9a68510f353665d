package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Salako07/WKL/internal/app/executor"
	"github.com/Salako07/WKL/internal/app/queue"
	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/infra/metrics"
	"github.com/Salako07/WKL/internal/infra/wire"
	"github.com/Salako07/WKL/internal/ports"
	runtimex "github.com/Salako07/WKL/internal/runtime"
)

const (
	defaultQueueCapacity  = 256
	defaultRetention      = 10 * time.Minute
	defaultMaxSourceBytes = 256 << 10
	defaultMaxTests       = 100
	defaultPublishRetries = 3
	defaultPublishBackoff = 200 * time.Millisecond
	persistTimeout        = 10 * time.Second
)

// EnvironmentResolver looks up environments by id.
type EnvironmentResolver interface {
	Resolve(id execution.EnvironmentID) (execution.Environment, error)
}

// Config tunes admission and retention.
type Config struct {
	QueueCapacity int
	// Retention is how long terminal runs stay in memory.
	Retention time.Duration
	// DefaultLimits apply where neither the environment nor the caller set a value.
	DefaultLimits execution.RunLimits
	// MaxLimits cap every environment that leaves a ceiling unset.
	MaxLimits      execution.RunLimits
	MaxSourceBytes int
	MaxTests       int
	PublishRetries int
	PublishBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity
	}
	if c.Retention <= 0 {
		c.Retention = defaultRetention
	}
	if c.MaxSourceBytes <= 0 {
		c.MaxSourceBytes = defaultMaxSourceBytes
	}
	if c.MaxTests <= 0 {
		c.MaxTests = defaultMaxTests
	}
	if c.PublishRetries <= 0 {
		c.PublishRetries = defaultPublishRetries
	}
	if c.PublishBackoff <= 0 {
		c.PublishBackoff = defaultPublishBackoff
	}
	return c
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithStore persists terminal runs.
func WithStore(store ports.RunStore) Option {
	return func(c *Coordinator) { c.store = store }
}

// WithPublisher announces terminal runs.
func WithPublisher(publisher ports.RunEventPublisher) Option {
	return func(c *Coordinator) { c.publisher = publisher }
}

// WithLogger sets the logger.
func WithLogger(log *zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

type runRecord struct {
	run    execution.Run
	job    executor.Job
	cancel context.CancelFunc
	done   chan struct{}

	cancelRequested bool
}

// Coordinator admits submissions, tracks every run through its lifecycle and
// delivers terminal results.
type Coordinator struct {
	cfg       Config
	registry  EnvironmentResolver
	queue     *queue.Queue
	pool      *executor.Pool
	store     ports.RunStore
	publisher ports.RunEventPublisher
	log       *zerolog.Logger
	now       func() time.Time

	mu      sync.Mutex
	runs    map[string]*runRecord
	closing bool

	started atomic.Bool
	served  chan struct{}
}

// New constructs a Coordinator. Call Run to start dispatching.
func New(cfg Config, registry EnvironmentResolver, pool *executor.Pool, opts ...Option) *Coordinator {
	cfg = cfg.withDefaults()
	c := &Coordinator{
		cfg:      cfg,
		registry: registry,
		queue:    queue.New(cfg.QueueCapacity),
		pool:     pool,
		now:      time.Now,
		runs:     make(map[string]*runRecord),
		served:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		nop := zerolog.Nop()
		c.log = &nop
	}
	return c
}

// Run dispatches queued submissions to the worker pool until ctx is
// cancelled or Shutdown drained the queue.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("coordinator already running")
	}
	defer close(c.served)
	return c.pool.Serve(ctx, c, c.finish)
}

// Submit validates and admits a submission. It never blocks on a full queue.
func (c *Coordinator) Submit(ctx context.Context, sub execution.Submission) (string, error) {
	job, err := c.admit(sub)
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) {
			metrics.SubmissionsTotal.WithLabelValues(string(rejected.Reason)).Inc()
		}
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	job.Ctx = runCtx
	rec := &runRecord{
		run: execution.Run{
			ID:         job.RunID,
			Submission: job.Submission,
		},
		job:    job,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if err := rec.run.Advance(execution.StateQueued, c.now()); err != nil {
		cancel()
		return "", err
	}

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		cancel()
		metrics.SubmissionsTotal.WithLabelValues(string(ReasonShuttingDown)).Inc()
		return "", reject(ReasonShuttingDown, "engine is shutting down")
	}
	c.runs[job.RunID] = rec
	err = c.queue.Push(queue.Entry{RunID: job.RunID, Submission: job.Submission})
	if err != nil {
		delete(c.runs, job.RunID)
	}
	c.mu.Unlock()

	if err != nil {
		cancel()
		reason := ReasonQueueFull
		if errors.Is(err, queue.ErrClosed) {
			reason = ReasonShuttingDown
		}
		metrics.SubmissionsTotal.WithLabelValues(string(reason)).Inc()
		return "", reject(reason, "%v", err)
	}

	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
	c.log.Debug().
		Str("run_id", job.RunID).
		Str("environment", string(job.Env.ID)).
		Str("priority", job.Submission.Priority.String()).
		Msg("submission admitted")
	return job.RunID, nil
}

func (c *Coordinator) admit(sub execution.Submission) (executor.Job, error) {
	if sub.EnvironmentID == "" {
		return executor.Job{}, reject(ReasonMalformed, "environment is required")
	}
	if sub.Source == "" {
		return executor.Job{}, reject(ReasonMalformed, "source is required")
	}
	if len(sub.Source) > c.cfg.MaxSourceBytes {
		return executor.Job{}, reject(ReasonMalformed, "source exceeds %d bytes", c.cfg.MaxSourceBytes)
	}
	if len(sub.Tests) > c.cfg.MaxTests {
		return executor.Job{}, reject(ReasonMalformed, "at most %d tests are allowed", c.cfg.MaxTests)
	}
	if sub.Limits.Normalize() != sub.Limits {
		return executor.Job{}, reject(ReasonMalformed, "limits must not be negative")
	}

	tests := make([]execution.TestCase, len(sub.Tests))
	for idx, test := range sub.Tests {
		switch test.Mode {
		case "", execution.CompareExact, execution.CompareWhitespace, execution.CompareNumeric:
		default:
			return executor.Job{}, reject(ReasonMalformed, "test %d: unknown compare mode %q", idx+1, test.Mode)
		}
		if test.Mode == "" {
			test.Mode = execution.CompareWhitespace
		}
		if test.Number <= 0 {
			test.Number = idx + 1
		}
		if test.Points <= 0 {
			test.Points = 1
		}
		tests[idx] = test
	}
	sub.Tests = tests

	env, err := c.registry.Resolve(sub.EnvironmentID)
	switch {
	case errors.Is(err, runtimex.ErrEnvironmentUnavailable):
		return executor.Job{}, reject(ReasonEnvironmentUnavailable, "%v", err)
	case err != nil:
		return executor.Job{}, reject(ReasonUnknownEnvironment, "%v", err)
	}

	ceiling := c.cfg.MaxLimits.Merge(env.MaxLimits)
	if field := sub.Limits.Exceeds(ceiling); field != "" {
		return executor.Job{}, reject(ReasonLimitsExceeded, "%s above the %s maximum", field, env.ID)
	}
	limits := c.cfg.DefaultLimits.Merge(env.DefaultLimits).Merge(sub.Limits)
	if field := limits.Exceeds(ceiling); field != "" {
		return executor.Job{}, reject(ReasonLimitsExceeded, "default %s above the %s maximum", field, env.ID)
	}

	runID := uuid.NewString()
	if sub.ID == "" {
		sub.ID = runID
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = c.now()
	}

	return executor.Job{
		RunID:      runID,
		Env:        env,
		Submission: sub,
		Limits:     limits,
	}, nil
}

// Next hands the highest-priority queued run to a free worker slot.
func (c *Coordinator) Next(ctx context.Context) (executor.Job, error) {
	for {
		entry, err := c.queue.Pop(ctx)
		if errors.Is(err, queue.ErrClosed) {
			return executor.Job{}, executor.ErrSourceClosed
		}
		if err != nil {
			return executor.Job{}, err
		}

		c.mu.Lock()
		rec, ok := c.runs[entry.RunID]
		if !ok || rec.run.State != execution.StateQueued {
			c.mu.Unlock()
			continue
		}
		if err := rec.run.Advance(execution.StateRunning, c.now()); err != nil {
			c.mu.Unlock()
			return executor.Job{}, err
		}
		job := rec.job
		c.mu.Unlock()

		return job, nil
	}
}

func (c *Coordinator) finish(job executor.Job, result *execution.Result) {
	c.mu.Lock()
	rec, ok := c.runs[job.RunID]
	if !ok {
		c.mu.Unlock()
		return
	}
	if rec.cancelRequested && result.State != execution.StateCancelled {
		result = cancelledResult(result, "cancelled by request")
	}
	settled := c.settleLocked(rec, result)
	c.mu.Unlock()

	if settled {
		c.deliver(rec)
	}
}

// settleLocked moves the run to its terminal state. It reports false when the
// run had already been settled.
func (c *Coordinator) settleLocked(rec *runRecord, result *execution.Result) bool {
	if rec.run.State.Terminal() {
		return false
	}
	if err := rec.run.Advance(result.State, c.now()); err != nil {
		c.log.Error().Err(err).Str("run_id", rec.run.ID).Msg("settle run")
		return false
	}
	// Kept in persisted form so Result answers the same after eviction.
	rec.run.Result = wire.FromResult(result).ToResult()
	rec.cancel()

	metrics.RunsTotal.WithLabelValues(string(rec.job.Env.ID), string(result.State)).Inc()
	return true
}

// deliver persists a settled run, releases its watchers and publishes it,
// then schedules its eviction.
func (c *Coordinator) deliver(rec *runRecord) {
	c.mu.Lock()
	run := rec.run.Snapshot()
	c.mu.Unlock()

	log := c.log.With().Str("run_id", run.ID).Str("state", string(run.State)).Logger()

	if c.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := c.store.SaveRun(ctx, run); err != nil {
			log.Error().Err(err).Msg("persist run")
		}
		cancel()
	}
	close(rec.done)

	if c.publisher != nil {
		event := ports.RunEvent{
			RunID:            run.ID,
			CorrelationToken: run.Submission.CorrelationToken,
			Owner:            run.Submission.Owner,
			State:            run.State,
			Result:           run.Result.Redacted(),
			Timestamp:        c.now().UTC(),
		}
		if err := c.publish(event); err != nil {
			metrics.EventPublishFailures.Inc()
			log.Error().Err(err).Msg("publish run event")
		}
	}

	log.Info().Msg("run settled")

	time.AfterFunc(c.cfg.Retention, func() { c.evict(run.ID) })
}

func (c *Coordinator) publish(event ports.RunEvent) error {
	backoff := c.cfg.PublishBackoff
	var err error
	for attempt := 0; attempt < c.cfg.PublishRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err = c.publisher.PublishRunEvent(ctx, event)
		cancel()
		if err == nil {
			return nil
		}
	}
	return fmt.Errorf("after %d attempts: %w", c.cfg.PublishRetries, err)
}

func (c *Coordinator) evict(runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.runs[runID]; ok && rec.run.State.Terminal() {
		delete(c.runs, runID)
	}
}

// Status returns a snapshot of the run.
func (c *Coordinator) Status(ctx context.Context, runID string) (execution.Run, error) {
	c.mu.Lock()
	rec, ok := c.runs[runID]
	if ok {
		run := rec.run.Snapshot()
		c.mu.Unlock()
		return run, nil
	}
	c.mu.Unlock()

	return c.loadStored(ctx, runID)
}

func (c *Coordinator) loadStored(ctx context.Context, runID string) (execution.Run, error) {
	if c.store == nil {
		return execution.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run, err := c.store.LoadRun(ctx, runID)
	if errors.Is(err, ports.ErrRunNotStored) {
		return execution.Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return execution.Run{}, fmt.Errorf("load run: %w", err)
	}
	return run, nil
}

// Result returns the terminal result of a run. Repeated calls return equal
// copies.
func (c *Coordinator) Result(ctx context.Context, runID string) (*execution.Result, error) {
	run, err := c.Status(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.State.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotTerminal, runID, run.State)
	}
	return run.Result, nil
}

// Cancel stops a run. Queued runs never get a sandbox; running ones are
// killed and settle as cancelled once their sandbox is gone.
func (c *Coordinator) Cancel(ctx context.Context, runID string) (CancelOutcome, error) {
	c.mu.Lock()
	rec, ok := c.runs[runID]
	if !ok {
		c.mu.Unlock()
		if _, err := c.loadStored(ctx, runID); err != nil {
			return "", err
		}
		return CancelOutcomeAlreadyTerminal, nil
	}

	switch {
	case rec.run.State.Terminal():
		c.mu.Unlock()
		return CancelOutcomeAlreadyTerminal, nil
	case rec.run.State == execution.StateQueued:
		c.queue.Remove(runID)
		settled := c.settleLocked(rec, cancelledResult(nil, "cancelled before execution"))
		c.mu.Unlock()
		if settled {
			c.deliver(rec)
		}
		return CancelOutcomeCancelled, nil
	default:
		rec.cancelRequested = true
		rec.cancel()
		c.mu.Unlock()
		c.log.Info().Str("run_id", runID).Msg("cancelling running submission")
		return CancelOutcomeCancelled, nil
	}
}

// Watch returns a channel closed once the run is terminal.
func (c *Coordinator) Watch(ctx context.Context, runID string) (<-chan struct{}, error) {
	c.mu.Lock()
	rec, ok := c.runs[runID]
	c.mu.Unlock()
	if ok {
		return rec.done, nil
	}

	if _, err := c.loadStored(ctx, runID); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	close(done)
	return done, nil
}

// QueueLength returns the number of runs waiting for a slot.
func (c *Coordinator) QueueLength() int {
	return c.queue.Len()
}

// Shutdown stops admission and lets queued and running submissions finish.
// When ctx ends first, every remaining run is cancelled.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	c.queue.Close()

	if !c.started.Load() {
		c.cancelPending()
		return nil
	}

	select {
	case <-c.served:
		return nil
	case <-ctx.Done():
	}

	c.cancelPending()
	<-c.served
	return ctx.Err()
}

// cancelPending settles every queued run as cancelled and kills every
// running one.
func (c *Coordinator) cancelPending() {
	c.mu.Lock()
	var pending []*runRecord
	for _, rec := range c.runs {
		if rec.run.State.Terminal() {
			continue
		}
		if rec.run.State == execution.StateQueued {
			c.queue.Remove(rec.run.ID)
			if c.settleLocked(rec, cancelledResult(nil, "engine shutting down")) {
				pending = append(pending, rec)
			}
			continue
		}
		rec.cancelRequested = true
		rec.cancel()
	}
	c.mu.Unlock()

	for _, rec := range pending {
		c.deliver(rec)
	}
}

func cancelledResult(from *execution.Result, detail string) *execution.Result {
	result := from.Clone()
	if result == nil {
		result = &execution.Result{}
	}
	result.State = execution.StateCancelled
	result.FailureKind = execution.FailureCancelled
	result.ExitCode = nil
	result.Detail = detail
	if result.Verdict != nil {
		result.Verdict.Kind = execution.VerdictErrored
	}
	return result
}
