package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/Salako07/WKL/internal/domain/execution"
	"github.com/Salako07/WKL/internal/ports"
)

// Job is a submission admitted for execution together with the resolved
// environment and limits.
type Job struct {
	// Ctx is cancelled when the run is cancelled.
	Ctx        context.Context
	RunID      string
	Env        execution.Environment
	Submission execution.Submission
	Limits     execution.RunLimits
}

type suiteRunner struct {
	runtime ports.Runner
}

func newSuiteRunner(runtime ports.Runner) *suiteRunner {
	return &suiteRunner{runtime: runtime}
}

// Run executes the job and always returns a terminal result.
func (r *suiteRunner) Run(ctx context.Context, job Job) *execution.Result {
	sub := job.Submission
	prepared, buildOutcome, err := r.runtime.Prepare(ctx, job.Env, sub, job.Limits)
	if err != nil {
		return Collect(execution.Outcome{}, fmt.Errorf("prepare: %w", err))
	}
	if prepared != nil {
		defer prepared.Close()
	}

	if buildOutcome != nil {
		result := Collect(*buildOutcome, nil)
		if len(sub.Tests) > 0 {
			exec := newSuiteExecution(sub, prepared)
			exec.stop(result)
			return exec.finalize()
		}
		return result
	}

	if prepared == nil {
		return Collect(execution.Outcome{}, fmt.Errorf("runner returned nil prepared program without build outcome"))
	}

	if len(sub.Tests) == 0 {
		outcome, err := prepared.Run(ctx, sub.Stdin)
		return Collect(outcome, err)
	}

	return r.runSuite(ctx, sub, prepared)
}

func (r *suiteRunner) runSuite(ctx context.Context, sub execution.Submission, prepared ports.PreparedProgram) *execution.Result {
	exec := newSuiteExecution(sub, prepared)

	for idx := range sub.Tests {
		exec.executeTest(ctx, idx)
	}

	return exec.finalize()
}

type suiteExecution struct {
	sub      execution.Submission
	prepared ports.PreparedProgram
	results  []execution.TestResult

	// failure is the first result that did not complete; later tests are
	// not evaluated once it is set.
	failure *execution.Result
	last    *execution.Result

	totalTime  time.Duration
	totalCPU   time.Duration
	peakMemory int64
}

func newSuiteExecution(sub execution.Submission, prepared ports.PreparedProgram) *suiteExecution {
	results := make([]execution.TestResult, len(sub.Tests))
	for idx, test := range sub.Tests {
		if test.Points <= 0 {
			test.Points = 1
		}
		results[idx] = execution.TestResult{Case: test, Status: execution.TestNotEvaluated}
	}
	return &suiteExecution{
		sub:      sub,
		prepared: prepared,
		results:  results,
	}
}

func (s *suiteExecution) stop(result *execution.Result) {
	if s.failure == nil {
		s.failure = result
	}
}

func (s *suiteExecution) executeTest(ctx context.Context, idx int) {
	if s.failure != nil {
		return
	}

	test := s.results[idx].Case
	outcome, err := s.prepared.Run(ctx, test.Input)
	run := Collect(outcome, err)
	s.last = run

	s.totalTime += run.Duration
	s.totalCPU += run.CPUTime
	if run.PeakMemoryBytes > s.peakMemory {
		s.peakMemory = run.PeakMemoryBytes
	}

	result := execution.TestResult{
		Case:            test,
		Status:          execution.TestFailed,
		Stdout:          run.Stdout,
		Stderr:          run.Stderr,
		ExitCode:        -1,
		Duration:        run.Duration,
		CPUTime:         run.CPUTime,
		PeakMemoryBytes: run.PeakMemoryBytes,
	}
	if run.ExitCode != nil {
		result.ExitCode = *run.ExitCode
	}

	switch {
	case run.State != execution.StateCompleted:
		// The test that aborted the suite was never judged against its output.
		result.Status = execution.TestNotEvaluated
		result.Diff = run.Detail
		s.stop(run)
	case result.ExitCode != 0:
		result.Diff = fmt.Sprintf("exited with code %d", result.ExitCode)
	default:
		if ok, diff := Compare(test.Mode, test.ExpectedOutput, run.Stdout); ok {
			result.Status = execution.TestPassed
		} else {
			result.Diff = diff
		}
	}

	s.results[idx] = result
}

func (s *suiteExecution) finalize() *execution.Result {
	verdict := &execution.Verdict{}
	for _, res := range s.results {
		verdict.PointsTotal += res.Case.Points
		switch res.Status {
		case execution.TestPassed:
			verdict.PointsEarned += res.Case.Points
		case execution.TestFailed:
			verdict.Failing = append(verdict.Failing, res.Case.Number)
		}
	}

	var suite *execution.Result
	switch {
	case s.failure != nil:
		verdict.Kind = execution.VerdictErrored
		suite = s.failure.Clone()
	case len(verdict.Failing) > 0:
		verdict.Kind = execution.VerdictSomeFailed
		suite = s.last.Clone()
	default:
		verdict.Kind = execution.VerdictAllPassed
		suite = s.last.Clone()
	}
	if suite == nil {
		suite = &execution.Result{State: execution.StateCompleted}
	}

	if s.totalTime > 0 {
		suite.Duration = s.totalTime
		suite.CPUTime = s.totalCPU
		suite.PeakMemoryBytes = s.peakMemory
	}
	suite.Tests = s.results
	suite.Verdict = verdict
	return suite
}
