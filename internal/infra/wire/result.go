package wire

import (
	"time"

	"github.com/Salako07/WKL/internal/domain/execution"
)

type TestResult struct {
	Number          int    `json:"number"`
	Status          string `json:"status"`
	Mode            string `json:"mode,omitempty"`
	Points          int    `json:"points"`
	Hidden          bool   `json:"hidden,omitempty"`
	Input           string `json:"input,omitempty"`
	ExpectedOutput  string `json:"expected_output,omitempty"`
	Stdout          string `json:"stdout,omitempty"`
	Stderr          string `json:"stderr,omitempty"`
	ExitCode        int64  `json:"exit_code"`
	DurationMs      int64  `json:"duration_ms"`
	CPUTimeMs       int64  `json:"cpu_time_ms"`
	PeakMemoryBytes int64  `json:"peak_memory_bytes"`
	Diff            string `json:"diff,omitempty"`
}

type Verdict struct {
	Kind         string `json:"kind"`
	Failing      []int  `json:"failing,omitempty"`
	PointsEarned int    `json:"points_earned"`
	PointsTotal  int    `json:"points_total"`
}

// Result is the document form of a terminal result.
type Result struct {
	State           string       `json:"state"`
	ExitCode        *int64       `json:"exit_code,omitempty"`
	Stdout          string       `json:"stdout"`
	Stderr          string       `json:"stderr"`
	StdoutTruncated bool         `json:"stdout_truncated,omitempty"`
	StderrTruncated bool         `json:"stderr_truncated,omitempty"`
	DurationMs      int64        `json:"duration_ms"`
	CPUTimeMs       int64        `json:"cpu_time_ms"`
	PeakMemoryBytes int64        `json:"peak_memory_bytes"`
	FailureKind     string       `json:"failure_kind,omitempty"`
	Detail          string       `json:"detail,omitempty"`
	Tests           []TestResult `json:"tests,omitempty"`
	Verdict         *Verdict     `json:"verdict,omitempty"`
}

// FromResult builds the document for r. A nil result yields nil.
func FromResult(r *execution.Result) *Result {
	if r == nil {
		return nil
	}
	d := &Result{
		State:           string(r.State),
		Stdout:          r.Stdout,
		Stderr:          r.Stderr,
		StdoutTruncated: r.StdoutTruncated,
		StderrTruncated: r.StderrTruncated,
		DurationMs:      r.Duration.Milliseconds(),
		CPUTimeMs:       r.CPUTime.Milliseconds(),
		PeakMemoryBytes: r.PeakMemoryBytes,
		FailureKind:     string(r.FailureKind),
		Detail:          r.Detail,
	}
	if r.ExitCode != nil {
		code := *r.ExitCode
		d.ExitCode = &code
	}
	for _, test := range r.Tests {
		d.Tests = append(d.Tests, TestResult{
			Number:          test.Case.Number,
			Status:          string(test.Status),
			Mode:            string(test.Case.Mode),
			Points:          test.Case.Points,
			Hidden:          test.Case.Hidden,
			Input:           test.Case.Input,
			ExpectedOutput:  test.Case.ExpectedOutput,
			Stdout:          test.Stdout,
			Stderr:          test.Stderr,
			ExitCode:        test.ExitCode,
			DurationMs:      test.Duration.Milliseconds(),
			CPUTimeMs:       test.CPUTime.Milliseconds(),
			PeakMemoryBytes: test.PeakMemoryBytes,
			Diff:            test.Diff,
		})
	}
	if r.Verdict != nil {
		d.Verdict = &Verdict{
			Kind:         string(r.Verdict.Kind),
			Failing:      append([]int(nil), r.Verdict.Failing...),
			PointsEarned: r.Verdict.PointsEarned,
			PointsTotal:  r.Verdict.PointsTotal,
		}
	}
	return d
}

// ToResult converts the document back. A nil document yields nil.
func (d *Result) ToResult() *execution.Result {
	if d == nil {
		return nil
	}
	r := &execution.Result{
		State:           execution.RunState(d.State),
		Stdout:          d.Stdout,
		Stderr:          d.Stderr,
		StdoutTruncated: d.StdoutTruncated,
		StderrTruncated: d.StderrTruncated,
		Duration:        time.Duration(d.DurationMs) * time.Millisecond,
		CPUTime:         time.Duration(d.CPUTimeMs) * time.Millisecond,
		PeakMemoryBytes: d.PeakMemoryBytes,
		FailureKind:     execution.FailureKind(d.FailureKind),
		Detail:          d.Detail,
	}
	if d.ExitCode != nil {
		code := *d.ExitCode
		r.ExitCode = &code
	}
	for _, test := range d.Tests {
		r.Tests = append(r.Tests, execution.TestResult{
			Case: execution.TestCase{
				Number:         test.Number,
				Input:          test.Input,
				ExpectedOutput: test.ExpectedOutput,
				Mode:           execution.CompareMode(test.Mode),
				Points:         test.Points,
				Hidden:         test.Hidden,
			},
			Status:          execution.TestStatus(test.Status),
			Stdout:          test.Stdout,
			Stderr:          test.Stderr,
			ExitCode:        test.ExitCode,
			Duration:        time.Duration(test.DurationMs) * time.Millisecond,
			CPUTime:         time.Duration(test.CPUTimeMs) * time.Millisecond,
			PeakMemoryBytes: test.PeakMemoryBytes,
			Diff:            test.Diff,
		})
	}
	if d.Verdict != nil {
		r.Verdict = &execution.Verdict{
			Kind:         execution.VerdictKind(d.Verdict.Kind),
			Failing:      append([]int(nil), d.Verdict.Failing...),
			PointsEarned: d.Verdict.PointsEarned,
			PointsTotal:  d.Verdict.PointsTotal,
		}
	}
	return r
}

// Run is the document form of a run snapshot.
type Run struct {
	ID         string     `json:"id"`
	State      string     `json:"state"`
	Submission Submission `json:"submission"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Result     *Result    `json:"result,omitempty"`
}

// FromRun builds the document for run.
func FromRun(run execution.Run) Run {
	return Run{
		ID:         run.ID,
		State:      string(run.State),
		Submission: FromSubmission(run.Submission),
		CreatedAt:  run.CreatedAt,
		StartedAt:  optionalTime(run.StartedAt),
		EndedAt:    optionalTime(run.EndedAt),
		Result:     FromResult(run.Result),
	}
}

// ToRun converts the document back.
func (d Run) ToRun() execution.Run {
	run := execution.Run{
		ID:         d.ID,
		State:      execution.RunState(d.State),
		Submission: d.Submission.ToSubmission(),
		CreatedAt:  d.CreatedAt,
		Result:     d.Result.ToResult(),
	}
	if d.StartedAt != nil {
		run.StartedAt = *d.StartedAt
	}
	if d.EndedAt != nil {
		run.EndedAt = *d.EndedAt
	}
	return run
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
