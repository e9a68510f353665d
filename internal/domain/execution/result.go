package execution

import "time"

// RunState is the lifecycle state of an ExecutionRun.
type RunState string

const (
	StateQueued           RunState = "queued"
	StateRunning          RunState = "running"
	StateCompleted        RunState = "completed"
	StateTimedOut         RunState = "timed_out"
	StateResourceExceeded RunState = "resource_exceeded"
	StateCrashFailed      RunState = "crash_failed"
	StateCancelled        RunState = "cancelled"
)

// Terminal reports whether no further transition can leave s.
func (s RunState) Terminal() bool {
	switch s {
	case StateCompleted, StateTimedOut, StateResourceExceeded, StateCrashFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// FailureKind classifies why a run did not complete cleanly.
type FailureKind string

const (
	FailureNone         FailureKind = ""
	FailureTimeout      FailureKind = "timeout"
	FailureMemoryLimit  FailureKind = "memory_limit"
	FailureCPULimit     FailureKind = "cpu_limit"
	FailureCrash        FailureKind = "crash"
	FailureCancelled    FailureKind = "cancelled"
	FailureSystemError  FailureKind = "system_error"
	FailureCompileError FailureKind = "compile_error"
)

// Result captures the normalized outcome of a run.
type Result struct {
	State           RunState
	ExitCode        *int64
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	CPUTime         time.Duration
	PeakMemoryBytes int64
	Duration        time.Duration
	FailureKind     FailureKind
	Detail          string
	Tests           []TestResult
	Verdict         *Verdict
}

// Clone returns a deep copy so callers can never mutate a stored result.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	if r.ExitCode != nil {
		code := *r.ExitCode
		out.ExitCode = &code
	}
	if r.Tests != nil {
		out.Tests = append([]TestResult(nil), r.Tests...)
	}
	if r.Verdict != nil {
		v := *r.Verdict
		v.Failing = append([]int(nil), r.Verdict.Failing...)
		out.Verdict = &v
	}
	return &out
}

// Redacted returns a copy of r with every hidden test redacted.
func (r *Result) Redacted() *Result {
	out := r.Clone()
	if out == nil {
		return nil
	}
	for i := range out.Tests {
		out.Tests[i] = out.Tests[i].Redacted()
	}
	return out
}
