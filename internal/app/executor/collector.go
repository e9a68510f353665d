package executor

import (
	"fmt"

	"github.com/Salako07/WKL/internal/domain/execution"
)

const (
	signalExitBase = 128
	maxSignal      = 64
)

var signalNames = map[int64]string{
	1:  "hangup",
	2:  "interrupt",
	3:  "quit",
	4:  "illegal instruction",
	5:  "trace trap",
	6:  "aborted",
	7:  "bus error",
	8:  "floating point exception",
	9:  "killed",
	11: "segmentation fault",
	13: "broken pipe",
	14: "alarm clock",
	15: "terminated",
	24: "cpu time limit exceeded",
	25: "file size limit exceeded",
	31: "bad system call",
}

// Collect turns the raw observation of a sandbox into a Result. It is the
// only place where exit codes and watchdog verdicts become run states.
func Collect(outcome execution.Outcome, err error) *execution.Result {
	if err != nil {
		return &execution.Result{
			State:       execution.StateCrashFailed,
			FailureKind: execution.FailureSystemError,
			Detail:      fmt.Sprintf("sandbox failure: %v", err),
		}
	}

	result := &execution.Result{
		Stdout:          outcome.Stdout,
		Stderr:          outcome.Stderr,
		StdoutTruncated: outcome.StdoutTruncated,
		StderrTruncated: outcome.StderrTruncated,
		CPUTime:         outcome.CPUTime,
		PeakMemoryBytes: outcome.PeakMemoryBytes,
		Duration:        outcome.Duration,
	}

	if outcome.Build {
		collectBuild(result, outcome)
		return result
	}

	switch outcome.State {
	case execution.SandboxExited:
		if signal, crashed := signalOf(outcome.ExitCode); crashed {
			result.State = execution.StateCrashFailed
			result.FailureKind = execution.FailureCrash
			result.Detail = describeSignal(signal)
			break
		}
		code := outcome.ExitCode
		result.State = execution.StateCompleted
		result.ExitCode = &code
	case execution.SandboxTimedOut:
		result.State = execution.StateTimedOut
		result.FailureKind = execution.FailureTimeout
		result.Detail = "wall-clock time limit exceeded"
	case execution.SandboxResourceExceeded:
		result.State = execution.StateResourceExceeded
		if outcome.Exceeded == execution.ResourceCPU {
			result.FailureKind = execution.FailureCPULimit
			result.Detail = "cpu time limit exceeded"
		} else {
			result.FailureKind = execution.FailureMemoryLimit
			result.Detail = "memory limit exceeded"
		}
	case execution.SandboxCancelled:
		result.State = execution.StateCancelled
		result.FailureKind = execution.FailureCancelled
		result.Detail = "cancelled by request"
	default:
		result.State = execution.StateCrashFailed
		result.FailureKind = execution.FailureSystemError
		result.Detail = fmt.Sprintf("unknown sandbox state %q", outcome.State)
	}
	return result
}

// collectBuild reports a failed compile phase. A compile error is the
// submitter's fault, so the run still completes.
func collectBuild(result *execution.Result, outcome execution.Outcome) {
	if outcome.State == execution.SandboxCancelled {
		result.State = execution.StateCancelled
		result.FailureKind = execution.FailureCancelled
		result.Detail = "cancelled by request"
		return
	}

	result.State = execution.StateCompleted
	result.FailureKind = execution.FailureCompileError
	switch outcome.State {
	case execution.SandboxTimedOut:
		result.Detail = "compilation timed out"
	case execution.SandboxResourceExceeded:
		result.Detail = "compilation exceeded its resource limits"
	default:
		code := outcome.ExitCode
		result.ExitCode = &code
		result.Detail = fmt.Sprintf("compilation failed with exit code %d", code)
	}
}

func signalOf(exitCode int64) (int64, bool) {
	if exitCode > signalExitBase && exitCode <= signalExitBase+maxSignal {
		return exitCode - signalExitBase, true
	}
	return 0, false
}

func describeSignal(signal int64) string {
	if name, ok := signalNames[signal]; ok {
		return fmt.Sprintf("terminated by signal %d (%s)", signal, name)
	}
	return fmt.Sprintf("terminated by signal %d", signal)
}
