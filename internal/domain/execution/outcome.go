package execution

import "time"

// SandboxState is the terminal state a sandbox reached before teardown.
type SandboxState string

const (
	SandboxExited           SandboxState = "exited"
	SandboxTimedOut         SandboxState = "timed_out"
	SandboxResourceExceeded SandboxState = "resource_exceeded"
	SandboxCancelled        SandboxState = "cancelled"
)

// Resource names the limit a sandbox overran.
type Resource string

const (
	ResourceMemory Resource = "memory"
	ResourceCPU    Resource = "cpu"
)

// Outcome is the raw observation of one sandbox: what the watchdogs saw and
// what the process left behind. It is translated into a Result by the
// collector and never shown to callers as-is.
type Outcome struct {
	State           SandboxState
	Exceeded        Resource
	ExitCode        int64
	OOMKilled       bool
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	Duration        time.Duration
	CPUTime         time.Duration
	PeakMemoryBytes int64
	// Build marks outcomes produced by the compile phase.
	Build bool
}
