package execution

import "time"

// RunLimits describes resource boundaries for a single sandbox.
//
// A zero field inherits the value from the environment defaults.
type RunLimits struct {
	// TimeLimit caps the wall-clock time of the sandboxed process.
	TimeLimit time.Duration
	// MemoryLimitBytes caps the container memory usage in bytes.
	MemoryLimitBytes int64
	// CPUTimeLimit caps the CPU time consumed by the process tree.
	CPUTimeLimit time.Duration
	// OutputLimitBytes caps each captured stream.
	OutputLimitBytes int64
	// ProcessLimit caps the number of processes and threads in the sandbox.
	ProcessLimit int64
}

// Normalize clamps negative values to zero.
func (l RunLimits) Normalize() RunLimits {
	if l.TimeLimit < 0 {
		l.TimeLimit = 0
	}
	if l.MemoryLimitBytes < 0 {
		l.MemoryLimitBytes = 0
	}
	if l.CPUTimeLimit < 0 {
		l.CPUTimeLimit = 0
	}
	if l.OutputLimitBytes < 0 {
		l.OutputLimitBytes = 0
	}
	if l.ProcessLimit < 0 {
		l.ProcessLimit = 0
	}
	return l
}

// Merge returns l with every non-zero field of overrides applied.
func (l RunLimits) Merge(overrides RunLimits) RunLimits {
	effective := l.Normalize()
	o := overrides.Normalize()

	if o.TimeLimit > 0 {
		effective.TimeLimit = o.TimeLimit
	}
	if o.MemoryLimitBytes > 0 {
		effective.MemoryLimitBytes = o.MemoryLimitBytes
	}
	if o.CPUTimeLimit > 0 {
		effective.CPUTimeLimit = o.CPUTimeLimit
	}
	if o.OutputLimitBytes > 0 {
		effective.OutputLimitBytes = o.OutputLimitBytes
	}
	if o.ProcessLimit > 0 {
		effective.ProcessLimit = o.ProcessLimit
	}
	return effective
}

// Exceeds reports the name of the first field of l that is larger than the
// matching non-zero field of ceiling, or "" when l fits.
func (l RunLimits) Exceeds(ceiling RunLimits) string {
	switch {
	case ceiling.TimeLimit > 0 && l.TimeLimit > ceiling.TimeLimit:
		return "time_limit"
	case ceiling.MemoryLimitBytes > 0 && l.MemoryLimitBytes > ceiling.MemoryLimitBytes:
		return "memory_limit"
	case ceiling.CPUTimeLimit > 0 && l.CPUTimeLimit > ceiling.CPUTimeLimit:
		return "cpu_time_limit"
	case ceiling.OutputLimitBytes > 0 && l.OutputLimitBytes > ceiling.OutputLimitBytes:
		return "output_limit"
	case ceiling.ProcessLimit > 0 && l.ProcessLimit > ceiling.ProcessLimit:
		return "process_limit"
	}
	return ""
}
