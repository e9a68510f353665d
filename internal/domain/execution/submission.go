package execution

import "time"

// Priority orders submissions between classes. Submissions of equal
// priority are served first-in-first-out.
type Priority int

const (
	PriorityLow Priority = iota - 1
	PriorityNormal
	PriorityHigh
)

// ParsePriority maps a wire name to a Priority. Unknown names map to normal.
func ParsePriority(name string) Priority {
	switch name {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

// Submission is an immutable request to execute source code.
type Submission struct {
	ID               string
	EnvironmentID    EnvironmentID
	Source           string
	Stdin            string
	Args             []string
	Tests            []TestCase
	Limits           RunLimits
	Priority         Priority
	CorrelationToken string
	Owner            string
	SubmittedAt      time.Time
}
