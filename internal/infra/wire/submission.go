// Package wire holds the JSON documents exchanged with clients, brokers and
// stores.
package wire

import (
	"time"

	"github.com/Salako07/WKL/internal/domain/execution"
)

// Limits carries limit overrides. Zero fields inherit.
type Limits struct {
	TimeLimitMs      int64 `json:"time_limit_ms,omitempty"`
	CPUTimeLimitMs   int64 `json:"cpu_time_limit_ms,omitempty"`
	MemoryLimitBytes int64 `json:"memory_limit_bytes,omitempty"`
	OutputLimitBytes int64 `json:"output_limit_bytes,omitempty"`
	ProcessLimit     int64 `json:"process_limit,omitempty"`
}

type TestCase struct {
	Number         int    `json:"number,omitempty"`
	Input          string `json:"input,omitempty"`
	ExpectedOutput string `json:"expected_output"`
	Mode           string `json:"mode,omitempty"`
	Points         int    `json:"points,omitempty"`
	Hidden         bool   `json:"hidden,omitempty"`
}

// Submission is the request document for a run.
type Submission struct {
	ID               string     `json:"id,omitempty"`
	Environment      string     `json:"environment"`
	Source           string     `json:"source"`
	Stdin            string     `json:"stdin,omitempty"`
	Args             []string   `json:"args,omitempty"`
	Tests            []TestCase `json:"tests,omitempty"`
	Limits           *Limits    `json:"limits,omitempty"`
	Priority         string     `json:"priority,omitempty"`
	CorrelationToken string     `json:"correlation_token,omitempty"`
	Owner            string     `json:"owner,omitempty"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
}

// ToSubmission converts the document without validating it; admission does
// that.
func (d Submission) ToSubmission() execution.Submission {
	sub := execution.Submission{
		ID:               d.ID,
		EnvironmentID:    execution.EnvironmentID(d.Environment),
		Source:           d.Source,
		Stdin:            d.Stdin,
		Args:             append([]string(nil), d.Args...),
		Limits:           d.Limits.toLimits(),
		Priority:         execution.ParsePriority(d.Priority),
		CorrelationToken: d.CorrelationToken,
		Owner:            d.Owner,
	}
	if d.SubmittedAt != nil {
		sub.SubmittedAt = *d.SubmittedAt
	}
	if len(d.Tests) > 0 {
		sub.Tests = make([]execution.TestCase, len(d.Tests))
		for idx, test := range d.Tests {
			sub.Tests[idx] = execution.TestCase{
				Number:         test.Number,
				Input:          test.Input,
				ExpectedOutput: test.ExpectedOutput,
				Mode:           execution.CompareMode(test.Mode),
				Points:         test.Points,
				Hidden:         test.Hidden,
			}
		}
	}
	return sub
}

// FromSubmission builds the document for sub.
func FromSubmission(sub execution.Submission) Submission {
	d := Submission{
		ID:               sub.ID,
		Environment:      string(sub.EnvironmentID),
		Source:           sub.Source,
		Stdin:            sub.Stdin,
		Args:             append([]string(nil), sub.Args...),
		Limits:           FromLimits(sub.Limits),
		Priority:         sub.Priority.String(),
		CorrelationToken: sub.CorrelationToken,
		Owner:            sub.Owner,
	}
	if !sub.SubmittedAt.IsZero() {
		at := sub.SubmittedAt
		d.SubmittedAt = &at
	}
	for _, test := range sub.Tests {
		d.Tests = append(d.Tests, TestCase{
			Number:         test.Number,
			Input:          test.Input,
			ExpectedOutput: test.ExpectedOutput,
			Mode:           string(test.Mode),
			Points:         test.Points,
			Hidden:         test.Hidden,
		})
	}
	return d
}

func (l *Limits) toLimits() execution.RunLimits {
	if l == nil {
		return execution.RunLimits{}
	}
	return execution.RunLimits{
		TimeLimit:        time.Duration(l.TimeLimitMs) * time.Millisecond,
		CPUTimeLimit:     time.Duration(l.CPUTimeLimitMs) * time.Millisecond,
		MemoryLimitBytes: l.MemoryLimitBytes,
		OutputLimitBytes: l.OutputLimitBytes,
		ProcessLimit:     l.ProcessLimit,
	}
}

// FromLimits builds the document for l. Unset limits yield nil.
func FromLimits(l execution.RunLimits) *Limits {
	if l == (execution.RunLimits{}) {
		return nil
	}
	return &Limits{
		TimeLimitMs:      l.TimeLimit.Milliseconds(),
		CPUTimeLimitMs:   l.CPUTimeLimit.Milliseconds(),
		MemoryLimitBytes: l.MemoryLimitBytes,
		OutputLimitBytes: l.OutputLimitBytes,
		ProcessLimit:     l.ProcessLimit,
	}
}
