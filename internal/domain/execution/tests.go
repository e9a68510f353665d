package execution

import "time"

// CompareMode selects how actual output is matched against expectations.
type CompareMode string

const (
	CompareExact      CompareMode = "exact"
	CompareWhitespace CompareMode = "whitespace"
	CompareNumeric    CompareMode = "numeric"
)

// TestCase describes a single stdin/stdout expectation pair for a submission.
type TestCase struct {
	Number         int
	Input          string
	ExpectedOutput string
	Mode           CompareMode
	Points         int
	Hidden         bool
}

// TestStatus is the outcome of a single test case.
type TestStatus string

const (
	TestPassed       TestStatus = "passed"
	TestFailed       TestStatus = "failed"
	TestNotEvaluated TestStatus = "not_evaluated"
)

// TestResult captures the outcome of executing a single TestCase.
type TestResult struct {
	Case            TestCase
	Status          TestStatus
	Stdout          string
	Stderr          string
	ExitCode        int64
	Duration        time.Duration
	CPUTime         time.Duration
	PeakMemoryBytes int64
	Diff            string
}

// VerdictKind aggregates the per-test statuses of a run.
type VerdictKind string

const (
	VerdictAllPassed  VerdictKind = "all_passed"
	VerdictSomeFailed VerdictKind = "some_failed"
	VerdictErrored    VerdictKind = "errored"
)

// Verdict is the aggregate outcome of a test suite.
type Verdict struct {
	Kind         VerdictKind
	Failing      []int
	PointsEarned int
	PointsTotal  int
}

// Redacted hides the input, expected output and actual output of hidden
// tests so they can be shown to the submitter.
func (r TestResult) Redacted() TestResult {
	if !r.Case.Hidden {
		return r
	}
	r.Case.Input = ""
	r.Case.ExpectedOutput = ""
	r.Stdout = ""
	r.Stderr = ""
	r.Diff = ""
	return r
}
