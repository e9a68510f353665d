package execution

import (
	"testing"
	"time"
)

func TestMergeOverridesNonZeroFields(t *testing.T) {
	t.Parallel()

	base := RunLimits{TimeLimit: 2 * time.Second, MemoryLimitBytes: 64 << 20, ProcessLimit: 32}
	got := base.Merge(RunLimits{TimeLimit: 5 * time.Second, MemoryLimitBytes: -1, OutputLimitBytes: 1024})

	want := RunLimits{TimeLimit: 5 * time.Second, MemoryLimitBytes: 64 << 20, OutputLimitBytes: 1024, ProcessLimit: 32}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestNormalizeClampsNegatives(t *testing.T) {
	t.Parallel()

	got := RunLimits{TimeLimit: -1, CPUTimeLimit: -time.Second, ProcessLimit: -3, OutputLimitBytes: 10}.Normalize()
	if got != (RunLimits{OutputLimitBytes: 10}) {
		t.Fatalf("unexpected normalized limits %+v", got)
	}
}

func TestExceedsNamesFirstViolation(t *testing.T) {
	t.Parallel()

	ceiling := RunLimits{TimeLimit: 10 * time.Second, MemoryLimitBytes: 256 << 20}

	cases := []struct {
		limits RunLimits
		want   string
	}{
		{RunLimits{TimeLimit: 10 * time.Second}, ""},
		{RunLimits{TimeLimit: 11 * time.Second}, "time_limit"},
		{RunLimits{MemoryLimitBytes: 512 << 20}, "memory_limit"},
		{RunLimits{ProcessLimit: 1 << 20}, ""},
	}
	for _, tc := range cases {
		if got := tc.limits.Exceeds(ceiling); got != tc.want {
			t.Fatalf("Exceeds(%+v) = %q, want %q", tc.limits, got, tc.want)
		}
	}
}
