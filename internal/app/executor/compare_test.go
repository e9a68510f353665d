package executor

import (
	"strings"
	"testing"

	"github.com/Salako07/WKL/internal/domain/execution"
)

func TestCompare(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		mode     execution.CompareMode
		expected string
		actual   string
		match    bool
	}{
		{name: "exact equal", mode: execution.CompareExact, expected: "4\n", actual: "4\n", match: true},
		{name: "exact trailing newline", mode: execution.CompareExact, expected: "4", actual: "4\n", match: false},
		{name: "whitespace trailing newline", mode: execution.CompareWhitespace, expected: "4\n", actual: "4", match: true},
		{name: "whitespace collapses runs", mode: execution.CompareWhitespace, expected: "1  2\t3", actual: " 1 2 3 \n", match: true},
		{name: "whitespace different token", mode: execution.CompareWhitespace, expected: "1 2 3", actual: "1 2 4", match: false},
		{name: "default mode is whitespace", mode: "", expected: "hello\n", actual: "hello", match: true},
		{name: "numeric within epsilon", mode: execution.CompareNumeric, expected: "0.3333333", actual: "0.33333333", match: true},
		{name: "numeric relative tolerance", mode: execution.CompareNumeric, expected: "1000000000", actual: "1000000001", match: true},
		{name: "numeric outside tolerance", mode: execution.CompareNumeric, expected: "1.5", actual: "1.6", match: false},
		{name: "numeric mixed tokens", mode: execution.CompareNumeric, expected: "sum 3.0", actual: "sum 3", match: true},
		{name: "numeric word mismatch", mode: execution.CompareNumeric, expected: "sum 3", actual: "total 3", match: false},
		{name: "numeric length mismatch", mode: execution.CompareNumeric, expected: "1 2", actual: "1", match: false},
		{name: "numeric nan", mode: execution.CompareNumeric, expected: "nan", actual: "nan", match: true},
		{name: "numeric NaN", mode: execution.CompareNumeric, expected: "NaN", actual: "NaN", match: true},
		{name: "numeric nan against number", mode: execution.CompareNumeric, expected: "nan", actual: "0", match: false},
		{name: "numeric inf", mode: execution.CompareNumeric, expected: "inf", actual: "inf", match: true},
		{name: "numeric negative inf", mode: execution.CompareNumeric, expected: "-inf", actual: "-inf", match: true},
		{name: "numeric inf sign mismatch", mode: execution.CompareNumeric, expected: "inf", actual: "-inf", match: false},
		{name: "numeric inf against large number", mode: execution.CompareNumeric, expected: "inf", actual: "1e308", match: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ok, diff := Compare(tc.mode, tc.expected, tc.actual)
			if ok != tc.match {
				t.Fatalf("expected match=%v, got %v (diff %q)", tc.match, ok, diff)
			}
			if ok && diff != "" {
				t.Fatalf("expected empty diff on match, got %q", diff)
			}
			if !ok && diff == "" {
				t.Fatalf("expected a mismatch description")
			}
		})
	}
}

func TestCompareDescribesFirstMismatch(t *testing.T) {
	t.Parallel()

	_, diff := Compare(execution.CompareWhitespace, "a\nb\nc\n", "a\nx\nc\n")
	if diff != `line 2: expected "b", got "x"` {
		t.Fatalf("unexpected diff %q", diff)
	}

	_, diff = Compare(execution.CompareExact, "a\nb", "a")
	if !strings.Contains(diff, "got end of output") {
		t.Fatalf("expected missing line to be reported, got %q", diff)
	}

	_, diff = Compare(execution.CompareNumeric, "1 2 3", "1 2 5")
	if !strings.HasPrefix(diff, "token 3:") {
		t.Fatalf("expected token position, got %q", diff)
	}

	long := strings.Repeat("x", 200)
	_, diff = Compare(execution.CompareExact, long, "y")
	if len(diff) > 200 {
		t.Fatalf("expected diff to be shortened, got %d bytes", len(diff))
	}
}
