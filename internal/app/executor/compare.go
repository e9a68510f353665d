package executor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Salako07/WKL/internal/domain/execution"
)

const (
	numericEpsilon = 1e-6
	diffSnippetLen = 60
)

// Compare matches actual output against the expectation using mode. When the
// outputs differ it also describes the first mismatch.
func Compare(mode execution.CompareMode, expected, actual string) (bool, string) {
	switch mode {
	case execution.CompareExact:
		if expected == actual {
			return true, ""
		}
		return false, firstLineMismatch(strings.Split(expected, "\n"), strings.Split(actual, "\n"))
	case execution.CompareNumeric:
		return compareNumeric(strings.Fields(expected), strings.Fields(actual))
	default:
		want, got := normalizeWhitespace(expected), normalizeWhitespace(actual)
		if want == got {
			return true, ""
		}
		return false, firstLineMismatch(collapseLines(expected), collapseLines(actual))
	}
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// collapseLines splits s into lines with runs of blanks collapsed and blank
// lines dropped.
func collapseLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if norm := normalizeWhitespace(line); norm != "" {
			lines = append(lines, norm)
		}
	}
	return lines
}

func compareNumeric(expected, actual []string) (bool, string) {
	for i := 0; i < len(expected) || i < len(actual); i++ {
		if i >= len(actual) {
			return false, fmt.Sprintf("token %d: expected %s, got end of output", i+1, snippet(expected[i]))
		}
		if i >= len(expected) {
			return false, fmt.Sprintf("token %d: expected end of output, got %s", i+1, snippet(actual[i]))
		}
		if !tokensMatch(expected[i], actual[i]) {
			return false, fmt.Sprintf("token %d: expected %s, got %s", i+1, snippet(expected[i]), snippet(actual[i]))
		}
	}
	return true, ""
}

func tokensMatch(expected, actual string) bool {
	want, errWant := strconv.ParseFloat(expected, 64)
	got, errGot := strconv.ParseFloat(actual, 64)
	if errWant != nil || errGot != nil {
		return expected == actual
	}
	if isNonFinite(want) || isNonFinite(got) {
		return want == got || expected == actual
	}

	diff := math.Abs(want - got)
	if diff <= numericEpsilon {
		return true
	}
	return diff <= numericEpsilon*math.Max(math.Abs(want), math.Abs(got))
}

func isNonFinite(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

func firstLineMismatch(expected, actual []string) string {
	for i := 0; i < len(expected) || i < len(actual); i++ {
		switch {
		case i >= len(actual):
			return fmt.Sprintf("line %d: expected %s, got end of output", i+1, snippet(expected[i]))
		case i >= len(expected):
			return fmt.Sprintf("line %d: expected end of output, got %s", i+1, snippet(actual[i]))
		case expected[i] != actual[i]:
			return fmt.Sprintf("line %d: expected %s, got %s", i+1, snippet(expected[i]), snippet(actual[i]))
		}
	}
	return "outputs differ"
}

func snippet(s string) string {
	if len(s) > diffSnippetLen {
		s = s[:diffSnippetLen] + "..."
	}
	return strconv.Quote(s)
}
