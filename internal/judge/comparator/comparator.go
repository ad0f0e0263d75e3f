// Package comparator decides whether program output matches the expected answer.
package comparator

import (
	"fmt"
	"strings"

	"ojengine/internal/judge/model"
)

const missingLine = "<no line>"

// Result is the outcome of one comparison.
type Result struct {
	Match bool
	// Report lists differing lines; empty when Match is true.
	Report string
}

// Compare trims surrounding whitespace from both texts and requires exact equality.
// Inner whitespace, including trailing spaces on inner lines, is significant.
func Compare(expected, actual string) Result {
	e := strings.TrimSpace(expected)
	a := strings.TrimSpace(actual)
	if e == a {
		return Result{Match: true}
	}
	return Result{Report: Diff(e, a)}
}

// Diff renders "Line <n>: expected=<e> actual=<a>" for each differing line,
// newline-joined and capped at model.MaxDiagnosticLength characters.
func Diff(expected, actual string) string {
	exLines := splitLines(expected)
	acLines := splitLines(actual)

	n := len(exLines)
	if len(acLines) > n {
		n = len(acLines)
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		e, a := missingLine, missingLine
		if i < len(exLines) {
			e = exLines[i]
		}
		if i < len(acLines) {
			a = acLines[i]
		}
		if e == a {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "Line %d: expected=<%s> actual=<%s>", i+1, e, a)
		// Enough bytes already for the cap, no need to render the rest.
		if b.Len() > 4*model.MaxDiagnosticLength {
			break
		}
	}
	return model.Truncate(b.String(), model.MaxDiagnosticLength)
}

// splitLines breaks on \r\n, \n and \r. A trailing terminator does not add an empty line,
// and empty text has no lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
