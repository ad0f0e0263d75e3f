package model

// MaxDiagnosticLength caps persisted diagnostics, counted in characters.
const MaxDiagnosticLength = 5000

// Truncate keeps the first limit characters (runes) of s.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
