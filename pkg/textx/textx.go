// Package textx provides small text utilities used across the project.
package textx

import (
	"strings"
)

// SanitizeText removes control characters except tab/newline/CR and trims spaces.
func SanitizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// WordsPerMinute returns the speaking rate for a transcript spoken over the
// given duration. Zero when the duration is not positive.
func WordsPerMinute(words int, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(words) / (seconds / 60.0)
}

// TruncateWords keeps at most n words of s, appending a marker when cut.
func TruncateWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) <= n {
		return s
	}
	return strings.Join(fields[:n], " ") + " …"
}
