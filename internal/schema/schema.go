// Package schema reconciles column names across yearly vintages of the same
// source file.
package schema

import (
	"regexp"
	"strings"
)

var digitRun = regexp.MustCompile(`\d+`)

// NormalizeColumn lower-cases name and strips every run of digits, so that
// GEOID20 and GEOID10 both become geoid. Names that genuinely contain digits
// lose them too; callers that cannot tolerate that should use LowerColumn.
func NormalizeColumn(name string) string {
	return digitRun.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "")
}

// LowerColumn lower-cases name without stripping digits.
func LowerColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeColumns applies NormalizeColumn to every name.
func NormalizeColumns(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = NormalizeColumn(n)
	}
	return out
}

// Index maps each column name to its first position.
func Index(names []string) map[string]int {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if _, ok := idx[n]; !ok {
			idx[n] = i
		}
	}
	return idx
}
