// Package textutil cleans free text entered at the counter before it is stored.
package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Clean strips any markup, unescapes entities, collapses runs of whitespace, and truncates
// to maxRunes (0 means unlimited).
func Clean(value string, maxRunes int) string {
	if value == "" {
		return ""
	}
	stripped := html.UnescapeString(strict.Sanitize(value))
	cleaned := strings.Join(strings.Fields(stripped), " ")
	if maxRunes > 0 && utf8.RuneCountInString(cleaned) > maxRunes {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:maxRunes]))
	}
	return cleaned
}

// CleanMultiline is Clean for notes: line breaks survive, other whitespace collapses.
func CleanMultiline(value string, maxRunes int) string {
	if value == "" {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(value, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, Clean(line, 0))
	}
	joined := strings.TrimSpace(strings.Join(out, "\n"))
	if maxRunes > 0 && utf8.RuneCountInString(joined) > maxRunes {
		joined = strings.TrimSpace(string([]rune(joined)[:maxRunes]))
	}
	return joined
}

// Fold lower-cases value for case-insensitive substring matching.
func Fold(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// ContainsFold reports whether needle occurs in haystack ignoring case. An empty needle
// matches everything.
func ContainsFold(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}
