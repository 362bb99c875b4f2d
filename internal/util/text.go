package util

import "strings"

func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// CompactWhitespace collapses runs of whitespace into single spaces.
// Used to keep multi-line Cypher readable in log lines.
func CompactWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// Truncate cuts value to at most maxRunes runes, appending an ellipsis when cut.
func Truncate(value string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= maxRunes {
		return value
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}
