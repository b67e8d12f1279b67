package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims input and cuts it to at most maxLen bytes without
// splitting a multi-byte character. maxLen <= 0 disables the cut.
func SanitizeString(input string, maxLen int) string {
	s := strings.TrimSpace(input)
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// SanitizeList trims each entry and drops blanks.
func SanitizeList(values []string, maxLen int) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := SanitizeString(v, maxLen); s != "" {
			out = append(out, s)
		}
	}
	return out
}
