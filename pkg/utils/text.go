// Package utils provides shared utilities for text, vector math, and logging.
package utils

import "unicode/utf8"

// Truncate returns s limited to maxLen characters. When s is longer, the result keeps
// maxLen-3 characters followed by "...". If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string([]rune(s)[:maxLen])
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}

// Clip returns the first maxLen characters of s without any marker.
// Multi-byte characters are never split.
func Clip(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}
