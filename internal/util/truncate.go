package util

import (
	"fmt"
	"unicode/utf8"
)

// DefaultLogMaxLen caps vendor response bodies written to the log.
const DefaultLogMaxLen = 1024

// DefaultPreviewLen is the length of message previews shown when a body
// cannot be decoded.
const DefaultPreviewLen = 200

// TruncateLog truncates long strings for log output.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}

// TruncateBytes is TruncateLog for response bodies using DefaultLogMaxLen.
func TruncateBytes(b []byte) string {
	return TruncateLog(string(b), DefaultLogMaxLen)
}

// Preview shortens s to at most maxRunes runes, appending "..." when cut.
// It never splits a multi-byte character.
func Preview(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
