package recognize

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun   = regexp.MustCompile(`[\s\v\x{1c}-\x{1f}\x{85}\p{Z}]+`)
	lowerUpper      = regexp.MustCompile(`([a-z])([A-Z])`)
	sentenceNoSpace = regexp.MustCompile(`([.!?])([A-Z])`)
)

// Clean normalizes raw OCR text: whitespace runs (including vertical tabs and
// Unicode spaces such as NBSP) become one space, the result
// is trimmed, and a space is inserted where a lowercase letter runs into an
// uppercase one or sentence punctuation runs into an uppercase letter.
// Clean(Clean(s)) == Clean(s).
func Clean(text string) string {
	text = whitespaceRun.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	text = lowerUpper.ReplaceAllString(text, "$1 $2")
	text = sentenceNoSpace.ReplaceAllString(text, "$1 $2")
	return text
}

// WordCount returns the number of whitespace-separated words in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
