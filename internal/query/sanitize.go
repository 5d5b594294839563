// Package query implements input cleaning, validation, intent extraction,
// and query expansion for the assistant.
package query

import (
	"regexp"
	"strings"
)

// MaxQueryLength bounds sanitized input.
const MaxQueryLength = 300

// DefaultVowelRatioMin is the vowel share below which text is treated as
// gibberish.
const DefaultVowelRatioMin = 0.15

// Validation messages shown to the user.
const (
	MsgTooShort  = "Please enter a valid query with at least 2 characters."
	MsgGibberish = "I couldn't understand your query. Please enter a valid question about books, authors, or library services."
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
	allowedChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-.,?!']`)
)

// Sanitize cleans raw user input: strips control characters, restricts the
// character set to alphanumerics plus basic punctuation, collapses
// whitespace, and truncates to MaxQueryLength.
func Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	s := controlChars.ReplaceAllString(raw, "")
	s = allowedChars.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	if len(s) > MaxQueryLength {
		s = s[:MaxQueryLength]
	}

	return strings.TrimSpace(s)
}

// Validate rejects queries that are too short or look like gibberish,
// using the default vowel-ratio floor. Returns (false, message) on
// rejection.
func Validate(q string) (bool, string) {
	return ValidateWith(q, DefaultVowelRatioMin)
}

// ValidateWith is Validate with a caller-supplied vowel-ratio floor.
// A non-positive floor falls back to the default.
func ValidateWith(q string, vowelRatioMin float64) (bool, string) {
	if vowelRatioMin <= 0 {
		vowelRatioMin = DefaultVowelRatioMin
	}
	if len(strings.TrimSpace(q)) < 2 {
		return false, MsgTooShort
	}

	// Gibberish heuristic: a real word has vowels.
	letterCount := 0
	vowelCount := 0
	for _, r := range q {
		switch {
		case strings.ContainsRune("aeiouAEIOU", r):
			letterCount++
			vowelCount++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			letterCount++
		}
	}
	if letterCount > 5 && float64(vowelCount) < float64(letterCount)*vowelRatioMin {
		return false, MsgGibberish
	}

	// Excessive 2-gram repetition ("dkdkdkdk", "aaaaaaa").
	if len(q) > 4 {
		for i := 0; i+2 <= len(q)-2; i++ {
			pattern := q[i : i+2]
			if strings.Count(q, pattern) > len(q)/4 {
				return false, MsgGibberish
			}
		}
	}

	return true, ""
}
