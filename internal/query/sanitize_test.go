package query

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain", "books on physics", "books on physics"},
		{"control chars stripped", "hello\x00world\x1f", "helloworld"},
		{"disallowed symbols stripped", "physics <script>alert(1)</script>", "physics scriptalert1script"},
		{"whitespace collapsed", "  books   on    physics  ", "books on physics"},
		{"punctuation kept", "who wrote 'wings of fire'?", "who wrote 'wings of fire'?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestSanitizeTruncates(t *testing.T) {
	long := strings.Repeat("a ", 400)
	got := Sanitize(long)
	assert.LessOrEqual(t, len(got), MaxQueryLength)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantOK  bool
		wantMsg string
	}{
		{"too short", "a", false, MsgTooShort},
		{"whitespace only", "   ", false, MsgTooShort},
		{"two chars ok", "go", true, ""},
		{"consonant gibberish", "xzqwrtpsd", false, MsgGibberish},
		{"repeated chars", "aaaaaaaaaa", false, MsgGibberish},
		{"repeated bigram", "dkdkdkdkdkdk", false, MsgGibberish},
		{"real query", "library timings", true, ""},
		{"real book query", "books on machine learning", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, msg := Validate(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}

func TestValidateVowelRatio(t *testing.T) {
	// 1 vowel out of 10 letters is below the 15% floor.
	ok, msg := Validate("bcdfghjkla")
	assert.False(t, ok)
	assert.Equal(t, MsgGibberish, msg)

	// Short consonant runs are allowed through.
	ok, _ = Validate("bcdfg")
	assert.True(t, ok)
}

func TestValidateWithCustomRatio(t *testing.T) {
	// 4 vowels out of 11 letters passes the default floor but not 50%.
	ok, _ := ValidateWith("wings of fire", 0.15)
	assert.True(t, ok)

	ok, msg := ValidateWith("wings of fire", 0.5)
	assert.False(t, ok)
	assert.Equal(t, MsgGibberish, msg)

	// A non-positive floor falls back to the default.
	ok, _ = ValidateWith("wings of fire", 0)
	assert.True(t, ok)
}

func TestSanitizeDeterministic(t *testing.T) {
	in := "  books!! on \x01 physics?? "
	assert.Equal(t, Sanitize(in), Sanitize(in))
}
