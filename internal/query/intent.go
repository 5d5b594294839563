package query

import (
	"regexp"
	"strings"
)

// Intent carries the normalized form of a query plus alternative phrasings
// derived by stripping question words and filler phrases. Alternatives widen
// exact-match recall in the general answer resolver.
type Intent struct {
	Original     string
	Normalized   string
	Alternatives []string
}

var questionWords = []string{
	"what", "when", "where", "who", "why", "how",
	"which", "can", "is", "are", "do", "does",
}

var fillerPhrases = []string{
	"please", "tell me", "i want to know", "can you", "could you", "about", "the",
}

// ExtractIntent normalizes a query and derives alternative phrasings.
// The normalized form is always the first alternative.
func ExtractIntent(q string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(q))

	alts := []string{normalized}
	seen := map[string]bool{normalized: true}
	add := func(alt string) {
		alt = strings.TrimSpace(alt)
		if alt != "" && !seen[alt] {
			seen[alt] = true
			alts = append(alts, alt)
		}
	}

	hasQuestion := false
	for _, qw := range questionWords {
		if strings.HasPrefix(normalized, qw) {
			hasQuestion = true
			break
		}
	}

	if hasQuestion {
		for _, qw := range questionWords {
			re := regexp.MustCompile(`\b` + qw + `\s+`)
			if loc := re.FindStringIndex(normalized); loc != nil {
				add(normalized[:loc[0]] + normalized[loc[1]:])
			}
		}
	}

	for _, filler := range fillerPhrases {
		alt := strings.ReplaceAll(normalized, filler, " ")
		alt = strings.Join(strings.Fields(alt), " ")
		if alt != normalized {
			add(alt)
		}
	}

	return Intent{
		Original:     q,
		Normalized:   normalized,
		Alternatives: alts,
	}
}
