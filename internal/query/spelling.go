package query

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/mvkaushik27/nalanda/internal/observability"
)

// CorrectFunc is an external spelling-correction routine.
type CorrectFunc func(ctx context.Context, q string) (string, error)

// LexiconFunc supplies the lower-cased author-name token lexicon used to
// guard corrections against mangling known author names.
type LexiconFunc func(ctx context.Context) (map[string]bool, error)

// preserveTerms are domain acronyms and terms that must never be corrected.
// Matched as whole words, case-insensitive.
var preserveTerms = map[string]bool{
	"timings": true, "ebooks": true, "eresources": true, "opac": true,
	"scopus": true, "webopac": true, "vpn": true, "wifi": true,
	"technobooth": true, "grammarly": true, "turnitin": true,
	"mendeley": true, "zotero": true, "jstor": true,
	"phd": true, "pg": true, "ug": true, "btech": true, "mtech": true,
	"msc": true, "bsc": true, "iit": true, "ropar": true,
	"isbn": true, "doi": true, "issn": true,
}

var wordTokens = regexp.MustCompile(`[A-Za-z']+`)

// Corrector applies guarded spelling correction. Corrections are accepted
// only when the corrected length stays within 3 characters of the original
// and every known author token survives the correction.
type Corrector struct {
	logger  *observability.Logger
	correct CorrectFunc
	lexicon LexiconFunc

	lexOnce   sync.Once
	lexTokens map[string]bool

	mu      sync.Mutex
	cache   map[string]string
	maxSize int
}

// NewCorrector creates a Corrector. correct may be nil, in which case
// queries pass through unchanged. lexicon may be nil.
func NewCorrector(logger *observability.Logger, correct CorrectFunc, lexicon LexiconFunc) *Corrector {
	return &Corrector{
		logger:  logger,
		correct: correct,
		lexicon: lexicon,
		cache:   make(map[string]string),
		maxSize: 1000,
	}
}

// Correct returns the corrected query, or the input unchanged when
// correction is unavailable, unsafe, or fails. Idempotent and memoized.
func (c *Corrector) Correct(ctx context.Context, q string) string {
	if c.correct == nil || q == "" {
		return q
	}

	c.mu.Lock()
	if cached, ok := c.cache[q]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	result := c.correctUncached(ctx, q)

	c.mu.Lock()
	if len(c.cache) >= c.maxSize {
		c.cache = make(map[string]string)
	}
	c.cache[q] = result
	c.mu.Unlock()

	return result
}

func (c *Corrector) correctUncached(ctx context.Context, q string) string {
	lower := strings.ToLower(q)
	for _, word := range strings.Fields(lower) {
		if preserveTerms[word] {
			c.logger.Debug().Str("term", word).Msg("preserving domain term, skipping correction")
			return q
		}
	}

	corrected, err := c.correct(ctx, q)
	if err != nil {
		c.logger.Warn().Err(err).Msg("spelling correction failed")
		return q
	}

	if strings.EqualFold(corrected, q) {
		return q
	}

	lengthOK := abs(len(corrected)-len(q)) <= 3

	authorTokens := c.authorLexicon(ctx)
	origTokens := tokenSet(lower)
	corrTokens := tokenSet(strings.ToLower(corrected))

	protected := make([]string, 0)
	preserved := true
	for tok := range origTokens {
		if authorTokens[tok] {
			protected = append(protected, tok)
			if !corrTokens[tok] {
				preserved = false
			}
		}
	}

	if lengthOK && preserved {
		c.logger.Info().Str("from", q).Str("to", corrected).Msg("auto-corrected query")
		return corrected
	}

	c.logger.Debug().
		Bool("length_ok", lengthOK).
		Strs("protected", protected).
		Msg("skipping autocorrect due to safety checks")
	return q
}

func (c *Corrector) authorLexicon(ctx context.Context) map[string]bool {
	c.lexOnce.Do(func() {
		if c.lexicon == nil {
			c.lexTokens = map[string]bool{}
			return
		}
		tokens, err := c.lexicon(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("author lexicon load failed")
			tokens = map[string]bool{}
		}
		c.lexTokens = tokens
	})
	return c.lexTokens
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range wordTokens.FindAllString(s, -1) {
		set[tok] = true
	}
	return set
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
