package semantic

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/mvkaushik27/nalanda/internal/observability"
	"github.com/mvkaushik27/nalanda/internal/storage"
)

// CatalogueSource supplies rows for the lexical fallback corpus.
type CatalogueSource interface {
	All(ctx context.Context) ([]storage.BookRecord, error)
}

var lexicalStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"for": true, "in": true, "on": true, "at": true, "to": true, "with": true,
	"by": true, "is": true, "are": true, "be": true, "this": true, "that": true,
	"it": true, "its": true, "from": true, "as": true,
}

var lexicalToken = regexp.MustCompile(`[a-z0-9]+`)

// LexicalSearcher ranks catalogue rows by TF-IDF cosine similarity over
// title and author. The term matrix is built on first use and reused; a
// failed build is retried on the next query so a recovered catalogue
// re-enables the fallback.
type LexicalSearcher struct {
	logger *observability.Logger
	source CatalogueSource

	mu    sync.Mutex
	built bool

	records []storage.BookRecord
	docs    []map[string]float64
	norms   []float64
	idf     map[string]float64

	// MinSimilarity is the floor below which no result is returned.
	MinSimilarity float64
}

// NewLexicalSearcher creates a lexical fallback searcher.
func NewLexicalSearcher(logger *observability.Logger, source CatalogueSource) *LexicalSearcher {
	return &LexicalSearcher{
		logger:        logger,
		source:        source,
		MinSimilarity: 0.1,
	}
}

// Search returns up to topK records ranked by similarity to the query.
func (s *LexicalSearcher) Search(ctx context.Context, query string, topK int) ([]storage.BookRecord, error) {
	if err := s.ensureBuilt(ctx); err != nil {
		return nil, err
	}
	if len(s.records) == 0 {
		return nil, nil
	}

	qvec := make(map[string]float64)
	for _, tok := range tokenize(query) {
		qvec[tok]++
	}
	for tok, tf := range qvec {
		qvec[tok] = tf * s.idf[tok]
	}
	qnorm := vectorNorm(qvec)
	if qnorm == 0 {
		return nil, nil
	}

	type scored struct {
		idx int
		sim float64
	}
	var candidates []scored
	for i, doc := range s.docs {
		if s.norms[i] == 0 {
			continue
		}
		var dot float64
		for tok, w := range qvec {
			dot += w * doc[tok]
		}
		sim := dot / (qnorm * s.norms[i])
		if sim > s.MinSimilarity {
			candidates = append(candidates, scored{i, sim})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]storage.BookRecord, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, s.records[c.idx])
	}

	s.logger.Debug().Int("results", len(results)).Msg("lexical fallback search complete")
	return results, nil
}

func (s *LexicalSearcher) ensureBuilt(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.built {
		return nil
	}

	records, err := s.source.All(ctx)
	if err != nil {
		return err
	}

	s.records = records
	s.docs = make([]map[string]float64, len(records))
	s.norms = make([]float64, len(records))
	s.idf = make(map[string]float64)

	df := make(map[string]int)
	tokenized := make([][]string, len(records))
	for i, rec := range records {
		tokens := tokenize(rec.Title + " " + rec.Author)
		tokenized[i] = tokens
		seen := map[string]bool{}
		for _, tok := range tokens {
			if !seen[tok] {
				seen[tok] = true
				df[tok]++
			}
		}
	}

	n := float64(len(records))
	for tok, count := range df {
		s.idf[tok] = math.Log(n/(1+float64(count))) + 1
	}

	for i, tokens := range tokenized {
		vec := make(map[string]float64)
		for _, tok := range tokens {
			vec[tok]++
		}
		for tok, tf := range vec {
			vec[tok] = tf * s.idf[tok]
		}
		s.docs[i] = vec
		s.norms[i] = vectorNorm(vec)
	}

	s.built = true
	s.logger.Info().Int("rows", len(records)).Int("terms", len(s.idf)).Msg("lexical term matrix built")
	return nil
}

func tokenize(s string) []string {
	var tokens []string
	for _, tok := range lexicalToken.FindAllString(strings.ToLower(s), -1) {
		if !lexicalStopWords[tok] {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func vectorNorm(vec map[string]float64) float64 {
	var sum float64
	for _, w := range vec {
		sum += w * w
	}
	return math.Sqrt(sum)
}
