package general

import (
	"context"
	"strings"

	"github.com/xrash/smetrics"

	"github.com/mvkaushik27/nalanda/internal/observability"
	"github.com/mvkaushik27/nalanda/internal/query"
	"github.com/mvkaushik27/nalanda/internal/semantic"
)

// synonymGroups widens query terms before keyword scoring so phrasing
// differences still land on the right stored question.
var synonymGroups = map[string][]string{
	"hours":       {"timing", "timings", "time", "schedule", "open", "close"},
	"timing":      {"hours", "timings", "time", "schedule", "open", "when"},
	"timings":     {"hours", "timing", "time", "schedule", "open", "when"},
	"open":        {"timing", "hours", "schedule", "timings", "available", "accessible"},
	"fine":        {"penalty", "charge", "fee", "fines", "late fee", "overdue"},
	"book":        {"books", "title", "titles", "volume", "publication"},
	"renew":       {"renewal", "extend", "extension", "reissue"},
	"issue":       {"borrow", "checkout", "take", "get", "loan"},
	"return":      {"submit", "give back", "bring back"},
	"search":      {"find", "look", "locate", "discover"},
	"find":        {"search", "look", "locate", "get"},
	"e-journals":  {"ejournal", "ejournals", "e-journal", "journal", "journals", "e-resources", "digital", "online"},
	"ejournal":    {"e-journals", "ejournals", "e-journal", "journals", "e-resources"},
	"e-resources": {"eresources", "e-journals", "ejournals", "digital", "online", "electronic"},
	"help":        {"assist", "support", "guide", "information"},
	"access":      {"use", "get", "obtain", "available"},
}

// SemanticMatcher finds the closest indexed question above a threshold.
type SemanticMatcher interface {
	SearchGeneral(ctx context.Context, query string, threshold float64) (*semantic.GeneralHit, error)
}

// Resolver matches a user question against the store, trying strategies in
// decreasing order of confidence: semantic, exact, fuzzy, then
// synonym-scored keywords.
type Resolver struct {
	logger   *observability.Logger
	store    *Store
	semantic SemanticMatcher

	SemanticThreshold float64
	FuzzyCutoff       float64
	SynonymThreshold  float64
}

// NewResolver wires a resolver over the store. The semantic matcher may be
// nil, in which case resolution starts at exact matching.
func NewResolver(logger *observability.Logger, store *Store, matcher SemanticMatcher) *Resolver {
	return &Resolver{
		logger:            logger,
		store:             store,
		semantic:          matcher,
		SemanticThreshold: 0.75,
		FuzzyCutoff:       0.75,
		SynonymThreshold:  0.35,
	}
}

// Resolve returns the stored answer for the question, or nil when no
// strategy produces a confident match.
func (r *Resolver) Resolve(ctx context.Context, question string) *Answer {
	intent := query.ExtractIntent(question)

	if r.semantic != nil {
		hit, err := r.semantic.SearchGeneral(ctx, question, r.SemanticThreshold)
		if err != nil {
			r.logger.Warn().Err(err).Msg("semantic question match failed, trying exact match")
		} else if hit != nil {
			r.logger.Debug().Str("intent", hit.Entry.Intent).Float64("similarity", hit.Similarity).Msg("semantic question match")
			return &Answer{Intent: hit.Entry.Intent, Answer: hit.Entry.Answer}
		}
	}

	if a := r.resolveExact(intent); a != nil {
		return a
	}
	if a := r.resolveFuzzy(intent); a != nil {
		return a
	}
	return r.resolveSynonyms(intent)
}

func (r *Resolver) resolveExact(intent query.Intent) *Answer {
	for _, alt := range intent.Alternatives {
		if a, ok := r.store.Get(alt); ok {
			r.logger.Debug().Str("matched", alt).Msg("exact question match")
			return &a
		}
	}
	return nil
}

func (r *Resolver) resolveFuzzy(intent query.Intent) *Answer {
	for _, alt := range intent.Alternatives {
		bestKey := ""
		bestScore := 0.0
		for _, key := range r.store.Keys() {
			score := smetrics.JaroWinkler(alt, key, 0.7, 4)
			if score > bestScore {
				bestScore = score
				bestKey = key
			}
		}
		if bestKey != "" && bestScore >= r.FuzzyCutoff {
			r.logger.Debug().Str("query", alt).Str("matched", bestKey).Float64("score", bestScore).Msg("fuzzy question match")
			a, _ := r.store.Get(bestKey)
			return &a
		}
	}
	return nil
}

func (r *Resolver) resolveSynonyms(intent query.Intent) *Answer {
	queryWords := strings.Fields(intent.Normalized)
	querySet := make(map[string]bool, len(queryWords))
	for _, w := range queryWords {
		querySet[w] = true
	}

	expanded := make(map[string]bool, len(querySet))
	for w := range querySet {
		expanded[w] = true
		for _, syn := range synonymGroups[w] {
			expanded[syn] = true
		}
	}

	bestKey := ""
	bestScore := 0.0
	for _, key := range r.store.Keys() {
		score := r.scoreKey(intent.Normalized, queryWords, querySet, expanded, key)
		if score > bestScore {
			bestScore = score
			bestKey = key
		}
	}

	if bestKey == "" || bestScore <= r.SynonymThreshold {
		r.logger.Debug().Str("query", intent.Normalized).Float64("best_score", bestScore).Msg("no confident question match")
		return nil
	}

	r.logger.Debug().Str("query", intent.Normalized).Str("matched", bestKey).Float64("score", bestScore).Msg("keyword question match")
	a, _ := r.store.Get(bestKey)
	return &a
}

func (r *Resolver) scoreKey(normalized string, queryWords []string, querySet, expanded map[string]bool, key string) float64 {
	keyWords := strings.Fields(key)
	keySet := make(map[string]bool, len(keyWords))
	for _, w := range keyWords {
		keySet[w] = true
	}

	common := 0
	for w := range expanded {
		if keySet[w] {
			common++
		}
	}
	overlap := 0.0
	if common > 0 {
		overlap = float64(common) / float64(max(len(querySet), len(keySet)))
	}

	substring := 0.0
	if len(normalized) >= 4 && len(key) >= 4 {
		if strings.Contains(key, normalized) || strings.Contains(normalized, key) {
			substring = 0.3
		} else {
			for w := range querySet {
				if len(w) >= 4 && strings.Contains(key, w) {
					substring = 0.2
					break
				}
			}
		}
	}

	order := 0.0
	if overlap > 0 {
		inOrder := 0
		for i, w := range queryWords {
			if i >= len(keyWords) {
				continue
			}
			lo := max(0, i-1)
			hi := min(len(keyWords), i+2)
			for _, kw := range keyWords[lo:hi] {
				if kw == w {
					inOrder++
					break
				}
			}
		}
		if inOrder > 0 {
			order = 0.15 * float64(inOrder) / float64(len(queryWords))
		}
	}

	return overlap + substring + order
}
