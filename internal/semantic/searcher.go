package semantic

import (
	"context"
	"errors"
	"fmt"

	"github.com/mvkaushik27/nalanda/internal/embedding"
	"github.com/mvkaushik27/nalanda/internal/observability"
	"github.com/mvkaushik27/nalanda/internal/storage"
)

// GeneralHit is a matched Q&A entry with its similarity score.
type GeneralHit struct {
	Entry      QAEntry
	Similarity float64
}

// Searcher answers nearest-neighbor queries against the loaded indexes,
// falling back to lexical ranking when the catalogue index is absent.
type Searcher struct {
	logger   *observability.Logger
	loader   *Loader
	embedder embedding.Embedder
	lexical  *LexicalSearcher
}

// NewSearcher wires a searcher over the given loader and embedder. The
// lexical fallback may be nil, in which case an absent index yields no
// results.
func NewSearcher(logger *observability.Logger, loader *Loader, embedder embedding.Embedder, lexical *LexicalSearcher) *Searcher {
	return &Searcher{
		logger:   logger,
		loader:   loader,
		embedder: embedder,
		lexical:  lexical,
	}
}

// SearchCatalogue returns up to topK catalogue records ranked by vector
// similarity to the query.
func (s *Searcher) SearchCatalogue(ctx context.Context, query string, topK int) ([]storage.BookRecord, error) {
	ix, err := s.loader.Catalogue(ctx)
	if err != nil {
		if errors.Is(err, ErrIndexUnavailable) {
			return s.searchLexical(ctx, query, topK)
		}
		return nil, err
	}

	vec, err := s.embedder.EmbedSingle(ctx, query)
	if err != nil {
		s.logger.Warn().Err(err).Msg("query embedding failed, using lexical fallback")
		return s.searchLexical(ctx, query, topK)
	}

	hits := ix.Search(vec, topK)
	records := make([]storage.BookRecord, 0, len(hits))
	for _, h := range hits {
		if h.Position < len(ix.Records) {
			records = append(records, ix.Records[h.Position])
		}
	}
	return records, nil
}

// SearchGeneral returns the closest Q&A entry when its similarity meets the
// threshold, or nil when nothing qualifies.
func (s *Searcher) SearchGeneral(ctx context.Context, query string, threshold float64) (*GeneralHit, error) {
	ix, err := s.loader.General(ctx)
	if err != nil {
		if errors.Is(err, ErrIndexUnavailable) {
			return nil, nil
		}
		return nil, err
	}

	vec, err := s.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits := ix.Search(vec, 1)
	if len(hits) == 0 {
		return nil, nil
	}

	sim := Similarity(hits[0].Distance)
	if sim < threshold {
		s.logger.Debug().Float64("similarity", sim).Float64("threshold", threshold).Msg("best semantic match below threshold")
		return nil, nil
	}
	return &GeneralHit{Entry: ix.Entries[hits[0].Position], Similarity: sim}, nil
}

func (s *Searcher) searchLexical(ctx context.Context, query string, topK int) ([]storage.BookRecord, error) {
	if s.lexical == nil {
		return nil, nil
	}
	return s.lexical.Search(ctx, query, topK)
}
