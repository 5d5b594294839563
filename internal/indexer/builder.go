// Package indexer builds the vector index files consumed by semantic
// search, embedding catalogue rows and curated questions in batches.
package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mvkaushik27/nalanda/internal/embedding"
	"github.com/mvkaushik27/nalanda/internal/general"
	"github.com/mvkaushik27/nalanda/internal/observability"
	"github.com/mvkaushik27/nalanda/internal/semantic"
	"github.com/mvkaushik27/nalanda/internal/storage"
)

// CatalogueSource supplies the rows to index.
type CatalogueSource interface {
	All(ctx context.Context) ([]storage.BookRecord, error)
}

// Progress reports completed and total embedding counts during a build.
type Progress func(done, total int)

// Builder embeds source texts and writes index files.
type Builder struct {
	logger    *observability.Logger
	embedder  embedding.Embedder
	batchSize int

	// OnProgress, when set, is called after each embedded batch.
	OnProgress Progress
}

// NewBuilder creates an index builder.
func NewBuilder(logger *observability.Logger, embedder embedding.Embedder, batchSize int) *Builder {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Builder{
		logger:    logger,
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// BuildCatalogue embeds every catalogue row and writes the catalogue index.
// Returns the number of indexed rows.
func (b *Builder) BuildCatalogue(ctx context.Context, source CatalogueSource, path string) (int, error) {
	records, err := source.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalogue rows: %w", err)
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("catalogue is empty, nothing to index")
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = indexText(rec)
	}

	vectors, err := b.embedAll(ctx, texts)
	if err != nil {
		return 0, err
	}

	ix := &semantic.CatalogueIndex{
		Index: semantic.Index{
			Model:     b.embedder.Model(),
			Dimension: b.embedder.Dimension(),
			Vectors:   vectors,
		},
		Records: records,
	}
	if err := semantic.SaveCatalogueIndex(path, ix); err != nil {
		return 0, err
	}

	b.logger.Info().Int("rows", len(records)).Str("path", path).Msg("catalogue index written")
	return len(records), nil
}

// BuildGeneral embeds every stored question and writes the general index.
// Returns the number of indexed questions.
func (b *Builder) BuildGeneral(ctx context.Context, store *general.Store, path string) (int, error) {
	if store.Len() == 0 {
		return 0, fmt.Errorf("question store is empty, nothing to index")
	}

	entries := make([]semantic.QAEntry, 0, store.Len())
	all := store.Entries()
	questions := make([]string, 0, len(all))
	for q := range all {
		questions = append(questions, q)
	}
	sort.Strings(questions)
	for _, q := range questions {
		a := all[q]
		entries = append(entries, semantic.QAEntry{Question: q, Intent: a.Intent, Answer: a.Answer})
	}

	texts := make([]string, len(entries))
	for i, e := range entries {
		texts[i] = e.Question
	}

	vectors, err := b.embedAll(ctx, texts)
	if err != nil {
		return 0, err
	}

	ix := &semantic.GeneralIndex{
		Index: semantic.Index{
			Model:     b.embedder.Model(),
			Dimension: b.embedder.Dimension(),
			Vectors:   vectors,
		},
		Entries: entries,
	}
	if err := semantic.SaveGeneralIndex(path, ix); err != nil {
		return 0, err
	}

	b.logger.Info().Int("questions", len(entries)).Str("path", path).Msg("general index written")
	return len(entries), nil
}

func (b *Builder) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		batch, err := b.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
		if b.OnProgress != nil {
			b.OnProgress(end, len(texts))
		}
	}
	return vectors, nil
}

// indexText is the embedded representation of one catalogue row.
func indexText(rec storage.BookRecord) string {
	parts := []string{rec.Title}
	if rec.Author != "" {
		parts = append(parts, rec.Author)
	}
	return strings.Join(parts, " ")
}
