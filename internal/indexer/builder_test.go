package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvkaushik27/nalanda/internal/embedding"
	"github.com/mvkaushik27/nalanda/internal/general"
	"github.com/mvkaushik27/nalanda/internal/observability"
	"github.com/mvkaushik27/nalanda/internal/semantic"
	"github.com/mvkaushik27/nalanda/internal/storage"
)

type staticSource struct {
	records []storage.BookRecord
	err     error
}

func (s *staticSource) All(ctx context.Context) ([]storage.BookRecord, error) {
	return s.records, s.err
}

func TestBuildCatalogueWritesIndex(t *testing.T) {
	source := &staticSource{records: []storage.BookRecord{
		{Title: "Wings of Fire", Author: "Kalam, A.P.J. Abdul"},
		{Title: "The Guide", Author: "Narayan, R.K."},
		{Title: "Untitled Draft"},
	}}
	path := filepath.Join(t.TempDir(), "data", "catalogue_index.json")

	b := NewBuilder(observability.DefaultLogger(), embedding.NewMockClient(32), 2)
	var progress [][2]int
	b.OnProgress = func(done, total int) { progress = append(progress, [2]int{done, total}) }

	n, err := b.BuildCatalogue(context.Background(), source, path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, [][2]int{{2, 3}, {3, 3}}, progress, "progress is reported per batch")

	ix, err := semantic.LoadCatalogueIndex(path)
	require.NoError(t, err)
	assert.Len(t, ix.Vectors, 3)
	assert.Len(t, ix.Records, 3)
	assert.Equal(t, "mock-embedding-model", ix.Model)
}

func TestBuildCatalogueEmptySource(t *testing.T) {
	b := NewBuilder(observability.DefaultLogger(), embedding.NewMockClient(16), 10)

	_, err := b.BuildCatalogue(context.Background(), &staticSource{}, filepath.Join(t.TempDir(), "ix.json"))
	assert.Error(t, err)
}

func TestBuildCatalogueSourceError(t *testing.T) {
	b := NewBuilder(observability.DefaultLogger(), embedding.NewMockClient(16), 10)

	_, err := b.BuildCatalogue(context.Background(), &staticSource{err: errors.New("db down")}, filepath.Join(t.TempDir(), "ix.json"))
	assert.Error(t, err)
}

func TestBuildGeneralWritesIndex(t *testing.T) {
	store := general.NewStore(map[string]general.Answer{
		"library timings": {Intent: "timings", Answer: "9am to midnight"},
		"fine rates":      {Intent: "fines", Answer: "Rs. 1 per day"},
	})
	path := filepath.Join(t.TempDir(), "general_index.json")

	b := NewBuilder(observability.DefaultLogger(), embedding.NewMockClient(32), 10)
	n, err := b.BuildGeneral(context.Background(), store, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ix, err := semantic.LoadGeneralIndex(path)
	require.NoError(t, err)
	require.Len(t, ix.Entries, 2)
	assert.Equal(t, "fine rates", ix.Entries[0].Question, "entries are written in sorted question order")
	assert.Equal(t, "library timings", ix.Entries[1].Question)
}

func TestBuildGeneralEmptyStore(t *testing.T) {
	b := NewBuilder(observability.DefaultLogger(), embedding.NewMockClient(16), 10)

	_, err := b.BuildGeneral(context.Background(), general.NewStore(nil), filepath.Join(t.TempDir(), "ix.json"))
	assert.Error(t, err)
}
