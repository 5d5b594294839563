package storage

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvkaushik27/nalanda/internal/observability"
)

func setupTestRepo(t *testing.T) *CatalogueRepository {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, InitSchema(context.Background(), db, "sqlite"))
	return NewCatalogueRepository(db, "sqlite", observability.DefaultLogger())
}

func insertBook(t *testing.T, r *CatalogueRepository, title, author, isbn, callNo, publisher, year, barcode string) {
	t.Helper()
	_, err := r.db.ExecContext(context.Background(),
		`INSERT INTO catalogue (title, author, isbn, itemcallnumber, publishercode, copyrightdate, barcode)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		title, author, isbn, callNo, publisher, year, barcode)
	require.NoError(t, err)
}

func TestSearchRelevanceOrdering(t *testing.T) {
	r := setupTestRepo(t)
	insertBook(t, r, "Physics Handbook", "A. Jones", "111", "QC21", "Springer", "2019", "B1")
	insertBook(t, r, "Physics", "B. Smith", "222", "QC1", "Pearson", "2020", "B2")
	insertBook(t, r, "Advanced Topics", "C. Physics", "333", "QA1", "Wiley", "2018", "B3")

	results, err := r.Search(context.Background(), []string{"physics"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Exact title beats fuzzy title beats author match.
	assert.Equal(t, "Physics", results[0].Title)
	assert.Equal(t, 100, results[0].Relevance)
	assert.Equal(t, "Physics Handbook", results[1].Title)
	assert.Equal(t, 80, results[1].Relevance)
	assert.Equal(t, 70, results[2].Relevance)
}

func TestSearchDeduplicatesAcrossVariants(t *testing.T) {
	r := setupTestRepo(t)
	insertBook(t, r, "Machine Learning", "T. Mitchell", "444", "Q325", "McGraw", "1997", "B4")

	results, err := r.Search(context.Background(), []string{"machine learning", "learning"}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchHonorsLimit(t *testing.T) {
	r := setupTestRepo(t)
	for i := 0; i < 8; i++ {
		insertBook(t, r, "Chemistry Vol "+string(rune('A'+i)), "X. Author", "", "QD1", "", "2020", "")
	}

	results, err := r.Search(context.Background(), []string{"chemistry"}, 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestSearchAuthor(t *testing.T) {
	r := setupTestRepo(t)
	insertBook(t, r, "Five Point Someone", "Bhagat, Chetan", "555", "PN1", "Rupa", "2004", "B5")
	insertBook(t, r, "Algorithms", "Cormen, Thomas", "666", "QA76", "MIT", "2009", "B6")

	results, err := r.SearchAuthor(context.Background(), "Bhagat", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Five Point Someone", results[0].Title)

	results, err = r.SearchAuthor(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStats(t *testing.T) {
	r := setupTestRepo(t)
	insertBook(t, r, "Book One", "Author A", "777", "", "", "", "")
	insertBook(t, r, "Book One", "Author A", "777", "", "", "", "")
	insertBook(t, r, "Book Two", "Author B", "888", "", "", "", "")

	stats, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.UniqueTitles)
	assert.Equal(t, 3, stats.TotalCopies)
	assert.Equal(t, 2, stats.UniqueAuthors)
}

func TestAuthorTokens(t *testing.T) {
	r := setupTestRepo(t)
	insertBook(t, r, "Five Point Someone", "Bhagat, Chetan", "", "", "", "", "")
	insertBook(t, r, "Collected Works", "R. K. Narayan | Graham Greene", "", "", "", "", "")

	tokens, err := r.AuthorTokens(context.Background())
	require.NoError(t, err)

	assert.True(t, tokens["bhagat"])
	assert.True(t, tokens["chetan"])
	assert.True(t, tokens["narayan"])
	assert.True(t, tokens["greene"])
	// Initials reduce to single letters after punctuation stripping.
	assert.True(t, tokens["r"])
	assert.False(t, tokens["bhagat,"])
}

func TestImportCSV(t *testing.T) {
	r := setupTestRepo(t)

	csvData := strings.Join([]string{
		"Title,Author,ISBN,Call No,Publisher,Year,Barcode",
		"Wings of Fire,Kalam A P J,8173711461,B K14,Universities Press,1999,A001",
		",Missing Title,123,,,,A002",
		"Ignited Minds,Kalam A P J,0143029827,B K15,Penguin,2002,A003",
	}, "\n")

	result, err := r.ImportCSV(context.Background(), strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Skipped)

	stats, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalCopies)
}

func TestImportCSVMissingTitleColumn(t *testing.T) {
	r := setupTestRepo(t)
	_, err := r.ImportCSV(context.Background(), strings.NewReader("Author,ISBN\nX,1"))
	assert.Error(t, err)
}
