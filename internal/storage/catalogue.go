package storage

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mvkaushik27/nalanda/internal/observability"
)

// CatalogueRepository searches and maintains the book catalogue.
type CatalogueRepository struct {
	db     DB
	driver string
	logger *observability.Logger
}

// NewCatalogueRepository creates a catalogue repository.
func NewCatalogueRepository(db DB, driver string, logger *observability.Logger) *CatalogueRepository {
	return &CatalogueRepository{db: db, driver: driver, logger: logger}
}

const bookColumns = "id, title, author, COALESCE(isbn, ''), COALESCE(itemcallnumber, ''), COALESCE(publishercode, ''), COALESCE(copyrightdate, ''), COALESCE(barcode, '')"

// Search runs a field-weighted match for each query variant in order,
// deduplicating across variants by (title, author, isbn) and stopping once
// limit unique hits accumulate. Results come back sorted by relevance.
func (r *CatalogueRepository) Search(ctx context.Context, variants []string, limit int) ([]BookRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	searchSQL := rebind(r.driver, fmt.Sprintf(`
		SELECT %s,
			CASE
				WHEN LOWER(title) = LOWER(?) THEN 100
				WHEN LOWER(isbn) = LOWER(?) THEN 90
				WHEN LOWER(title) LIKE LOWER(?) THEN 80
				WHEN LOWER(author) LIKE LOWER(?) THEN 70
				WHEN LOWER(itemcallnumber) LIKE LOWER(?) THEN 50
				ELSE 30
			END AS relevance
		FROM catalogue
		WHERE LOWER(title) LIKE LOWER(?)
		   OR LOWER(author) LIKE LOWER(?)
		   OR LOWER(isbn) LIKE LOWER(?)
		   OR LOWER(itemcallnumber) LIKE LOWER(?)
		ORDER BY relevance DESC
		LIMIT ?`, bookColumns))

	var all []BookRecord
	seen := make(map[string]bool)

	for _, variant := range variants {
		exact := variant
		fuzzy := "%" + variant + "%"

		rows, err := r.db.QueryContext(ctx, searchSQL,
			exact, exact, fuzzy, fuzzy, fuzzy,
			fuzzy, fuzzy, fuzzy, fuzzy, limit*2,
		)
		if err != nil {
			return nil, fmt.Errorf("catalogue search: %w", err)
		}

		for rows.Next() {
			var rec BookRecord
			if err := rows.Scan(&rec.ID, &rec.Title, &rec.Author, &rec.ISBN,
				&rec.CallNumber, &rec.Publisher, &rec.Year, &rec.Accession, &rec.Relevance); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan catalogue row: %w", err)
			}
			key := rec.Title + "-" + rec.Author + "-" + rec.ISBN
			if !seen[key] {
				seen[key] = true
				all = append(all, rec)
			}
			if len(all) >= limit {
				break
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("catalogue rows: %w", err)
		}
		rows.Close()

		if len(all) >= limit {
			break
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Relevance > all[j].Relevance })
	if len(all) > limit {
		all = all[:limit]
	}

	r.logger.Debug().Int("results", len(all)).Int("variants", len(variants)).Msg("catalogue search complete")
	return all, nil
}

// SearchAuthor matches the author field only.
func (r *CatalogueRepository) SearchAuthor(ctx context.Context, author string, limit int) ([]BookRecord, error) {
	if strings.TrimSpace(author) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	q := rebind(r.driver, fmt.Sprintf(
		"SELECT %s FROM catalogue WHERE author LIKE ? LIMIT ?", bookColumns))

	rows, err := r.db.QueryContext(ctx, q, "%"+author+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("author search: %w", err)
	}
	defer rows.Close()

	var results []BookRecord
	for rows.Next() {
		var rec BookRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Author, &rec.ISBN,
			&rec.CallNumber, &rec.Publisher, &rec.Year, &rec.Accession); err != nil {
			return nil, fmt.Errorf("scan author row: %w", err)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// All streams every catalogue row, used by the index builder and the
// lexical fallback searcher.
func (r *CatalogueRepository) All(ctx context.Context) ([]BookRecord, error) {
	q := fmt.Sprintf("SELECT %s FROM catalogue", bookColumns)

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load catalogue: %w", err)
	}
	defer rows.Close()

	var results []BookRecord
	for rows.Next() {
		var rec BookRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Author, &rec.ISBN,
			&rec.CallNumber, &rec.Publisher, &rec.Year, &rec.Accession); err != nil {
			return nil, fmt.Errorf("scan catalogue row: %w", err)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// Stats returns collection totals.
func (r *CatalogueRepository) Stats(ctx context.Context) (LibraryStats, error) {
	var stats LibraryStats

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT COALESCE(isbn, title)) FROM catalogue WHERE title IS NOT NULL",
	).Scan(&stats.UniqueTitles)
	if err != nil {
		return stats, fmt.Errorf("count titles: %w", err)
	}

	err = r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM catalogue").Scan(&stats.TotalCopies)
	if err != nil {
		return stats, fmt.Errorf("count copies: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT author) FROM catalogue WHERE author IS NOT NULL AND author != ''",
	).Scan(&stats.UniqueAuthors)
	if err != nil {
		return stats, fmt.Errorf("count authors: %w", err)
	}

	return stats, nil
}

var nonAlpha = regexp.MustCompile(`[^a-z]`)

// AuthorTokens builds the lexicon of known author-name tokens: lower-cased,
// punctuation-stripped, alphabetic only. Used by the spelling corrector to
// avoid mangling author names.
func (r *CatalogueRepository) AuthorTokens(ctx context.Context) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT author FROM catalogue WHERE author IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("load author lexicon: %w", err)
	}
	defer rows.Close()

	tokens := make(map[string]bool)
	for rows.Next() {
		var author string
		if err := rows.Scan(&author); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		cleaned := strings.NewReplacer("|", " ", "/", " ").Replace(author)
		for _, tok := range strings.Fields(cleaned) {
			tok = nonAlpha.ReplaceAllString(strings.ToLower(tok), "")
			if tok != "" {
				tokens[tok] = true
			}
		}
	}

	r.logger.Debug().Int("tokens", len(tokens)).Msg("author lexicon built")
	return tokens, rows.Err()
}
