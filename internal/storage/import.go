package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// ImportResult reports the outcome of a catalogue import.
type ImportResult struct {
	Inserted int
	Skipped  int
}

// csv header names accepted for each catalogue column, lower-cased.
var csvColumnAliases = map[string][]string{
	"title":      {"title"},
	"author":     {"author"},
	"isbn":       {"isbn"},
	"callnumber": {"call no", "callnumber", "itemcallnumber", "call number"},
	"publisher":  {"publisher", "publishercode"},
	"year":       {"year", "copyrightdate"},
	"accession":  {"barcode", "accession", "accession number"},
}

// ImportCSV loads catalogue rows from a CSV export. Rows without a title
// are skipped with a warning; a malformed row never aborts the import.
func (r *CatalogueRepository) ImportCSV(ctx context.Context, src io.Reader) (ImportResult, error) {
	var result ImportResult

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return result, fmt.Errorf("read csv header: %w", err)
	}

	colIdx := mapColumns(header)
	if _, ok := colIdx["title"]; !ok {
		return result, fmt.Errorf("csv missing title column")
	}

	insertSQL := rebind(r.driver, `
		INSERT INTO catalogue (title, author, isbn, itemcallnumber, publishercode, copyrightdate, barcode)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			r.logger.Warn().Err(err).Msg("skipping malformed csv row")
			result.Skipped++
			continue
		}

		field := func(name string) string {
			idx, ok := colIdx[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		title := field("title")
		if title == "" {
			r.logger.Warn().Msg("skipping csv row without title")
			result.Skipped++
			continue
		}

		_, err = r.db.ExecContext(ctx, insertSQL,
			title, field("author"), field("isbn"), field("callnumber"),
			field("publisher"), field("year"), field("accession"),
		)
		if err != nil {
			r.logger.Warn().Err(err).Str("title", title).Msg("insert failed, skipping row")
			result.Skipped++
			continue
		}
		result.Inserted++
	}

	r.logger.Info().Int("inserted", result.Inserted).Int("skipped", result.Skipped).Msg("catalogue import complete")
	return result, nil
}

func mapColumns(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for name, aliases := range csvColumnAliases {
			for _, alias := range aliases {
				if h == alias {
					idx[name] = i
				}
			}
		}
	}
	return idx
}
