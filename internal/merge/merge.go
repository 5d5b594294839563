// Package merge collapses book records retrieved by different strategies
// into unique title+author groups.
package merge

import (
	"sort"
	"strings"

	"github.com/mvkaushik27/nalanda/internal/observability"
	"github.com/mvkaushik27/nalanda/internal/storage"
)

// Edition is one (publisher, year) combination seen within a group.
type Edition struct {
	Publisher string `json:"publisher"`
	Year      string `json:"year"`
}

// Group aggregates every record of the same book: same normalized title and
// same canonical author key. Records with differing authors never merge,
// even on identical titles.
type Group struct {
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	ISBN        string    `json:"isbn"`
	Publisher   string    `json:"publisher"`
	Year        string    `json:"year"`
	Copies      int       `json:"copies"`
	Accessions  []string  `json:"accessions"`
	CallNumbers []string  `json:"call_numbers"`
	Editions    []Edition `json:"editions"`
}

type groupKey struct {
	title  string
	author string
}

// Merge deduplicates records into groups. Records without a title are
// dropped with a warning; one bad record never aborts the batch.
func Merge(records []storage.BookRecord, logger *observability.Logger) []Group {
	if len(records) == 0 {
		return nil
	}

	groups := make(map[groupKey]*Group)
	editionSets := make(map[groupKey]map[Edition]bool)
	var order []groupKey

	for _, rec := range records {
		title := strings.TrimSpace(rec.Title)
		if title == "" {
			logger.Warn().Str("author", rec.Author).Str("isbn", rec.ISBN).Msg("skipping record without title")
			continue
		}

		key := groupKey{
			title:  NormalizeTitle(title),
			author: CanonicalAuthorKey(rec.Author),
		}

		g, ok := groups[key]
		if !ok {
			g = &Group{
				Title:     title,
				Author:    strings.TrimSpace(rec.Author),
				ISBN:      strings.TrimSpace(rec.ISBN),
				Publisher: rec.Publisher,
				Year:      rec.Year,
			}
			groups[key] = g
			editionSets[key] = make(map[Edition]bool)
			order = append(order, key)
		}

		g.Copies++

		if acc := strings.TrimSpace(rec.Accession); acc != "" && !contains(g.Accessions, acc) {
			g.Accessions = append(g.Accessions, acc)
		}
		if cn := strings.TrimSpace(rec.CallNumber); cn != "" && !contains(g.CallNumbers, cn) {
			g.CallNumbers = append(g.CallNumbers, cn)
		}

		editionSets[key][Edition{
			Publisher: strings.TrimSpace(rec.Publisher),
			Year:      strings.TrimSpace(rec.Year),
		}] = true

		if g.ISBN == "" {
			if isbn := strings.TrimSpace(rec.ISBN); isbn != "" {
				g.ISBN = isbn
			}
		}
	}

	result := make([]Group, 0, len(order))
	for _, key := range order {
		g := groups[key]
		g.Editions = sortedEditions(editionSets[key])
		pickRepresentative(g)
		result = append(result, *g)
	}

	logger.Debug().Int("records", len(records)).Int("groups", len(result)).Msg("merged duplicate records")
	return result
}

func sortedEditions(set map[Edition]bool) []Edition {
	editions := make([]Edition, 0, len(set))
	for e := range set {
		editions = append(editions, e)
	}
	sort.Slice(editions, func(i, j int) bool {
		if editions[i].Publisher != editions[j].Publisher {
			return editions[i].Publisher < editions[j].Publisher
		}
		return editions[i].Year < editions[j].Year
	})
	return editions
}

// pickRepresentative sets the group's publisher and year to the most
// frequent non-empty values across its editions.
func pickRepresentative(g *Group) {
	pubCount := make(map[string]int)
	yearCount := make(map[string]int)
	for _, e := range g.Editions {
		if e.Publisher != "" {
			pubCount[e.Publisher]++
		}
		if e.Year != "" {
			yearCount[e.Year]++
		}
	}
	if pub := mostFrequent(pubCount); pub != "" {
		g.Publisher = pub
	}
	if year := mostFrequent(yearCount); year != "" {
		g.Year = year
	}
}

func mostFrequent(counts map[string]int) string {
	best := ""
	bestN := 0
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if counts[k] > bestN {
			best = k
			bestN = counts[k]
		}
	}
	return best
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

var punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// NormalizeTitle lower-cases, strips punctuation, and collapses whitespace.
func NormalizeTitle(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// CanonicalAuthorKey derives "lastname|firstinitial" from either
// "Last, First" or "First ... Last" forms. When several authors are joined
// by '|' or ';', only the primary author is used. Empty authors yield an
// empty key, which never merges with a non-empty one.
func CanonicalAuthorKey(raw string) string {
	a := strings.TrimSpace(raw)
	if a == "" {
		return ""
	}

	primary := strings.TrimSpace(strings.SplitN(strings.SplitN(a, "|", 2)[0], ";", 2)[0])

	if idx := strings.Index(primary, ","); idx >= 0 {
		last := strings.ToLower(strings.TrimSpace(primary[:idx]))
		after := strings.TrimSpace(primary[idx+1:])
		initial := ""
		if after != "" {
			initial = strings.ToLower(after[:1])
		}
		return last + "|" + initial
	}

	stripped := strings.Map(func(r rune) rune {
		if r != '\'' && strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, primary)
	parts := strings.Fields(stripped)
	if len(parts) == 0 {
		return ""
	}

	last := strings.ToLower(parts[len(parts)-1])
	initial := strings.ToLower(parts[0][:1])
	return last + "|" + initial
}
