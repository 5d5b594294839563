package query

import (
	"regexp"
	"strings"
)

var bookPrefixes = []string{
	"book on", "books on", "book about", "books about", "textbook on", "textbook for",
}

var authorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`by\s+([a-z\s]+)`),
	regexp.MustCompile(`author[:\s]+([a-z\s]+)`),
	regexp.MustCompile(`written\s+by\s+([a-z\s]+)`),
}

var expandStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "for": true,
	"in": true, "on": true, "at": true, "to": true, "with": true,
}

// Expand generates query variations to widen catalogue search recall.
// The original query is always the first variant; duplicates collapse.
func Expand(q string) []string {
	variants := []string{q}
	seen := map[string]bool{q: true}
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v != "" && !seen[v] {
			seen[v] = true
			variants = append(variants, v)
		}
	}

	lower := strings.ToLower(strings.TrimSpace(q))

	for _, prefix := range bookPrefixes {
		if strings.HasPrefix(lower, prefix) {
			add(strings.TrimPrefix(lower, prefix))
		}
	}

	for _, pattern := range authorPatterns {
		if m := pattern.FindStringSubmatch(lower); m != nil {
			author := strings.TrimSpace(m[1])
			if len(author) > 2 {
				add(author)
			}
		}
	}

	words := strings.Fields(lower)
	filtered := make([]string, 0, len(words))
	for _, w := range words {
		if !expandStopWords[w] {
			filtered = append(filtered, w)
		}
	}
	if len(filtered) < len(words) && len(filtered) > 0 {
		add(strings.Join(filtered, " "))
	}

	return variants
}

var trailingPunct = regexp.MustCompile(`[?.,!]+$`)

// NormalizeBookQuery detects author-focused queries and extracts the author
// name. Returns the cleaned query and an intent of "author" or "topic".
func NormalizeBookQuery(original, corrected string) (string, string) {
	cq := strings.TrimSpace(corrected)
	oq := strings.TrimSpace(original)
	lower := strings.ToLower(cq)

	if strings.Contains(lower, "by ") || strings.Contains(lower, "author") {
		for _, prefix := range []string{"books by ", "by ", "author: ", "author "} {
			if idx := strings.Index(lower, prefix); idx >= 0 {
				tail := oq
				if idx+len(prefix) <= len(oq) {
					tail = oq[idx+len(prefix):]
				}
				author := strings.TrimSpace(trailingPunct.ReplaceAllString(strings.TrimSpace(tail), ""))
				return author, "author"
			}
		}
	}

	return cq, "topic"
}
