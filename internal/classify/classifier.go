package classify

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/mvkaushik27/nalanda/internal/observability"
)

// Model is an optional external classification service. Implementations
// should return CategoryBook or CategoryGeneral; anything else is treated
// as ambiguous and falls back to rule-based classification.
type Model interface {
	Classify(ctx context.Context, query string) (Category, error)
}

// Classifier decides book vs. general intent. Rule-based classification is
// the default; an external model is consulted only when explicitly enabled,
// under a hard timeout, and never propagates its failures.
type Classifier struct {
	logger          *observability.Logger
	cache           *Cache
	model           Model
	modelEnabled    bool
	externalTimeout time.Duration
}

// Options configures a Classifier.
type Options struct {
	Model           Model
	ModelEnabled    bool
	ExternalTimeout time.Duration
}

// New creates a Classifier backed by the given cache.
func New(logger *observability.Logger, cache *Cache, opts Options) *Classifier {
	timeout := opts.ExternalTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Classifier{
		logger:          logger,
		cache:           cache,
		model:           opts.Model,
		modelEnabled:    opts.ModelEnabled,
		externalTimeout: timeout,
	}
}

// Classify returns the category for a query, consulting the cache first.
// The result is always written back to the cache.
func (c *Classifier) Classify(ctx context.Context, query string) Category {
	if cached, ok := c.cache.Get(query); ok {
		c.logger.Debug().Str("category", string(cached)).Msg("classification cache hit")
		return cached
	}

	category := c.classifyUncached(ctx, query)
	c.cache.Put(query, category)
	return category
}

func (c *Classifier) classifyUncached(ctx context.Context, query string) Category {
	if c.modelEnabled && c.model != nil {
		if category, ok := c.classifyExternal(ctx, query); ok {
			return category
		}
	}
	return c.classifyFallback(query)
}

// classifyExternal calls the external model under a hard timeout. Any
// error, timeout, or ambiguous reply yields (_, false).
func (c *Classifier) classifyExternal(ctx context.Context, query string) (Category, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.externalTimeout)
	defer cancel()

	category, err := c.model.Classify(ctx, query)
	if err != nil {
		c.logger.Warn().Err(err).Msg("external classifier failed, using fallback")
		return "", false
	}
	if category != CategoryBook && category != CategoryGeneral {
		c.logger.Warn().Str("category", string(category)).Msg("ambiguous external classification, using fallback")
		return "", false
	}
	return category, true
}

var isbnPattern = regexp.MustCompile(`\b(?:\d{9}[\dX]|\d{13})\b`)

var eresourcePatterns = []string{
	"online journal", "e-journal", "ejournals", "e-journals",
	"digital journal", "electronic journal", "journal access",
	"how to access journal", "access online", "access e-",
	"online resource", "digital resource", "e-resource",
	"online database", "digital database", "remote access",
}

var generalKeywords = []string{
	"timing", "hours", "open", "close", "schedule",
	"policy", "rules", "regulation", "membership", "register",
	"wifi", "printer", "facility", "service", "reading room",
	"fine", "penalty", "overdue", "charges",
	"ebook", "e-book", "database", "e-journal", "vpn",
	"how to issue", "how to return", "how to borrow", "how to renew",
	"grammarly", "turnitin", "scopus", "mendeley",
	"librarian", "staff", "helpdesk", "contact",
	"borrow limit", "issue limit", "borrowing limit",
	"technobooth",
	"student", "students", "faculty", "phd", "pg", "ug", "mtech", "btech",
	"how many books", "can i borrow", "can i issue", "allowed to borrow",
}

var instructionalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bhow (to|do i|can i)\s+(search|find)\b`),
	regexp.MustCompile(`\bhow to use (opac|catalogue|catalog)\b`),
	regexp.MustCompile(`\bhow do i use (opac|catalogue|catalog)\b`),
	regexp.MustCompile(`\bguide\b.*\b(search|find)\b`),
}

var bookKeywords = []string{
	"book", "books", "textbook", "textbooks", "reference book",
	"author", "written by", "book by", "books by", "author:", "by author",
	"title", "edition", "volume", "vol", "publication", "published",
	"isbn", "call number", "accession", "accession number",
	"catalogue", "catalog", "classification",
	"publisher", "cover", "hardcover", "paperback", "binding",
	"find book", "search book", "looking for book", "need book",
	"find books", "search books", "show me books",
	"book on", "books on", "book about", "books about",
	"textbook on", "reference on",
	"available book", "book available", "in library",
	"library book", "library books",
}

var subjectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(physics|chemistry|biology|mathematics|math)\b`),
	regexp.MustCompile(`\b(computer|programming|coding|algorithm|data)\b`),
	regexp.MustCompile(`\b(engineering|mechanical|electrical|civil)\b`),
	regexp.MustCompile(`\b(history|geography|economics|sociology)\b`),
	regexp.MustCompile(`\b(novel|fiction|literature|poetry|drama)\b`),
	regexp.MustCompile(`\b(psychology|philosophy|anthropology)\b`),
}

// classifyFallback is the deterministic rule chain. Rules run in a strict
// order; the first match wins. E-resource phrases run before the generic
// keyword sets so journal-access questions are not mistaken for book
// searches.
func (c *Classifier) classifyFallback(query string) Category {
	lower := strings.ToLower(strings.TrimSpace(query))

	if isbnPattern.MatchString(lower) {
		c.logger.Debug().Msg("fallback: book (ISBN)")
		return CategoryBook
	}

	for _, pattern := range eresourcePatterns {
		if strings.Contains(lower, pattern) {
			c.logger.Debug().Str("pattern", pattern).Msg("fallback: general (e-resource)")
			return CategoryGeneral
		}
	}

	for _, kw := range generalKeywords {
		if strings.Contains(lower, kw) {
			c.logger.Debug().Str("keyword", kw).Msg("fallback: general")
			return CategoryGeneral
		}
	}

	for _, pattern := range instructionalPatterns {
		if pattern.MatchString(lower) {
			c.logger.Debug().Msg("fallback: general (instructional)")
			return CategoryGeneral
		}
	}

	for _, kw := range bookKeywords {
		if strings.Contains(lower, kw) {
			c.logger.Debug().Str("keyword", kw).Msg("fallback: book")
			return CategoryBook
		}
	}

	for _, pattern := range subjectPatterns {
		if pattern.MatchString(lower) {
			c.logger.Debug().Msg("fallback: book (subject)")
			return CategoryBook
		}
	}

	if len(strings.Fields(lower)) <= 3 {
		c.logger.Debug().Msg("fallback: book (short query)")
		return CategoryBook
	}

	c.logger.Debug().Msg("fallback: book (default)")
	return CategoryBook
}
