// Package retrieval orchestrates the full query pipeline: validation,
// spelling correction, classification, hybrid catalogue search, and layered
// general-answer resolution.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mvkaushik27/nalanda/internal/cache"
	"github.com/mvkaushik27/nalanda/internal/classify"
	"github.com/mvkaushik27/nalanda/internal/general"
	"github.com/mvkaushik27/nalanda/internal/merge"
	"github.com/mvkaushik27/nalanda/internal/monitoring"
	"github.com/mvkaushik27/nalanda/internal/observability"
	"github.com/mvkaushik27/nalanda/internal/query"
	"github.com/mvkaushik27/nalanda/internal/storage"
	"github.com/mvkaushik27/nalanda/internal/website"
)

// Search modes accepted by GetResponse. Auto classifies; the rest force a
// single answer path.
const (
	ModeAuto    = "auto"
	ModeBooks   = "books"
	ModeLibrary = "library"
	ModeWebsite = "website"
)

const (
	catalogueSearchLimit      = 20
	defaultSemanticTopK       = 10
	defaultMaxDisplayedTitles = 10
)

// statisticsPatterns mark collection-size questions answered from the
// database instead of the question store.
var statisticsPatterns = []string{
	"total books in library", "number of books in library",
	"how many books in library", "how many books does library have",
	"how many books library have", "books in library",
	"library collection", "collection size", "total collection",
	"library has how many", "size of library",
}

// borrowingPatterns take precedence over statisticsPatterns: loan-limit
// questions are general queries even when they mention book counts.
var borrowingPatterns = []string{
	"students get", "students borrow", "students can borrow",
	"students can get", "students issue", "students can issue",
	"can i borrow", "can i get", "can i issue",
	"allowed to borrow", "allowed to get", "borrow limit",
	"issue limit", "borrowing limit", "issuing limit",
	"ug students", "pg students", "phd students",
	"faculty get", "staff get", "professor get",
}

// CatalogueSearcher is the SQL side of hybrid search.
type CatalogueSearcher interface {
	Search(ctx context.Context, variants []string, limit int) ([]storage.BookRecord, error)
	SearchAuthor(ctx context.Context, author string, limit int) ([]storage.BookRecord, error)
	Stats(ctx context.Context) (storage.LibraryStats, error)
}

// VectorSearcher is the semantic side of hybrid search.
type VectorSearcher interface {
	SearchCatalogue(ctx context.Context, query string, topK int) ([]storage.BookRecord, error)
}

// AnswerResolver matches general questions against the curated store.
type AnswerResolver interface {
	Resolve(ctx context.Context, question string) *general.Answer
}

// WebsiteSource supplies the scraped website snapshot.
type WebsiteSource interface {
	Content(ctx context.Context) (*website.Content, error)
}

// Response is the outcome of one query.
type Response struct {
	Message     string
	Success     bool
	RateLimited bool
	RetryAfter  time.Duration
}

// Router runs queries through the pipeline and formats the answer.
type Router struct {
	logger     *observability.Logger
	limiter    *monitoring.RateLimiter
	audit      *monitoring.AuditLogger
	errors     *monitoring.ErrorTracker
	corrector  *query.Corrector
	classifier *classify.Classifier
	catalogue  CatalogueSearcher
	vector     VectorSearcher
	resolver   AnswerResolver
	website    WebsiteSource

	respCache cache.Client
	cacheTTL  time.Duration

	semanticTopK  int
	maxDisplayed  int
	maxQueryLen   int
	vowelRatioMin float64

	links       Links
	rateWindow  time.Duration
	clearCaches []func()
}

// Options wires a Router's collaborators. Limiter, audit, corrector, and
// classifier are required; the rest may be nil and their paths degrade.
type Options struct {
	Limiter    *monitoring.RateLimiter
	Audit      *monitoring.AuditLogger
	Errors     *monitoring.ErrorTracker
	Corrector  *query.Corrector
	Classifier *classify.Classifier
	Catalogue  CatalogueSearcher
	Vector     VectorSearcher
	Resolver   AnswerResolver
	Website    WebsiteSource

	// ResponseCache, when set, memoizes answers per mode and query.
	ResponseCache cache.Client
	CacheTTL      time.Duration

	// Retrieval knobs; zero values take the defaults.
	SemanticTopK   int
	MaxResults     int
	MaxQueryLength int
	VowelRatioMin  float64

	Links      Links
	RateWindow time.Duration

	// ClearCaches are extra cache-reset hooks run by ClearCaches.
	ClearCaches []func()
}

// NewRouter creates the query router.
func NewRouter(logger *observability.Logger, opts Options) *Router {
	rateWindow := opts.RateWindow
	if rateWindow <= 0 {
		rateWindow = time.Minute
	}
	cacheTTL := opts.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	topK := opts.SemanticTopK
	if topK <= 0 {
		topK = defaultSemanticTopK
	}
	maxDisplayed := opts.MaxResults
	if maxDisplayed <= 0 {
		maxDisplayed = defaultMaxDisplayedTitles
	}
	maxQueryLen := opts.MaxQueryLength
	if maxQueryLen <= 0 {
		maxQueryLen = query.MaxQueryLength
	}
	return &Router{
		logger:      logger,
		limiter:     opts.Limiter,
		audit:       opts.Audit,
		errors:      opts.Errors,
		corrector:   opts.Corrector,
		classifier:  opts.Classifier,
		catalogue:   opts.Catalogue,
		vector:      opts.Vector,
		resolver:    opts.Resolver,
		website:     opts.Website,
		respCache:   opts.ResponseCache,
		cacheTTL:    cacheTTL,

		semanticTopK:  topK,
		maxDisplayed:  maxDisplayed,
		maxQueryLen:   maxQueryLen,
		vowelRatioMin: opts.VowelRatioMin,

		links:       opts.Links,
		rateWindow:  rateWindow,
		clearCaches: opts.ClearCaches,
	}
}

// GetResponse answers one user query. Every call is audit logged, including
// rejections and failures.
func (r *Router) GetResponse(ctx context.Context, rawQuery, mode, clientID string) Response {
	start := time.Now()
	if mode == "" {
		mode = ModeAuto
	}
	if clientID == "" {
		clientID = "default"
	}

	if r.limiter != nil && !r.limiter.Allow(clientID) {
		r.logger.Warn().Str("client", monitoring.AnonymizeClient(clientID)).Msg("rate limit exceeded")
		return Response{
			Message:     rateLimitMessage(int(r.rateWindow.Seconds())),
			RateLimited: true,
			RetryAfter:  r.limiter.RetryAfter(),
		}
	}

	if strings.TrimSpace(rawQuery) == "" {
		resp := Response{Message: msgEmptyQuery}
		r.logAudit(rawQuery, resp.Message, clientID, start, false)
		return resp
	}

	if len(rawQuery) > r.maxQueryLen {
		r.logger.Warn().Int("length", len(rawQuery)).Msg("query too long")
		resp := Response{Message: tooLongMessage(r.maxQueryLen)}
		r.logAudit(rawQuery, resp.Message, clientID, start, false)
		return resp
	}

	original := query.Sanitize(rawQuery)
	if valid, msg := query.ValidateWith(original, r.vowelRatioMin); !valid {
		r.logger.Warn().Str("query", original).Msg("query rejected by validation")
		resp := Response{Message: msg}
		r.logAudit(original, resp.Message, clientID, start, false)
		return resp
	}

	corrected := strings.TrimSpace(r.corrector.Correct(ctx, original))
	r.logger.Info().Str("query", corrected).Str("mode", mode).Msg("processing query")

	if cached := r.cachedResponse(ctx, mode, corrected); cached != "" {
		r.logAudit(original, cached, clientID, start, true)
		return Response{Message: cached, Success: true}
	}

	message, success := r.answer(ctx, original, corrected, mode)
	if success {
		r.storeResponse(ctx, mode, corrected, message)
	}
	r.logAudit(original, message, clientID, start, success)
	return Response{Message: message, Success: success}
}

// answer runs the classified pipeline. It never returns an empty message.
func (r *Router) answer(ctx context.Context, original, corrected, mode string) (message string, success bool) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fmt.Errorf("query pipeline panic: %v", rec)
			r.logger.Error().Err(err).Msg("critical failure answering query")
			r.trackError(err, "router.answer")
			message = msgCriticalErr
			success = false
		}
	}()

	lower := strings.ToLower(corrected)

	if isStatisticsQuery(lower) {
		return r.answerStatistics(ctx)
	}

	var category classify.Category
	switch mode {
	case ModeBooks:
		category = classify.CategoryBook
	case ModeLibrary:
		category = classify.CategoryLibrary
	case ModeWebsite:
		category = classify.CategoryWebsite
	default:
		category = r.classifier.Classify(ctx, corrected)
	}

	switch category {
	case classify.CategoryLibrary:
		return r.answerLibrary(ctx, corrected)
	case classify.CategoryWebsite:
		return r.answerWebsite(ctx, corrected)
	case classify.CategoryGeneral:
		return r.answerGeneral(ctx, corrected)
	default:
		return r.answerBooks(ctx, original, corrected)
	}
}

func isStatisticsQuery(lower string) bool {
	if containsAny(lower, borrowingPatterns...) {
		return false
	}
	return containsAny(lower, statisticsPatterns...)
}

func (r *Router) answerStatistics(ctx context.Context) (string, bool) {
	if r.catalogue == nil {
		return msgStatsError, false
	}
	stats, err := r.catalogue.Stats(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("statistics lookup failed")
		r.trackError(err, "router.statistics")
		return msgStatsError, false
	}
	r.logger.Info().Int("titles", stats.UniqueTitles).Int("copies", stats.TotalCopies).Msg("answered statistics query")
	return statisticsAnswer(stats.UniqueTitles, stats.TotalCopies, stats.UniqueAuthors), true
}

func (r *Router) answerLibrary(ctx context.Context, q string) (string, bool) {
	if r.resolver == nil {
		return noLibraryMatch(r.links), true
	}
	if answer := r.resolver.Resolve(ctx, q); answer != nil {
		r.logger.Info().Str("intent", answer.Intent).Msg("answered from question store")
		return libraryPrefix(strings.ToLower(q)) + answer.Answer, true
	}
	return noLibraryMatch(r.links), true
}

func (r *Router) answerWebsite(ctx context.Context, q string) (string, bool) {
	if r.website == nil {
		return noWebsiteMatch(r.links), true
	}
	content, err := r.website.Content(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("website lookup failed")
		r.trackError(err, "router.website")
		return msgWebError, false
	}
	if result := website.Search(q, content); result != nil {
		r.logger.Info().Msg("answered from website content")
		return result.Answer, true
	}
	return noWebsiteMatch(r.links), true
}

func (r *Router) answerGeneral(ctx context.Context, q string) (string, bool) {
	if r.resolver != nil {
		if answer := r.resolver.Resolve(ctx, q); answer != nil {
			r.logger.Info().Str("intent", answer.Intent).Msg("answered from question store")
			return generalPrefix(strings.ToLower(q)) + answer.Answer, true
		}
	}

	if r.website != nil {
		content, err := r.website.Content(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Msg("website fallback unavailable")
		} else if result := website.Search(q, content); result != nil {
			r.logger.Info().Msg("answered general query from website")
			return "**From the Library Website:**\n\n" + result.Answer, true
		}
	}

	return generalFallback(r.links), true
}

func (r *Router) answerBooks(ctx context.Context, original, corrected string) (string, bool) {
	cleanQuery, intent := query.NormalizeBookQuery(original, corrected)

	groups, err := r.hybridSearch(ctx, cleanQuery, intent)
	if err != nil {
		r.logger.Error().Err(err).Str("query", cleanQuery).Msg("book search failed")
		return msgBookError, false
	}

	if len(groups) == 0 {
		r.logger.Info().Str("query", cleanQuery).Msg("no book results")
		return noBookResults(cleanQuery, r.links), true
	}

	count := len(groups)
	shown := groups
	if count > r.maxDisplayed {
		shown = groups[:r.maxDisplayed]
	}
	r.logger.Info().Int("results", count).Str("query", cleanQuery).Msg("returning book results")

	return bookIntro(count, cleanQuery, intent) + formatGroups(shown) + bookFooter(count, len(shown)), true
}

// hybridSearch combines SQL and semantic retrieval, then merges editions.
// A failure on either side degrades to the other's results; it returns an
// error only when every configured strategy failed.
func (r *Router) hybridSearch(ctx context.Context, cleanQuery, intent string) ([]merge.Group, error) {
	var all []storage.BookRecord
	var sqlErr, vecErr error

	if r.catalogue != nil {
		records, err := r.searchSQL(ctx, cleanQuery, intent)
		if err != nil {
			sqlErr = err
			r.logger.Warn().Err(err).Msg("catalogue search failed, continuing with semantic results")
			r.trackError(err, "router.catalogue")
		} else {
			all = append(all, records...)
		}
	}

	if r.vector != nil {
		records, err := r.vector.SearchCatalogue(ctx, cleanQuery, r.semanticTopK)
		if err != nil {
			vecErr = err
			r.logger.Warn().Err(err).Msg("semantic search failed, using catalogue results only")
		} else {
			all = append(all, records...)
		}
	}

	if len(all) == 0 {
		if sqlErr != nil && (r.vector == nil || vecErr != nil) {
			return nil, sqlErr
		}
		if vecErr != nil && r.catalogue == nil {
			r.trackError(vecErr, "router.semantic")
			return nil, vecErr
		}
		return nil, nil
	}
	return merge.Merge(all, r.logger), nil
}

func (r *Router) searchSQL(ctx context.Context, cleanQuery, intent string) ([]storage.BookRecord, error) {
	if intent == "author" {
		records, err := r.catalogue.SearchAuthor(ctx, cleanQuery, catalogueSearchLimit)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	return r.catalogue.Search(ctx, query.Expand(cleanQuery), catalogueSearchLimit)
}

func (r *Router) cachedResponse(ctx context.Context, mode, q string) string {
	if r.respCache == nil {
		return ""
	}
	data, err := r.respCache.Get(ctx, cache.ResponseCacheKey(mode, strings.ToLower(q)))
	if err != nil || len(data) == 0 {
		return ""
	}
	r.logger.Debug().Str("query", q).Msg("response cache hit")
	return string(data)
}

func (r *Router) storeResponse(ctx context.Context, mode, q, message string) {
	if r.respCache == nil {
		return
	}
	if err := r.respCache.Set(ctx, cache.ResponseCacheKey(mode, strings.ToLower(q)), []byte(message), r.cacheTTL); err != nil {
		r.logger.Debug().Err(err).Msg("response cache write failed")
	}
}

func (r *Router) logAudit(q, response, clientID string, start time.Time, success bool) {
	if r.audit == nil {
		return
	}
	r.audit.LogQuery(q, response, clientID, time.Since(start), success)
}

func (r *Router) trackError(err error, context string) {
	if r.errors != nil {
		r.errors.Track(err, context)
	}
}

// ClearCaches resets the rate limiter and any registered cache hooks.
func (r *Router) ClearCaches() {
	if r.limiter != nil {
		r.limiter.Reset()
	}
	for _, clear := range r.clearCaches {
		clear()
	}
	r.logger.Info().Msg("runtime caches cleared")
}
