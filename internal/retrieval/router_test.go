package retrieval

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvkaushik27/nalanda/internal/cache"
	"github.com/mvkaushik27/nalanda/internal/classify"
	"github.com/mvkaushik27/nalanda/internal/general"
	"github.com/mvkaushik27/nalanda/internal/monitoring"
	"github.com/mvkaushik27/nalanda/internal/observability"
	"github.com/mvkaushik27/nalanda/internal/query"
	"github.com/mvkaushik27/nalanda/internal/storage"
	"github.com/mvkaushik27/nalanda/internal/website"
)

type stubCatalogue struct {
	searchResults []storage.BookRecord
	authorResults []storage.BookRecord
	stats         storage.LibraryStats
	searchErr     error
	statsErr      error

	searchCalls int
	authorCalls int
}

func (s *stubCatalogue) Search(ctx context.Context, variants []string, limit int) ([]storage.BookRecord, error) {
	s.searchCalls++
	return s.searchResults, s.searchErr
}

func (s *stubCatalogue) SearchAuthor(ctx context.Context, author string, limit int) ([]storage.BookRecord, error) {
	s.authorCalls++
	return s.authorResults, nil
}

func (s *stubCatalogue) Stats(ctx context.Context) (storage.LibraryStats, error) {
	return s.stats, s.statsErr
}

type stubVector struct {
	results []storage.BookRecord
	err     error
	calls   int
}

func (s *stubVector) SearchCatalogue(ctx context.Context, q string, topK int) ([]storage.BookRecord, error) {
	s.calls++
	return s.results, s.err
}

type stubResolver struct {
	answer *general.Answer
	calls  int
}

func (s *stubResolver) Resolve(ctx context.Context, question string) *general.Answer {
	s.calls++
	return s.answer
}

type stubWebsite struct {
	content *website.Content
	err     error
}

func (s *stubWebsite) Content(ctx context.Context) (*website.Content, error) {
	return s.content, s.err
}

func testLinks() Links {
	return Links{
		Website:       "https://library.example.edu",
		OPAC:          "https://opac.example.edu",
		HelpdeskEmail: "helpdesk@library.example.edu",
	}
}

func newTestRouter(t *testing.T, opts Options) *Router {
	t.Helper()
	logger := observability.DefaultLogger()
	if opts.Limiter == nil {
		opts.Limiter = monitoring.NewRateLimiter(100, time.Minute)
	}
	if opts.Corrector == nil {
		opts.Corrector = query.NewCorrector(logger, nil, nil)
	}
	if opts.Classifier == nil {
		opts.Classifier = classify.New(logger, classify.NewCache(time.Hour, 500, 100), classify.Options{})
	}
	if opts.Links == (Links{}) {
		opts.Links = testLinks()
	}
	return NewRouter(logger, opts)
}

func sampleBooks() []storage.BookRecord {
	return []storage.BookRecord{
		{Title: "Wings of Fire", Author: "Kalam, A.P.J. Abdul", ISBN: "9788173711466", Publisher: "Universities Press", Year: "1999", CallNumber: "B KAL", Accession: "A1"},
		{Title: "Wings of Fire", Author: "Kalam, A.P.J. Abdul", ISBN: "9788173711466", Publisher: "Universities Press", Year: "1999", CallNumber: "B KAL", Accession: "A2"},
		{Title: "Ignited Minds", Author: "Kalam, A.P.J. Abdul", ISBN: "9780143424123", Publisher: "Penguin", Year: "2002", CallNumber: "B KAL2", Accession: "A3"},
	}
}

func TestRouterRateLimited(t *testing.T) {
	r := newTestRouter(t, Options{Limiter: monitoring.NewRateLimiter(1, time.Minute)})

	first := r.GetResponse(context.Background(), "library timings", ModeAuto, "client-a")
	assert.False(t, first.RateLimited)

	second := r.GetResponse(context.Background(), "library timings", ModeAuto, "client-a")
	assert.True(t, second.RateLimited)
	assert.Contains(t, second.Message, "Too many requests")
	assert.Greater(t, second.RetryAfter, time.Duration(0))
}

func TestRouterEmptyQuery(t *testing.T) {
	r := newTestRouter(t, Options{})

	resp := r.GetResponse(context.Background(), "   ", ModeAuto, "c")
	assert.Equal(t, msgEmptyQuery, resp.Message)
	assert.False(t, resp.Success)
}

func TestRouterQueryTooLong(t *testing.T) {
	r := newTestRouter(t, Options{})

	resp := r.GetResponse(context.Background(), strings.Repeat("a ", 200), ModeAuto, "c")
	assert.Equal(t, tooLongMessage(query.MaxQueryLength), resp.Message)
	assert.False(t, resp.Success)
}

func TestRouterConfigurableQueryLength(t *testing.T) {
	r := newTestRouter(t, Options{MaxQueryLength: 50})

	resp := r.GetResponse(context.Background(), strings.Repeat("a ", 30), ModeAuto, "c")
	assert.Equal(t, tooLongMessage(50), resp.Message)
	assert.False(t, resp.Success)
}

func TestRouterConfigurableVowelRatio(t *testing.T) {
	r := newTestRouter(t, Options{VowelRatioMin: 0.5})

	resp := r.GetResponse(context.Background(), "wings of fire", ModeBooks, "c")
	assert.False(t, resp.Success)
	assert.Equal(t, query.MsgGibberish, resp.Message, "a stricter vowel floor rejects ordinary text")
}

func TestRouterRejectsGibberish(t *testing.T) {
	r := newTestRouter(t, Options{})

	resp := r.GetResponse(context.Background(), "xzqwv bnmpl kjhgf", ModeAuto, "c")
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Message)
}

func TestRouterStatisticsQuery(t *testing.T) {
	cat := &stubCatalogue{stats: storage.LibraryStats{UniqueTitles: 52341, TotalCopies: 98765, UniqueAuthors: 12000}}
	r := newTestRouter(t, Options{Catalogue: cat})

	resp := r.GetResponse(context.Background(), "how many books in library", ModeAuto, "c")
	require.True(t, resp.Success)
	assert.Contains(t, resp.Message, "52,341")
	assert.Contains(t, resp.Message, "98,765")
	assert.Contains(t, resp.Message, "Library Collection Statistics")
}

func TestRouterBorrowingBeatsStatistics(t *testing.T) {
	resolver := &stubResolver{answer: &general.Answer{Intent: "borrowing", Answer: "UG students can borrow 4 books."}}
	cat := &stubCatalogue{stats: storage.LibraryStats{UniqueTitles: 1}}
	r := newTestRouter(t, Options{Catalogue: cat, Resolver: resolver})

	resp := r.GetResponse(context.Background(), "how many books can ug students get from library", ModeAuto, "c")
	require.True(t, resp.Success)
	assert.Contains(t, resp.Message, "UG students can borrow 4 books.")
	assert.NotContains(t, resp.Message, "Collection Statistics")
}

func TestRouterStatisticsFailure(t *testing.T) {
	tracker := monitoring.NewErrorTracker(observability.DefaultLogger(), nil, "")
	cat := &stubCatalogue{statsErr: errors.New("db down")}
	r := newTestRouter(t, Options{Catalogue: cat, Errors: tracker})

	resp := r.GetResponse(context.Background(), "library collection size please", ModeAuto, "c")
	assert.False(t, resp.Success)
	assert.Equal(t, msgStatsError, resp.Message)
	assert.Equal(t, 1, tracker.Count())
}

func TestRouterGeneralAnswerWithPrefix(t *testing.T) {
	resolver := &stubResolver{answer: &general.Answer{Intent: "timings", Answer: "Open 9am to midnight."}}
	r := newTestRouter(t, Options{Resolver: resolver})

	resp := r.GetResponse(context.Background(), "what are the library timings", ModeAuto, "c")
	require.True(t, resp.Success)
	assert.True(t, strings.HasPrefix(resp.Message, "**Library Hours:**"), "timing answers get the hours heading")
	assert.Contains(t, resp.Message, "Open 9am to midnight.")
}

func TestRouterGeneralFallsBackToWebsite(t *testing.T) {
	site := &stubWebsite{content: &website.Content{
		URL:      "https://library.example.edu",
		Sections: []string{"Wifi Access Instructions"},
	}}
	r := newTestRouter(t, Options{Resolver: &stubResolver{}, Website: site})

	resp := r.GetResponse(context.Background(), "wifi access details please", ModeAuto, "c")
	require.True(t, resp.Success)
	assert.Contains(t, resp.Message, "From the Library Website")
	assert.Contains(t, resp.Message, "Wifi Access Instructions")
}

func TestRouterGeneralFallbackMessage(t *testing.T) {
	r := newTestRouter(t, Options{Resolver: &stubResolver{}})

	resp := r.GetResponse(context.Background(), "parking rules for visitors", ModeAuto, "c")
	require.True(t, resp.Success)
	assert.Contains(t, resp.Message, "I don't have specific information about that right now")
	assert.Contains(t, resp.Message, "helpdesk@library.example.edu")
}

func TestRouterBookSearchMergesCopies(t *testing.T) {
	cat := &stubCatalogue{searchResults: sampleBooks()}
	r := newTestRouter(t, Options{Catalogue: cat})

	resp := r.GetResponse(context.Background(), "wings of fire", ModeBooks, "c")
	require.True(t, resp.Success)
	assert.Contains(t, resp.Message, "I found 2 books")
	assert.Contains(t, resp.Message, "Wings of Fire")
	assert.Contains(t, resp.Message, "2 copies", "duplicate accessions collapse into one title")
	assert.Contains(t, resp.Message, "Ignited Minds")
}

func TestRouterAuthorIntentUsesAuthorSearch(t *testing.T) {
	cat := &stubCatalogue{authorResults: sampleBooks()[:1]}
	r := newTestRouter(t, Options{Catalogue: cat})

	resp := r.GetResponse(context.Background(), "books by kalam", ModeBooks, "c")
	require.True(t, resp.Success)
	assert.Equal(t, 1, cat.authorCalls)
	assert.Equal(t, 0, cat.searchCalls, "author hit skips the variant search")
	assert.Contains(t, resp.Message, "by kalam")
}

func TestRouterAuthorMissFallsBackToVariantSearch(t *testing.T) {
	cat := &stubCatalogue{searchResults: sampleBooks()[:1]}
	r := newTestRouter(t, Options{Catalogue: cat})

	resp := r.GetResponse(context.Background(), "books by greene", ModeBooks, "c")
	require.True(t, resp.Success)
	assert.Equal(t, 1, cat.authorCalls)
	assert.Equal(t, 1, cat.searchCalls)
}

func TestRouterBookSearchCombinesSemanticResults(t *testing.T) {
	cat := &stubCatalogue{searchResults: sampleBooks()[:1]}
	vec := &stubVector{results: []storage.BookRecord{
		{Title: "The Guide", Author: "Narayan, R.K.", Accession: "B1"},
	}}
	r := newTestRouter(t, Options{Catalogue: cat, Vector: vec})

	resp := r.GetResponse(context.Background(), "wings of fire", ModeBooks, "c")
	require.True(t, resp.Success)
	assert.Equal(t, 1, vec.calls)
	assert.Contains(t, resp.Message, "Wings of Fire")
	assert.Contains(t, resp.Message, "The Guide")
}

func TestRouterBookSearchSurvivesSemanticFailure(t *testing.T) {
	cat := &stubCatalogue{searchResults: sampleBooks()[:1]}
	vec := &stubVector{err: errors.New("index offline")}
	r := newTestRouter(t, Options{Catalogue: cat, Vector: vec})

	resp := r.GetResponse(context.Background(), "wings of fire", ModeBooks, "c")
	require.True(t, resp.Success)
	assert.Contains(t, resp.Message, "Wings of Fire")
}

func TestRouterBookSearchNoResults(t *testing.T) {
	cat := &stubCatalogue{}
	r := newTestRouter(t, Options{Catalogue: cat})

	resp := r.GetResponse(context.Background(), "nonexistent title here", ModeBooks, "c")
	require.True(t, resp.Success)
	assert.Contains(t, resp.Message, "I couldn't find any books matching")
	assert.Contains(t, resp.Message, "opac.example.edu")
}

func TestRouterCatalogueOutageFallsBackToSemantic(t *testing.T) {
	tracker := monitoring.NewErrorTracker(observability.DefaultLogger(), nil, "")
	cat := &stubCatalogue{searchErr: errors.New("db down")}
	vec := &stubVector{results: []storage.BookRecord{
		{Title: "Wings of Fire", Author: "Kalam, A.P.J. Abdul", Accession: "A1"},
	}}
	r := newTestRouter(t, Options{Catalogue: cat, Vector: vec, Errors: tracker})

	resp := r.GetResponse(context.Background(), "wings of fire", ModeBooks, "c")
	require.True(t, resp.Success, "a catalogue outage degrades to semantic results")
	assert.Equal(t, 1, vec.calls, "semantic search still runs when the catalogue is down")
	assert.Contains(t, resp.Message, "Wings of Fire")
	assert.Equal(t, 1, tracker.Count(), "the catalogue failure is still tracked")
}

func TestRouterCatalogueOutageWithEmptySemantic(t *testing.T) {
	cat := &stubCatalogue{searchErr: errors.New("db down")}
	vec := &stubVector{}
	r := newTestRouter(t, Options{Catalogue: cat, Vector: vec})

	resp := r.GetResponse(context.Background(), "wings of fire", ModeBooks, "c")
	require.True(t, resp.Success, "a working semantic side with no hits means zero results, not failure")
	assert.Contains(t, resp.Message, "I couldn't find any books matching")
}

func TestRouterBookSearchErrorWhenAllStrategiesFail(t *testing.T) {
	tracker := monitoring.NewErrorTracker(observability.DefaultLogger(), nil, "")
	cat := &stubCatalogue{searchErr: errors.New("db down")}
	vec := &stubVector{err: errors.New("index offline")}
	r := newTestRouter(t, Options{Catalogue: cat, Vector: vec, Errors: tracker})

	resp := r.GetResponse(context.Background(), "wings of fire", ModeBooks, "c")
	assert.False(t, resp.Success)
	assert.Equal(t, msgBookError, resp.Message)
	assert.Equal(t, 1, tracker.Count())
}

func TestRouterConfigurableResultLimit(t *testing.T) {
	cat := &stubCatalogue{searchResults: sampleBooks()}
	r := newTestRouter(t, Options{Catalogue: cat, MaxResults: 1})

	resp := r.GetResponse(context.Background(), "wings of fire", ModeBooks, "c")
	require.True(t, resp.Success)
	assert.Contains(t, resp.Message, "Wings of Fire")
	assert.NotContains(t, resp.Message, "Ignited Minds")
	assert.Contains(t, resp.Message, "Showing top 1 results")
}

func TestRouterForcedLibraryMode(t *testing.T) {
	resolver := &stubResolver{}
	r := newTestRouter(t, Options{Resolver: resolver})

	resp := r.GetResponse(context.Background(), "wings of fire", ModeLibrary, "c")
	require.True(t, resp.Success)
	assert.Equal(t, 1, resolver.calls, "library mode consults only the question store")
	assert.Contains(t, resp.Message, "I couldn't find specific information about that")
}

func TestRouterWebsiteMode(t *testing.T) {
	site := &stubWebsite{content: &website.Content{
		URL:      "https://library.example.edu",
		Sections: []string{"Membership Information"},
	}}
	r := newTestRouter(t, Options{Website: site})

	resp := r.GetResponse(context.Background(), "membership rules", ModeWebsite, "c")
	require.True(t, resp.Success)
	assert.Contains(t, resp.Message, "Membership Information")
}

func TestRouterWebsiteModeNoMatch(t *testing.T) {
	site := &stubWebsite{content: &website.Content{URL: "https://library.example.edu"}}
	r := newTestRouter(t, Options{Website: site})

	resp := r.GetResponse(context.Background(), "astrophysics seminar", ModeWebsite, "c")
	require.True(t, resp.Success)
	assert.Contains(t, resp.Message, "I couldn't find this information on the website")
}

func TestRouterWebsiteModeFetchError(t *testing.T) {
	r := newTestRouter(t, Options{Website: &stubWebsite{err: errors.New("network down")}})

	resp := r.GetResponse(context.Background(), "membership rules", ModeWebsite, "c")
	assert.False(t, resp.Success)
	assert.Equal(t, msgWebError, resp.Message)
}

func TestRouterResponseCache(t *testing.T) {
	cat := &stubCatalogue{searchResults: sampleBooks()[:1]}
	r := newTestRouter(t, Options{
		Catalogue:     cat,
		ResponseCache: cache.NewMemoryClient(100),
		CacheTTL:      time.Minute,
	})

	first := r.GetResponse(context.Background(), "wings of fire", ModeBooks, "c")
	require.True(t, first.Success)
	second := r.GetResponse(context.Background(), "wings of fire", ModeBooks, "c")
	require.True(t, second.Success)

	assert.Equal(t, first.Message, second.Message)
	assert.Equal(t, 1, cat.searchCalls, "second identical query is served from the response cache")
}

func TestRouterAuditsEveryQuery(t *testing.T) {
	dir := t.TempDir()
	queryLog := filepath.Join(dir, "query_audit.jsonl")
	audit := monitoring.NewAuditLogger(observability.DefaultLogger(), queryLog, "")
	r := newTestRouter(t, Options{Audit: audit, Resolver: &stubResolver{}})

	r.GetResponse(context.Background(), "what are the library timings", ModeAuto, "203.0.113.9")
	r.GetResponse(context.Background(), strings.Repeat("x ", 200), ModeAuto, "203.0.113.9")

	f, err := os.Open(queryLog)
	require.NoError(t, err)
	defer f.Close()

	var entries []monitoring.QueryAuditEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e monitoring.QueryAuditEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}
	require.Len(t, entries, 2, "accepted and rejected queries are both audited")
	assert.True(t, entries[0].Success)
	assert.False(t, entries[1].Success)
}

func TestRouterClearCaches(t *testing.T) {
	limiter := monitoring.NewRateLimiter(1, time.Minute)
	cleared := false
	r := newTestRouter(t, Options{
		Limiter:     limiter,
		ClearCaches: []func(){func() { cleared = true }},
	})

	require.False(t, r.GetResponse(context.Background(), "library timings", ModeLibrary, "c").RateLimited)
	require.True(t, r.GetResponse(context.Background(), "library timings", ModeLibrary, "c").RateLimited)

	r.ClearCaches()
	assert.True(t, cleared)
	assert.False(t, r.GetResponse(context.Background(), "library timings", ModeLibrary, "c").RateLimited)
}
