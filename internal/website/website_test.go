package website

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvkaushik27/nalanda/internal/observability"
)

const samplePage = `<!DOCTYPE html>
<html>
<head><title>Central Library</title></head>
<body>
<h1>Central Library Services</h1>
<h2>Membership Information</h2>
<h3>FAQ</h3>
<div class="main-content">
The library remains open from 9am to midnight on all working days. Members can
borrow up to six books at a time. Contact circulation@library.example.edu or
call 9876543210 for assistance with borrowing and returns.
</div>
<a href="/e-resources">E-Resources Portal</a>
<a href="https://opac.example.edu">Search the OPAC</a>
<a href="/x">ab</a>
</body>
</html>`

func newTestFetcher(t *testing.T, serverURL, cachePath string) *Fetcher {
	t.Helper()
	return NewFetcher(observability.DefaultLogger(), serverURL, cachePath, time.Hour, 5*time.Second, true)
}

func TestFetcherExtractsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL, filepath.Join(t.TempDir(), "cache", "website.json"))

	content, err := f.Content(context.Background())
	require.NoError(t, err)
	require.NotNil(t, content)

	assert.Equal(t, "Central Library", content.Title)
	assert.Contains(t, content.Sections, "Central Library Services")
	assert.Contains(t, content.Sections, "Membership Information")
	assert.NotContains(t, content.Sections, "FAQ", "short headings are skipped")

	var linkTexts []string
	for _, l := range content.Links {
		linkTexts = append(linkTexts, l.Text)
	}
	assert.Contains(t, linkTexts, "E-Resources Portal")
	assert.NotContains(t, linkTexts, "ab", "short link texts are skipped")

	for _, l := range content.Links {
		if l.Text == "E-Resources Portal" {
			assert.Equal(t, srv.URL+"/e-resources", l.URL, "relative links resolve against the site")
		}
	}

	assert.Contains(t, content.Contact.Emails, "circulation@library.example.edu")
	assert.Contains(t, content.Contact.Phones, "9876543210")
	require.NotEmpty(t, content.TextContent)
}

func TestFetcherServesFreshCacheWithoutNetwork(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	cachePath := filepath.Join(t.TempDir(), "website.json")
	f := newTestFetcher(t, srv.URL, cachePath)

	_, err := f.Content(context.Background())
	require.NoError(t, err)
	_, err = f.Content(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, hits, "second call must come from the cache")
}

func TestFetcherStaleCacheOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	cachePath := filepath.Join(t.TempDir(), "website.json")
	f := newTestFetcher(t, srv.URL, cachePath)

	first, err := f.Content(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)

	srv.Close()
	f.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	stale, err := f.Content(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stale, "stale snapshot is served when the refresh fails")
	assert.Equal(t, first.Title, stale.Title)
}

func TestFetcherDisabled(t *testing.T) {
	f := NewFetcher(observability.DefaultLogger(), "https://example.edu", "", time.Hour, time.Second, false)

	content, err := f.Content(context.Background())
	require.NoError(t, err)
	assert.Nil(t, content)
}

func TestFetcherFailureWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL, filepath.Join(t.TempDir(), "website.json"))

	_, err := f.Content(context.Background())
	assert.Error(t, err)
}

func TestFetcherIgnoresCorruptCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	cachePath := filepath.Join(t.TempDir(), "website.json")
	require.NoError(t, os.WriteFile(cachePath, []byte("{not json"), 0o644))

	f := newTestFetcher(t, srv.URL, cachePath)
	content, err := f.Content(context.Background())
	require.NoError(t, err)
	require.NotNil(t, content)
	assert.Equal(t, "Central Library", content.Title)
}

func sampleContent() *Content {
	return &Content{
		URL:      "https://library.example.edu",
		Title:    "Central Library",
		Sections: []string{"Membership Information", "Borrowing Rules", "About the Campus"},
		Links: []Link{
			{Text: "Membership Form", URL: "https://library.example.edu/membership"},
			{Text: "E-Resources Portal", URL: "https://library.example.edu/e-resources"},
		},
		TextContent: []string{"Membership is open to all students and staff with a valid identity card."},
	}
}

func TestSearchMatchesSectionsLinksAndText(t *testing.T) {
	res := Search("membership details", sampleContent())
	require.NotNil(t, res)
	assert.Equal(t, "website_info", res.Intent)
	assert.Contains(t, res.Answer, "Membership Information")
	assert.Contains(t, res.Answer, "Membership Form")
	assert.Contains(t, res.Answer, "valid identity card")
	assert.Contains(t, res.Answer, "https://library.example.edu")
}

func TestSearchNoMatch(t *testing.T) {
	assert.Nil(t, Search("astrophysics seminar", sampleContent()))
}

func TestSearchNilContent(t *testing.T) {
	assert.Nil(t, Search("membership", nil))
}

func TestSearchCapsSections(t *testing.T) {
	content := sampleContent()
	content.Sections = []string{"Library One", "Library Two", "Library Three", "Library Four"}

	res := Search("library", content)
	require.NotNil(t, res)
	assert.Contains(t, res.Answer, "Library Three")
	assert.NotContains(t, res.Answer, "Library Four", "only the top three sections are shown")
}
