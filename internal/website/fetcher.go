// Package website fetches and searches the library's public website so the
// assistant can answer questions the curated store does not cover.
package website

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"

	"github.com/mvkaushik27/nalanda/internal/observability"
)

const (
	fetchUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxContactItems = 3
	minSectionChars = 50
	maxSnippetChars = 500
)

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern = regexp.MustCompile(`\b(?:\+91[-\s]?)?[6-9]\d{9}\b`)
	contentClass = regexp.MustCompile(`(?i)content|section|main`)
)

// Link is one hyperlink extracted from the page.
type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Contact holds contact details scraped from the page.
type Contact struct {
	Emails []string `json:"emails,omitempty"`
	Phones []string `json:"phones,omitempty"`
}

// Content is the extracted website snapshot used for searching.
type Content struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Sections    []string  `json:"sections"`
	Links       []Link    `json:"links"`
	Contact     Contact   `json:"contact"`
	TextContent []string  `json:"text_content"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Fetcher retrieves the library website, caching the extracted snapshot on
// disk. A stale snapshot is still served when a refresh fails.
type Fetcher struct {
	logger     *observability.Logger
	httpClient *http.Client
	url        string
	cachePath  string
	cacheTTL   time.Duration
	enabled    bool

	now func() time.Time
}

// NewFetcher creates a website fetcher. When enabled is false, Content
// always returns nil without touching the network.
func NewFetcher(logger *observability.Logger, siteURL, cachePath string, cacheTTL, timeout time.Duration, enabled bool) *Fetcher {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		logger:     logger,
		httpClient: &http.Client{Timeout: timeout},
		url:        siteURL,
		cachePath:  cachePath,
		cacheTTL:   cacheTTL,
		enabled:    enabled,
		now:        time.Now,
	}
}

// Content returns the website snapshot, from cache when fresh.
func (f *Fetcher) Content(ctx context.Context) (*Content, error) {
	if !f.enabled || f.url == "" {
		return nil, nil
	}

	if cached := f.readCache(); cached != nil && f.now().Sub(cached.FetchedAt) < f.cacheTTL {
		f.logger.Debug().Dur("age", f.now().Sub(cached.FetchedAt)).Msg("serving cached website snapshot")
		return cached, nil
	}

	content, err := f.fetch(ctx)
	if err != nil {
		f.logger.Error().Err(err).Str("url", f.url).Msg("website fetch failed")
		if stale := f.readCache(); stale != nil {
			f.logger.Warn().Msg("serving stale website snapshot after fetch failure")
			return stale, nil
		}
		return nil, err
	}

	f.writeCache(content)
	f.logger.Info().Int("sections", len(content.Sections)).Int("links", len(content.Links)).Msg("website snapshot refreshed")
	return content, nil
}

func (f *Fetcher) fetch(ctx context.Context) (*Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch website: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch website: status %d", resp.StatusCode)
	}

	base, err := url.Parse(f.url)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	content := f.extract(doc, base)
	content.FetchedAt = f.now()
	return content, nil
}

func (f *Fetcher) extract(doc *html.Node, base *url.URL) *Content {
	content := &Content{URL: f.url, Title: "Library"}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if t := strings.TrimSpace(nodeText(n)); t != "" {
					content.Title = t
				}
			case "h1", "h2", "h3":
				if t := strings.TrimSpace(nodeText(n)); len(t) > 5 {
					content.Sections = append(content.Sections, t)
				}
			case "a":
				if href := attrValue(n, "href"); href != "" {
					if t := strings.TrimSpace(nodeText(n)); len(t) > 3 {
						content.Links = append(content.Links, Link{Text: t, URL: resolveURL(base, href)})
					}
				}
			case "section", "div":
				if contentClass.MatchString(attrValue(n, "class")) {
					if t := collapseSpace(nodeText(n)); len(t) > minSectionChars {
						content.TextContent = append(content.TextContent, truncateText(t, maxSnippetChars))
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	// Readability gives a cleaner main-article extraction than class
	// matching alone; use it as the lead snippet when it finds one.
	if article, err := readability.FromDocument(doc, base); err == nil {
		if t := collapseSpace(article.TextContent); len(t) > minSectionChars {
			content.TextContent = append([]string{truncateText(t, maxSnippetChars)}, content.TextContent...)
		}
	}

	pageText := nodeText(doc)
	content.Contact.Emails = uniqueCapped(emailPattern.FindAllString(pageText, -1), maxContactItems)
	content.Contact.Phones = uniqueCapped(phonePattern.FindAllString(pageText, -1), maxContactItems)
	return content
}

func (f *Fetcher) readCache() *Content {
	if f.cachePath == "" {
		return nil
	}
	data, err := os.ReadFile(f.cachePath)
	if err != nil {
		return nil
	}
	var content Content
	if err := json.Unmarshal(data, &content); err != nil {
		f.logger.Warn().Err(err).Msg("website cache corrupt, ignoring")
		return nil
	}
	return &content
}

func (f *Fetcher) writeCache(content *Content) {
	if f.cachePath == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(f.cachePath), 0o755); err != nil {
		f.logger.Warn().Err(err).Msg("website cache directory create failed")
		return
	}
	data, err := json.Marshal(content)
	if err != nil {
		return
	}
	if err := os.WriteFile(f.cachePath, data, 0o644); err != nil {
		f.logger.Warn().Err(err).Msg("website cache write failed")
	}
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func uniqueCapped(items []string, n int) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	sort.Strings(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}
