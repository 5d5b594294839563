package website

import (
	"strings"
)

// Result is a website answer with the intent label used downstream.
type Result struct {
	Intent string
	Answer string
}

// Search scans the snapshot for content mentioning any query word and
// assembles an answer from the best sections, details, and links. Returns
// nil when nothing on the site matches.
func Search(query string, content *Content) *Result {
	if content == nil {
		return nil
	}

	queryWords := strings.Fields(strings.ToLower(query))
	if len(queryWords) == 0 {
		return nil
	}

	var sections []string
	for _, section := range content.Sections {
		if containsAnyWord(strings.ToLower(section), queryWords) {
			sections = append(sections, section)
		}
	}

	var links []Link
	for _, link := range content.Links {
		if containsAnyWord(strings.ToLower(link.Text), queryWords) {
			links = append(links, link)
		}
	}

	var texts []string
	for _, text := range content.TextContent {
		if containsAnyWord(strings.ToLower(text), queryWords) {
			texts = append(texts, text)
		}
	}

	if len(sections) == 0 && len(links) == 0 && len(texts) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("**Information from the Library Website:**\n\n")

	if len(sections) > 0 {
		b.WriteString("**Relevant Sections:**\n")
		for _, section := range capSlice(sections, 3) {
			b.WriteString("- " + section + "\n")
		}
		b.WriteString("\n")
	}

	if len(texts) > 0 {
		b.WriteString("**Details:**\n")
		b.WriteString(truncateText(texts[0], 300) + "...\n\n")
	}

	if len(links) > 0 {
		b.WriteString("**Related Links:**\n")
		for _, link := range links[:min(len(links), 3)] {
			b.WriteString("- [" + link.Text + "](" + link.URL + ")\n")
		}
	}

	b.WriteString("\n[Visit the Library Website](" + content.URL + ")")

	return &Result{Intent: "website_info", Answer: b.String()}
}

func containsAnyWord(haystack string, words []string) bool {
	for _, w := range words {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	return false
}

func capSlice(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
