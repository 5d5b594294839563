package retrieval

import (
	"fmt"
	"strings"

	"github.com/mvkaushik27/nalanda/internal/merge"
)

// Links are the external references woven into responses.
type Links struct {
	Website       string
	OPAC          string
	HelpdeskEmail string
}

const (
	msgEmptyQuery  = "Please enter a query."
	msgBookError   = "Sorry, I encountered an error searching for books. Please try again or contact the library helpdesk for assistance."
	msgQueryError  = "Sorry, I encountered an error processing your query. Please try again."
	msgWebError    = "Sorry, I encountered an error searching the website. Please try again."
	msgCriticalErr = "Sorry, I encountered an unexpected error. Please try again or contact support if the problem persists."
	msgStatsError  = "I couldn't retrieve the library statistics at this time. Please try again later."
)

func rateLimitMessage(windowSeconds int) string {
	return fmt.Sprintf("**Too many requests.** Please wait %d seconds and try again.", windowSeconds)
}

func tooLongMessage(limit int) string {
	return fmt.Sprintf("**Query too long.** Please keep your question under %d characters.", limit)
}

// generalPrefix picks a conversational heading for a general answer.
func generalPrefix(q string) string {
	switch {
	case containsAny(q, "timing", "hours", "open", "when", "schedule"):
		return "**Library Hours:**\n\n"
	case containsAny(q, "fine", "penalty", "fee", "late"):
		return "**About Fines:**\n\n"
	case containsAny(q, "borrow", "issue", "how many", "limit"):
		return "**Borrowing Guidelines:**\n\n"
	case containsAny(q, "search", "find", "opac", "catalogue"):
		return "**Searching for Books:**\n\n"
	case containsAny(q, "membership", "join", "register"):
		return "**Membership Information:**\n\n"
	case containsAny(q, "contact", "email", "phone", "reach"):
		return "**Contact Information:**\n\n"
	default:
		return "**Here's the information:**\n\n"
	}
}

// libraryPrefix is the narrower heading set used in forced library mode.
func libraryPrefix(q string) string {
	switch {
	case containsAny(q, "timing", "hours", "open", "when"):
		return "**Library Hours:**\n\n"
	case containsAny(q, "fine", "penalty", "fee"):
		return "**Fine Policy:**\n\n"
	case containsAny(q, "borrow", "issue", "how many"):
		return "**Borrowing Information:**\n\n"
	case containsAny(q, "search", "find", "opac"):
		return "**How to Search:**\n\n"
	default:
		return "**Here's what I found:**\n\n"
	}
}

func bookIntro(count int, cleanQuery, intent string) string {
	switch {
	case intent == "author":
		plural := "s"
		if count == 1 {
			plural = ""
		}
		return fmt.Sprintf("**Great! I found %d book%s by %s in our library:**\n\n", count, plural, cleanQuery)
	case count == 1:
		return "**Perfect! I found exactly what you're looking for:**\n\n"
	case count <= 3:
		return fmt.Sprintf("**I found %d books matching '%s':**\n\n", count, cleanQuery)
	default:
		return fmt.Sprintf("**I found %d books related to '%s'. Here are the most relevant ones:**\n\n", count, cleanQuery)
	}
}

func bookFooter(count, shown int) string {
	if count <= shown {
		return ""
	}
	return fmt.Sprintf("\n\n*Showing top %d results. %d more books are available. Try refining your search for more specific results.*", shown, count-shown)
}

// formatGroups renders merged titles as a numbered markdown list.
func formatGroups(groups []merge.Group) string {
	var b strings.Builder
	for i, g := range groups {
		fmt.Fprintf(&b, "**%d. %s**\n", i+1, g.Title)
		if g.Author != "" {
			fmt.Fprintf(&b, "   Author: %s\n", g.Author)
		}
		if g.Publisher != "" {
			if g.Year != "" {
				fmt.Fprintf(&b, "   Publisher: %s (%s)\n", g.Publisher, g.Year)
			} else {
				fmt.Fprintf(&b, "   Publisher: %s\n", g.Publisher)
			}
		} else if g.Year != "" {
			fmt.Fprintf(&b, "   Year: %s\n", g.Year)
		}
		if g.ISBN != "" {
			fmt.Fprintf(&b, "   ISBN: %s\n", g.ISBN)
		}
		if len(g.CallNumbers) > 0 {
			fmt.Fprintf(&b, "   Call Numbers: %s\n", strings.Join(g.CallNumbers, ", "))
		}
		copies := "copies"
		if g.Copies == 1 {
			copies = "copy"
		}
		fmt.Fprintf(&b, "   Availability: %d %s\n", g.Copies, copies)
		if i != len(groups)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func noBookResults(cleanQuery string, links Links) string {
	suggestions := []string{
		"- Try broader keywords (e.g., 'machine learning' instead of 'deep learning transformers')",
		"- Check the spelling of author names or book titles",
	}
	if links.OPAC != "" {
		suggestions = append(suggestions, fmt.Sprintf("- Use the [OPAC system](%s) for advanced search", links.OPAC))
	}
	if links.HelpdeskEmail != "" {
		suggestions = append(suggestions, fmt.Sprintf("- Ask library staff for help at **%s**", links.HelpdeskEmail))
	}
	return fmt.Sprintf("**I couldn't find any books matching '%s' in our catalogue.**\n\n**Here's what you can try:**\n%s",
		cleanQuery, strings.Join(suggestions, "\n"))
}

func noLibraryMatch(links Links) string {
	var b strings.Builder
	b.WriteString("**I couldn't find specific information about that.**\n\n**Here are some options:**\n")
	b.WriteString("- Try rephrasing your question\n")
	if links.Website != "" {
		fmt.Fprintf(&b, "- Visit the [official library website](%s)\n", links.Website)
	}
	if links.HelpdeskEmail != "" {
		fmt.Fprintf(&b, "- Email the library staff at **%s**\n", links.HelpdeskEmail)
	}
	b.WriteString("- Ask me about library hours, borrowing rules, or how to search for books!")
	return b.String()
}

func noWebsiteMatch(links Links) string {
	var b strings.Builder
	b.WriteString("**I couldn't find this information on the website.**\n\nPlease:\n")
	b.WriteString("- Try different keywords\n")
	if links.Website != "" {
		fmt.Fprintf(&b, "- Visit the [official library website](%s) directly\n", links.Website)
	}
	if links.HelpdeskEmail != "" {
		fmt.Fprintf(&b, "- Contact the library staff at **%s**", links.HelpdeskEmail)
	}
	return strings.TrimRight(b.String(), "\n")
}

func generalFallback(links Links) string {
	var b strings.Builder
	b.WriteString("**I don't have specific information about that right now.**\n\n")
	b.WriteString("**Here's how I can help you:**\n")
	b.WriteString("- Search for books by title, author, or subject\n")
	b.WriteString("- Answer questions about library hours and policies\n")
	b.WriteString("- Explain borrowing rules and fine policies\n")
	b.WriteString("- Guide you on using OPAC and e-resources\n\n")
	b.WriteString("**For other questions:**\n")
	if links.Website != "" {
		fmt.Fprintf(&b, "- Visit the [official library website](%s)\n", links.Website)
	}
	if links.HelpdeskEmail != "" {
		fmt.Fprintf(&b, "- Email **%s**\n", links.HelpdeskEmail)
	}
	b.WriteString("- Visit the library helpdesk in person\n\n")
	b.WriteString("Feel free to ask me anything about the library!")
	return b.String()
}

func statisticsAnswer(uniqueTitles, totalCopies, uniqueAuthors int) string {
	return fmt.Sprintf("**Here's what I found:**\n\n**Library Collection Statistics:**\n\n"+
		"- **Total Unique Titles:** %s books\n"+
		"- **Total Copies:** %s items\n"+
		"- **Authors Represented:** %s different authors\n\n"+
		"Our collection is continuously growing to serve the academic needs of the institute.",
		groupDigits(uniqueTitles), groupDigits(totalCopies), groupDigits(uniqueAuthors))
}

// groupDigits renders 1234567 as "1,234,567".
func groupDigits(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	return s + "," + strings.Join(parts, ",")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
