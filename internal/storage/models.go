// Package storage provides the relational catalogue store.
package storage

// BookRecord is one catalogue row: a single physical copy of a book.
type BookRecord struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	ISBN       string `json:"isbn"`
	CallNumber string `json:"call_number"`
	Publisher  string `json:"publisher"`
	Year       string `json:"year"`
	Accession  string `json:"accession"`

	// Relevance is the field-weighted match score assigned during search.
	Relevance int `json:"relevance,omitempty"`
}

// LibraryStats summarizes the collection.
type LibraryStats struct {
	UniqueTitles  int `json:"unique_titles"`
	TotalCopies   int `json:"total_copies"`
	UniqueAuthors int `json:"unique_authors"`
}
