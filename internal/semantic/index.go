// Package semantic provides vector-similarity search over precomputed
// embeddings, with a lexical fallback when no index is available.
package semantic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mvkaushik27/nalanda/internal/storage"
)

// Index is a flat vector index searched by L2 distance.
type Index struct {
	Model     string      `json:"model"`
	Dimension int         `json:"dimension"`
	Vectors   [][]float32 `json:"vectors"`
}

// Hit is one nearest-neighbor result.
type Hit struct {
	Position int
	Distance float32
}

// Similarity converts an L2 distance to a 0..1 score, higher is closer.
func Similarity(distance float32) float64 {
	return 1.0 / (1.0 + float64(distance))
}

// Search returns up to topK nearest vectors by squared L2 distance.
func (ix *Index) Search(query []float32, topK int) []Hit {
	if len(ix.Vectors) == 0 || len(query) == 0 || topK <= 0 {
		return nil
	}

	hits := make([]Hit, 0, len(ix.Vectors))
	for i, v := range ix.Vectors {
		hits = append(hits, Hit{Position: i, Distance: l2Squared(query, v)})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func l2Squared(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// CatalogueIndex pairs catalogue embeddings with their source records.
type CatalogueIndex struct {
	Index
	Records []storage.BookRecord `json:"records"`
}

// QAEntry is one indexed general question with its answer payload.
type QAEntry struct {
	Question string `json:"question"`
	Intent   string `json:"intent"`
	Answer   string `json:"answer"`
}

// GeneralIndex pairs Q&A embeddings with their entries.
type GeneralIndex struct {
	Index
	Entries []QAEntry `json:"entries"`
}

// LoadCatalogueIndex reads a catalogue index file.
func LoadCatalogueIndex(path string) (*CatalogueIndex, error) {
	var ix CatalogueIndex
	if err := loadJSON(path, &ix); err != nil {
		return nil, err
	}
	if len(ix.Vectors) != len(ix.Records) {
		return nil, fmt.Errorf("catalogue index corrupt: %d vectors, %d records", len(ix.Vectors), len(ix.Records))
	}
	return &ix, nil
}

// LoadGeneralIndex reads a general Q&A index file.
func LoadGeneralIndex(path string) (*GeneralIndex, error) {
	var ix GeneralIndex
	if err := loadJSON(path, &ix); err != nil {
		return nil, err
	}
	if len(ix.Vectors) != len(ix.Entries) {
		return nil, fmt.Errorf("general index corrupt: %d vectors, %d entries", len(ix.Vectors), len(ix.Entries))
	}
	return &ix, nil
}

// SaveCatalogueIndex writes a catalogue index file atomically.
func SaveCatalogueIndex(path string, ix *CatalogueIndex) error {
	return saveJSON(path, ix)
}

// SaveGeneralIndex writes a general index file atomically.
func SaveGeneralIndex(path string, ix *GeneralIndex) error {
	return saveJSON(path, ix)
}

func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrIndexUnavailable
		}
		return fmt.Errorf("read index: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse index: %w", err)
	}
	return nil
}

func saveJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace index: %w", err)
	}
	return nil
}
