// Package general answers non-catalogue library questions from a curated
// question-and-answer store, layering semantic, exact, fuzzy, and
// synonym-based matching.
package general

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Answer is the payload stored for one known question.
type Answer struct {
	Intent string `json:"intent"`
	Answer string `json:"answer"`
}

// Store holds the curated questions keyed by their lowercase form.
type Store struct {
	entries map[string]Answer
	keys    []string
}

// LoadStore reads the question store from a JSON file. Values may be either
// answer objects or single-quoted stringified objects; both forms are
// accepted.
func LoadStore(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question store: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse question store: %w", err)
	}

	entries := make(map[string]Answer, len(raw))
	for question, value := range raw {
		answer, err := decodeAnswer(value)
		if err != nil {
			return nil, fmt.Errorf("question %q: %w", question, err)
		}
		entries[strings.ToLower(strings.TrimSpace(question))] = answer
	}
	return NewStore(entries), nil
}

// NewStore builds a store from already-decoded entries.
func NewStore(entries map[string]Answer) *Store {
	normalized := make(map[string]Answer, len(entries))
	for question, answer := range entries {
		normalized[strings.ToLower(strings.TrimSpace(question))] = answer
	}
	keys := make([]string, 0, len(normalized))
	for k := range normalized {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &Store{entries: normalized, keys: keys}
}

func decodeAnswer(value json.RawMessage) (Answer, error) {
	var answer Answer
	if err := json.Unmarshal(value, &answer); err == nil {
		return answer, nil
	}

	// Legacy entries store the object as a single-quoted string.
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return Answer{}, fmt.Errorf("unsupported value shape")
	}
	if err := json.Unmarshal([]byte(strings.ReplaceAll(s, "'", `"`)), &answer); err != nil {
		return Answer{}, fmt.Errorf("parse stringified value: %w", err)
	}
	return answer, nil
}

// Get returns the answer stored under the exact lowercase key.
func (s *Store) Get(question string) (Answer, bool) {
	a, ok := s.entries[question]
	return a, ok
}

// Keys returns all stored questions in sorted order.
func (s *Store) Keys() []string {
	return s.keys
}

// Len returns the number of stored questions.
func (s *Store) Len() int {
	return len(s.entries)
}

// Entries returns every question with its answer, for index building.
func (s *Store) Entries() map[string]Answer {
	out := make(map[string]Answer, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}
