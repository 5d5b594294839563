// Package classify decides whether a query targets the book catalogue or
// general library information.
package classify

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Category is a query classification outcome.
type Category string

const (
	CategoryBook    Category = "book"
	CategoryGeneral Category = "general"
	CategoryLibrary Category = "library"
	CategoryWebsite Category = "website"
)

// Cache stores classification results keyed by normalized query. Entries
// expire after the TTL and are evicted lazily on lookup. When the cache
// overflows its cap, the oldest entries are evicted in bulk so the cache
// settles at cap minus evictCount.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	evictCount int
	now        func() time.Time
}

type cacheEntry struct {
	category Category
	storedAt time.Time
}

// NewCache creates a classification cache. Zero values fall back to the
// production defaults of 2h TTL, 500 entries, 100-entry eviction.
func NewCache(ttl time.Duration, maxEntries, evictCount int) *Cache {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 500
	}
	if evictCount <= 0 || evictCount >= maxEntries {
		evictCount = 100
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		evictCount: evictCount,
		now:        time.Now,
	}
}

// Get returns the cached category for a query, if present and fresh.
func (c *Cache) Get(q string) (Category, bool) {
	key := normalizeKey(q)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		return "", false
	}
	return entry.category, true
}

// Put stores a classification result.
func (c *Cache) Put(q string, category Category) {
	key := normalizeKey(q)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{category: category, storedAt: c.now()}

	if len(c.entries) > c.maxEntries {
		c.evictOldest()
	}
}

// evictOldest removes the oldest entries until the cache holds
// maxEntries - evictCount items. Caller holds the lock.
func (c *Cache) evictOldest() {
	type keyed struct {
		key      string
		storedAt time.Time
	}
	all := make([]keyed, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, keyed{k, e.storedAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].storedAt.Before(all[j].storedAt)
	})

	target := c.maxEntries - c.evictCount
	for i := 0; len(c.entries) > target && i < len(all); i++ {
		delete(c.entries, all[i].key)
	}
}

// Len reports the number of stored entries, including expired ones not yet
// evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func normalizeKey(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}
