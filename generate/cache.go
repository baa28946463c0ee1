package generate

import (
	"slices"
	"strings"
	"sync"
	"time"

	nextline "github.com/Paranoid-AF/nextline"
)

const (
	fingerprintMessages  = 3
	fingerprintTextRunes = 50
	fingerprintInputRune = 30
)

// Fingerprint derives the cache key for a conversational context: the role
// and first 50 characters of each of the last three messages, plus the first
// 30 characters of the current input. Distinct contexts that share these
// prefixes collide on purpose.
func Fingerprint(history []nextline.Message, input string) string {
	start := len(history) - fingerprintMessages
	if start < 0 {
		start = 0
	}
	parts := make([]string, 0, fingerprintMessages)
	for _, m := range history[start:] {
		parts = append(parts, m.Role+":"+truncateRunes(m.PlainText(), fingerprintTextRunes))
	}
	return strings.Join(parts, "|") + "_" + truncateRunes(input, fingerprintInputRune)
}

// Cache is a bounded, time-aware store of suggestions keyed by fingerprint.
// Expiry is lazy: callers run Cleanup before reading.
type Cache struct {
	mu      sync.Mutex
	entries map[string]nextline.Suggestion
	maxSize int
	expiry  time.Duration
	now     func() time.Time
}

// NewCache creates a cache holding at most maxSize entries for expiry each.
// now may be nil to use the wall clock.
func NewCache(maxSize int, expiry time.Duration, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{
		entries: make(map[string]nextline.Suggestion),
		maxSize: maxSize,
		expiry:  expiry,
		now:     now,
	}
}

// Get returns the entry for key if present and younger than the expiry.
// A hit does not change the entry.
func (c *Cache) Get(key string) (nextline.Suggestion, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.entries[key]
	if !ok || c.expired(s) {
		return nextline.Suggestion{}, false
	}
	return s, true
}

// Put stores s under key, replacing any previous entry.
func (c *Cache) Put(key string, s nextline.Suggestion) {
	c.mu.Lock()
	c.entries[key] = s
	c.mu.Unlock()
}

// Cleanup drops expired entries, then evicts the oldest entries by
// suggestion timestamp until the size bound holds.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, s := range c.entries {
		if c.expired(s) {
			delete(c.entries, key)
		}
	}

	excess := len(c.entries) - max(c.maxSize, 0)
	if excess <= 0 {
		return
	}

	type aged struct {
		key string
		ts  time.Time
	}
	order := make([]aged, 0, len(c.entries))
	for key, s := range c.entries {
		order = append(order, aged{key, s.Timestamp})
	}
	slices.SortFunc(order, func(a, b aged) int {
		return a.ts.Compare(b.ts)
	})
	for _, a := range order[:excess] {
		delete(c.entries, a.key)
	}
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) expired(s nextline.Suggestion) bool {
	return c.now().Sub(s.Timestamp) >= c.expiry
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
