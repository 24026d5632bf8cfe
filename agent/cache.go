package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/h4jen/yspy"
	"github.com/rs/zerolog"
)

// CacheFile is the name of the response cache in the portfolio directory.
const CacheFile = "ai_cache.json"

// CacheEntry is a cached answer.
type CacheEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	LastAccessed time.Time `json:"last_accessed"`
	AccessCount  int       `json:"access_count"`
	Message      string    `json:"message"`
	Response     string    `json:"response"`
	Tokens       int64     `json:"tokens"`
}

// Cache keeps the answers to questions for a while, so that asking the same question again
// costs nothing. Entries expire ttl after they were stored.
type Cache struct {
	store *portfolio.Store
	ttl   time.Duration
	log   zerolog.Logger
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]*CacheEntry
}

// CacheStats describes the content of the cache.
type CacheStats struct {
	Entries     int
	Active      int
	Expired     int
	Hits        int   // answers served from the cache
	TokensSaved int64 // tokens the hits would have cost
}

// NewCache loads the cache file of store. A ttl of zero disables the cache.
func NewCache(store *portfolio.Store, ttl time.Duration, log zerolog.Logger) *Cache {
	c := &Cache{store: store, ttl: ttl, log: log, now: time.Now, entries: make(map[string]*CacheEntry)}
	if _, err := store.LoadJSON(CacheFile, &c.entries); err != nil {
		log.Warn().Err(err).Msg("ignoring unreadable response cache")
		c.entries = make(map[string]*CacheEntry)
	}
	return c
}

func cacheKey(model, message string) string {
	sum := sha256.Sum256([]byte(model + "|||" + message))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) expired(e *CacheEntry) bool { return c.now().Sub(e.Timestamp) > c.ttl }

// Get returns the unexpired answer to message asked to model.
func (c *Cache) Get(model, message string) (string, bool) {
	if c == nil || c.ttl <= 0 {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(model, message)]
	if !ok || c.expired(e) {
		return "", false
	}
	e.LastAccessed = c.now()
	e.AccessCount++
	c.save()
	return e.Response, true
}

// Set stores the answer to message and the tokens it cost.
func (c *Cache) Set(model, message, response string, tokens int64) {
	if c == nil || c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[cacheKey(model, message)] = &CacheEntry{
		Timestamp:    now,
		LastAccessed: now,
		AccessCount:  1,
		Message:      message,
		Response:     response,
		Tokens:       tokens,
	}
	c.save()
}

// ClearExpired removes the expired entries and returns how many there were.
func (c *Cache) ClearExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		c.save()
	}
	return n
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*CacheEntry)
	c.save()
}

// Stats counts the entries and the hits.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s CacheStats
	for _, e := range c.entries {
		s.Entries++
		if c.expired(e) {
			s.Expired++
		} else {
			s.Active++
		}
		if e.AccessCount > 1 {
			s.Hits += e.AccessCount - 1
			s.TokensSaved += int64(e.AccessCount-1) * e.Tokens
		}
	}
	return s
}

// save must be called with c.mu held. A cache that cannot be saved still serves answers.
func (c *Cache) save() {
	if err := c.store.SaveJSON(CacheFile, c.entries); err != nil {
		c.log.Warn().Err(err).Msg("cannot save response cache")
	}
}
