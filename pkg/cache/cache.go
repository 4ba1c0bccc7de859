// Package cache provides the tool result cache keyed by tool name and a
// fingerprint of the non-binary arguments.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// binaryFields never participate in fingerprints: they are injected after
// extraction and vary per request without changing tool semantics.
var binaryFields = map[string]bool{
	"image_base64":  true,
	"images_base64": true,
}

// Entry is one cached tool result
type Entry struct {
	Result    interface{}   `json:"result"`
	Timestamp time.Time     `json:"timestamp"`
	TTL       time.Duration `json:"ttl"`
}

// Stats tracks cache accounting
type Stats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Expired  int64 `json:"expired"`
	Stores   int64 `json:"stores"`
	Bypassed int64 `json:"bypassed"` // lookups against non-cacheable tools
}

// SharedStore is an optional cross-process backing store (BadgerDB via pkg/kv).
// Entries written there carry the same TTL; absence and expiry look identical.
type SharedStore interface {
	Get(key string) ([]byte, error)
	SetWithTTL(key string, value []byte, ttl time.Duration) error
}

// Config for the cache
type Config struct {
	DefaultTTL   time.Duration
	ToolTTL      map[string]time.Duration
	NonCacheable []string
	Shared       SharedStore // nil for process-local only
}

// Cache is the tool result cache. Safe for concurrent use; map access is
// guarded by an RWMutex.
type Cache struct {
	mu           sync.RWMutex
	entries      map[string]Entry
	defaultTTL   time.Duration
	toolTTL      map[string]time.Duration
	nonCacheable map[string]bool
	shared       SharedStore
	stats        Stats
	now          func() time.Time
}

// New creates a cache from config
func New(cfg Config) *Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	nc := make(map[string]bool, len(cfg.NonCacheable))
	for _, name := range cfg.NonCacheable {
		nc[name] = true
	}
	return &Cache{
		entries:      make(map[string]Entry),
		defaultTTL:   cfg.DefaultTTL,
		toolTTL:      cfg.ToolTTL,
		nonCacheable: nc,
		shared:       cfg.Shared,
		now:          time.Now,
	}
}

// WithClock overrides the time source (tests)
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

// TTLFor returns the configured TTL for a tool
func (c *Cache) TTLFor(tool string) time.Duration {
	if ttl, ok := c.toolTTL[tool]; ok && ttl > 0 {
		return ttl
	}
	return c.defaultTTL
}

// Fingerprint computes the cache key for (tool, args): binary fields are
// stripped, the rest is JSON-serialized (encoding/json sorts map keys) and
// hashed. SHA-256 collision risk is accepted as out of scope.
func Fingerprint(tool string, args map[string]interface{}) string {
	filtered := make(map[string]interface{}, len(args))
	for k, v := range args {
		if binaryFields[k] {
			continue
		}
		filtered[k] = v
	}
	data, err := json.Marshal(filtered)
	if err != nil {
		// Unserializable args degrade to a tool-wide key; worst case is a
		// spurious hit within one tool, never across tools.
		data = []byte("{}")
	}
	sum := sha256.Sum256(data)
	return tool + ":" + hex.EncodeToString(sum[:])
}

// Get looks up a cached result. The second return is false on miss,
// expiration, or a non-cacheable tool.
func (c *Cache) Get(tool string, args map[string]interface{}) (interface{}, bool) {
	if c.nonCacheable[tool] {
		c.mu.Lock()
		c.stats.Bypassed++
		c.mu.Unlock()
		return nil, false
	}

	key := Fingerprint(tool, args)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok {
		if c.now().Sub(entry.Timestamp) < entry.TTL {
			c.mu.Lock()
			c.stats.Hits++
			c.mu.Unlock()
			return entry.Result, true
		}
		// Lazy expiration: no background sweeper, stale entries are
		// dropped on first expired read.
		c.mu.Lock()
		delete(c.entries, key)
		c.stats.Expired++
		c.mu.Unlock()
		return nil, false
	}

	if c.shared != nil {
		if result, ok := c.sharedGet(key); ok {
			c.mu.Lock()
			c.stats.Hits++
			c.entries[key] = Entry{Result: result, Timestamp: c.now(), TTL: c.TTLFor(tool)}
			c.mu.Unlock()
			return result, true
		}
	}

	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	return nil, false
}

// Set stores a tool result under the fingerprint of (tool, args)
func (c *Cache) Set(tool string, args map[string]interface{}, result interface{}) {
	if c.nonCacheable[tool] {
		return
	}

	key := Fingerprint(tool, args)
	ttl := c.TTLFor(tool)

	c.mu.Lock()
	c.entries[key] = Entry{Result: result, Timestamp: c.now(), TTL: ttl}
	c.stats.Stores++
	c.mu.Unlock()

	if c.shared != nil {
		data, err := json.Marshal(result)
		if err != nil {
			log.Printf("[Cache] shared store marshal failed for %s: %v", tool, err)
			return
		}
		if err := c.shared.SetWithTTL("cache:"+key, data, ttl); err != nil {
			log.Printf("[Cache] shared store write failed for %s: %v", tool, err)
		}
	}
}

func (c *Cache) sharedGet(key string) (interface{}, bool) {
	data, err := c.shared.Get("cache:" + key)
	if err != nil {
		return nil, false
	}
	var result interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		log.Printf("[Cache] shared store unmarshal failed: %v", err)
		return nil, false
	}
	return result, true
}

// Stats returns a snapshot of the counters
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Len returns the number of process-local entries (including stale ones
// that have not been read since expiring)
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
