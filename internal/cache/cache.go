// Package cache provides the in-memory TTL cache shared by providers.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTTL applies to providers without an explicit TTL.
const DefaultTTL = 30 * time.Minute

// Entry is one cached value.
type Entry struct {
	Key       string        `json:"key"`
	Value     string        `json:"value"`
	FetchedAt time.Time     `json:"fetched_at"`
	TTL       time.Duration `json:"ttl"`
}

// Fresh reports whether the entry may still be served at now.
func (e Entry) Fresh(now time.Time) bool {
	return now.Sub(e.FetchedAt) <= e.TTL
}

// Key builds a cache key from a provider id and an optional sub-key.
func Key(providerID, sub string) string {
	if sub == "" {
		return providerID
	}
	return providerID + ":" + sub
}

// ProviderOf returns the provider id part of a key.
func ProviderOf(key string) string {
	if i := strings.IndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}

// Cache is a key/value store with per-provider time-to-live. Expired
// entries are dropped lazily when read.
type Cache struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	ttls       map[string]time.Duration
	entries    map[string]Entry
}

func New(defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Cache{
		defaultTTL: defaultTTL,
		ttls:       make(map[string]time.Duration),
		entries:    make(map[string]Entry),
	}
}

// SetTTL sets the time-to-live for entries written for providerID.
func (c *Cache) SetTTL(providerID string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ttl <= 0 {
		delete(c.ttls, providerID)
		return
	}
	c.ttls[providerID] = ttl
}

// Put stores value under key, stamped with now.
func (c *Cache) Put(key, value string, now time.Time) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := Entry{Key: key, Value: value, FetchedAt: now, TTL: c.ttlFor(key)}
	c.entries[key] = e
	return e
}

// Get returns the value for key if it is still fresh at now.
func (c *Cache) Get(key string, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if !e.Fresh(now) {
		delete(c.entries, key)
		return "", false
	}
	return e.Value, true
}

// Freshest returns the most recently fetched fresh entry of a provider,
// across all of its sub-keys.
func (c *Cache) Freshest(providerID string, now time.Time) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var best Entry
	found := false
	for key, e := range c.entries {
		if ProviderOf(key) != providerID {
			continue
		}
		if !e.Fresh(now) {
			delete(c.entries, key)
			continue
		}
		if !found || e.FetchedAt.After(best.FetchedAt) {
			best, found = e, true
		}
	}
	return best, found
}

// Load inserts a previously persisted entry, keeping its original stamp.
// The current TTL for its provider applies.
func (c *Cache) Load(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e.TTL = c.ttlFor(e.Key)
	c.entries[e.Key] = e
}

// Entries returns a snapshot of all entries sorted by key.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) ttlFor(key string) time.Duration {
	if ttl, ok := c.ttls[ProviderOf(key)]; ok {
		return ttl
	}
	return c.defaultTTL
}
