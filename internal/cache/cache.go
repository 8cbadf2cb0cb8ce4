// Package cache provides the content-addressable response cache: prior
// results are keyed by a deterministic fingerprint of the work description
// plus scheduling hints and the current scope/site facts.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"taskhive/internal/facts"
	"taskhive/internal/logging"
)

// DefaultRetention is the fixed retention window for cached entries.
const DefaultRetention = 24 * time.Hour

// descriptionPrefixLen bounds how much of the description participates in
// the fingerprint. Two descriptions sharing this prefix and the same hints
// intentionally collide.
const descriptionPrefixLen = 200

// Entry is one memoized result.
type Entry struct {
	Fingerprint string            `json:"fingerprint"`
	Payload     json.RawMessage   `json:"payload"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	StoredAt    time.Time         `json:"stored_at"`
	ExpiresAt   time.Time         `json:"expires_at"`
}

// Stats summarizes cache occupancy.
type Stats struct {
	TotalEntries   int `json:"total_entries"`
	ExpiredEntries int `json:"expired_entries"`
	ValidEntries   int `json:"valid_entries"`
}

// fingerprintRecord is the canonical record hashed into the key. Field
// order is fixed; changing it changes every fingerprint.
type fingerprintRecord struct {
	Description string `json:"description"`
	Purpose     string `json:"purpose"`
	Scope       string `json:"scope"`
	Site        string `json:"site"`
	Worker      string `json:"worker"`
}

// Fingerprint derives the stable cache key. It is pure: the same inputs
// always produce the same key.
func Fingerprint(description, workerHint, purposeHint string, fs facts.FactSet) string {
	desc := strings.ToLower(strings.TrimSpace(description))
	if runes := []rune(desc); len(runes) > descriptionPrefixLen {
		desc = string(runes[:descriptionPrefixLen])
	}
	if workerHint == "" {
		workerHint = "default"
	}
	if purposeHint == "" {
		purposeHint = "general"
	}

	canonical, _ := json.Marshal(fingerprintRecord{
		Description: desc,
		Purpose:     purposeHint,
		Scope:       fs.Scope,
		Site:        fs.Site,
		Worker:      workerHint,
	})
	sum := sha256.Sum256(canonical)
	return "sem_" + hex.EncodeToString(sum[:])[:16]
}

// Cache is the in-memory map plus its whole-document persistence. Expired
// entries are treated as misses on read and swept on write.
type Cache struct {
	mu        sync.RWMutex
	entries   map[string]Entry
	retention time.Duration
	store     Store
	now       func() time.Time
}

// New creates a cache backed by the given store. A corrupt or unreadable
// backing document is recovered as an empty cache with a warning.
func New(store Store, retention time.Duration) *Cache {
	if retention <= 0 {
		retention = DefaultRetention
	}
	c := &Cache{
		entries:   make(map[string]Entry),
		retention: retention,
		store:     store,
		now:       time.Now,
	}

	if store != nil {
		entries, err := store.Load()
		if err != nil {
			logging.CacheWarn("cache load failed: %v, starting empty", err)
		} else if entries != nil {
			c.entries = entries
		}
	}
	return c
}

// Get returns the entry for key, or miss (false) if absent or expired.
// Expired entries are not eagerly deleted here.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	if c.now().After(entry.ExpiresAt) {
		logging.CacheDebug("expired entry for %s treated as miss", key)
		return Entry{}, false
	}
	return entry, true
}

// Put stores payload under key, sweeping expired entries first. Amortized
// cleanup happens on write, not on read.
func (c *Cache) Put(key string, payload interface{}, metadata map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	now := c.now()

	c.mu.Lock()
	for k, e := range c.entries {
		if e.ExpiresAt.Before(now) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = Entry{
		Fingerprint: key,
		Payload:     data,
		Metadata:    metadata,
		StoredAt:    now,
		ExpiresAt:   now.Add(c.retention),
	}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(snapshot)
	return nil
}

// CacheStats reports occupancy including not-yet-swept expired entries.
func (c *Cache) CacheStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.now()
	stats := Stats{TotalEntries: len(c.entries)}
	for _, e := range c.entries {
		if now.After(e.ExpiresAt) {
			stats.ExpiredEntries++
		} else {
			stats.ValidEntries++
		}
	}
	return stats
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(snapshot)
	logging.Cache("cache cleared")
}

func (c *Cache) snapshotLocked() map[string]Entry {
	snapshot := make(map[string]Entry, len(c.entries))
	for k, v := range c.entries {
		snapshot[k] = v
	}
	return snapshot
}

// persist writes the whole document best-effort; persistence failure never
// blocks the caller's result.
func (c *Cache) persist(snapshot map[string]Entry) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(snapshot); err != nil {
		logging.CacheWarn("cache persist failed: %v", err)
	}
}
