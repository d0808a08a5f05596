package templates

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CacheEntry is a loaded template together with the freshness information of
// the source it was read from.
type CacheEntry struct {
	Template         *TemplateDefinition
	LoadedAt         time.Time
	SourcePath       string
	SourceModifiedAt time.Time

	root Root
	file string
}

// IsFresh reports whether entry is still valid for a source last modified at modTime.
func IsFresh(entry *CacheEntry, modTime time.Time) bool {
	if entry == nil || entry.Template == nil {
		return false
	}
	return !modTime.After(entry.SourceModifiedAt)
}

// Cache stores composed templates keyed by name. Entries are replaced
// wholesale and never mutated.
type Cache struct {
	store *gocache.Cache
}

// NewCache creates a cache. A zero ttl keeps entries until evicted; a zero
// cleanupInterval disables the background janitor.
func NewCache(ttl, cleanupInterval time.Duration) *Cache {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	if cleanupInterval <= 0 {
		cleanupInterval = gocache.NoExpiration
	}
	return &Cache{store: gocache.New(ttl, cleanupInterval)}
}

// Get returns the entry for name.
func (c *Cache) Get(name string) (*CacheEntry, bool) {
	value, ok := c.store.Get(name)
	if !ok {
		return nil, false
	}
	entry, ok := value.(*CacheEntry)
	return entry, ok
}

// Set stores entry under name using the default expiration.
func (c *Cache) Set(name string, entry *CacheEntry) {
	c.store.SetDefault(name, entry)
}

// Delete evicts name.
func (c *Cache) Delete(name string) {
	c.store.Delete(name)
}

// Flush evicts every entry and returns how many were removed.
func (c *Cache) Flush() int {
	count := c.store.ItemCount()
	c.store.Flush()
	return count
}

// Len returns the number of cached entries, including expired ones not yet cleaned up.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

// Names returns the names of unexpired entries.
func (c *Cache) Names() []string {
	items := c.store.Items()
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	return names
}
