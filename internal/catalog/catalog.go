// Package catalog provides the in-memory fraud typology catalog.
// The catalog is read-heavy and write-rare: readers take an RLock while
// administrative loads swap the whole map under a write lock.
package catalog

import (
	"sort"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Catalog holds the loaded fraud typology definitions.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*domain.CatalogEntry // key: entryID
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		entries: make(map[string]*domain.CatalogEntry),
	}
}

// Load validates and loads catalog entries, replacing the current set.
// Disabled entries are skipped; invalid entries abort the load.
func (c *Catalog) Load(entries []*domain.CatalogEntry) error {
	next := make(map[string]*domain.CatalogEntry, len(entries))
	for _, e := range entries {
		if !e.Enabled {
			continue
		}
		if err := e.Validate(); err != nil {
			return err
		}
		next[e.ID] = e
	}

	c.mu.Lock()
	c.entries = next
	c.mu.Unlock()
	return nil
}

// Reload is an alias for Load used by the hot-reload endpoint.
func (c *Catalog) Reload(entries []*domain.CatalogEntry) error {
	return c.Load(entries)
}

// Get returns the entry with the given id.
func (c *Catalog) Get(entryID string) (*domain.CatalogEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[entryID]
	return e, ok
}

// List returns all loaded entries sorted by id.
func (c *Catalog) List() []*domain.CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]*domain.CatalogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Candidates returns the entries applicable to a source tag and district,
// sorted by id so that downstream tie-breaking is deterministic.
func (c *Catalog) Candidates(source domain.SourceTag, district string) []*domain.CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []*domain.CatalogEntry
	for _, e := range c.entries {
		if e.Source == source && e.CoversDistrict(district) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Count returns the number of loaded entries.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close clears the catalog.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*domain.CatalogEntry)
	return nil
}
