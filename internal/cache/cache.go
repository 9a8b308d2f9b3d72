// Package cache is the process-wide store of fetched pages, keyed by
// (data type, source, query params).
//
// Correctness depends entirely on invalidation-on-mutation; entries never
// expire on time. Invalidate clears both the local and remote entries of
// every key for a data type. Clearing too much is fine; clearing too little
// lets a reader see pre-mutation pages.
//
// Each data type carries an epoch bumped by every invalidation. A fetch
// records the epoch before it starts and stores its result with
// PutIfCurrent, so a page fetched before a mutation cannot land in the
// cache after the mutation invalidated it.
package cache

import (
	"strings"
	"sync"

	"github.com/roach88/hybridseq/internal/item"
	"github.com/roach88/hybridseq/internal/metrics"
)

// Key identifies one cached page list.
type Key struct {
	DataType string
	Source   item.Source
	Params   item.Params
}

// String renders the key as dataType/source/params.
func (k Key) String() string {
	parts := append([]string{k.DataType, string(k.Source)}, k.Params...)
	return strings.Join(parts, "/")
}

func (k Key) id() string {
	parts := append([]string{k.DataType, string(k.Source)}, k.Params...)
	return strings.Join(parts, "\x00")
}

type entry struct {
	key   Key
	pages []item.Page
}

// Cache holds fetched pages. Reads run concurrently; writes are serialized.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	epochs  map[string]uint64
	metrics *metrics.Metrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics reports hits, misses and invalidations to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]entry),
		epochs:  make(map[string]uint64),
		metrics: metrics.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the cached pages for key.
func (c *Cache) Get(key Key) ([]item.Page, bool) {
	c.mu.RLock()
	e, ok := c.entries[key.id()]
	c.mu.RUnlock()

	if !ok {
		c.metrics.CacheMisses.WithLabelValues(key.DataType, string(key.Source)).Inc()
		return nil, false
	}
	c.metrics.CacheHits.WithLabelValues(key.DataType, string(key.Source)).Inc()
	return clonePages(e.pages), true
}

// Epoch returns the current invalidation epoch for a data type.
func (c *Cache) Epoch(dataType string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epochs[dataType]
}

// Put stores pages for key unconditionally.
func (c *Cache) Put(key Key, pages []item.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.id()] = entry{key: key, pages: clonePages(pages)}
}

// PutIfCurrent stores pages only if no invalidation of key's data type
// happened since epoch was read. Reports whether the pages were stored.
func (c *Cache) PutIfCurrent(key Key, pages []item.Page, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epochs[key.DataType] != epoch {
		return false
	}
	c.entries[key.id()] = entry{key: key, pages: clonePages(pages)}
	return true
}

// Update applies fn to the cached pages for key under the write lock.
// fn receives nil when the key is absent; returning nil removes the entry.
func (c *Cache) Update(key Key, fn func([]item.Page) []item.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current []item.Page
	if e, ok := c.entries[key.id()]; ok {
		current = clonePages(e.pages)
	}
	next := fn(current)
	if next == nil {
		delete(c.entries, key.id())
		return
	}
	c.entries[key.id()] = entry{key: key, pages: clonePages(next)}
}

// Invalidate clears every entry, local and remote, for dataType and bumps
// its epoch. Returns the number of entries removed.
func (c *Cache) Invalidate(dataType string) int {
	return c.InvalidatePrefix(dataType, nil)
}

// InvalidatePrefix clears entries for dataType whose params start with
// prefix, across both sources. The epoch bump covers the whole data type,
// so in-flight fetches for unrelated params are dropped too.
func (c *Cache) InvalidatePrefix(dataType string, prefix item.Params) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, e := range c.entries {
		if e.key.DataType == dataType && e.key.Params.HasPrefix(prefix) {
			delete(c.entries, id)
			removed++
		}
	}
	c.epochs[dataType]++
	c.metrics.CacheInvalidations.WithLabelValues(dataType).Add(float64(removed))
	return removed
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func clonePages(pages []item.Page) []item.Page {
	if pages == nil {
		return nil
	}
	out := make([]item.Page, len(pages))
	for i, p := range pages {
		p.Items = append([]item.Item(nil), p.Items...)
		out[i] = p
	}
	return out
}
