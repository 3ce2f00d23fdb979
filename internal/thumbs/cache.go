// Package thumbs keeps thumbnails for the visible image items: a
// generation-tokened cache and a bounded fetch scheduler feeding it.
package thumbs

import (
	"context"
	"sync"

	"github.com/nikbrunner/drive/internal/handles"
	"github.com/nikbrunner/drive/internal/metrics"
)

// Generation identifies one visible set. It increases on every Begin.
type Generation uint64

// HandleManager creates and revokes displayable resources. Revoke must be
// idempotent and must not call back into the cache.
type HandleManager interface {
	Create(ctx context.Context, itemID string, data []byte) (*handles.Handle, error)
	Revoke(h *handles.Handle)
}

// Cache maps visible item ids to live handles. Every handle it accepts is
// revoked exactly once: on eviction, replacement, rejection or teardown.
type Cache struct {
	handles HandleManager

	mu      sync.Mutex
	gen     Generation
	visible map[string]bool
	entries map[string]*handles.Handle
}

// NewCache creates an empty cache.
func NewCache(hm HandleManager) *Cache {
	return &Cache{
		handles: hm,
		visible: make(map[string]bool),
		entries: make(map[string]*handles.Handle),
	}
}

// Begin starts a new generation for visibleIDs. Cached ids outside the set
// are revoked before Begin returns; missing lists the visible ids that still
// need a fetch, in the order given.
func (c *Cache) Begin(visibleIDs []string) (g Generation, missing []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.visible = make(map[string]bool, len(visibleIDs))
	for _, id := range visibleIDs {
		c.visible[id] = true
	}

	for id, h := range c.entries {
		if c.visible[id] {
			continue
		}
		c.handles.Revoke(h)
		delete(c.entries, id)
		metrics.RecordHandle("evicted")
	}

	seen := make(map[string]bool, len(visibleIDs))
	for _, id := range visibleIDs {
		if _, ok := c.entries[id]; ok || seen[id] {
			continue
		}
		seen[id] = true
		missing = append(missing, id)
	}

	metrics.SetCacheSize(len(c.entries))
	return c.gen, missing
}

// Install stores h for id if g is still current and id is still visible,
// revoking any handle it replaces. Otherwise h is revoked and Install
// returns false.
func (c *Cache) Install(g Generation, id string, h *handles.Handle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if g != c.gen || !c.visible[id] {
		c.handles.Revoke(h)
		metrics.RecordHandle("discarded")
		return false
	}

	if old, ok := c.entries[id]; ok {
		c.handles.Revoke(old)
		metrics.RecordHandle("replaced")
	}
	c.entries[id] = h
	metrics.RecordHandle("installed")
	metrics.SetCacheSize(len(c.entries))
	return true
}

// Get returns the handle for id.
func (c *Cache) Get(id string) (*handles.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.entries[id]
	return h, ok
}

// Snapshot returns a copy of the id -> handle map for rendering.
func (c *Cache) Snapshot() map[string]*handles.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]*handles.Handle, len(c.entries))
	for id, h := range c.entries {
		out[id] = h
	}
	return out
}

// Len returns the number of cached handles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Generation returns the current generation.
func (c *Cache) Generation() Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Current reports whether g is the current generation.
func (c *Cache) Current(g Generation) bool {
	return c.Generation() == g
}

// Teardown revokes every handle and clears the visible set. Installs for
// any earlier generation are rejected afterwards.
func (c *Cache) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, h := range c.entries {
		c.handles.Revoke(h)
		delete(c.entries, id)
		metrics.RecordHandle("evicted")
	}
	c.gen++
	c.visible = make(map[string]bool)
	metrics.SetCacheSize(0)
}
