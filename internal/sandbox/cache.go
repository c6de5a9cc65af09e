package sandbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/sujun1972/stock-analysis-go/internal/strategy"
	"github.com/sujun1972/stock-analysis-go/pkg/logger"
)

// =============================================================================
// Strategy Cache
// Handles are cached per strategy and keyed by code hash: an edit bumps
// the stored hash, the next lookup sees the mismatch and rebuilds.
// Concurrent lookups for the same version share one load through
// singleflight, so a popular strategy is interpreted exactly once.
// =============================================================================

type CacheStats struct {
	Size   int   `json:"size"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

type Cache struct {
	exec  *Executor
	store strategy.Store
	log   *logger.Logger

	mu      sync.RWMutex
	handles map[int64]*Handle

	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

func NewCache(exec *Executor, store strategy.Store, log *logger.Logger) *Cache {
	return &Cache{
		exec:    exec,
		store:   store,
		log:     log,
		handles: make(map[int64]*Handle),
	}
}

// Get returns a live handle for the strategy's current code version,
// loading it if the cache has none, the cached one was built from stale
// code, or the cached one was poisoned by a watchdog hit.
func (c *Cache) Get(ctx context.Context, id int64) (*Handle, error) {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	h, ok := c.handles[id]
	c.mu.RUnlock()
	if ok && h.CodeHash == rec.CodeHash && !h.Poisoned() {
		c.hits.Add(1)
		return h, nil
	}
	c.misses.Add(1)
	if ok {
		c.log.WithFields(map[string]interface{}{
			"strategy": rec.Name,
			"id":       id,
			"poisoned": h.Poisoned(),
		}).Debug("evicting stale sandbox handle")
		c.evict(id, h)
	}

	key := fmt.Sprintf("%d:%s", id, rec.CodeHash)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have finished the same load between the
		// read above and this closure running.
		c.mu.RLock()
		cur, ok := c.handles[id]
		c.mu.RUnlock()
		if ok && cur.CodeHash == rec.CodeHash && !cur.Poisoned() {
			return cur, nil
		}
		loaded, err := c.exec.Load(ctx, rec)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.handles[id] = loaded
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

// Invalidate drops any cached handle for the strategy.
func (c *Cache) Invalidate(id int64) {
	c.mu.Lock()
	delete(c.handles, id)
	c.mu.Unlock()
}

// evict removes the entry only if it still points at the given handle.
func (c *Cache) evict(id int64, h *Handle) {
	c.mu.Lock()
	if cur, ok := c.handles[id]; ok && cur == h {
		delete(c.handles, id)
	}
	c.mu.Unlock()
}

func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	size := len(c.handles)
	c.mu.RUnlock()
	return CacheStats{Size: size, Hits: c.hits.Load(), Misses: c.misses.Load()}
}
