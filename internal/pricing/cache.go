package pricing

import (
	"fmt"
	"sync"
	"time"

	"github.com/example/ridehail/internal/models"
)

// Cache is a tiny in-memory TTL cache for distance lookups keyed by the
// coordinate pair, so repeated quotes for the same corridor skip the
// routing service.
type Cache struct {
	mu    sync.RWMutex
	store map[string]cacheEntry
	ttl   time.Duration
}

type cacheEntry struct {
	km float64
	ts time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{store: make(map[string]cacheEntry), ttl: ttl}
}

func keyFor(a, b models.Coord) string {
	return fmt.Sprintf("%.6f,%.6f->%.6f,%.6f", a.Lat, a.Lng, b.Lat, b.Lng)
}

func (c *Cache) Get(a, b models.Coord) (float64, bool) {
	k := keyFor(a, b)
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		return 0, false
	}
	return e.km, true
}

func (c *Cache) Set(a, b models.Coord, km float64) {
	c.mu.Lock()
	c.store[keyFor(a, b)] = cacheEntry{km: km, ts: time.Now()}
	c.mu.Unlock()
}
