package session

import (
	"context"
	"log"
	"sync"
)

// Cache keeps recently resolved session stores in memory under a fixed
// capacity. Eviction is FIFO on insertion order, not LRU: session counts are
// small for this workload and the ordering choice is deliberate.
type Cache struct {
	mu       sync.Mutex
	capacity int
	meta     *Metadata
	opts     Options
	stores   map[string]*Store
	order    []string // insertion order, oldest first
}

// NewCache creates a session cache. capacity <= 0 falls back to 10.
func NewCache(meta *Metadata, opts Options, capacity int) *Cache {
	if capacity <= 0 {
		capacity = 10
	}
	return &Cache{
		capacity: capacity,
		meta:     meta,
		opts:     opts,
		stores:   make(map[string]*Store),
	}
}

// Resolve returns the store for the session ID, constructing and registering
// one when absent. A cached store re-reads its persisted document so
// out-of-process writes are picked up. An empty ID maps to the well-known
// default session rather than minting a new one per call.
func (c *Cache) Resolve(ctx context.Context, sessionID string) (*Store, error) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if store, ok := c.stores[sessionID]; ok {
		store.Reload()
		return store, nil
	}

	store, err := NewStore(ctx, c.meta, sessionID, c.opts)
	if err != nil {
		return nil, err
	}
	c.stores[sessionID] = store
	c.order = append(c.order, sessionID)

	if len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.stores, oldest)
		log.Printf("♻️ [SESSION] Cache full, evicted oldest session %s", oldest)
	}
	return store, nil
}

// Contains reports whether the session is currently cached, without loading.
func (c *Cache) Contains(sessionID string) bool {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.stores[sessionID]
	return ok
}

// Evict drops a session from the cache, e.g. after deletion. Its persisted
// state is untouched.
func (c *Cache) Evict(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.stores[sessionID]; !ok {
		return
	}
	delete(c.stores, sessionID)
	for i, id := range c.order {
		if id == sessionID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of cached stores.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stores)
}
