// Package bufcache is the Buffer Cache: an LRU over recently parsed
// buffers with a per-entry TTL, grounded on two teacher shapes — the
// doubly-linked recency list from the gopls GLSP handler's document
// cache (container/list ahead of a map lookup) and the atomic
// hit/miss/eviction counters from the teacher's cache.MetricsCache.
package bufcache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/goanalyzer/internal/model"
)

// Stats is a snapshot of cache telemetry.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

type entry struct {
	key        key
	tree       *model.Tree
	lastAccess time.Time
}

type key struct {
	bufferID model.BufferID
	hash     uint64
}

// Cache is the Buffer Cache. It is safe for concurrent use: a lookup
// finds its entry under the read lock and takes the exclusive lock only
// to promote a hit or drop an expired entry; every insertion, explicit
// invalidation, and background TTL sweep takes the exclusive lock,
// matching §5's reader/writer discipline.
type Cache struct {
	mu         sync.RWMutex
	items      map[key]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
	ttl        time.Duration

	hits      int64
	misses    int64
	evictions int64

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// New creates a Buffer Cache bounded by maxEntries and ttl. If
// autoCleanup is true a background goroutine periodically sweeps
// expired entries, matching the teacher's NewMetricsCache's
// opt-in cleanup goroutine.
func New(maxEntries int, ttl time.Duration, autoCleanup bool, cleanupInterval time.Duration) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	c := &Cache{
		items:       make(map[key]*list.Element),
		order:       list.New(),
		maxEntries:  maxEntries,
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}
	if autoCleanup && ttl > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

func cacheKey(bufferID model.BufferID, hash uint64) key { return key{bufferID: bufferID, hash: hash} }

// Get returns the cached Tree for (bufferID, hash), promoting it to
// most-recently-used, or (nil, false) on a miss or an expired entry.
func (c *Cache) Get(bufferID model.BufferID, hash uint64) (*model.Tree, bool) {
	k := cacheKey(bufferID, hash)

	c.mu.RLock()
	el, ok := c.items[k]
	if !ok {
		c.mu.RUnlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	ent := el.Value.(*entry)
	expired := c.ttl > 0 && time.Since(ent.lastAccess) > c.ttl
	c.mu.RUnlock()

	if expired {
		c.mu.Lock()
		c.removeLocked(el)
		c.mu.Unlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	c.mu.Lock()
	c.order.MoveToFront(el)
	ent.lastAccess = time.Now()
	c.mu.Unlock()

	atomic.AddInt64(&c.hits, 1)
	return ent.tree, true
}

// Put inserts or replaces the Tree for (bufferID, hash), evicting the
// least-recently-used entry once MaxEntries is exceeded.
func (c *Cache) Put(bufferID model.BufferID, hash uint64, tree *model.Tree) {
	k := cacheKey(bufferID, hash)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[k]; ok {
		ent := el.Value.(*entry)
		if ent.tree != tree {
			ent.tree.Raw().Close()
			ent.tree = tree
		}
		ent.lastAccess = time.Now()
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry{key: k, tree: tree, lastAccess: time.Now()})
	c.items[k] = el

	for c.order.Len() > c.maxEntries {
		c.evictOldestLocked()
	}
}

// InvalidateBuffer drops every cached version for bufferID (called on
// buffer close).
func (c *Cache) InvalidateBuffer(bufferID model.BufferID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, el := range c.items {
		if k.bufferID == bufferID {
			c.removeLocked(el)
		}
	}
}

func (c *Cache) evictOldestLocked() {
	el := c.order.Back()
	if el == nil {
		return
	}
	c.removeLocked(el)
	atomic.AddInt64(&c.evictions, 1)
}

// removeLocked must be called with mu held.
func (c *Cache) removeLocked(el *list.Element) {
	ent := el.Value.(*entry)
	delete(c.items, ent.key)
	c.order.Remove(el)
	ent.tree.Raw().Close()
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *Cache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return
	}
	now := time.Now()
	var expired []*list.Element
	for el := c.order.Back(); el != nil; el = el.Prev() {
		ent := el.Value.(*entry)
		if now.Sub(ent.lastAccess) > c.ttl {
			expired = append(expired, el)
		}
	}
	for _, el := range expired {
		c.removeLocked(el)
		atomic.AddInt64(&c.evictions, 1)
	}
}

// Stop halts the background cleanup goroutine, if one was started.
func (c *Cache) Stop() {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
}

// Snapshot returns current hit/miss/eviction counters.
func (c *Cache) Snapshot() Stats {
	return Stats{
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}
