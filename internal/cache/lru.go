package cache

import (
	"container/list"
	"sync"
	"time"
)

// EvictReason says why an entry left the cache.
type EvictReason string

const (
	Expired  EvictReason = "expired"
	Capacity EvictReason = "capacity"
	Removed  EvictReason = "removed"
	Replaced EvictReason = "replaced"
)

// EvictFunc is called after an entry has left the cache, outside the cache
// lock, so it may call back into the cache.
type EvictFunc[T any] func(key string, data T, reason EvictReason)

// LRU cache with TTL and size-based eviction
type LRUCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	sliding bool
	onEvict EvictFunc[T]
	now     func() time.Time
	items   map[string]*list.Element
	lru     *list.List
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

type eviction[T any] struct {
	item   *cacheItem[T]
	reason EvictReason
}

// Option customizes an LRUCache.
type Option[T any] func(*LRUCache[T])

// WithEvict registers fn to observe evictions.
func WithEvict[T any](fn EvictFunc[T]) Option[T] {
	return func(c *LRUCache[T]) { c.onEvict = fn }
}

// WithSlidingTTL makes every successful Get extend the entry's lifetime.
func WithSlidingTTL[T any]() Option[T] {
	return func(c *LRUCache[T]) { c.sliding = true }
}

// WithClock replaces time.Now.
func WithClock[T any](now func() time.Time) Option[T] {
	return func(c *LRUCache[T]) { c.now = now }
}

// NewLRUCache creates a new LRU cache with TTL
func NewLRUCache[T any](maxSize int, ttl time.Duration, opts ...Option[T]) *LRUCache[T] {
	c := &LRUCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get retrieves a value from the cache
func (c *LRUCache[T]) Get(key string) (T, bool) {
	var (
		zero    T
		evicted []eviction[T]
	)
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}
	item := elem.Value.(*cacheItem[T])
	now := c.now()
	if now.After(item.expiresAt) {
		c.removeElement(elem)
		evicted = append(evicted, eviction[T]{item, Expired})
		return zero, false
	}
	if c.sliding {
		item.expiresAt = now.Add(c.ttl)
	}
	c.lru.MoveToFront(elem)
	return item.data, true
}

// Set stores a value in the cache
func (c *LRUCache[T]) Set(key string, data T) {
	var evicted []eviction[T]
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	item := &cacheItem[T]{
		key:       key,
		data:      data,
		expiresAt: c.now().Add(c.ttl),
	}

	if elem, exists := c.items[key]; exists {
		evicted = append(evicted, eviction[T]{elem.Value.(*cacheItem[T]), Replaced})
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	for c.maxSize > 0 && c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		c.removeElement(oldest)
		evicted = append(evicted, eviction[T]{oldest.Value.(*cacheItem[T]), Capacity})
	}
}

// Delete removes a key from the cache
func (c *LRUCache[T]) Delete(key string) {
	var evicted []eviction[T]
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
		evicted = append(evicted, eviction[T]{elem.Value.(*cacheItem[T]), Removed})
	}
}

func (c *LRUCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

func (c *LRUCache[T]) notify(evicted []eviction[T]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range evicted {
		c.onEvict(e.item.key, e.item.data, e.reason)
	}
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUCache[T]) CleanExpired() int {
	var evicted []eviction[T]
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*cacheItem[T]).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
		evicted = append(evicted, eviction[T]{elem.Value.(*cacheItem[T]), Expired})
	}
	return len(toRemove)
}

// Purge empties the cache, reporting every entry as removed.
func (c *LRUCache[T]) Purge() int {
	var evicted []eviction[T]
	defer func() { c.notify(evicted) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		evicted = append(evicted, eviction[T]{elem.Value.(*cacheItem[T]), Removed})
	}
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	return len(evicted)
}

// Size returns the current number of items in the cache
func (c *LRUCache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Values returns the live values, most recently used first.
func (c *LRUCache[T]) Values() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	out := make([]T, 0, len(c.items))
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		item := elem.Value.(*cacheItem[T])
		if !now.After(item.expiresAt) {
			out = append(out, item.data)
		}
	}
	return out
}
