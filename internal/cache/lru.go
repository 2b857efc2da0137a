// Package cache provides a generic, size-bounded LRU cache used to
// keep prepared statements warm between calls to the same SQL text.
// Unlike a cache fronting parsed documents or corpora, a prepared
// statement does not go stale on its own — it is only ever evicted
// for space — so this cache tracks recency and a max entry count and
// nothing else: no TTL, no hit/miss telemetry.
package cache

import (
	"container/list"
	"sync"
)

// Cache is a generic LRU cache keyed by K, storing values of type V.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Put(key K, value V)
	Remove(key K)
	Clear()
	Len() int
}

// Config configures a Cache returned by NewLRUCache.
type Config struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int

	// OnEvict, if set, runs once an entry is pushed out by
	// MaxSize pressure or removed explicitly — e.g. to finalize a
	// prepared statement that just fell out of the cache.
	OnEvict func(key, value any)
}

type lruCache[K comparable, V any] struct {
	mu        sync.Mutex
	maxSize   int
	onEvict   func(key, value any)
	index     map[K]*list.Element
	evictList *list.List
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// NewLRUCache builds an empty Cache per config.
func NewLRUCache[K comparable, V any](config Config) Cache[K, V] {
	maxSize := config.MaxSize
	if maxSize < 0 {
		maxSize = 0
	}
	return &lruCache[K, V]{
		maxSize:   maxSize,
		onEvict:   config.OnEvict,
		index:     make(map[K]*list.Element),
		evictList: list.New(),
	}
}

func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.evictList.MoveToFront(el)
	return el.Value.(*entry[K, V]).value, true
}

func (c *lruCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.evictList.MoveToFront(el)
		return
	}

	el := c.evictList.PushFront(&entry[K, V]{key: key, value: value})
	c.index[key] = el

	if c.maxSize > 0 && c.evictList.Len() > c.maxSize {
		c.removeElement(c.evictList.Back())
	}
}

func (c *lruCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[key]; ok {
		c.removeElement(el)
	}
}

func (c *lruCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onEvict != nil {
		for el := c.evictList.Front(); el != nil; el = el.Next() {
			e := el.Value.(*entry[K, V])
			c.onEvict(e.key, e.value)
		}
	}
	c.index = make(map[K]*list.Element)
	c.evictList.Init()
}

func (c *lruCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// removeElement drops el from both the list and the index, then runs
// onEvict. Callers must hold c.mu.
func (c *lruCache[K, V]) removeElement(el *list.Element) {
	c.evictList.Remove(el)
	e := el.Value.(*entry[K, V])
	delete(c.index, e.key)
	if c.onEvict != nil {
		c.onEvict(e.key, e.value)
	}
}
