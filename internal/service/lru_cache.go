// Package service contains application services.
package service

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// lruEntry is a doubly-linked list node for the LRU cache.
type lruEntry[V any] struct {
	key   uint64
	value V
	prev  *lruEntry[V]
	next  *lruEntry[V]
}

// lruCache is a bounded LRU cache keyed by xxhash digests.
// Thread-safe with Mutex (both Get and Put mutate LRU order).
type lruCache[V any] struct {
	mu      sync.Mutex
	entries map[uint64]*lruEntry[V]
	head    *lruEntry[V] // most recently used
	tail    *lruEntry[V] // least recently used
	maxSize int
}

func newLRUCache[V any](maxSize int) *lruCache[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &lruCache[V]{
		entries: make(map[uint64]*lruEntry[V], maxSize),
		maxSize: maxSize,
	}
}

// Get returns the cached value and promotes it to most recently used.
func (c *lruCache[V]) Get(key uint64) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		c.moveToHeadLocked(e)
		return e.value, true
	}
	var zero V
	return zero, false
}

// Put stores a value. If at capacity, the least recently used entry is evicted.
func (c *lruCache[V]) Put(key uint64, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToHeadLocked(e)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictTailLocked()
	}

	e := &lruEntry[V]{key: key, value: value}
	c.entries[key] = e
	c.pushHeadLocked(e)
}

// Delete removes a single entry if present.
func (c *lruCache[V]) Delete(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.unlinkLocked(e)
	}
}

// Clear empties the cache.
func (c *lruCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*lruEntry[V], c.maxSize)
	c.head = nil
	c.tail = nil
}

// Size returns current cache size.
func (c *lruCache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// moveToHeadLocked moves an existing entry to the head. Must be called with lock held.
func (c *lruCache[V]) moveToHeadLocked(e *lruEntry[V]) {
	if c.head == e {
		return
	}
	c.unlinkLocked(e)
	c.pushHeadLocked(e)
}

// pushHeadLocked inserts an entry at the head. Must be called with lock held.
func (c *lruCache[V]) pushHeadLocked(e *lruEntry[V]) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

// unlinkLocked removes an entry from the linked list. Must be called with lock held.
func (c *lruCache[V]) unlinkLocked(e *lruEntry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

// evictTailLocked removes the least recently used entry. Must be called with lock held.
func (c *lruCache[V]) evictTailLocked() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlinkLocked(c.tail)
}

// hashFields digests the given fields with a zero-byte separator so that
// ("ab", "c") and ("a", "bc") produce different keys.
func hashFields(fields ...string) uint64 {
	h := xxhash.New()
	for _, f := range fields {
		_, _ = h.WriteString(f)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
