package cache

import (
	"sync"
	"time"
)

// CacheItem represents a cached item with expiration
type CacheItem struct {
	Value     interface{}
	ExpiresAt time.Time
}

// Cache is a thread-safe in-memory cache with TTL support
type Cache struct {
	items           map[string]*CacheItem
	mu              sync.RWMutex
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewCache creates a new cache with default TTL and starts the janitor.
func NewCache(defaultTTL time.Duration) *Cache {
	interval := defaultTTL / 2
	if interval <= 0 {
		interval = time.Second
	}
	c := &Cache{
		items:           make(map[string]*CacheItem),
		defaultTTL:      defaultTTL,
		cleanupInterval: interval,
		now:             time.Now,
		stopCleanup:     make(chan struct{}),
	}

	go c.cleanup()

	return c
}

// Get retrieves a value from cache
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || c.now().After(item.ExpiresAt) {
		return nil, false
	}
	return item.Value, true
}

// Set stores a value in cache with default TTL
func (c *Cache) Set(key string, value interface{}) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value in cache with custom TTL. Non-positive TTLs are
// ignored.
func (c *Cache) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &CacheItem{
		Value:     value,
		ExpiresAt: c.now().Add(ttl),
	}
}

// Delete removes a key from cache
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Evict removes expired items and reports how many were dropped.
func (c *Cache) Evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for key, item := range c.items {
		if now.After(item.ExpiresAt) {
			delete(c.items, key)
			n++
		}
	}
	return n
}

func (c *Cache) cleanup() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Evict()
		case <-c.stopCleanup:
			return
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCleanup) })
}

// Size returns the number of items in cache, expired or not.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
