package store

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultCacheSize = 10000

// InMemoryCache is a bounded TTL cache. When full it drops expired entries
// first, then the least recently used one.
type InMemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used
	maxSize int
	now     func() time.Time
	logger  *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
}

type cacheEntry struct {
	key       string
	value     interface{}
	expiresAt time.Time
}

// NewInMemoryCache creates a cache holding at most maxSize entries and starts
// its expiry sweeper. Close stops the sweeper.
func NewInMemoryCache(maxSize int, logger *zap.Logger) *InMemoryCache {
	if maxSize <= 0 {
		maxSize = defaultCacheSize
	}
	c := &InMemoryCache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		maxSize: maxSize,
		now:     time.Now,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
	go c.sweep(time.Minute)
	return c
}

// Get returns the live value for key, or ErrNotFound
func (c *InMemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	entry := el.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.removeLocked(el)
		return nil, ErrNotFound
	}

	c.lru.MoveToFront(el)
	return entry.value, nil
}

// Set stores value under key until ttl elapses
func (c *InMemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.lru.MoveToFront(el)
		return nil
	}

	if c.lru.Len() >= c.maxSize {
		c.makeRoomLocked()
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, value: value, expiresAt: expiresAt})
	return nil
}

// Delete removes key; deleting a missing key is not an error
func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

func (c *InMemoryCache) makeRoomLocked() {
	if c.purgeExpiredLocked() > 0 {
		return
	}
	if oldest := c.lru.Back(); oldest != nil {
		c.logger.Debug("Evicted least recently used cache entry",
			zap.String("key", oldest.Value.(*cacheEntry).key))
		c.removeLocked(oldest)
	}
}

func (c *InMemoryCache) purgeExpiredLocked() int {
	now := c.now()
	purged := 0
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*cacheEntry).expiresAt) {
			c.removeLocked(el)
			purged++
		}
		el = prev
	}
	return purged
}

func (c *InMemoryCache) removeLocked(el *list.Element) {
	delete(c.entries, el.Value.(*cacheEntry).key)
	c.lru.Remove(el)
}

func (c *InMemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			n := c.purgeExpiredLocked()
			c.mu.Unlock()
			if n > 0 {
				c.logger.Debug("Purged expired cache entries", zap.Int("count", n))
			}
		}
	}
}

// Size returns the number of stored entries, expired ones included until
// they are swept
func (c *InMemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Close stops the sweeper. Safe to call more than once.
func (c *InMemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}
