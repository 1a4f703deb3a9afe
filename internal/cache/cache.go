package cache

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a typed wrapper over go-cache with a caller supplied key encoding.
type Cache[K comparable, V any] struct {
	cache       *gocache.Cache
	mu          sync.RWMutex
	keyToString func(K) string
	logger      *slog.Logger
}

type CacheConfig struct {
	TTL    time.Duration
	Logger *slog.Logger
}

func NewCache[K comparable, V any](config CacheConfig, keyToString func(K) string) *Cache[K, V] {
	if config.TTL == 0 {
		config.TTL = time.Minute
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	config.Logger.Debug("Cache initialized", "ttl", config.TTL)

	return &Cache[K, V]{
		cache:       gocache.New(config.TTL, config.TTL*2),
		keyToString: keyToString,
		logger:      config.Logger,
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	value, found := c.cache.Get(c.keyToString(key))
	if !found {
		var zero V
		return zero, false
	}

	typed, ok := value.(V)
	return typed, ok
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Set(c.keyToString(key), value, gocache.DefaultExpiration)
}

func (c *Cache[K, V]) InvalidateKey(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Delete(c.keyToString(key))
}

// InvalidatePrefix drops every entry whose encoded key starts with prefix.
func (c *Cache[K, V]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Delete(key)
			removed++
		}
	}
	c.logger.Debug("Cache invalidated", "prefix", prefix, "removed", removed)
	return removed
}

func (c *Cache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache.ItemCount()
}

func (c *Cache[K, V]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Flush()
	return nil
}
