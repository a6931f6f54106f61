package qa

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ContentCache holds extracted document text keyed by document id.
type ContentCache interface {
	// Get reports ok=false on a miss.
	Get(ctx context.Context, documentID string) (text string, ok bool, err error)
	Set(ctx context.Context, documentID, text string) error
	// Invalidate drops the entry; called when a document changes or goes away.
	Invalidate(ctx context.Context, documentID string) error
}

// now is a seam for tests.
var now = time.Now

type memoryEntry struct {
	text    string
	expires time.Time
	added   time.Time
}

// MemoryCache is a process-local ContentCache with per-entry TTL and a cap
// on the number of entries. At capacity the oldest entry is evicted.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]memoryEntry
}

func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &MemoryCache{ttl: ttl, maxEntries: maxEntries, entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, documentID string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[documentID]
	if !ok {
		return "", false, nil
	}
	if c.ttl > 0 && !now().Before(e.expires) {
		delete(c.entries, documentID)
		return "", false, nil
	}
	return e.text, true, nil
}

func (c *MemoryCache) Set(_ context.Context, documentID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := now()
	if _, exists := c.entries[documentID]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(t)
	}
	c.entries[documentID] = memoryEntry{text: text, expires: t.Add(c.ttl), added: t}
	return nil
}

// evictLocked drops expired entries, or the oldest one if none expired.
func (c *MemoryCache) evictLocked(t time.Time) {
	var oldestKey string
	var oldest time.Time
	removed := false
	for k, e := range c.entries {
		if c.ttl > 0 && !t.Before(e.expires) {
			delete(c.entries, k)
			removed = true
			continue
		}
		if oldestKey == "" || e.added.Before(oldest) {
			oldestKey, oldest = k, e.added
		}
	}
	if !removed && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *MemoryCache) Invalidate(_ context.Context, documentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, documentID)
	return nil
}

// Len is the number of cached entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

const contentPrefix = "qa:content:"

// redisCmd is the subset of *redis.Client used by RedisCache.
type redisCmd interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCache shares extracted text between server instances using
// expiring keys.
type RedisCache struct {
	rdb redisCmd
	ttl time.Duration
}

func NewRedisCache(rdb redisCmd, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, documentID string) (string, bool, error) {
	v, err := c.rdb.Get(ctx, contentPrefix+documentID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, documentID, text string) error {
	return c.rdb.Set(ctx, contentPrefix+documentID, text, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, documentID string) error {
	return c.rdb.Del(ctx, contentPrefix+documentID).Err()
}
