package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CodeLoader resolves a join code to the entity that owns it.
type CodeLoader interface {
	LookupCode(ctx context.Context, code string) (string, error)
}

// CodeCache caches join code lookups with TTL. Codes never change owner, so the
// only invalidation needed is Forget when an entity is deleted.
type CodeCache struct {
	loader CodeLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedCode
}

type cachedCode struct {
	entityID  string
	expiresAt time.Time
}

func NewCodeCache(loader CodeLoader, ttl time.Duration) *CodeCache {
	return &CodeCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedCode),
	}
}

func (c *CodeCache) LookupCode(ctx context.Context, code string) (string, error) {
	if id, ok := c.cached(code); ok {
		return id, nil
	}

	result, err, _ := c.sf.Do(code, func() (interface{}, error) {
		if id, ok := c.cached(code); ok {
			return id, nil
		}
		id, err := c.loader.LookupCode(ctx, code)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.cache[code] = cachedCode{
			entityID:  id,
			expiresAt: c.clock().Add(c.ttlWithJitterLocked()),
		}
		c.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Forget drops a cached code.
func (c *CodeCache) Forget(code string) {
	c.mu.Lock()
	delete(c.cache, code)
	c.mu.Unlock()
}

func (c *CodeCache) cached(code string) (string, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.cache[code]; ok && entry.expiresAt.After(now) {
		return entry.entityID, true
	}
	return "", false
}

func (c *CodeCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
