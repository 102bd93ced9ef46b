package anyvcs

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// opCache memoizes expensive per-revision query results. Keys are built from
// the operation kind, the canonical revision identifier(s), and operation
// parameters; identifiers are stable, so entries never need eviction for
// correctness. The LRU only bounds storage.
//
// Duplicate concurrent requests for one key block behind the first
// computation instead of recomputing, and a failed computation is never
// stored; the next request retries.
type opCache struct {
	group singleflight.Group
	lru   *lru.Cache[string, any]
}

func newOpCache(size int) *opCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for non-positive sizes.
	l, _ := lru.New[string, any](size)
	return &opCache{lru: l}
}

func (c *opCache) do(key string, compute func() (any, error)) (any, error) {
	if v, ok := c.lru.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		v, err := compute()
		if err != nil {
			return nil, err
		}
		c.lru.Add(key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// cached is the typed front of opCache.do.
func cached[T any](c *opCache, key string, compute func() (T, error)) (T, error) {
	v, err := c.do(key, func() (any, error) { return compute() })
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

func cacheKey(op string, parts ...string) string {
	return op + "\x00" + strings.Join(parts, "\x00")
}
