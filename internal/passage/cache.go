package passage

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of passages a Cache keeps when no size is
// configured.
const DefaultCacheSize = 128

var _ Provider = (*Cache)(nil)

// Cache keeps recently requested passages in memory in front of a slower
// Provider. Concurrent misses for the same ID share one upstream request.
// Lookup failures are not cached.
type Cache struct {
	next   Provider
	lru    *expirable.LRU[string, *Passage]
	group  singleflight.Group
	onLook func(hit bool)
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithLookupHook registers fn to be called after every lookup with whether
// it was served from memory.
func WithLookupHook(fn func(hit bool)) CacheOption {
	return func(c *Cache) { c.onLook = fn }
}

// NewCache wraps next with an LRU of size entries that expire after ttl.
// A size of zero or less selects [DefaultCacheSize]; a ttl of zero keeps
// entries until they are evicted.
func NewCache(next Provider, size int, ttl time.Duration, opts ...CacheOption) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c := &Cache{
		next: next,
		lru:  expirable.NewLRU[string, *Passage](size, nil, ttl),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Passage implements [Provider.Passage]. Callers receive their own copy.
func (c *Cache) Passage(ctx context.Context, id string) (*Passage, error) {
	if p, ok := c.lru.Get(id); ok {
		c.looked(true)
		return clonePassage(p), nil
	}
	c.looked(false)

	v, err, _ := c.group.Do(id, func() (any, error) {
		p, err := c.next.Passage(ctx, id)
		if err != nil {
			return nil, err
		}
		c.lru.Add(id, clonePassage(p))
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return clonePassage(v.(*Passage)), nil
}

// Invalidate drops id from the cache.
func (c *Cache) Invalidate(id string) { c.lru.Remove(id) }

// Len returns the number of cached passages.
func (c *Cache) Len() int { return c.lru.Len() }

func (c *Cache) looked(hit bool) {
	if c.onLook != nil {
		c.onLook(hit)
	}
}
