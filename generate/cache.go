package generate

import (
	"context"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/Paranoid-AF/genform/notify"
)

// Cache memoizes the Loader result for the lifetime of the process.
// Entries never expire, so the ttlcache expiration loop is never started;
// Invalidate forces the next Get to reload.
type Cache struct {
	loader *Loader
	cache  *ttlcache.Cache[string, *Loaded]
	group  singleflight.Group
}

// NewCache creates a Cache around l.
func NewCache(l *Loader) *Cache {
	c := ttlcache.New[string, *Loaded](
		ttlcache.WithTTL[string, *Loaded](ttlcache.NoTTL),
		ttlcache.WithDisableTouchOnHit[string, *Loaded](),
	)
	return &Cache{loader: l, cache: c}
}

// Get returns the cached load result, running the loader at most once across
// concurrent callers. Load notices go to n of the caller that ran the load.
// A failed load is cached too.
func (c *Cache) Get(ctx context.Context, n notify.Notifier) *Loaded {
	// The load outlives the request that happened to trigger it.
	loadCtx := context.WithoutCancel(ctx)
	load := ttlcache.LoaderFunc[string, *Loaded](
		func(tc *ttlcache.Cache[string, *Loaded], key string) *ttlcache.Item[string, *Loaded] {
			return tc.Set(key, c.loader.Load(loadCtx, n), ttlcache.NoTTL)
		},
	)
	item := c.cache.Get(c.loader.Model,
		ttlcache.WithLoader[string, *Loaded](ttlcache.NewSuppressedLoader[string, *Loaded](load, &c.group)),
	)
	if item == nil {
		return &Loaded{Model: c.loader.Model}
	}
	return item.Value()
}

// Peek returns the cached result without loading.
func (c *Cache) Peek() (*Loaded, bool) {
	item := c.cache.Get(c.loader.Model)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Invalidate drops the cached result.
func (c *Cache) Invalidate() {
	c.cache.Delete(c.loader.Model)
}

// Close drops the cached result. It is safe to call more than once.
func (c *Cache) Close() {
	c.cache.DeleteAll()
}
