// Package rollupcache caches per (store, day) rollups. Builds for one key
// are collapsed into a single writer; readers never block on each other.
package rollupcache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"storepulse/api/metrics"
	"storepulse/api/models"
	"storepulse/api/utils"
)

// SchemaVersion is part of every key; bump it when DayRollup changes shape.
const SchemaVersion = 3

// BuildTimeout bounds a shared build. Builds are detached from the caller
// that started them so one cancelled request cannot fail the other waiters.
const BuildTimeout = 30 * time.Second

// DayRollup is the cached projection of one store day.
type DayRollup struct {
	StoreID  string
	Day      string
	Sessions []models.SessionSummary
	// Signals holds the day's friction events for the clusterer.
	Signals []models.Event
	// Clipped marks a day partly older than the retention horizon.
	Clipped bool
	BuiltAt time.Time
}

// Builder computes a rollup on a cache miss.
type Builder func(ctx context.Context) (*DayRollup, error)

type entry struct {
	rollup  *DayRollup
	expires time.Time
}

// Cache is an LRU of day rollups.
type Cache struct {
	lru   *lru.Cache
	group singleflight.Group
	ttl   time.Duration
	clock utils.Clock

	mu  sync.Mutex
	gen map[string]uint64
}

// New creates a cache holding up to size rollups. Days that are still open
// expire after ttl.
func New(size int, ttl time.Duration, clock utils.Clock) (*Cache, error) {
	l, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create rollup cache: %w", err)
	}
	if clock == nil {
		clock = utils.SystemClock()
	}
	return &Cache{lru: l, ttl: ttl, clock: clock, gen: map[string]uint64{}}, nil
}

// Key is the cache key for a store day.
func Key(storeID, day string) string {
	return fmt.Sprintf("v%d\x1f%s\x1f%s", SchemaVersion, storeID, day)
}

// Get returns the cached rollup or builds it. Concurrent misses on one key
// share a single build.
func (c *Cache) Get(ctx context.Context, storeID, day string, build Builder) (*DayRollup, error) {
	key := Key(storeID, day)
	if v, ok := c.lru.Get(key); ok {
		e := v.(entry)
		if e.expires.IsZero() || c.clock.Now().Before(e.expires) {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return e.rollup, nil
		}
		c.lru.Remove(key)
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	gen := c.generation(key)
	ch := c.group.DoChan(key, func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), BuildTimeout)
		defer cancel()
		r, err := build(bctx)
		if err != nil {
			return nil, err
		}
		c.store(key, gen, r)
		return r, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*DayRollup), nil
	}
}

// store writes r unless the key was invalidated while it was being built.
func (c *Cache) store(key string, gen uint64, r *DayRollup) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[key] != gen {
		return
	}
	e := entry{rollup: r}
	if r.Day >= utils.DayString(c.clock.Now()) && c.ttl > 0 {
		e.expires = c.clock.Now().Add(c.ttl)
	}
	c.lru.Add(key, e)
}

func (c *Cache) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[key]
}

// Invalidate drops a store day.
func (c *Cache) Invalidate(storeID, day string) {
	key := Key(storeID, day)
	c.mu.Lock()
	c.gen[key]++
	c.lru.Remove(key)
	c.mu.Unlock()
	c.group.Forget(key)
}

// InvalidateThrough drops every cached day of a store up to and including
// lastDay and returns how many entries were removed.
func (c *Cache) InvalidateThrough(storeID, lastDay string) int {
	prefix := Key(storeID, "")
	n := 0
	for _, k := range c.lru.Keys() {
		key, ok := k.(string)
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		if day := strings.TrimPrefix(key, prefix); day <= lastDay {
			c.Invalidate(storeID, day)
			n++
		}
	}
	return n
}

// Len reports the number of cached rollups.
func (c *Cache) Len() int { return c.lru.Len() }
