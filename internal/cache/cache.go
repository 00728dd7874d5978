// Package cache provides a generic in-memory TTL cache with per-key
// single-flight computation.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	value  V
	expiry time.Time
}

// DefaultComputeTimeout bounds a shared computation started by GetOrCompute.
const DefaultComputeTimeout = time.Minute

// TTL memoises values per key until their time-to-live elapses. Concurrent
// misses for the same key share one computation. Failed computations are
// not cached.
type TTL[K comparable, V any] struct {
	mu             sync.RWMutex
	entries        map[K]entry[V]
	group          singleflight.Group
	now            func() time.Time
	computeTimeout time.Duration
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	now            func() time.Time
	computeTimeout time.Duration
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithComputeTimeout overrides DefaultComputeTimeout. A non-positive d
// leaves shared computations unbounded.
func WithComputeTimeout(d time.Duration) Option {
	return func(o *options) { o.computeTimeout = d }
}

// New creates an empty cache.
func New[K comparable, V any](opts ...Option) *TTL[K, V] {
	o := options{now: time.Now, computeTimeout: DefaultComputeTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[K, V]{
		entries:        make(map[K]entry[V]),
		now:            o.now,
		computeTimeout: o.computeTimeout,
	}
}

// Get returns the cached value for key if it has not expired.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiry) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for ttl.
func (c *TTL[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, expiry: c.now().Add(ttl)}
}

// GetOrCompute returns the cached value for key, computing and storing it
// with fn on a miss. A non-positive ttl computes without caching.
//
// The computation is shared by every caller waiting on key, so fn runs
// detached from the cancellation of whichever caller started it and is
// bounded by the compute timeout instead. Each caller stops waiting when
// its own ctx ends.
func (c *TTL[K, V]) GetOrCompute(ctx context.Context, key K, ttl time.Duration, fn func(context.Context) (V, error)) (V, error) {
	var zero V
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	ch := c.group.DoChan(flightKey(key), func() (any, error) {
		// Another caller may have filled the entry while we waited.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		computeCtx, cancel := c.detach(ctx)
		defer cancel()
		v, err := fn(computeCtx)
		if err != nil {
			return v, err
		}
		if ttl > 0 {
			c.Set(key, v, ttl)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(V), nil
	}
}

func (c *TTL[K, V]) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if c.computeTimeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, c.computeTimeout)
}

// Evict removes key from the cache.
func (c *TTL[K, V]) Evict(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge removes every entry.
func (c *TTL[K, V]) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[K]entry[V])
}

// Len returns the number of stored entries, expired ones included until
// they are evicted or overwritten.
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func flightKey[K comparable](key K) string {
	if s, ok := any(key).(string); ok {
		return s
	}
	return fmt.Sprintf("%#v", key)
}
