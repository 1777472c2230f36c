// Package cache provides the lazily filled collection shared by the
// registry, repository and tag levels.
package cache

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FetchFunc produces the full contents of a collection.
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// Collection is an all-or-nothing cache: it is either fully populated or
// empty. Concurrent fills share a single fetch.
type Collection[T any] struct {
	fetch FetchFunc[T]

	mu        sync.Mutex
	items     []T
	populated bool
	// generation changes on every Reset so a fill that started before a
	// reset cannot repopulate the cache with stale items.
	generation uint64

	group singleflight.Group
}

func New[T any](fetch FetchFunc[T]) *Collection[T] {
	return &Collection[T]{fetch: fetch}
}

// Get returns the cached items, fetching them when the cache is empty.
// refresh drops the cache first, so the result is always freshly built.
func (c *Collection[T]) Get(ctx context.Context, refresh bool) ([]T, error) {
	if refresh {
		c.Reset()
	}

	c.mu.Lock()
	if c.populated {
		items := c.snapshot()
		c.mu.Unlock()
		return items, nil
	}
	generation := c.generation
	c.mu.Unlock()

	result, err, _ := c.group.Do(fillKey(generation), func() (any, error) {
		items, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generation == generation {
			c.items = append([]T(nil), items...)
			c.populated = true
		}
		c.mu.Unlock()
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	items := result.([]T)
	out := make([]T, len(items))
	copy(out, items)
	return out, nil
}

// Reset empties the cache.
func (c *Collection[T]) Reset() {
	c.mu.Lock()
	c.items = nil
	c.populated = false
	c.generation++
	c.mu.Unlock()
}

// Populated reports whether the cache currently holds items.
func (c *Collection[T]) Populated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.populated
}

// Append adds item when the cache is populated. An empty cache stays empty
// so the next Get still performs a full fill.
func (c *Collection[T]) Append(item T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.populated {
		return false
	}
	c.items = append(c.items, item)
	return true
}

// Remove drops every cached item for which match returns true.
func (c *Collection[T]) Remove(match func(T) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.populated {
		return 0
	}
	kept := c.items[:0]
	removed := 0
	for _, item := range c.items {
		if match(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	c.items = kept
	return removed
}

func (c *Collection[T]) snapshot() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func fillKey(generation uint64) string {
	return strconv.FormatUint(generation, 10)
}
