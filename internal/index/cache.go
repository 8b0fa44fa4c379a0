package index

import (
	"context"
	"sync"
)

// BuildFunc constructs a ready-to-search Index for one book, typically by
// loading the book's chunks and adding them to a fresh store.
type BuildFunc func(ctx context.Context) (*Index, error)

// Cache memoizes one Index per book for the process lifetime. Concurrent
// callers for the same book share a single build; a failed build is not
// cached, so the next caller retries.
type Cache struct {
	mu      sync.Mutex
	indexes map[string]*Index
	// building holds a done channel per book while its build is in flight.
	building map[string]chan struct{}
}

// NewCache returns an empty index cache.
func NewCache() *Cache {
	return &Cache{
		indexes:  make(map[string]*Index),
		building: make(map[string]chan struct{}),
	}
}

// GetOrBuild returns the cached Index for bookID, building it with build if
// absent. Only one build runs per book at a time; other callers block until
// it completes or ctx is done.
func (c *Cache) GetOrBuild(ctx context.Context, bookID string, build BuildFunc) (*Index, error) {
	for {
		c.mu.Lock()
		if ix, ok := c.indexes[bookID]; ok {
			c.mu.Unlock()
			return ix, nil
		}
		done, inFlight := c.building[bookID]
		if !inFlight {
			done = make(chan struct{})
			c.building[bookID] = done
			c.mu.Unlock()

			ix, err := build(ctx)

			c.mu.Lock()
			delete(c.building, bookID)
			if err == nil {
				c.indexes[bookID] = ix
			}
			c.mu.Unlock()
			close(done)

			return ix, err
		}
		c.mu.Unlock()

		// Another caller is building; wait and re-check.
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Invalidate drops the cached Index for bookID, closing its store. Call on
// book deletion or when the book's chunks change.
func (c *Cache) Invalidate(bookID string) {
	c.mu.Lock()
	ix, ok := c.indexes[bookID]
	delete(c.indexes, bookID)
	c.mu.Unlock()
	if ok {
		_ = ix.Close()
	}
}

// Len reports the number of cached indexes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.indexes)
}
