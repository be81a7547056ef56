// Package cache provides the single-flight result cache for remote
// queries. It guarantees at most one stored entry and at most one in-flight
// fetch per key, so concurrent consumers of the same query never register
// duplicate live subscriptions against the hosted store.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/accesstrails/trailsync/remote"
)

// Origin records which read path produced a cached entry.
type Origin uint8

const (
	// OriginPrimary marks a strongly-consistent, server-origin result.
	OriginPrimary Origin = iota
	// OriginSecondary marks a replica fallback result. Callers needing
	// strong consistency can detect this and refresh.
	OriginSecondary
)

func (o Origin) String() string {
	if o == OriginSecondary {
		return "secondary"
	}
	return "primary"
}

// Entry is one completed query result. Entries are immutable once stored;
// a later successful fetch for the same key replaces the whole entry.
type Entry struct {
	Key       string
	Records   []remote.Record
	FetchedAt time.Time
	Origin    Origin
}

// FetchFunc produces the records for a key along with the path that
// served them.
type FetchFunc func(ctx context.Context) ([]remote.Record, Origin, error)

// Cache is a time-unbounded cache of completed query results. Entries
// live until explicitly invalidated.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Entry
	flight  singleflight.Group

	now func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Get returns the stored entry for key, if any.
func (c *Cache) Get(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// GetOrFetch returns the cached entry for key, or runs fetch to produce
// one. Callers requesting the same key while a fetch is in flight attach
// to that fetch and receive the identical entry. A failed fetch stores
// nothing and reports the error to every attached caller.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (*Entry, error) {
	if e, ok := c.Get(key); ok {
		return e, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// A fetch that completed between the miss above and acquiring
		// the flight wins; don't refetch.
		if e, ok := c.Get(key); ok {
			return e, nil
		}
		records, origin, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		e := &Entry{
			Key:       key,
			Records:   records,
			FetchedAt: c.now(),
			Origin:    origin,
		}
		c.mu.Lock()
		c.entries[key] = e
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Invalidate drops the entry for key so the next GetOrFetch performs a
// fresh fetch. Callers already attached to an in-flight fetch still
// receive its outcome; new callers start over.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.flight.Forget(key)
}
