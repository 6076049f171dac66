// Package dnscache implements the process-wide, bounded DNS cache shared
// by every connection pool: a fixed-capacity table of resolved addresses
// keyed by "host:port", with TTL expiry, reference counting, and
// LFU-with-ref-count-awareness eviction on miss.
package dnscache

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Resolver resolves host to a list of addresses. Swappable for tests.
type Resolver func(ctx context.Context, host string) ([]string, error)

func defaultResolver(ctx context.Context, host string) ([]string, error) {
	return net.DefaultResolver.LookupHost(ctx, host)
}

// Entry is one resolved (host, port) pair. CreatedAt is zeroed in place
// to mark an entry expired-but-still-referenced, mirroring the spec's
// "timestamp = 0" convention rather than a separate boolean flag.
type Entry struct {
	mu        sync.Mutex
	key       string
	Addresses []string
	CreatedAt time.Time
	RefCount  int32
	HitCount  uint64
}

func (e *Entry) expired() bool {
	return e.CreatedAt.IsZero()
}

// Cache is the shared table. The outer RWMutex guards the underlying
// store (the hashicorp/golang-lru Cache, used here purely as a
// capacity-bounded keyed store — all eviction decisions are made by this
// package, not by the library's own LRU policy, since the spec's
// eviction order is LFU-with-ref-count-awareness, not recency); each
// Entry additionally carries its own mutex for field updates, per the
// spec's "read/write lock for the table plus a per-entry mutex" policy.
type Cache struct {
	mu       sync.RWMutex
	capacity int
	ttl      time.Duration
	store    *lru.Cache[string, *Entry]
	resolve  Resolver
}

// New returns a cache with the given fixed capacity and TTL.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	// Sized one larger than capacity so Add never triggers the library's
	// own automatic eviction; this package always evicts explicitly
	// before inserting once at capacity.
	store, _ := lru.New[string, *Entry](capacity + 1)
	return &Cache{capacity: capacity, ttl: ttl, store: store, resolve: defaultResolver}
}

// SetResolver overrides the resolution function, for tests.
func (c *Cache) SetResolver(r Resolver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolve = r
}

func key(host, port string) string {
	return fmt.Sprintf("%s:%s", host, port)
}

// Lookup returns the resolved addresses for (host, port), incrementing
// the entry's ref_count and hit_count on a cache hit within TTL.
// Resolution on a miss happens outside any lock. The caller must
// eventually call Release for every successful Lookup.
func (c *Cache) Lookup(ctx context.Context, host, port string) ([]string, error) {
	k := key(host, port)

	if addrs, ok := c.tryHit(k); ok {
		return addrs, nil
	}

	c.mu.RLock()
	resolve := c.resolve
	c.mu.RUnlock()

	addrs, err := resolve(ctx, host)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check: the slot may already exist, either because another
	// goroutine inserted it while this one resolved without holding the
	// lock, or because it is the same expired-but-still-referenced entry
	// tryHit found. Either way this is a refresh in place, not a new
	// insertion: a lingering pinned reference must keep decrementing the
	// same Entry it incremented, so expiry never orphans a ref_count.
	if existing, ok := c.store.Peek(k); ok {
		existing.mu.Lock()
		existing.Addresses = addrs
		existing.CreatedAt = time.Now()
		existing.RefCount++
		existing.HitCount++
		existing.mu.Unlock()
		return addrs, nil
	}

	c.insertLocked(k, addrs)
	return addrs, nil
}

// tryHit attempts a read-locked scan for a live, unexpired entry.
func (c *Cache) tryHit(k string) ([]string, bool) {
	c.mu.RLock()
	e, ok := c.store.Peek(k)
	ttl := c.ttl
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.expired() {
		return nil, false
	}
	if time.Since(e.CreatedAt) > ttl {
		// Past TTL: this is a miss regardless of ref_count. If nothing
		// holds a reference the slot is simply overwritten by the
		// caller's subsequent insert-or-refresh; if something does, mark
		// expired (timestamp = 0) so the holder's eventual Release reaps
		// it, rather than silently dropping the live reference's count.
		if e.RefCount > 0 {
			e.CreatedAt = time.Time{}
		}
		return nil, false
	}

	e.RefCount++
	e.HitCount++
	addrs := make([]string, len(e.Addresses))
	copy(addrs, e.Addresses)
	return addrs, true
}

func (c *Cache) removeIfSame(k string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.store.Peek(k); ok && cur == e {
		c.store.Remove(k)
	}
}

// insertLocked inserts a freshly resolved entry, evicting first if the
// table is at capacity. Caller must hold c.mu.
func (c *Cache) insertLocked(k string, addrs []string) {
	if c.store.Len() >= c.capacity {
		victim, ok := c.selectVictimLocked()
		if !ok {
			// Every occupied slot is still referenced: the spec forbids
			// evicting a pinned entry, so this resolution is returned to
			// the caller uncached rather than forced in.
			return
		}
		c.store.Remove(victim)
	}
	c.store.Add(k, &Entry{
		key:       k,
		Addresses: addrs,
		CreatedAt: time.Now(),
		RefCount:  1,
		HitCount:  1,
	})
}

// selectVictimLocked picks the least-frequently-used entry with
// ref_count == 0, breaking ties by age (golang-lru's Keys() orders
// oldest-to-newest, so the first minimum found while iterating in that
// order is also the oldest among equals). Caller must hold c.mu.
func (c *Cache) selectVictimLocked() (string, bool) {
	var victim string
	var minHits uint64
	found := false

	for _, k := range c.store.Keys() {
		e, ok := c.store.Peek(k)
		if !ok {
			continue
		}
		e.mu.Lock()
		refCount := e.RefCount
		hits := e.HitCount
		e.mu.Unlock()

		if refCount != 0 {
			continue
		}
		if !found || hits < minHits {
			victim, minHits, found = k, hits, true
		}
	}
	return victim, found
}

// Release decrements the ref_count for (host, port). If the entry was
// already marked expired and this was its last reference, it is reaped
// immediately.
func (c *Cache) Release(host, port string) {
	k := key(host, port)

	c.mu.RLock()
	e, ok := c.store.Peek(k)
	c.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	if e.RefCount > 0 {
		e.RefCount--
	}
	reap := e.expired() && e.RefCount == 0
	e.mu.Unlock()

	if reap {
		c.removeIfSame(k, e)
	}
}

// Stats reports the current table occupancy, for observability.
type Stats struct {
	Count    int
	Capacity int
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Count: c.store.Len(), Capacity: c.capacity}
}

// Clear empties the table. Intended for tests; production code never
// drops live references out from under a pool.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Purge()
}
