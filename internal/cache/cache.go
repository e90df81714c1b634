// Package cache implements KeyedCache (§4.1): a concurrency-safe map from
// keys to shared, internally-synchronized entries, with single-flight
// build semantics and graceful removal.
//
// Every cache in the runtime — the ComponentRegistry, the SecretVault's
// decrypted-secrets cache, and the DbBroker's connection table — is an
// instance of KeyedCache specialized to a different value type. Keeping
// the synchronization logic in one generic place is what lets §8's
// single-flight invariant ("b runs <= 1 time per surviving insertion")
// be verified once, in this package's tests, instead of three times.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Entry is an ownership-shared handle around a value of type V. The
// KeyedCache owns the map slot; the Entry's value is shared with every
// holder that looked it up, and destroying the cache entry does not
// invalidate Entries already handed out (§3 Cache Entry, §9).
type Entry[V any] struct {
	mu    sync.RWMutex
	value V
}

// ReadGuard grants concurrent read access to an Entry's value. Call
// Release when done; forgetting to do so deadlocks subsequent writers.
type ReadGuard[V any] struct {
	entry *Entry[V]
}

func (g ReadGuard[V]) Value() V { return g.entry.value }
func (g ReadGuard[V]) Release() { g.entry.mu.RUnlock() }

// WriteGuard grants exclusive access to an Entry's value.
type WriteGuard[V any] struct {
	entry *Entry[V]
}

func (g WriteGuard[V]) Value() *V { return &g.entry.value }
func (g WriteGuard[V]) Release()  { g.entry.mu.Unlock() }

// Read blocks until a read lock is granted. Grant order is unspecified
// but starvation-free (delegated to sync.RWMutex).
func (e *Entry[V]) Read() ReadGuard[V] {
	e.mu.RLock()
	return ReadGuard[V]{entry: e}
}

// Write blocks until the write lock is granted.
func (e *Entry[V]) Write() WriteGuard[V] {
	e.mu.Lock()
	return WriteGuard[V]{entry: e}
}

// KeyedCache is a concurrency-safe map from K to *Entry[V]. K is
// constrained to ~string because every concrete use in this runtime keys
// by a string identifier (component id, tenant hash, connection UUID) and
// that lets lookups share a single golang.org/x/sync/singleflight.Group
// directly instead of a second, parallel reimplementation of single-flight
// keyed by an arbitrary comparable type.
type KeyedCache[K ~string, V any] struct {
	mu      sync.RWMutex
	entries map[K]*Entry[V]
	group   singleflight.Group
}

// New returns an empty KeyedCache.
func New[K ~string, V any]() *KeyedCache[K, V] {
	return &KeyedCache[K, V]{entries: make(map[K]*Entry[V])}
}

// LookupOrBuildSync returns the existing entry for key, or computes
// build() and inserts it. build() runs while the map's write lock is held,
// after a second lookup under that lock, so racing callers never both
// build: the first to take the lock builds and inserts, and the others
// receive its entry. Holding the lock also blocks lookups of other keys
// for as long as build() runs.
func (c *KeyedCache[K, V]) LookupOrBuildSync(key K, build func() V) *Entry[V] {
	c.mu.RLock()
	if e, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return e
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e
	}
	e := &Entry[V]{value: build()}
	c.entries[key] = e
	return e
}

// LookupOrBuildAsync is LookupOrBuildSync's suspending counterpart. While
// a build is in flight for key, concurrent callers for the same key await
// that build via singleflight rather than starting their own — build runs
// at most once per winning insertion (§4.1, §8).
//
// build's error, if any, is not cached: a failed build never poisons the
// entry, and the next call for key retries from scratch (§4.1 Failure
// model).
func (c *KeyedCache[K, V]) LookupOrBuildAsync(ctx context.Context, key K, build func(context.Context) (V, error)) (*Entry[V], error) {
	c.mu.RLock()
	if e, ok := c.entries[key]; ok {
		c.mu.RUnlock()
		return e, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(string(key), func() (any, error) {
		c.mu.RLock()
		if e, ok := c.entries[key]; ok {
			c.mu.RUnlock()
			return e, nil
		}
		c.mu.RUnlock()

		value, err := build(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if e, ok := c.entries[key]; ok {
			// Someone else's sync build beat us to it; discard ours.
			return e, nil
		}
		e := &Entry[V]{value: value}
		c.entries[key] = e
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry[V]), nil
}

// DestroyGracefully removes key from the map. Entries already handed out
// to readers/writers remain valid for their holders; the next
// LookupOrBuild* call for key rebuilds from scratch (§4.1).
func (c *KeyedCache[K, V]) DestroyGracefully(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Peek returns the entry currently stored for key, if any, without
// building one. Used by callers that need to act on an existing entry
// (e.g. closing its resource) only when one exists.
func (c *KeyedCache[K, V]) Peek(key K) (*Entry[V], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Len reports the number of live entries. Intended for tests and metrics.
func (c *KeyedCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
