// Package ttl provides a single-value cache whose entry is swapped
// atomically, so readers always observe either the old or the new entry.
package ttl

import (
	"sync/atomic"
	"time"
)

// Entry is an immutable cached value with the time it was stored.
type Entry[T any] struct {
	Value    T
	StoredAt time.Time
	// TTL overrides the cell's TTL for this entry when non-zero.
	TTL time.Duration
}

// Cell holds at most one Entry with a time-to-live.
type Cell[T any] struct {
	ttl   time.Duration
	now   func() time.Time
	entry atomic.Pointer[Entry[T]]
}

// New creates an empty cell with the given TTL.
func New[T any](ttl time.Duration) *Cell[T] {
	return &Cell[T]{ttl: ttl, now: time.Now}
}

// WithClock replaces the clock, for tests.
func (c *Cell[T]) WithClock(now func() time.Time) *Cell[T] {
	c.now = now
	return c
}

// Get returns the cached entry if it exists and is younger than the TTL.
func (c *Cell[T]) Get() (*Entry[T], bool) {
	e := c.entry.Load()
	if e == nil {
		return nil, false
	}
	ttl := c.ttl
	if e.TTL > 0 {
		ttl = e.TTL
	}
	if c.now().Sub(e.StoredAt) >= ttl {
		return nil, false
	}
	return e, true
}

// Peek returns the current entry regardless of age.
func (c *Cell[T]) Peek() *Entry[T] {
	return c.entry.Load()
}

// Set stores v with the current time and returns the new entry.
func (c *Cell[T]) Set(v T) *Entry[T] {
	e := &Entry[T]{Value: v, StoredAt: c.now()}
	c.entry.Store(e)
	return e
}

// SetFor stores v with a TTL of its own, typically shorter than the
// cell's.
func (c *Cell[T]) SetFor(v T, ttl time.Duration) *Entry[T] {
	e := &Entry[T]{Value: v, StoredAt: c.now(), TTL: ttl}
	c.entry.Store(e)
	return e
}

// Invalidate drops the entry only if it is still the one the caller saw,
// so a concurrent refresh is not thrown away.
func (c *Cell[T]) Invalidate(seen *Entry[T]) {
	if seen == nil {
		c.entry.Store(nil)
		return
	}
	c.entry.CompareAndSwap(seen, nil)
}

// TTL returns the configured time-to-live.
func (c *Cell[T]) TTL() time.Duration { return c.ttl }
