// Package ristretto implements the dedupe port on a dgraph-io/ristretto
// in-process cache.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Deduper tracks recently seen message IDs in a size-bounded cache. Eviction
// under memory pressure means a redelivered callback can be dispatched
// again; that duplicate is accepted as rare rather than guarded against.
type Deduper struct {
	c *ristretto.Cache[string, struct{}]
}

// New creates a deduper bounded to maxCostBytes of tracked IDs.
func New(maxCostBytes int64) (*Deduper, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, struct{}]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Deduper{c: c}, nil
}

// Seen reports whether the ID is currently tracked.
func (d *Deduper) Seen(_ context.Context, id string) (bool, error) {
	_, found := d.c.Get(id)
	return found, nil
}

// Mark records the ID for the given TTL. The cost is the ID length.
func (d *Deduper) Mark(_ context.Context, id string, ttl time.Duration) error {
	d.c.SetWithTTL(id, struct{}{}, int64(len(id)), ttl)
	return nil
}

// Wait blocks until pending writes are applied. Tests use it; production
// code tolerates the write buffer's delay.
func (d *Deduper) Wait() {
	d.c.Wait()
}

// Close shuts down the cache and releases resources.
func (d *Deduper) Close() {
	d.c.Close()
}
