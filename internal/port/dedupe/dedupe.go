// Package dedupe defines the port interface for inbound message
// deduplication.
package dedupe

import (
	"context"
	"time"
)

// Deduper remembers message IDs for a bounded time so redelivered callbacks
// can be acknowledged without being dispatched twice.
type Deduper interface {
	// Seen reports whether the ID was marked within its TTL.
	Seen(ctx context.Context, id string) (bool, error)

	// Mark records the ID for the given TTL.
	Mark(ctx context.Context, id string, ttl time.Duration) error
}
