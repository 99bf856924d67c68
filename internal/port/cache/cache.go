// Package cache defines the byte-value cache port. The concierge uses it
// for synthesized audio, keyed by content hash.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. Get reports a miss
// with ok=false rather than an error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
