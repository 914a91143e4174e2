// Package cache stores transform results between requests.
//
// Three backends share the [Cache] interface: [NullCache] disables caching,
// [FileCache] keeps entries on local disk for single-instance use and
// [RedisCache] lets several server instances share results. [Scoped] prefixes
// every key so one backend can serve several project roots.
//
// Keys are derived from everything that influences a transform, see
// [TransformKey]; a changed source file, toggled HMR flag or re-resolved import
// produces a new key rather than invalidating the old one.
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
// A ttl of zero means the entry never expires.
type Cache interface {
	// Get returns the value and true on a hit. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Clearer is implemented by backends that can drop every entry they own.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Clear empties c if the backend supports it and reports whether it did.
func Clear(ctx context.Context, c Cache) (bool, error) {
	cl, ok := c.(Clearer)
	if !ok {
		return false, nil
	}
	return true, cl.Clear(ctx)
}
