// Package cache provides the fast store used by the distribution engine for
// dedup markers, rate-limit ticks, album bookkeeping, cooldowns and short
// TTL caches. All operations are atomic.
package cache

import (
	"context"
	"time"
)

// Cache is the fast-store contract. The engine only depends on this
// interface; the default implementation is an embedded Badger database, and
// a shared server (with the same key semantics) can back it in multi-process
// deployments.
type Cache interface {
	// Get returns the value for key, and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes key=value with a TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX atomically writes key=value with a TTL only if the key does not
	// exist. Returns true when the key was set (i.e. it did not exist).
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Incr atomically increments an integer counter, creating it with the
	// given TTL on first use, and returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// WindowAdd records a timestamped member under key, expiring after ttl.
	// Together with WindowCount/WindowOldest this implements the sliding
	// window behind the global rate limiter.
	WindowAdd(ctx context.Context, key, member string, at time.Time, ttl time.Duration) error
	// WindowCount counts members recorded at or after since.
	WindowCount(ctx context.Context, key string, since time.Time) (int, error)
	// WindowOldest returns the timestamp of the oldest member recorded at or
	// after since, and whether one exists.
	WindowOldest(ctx context.Context, key string, since time.Time) (time.Time, bool, error)

	Close() error
}
