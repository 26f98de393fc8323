// Package cache provides storage backends for raw input bodies fetched
// from remote repositories and trackers.
//
// Backends:
//   - file: per-entry files under a directory, for single-instance use
//   - redis: shared storage for multi-instance deployments
//   - null: no-op storage for tests and --no-cache runs
//
// Entries are opaque byte slices; the fetch layer is responsible for any
// envelope (validators, fetch timestamps) it needs on top. A TTL of zero
// means the entry never expires, which the fetch layer relies on to keep
// stale bodies around as a fallback after failed revalidation.
package cache

import (
	"context"
	"time"
)

// Cache is the interface for input-body storage backends.
type Cache interface {
	// Get retrieves a value. The second return reports whether the key
	// was present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A zero ttl stores the value without expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Scoped wraps a Cache with a key prefix so that independent input kinds
// (repository databases, recipe documents, tracker feeds) cannot collide.
type Scoped struct {
	inner  Cache
	prefix string
}

// NewScoped returns a Cache that prepends prefix to every key.
func NewScoped(inner Cache, prefix string) *Scoped {
	return &Scoped{inner: inner, prefix: prefix}
}

func (s *Scoped) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return s.inner.Get(ctx, s.prefix+key)
}

func (s *Scoped) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return s.inner.Set(ctx, s.prefix+key, data, ttl)
}

func (s *Scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.prefix+key)
}

// Close is a no-op: the wrapped cache owns the backend connection.
func (s *Scoped) Close() error { return nil }

// Ensure Scoped implements Cache.
var _ Cache = (*Scoped)(nil)
