// Package cache provides the ephemeral secret store: a key-value space
// with per-key TTL used for short-lived auth state (pending MFA setup
// secrets, login MFA challenges). In a scaled deployment it must be shared
// by every backend instance, so the production implementation is Redis;
// an in-process implementation backs tests and single-node development.
package cache

import (
	"context"
	"time"
)

type Store interface {
	// Set writes the value under key with the given TTL, replacing any
	// previous value.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get returns the value and true if the key exists and has not
	// expired.
	Get(ctx context.Context, key string) (string, bool, error)
	// Delete removes the key and reports whether it existed. The
	// existence result is what makes single-use consumption safe under
	// concurrent callers: only one of two racing deletes sees true.
	Delete(ctx context.Context, key string) (bool, error)
}
