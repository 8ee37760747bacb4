// Package cache provides a TTL cache for lookups that are expensive to repeat,
// such as token account resolution over RPC.
package cache

import "time"

// Cache is a string-keyed TTL cache.
type Cache interface {
	// Get returns (value, true) if key is present and not expired.
	Get(key string) (any, bool)

	// Set stores value under key for ttl. It reports whether the value was admitted.
	Set(key string, value any, ttl time.Duration) bool

	Delete(key string)
	Clear()
	Close()
}
