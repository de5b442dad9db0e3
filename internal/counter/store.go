// Package counter abstracts the shared low-latency key-value store that backs
// every admission-control component. All coordination between concurrent
// request handlers happens through this store's atomic increment and per-key
// expiry; the components themselves hold no state across requests.
package counter

import (
	"context"
	"time"
)

// Store is the set of primitives the admission-control components need.
// Implementations must provide atomic Incr (each call returns a unique,
// monotonically increasing value for that key) and native per-key expiry.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent or
	// expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes a value. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Incr atomically increments a counter and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// IncrWindow increments a windowed counter, attaching the window TTL when
	// this increment created the key. Returns the new value.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)

	// Expire sets or replaces the TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// TTL returns the remaining lifetime of key. ok is false when the key is
	// absent; a zero duration with ok=true means the key has no expiry.
	TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error)

	// Del removes keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	// Keys enumerates keys by prefix. Admin/diagnostic use only; never on the
	// hot admission path.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
