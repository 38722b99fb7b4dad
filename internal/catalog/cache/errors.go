package cache

import "errors"

// Sentinel errors the cache tiers and composite return. The catalog package
// declares no counterparts: TwoLevel.GetOrLoad absorbs these, and
// ProductService logs the ones Put and the invalidation calls return.
// Callers outside this package match with errors.Is against these, not
// string compares.
var (
	// ErrCodec is returned by a Codec when encode or decode fails.
	ErrCodec = errors.New("cache: codec error")

	// ErrTierUnavailable is returned by SharedCache when the underlying
	// network store is unreachable or erroring. TwoLevel treats this as a
	// soft miss on read and a no-op on write.
	ErrTierUnavailable = errors.New("cache: tier unavailable")

	// ErrLockTimeout is returned by StampedeGuard.WithLock when the
	// cluster-wide lock could not be acquired within wait_timeout.
	ErrLockTimeout = errors.New("cache: lock acquire timed out")
)
