package catalog

import (
	"errors"

	"github.com/shopspring/decimal"
)

// PriceRange bounds a get_by_price_range lookup. Both ends are inclusive.
type PriceRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Key renders the range the way the cache key template in the design
// requires: "price:"+min+"-"+max.
func (r PriceRange) Key() string {
	return "price:" + r.Min.String() + "-" + r.Max.String()
}

// Sentinel errors surfaced to ProductService's callers. cache.ErrTierUnavailable,
// cache.ErrLockTimeout, and cache.ErrCodec are deliberately not mirrored here:
// per the design's availability-preferred-over-strict-consistency policy,
// TwoLevel.GetOrLoad absorbs them as a soft miss or degraded load, and
// ProductService logs the ones TwoLevel.Put/Invalidate/InvalidateNamespace
// return instead of passing them on, so a catalog-level counterpart would
// never be produced by any call path.
var (
	// ErrNotFound means the requested entity does not exist in the store.
	// Surfaced to the caller; never cached.
	ErrNotFound = errors.New("catalog: not found")

	// ErrStoreUnavailable means the store failed the request. Surfaced to
	// the caller; never cached.
	ErrStoreUnavailable = errors.New("catalog: store unavailable")

	// ErrInvalidInput is surfaced directly to the caller and never reaches
	// the cache.
	ErrInvalidInput = errors.New("catalog: invalid input")
)
