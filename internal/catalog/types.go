// Package catalog implements the multi-tier read-through caching core that
// sits in front of the product catalog store: a bounded in-process tier, a
// shared network tier, the composite that orchestrates both, the singleflight
// coordinator that collapses cache-stampede loads, and the service surface
// that binds namespaces, TTL policy, and invalidation rules to concrete
// catalog operations.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the canonical cached value. Price is carried as decimal.Decimal
// so repeated encode/decode cycles through the shared tier never drift a cent
// the way a float64 would.
type Product struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	StockQuantity  int             `json:"stockQuantity"`
	Category       string          `json:"category"`
	Brand          string          `json:"brand"`
	ImageURL       string          `json:"imageUrl"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// Namespace is a logical cache partition with its own TTL policy and
// invalidation scope. The set is fixed and enumerated here rather than left
// open-ended so every key derivation site agrees on spelling.
type Namespace string

const (
	NamespaceProductByID     Namespace = "productById"
	NamespaceProducts        Namespace = "products"
	NamespaceCategories      Namespace = "categories"
	NamespaceSearchResults   Namespace = "searchResults"
	NamespacePriceRange      Namespace = "priceRange"
)
