package catalog

import "context"

// Store is the read/write catalog access the caching core is shielding. The
// HTTP transport, SQL schema, and query planning behind it are external
// concerns; the core only ever calls these methods, synchronously.
// ProductService.Update and Delete pass ErrNotFound through and wrap any
// other store error in ErrStoreUnavailable, and Create wraps every store
// error; the read operations return the store's error unchanged.
type Store interface {
	FindByID(ctx context.Context, id int64) (Product, error)
	FindActive(ctx context.Context) ([]Product, error)
	FindByCategory(ctx context.Context, category string) ([]Product, error)
	FindByPriceRange(ctx context.Context, r PriceRange) ([]Product, error)
	SearchProducts(ctx context.Context, keyword string) ([]Product, error)
	FindDistinctCategories(ctx context.Context) ([]string, error)
	FindTopNByRecency(ctx context.Context, n int) ([]Product, error)
	Save(ctx context.Context, product Product) (Product, error)
	DeleteByID(ctx context.Context, id int64) error
}
