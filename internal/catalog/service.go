package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/l0p7/catalogcache/internal/catalog/cache"
)

// shortTermL1MaxSize and shortTermL1TTL ground the search-results L1 tier on
// the original source's dedicated short-lived Caffeine manager, distinct
// from the standard productById/categories/products-new manager.
const (
	shortTermL1MaxSize = 5_000
	shortTermL1TTL     = time.Minute
)

// ServiceConfig carries the TTL and sizing policy ProductService needs to
// build its TwoLevel instances. It mirrors config.Config's l1/l2/lock/warmer
// sections without importing the config package, so the cache core stays
// decoupled from the configuration file format.
type ServiceConfig struct {
	L1MaxSize   int
	L1TTLWrite  time.Duration
	L1TTLAccess time.Duration

	L2TTLProductByID    time.Duration
	L2TTLProducts       time.Duration
	L2TTLCategories     time.Duration
	L2TTLSearchResults  time.Duration
	L2TTLPriceRange     time.Duration

	LockWaitTimeout  time.Duration
	LockLeaseTimeout time.Duration

	WarmerTopN         int
	WarmerNewArrivalsN int
}

// ProductService is the cache-aware facade (C5) over Store: it owns the
// namespace/key/TTL policy, the per-namespace TwoLevel instances, the
// mutation invalidation algebra, and the warmer.
type ProductService struct {
	store   Store
	logger  *slog.Logger
	metrics MetricsSink
	cfg     ServiceConfig

	l2    *cache.SharedCache
	guard *cache.StampedeGuard

	byID        *cache.TwoLevel[Product]
	productsAll *cache.TwoLevel[[]Product]
	productsNew *cache.TwoLevel[[]Product]
	categories  *cache.TwoLevel[[]string]
	search      *cache.TwoLevel[[]Product]
	priceRange  *cache.TwoLevel[[]Product]

	l1Standard *cache.LocalCache
	l1Search   *cache.LocalCache
}

// NewProductService wires the cache core on top of store. l2 and guard are
// shared across every namespace; guard may be nil to disable singleflight
// entirely regardless of what a caller requests per-call.
func NewProductService(store Store, l2 *cache.SharedCache, guard *cache.StampedeGuard, logger *slog.Logger, metrics MetricsSink, cfg ServiceConfig) *ProductService {
	if metrics == nil {
		metrics = NoopMetrics
	}
	if logger == nil {
		logger = slog.Default()
	}

	l1Standard := cache.NewLocal(cache.LocalOptions{
		MaxSize:   cfg.L1MaxSize,
		TTLWrite:  cfg.L1TTLWrite,
		TTLAccess: cfg.L1TTLAccess,
		Metrics:   metrics,
	})
	l1Search := cache.NewLocal(cache.LocalOptions{
		MaxSize:  shortTermL1MaxSize,
		TTLWrite: shortTermL1TTL,
		Metrics:  metrics,
	})

	s := &ProductService{
		store:      store,
		logger:     logger.With(slog.String("component", "product_service")),
		metrics:    metrics,
		cfg:        cfg,
		l2:         l2,
		guard:      guard,
		l1Standard: l1Standard,
		l1Search:   l1Search,
	}

	s.byID = cache.NewTwoLevel[Product](cache.TwoLevelOptions{
		L1: l1Standard, L2: l2, Guard: guard, Metrics: metrics,
	})
	s.productsAll = cache.NewTwoLevel[[]Product](cache.TwoLevelOptions{
		L2: l2, Metrics: metrics,
	})
	s.productsNew = cache.NewTwoLevel[[]Product](cache.TwoLevelOptions{
		L1: l1Standard, L2: l2, Metrics: metrics,
	})
	s.categories = cache.NewTwoLevel[[]string](cache.TwoLevelOptions{
		L1: l1Standard, L2: l2, Metrics: metrics,
	})
	s.search = cache.NewTwoLevel[[]Product](cache.TwoLevelOptions{
		L1: l1Search, L2: l2, Metrics: metrics,
	})
	s.priceRange = cache.NewTwoLevel[[]Product](cache.TwoLevelOptions{
		L2: l2, Metrics: metrics,
	})

	return s
}

func (s *ProductService) lockOpts(singleflight bool) cache.GetOrLoadOptions {
	return cache.GetOrLoadOptions{
		Singleflight: singleflight,
		WaitTimeout:  s.cfg.LockWaitTimeout,
		LeaseTimeout: s.cfg.LockLeaseTimeout,
	}
}

// GetByID resolves a single product by id. singleflight opts the call into
// the cluster-wide stampede guard; callers on a cold, high-fanout key
// (productById/1 right after a deploy) should set it, while callers that
// accept duplicate loads under the rare race may leave it off.
func (s *ProductService) GetByID(ctx context.Context, id int64, singleflight bool) (Product, cache.Tag, error) {
	key := cache.Key{Namespace: string(NamespaceProductByID), ID: strconv.FormatInt(id, 10)}
	opts := s.lockOpts(singleflight)
	opts.L2TTL = s.cfg.L2TTLProductByID
	return s.byID.GetOrLoad(ctx, key, func(ctx context.Context) (Product, error) {
		return s.store.FindByID(ctx, id)
	}, opts)
}

// GetAll resolves every active product.
func (s *ProductService) GetAll(ctx context.Context) ([]Product, cache.Tag, error) {
	key := cache.Key{Namespace: string(NamespaceProducts), ID: "all"}
	opts := s.lockOpts(false)
	opts.L2TTL = s.cfg.L2TTLProducts
	return s.productsAll.GetOrLoad(ctx, key, func(ctx context.Context) ([]Product, error) {
		return s.store.FindActive(ctx)
	}, opts)
}

// GetByCategory resolves every product in category, active or not.
func (s *ProductService) GetByCategory(ctx context.Context, category string) ([]Product, cache.Tag, error) {
	key := cache.Key{Namespace: string(NamespaceProducts), ID: "category:" + category}
	opts := s.lockOpts(false)
	opts.L2TTL = s.cfg.L2TTLProducts
	return s.productsAll.GetOrLoad(ctx, key, func(ctx context.Context) ([]Product, error) {
		return s.store.FindByCategory(ctx, category)
	}, opts)
}

// Search resolves products whose name or description contains keyword,
// keyed case-insensitively.
func (s *ProductService) Search(ctx context.Context, keyword string) ([]Product, cache.Tag, error) {
	key := cache.Key{Namespace: string(NamespaceSearchResults), ID: strings.ToLower(keyword)}
	opts := s.lockOpts(false)
	opts.L2TTL = s.cfg.L2TTLSearchResults
	return s.search.GetOrLoad(ctx, key, func(ctx context.Context) ([]Product, error) {
		return s.store.SearchProducts(ctx, keyword)
	}, opts)
}

// GetByPriceRange resolves every product priced within r, inclusive.
func (s *ProductService) GetByPriceRange(ctx context.Context, r PriceRange) ([]Product, cache.Tag, error) {
	key := cache.Key{Namespace: string(NamespacePriceRange), ID: r.Key()}
	opts := s.lockOpts(false)
	opts.L2TTL = s.cfg.L2TTLPriceRange
	return s.priceRange.GetOrLoad(ctx, key, func(ctx context.Context) ([]Product, error) {
		return s.store.FindByPriceRange(ctx, r)
	}, opts)
}

// GetCategories resolves the distinct set of product categories.
func (s *ProductService) GetCategories(ctx context.Context) ([]string, cache.Tag, error) {
	key := cache.Key{Namespace: string(NamespaceCategories), ID: "all"}
	opts := s.lockOpts(false)
	opts.L2TTL = s.cfg.L2TTLCategories
	return s.categories.GetOrLoad(ctx, key, func(ctx context.Context) ([]string, error) {
		return s.store.FindDistinctCategories(ctx)
	}, opts)
}

// Create commits product to the store and invalidates every namespace a new
// product could affect: the listings, the category set, and the price-range
// buckets it now belongs to.
func (s *ProductService) Create(ctx context.Context, product Product) (Product, error) {
	if err := validateProduct(product); err != nil {
		return Product{}, err
	}
	saved, err := s.store.Save(ctx, product)
	if err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.invalidateProducts(ctx)
	s.invalidateNamespace(ctx, s.categories, string(NamespaceCategories))
	s.invalidateNamespace(ctx, s.priceRange, string(NamespacePriceRange))
	return saved, nil
}

// Update commits the new value to the store, refreshes the productById entry
// in both tiers directly (so an immediately-following GetByID never misses),
// then invalidates the listing and price-range namespaces.
func (s *ProductService) Update(ctx context.Context, id int64, product Product) (Product, error) {
	if err := validateProduct(product); err != nil {
		return Product{}, err
	}
	product.ID = id
	saved, err := s.store.Save(ctx, product)
	if err != nil {
		if err == ErrNotFound {
			return Product{}, err
		}
		return Product{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	key := cache.Key{Namespace: string(NamespaceProductByID), ID: strconv.FormatInt(id, 10)}
	if err := s.byID.Put(ctx, key, saved, s.cfg.L2TTLProductByID); err != nil {
		s.logger.Warn("cache put failed after update", slog.Int64("id", id), slog.Any("error", err))
	}
	s.invalidateProducts(ctx)
	s.invalidateNamespace(ctx, s.priceRange, string(NamespacePriceRange))
	return saved, nil
}

// Delete removes the product from the store, evicts its productById entry,
// and invalidates every namespace a listing, price-range bucket, or search
// result could have been derived from.
func (s *ProductService) Delete(ctx context.Context, id int64) error {
	if err := s.store.DeleteByID(ctx, id); err != nil {
		if err == ErrNotFound {
			return err
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	key := cache.Key{Namespace: string(NamespaceProductByID), ID: strconv.FormatInt(id, 10)}
	if err := s.byID.Invalidate(ctx, key); err != nil {
		s.logger.Warn("cache invalidate failed after delete", slog.Int64("id", id), slog.Any("error", err))
	}
	s.invalidateProducts(ctx)
	s.invalidateNamespace(ctx, s.priceRange, string(NamespacePriceRange))
	s.invalidateNamespace(ctx, s.search, string(NamespaceSearchResults))
	return nil
}

// invalidateNamespace invalidates ns on t and logs a failure to metrics/logs
// rather than propagating it: per the design, invalidation failures never
// fail the mutation that triggered them, since TTL still converges.
func (s *ProductService) invalidateNamespace(ctx context.Context, t interface{ InvalidateNamespace(context.Context, string) error }, ns string) {
	if err := t.InvalidateNamespace(ctx, ns); err != nil {
		s.logger.Warn("namespace invalidation failed", slog.String("namespace", ns), slog.Any("error", err))
	}
}

// invalidateProducts clears the products namespace on both TwoLevel
// instances that serve it: productsAll (get_all / get_by_category, L1-less)
// and productsNew (the warmer's products/new key, which does carry an L1
// entry on the standard local cache). Both share the same L2 namespace, so
// the shared-tier delete is redundant across the two calls but harmless.
func (s *ProductService) invalidateProducts(ctx context.Context) {
	s.invalidateNamespace(ctx, s.productsAll, string(NamespaceProducts))
	s.invalidateNamespace(ctx, s.productsNew, string(NamespaceProducts))
}

func validateProduct(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name required", ErrInvalidInput)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	return nil
}

// WarmReport summarizes one warmer run for logging and the /admin/warm
// response body.
type WarmReport struct {
	ProductsByID int
	Categories   int
	ByCategory   int
	NewArrivals  int
	Duration     time.Duration
}

// WarmAll runs the three warmer phases concurrently, each populating both
// cache tiers directly via TwoLevel.Put. The phases read disjoint parts of
// the store and write disjoint cache namespaces, so there is nothing to
// serialize them on. A phase failure is logged and does not abort the other
// phases, matching the original source's tolerance for partial warm-up.
func (s *ProductService) WarmAll(ctx context.Context) (WarmReport, error) {
	start := time.Now()
	var report WarmReport

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.warmProductsByID(gctx)
		report.ProductsByID = n
		if err != nil {
			s.logger.Error("warmer: productById phase failed", slog.Any("error", err))
		}
		return nil
	})

	g.Go(func() error {
		categoryCount, byCategoryCount, err := s.warmCategories(gctx)
		report.Categories = categoryCount
		report.ByCategory = byCategoryCount
		if err != nil {
			s.logger.Error("warmer: categories phase failed", slog.Any("error", err))
		}
		return nil
	})

	g.Go(func() error {
		n, err := s.warmNewArrivals(gctx)
		report.NewArrivals = n
		if err != nil {
			s.logger.Error("warmer: new arrivals phase failed", slog.Any("error", err))
		}
		return nil
	})

	_ = g.Wait() // phase goroutines never return a non-nil error; failures are logged and absorbed per-phase

	report.Duration = time.Since(start)
	s.logger.Info("warmer run complete",
		slog.Int("products_by_id", report.ProductsByID),
		slog.Int("categories", report.Categories),
		slog.Int("by_category", report.ByCategory),
		slog.Int("new_arrivals", report.NewArrivals),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

func (s *ProductService) warmProductsByID(ctx context.Context) (int, error) {
	active, err := s.store.FindActive(ctx)
	if err != nil {
		return 0, err
	}
	top := active
	if s.cfg.WarmerTopN > 0 && len(top) > s.cfg.WarmerTopN {
		top = top[:s.cfg.WarmerTopN]
	}
	count := 0
	for _, p := range top {
		key := cache.Key{Namespace: string(NamespaceProductByID), ID: strconv.FormatInt(p.ID, 10)}
		if err := s.byID.Put(ctx, key, p, s.cfg.L2TTLProductByID); err != nil {
			s.logger.Warn("warmer: put productById failed", slog.Int64("id", p.ID), slog.Any("error", err))
			continue
		}
		count++
	}
	return count, nil
}

func (s *ProductService) warmCategories(ctx context.Context) (categoryCount, byCategoryCount int, err error) {
	categories, err := s.store.FindDistinctCategories(ctx)
	if err != nil {
		return 0, 0, err
	}

	key := cache.Key{Namespace: string(NamespaceCategories), ID: "all"}
	if err := s.categories.Put(ctx, key, categories, s.cfg.L2TTLCategories); err != nil {
		s.logger.Warn("warmer: put categories failed", slog.Any("error", err))
	} else {
		categoryCount = len(categories)
	}

	for _, category := range categories {
		products, err := s.store.FindByCategory(ctx, category)
		if err != nil {
			s.logger.Warn("warmer: find by category failed", slog.String("category", category), slog.Any("error", err))
			continue
		}
		key := cache.Key{Namespace: string(NamespaceProducts), ID: "category:" + category}
		if err := s.productsAll.Put(ctx, key, products, s.cfg.L2TTLProducts); err != nil {
			s.logger.Warn("warmer: put category listing failed", slog.String("category", category), slog.Any("error", err))
			continue
		}
		byCategoryCount++
	}
	return categoryCount, byCategoryCount, nil
}

func (s *ProductService) warmNewArrivals(ctx context.Context) (int, error) {
	newest, err := s.store.FindTopNByRecency(ctx, s.cfg.WarmerNewArrivalsN)
	if err != nil {
		return 0, err
	}
	key := cache.Key{Namespace: string(NamespaceProducts), ID: "new"}
	if err := s.productsNew.Put(ctx, key, newest, s.cfg.L2TTLProducts); err != nil {
		return 0, err
	}
	return len(newest), nil
}

// ClearAll invalidates every namespace in both tiers. Grounded on the
// original source's clearAllCaches administrative operation.
func (s *ProductService) ClearAll(ctx context.Context) error {
	s.invalidateNamespace(ctx, s.byID, string(NamespaceProductByID))
	s.invalidateProducts(ctx)
	s.invalidateNamespace(ctx, s.categories, string(NamespaceCategories))
	s.invalidateNamespace(ctx, s.search, string(NamespaceSearchResults))
	s.invalidateNamespace(ctx, s.priceRange, string(NamespacePriceRange))
	return nil
}
