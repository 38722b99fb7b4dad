package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/l0p7/catalogcache/internal/catalog"
	"github.com/l0p7/catalogcache/internal/catalog/cache"
	"github.com/l0p7/catalogcache/internal/catalogstore"
	"github.com/l0p7/catalogcache/internal/config"
	"github.com/l0p7/catalogcache/internal/logging"
	"github.com/l0p7/catalogcache/internal/metrics"
	"github.com/l0p7/catalogcache/internal/server"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "CATALOG", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	metricsRecorder := metrics.NewRecorder(nil)

	sharedCache, err := cache.NewShared(cache.SharedConfig{
		Address:        cfg.L2.Address,
		Username:       cfg.L2.Username,
		Password:       cfg.L2.Password,
		DB:             cfg.L2.DB,
		TLS:            cache.SharedTLSConfig{Enabled: cfg.L2.TLS.Enabled, CAFile: cfg.L2.TLS.CAFile},
		ConnectTimeout: cfg.L2.ConnectTimeout,
		PoolMinIdle:    cfg.L2.Pool.MinIdle,
		PoolMaxSize:    cfg.L2.Pool.MaxSize,
	})
	if err != nil {
		logger.Error("shared cache unavailable, refusing to start", slog.Any("error", err))
		os.Exit(1)
	}
	defer sharedCache.Close()

	guard := cache.NewStampedeGuard(cache.StampedeOptions{
		Client:  sharedCache.Client(),
		Metrics: metricsRecorder,
	})

	store := catalogstore.NewMemory()
	seedStore(store)

	svc := catalog.NewProductService(store, sharedCache, guard, logger, metricsRecorder, catalog.ServiceConfig{
		L1MaxSize:          cfg.L1.MaxSize,
		L1TTLWrite:         cfg.L1.TTLWrite,
		L1TTLAccess:        cfg.L1.TTLAccess,
		L2TTLProductByID:   cfg.L2.TTLFor(config.NamespaceKeyProductByID),
		L2TTLProducts:      cfg.L2.TTLFor(config.NamespaceKeyProducts),
		L2TTLCategories:    cfg.L2.TTLFor(config.NamespaceKeyCategories),
		L2TTLSearchResults: cfg.L2.TTLFor(config.NamespaceKeySearchResults),
		L2TTLPriceRange:    cfg.L2.TTLFor(config.NamespaceKeyPriceRange),
		LockWaitTimeout:    cfg.Lock.WaitTimeout,
		LockLeaseTimeout:   cfg.Lock.LeaseTimeout,
		WarmerTopN:         cfg.Warmer.TopN,
		WarmerNewArrivalsN: cfg.Warmer.NewArrivalsN,
	})

	readiness := &server.Readiness{}
	go func() {
		report, err := svc.WarmAll(ctx)
		if err != nil {
			logger.Error("startup warm-up failed", slog.Any("error", err))
		} else {
			logger.Info("startup warm-up complete",
				slog.Int("products_by_id", report.ProductsByID),
				slog.Int("categories", report.Categories),
				slog.Duration("duration", report.Duration),
			)
		}
		readiness.MarkReady()
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsRecorder.Handler())
	mux.Handle("/", server.NewCatalogHandler(svc, readiness, metricsRecorder, logger))

	srv, err := server.New(cfg, logger, mux)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// seedStore populates a handful of demo products so the service is runnable
// without a separate data-loading step. The SQL schema itself is out of
// scope; this stands in for it.
func seedStore(store *catalogstore.Memory) {
	now := time.Now().UTC()
	store.Seed(
		catalog.Product{
			ID: 1, Name: "Trail Running Shoe", Description: "Lightweight trail shoe with rock plate",
			Price: decimal.NewFromFloat(129.99), StockQuantity: 42, Category: "footwear", Brand: "Ridgeline",
			Active: true, CreatedAt: now, UpdatedAt: now,
		},
		catalog.Product{
			ID: 2, Name: "Carbon Road Bike Frame", Description: "Disc-brake endurance frame",
			Price: decimal.NewFromFloat(1899.00), StockQuantity: 6, Category: "cycling", Brand: "Velocette",
			Active: true, CreatedAt: now.Add(-time.Hour), UpdatedAt: now,
		},
		catalog.Product{
			ID: 3, Name: "Insulated Water Bottle", Description: "24oz double-wall stainless bottle",
			Price: decimal.NewFromFloat(24.50), StockQuantity: 210, Category: "accessories", Brand: "Ridgeline",
			Active: true, CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now,
		},
	)
}
