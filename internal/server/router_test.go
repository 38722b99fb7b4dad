package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	valkey "github.com/valkey-io/valkey-go"

	"github.com/l0p7/catalogcache/internal/catalog"
	"github.com/l0p7/catalogcache/internal/catalog/cache"
	"github.com/l0p7/catalogcache/internal/catalogstore"
)

func newTestCatalogHandler(t *testing.T) (http.Handler, *Readiness) {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{server.Addr()},
		AlwaysRESP2:       true,
		ForceSingleClient: true,
		DisableCache:      true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	l2 := cache.NewSharedFromClient(client, time.Second)
	store := catalogstore.NewMemory()
	store.Seed(catalog.Product{
		ID: 1, Name: "Trail Running Shoe", Category: "footwear",
		Price: decimal.NewFromFloat(89.99), Active: true, CreatedAt: time.Now().UTC(),
	})

	svc := catalog.NewProductService(store, l2, nil, nil, nil, catalog.ServiceConfig{
		L1MaxSize: 100, L1TTLWrite: time.Minute,
		L2TTLProductByID: time.Minute, L2TTLProducts: time.Minute,
		L2TTLCategories: time.Minute, L2TTLSearchResults: time.Minute, L2TTLPriceRange: time.Minute,
		LockWaitTimeout: time.Second, LockLeaseTimeout: time.Second,
	})

	readiness := &Readiness{}
	return NewCatalogHandler(svc, readiness, nil, nil), readiness
}

func doRequest(t *testing.T, handler http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil).WithContext(context.Background())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthzReportsWarmingUntilReady(t *testing.T) {
	handler, readiness := newTestCatalogHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	readiness.MarkReady()
	rec = doRequest(t, handler, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetProductByID(t *testing.T) {
	handler, _ := newTestCatalogHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/products/1")
	require.Equal(t, http.StatusOK, rec.Code)

	var product catalog.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &product))
	require.Equal(t, "Trail Running Shoe", product.Name)
}

func TestGetProductByIDNotFoundReturns404(t *testing.T) {
	handler, _ := newTestCatalogHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/products/999")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetProductByIDNonNumericReturns400(t *testing.T) {
	handler, _ := newTestCatalogHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/products/not-a-number")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetAllProducts(t *testing.T) {
	handler, _ := newTestCatalogHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/products")
	require.Equal(t, http.StatusOK, rec.Code)

	var products []catalog.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 1)
}

func TestGetProductsByCategory(t *testing.T) {
	handler, _ := newTestCatalogHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/products?category=footwear")
	require.Equal(t, http.StatusOK, rec.Code)

	var products []catalog.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 1)

	rec = doRequest(t, handler, http.MethodGet, "/products?category=nonexistent")
	require.Equal(t, http.StatusOK, rec.Code)
	products = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Empty(t, products)
}

func TestSearchRequiresQueryParam(t *testing.T) {
	handler, _ := newTestCatalogHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/products/search")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/products/search?q=trail")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPriceRangeRejectsMalformedBounds(t *testing.T) {
	handler, _ := newTestCatalogHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/products/price-range?min=abc&max=100")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, handler, http.MethodGet, "/products/price-range?min=0&max=100")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetCategories(t *testing.T) {
	handler, _ := newTestCatalogHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/categories")
	require.Equal(t, http.StatusOK, rec.Code)

	var categories []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &categories))
	require.Equal(t, []string{"footwear"}, categories)
}

func TestAdminWarmAndClear(t *testing.T) {
	handler, _ := newTestCatalogHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/admin/warm")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, handler, http.MethodPost, "/admin/clear")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "cleared", body["status"])
}
