package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/l0p7/catalogcache/internal/catalog"
)

// httpMetrics is the observability collaborator the router reports request
// outcomes through. A nil httpMetrics is always safe to call into.
type httpMetrics interface {
	ObserveHTTPRequest(route string, status int, duration time.Duration)
}

// Readiness reports whether the catalog service has finished its startup
// warm-up. /healthz serves 503 until it flips true.
type Readiness struct {
	ready atomic.Bool
}

// MarkReady flips readiness on. Called once the warmer completes.
func (r *Readiness) MarkReady() { r.ready.Store(true) }

// Ready reports the current readiness state.
func (r *Readiness) Ready() bool { return r.ready.Load() }

// NewCatalogHandler builds the HTTP surface in front of svc: product reads,
// category/search/price-range lookups, and the administrative warm/clear
// operations. It is a thin adapter; every cache decision lives in svc.
func NewCatalogHandler(svc *catalog.ProductService, readiness *Readiness, rec httpMetrics, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &catalogHandler{svc: svc, readiness: readiness, metrics: rec, logger: logger.With(slog.String("component", "http"))}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.withMetrics("/healthz", h.healthz))
	mux.HandleFunc("GET /products/{id}", h.withMetrics("/products/{id}", h.getByID))
	mux.HandleFunc("GET /products", h.withMetrics("/products", h.getAllOrByCategory))
	mux.HandleFunc("GET /products/search", h.withMetrics("/products/search", h.search))
	mux.HandleFunc("GET /products/price-range", h.withMetrics("/products/price-range", h.priceRange))
	mux.HandleFunc("GET /categories", h.withMetrics("/categories", h.categories))
	mux.HandleFunc("POST /admin/warm", h.withMetrics("/admin/warm", h.warm))
	mux.HandleFunc("POST /admin/clear", h.withMetrics("/admin/clear", h.clear))
	return mux
}

type catalogHandler struct {
	svc       *catalog.ProductService
	readiness *Readiness
	metrics   httpMetrics
	logger    *slog.Logger
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (h *catalogHandler) withMetrics(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		if h.metrics != nil {
			h.metrics.ObserveHTTPRequest(route, rec.status, time.Since(start))
		}
	}
}

func (h *catalogHandler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.readiness == nil || h.readiness.Ready() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "warming"})
}

func (h *catalogHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, catalog.ErrInvalidInput)
		return
	}
	singleflight := r.URL.Query().Get("singleflight") == "true"
	product, _, err := h.svc.GetByID(r.Context(), id, singleflight)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *catalogHandler) getAllOrByCategory(w http.ResponseWriter, r *http.Request) {
	if category := r.URL.Query().Get("category"); category != "" {
		products, _, err := h.svc.GetByCategory(r.Context(), category)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, products)
		return
	}
	products, _, err := h.svc.GetAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *catalogHandler) search(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("q")
	if keyword == "" {
		writeError(w, catalog.ErrInvalidInput)
		return
	}
	products, _, err := h.svc.Search(r.Context(), keyword)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *catalogHandler) priceRange(w http.ResponseWriter, r *http.Request) {
	min, err := decimal.NewFromString(r.URL.Query().Get("min"))
	if err != nil {
		writeError(w, catalog.ErrInvalidInput)
		return
	}
	max, err := decimal.NewFromString(r.URL.Query().Get("max"))
	if err != nil {
		writeError(w, catalog.ErrInvalidInput)
		return
	}
	products, _, err := h.svc.GetByPriceRange(r.Context(), catalog.PriceRange{Min: min, Max: max})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *catalogHandler) categories(w http.ResponseWriter, r *http.Request) {
	cats, _, err := h.svc.GetCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (h *catalogHandler) warm(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("admin warm requested", slog.String("remote_addr", r.RemoteAddr))
	report, err := h.svc.WarmAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *catalogHandler) clear(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("admin clear requested", slog.String("remote_addr", r.RemoteAddr))
	if err := h.svc.ClearAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the catalog error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, catalog.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
