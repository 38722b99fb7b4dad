// Package catalogstore provides a reference implementation of
// catalog.Store. The SQL schema and its migrations are out of scope for
// this repository; this in-memory store exists so the caching core has a
// concrete, runnable collaborator to load from, warm from, and be tested
// against.
package catalogstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/l0p7/catalogcache/internal/catalog"
)

// Memory is a mutex-guarded, in-process catalog.Store. It is not durable and
// is intended for local development, tests, and as a seed-data fixture.
type Memory struct {
	mu       sync.RWMutex
	products map[int64]catalog.Product
	nextID   int64
}

// NewMemory constructs an empty store.
func NewMemory() *Memory {
	return &Memory{products: make(map[int64]catalog.Product)}
}

// Seed inserts products directly, bypassing Save's id-assignment and
// timestamp-stamping behavior. Intended for test fixtures and local
// bootstrap data.
func (m *Memory) Seed(products ...catalog.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range products {
		m.products[p.ID] = p
		if p.ID > m.nextID {
			m.nextID = p.ID
		}
	}
}

// FindByID implements catalog.Store.
func (m *Memory) FindByID(_ context.Context, id int64) (catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

// FindActive implements catalog.Store, returning active products ordered by
// id ascending for warmer determinism.
func (m *Memory) FindActive(_ context.Context) ([]catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]catalog.Product, 0, len(m.products))
	for _, p := range m.products {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindByCategory implements catalog.Store.
func (m *Memory) FindByCategory(_ context.Context, category string) ([]catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []catalog.Product
	for _, p := range m.products {
		if p.Category == category {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindByPriceRange implements catalog.Store. Both bounds are inclusive.
func (m *Memory) FindByPriceRange(_ context.Context, r catalog.PriceRange) ([]catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []catalog.Product
	for _, p := range m.products {
		if p.Price.GreaterThanOrEqual(r.Min) && p.Price.LessThanOrEqual(r.Max) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SearchProducts implements catalog.Store with a case-insensitive substring
// match against name and description, matching the design's acceptance that
// full-text ranking is out of scope.
func (m *Memory) SearchProducts(_ context.Context, keyword string) ([]catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(keyword)
	var out []catalog.Product
	for _, p := range m.products {
		if strings.Contains(strings.ToLower(p.Name), needle) || strings.Contains(strings.ToLower(p.Description), needle) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FindDistinctCategories implements catalog.Store.
func (m *Memory) FindDistinctCategories(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, p := range m.products {
		if p.Category != "" {
			seen[p.Category] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// FindTopNByRecency implements catalog.Store, returning the n most recently
// created products.
func (m *Memory) FindTopNByRecency(_ context.Context, n int) ([]catalog.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]catalog.Product, 0, len(m.products))
	for _, p := range m.products {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if n < len(all) {
		all = all[:n]
	}
	return all, nil
}

// Save implements catalog.Store. A zero ID is treated as a create and is
// assigned the next sequential id; a non-zero ID is treated as an update of
// an existing row (it is an error to update a row that does not exist).
func (m *Memory) Save(_ context.Context, product catalog.Product) (catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if product.ID == 0 {
		m.nextID++
		product.ID = m.nextID
		product.CreatedAt = now
		product.UpdatedAt = now
		m.products[product.ID] = product
		return product, nil
	}

	existing, ok := m.products[product.ID]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = now
	m.products[product.ID] = product
	return product, nil
}

// DeleteByID implements catalog.Store.
func (m *Memory) DeleteByID(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(m.products, id)
	return nil
}
