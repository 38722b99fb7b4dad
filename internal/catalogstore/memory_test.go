package catalogstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/l0p7/catalogcache/internal/catalog"
)

func seedMemory(t *testing.T, m *Memory) {
	t.Helper()
	now := time.Now().UTC()
	m.Seed(
		catalog.Product{ID: 1, Name: "Trail Running Shoe", Description: "grippy trail shoe", Category: "footwear", Price: decimal.NewFromFloat(89.99), Active: true, CreatedAt: now.Add(-time.Hour)},
		catalog.Product{ID: 2, Name: "Carbon Road Bike Frame", Description: "lightweight frame", Category: "cycling", Price: decimal.NewFromFloat(1899.00), Active: true, CreatedAt: now},
		catalog.Product{ID: 3, Name: "Insulated Water Bottle", Description: "keeps drinks cold", Category: "accessories", Price: decimal.NewFromFloat(24.50), Active: false, CreatedAt: now.Add(-2 * time.Hour)},
	)
}

func TestMemoryFindByID(t *testing.T) {
	m := NewMemory()
	seedMemory(t, m)

	product, err := m.FindByID(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, "Carbon Road Bike Frame", product.Name)
}

func TestMemoryFindByIDNotFound(t *testing.T) {
	m := NewMemory()
	seedMemory(t, m)

	_, err := m.FindByID(context.Background(), 999)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestMemoryFindActiveExcludesInactive(t *testing.T) {
	m := NewMemory()
	seedMemory(t, m)

	products, err := m.FindActive(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.Equal(t, int64(1), products[0].ID, "expected ascending id order")
	require.Equal(t, int64(2), products[1].ID)
}

func TestMemoryFindByCategory(t *testing.T) {
	m := NewMemory()
	seedMemory(t, m)

	products, err := m.FindByCategory(context.Background(), "cycling")
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, "Carbon Road Bike Frame", products[0].Name)
}

func TestMemoryFindByPriceRangeIsInclusive(t *testing.T) {
	m := NewMemory()
	seedMemory(t, m)

	products, err := m.FindByPriceRange(context.Background(), catalog.PriceRange{
		Min: decimal.NewFromFloat(24.50),
		Max: decimal.NewFromFloat(89.99),
	})
	require.NoError(t, err)
	require.Len(t, products, 2)
}

func TestMemorySearchProductsIsCaseInsensitiveAcrossNameAndDescription(t *testing.T) {
	m := NewMemory()
	seedMemory(t, m)

	byName, err := m.SearchProducts(context.Background(), "TRAIL")
	require.NoError(t, err)
	require.Len(t, byName, 1)

	byDescription, err := m.SearchProducts(context.Background(), "COLD")
	require.NoError(t, err)
	require.Len(t, byDescription, 1)
	require.Equal(t, "Insulated Water Bottle", byDescription[0].Name)
}

func TestMemoryFindDistinctCategoriesIsSortedAndDeduplicated(t *testing.T) {
	m := NewMemory()
	seedMemory(t, m)
	m.Seed(catalog.Product{ID: 4, Name: "Gravel Tire", Category: "cycling", Active: true})

	categories, err := m.FindDistinctCategories(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"accessories", "cycling", "footwear"}, categories)
}

func TestMemoryFindTopNByRecency(t *testing.T) {
	m := NewMemory()
	seedMemory(t, m)

	top, err := m.FindTopNByRecency(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, int64(2), top[0].ID, "most recently created first")
	require.Equal(t, int64(1), top[1].ID)
}

func TestMemorySaveAssignsIDOnCreate(t *testing.T) {
	m := NewMemory()
	seedMemory(t, m)

	saved, err := m.Save(context.Background(), catalog.Product{Name: "New Helmet", Category: "cycling"})
	require.NoError(t, err)
	require.Equal(t, int64(4), saved.ID)
	require.False(t, saved.CreatedAt.IsZero())
	require.Equal(t, saved.CreatedAt, saved.UpdatedAt)
}

func TestMemorySaveUpdatesExistingRowAndPreservesCreatedAt(t *testing.T) {
	m := NewMemory()
	seedMemory(t, m)

	original, err := m.FindByID(context.Background(), 1)
	require.NoError(t, err)

	updated, err := m.Save(context.Background(), catalog.Product{ID: 1, Name: "Trail Running Shoe v2"})
	require.NoError(t, err)
	require.Equal(t, "Trail Running Shoe v2", updated.Name)
	require.Equal(t, original.CreatedAt, updated.CreatedAt)
	require.True(t, updated.UpdatedAt.After(original.UpdatedAt) || updated.UpdatedAt.Equal(original.UpdatedAt))
}

func TestMemorySaveUpdateOfMissingRowIsNotFound(t *testing.T) {
	m := NewMemory()
	seedMemory(t, m)

	_, err := m.Save(context.Background(), catalog.Product{ID: 999, Name: "Ghost"})
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestMemoryDeleteByID(t *testing.T) {
	m := NewMemory()
	seedMemory(t, m)

	require.NoError(t, m.DeleteByID(context.Background(), 1))
	_, err := m.FindByID(context.Background(), 1)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestMemoryDeleteByIDNotFound(t *testing.T) {
	m := NewMemory()
	seedMemory(t, m)

	err := m.DeleteByID(context.Background(), 999)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}
