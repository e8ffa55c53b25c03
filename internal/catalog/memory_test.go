package catalog

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-importer/internal/model"
)

func TestMemory_ProductLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.CreateProduct(ctx, testMapped())
	require.NoError(t, err)
	require.Len(t, created.VariantIDs, 1)

	_, err = m.CreateProduct(ctx, testMapped())
	assert.True(t, eris.Is(err, ErrDuplicate))

	found, err := m.FindByHandle(ctx, "drill-77")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	upd := testMapped()
	upd.Title = "Wiertarka"
	upd.Metadata = map[string]any{model.MetaSEOTitle: "SEO"}
	_, err = m.UpdateProduct(ctx, created.ID, upd)
	require.NoError(t, err)
	stored, ok := m.Product(created.ID)
	require.True(t, ok)
	assert.Equal(t, "Wiertarka", stored.Title)
	assert.Equal(t, "77", stored.MetaString(model.MetaExternalID))
	assert.Equal(t, "SEO", stored.MetaString(model.MetaSEOTitle))

	require.NoError(t, m.AssignCategories(ctx, created.ID, []string{"b"}))
	require.NoError(t, m.AssignCategories(ctx, created.ID, []string{"a", "b"}))
	found, _ = m.FindByHandle(ctx, "drill-77")
	assert.Equal(t, []string{"a", "b"}, found.CategoryIDs)

	stock := 4
	n, err := m.UpdateVariantPrices(ctx, created.ID, model.Price{Amount: 9.5, CurrencyCode: "pln"}, &stock, map[string]any{"k": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	stored, _ = m.Product(created.ID)
	assert.Equal(t, 9.5, stored.Variants[0].Prices[0].Amount)
	assert.Equal(t, 4, stored.Variants[0].InventoryQuantity)

	byExt, err := m.FindProductsByExternalID(ctx, "77")
	require.NoError(t, err)
	assert.Len(t, byExt, 1)
}

func TestMemory_CategoryUniqueness(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	root, err := m.CreateCategory(ctx, "Narzędzia", "")
	require.NoError(t, err)
	_, err = m.CreateCategory(ctx, "narzędzia", "")
	assert.True(t, eris.Is(err, ErrDuplicate))

	child, err := m.CreateCategory(ctx, "Wiertarki", root.ID)
	require.NoError(t, err)

	ext := &model.CategoryExtension{CategoryID: child.ID, ParentID: root.ID, SourceName: "Drills", SourceKey: "drills", ExternalID: "10"}
	require.NoError(t, m.CreateExtension(ctx, ext))

	other, err := m.CreateCategory(ctx, "Wiertła", root.ID)
	require.NoError(t, err)
	dup := &model.CategoryExtension{CategoryID: other.ID, ParentID: root.ID, SourceName: "Bits", SourceKey: "bits", ExternalID: "10"}
	assert.True(t, eris.Is(m.CreateExtension(ctx, dup), ErrDuplicate))

	match, err := m.FindCategoryBySourceKey(ctx, "drills", root.ID)
	require.NoError(t, err)
	require.NotNil(t, match)
	assert.Equal(t, child.ID, match.Category.ID)

	byID, err := m.FindCategoriesByExternalID(ctx, "10")
	require.NoError(t, err)
	assert.Len(t, byID, 1)
}
