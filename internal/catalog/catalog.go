// Package catalog is the storefront catalog the importer writes to:
// products with their default variant, the category tree, and the category
// extension rows that remember each category's source identity.
package catalog

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-importer/internal/model"
)

// ErrDuplicate is returned when a create violates a uniqueness constraint
// (product handle, category name under a parent, extension dedup key).
var ErrDuplicate = eris.New("catalog: duplicate")

// CategoryMatch is a category together with its extension row.
type CategoryMatch struct {
	Category  model.Category
	Extension model.CategoryExtension
}

// ProductStore is the product surface used by the upsert engine.
type ProductStore interface {
	// FindByHandle returns nil, nil when no product has the handle.
	FindByHandle(ctx context.Context, handle string) (*model.CatalogProduct, error)
	CreateProduct(ctx context.Context, p *model.MappedProduct) (*model.CatalogProduct, error)
	UpdateProduct(ctx context.Context, id string, p *model.MappedProduct) (*model.CatalogProduct, error)
	// AssignCategories adds categories to a product, keeping existing ones.
	AssignCategories(ctx context.Context, productID string, categoryIDs []string) error
}

// CategoryStore is the category surface used by the hierarchy resolver.
type CategoryStore interface {
	ListCategories(ctx context.Context, name, parentID string) ([]model.Category, error)
	CreateCategory(ctx context.Context, name, parentID string) (*model.Category, error)
	FindCategoriesByExternalID(ctx context.Context, externalID string) ([]CategoryMatch, error)
	// FindCategoryBySourceKey returns nil, nil when no extension under
	// parentID carries the source key.
	FindCategoryBySourceKey(ctx context.Context, sourceKey, parentID string) (*CategoryMatch, error)
	CreateExtension(ctx context.Context, ext *model.CategoryExtension) error
	UpdateExtension(ctx context.Context, ext *model.CategoryExtension) error
}

// PriceStore is the surface used by price sync.
type PriceStore interface {
	FindProductsByExternalID(ctx context.Context, externalID string) ([]model.CatalogProduct, error)
	// UpdateVariantPrices writes price, stock (when non-nil) and merges
	// metadata into every variant of the product, returning the number of
	// variants touched.
	UpdateVariantPrices(ctx context.Context, productID string, price model.Price, stock *int, metadata map[string]any) (int, error)
}

// Service is the full catalog collaborator.
type Service interface {
	ProductStore
	CategoryStore
	PriceStore
}
