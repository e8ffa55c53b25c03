package catalog

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-importer/internal/mapper"
	"github.com/sells-group/catalog-importer/internal/model"
)

// Memory is an in-process Service used for dry runs. It enforces the same
// uniqueness rules as the Postgres schema.
type Memory struct {
	mu         sync.Mutex
	products   map[string]*memProduct // by id
	categories map[string]model.Category
	extensions map[string]model.CategoryExtension // by id
}

type memProduct struct {
	product    model.MappedProduct
	id         string
	variantIDs []string
	categories []string
}

// NewMemory returns an empty catalog.
func NewMemory() *Memory {
	return &Memory{
		products:   make(map[string]*memProduct),
		categories: make(map[string]model.Category),
		extensions: make(map[string]model.CategoryExtension),
	}
}

func (m *Memory) view(p *memProduct) *model.CatalogProduct {
	return &model.CatalogProduct{
		ID:          p.id,
		Handle:      p.product.Handle,
		Title:       p.product.Title,
		CategoryIDs: slices.Clone(p.categories),
		VariantIDs:  slices.Clone(p.variantIDs),
		Metadata:    p.product.Clone().Metadata,
	}
}

func (m *Memory) FindByHandle(_ context.Context, handle string) (*model.CatalogProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.product.Handle == handle {
			return m.view(p), nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateProduct(_ context.Context, p *model.MappedProduct) (*model.CatalogProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.products {
		if existing.product.Handle == p.Handle {
			return nil, eris.Wrap(ErrDuplicate, "catalog: insert product "+p.Handle)
		}
	}
	mp := &memProduct{product: *p.Clone(), id: uuid.New().String()}
	for range p.Variants {
		mp.variantIDs = append(mp.variantIDs, uuid.New().String())
	}
	m.products[mp.id] = mp
	return m.view(mp), nil
}

func (m *Memory) UpdateProduct(_ context.Context, id string, p *model.MappedProduct) (*model.CatalogProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.products[id]
	if !ok {
		return nil, eris.Errorf("catalog: product not found: %s", id)
	}
	merged := p.Clone()
	for k, v := range mp.product.Metadata {
		if _, set := merged.Metadata[k]; !set {
			merged.SetMeta(k, v)
		}
	}
	mp.product = *merged
	for len(mp.variantIDs) < len(p.Variants) {
		mp.variantIDs = append(mp.variantIDs, uuid.New().String())
	}
	return m.view(mp), nil
}

func (m *Memory) AssignCategories(_ context.Context, productID string, categoryIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.products[productID]
	if !ok {
		return eris.Errorf("catalog: product not found: %s", productID)
	}
	for _, id := range categoryIDs {
		if !slices.Contains(mp.categories, id) {
			mp.categories = append(mp.categories, id)
		}
	}
	slices.Sort(mp.categories)
	return nil
}

func (m *Memory) FindProductsByExternalID(_ context.Context, externalID string) ([]model.CatalogProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.CatalogProduct
	for _, p := range m.products {
		if p.product.MetaString(model.MetaExternalID) == externalID {
			out = append(out, *m.view(p))
		}
	}
	return out, nil
}

func (m *Memory) UpdateVariantPrices(_ context.Context, productID string, price model.Price, stock *int, metadata map[string]any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.products[productID]
	if !ok {
		return 0, nil
	}
	for i := range mp.product.Variants {
		v := &mp.product.Variants[i]
		v.Prices = []model.Price{price}
		if stock != nil {
			v.InventoryQuantity = *stock
		}
		merged := make(map[string]any, len(v.Metadata)+len(metadata))
		maps.Copy(merged, v.Metadata)
		maps.Copy(merged, metadata)
		v.Metadata = merged
	}
	return len(mp.product.Variants), nil
}

// Product returns the stored product by id, for inspection.
func (m *Memory) Product(id string) (*model.MappedProduct, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mp, ok := m.products[id]
	if !ok {
		return nil, false
	}
	return mp.product.Clone(), true
}

// Categories returns every stored category.
func (m *Memory) Categories() []model.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.Category) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (m *Memory) ListCategories(_ context.Context, name, parentID string) ([]model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Category
	for _, c := range m.categories {
		if c.ParentID == parentID && strings.EqualFold(c.Name, name) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) CreateCategory(_ context.Context, name, parentID string) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.ParentID == parentID && strings.EqualFold(c.Name, name) {
			return nil, eris.Wrap(ErrDuplicate, "catalog: create category "+name)
		}
	}
	c := model.Category{ID: uuid.New().String(), Name: name, Handle: mapper.Slug(name), ParentID: parentID}
	m.categories[c.ID] = c
	return &c, nil
}

func (m *Memory) match(ext model.CategoryExtension) CategoryMatch {
	return CategoryMatch{Category: m.categories[ext.CategoryID], Extension: ext}
}

func (m *Memory) FindCategoriesByExternalID(_ context.Context, externalID string) ([]CategoryMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CategoryMatch
	for _, e := range m.extensions {
		if e.ExternalID != "" && e.ExternalID == externalID {
			out = append(out, m.match(e))
		}
	}
	return out, nil
}

func (m *Memory) FindCategoryBySourceKey(_ context.Context, sourceKey, parentID string) (*CategoryMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.extensions {
		if e.SourceKey == sourceKey && m.categories[e.CategoryID].ParentID == parentID {
			match := m.match(e)
			return &match, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateExtension(_ context.Context, ext *model.CategoryExtension) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.extensions {
		if e.CategoryID == ext.CategoryID || (e.ParentID == ext.ParentID && e.DedupKey() == ext.DedupKey()) {
			return eris.Wrap(ErrDuplicate, "catalog: create category extension")
		}
	}
	if ext.ID == "" {
		ext.ID = uuid.New().String()
	}
	m.extensions[ext.ID] = *ext
	return nil
}

func (m *Memory) UpdateExtension(_ context.Context, ext *model.CategoryExtension) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.extensions[ext.ID]
	if !ok {
		return eris.Errorf("catalog: category extension not found: %s", ext.ID)
	}
	cur.SourceName = ext.SourceName
	cur.ExternalID = ext.ExternalID
	cur.SEODescription = ext.SEODescription
	m.extensions[ext.ID] = cur
	return nil
}
