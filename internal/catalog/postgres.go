package catalog

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-importer/internal/db"
	"github.com/sells-group/catalog-importer/internal/mapper"
	"github.com/sells-group/catalog-importer/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Postgres implements Service on a pgx pool.
type Postgres struct {
	pool db.Pool
}

// NewPostgres wraps an open pool.
func NewPostgres(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate applies the catalog schema.
func (s *Postgres) Migrate(ctx context.Context) error {
	return db.Migrate(ctx, s.pool, migrationFS, "migrations")
}

// SourceKey normalizes an untranslated category name into its dedup key.
func SourceKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func wrapWrite(err error, msg string) error {
	if db.IsUniqueViolation(err) {
		return eris.Wrap(ErrDuplicate, msg)
	}
	return eris.Wrap(err, msg)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const productColumns = `p.id, p.handle, p.title, p.metadata,
	COALESCE((SELECT array_agg(category_id ORDER BY category_id) FROM product_categories WHERE product_id = p.id), '{}'),
	COALESCE((SELECT array_agg(id ORDER BY created_at, id) FROM product_variants WHERE product_id = p.id), '{}')`

func scanProduct(row pgx.Row) (*model.CatalogProduct, error) {
	var p model.CatalogProduct
	var metaJSON []byte
	if err := row.Scan(&p.ID, &p.Handle, &p.Title, &metaJSON, &p.CategoryIDs, &p.VariantIDs); err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &p.Metadata); err != nil {
			return nil, eris.Wrap(err, "catalog: unmarshal product metadata")
		}
	}
	return &p, nil
}

func (s *Postgres) FindByHandle(ctx context.Context, handle string) (*model.CatalogProduct, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx,
		`SELECT `+productColumns+` FROM products p WHERE p.handle = $1`, handle))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "catalog: find product by handle %s", handle)
	}
	return p, nil
}

func (s *Postgres) FindProductsByExternalID(ctx context.Context, externalID string) ([]model.CatalogProduct, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products p WHERE p.metadata->>'external_id' = $1 ORDER BY p.created_at`, externalID)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: find products by external id")
	}
	defer rows.Close()

	var out []model.CatalogProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: scan product")
		}
		out = append(out, *p)
	}
	return out, eris.Wrap(rows.Err(), "catalog: find products iterate")
}

type productRow struct {
	images, options, metadata []byte
}

func encodeProduct(p *model.MappedProduct) (productRow, error) {
	var r productRow
	var err error
	images := p.Images
	if images == nil {
		images = []string{}
	}
	if r.images, err = json.Marshal(images); err != nil {
		return r, eris.Wrap(err, "catalog: marshal images")
	}
	options := p.Options
	if options == nil {
		options = []model.ProductOption{}
	}
	if r.options, err = json.Marshal(options); err != nil {
		return r, eris.Wrap(err, "catalog: marshal options")
	}
	meta := p.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	if r.metadata, err = json.Marshal(meta); err != nil {
		return r, eris.Wrap(err, "catalog: marshal metadata")
	}
	return r, nil
}

// CreateProduct inserts the product with its variants in one transaction.
// A handle conflict is reported as ErrDuplicate.
func (s *Postgres) CreateProduct(ctx context.Context, p *model.MappedProduct) (*model.CatalogProduct, error) {
	enc, err := encodeProduct(p)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: begin create product")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err = tx.Exec(ctx,
		`INSERT INTO products (id, handle, title, description, status, thumbnail, images, weight, length, width, height, hs_code, mid_code, material, options, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)`,
		id, p.Handle, p.Title, p.Description, string(p.Status), p.Thumbnail, enc.images,
		p.Weight, p.Length, p.Width, p.Height, p.HSCode, p.MIDCode, p.Material, enc.options, enc.metadata, now,
	)
	if err != nil {
		return nil, wrapWrite(err, "catalog: insert product "+p.Handle)
	}

	variantIDs, err := upsertVariants(ctx, tx, id, p.Variants, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "catalog: commit create product")
	}
	return &model.CatalogProduct{ID: id, Handle: p.Handle, Title: p.Title, VariantIDs: variantIDs, Metadata: p.Metadata}, nil
}

// UpdateProduct overwrites product fields and upserts variants by title.
// Existing metadata keys absent from p are kept.
func (s *Postgres) UpdateProduct(ctx context.Context, id string, p *model.MappedProduct) (*model.CatalogProduct, error) {
	enc, err := encodeProduct(p)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: begin update product")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE products SET title = $2, description = $3, status = $4, thumbnail = $5, images = $6,
		   weight = $7, length = $8, width = $9, height = $10, hs_code = $11, mid_code = $12, material = $13,
		   options = $14, metadata = metadata || $15, updated_at = $16
		 WHERE id = $1`,
		id, p.Title, p.Description, string(p.Status), p.Thumbnail, enc.images,
		p.Weight, p.Length, p.Width, p.Height, p.HSCode, p.MIDCode, p.Material, enc.options, enc.metadata, now,
	)
	if err != nil {
		return nil, wrapWrite(err, "catalog: update product "+id)
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Errorf("catalog: product not found: %s", id)
	}

	variantIDs, err := upsertVariants(ctx, tx, id, p.Variants, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "catalog: commit update product")
	}
	return &model.CatalogProduct{ID: id, Handle: p.Handle, Title: p.Title, VariantIDs: variantIDs, Metadata: p.Metadata}, nil
}

func upsertVariants(ctx context.Context, tx pgx.Tx, productID string, variants []model.ProductVariant, now time.Time) ([]string, error) {
	ids := make([]string, 0, len(variants))
	for _, v := range variants {
		opts, err := json.Marshal(v.Options)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: marshal variant options")
		}
		prices := v.Prices
		if prices == nil {
			prices = []model.Price{}
		}
		pricesJSON, err := json.Marshal(prices)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: marshal variant prices")
		}
		meta := v.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: marshal variant metadata")
		}

		var id string
		err = tx.QueryRow(ctx,
			`INSERT INTO product_variants (id, product_id, title, sku, barcode, weight, manage_inventory, inventory_quantity, options, prices, metadata, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
			 ON CONFLICT (product_id, title) DO UPDATE SET
			   sku = EXCLUDED.sku, barcode = EXCLUDED.barcode, weight = EXCLUDED.weight,
			   manage_inventory = EXCLUDED.manage_inventory, inventory_quantity = EXCLUDED.inventory_quantity,
			   options = EXCLUDED.options, prices = EXCLUDED.prices,
			   metadata = product_variants.metadata || EXCLUDED.metadata, updated_at = EXCLUDED.updated_at
			 RETURNING id`,
			uuid.New().String(), productID, v.Title, v.SKU, v.Barcode, v.Weight, v.ManageInventory, v.InventoryQuantity,
			opts, pricesJSON, metaJSON, now,
		).Scan(&id)
		if err != nil {
			return nil, wrapWrite(err, "catalog: upsert variant "+v.Title)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// AssignCategories links categories to a product without removing existing links.
func (s *Postgres) AssignCategories(ctx context.Context, productID string, categoryIDs []string) error {
	if len(categoryIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO product_categories (product_id, category_id)
		 SELECT $1, unnest($2::text[])
		 ON CONFLICT DO NOTHING`,
		productID, categoryIDs,
	)
	return eris.Wrapf(err, "catalog: assign categories to %s", productID)
}

// UpdateVariantPrices sets the price (and stock, if known) of every variant
// of the product and merges metadata into each variant's metadata.
func (s *Postgres) UpdateVariantPrices(ctx context.Context, productID string, price model.Price, stock *int, metadata map[string]any) (int, error) {
	pricesJSON, err := json.Marshal([]model.Price{price})
	if err != nil {
		return 0, eris.Wrap(err, "catalog: marshal prices")
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, eris.Wrap(err, "catalog: marshal variant metadata")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE product_variants SET prices = $2, metadata = metadata || $3, updated_at = $4,
		   inventory_quantity = COALESCE($5, inventory_quantity)
		 WHERE product_id = $1`,
		productID, pricesJSON, metaJSON, time.Now().UTC(), stock,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "catalog: update variant prices for %s", productID)
	}
	return int(tag.RowsAffected()), nil
}

// ListCategories returns categories named name (case-insensitive) under parentID.
func (s *Postgres) ListCategories(ctx context.Context, name, parentID string) ([]model.Category, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, handle, COALESCE(parent_id, '') FROM categories
		 WHERE lower(name) = lower($1) AND COALESCE(parent_id, '') = $2
		 ORDER BY created_at, id`,
		name, parentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: list categories")
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Handle, &c.ParentID); err != nil {
			return nil, eris.Wrap(err, "catalog: scan category")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "catalog: list categories iterate")
}

// CreateCategory inserts a category. A sibling with the same name is ErrDuplicate.
func (s *Postgres) CreateCategory(ctx context.Context, name, parentID string) (*model.Category, error) {
	c := &model.Category{ID: uuid.New().String(), Name: name, Handle: mapper.Slug(name), ParentID: parentID}
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO categories (id, name, handle, parent_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`,
		c.ID, c.Name, c.Handle, nullable(parentID), now,
	)
	if err != nil {
		return nil, wrapWrite(err, "catalog: create category "+name)
	}
	return c, nil
}

const matchColumns = `c.id, c.name, c.handle, COALESCE(c.parent_id, ''),
	e.id, e.category_id, e.parent_id, e.source_name, e.source_key, e.external_id, e.seo_description`

func scanMatch(row pgx.Row) (*CategoryMatch, error) {
	var m CategoryMatch
	err := row.Scan(&m.Category.ID, &m.Category.Name, &m.Category.Handle, &m.Category.ParentID,
		&m.Extension.ID, &m.Extension.CategoryID, &m.Extension.ParentID, &m.Extension.SourceName,
		&m.Extension.SourceKey, &m.Extension.ExternalID, &m.Extension.SEODescription)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindCategoriesByExternalID returns every category whose extension carries
// the external id, wherever it sits in the tree.
func (s *Postgres) FindCategoriesByExternalID(ctx context.Context, externalID string) ([]CategoryMatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+matchColumns+` FROM category_extensions e JOIN categories c ON c.id = e.category_id
		 WHERE e.external_id = $1 ORDER BY c.created_at, c.id`,
		externalID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: find categories by external id")
	}
	defer rows.Close()

	var out []CategoryMatch
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: scan category match")
		}
		out = append(out, *m)
	}
	return out, eris.Wrap(rows.Err(), "catalog: find categories iterate")
}

func (s *Postgres) FindCategoryBySourceKey(ctx context.Context, sourceKey, parentID string) (*CategoryMatch, error) {
	m, err := scanMatch(s.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM category_extensions e JOIN categories c ON c.id = e.category_id
		 WHERE e.source_key = $1 AND COALESCE(c.parent_id, '') = $2
		 ORDER BY c.created_at, c.id LIMIT 1`,
		sourceKey, parentID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "catalog: find category by source key")
	}
	return m, nil
}

func (s *Postgres) CreateExtension(ctx context.Context, ext *model.CategoryExtension) error {
	if ext.ID == "" {
		ext.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO category_extensions (id, category_id, parent_id, source_name, source_key, external_id, seo_description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		ext.ID, ext.CategoryID, ext.ParentID, ext.SourceName, ext.SourceKey, ext.ExternalID, ext.SEODescription, now,
	)
	return wrapWrite(err, "catalog: create category extension")
}

func (s *Postgres) UpdateExtension(ctx context.Context, ext *model.CategoryExtension) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE category_extensions SET source_name = $2, external_id = $3, seo_description = $4, updated_at = $5 WHERE id = $1`,
		ext.ID, ext.SourceName, ext.ExternalID, ext.SEODescription, time.Now().UTC(),
	)
	if err != nil {
		return wrapWrite(err, "catalog: update category extension")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("catalog: category extension not found: %s", ext.ID)
	}
	return nil
}
