package model

// ProductStatus is the catalog publication state.
type ProductStatus string

const (
	ProductDraft     ProductStatus = "draft"
	ProductPublished ProductStatus = "published"
)

// Metadata keys written by the mapper and the enrichment stages.
const (
	MetaExternalID          = "external_id"
	MetaSourceCategoryID    = "source_category_id"
	MetaSourceCategoryName  = "source_category_name"
	MetaProducerID          = "producer_id"
	MetaProducerName        = "producer_name"
	MetaParameters          = "parameters"
	MetaSizes               = "sizes"
	MetaOriginalTitle       = "original_title"
	MetaWarranty            = "warranty"
	MetaSEOTitle            = "seo_title"
	MetaSEODescription      = "seo_description"
	MetaShortDescription    = "short_description"
	MetaIncludedItems       = "included_items"
	MetaTechnicalData       = "technical_data"
	MetaCostPriceNet        = "cost_price_net"
	MetaCostPriceGross      = "cost_price_gross"
	MetaRecommendedNet      = "recommended_price_net"
	MetaRecommendedGross    = "recommended_price_gross"
	MetaPriceSyncedAt       = "price_synced_at"
	DefaultOptionTitle      = "Default"
	DefaultOptionValue      = "Default"
	DefaultVariantTitle     = "Default"
	PlaceholderProductTitle = "Untitled product"
)

// MappedProduct is a feed record converted to the catalog's create/update shape.
type MappedProduct struct {
	ExternalID  string           `json:"external_id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Handle      string           `json:"handle"`
	Status      ProductStatus    `json:"status"`
	Thumbnail   string           `json:"thumbnail,omitempty"`
	Images      []string         `json:"images,omitempty"`
	Weight      *float64         `json:"weight,omitempty"`
	Length      *float64         `json:"length,omitempty"`
	Width       *float64         `json:"width,omitempty"`
	Height      *float64         `json:"height,omitempty"`
	HSCode      string           `json:"hs_code,omitempty"`
	MIDCode     string           `json:"mid_code,omitempty"`
	Material    string           `json:"material,omitempty"`
	Options     []ProductOption  `json:"options"`
	Variants    []ProductVariant `json:"variants"`
	Metadata    map[string]any   `json:"metadata,omitempty"`

	// Category resolution inputs and output. Not persisted as product columns.
	CategorySourcePath string   `json:"-"`
	CategoryExternalID string   `json:"-"`
	CategoryIDs        []string `json:"-"`
}

// ProductOption is a named option axis with its allowed values.
type ProductOption struct {
	Title  string   `json:"title"`
	Values []string `json:"values"`
}

// ProductVariant is one purchasable variant of a product.
type ProductVariant struct {
	Title             string            `json:"title"`
	SKU               string            `json:"sku,omitempty"`
	Barcode           string            `json:"barcode,omitempty"`
	Weight            *float64          `json:"weight,omitempty"`
	ManageInventory   bool              `json:"manage_inventory"`
	InventoryQuantity int               `json:"inventory_quantity"`
	Options           map[string]string `json:"options"`
	Prices            []Price           `json:"prices,omitempty"`
	Metadata          map[string]any    `json:"metadata,omitempty"`
}

// Price is an amount in a currency.
type Price struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currency_code"`
}

// MetaString returns a string metadata value, or "".
func (p *MappedProduct) MetaString(key string) string {
	if p.Metadata == nil {
		return ""
	}
	s, _ := p.Metadata[key].(string)
	return s
}

// SetMeta sets a metadata value, allocating the bag if needed.
func (p *MappedProduct) SetMeta(key string, v any) {
	if p.Metadata == nil {
		p.Metadata = make(map[string]any)
	}
	p.Metadata[key] = v
}

// Clone returns a copy whose slices and metadata can be mutated independently.
func (p *MappedProduct) Clone() *MappedProduct {
	c := *p
	c.Images = append([]string(nil), p.Images...)
	c.Options = append([]ProductOption(nil), p.Options...)
	c.Variants = append([]ProductVariant(nil), p.Variants...)
	c.CategoryIDs = append([]string(nil), p.CategoryIDs...)
	if p.Metadata != nil {
		c.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// CatalogProduct is a product as stored in the catalog.
type CatalogProduct struct {
	ID          string         `json:"id"`
	Handle      string         `json:"handle"`
	Title       string         `json:"title"`
	CategoryIDs []string       `json:"category_ids"`
	VariantIDs  []string       `json:"variant_ids"`
	Metadata    map[string]any `json:"metadata"`
}
