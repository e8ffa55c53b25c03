package model

// FacetCount is one category or brand with the number of products carrying it.
type FacetCount struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

// TaxonomySummary is the preview of a feed: distinct categories and brands,
// the total product count, and which categories each brand appears in.
type TaxonomySummary struct {
	Categories      []FacetCount        `json:"categories" yaml:"categories"`
	Brands          []FacetCount        `json:"brands" yaml:"brands"`
	TotalProducts   int                 `json:"total_products" yaml:"total_products"`
	BrandCategories map[string][]string `json:"brand_categories" yaml:"brand_categories"`
}
