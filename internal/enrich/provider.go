// Package enrich turns mapped products into target-language storefront copy
// by calling a pluggable text-generation provider, degrading each stage to
// the original value when the provider fails.
package enrich

import "context"

// NullSentinel is the literal a provider returns when a section is absent.
const NullSentinel = "null"

// ProductInput is the product context sent to the provider.
type ProductInput struct {
	Title    string
	Brand    string
	Category string

	// MinWords and MaxWords bound the optimized body length.
	MinWords int
	MaxWords int
}

// MetaDescription is a generated meta title and meta description.
type MetaDescription struct {
	Title       string `json:"meta_title"`
	Description string `json:"meta_description"`
}

// OptimizedDescription is a generated storefront body plus a short variant
// for listing cards.
type OptimizedDescription struct {
	HTML  string `json:"description"`
	Short string `json:"short_description"`
}

// Provider is the capability set the orchestrator depends on. Translate and
// TranslateTitle take an explicit target language; the other methods write
// in the provider's configured target language.
type Provider interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
	TranslateTitle(ctx context.Context, title, brand, targetLang string) (string, error)
	GenerateMetaDescription(ctx context.Context, p ProductInput, originalText string) (*MetaDescription, error)
	OptimizeDescription(ctx context.Context, p ProductInput, originalText string) (*OptimizedDescription, error)
	ExtractIncludedItems(ctx context.Context, text string) (string, error)
	ExtractTechnicalData(ctx context.Context, text string) (string, error)
	GenerateCategoryDescription(ctx context.Context, path string) (string, error)
}

// Stage names used in logs and typed errors.
const (
	StageTranslate           = "translate"
	StageTranslateTitle      = "translate_title"
	StageMetaDescription     = "meta_description"
	StageOptimizeDescription = "optimize_description"
	StageIncludedItems       = "included_items"
	StageTechnicalData       = "technical_data"
	StageCategoryDescription = "category_description"
)
