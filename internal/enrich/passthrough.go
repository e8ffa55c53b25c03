package enrich

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrDisabled is returned by Passthrough for stages it does not perform.
var ErrDisabled = eris.New("enrich: enrichment disabled")

// Passthrough is the Provider used when enrichment is turned off. Text is
// returned untranslated and generation stages report ErrDisabled so the
// orchestrator keeps original values.
type Passthrough struct{}

func (Passthrough) Translate(_ context.Context, text, _ string) (string, error) {
	return text, nil
}

func (Passthrough) TranslateTitle(_ context.Context, title, _, _ string) (string, error) {
	return title, nil
}

func (Passthrough) GenerateMetaDescription(context.Context, ProductInput, string) (*MetaDescription, error) {
	return nil, ErrDisabled
}

func (Passthrough) OptimizeDescription(context.Context, ProductInput, string) (*OptimizedDescription, error) {
	return nil, ErrDisabled
}

func (Passthrough) ExtractIncludedItems(context.Context, string) (string, error) {
	return NullSentinel, nil
}

func (Passthrough) ExtractTechnicalData(context.Context, string) (string, error) {
	return NullSentinel, nil
}

func (Passthrough) GenerateCategoryDescription(context.Context, string) (string, error) {
	return "", nil
}
