package enrich

import (
	"context"
	"errors"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/model"
)

// Orchestrator runs the enrichment stages for one product at a time. Every
// stage is best-effort: a failed stage keeps the original value.
type Orchestrator struct {
	provider   Provider
	targetLang string
	policy     *bluemonday.Policy
}

// NewOrchestrator creates an orchestrator writing copy in targetLang.
func NewOrchestrator(p Provider, targetLang string) *Orchestrator {
	if p == nil {
		p = Passthrough{}
	}
	return &Orchestrator{provider: p, targetLang: targetLang, policy: NewSanitizer()}
}

// Result is an enriched product plus the stages that fell back.
type Result struct {
	Product   *model.MappedProduct
	Fallbacks []string
}

func (r *Result) fallback(stage string) {
	r.Fallbacks = append(r.Fallbacks, stage)
}

// Enrich returns an enriched copy of p. originalDescription is the
// untranslated HTML body from the feed; it is kept when body optimization
// fails. Enrich never fails; ctx cancellation degrades the remaining stages.
func (o *Orchestrator) Enrich(ctx context.Context, p *model.MappedProduct, originalDescription string) *Result {
	out := p.Clone()
	res := &Result{Product: out}
	plain := ToMarkdown(originalDescription)
	brand := out.MetaString(model.MetaProducerName)
	log := zap.L().With(zap.String("external_id", out.ExternalID))

	// Title.
	if title, err := o.provider.TranslateTitle(ctx, p.Title, brand, o.targetLang); err != nil || strings.TrimSpace(title) == "" {
		o.warn(log, StageTranslateTitle, err)
		res.fallback(StageTranslateTitle)
	} else {
		out.Title = strings.TrimSpace(title)
	}

	in := ProductInput{Title: out.Title, Brand: brand, Category: out.CategorySourcePath}

	// Meta title and description.
	meta, err := o.provider.GenerateMetaDescription(ctx, in, plain)
	metaTitle, metaDesc := "", ""
	if err == nil && meta != nil {
		metaTitle = ClampChars(meta.Title, MetaTitleMax)
		metaDesc = ClampChars(meta.Description, MetaDescriptionMax)
	}
	if metaTitle == "" || metaDesc == "" {
		o.warn(log, StageMetaDescription, err)
		res.fallback(StageMetaDescription)
		if metaTitle == "" {
			metaTitle = ClampChars(out.Title, MetaTitleMax)
		}
		if metaDesc == "" {
			metaDesc = ClampChars(plainSentence(plain), metaFallbackDesc)
		}
	}
	out.SetMeta(model.MetaSEOTitle, metaTitle)
	if metaDesc != "" {
		out.SetMeta(model.MetaSEODescription, metaDesc)
	}

	// Body.
	in.MinWords, in.MaxWords = WordBand(plain)
	body, err := o.provider.OptimizeDescription(ctx, in, plain)
	html := ""
	if err == nil && body != nil {
		html = strings.TrimSpace(o.policy.Sanitize(body.HTML))
	}
	if html == "" {
		o.warn(log, StageOptimizeDescription, err)
		res.fallback(StageOptimizeDescription)
		out.Description = originalDescription
	} else {
		out.Description = html
		if short := strings.TrimSpace(o.policy.Sanitize(body.Short)); short != "" {
			out.SetMeta(model.MetaShortDescription, short)
		}
	}

	// Structured sections.
	if v, ok := o.section(ctx, log, StageIncludedItems, o.provider.ExtractIncludedItems, plain, originalDescription, ExtractIncludedItemsLocal, res); ok {
		out.SetMeta(model.MetaIncludedItems, v)
	}
	if v, ok := o.section(ctx, log, StageTechnicalData, o.provider.ExtractTechnicalData, plain, originalDescription, ExtractTechnicalDataLocal, res); ok {
		out.SetMeta(model.MetaTechnicalData, v)
	}

	log.Debug("enrichment complete", zap.Strings("fallbacks", res.Fallbacks))
	return res
}

// section runs one structured extraction. The provider result wins when it
// is a real fragment; otherwise the local extractor runs on the original HTML.
func (o *Orchestrator) section(
	ctx context.Context,
	log *zap.Logger,
	stage string,
	call func(context.Context, string) (string, error),
	plain, original string,
	local func(string) string,
	res *Result,
) (string, bool) {
	if strings.TrimSpace(plain) == "" {
		return "", false
	}
	v, err := call(ctx, plain)
	if err == nil && !isNullFragment(v) && len(strings.TrimSpace(v)) >= minFragmentLen {
		if clean := strings.TrimSpace(o.policy.Sanitize(v)); clean != "" {
			return clean, true
		}
	}
	if err != nil {
		o.warn(log, stage, err)
	}
	res.fallback(stage)
	if lv := local(original); lv != "" {
		return lv, true
	}
	return "", false
}

// TranslationCache memoizes translated category segments for one import run.
type TranslationCache map[string]string

// TranslatePath translates each "/"-separated segment of a category path,
// keeping a segment untranslated when its call fails.
func (o *Orchestrator) TranslatePath(ctx context.Context, sourcePath string, cache TranslationCache) string {
	segments := strings.Split(sourcePath, "/")
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		segments[i] = seg
		if seg == "" {
			continue
		}
		if cached, ok := cache[seg]; ok {
			segments[i] = cached
			continue
		}
		translated, err := o.provider.Translate(ctx, seg, o.targetLang)
		translated = strings.TrimSpace(strings.ReplaceAll(translated, "/", "-"))
		if err != nil || translated == "" {
			o.warn(zap.L(), StageTranslate, err)
			translated = seg
		}
		if cache != nil {
			cache[seg] = translated
		}
		segments[i] = translated
	}
	return strings.Join(segments, "/")
}

// DescribeCategory returns a short SEO description for a category path, or
// "" when the provider fails.
func (o *Orchestrator) DescribeCategory(ctx context.Context, path string) string {
	desc, err := o.provider.GenerateCategoryDescription(ctx, path)
	if err != nil {
		o.warn(zap.L().With(zap.String("category_path", path)), StageCategoryDescription, err)
		return ""
	}
	return strings.TrimSpace(bluemonday.StrictPolicy().Sanitize(desc))
}

func (o *Orchestrator) warn(log *zap.Logger, stage string, err error) {
	if errors.Is(err, ErrDisabled) {
		return
	}
	log.Warn("enrichment stage fell back to original", zap.String("stage", stage), zap.Error(err))
}

// plainSentence returns the first paragraph of markdown text with markers removed.
func plainSentence(md string) string {
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(markdownMarks.Replace(strings.TrimLeft(line, "#*-+ ")))
		if line != "" {
			return line
		}
	}
	return ""
}
