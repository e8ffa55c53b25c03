package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/catalog-importer/internal/model"
	"github.com/sells-group/catalog-importer/internal/resilience"
)

// CompletionRequest is one prompt sent to a text-generation backend.
type CompletionRequest struct {
	Stage       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Completer sends a single prompt and returns the raw response text.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Config controls call pacing and failure handling for a TextProvider.
type Config struct {
	// Name identifies the backend in logs ("anthropic", "local").
	Name string

	// TargetLang is the language of generated copy.
	TargetLang string

	// RatePerSec limits provider calls. Zero means unlimited.
	RatePerSec float64

	// Timeout bounds each individual call. Default: 2m.
	Timeout time.Duration

	Retry   resilience.RetryConfig
	Breaker resilience.CircuitBreakerConfig
}

// TextProvider implements Provider on top of any Completer, adding rate
// limiting, per-call timeouts, retries and a circuit breaker.
type TextProvider struct {
	completer Completer
	cfg       Config
	limiter   *rate.Limiter
	breaker   *resilience.CircuitBreaker
}

// NewTextProvider wraps a completer.
func NewTextProvider(c Completer, cfg Config) *TextProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.TargetLang == "" {
		cfg.TargetLang = "pol"
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = cfg.Name
	}
	return &TextProvider{
		completer: c,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, 1),
		breaker:   resilience.NewCircuitBreaker(cfg.Breaker),
	}
}

// Breaker exposes the provider's circuit breaker state.
func (p *TextProvider) Breaker() *resilience.CircuitBreaker {
	return p.breaker
}

func (p *TextProvider) complete(ctx context.Context, req CompletionRequest) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", model.NewError(model.KindProviderCallFailed, req.Stage, err)
	}

	retry := p.cfg.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(p.cfg.Name, req.Stage)
	}

	start := time.Now()
	text, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (string, error) {
		return resilience.ExecuteVal(ctx, p.breaker, func(ctx context.Context) (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
			defer cancel()
			return p.completer.Complete(callCtx, req)
		})
	})
	if err != nil {
		return "", model.NewError(model.KindProviderCallFailed, req.Stage, err)
	}

	zap.L().Debug("provider call complete",
		zap.String("provider", p.cfg.Name),
		zap.String("stage", req.Stage),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("response_len", len(text)),
	)
	return text, nil
}

func unparseable(stage string, err error) error {
	return model.NewError(model.KindProviderResponseUnparseable, stage, err)
}

// Translate translates free text.
func (p *TextProvider) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	raw, err := p.complete(ctx, CompletionRequest{
		Stage:       StageTranslate,
		System:      translatorSystem,
		Prompt:      fmt.Sprintf(translatePrompt, LanguageName(targetLang), text),
		MaxTokens:   1024,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	out := strings.Trim(stripFences(raw), "\"'`")
	if out == "" {
		return "", unparseable(StageTranslate, eris.New("empty translation"))
	}
	return strings.TrimSpace(out), nil
}

// TranslateTitle translates a product title, keeping brand and model codes verbatim.
func (p *TextProvider) TranslateTitle(ctx context.Context, title, brand, targetLang string) (string, error) {
	raw, err := p.complete(ctx, CompletionRequest{
		Stage:       StageTranslateTitle,
		System:      translatorSystem,
		Prompt:      fmt.Sprintf(translateTitlePrompt, LanguageName(targetLang), title, brand),
		MaxTokens:   256,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	out := cleanLine(raw)
	if out == "" {
		return "", unparseable(StageTranslateTitle, eris.New("empty title"))
	}
	return out, nil
}

// GenerateMetaDescription writes a meta title and meta description.
func (p *TextProvider) GenerateMetaDescription(ctx context.Context, in ProductInput, originalText string) (*MetaDescription, error) {
	raw, err := p.complete(ctx, CompletionRequest{
		Stage:  StageMetaDescription,
		System: copywriterSystem,
		Prompt: fmt.Sprintf(metaDescriptionPrompt,
			LanguageName(p.cfg.TargetLang), in.Title, in.Brand, in.Category, originalText),
		MaxTokens:   512,
		Temperature: 0.5,
	})
	if err != nil {
		return nil, err
	}
	fields, err := ParseResponse(raw, "meta_title", "meta_description")
	if err != nil {
		return nil, unparseable(StageMetaDescription, err)
	}
	return &MetaDescription{Title: fields["meta_title"], Description: fields["meta_description"]}, nil
}

// OptimizeDescription writes the storefront body and its short variant.
func (p *TextProvider) OptimizeDescription(ctx context.Context, in ProductInput, originalText string) (*OptimizedDescription, error) {
	raw, err := p.complete(ctx, CompletionRequest{
		Stage:  StageOptimizeDescription,
		System: copywriterSystem,
		Prompt: fmt.Sprintf(optimizeDescriptionPrompt,
			LanguageName(p.cfg.TargetLang), in.Title, in.Brand, in.Category, originalText, in.MinWords, in.MaxWords),
		MaxTokens:   4096,
		Temperature: 0.7,
	})
	if err != nil {
		return nil, err
	}
	fields, err := ParseResponse(raw, "description", "short_description")
	if err != nil {
		return nil, unparseable(StageOptimizeDescription, err)
	}
	if fields["description"] == "" {
		return nil, unparseable(StageOptimizeDescription, eris.New("response has no description"))
	}
	return &OptimizedDescription{HTML: fields["description"], Short: fields["short_description"]}, nil
}

// ExtractIncludedItems returns an HTML list of package contents, or NullSentinel.
func (p *TextProvider) ExtractIncludedItems(ctx context.Context, text string) (string, error) {
	return p.extract(ctx, StageIncludedItems, includedItemsPrompt, text)
}

// ExtractTechnicalData returns an HTML specifications table, or NullSentinel.
func (p *TextProvider) ExtractTechnicalData(ctx context.Context, text string) (string, error) {
	return p.extract(ctx, StageTechnicalData, technicalDataPrompt, text)
}

func (p *TextProvider) extract(ctx context.Context, stage, prompt, text string) (string, error) {
	raw, err := p.complete(ctx, CompletionRequest{
		Stage:       stage,
		System:      extractorSystem,
		Prompt:      fmt.Sprintf(prompt, text, LanguageName(p.cfg.TargetLang)),
		MaxTokens:   2048,
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	out := stripFences(raw)
	if isNullFragment(out) {
		return NullSentinel, nil
	}
	return out, nil
}

// GenerateCategoryDescription writes a short SEO description for a category path.
func (p *TextProvider) GenerateCategoryDescription(ctx context.Context, path string) (string, error) {
	raw, err := p.complete(ctx, CompletionRequest{
		Stage:       StageCategoryDescription,
		System:      copywriterSystem,
		Prompt:      fmt.Sprintf(categoryDescriptionPrompt, LanguageName(p.cfg.TargetLang), path),
		MaxTokens:   256,
		Temperature: 0.5,
	})
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(strings.Trim(stripFences(raw), "\"'`"))
	if out == "" {
		return "", unparseable(StageCategoryDescription, eris.New("empty description"))
	}
	return out, nil
}
