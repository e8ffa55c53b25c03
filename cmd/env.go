package main

import (
	"context"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/blob"
	"github.com/sells-group/catalog-importer/internal/catalog"
	"github.com/sells-group/catalog-importer/internal/category"
	"github.com/sells-group/catalog-importer/internal/db"
	"github.com/sells-group/catalog-importer/internal/enrich"
	"github.com/sells-group/catalog-importer/internal/fetcher"
	"github.com/sells-group/catalog-importer/internal/images"
	"github.com/sells-group/catalog-importer/internal/importer"
	"github.com/sells-group/catalog-importer/internal/mapper"
	"github.com/sells-group/catalog-importer/internal/model"
	"github.com/sells-group/catalog-importer/internal/notify"
	"github.com/sells-group/catalog-importer/internal/resilience"
	"github.com/sells-group/catalog-importer/internal/session"
	"github.com/sells-group/catalog-importer/internal/upsert"
	anthropicpkg "github.com/sells-group/catalog-importer/pkg/anthropic"
	"github.com/sells-group/catalog-importer/pkg/chat"
)

// importEnv holds the initialized stores and the importer service used by
// the session, serve and pricesync commands.
type importEnv struct {
	Sessions session.Store
	Catalog  catalog.Service
	Fetcher  *fetcher.HTTPFetcher
	Notifier notify.Notifier
	Service  *importer.Service

	closers []func()
}

// Close releases resources held by the environment.
func (e *importEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// envOptions selects which parts of the environment are built.
type envOptions struct {
	// catalog connects the target catalog database.
	catalog bool
	// dryRun replaces the catalog database with an in-memory catalog.
	dryRun bool
}

// initEnv sets up the session store, the feed fetcher and, when requested,
// the catalog and the enrichment stack. Callers should defer env.Close().
func initEnv(ctx context.Context, opts envOptions) (*importEnv, error) {
	env := &importEnv{}

	st, err := initSessionStore(ctx)
	if err != nil {
		return nil, err
	}
	env.Sessions = st
	env.closers = append(env.closers, func() { _ = st.Close() })

	env.Fetcher = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:  cfg.Feed.UserAgent,
		Timeout:    cfg.Feed.Timeout(),
		MaxRetries: cfg.Feed.MaxRetries,
	})

	deps := importer.Deps{
		Sessions: st,
		Fetcher:  env.Fetcher,
	}

	if opts.catalog || opts.dryRun {
		if err := initCatalog(ctx, env, opts.dryRun); err != nil {
			env.Close()
			return nil, err
		}

		orch := enrich.NewOrchestrator(buildProvider(), cfg.Feed.TargetLang)
		deps.Enricher = orch
		deps.Resolver = category.NewResolver(env.Catalog, orch)
		deps.Upserter = upsert.NewEngine(env.Catalog, upsert.Options{
			ShippingProfileID: cfg.Catalog.ShippingProfileID,
			SalesChannelID:    cfg.Catalog.SalesChannelID,
		})

		mat, err := buildMaterializer(ctx, env.Fetcher)
		if err != nil {
			env.Close()
			return nil, err
		}
		deps.Images = mat
	}

	env.Notifier = notify.New(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
	env.closers = append(env.closers, func() {
		if err := env.Notifier.Close(); err != nil {
			zap.L().Warn("close notifier", zap.Error(err))
		}
	})
	deps.Notifier = env.Notifier

	env.Service = importer.New(importer.Config{
		WorkDir: cfg.Feed.WorkDir,
		Mapper: mapper.Options{
			Langs:    cfg.Feed.PreferredLangs,
			Status:   model.ProductStatus(cfg.Catalog.ProductStatus),
			Currency: cfg.Catalog.Currency,
		},
	}, deps)

	return env, nil
}

func initSessionStore(ctx context.Context) (session.Store, error) {
	st, err := session.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, &db.PoolConfig{MaxConns: cfg.Store.MaxConns})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate session store")
	}
	return st, nil
}

func initCatalog(ctx context.Context, env *importEnv, dryRun bool) error {
	if dryRun {
		zap.L().Warn("dry run: products are written to an in-memory catalog")
		env.Catalog = catalog.NewMemory()
		return nil
	}
	if cfg.Catalog.DatabaseURL == "" {
		return eris.New("catalog.database_url is required (CATALOG_CATALOG_DATABASE_URL)")
	}
	pool, err := db.Connect(ctx, cfg.Catalog.DatabaseURL, &db.PoolConfig{MaxConns: cfg.Catalog.MaxConns})
	if err != nil {
		return eris.Wrap(err, "connect catalog database")
	}
	env.closers = append(env.closers, pool.Close)
	env.Catalog = catalog.NewPostgres(pool)
	return nil
}

// buildProvider returns the text-generation provider selected by config.
// Disabled enrichment yields nil, which the orchestrator treats as
// pass-through.
func buildProvider() enrich.Provider {
	pcfg := enrich.Config{
		TargetLang: cfg.Feed.TargetLang,
		RatePerSec: cfg.Enrich.RatePerSec,
		Timeout:    time.Duration(cfg.Enrich.TimeoutSecs) * time.Second,
		Retry:      resilience.RetryConfig{MaxAttempts: cfg.Enrich.MaxRetries},
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Enrich.CircuitFailures,
			ResetTimeout:     time.Duration(cfg.Enrich.CircuitResetSecs) * time.Second,
		},
	}

	switch cfg.Enrich.ActiveProvider() {
	case "anthropic":
		// Retries are handled by the provider wrapper.
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, option.WithMaxRetries(0))
		zap.L().Info("enrichment enabled", zap.String("provider", "anthropic"), zap.String("model", cfg.Anthropic.Model))
		return enrich.NewAnthropicProvider(client, cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, pcfg)
	case "local":
		client := chat.NewClient(cfg.LocalLLM.Key,
			chat.WithBaseURL(cfg.LocalLLM.BaseURL),
			chat.WithModel(cfg.LocalLLM.Model),
		)
		zap.L().Info("enrichment enabled", zap.String("provider", "local"), zap.String("model", cfg.LocalLLM.Model))
		return enrich.NewLocalProvider(client, cfg.LocalLLM.MaxTokens, pcfg)
	default:
		zap.L().Info("enrichment disabled, products keep their source text")
		return nil
	}
}

func buildMaterializer(ctx context.Context, get images.Getter) (*images.Materializer, error) {
	opts := images.Options{Mode: images.Mode(cfg.Images.Mode), Concurrency: cfg.Images.Concurrency}
	if opts.Mode != images.ModeMaterialize {
		return images.New(opts, nil, nil), nil
	}
	store, err := blob.NewS3Store(ctx, blob.S3Config(cfg.S3))
	if err != nil {
		return nil, eris.Wrap(err, "init s3 blob store")
	}
	zap.L().Info("image materialization enabled", zap.String("bucket", cfg.S3.Bucket))
	return images.New(opts, get, store), nil
}
