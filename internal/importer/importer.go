// Package importer runs the import session lifecycle: download and preview a
// feed, record the operator's selection, then enrich and upsert the selected
// products.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/category"
	"github.com/sells-group/catalog-importer/internal/enrich"
	"github.com/sells-group/catalog-importer/internal/feed"
	"github.com/sells-group/catalog-importer/internal/fetcher"
	"github.com/sells-group/catalog-importer/internal/images"
	"github.com/sells-group/catalog-importer/internal/mapper"
	"github.com/sells-group/catalog-importer/internal/model"
	"github.com/sells-group/catalog-importer/internal/notify"
	"github.com/sells-group/catalog-importer/internal/selection"
	"github.com/sells-group/catalog-importer/internal/session"
	"github.com/sells-group/catalog-importer/internal/taxonomy"
	"github.com/sells-group/catalog-importer/internal/upsert"
	"github.com/sells-group/catalog-importer/internal/validation"
)

var (
	// ErrInvalidState is returned when an operation does not apply to the
	// session's current status.
	ErrInvalidState = eris.New("importer: invalid session state")
	// ErrBusy is returned when the session is already importing in this process.
	ErrBusy = eris.New("importer: session import already running")
)

// Config holds the importer settings.
type Config struct {
	// WorkDir receives downloaded feed files, one per session.
	WorkDir string
	// Mapper controls record mapping, including the preferred-language chain.
	Mapper mapper.Options
}

// Deps are the pipeline stages used by the importer.
type Deps struct {
	Sessions  session.Store
	Fetcher   fetcher.Fetcher
	Enricher  *enrich.Orchestrator
	Resolver  *category.Resolver
	Images    *images.Materializer
	Upserter  *upsert.Engine
	Notifier  notify.Notifier
	Validator *validation.Validator
}

// Service runs session operations.
type Service struct {
	cfg  Config
	deps Deps

	mu      sync.Mutex
	running map[string]bool
}

// New creates the service. A nil Notifier logs outcomes; a nil Images
// materializer passes image URLs through.
func New(cfg Config, deps Deps) *Service {
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.LogNotifier{}
	}
	if deps.Images == nil {
		deps.Images = images.New(images.Options{Mode: images.ModePassthrough}, nil, nil)
	}
	if deps.Validator == nil {
		deps.Validator = validation.New()
	}
	return &Service{cfg: cfg, deps: deps, running: make(map[string]bool)}
}

// Get returns a session.
func (s *Service) Get(ctx context.Context, id string) (*model.Session, error) {
	return s.deps.Sessions.Get(ctx, id)
}

// List returns sessions matching filter.
func (s *Service) List(ctx context.Context, filter session.Filter) ([]model.Session, error) {
	return s.deps.Sessions.List(ctx, filter)
}

// Create opens a session for feedURL, streams the feed once to build the
// taxonomy preview and leaves the session ready. A download or parse failure
// marks the session failed and is returned together with it.
func (s *Service) Create(ctx context.Context, feedURL string) (*model.Session, error) {
	sess, err := s.deps.Sessions.Create(ctx, feedURL)
	if err != nil {
		return nil, eris.Wrap(err, "importer: create session")
	}
	log := zap.L().With(zap.String("session_id", sess.ID), zap.String("feed_url", feedURL))
	log.Info("importer: session created, building preview")

	summary, err := s.summarize(ctx, feedURL)
	if err != nil {
		log.Error("importer: preview failed", zap.Error(err))
		return sess, s.fail(ctx, sess, err)
	}

	sess.Summary = summary
	sess.Status = model.SessionReady
	if err := s.deps.Sessions.Update(ctx, sess); err != nil {
		return sess, eris.Wrap(err, "importer: store preview")
	}
	log.Info("importer: session ready",
		zap.Int("products", summary.TotalProducts),
		zap.Int("categories", len(summary.Categories)),
		zap.Int("brands", len(summary.Brands)),
	)
	return sess, nil
}

func (s *Service) summarize(ctx context.Context, feedURL string) (*model.TaxonomySummary, error) {
	body, err := s.deps.Fetcher.Download(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	defer body.Close() //nolint:errcheck

	sum := taxonomy.NewSummarizer(s.cfg.Mapper.Langs)
	for rec, err := range feed.Stream(ctx, body) {
		if err != nil {
			return nil, err
		}
		sum.Add(rec)
	}
	return sum.Summary(), nil
}

// Preview returns the taxonomy summary built when the session was created.
func (s *Service) Preview(ctx context.Context, id string) (*model.TaxonomySummary, error) {
	sess, err := s.deps.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Summary == nil {
		return nil, eris.Wrapf(ErrInvalidState, "session %s has no preview (status %s)", id, sess.Status)
	}
	return sess.Summary, nil
}

// Download fetches the feed again into the work directory and records the
// file on the session. Import reads products from this file.
func (s *Service) Download(ctx context.Context, id string) (*model.Session, error) {
	sess, err := s.deps.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() || sess.Status == model.SessionParsing {
		return nil, eris.Wrapf(ErrInvalidState, "cannot download feed for session in status %s", sess.Status)
	}
	if err := s.download(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) download(ctx context.Context, sess *model.Session) error {
	if err := os.MkdirAll(s.cfg.WorkDir, 0o750); err != nil {
		return eris.Wrap(err, "importer: create work dir")
	}
	path := filepath.Join(s.cfg.WorkDir, sess.ID+".xml")
	n, err := s.deps.Fetcher.DownloadToFile(ctx, sess.FeedURL, path)
	if err != nil {
		return eris.Wrap(err, "importer: download feed")
	}
	sess.FilePath = path
	if err := s.deps.Sessions.Update(ctx, sess); err != nil {
		return eris.Wrap(err, "importer: store file path")
	}
	zap.L().Info("importer: feed downloaded",
		zap.String("session_id", sess.ID),
		zap.String("path", path),
		zap.Int64("bytes", n),
	)
	return nil
}

// Select validates and stores the operator's filters.
func (s *Service) Select(ctx context.Context, id string, sel model.Selection) (*model.Session, error) {
	if err := s.deps.Validator.Validate(sel); err != nil {
		return nil, err
	}
	sess, err := s.deps.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != model.SessionReady && sess.Status != model.SessionSelecting {
		return nil, eris.Wrapf(ErrInvalidState, "cannot select in status %s", sess.Status)
	}
	sess.Selection = &sel
	sess.Status = model.SessionSelecting
	if err := s.deps.Sessions.Update(ctx, sess); err != nil {
		return nil, eris.Wrap(err, "importer: store selection")
	}
	return sess, nil
}

// Import runs the selected products through the pipeline. Products are
// processed one at a time; a product failure is counted and the run goes
// on. A feed-level failure aborts the run. The session completes when at
// least one product was written and fails otherwise.
//
// If ctx is cancelled the session is left importing with its feed file in
// place, so a later Import call re-runs it.
func (s *Service) Import(ctx context.Context, id string) (*model.Session, error) {
	if !s.claim(id) {
		return nil, eris.Wrap(ErrBusy, id)
	}
	defer s.release(id)

	sess, err := s.deps.Sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case model.SessionReady, model.SessionSelecting, model.SessionImporting:
	default:
		return nil, eris.Wrapf(ErrInvalidState, "cannot import in status %s", sess.Status)
	}

	log := zap.L().With(zap.String("session_id", sess.ID))
	if sess.FilePath == "" {
		if err := s.download(ctx, sess); err != nil {
			return sess, s.fail(ctx, sess, err)
		}
	}

	sess.Status = model.SessionImporting
	sess.Result = &model.ImportResult{}
	sess.Error = ""
	if err := s.deps.Sessions.Update(ctx, sess); err != nil {
		return nil, eris.Wrap(err, "importer: mark importing")
	}
	log.Info("importer: import started", zap.String("path", sess.FilePath))

	runErr := s.run(ctx, sess, log)
	if ctx.Err() != nil {
		bg := context.WithoutCancel(ctx)
		if err := s.deps.Sessions.Update(bg, sess); err != nil {
			log.Error("importer: store partial result", zap.Error(err))
		}
		log.Warn("importer: import interrupted, feed file kept for restart", zap.Error(ctx.Err()))
		return sess, ctx.Err()
	}

	defer s.removeFile(sess, log)
	if runErr != nil {
		return sess, s.fail(ctx, sess, runErr)
	}
	if sess.Result.Succeeded() == 0 {
		return sess, s.fail(ctx, sess, eris.Errorf("no product was written (selected %d, failed %d)",
			sess.Result.Selected, sess.Result.Failed))
	}

	sess.Status = model.SessionCompleted
	if err := s.deps.Sessions.Update(ctx, sess); err != nil {
		return sess, eris.Wrap(err, "importer: store result")
	}
	s.notify(ctx, sess)
	log.Info("importer: import completed",
		zap.Int("scanned", sess.Result.Scanned),
		zap.Int("selected", sess.Result.Selected),
		zap.Int("created", sess.Result.Created),
		zap.Int("updated", sess.Result.Updated),
		zap.Int("failed", sess.Result.Failed),
		zap.Int("skipped", sess.Result.Skipped),
	)
	return sess, nil
}

// run streams the session's feed file through the pipeline.
func (s *Service) run(ctx context.Context, sess *model.Session, log *zap.Logger) error {
	f, err := os.Open(sess.FilePath)
	if err != nil {
		return model.NewError(model.KindFetchFailed, "importer.open", err)
	}
	defer f.Close() //nolint:errcheck

	// A truncated or malformed file must fail before any product is written.
	if err := verify(ctx, f); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return model.NewError(model.KindFetchFailed, "importer.rewind", err)
	}

	match := selection.Matcher(sess.Selection)
	p := &pipeline{
		svc:          s,
		result:       sess.Result,
		categories:   category.NewCache(),
		translations: make(enrich.TranslationCache),
		log:          log,
	}
	for rec, err := range feed.Stream(ctx, f) {
		if err != nil {
			return err
		}
		sess.Result.Scanned++
		if !match(rec) {
			continue
		}
		sess.Result.Selected++
		p.process(ctx, rec)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// verify reads the whole feed without processing it.
func verify(ctx context.Context, r io.Reader) error {
	for _, err := range feed.Stream(ctx, r) {
		if err != nil {
			return err
		}
	}
	return nil
}

// pipeline holds the per-run state of one import. Its caches are never
// shared between sessions.
type pipeline struct {
	svc          *Service
	result       *model.ImportResult
	categories   category.Cache
	translations enrich.TranslationCache
	log          *zap.Logger
}

func (p *pipeline) process(ctx context.Context, rec feed.Record) {
	deps := p.svc.deps
	log := p.log.With(zap.String("external_id", rec.ID()))

	mapped, err := mapper.Map(rec, p.svc.cfg.Mapper)
	if err != nil {
		log.Warn("importer: record skipped", zap.Error(err))
		p.result.Skipped++
		p.result.AddError(err.Error())
		return
	}

	product := mapped
	if deps.Enricher != nil {
		product = deps.Enricher.Enrich(ctx, mapped, mapped.Description).Product
	}

	if deps.Resolver != nil && product.CategorySourcePath != "" {
		path := product.CategorySourcePath
		if deps.Enricher != nil {
			path = deps.Enricher.TranslatePath(ctx, product.CategorySourcePath, p.translations)
		}
		id, err := deps.Resolver.Resolve(ctx, p.categories, path, product.CategorySourcePath, product.CategoryExternalID)
		switch {
		case err != nil:
			log.Warn("importer: category not resolved, product kept without category",
				zap.String("category_path", path),
				zap.Error(err),
			)
			p.result.AddError(fmt.Sprintf("%s: category: %v", product.ExternalID, err))
		case id != "":
			product.CategoryIDs = []string{id}
		}
	}

	if failed := deps.Images.Materialize(ctx, product); failed > 0 {
		log.Warn("importer: some images kept their source url", zap.Int("images", failed))
	}

	item := deps.Upserter.UpsertOne(ctx, product)
	switch item.Outcome {
	case upsert.Created:
		p.result.Created++
	case upsert.Updated:
		p.result.Updated++
	default:
		p.result.Failed++
		p.result.AddError(fmt.Sprintf("%s: %v", product.ExternalID, item.Err))
	}
}

// fail marks the session failed and stores it. It returns cause.
func (s *Service) fail(ctx context.Context, sess *model.Session, cause error) error {
	sess.Status = model.SessionFailed
	sess.Error = cause.Error()
	if err := s.deps.Sessions.Update(context.WithoutCancel(ctx), sess); err != nil {
		zap.L().Error("importer: store failed session", zap.String("session_id", sess.ID), zap.Error(err))
	}
	s.notify(ctx, sess)
	return cause
}

func (s *Service) notify(ctx context.Context, sess *model.Session) {
	if err := s.deps.Notifier.Notify(context.WithoutCancel(ctx), notify.SessionEvent(sess)); err != nil {
		zap.L().Warn("importer: notification failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

func (s *Service) removeFile(sess *model.Session, log *zap.Logger) {
	if sess.FilePath == "" {
		return
	}
	if err := os.Remove(sess.FilePath); err != nil && !os.IsNotExist(err) {
		log.Warn("importer: remove feed file", zap.String("path", sess.FilePath), zap.Error(err))
	}
}

func (s *Service) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[id] {
		return false
	}
	s.running[id] = true
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, id)
}
