// Package pricesync re-applies price and stock from the light price feed to
// products already in the catalog.
package pricesync

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/catalog"
	"github.com/sells-group/catalog-importer/internal/feed"
	"github.com/sells-group/catalog-importer/internal/mapper"
	"github.com/sells-group/catalog-importer/internal/model"
)

// Downloader fetches a feed unless it is unchanged since etag.
// fetcher.HTTPFetcher satisfies it.
type Downloader interface {
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}

// Result counts the outcome of syncing one feed.
type Result struct {
	URL         string
	NotModified bool
	Records     int
	Matched     int // records with at least one catalog product
	Updated     int // products written
	Unmatched   int
	NoPrice     int
	Failed      int
	Err         error
}

// Syncer applies price feeds to the catalog.
type Syncer struct {
	dl       Downloader
	store    catalog.PriceStore
	currency string
	now      func() time.Time

	mu    sync.Mutex
	etags map[string]string
}

// NewSyncer creates a syncer writing prices in currency (default "pln").
func NewSyncer(dl Downloader, store catalog.PriceStore, currency string) *Syncer {
	if currency == "" {
		currency = "pln"
	}
	return &Syncer{
		dl:       dl,
		store:    store,
		currency: currency,
		now:      time.Now,
		etags:    make(map[string]string),
	}
}

// SyncURL downloads one price feed and applies it. A feed whose ETag has
// not changed since the last run is skipped.
func (s *Syncer) SyncURL(ctx context.Context, url string) (*Result, error) {
	s.mu.Lock()
	etag := s.etags[url]
	s.mu.Unlock()

	body, newETag, changed, err := s.dl.DownloadIfChanged(ctx, url, etag)
	if err != nil {
		return nil, eris.Wrapf(err, "pricesync: download %s", url)
	}
	if !changed {
		return &Result{URL: url, NotModified: true}, nil
	}
	defer body.Close() //nolint:errcheck

	res, err := s.Apply(ctx, body)
	if err != nil {
		return nil, eris.Wrapf(err, "pricesync: apply %s", url)
	}
	res.URL = url

	if newETag != "" {
		s.mu.Lock()
		s.etags[url] = newETag
		s.mu.Unlock()
	}
	return res, nil
}

// Apply streams price records from r and writes each matched product's
// variants. Per-product write failures are counted; a feed-level parse
// error aborts.
func (s *Syncer) Apply(ctx context.Context, r io.Reader) (*Result, error) {
	res := &Result{}
	syncedAt := s.now().UTC().Format(time.RFC3339)

	for rec, err := range feed.Stream(ctx, r) {
		if err != nil {
			return res, err
		}
		res.Records++
		s.applyOne(ctx, mapper.PriceUpdateFrom(rec), syncedAt, res)
	}
	return res, nil
}

func (s *Syncer) applyOne(ctx context.Context, u model.PriceUpdate, syncedAt string, res *Result) {
	if u.ExternalID == "" {
		res.Unmatched++
		return
	}
	amount, ok := u.CustomerPrice()
	if !ok {
		res.NoPrice++
		return
	}

	products, err := s.store.FindProductsByExternalID(ctx, u.ExternalID)
	if err != nil {
		zap.L().Error("pricesync: lookup failed", zap.String("external_id", u.ExternalID), zap.Error(err))
		res.Failed++
		return
	}
	if len(products) == 0 {
		res.Unmatched++
		return
	}
	res.Matched++

	meta := u.CostMetadata()
	meta[model.MetaPriceSyncedAt] = syncedAt
	price := model.Price{Amount: amount, CurrencyCode: s.currency}
	for _, p := range products {
		if _, err := s.store.UpdateVariantPrices(ctx, p.ID, price, u.Stock, meta); err != nil {
			zap.L().Error("pricesync: update failed",
				zap.String("external_id", u.ExternalID),
				zap.String("product_id", p.ID),
				zap.Error(err),
			)
			res.Failed++
			continue
		}
		res.Updated++
	}
}

// RunOnce syncs every URL in order. A failing URL is logged and recorded on
// its result; the remaining URLs still run.
func (s *Syncer) RunOnce(ctx context.Context, urls []string) []*Result {
	log := zap.L().With(zap.String("component", "pricesync"))
	out := make([]*Result, 0, len(urls))
	for _, url := range urls {
		if ctx.Err() != nil {
			break
		}
		res, err := s.SyncURL(ctx, url)
		if err != nil {
			log.Error("pricesync: feed failed", zap.String("url", url), zap.Error(err))
			out = append(out, &Result{URL: url, Err: err})
			continue
		}
		log.Info("pricesync: feed applied",
			zap.String("url", url),
			zap.Bool("not_modified", res.NotModified),
			zap.Int("records", res.Records),
			zap.Int("matched", res.Matched),
			zap.Int("updated", res.Updated),
			zap.Int("unmatched", res.Unmatched),
			zap.Int("failed", res.Failed),
		)
		out = append(out, res)
	}
	return out
}

// Run syncs immediately and then every interval until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context, urls []string, interval time.Duration) {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	log := zap.L().With(zap.String("component", "pricesync"))
	log.Info("starting price sync scheduler", zap.Duration("interval", interval), zap.Int("feeds", len(urls)))

	s.RunOnce(ctx, urls)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("price sync scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx, urls)
		}
	}
}
