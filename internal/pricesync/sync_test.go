package pricesync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/catalog"
	"github.com/sells-group/catalog-importer/internal/fetcher"
	"github.com/sells-group/catalog-importer/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const priceFeed = `<?xml version="1.0" encoding="UTF-8"?>
<offer>
  <products>
    <product id="77">
      <price net="9.00" gross="11.07"/>
      <srp net="11.79"/>
      <sizes><size id="uniw"><stock quantity="4"/></size></sizes>
    </product>
    <product id="78">
      <price net="5.00"/>
    </product>
    <product id="79"/>
  </products>
</offer>`

func seed(t *testing.T, store *catalog.Memory, externalID string, amount float64) string {
	t.Helper()
	p, err := store.CreateProduct(context.Background(), &model.MappedProduct{
		ExternalID: externalID,
		Title:      "P" + externalID,
		Handle:     "p-" + externalID,
		Variants: []model.ProductVariant{{
			Title:  model.DefaultVariantTitle,
			Prices: []model.Price{{Amount: amount, CurrencyCode: "pln"}},
		}},
		Metadata: map[string]any{model.MetaExternalID: externalID},
	})
	require.NoError(t, err)
	return p.ID
}

func TestApply_UpdatesMatchedProduct(t *testing.T) {
	store := catalog.NewMemory()
	matched := seed(t, store, "77", 20)
	untouched := seed(t, store, "88", 20)

	s := NewSyncer(nil, store, "")
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	res, err := s.Apply(context.Background(), strings.NewReader(priceFeed))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Records)
	assert.Equal(t, 2, res.Matched+res.Unmatched)
	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.NoPrice)

	p, _ := store.Product(matched)
	v := p.Variants[0]
	assert.Equal(t, 11.79, v.Prices[0].Amount)
	assert.Equal(t, 4, v.InventoryQuantity)
	assert.Equal(t, 9.0, v.Metadata[model.MetaCostPriceNet])
	assert.Equal(t, 11.79, v.Metadata[model.MetaRecommendedNet])
	assert.Equal(t, "2026-03-01T12:00:00Z", v.Metadata[model.MetaPriceSyncedAt])

	other, _ := store.Product(untouched)
	assert.Equal(t, 20.0, other.Variants[0].Prices[0].Amount)
	assert.Empty(t, other.Variants[0].Metadata)
}

func TestApply_CostPriceFallback(t *testing.T) {
	store := catalog.NewMemory()
	id := seed(t, store, "78", 1)

	_, err := NewSyncer(nil, store, "eur").Apply(context.Background(), strings.NewReader(priceFeed))
	require.NoError(t, err)

	p, _ := store.Product(id)
	assert.Equal(t, model.Price{Amount: 5, CurrencyCode: "eur"}, p.Variants[0].Prices[0])
}

func TestApply_MalformedFeed(t *testing.T) {
	_, err := NewSyncer(nil, catalog.NewMemory(), "").Apply(context.Background(), strings.NewReader("<offer><products><product"))
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindMalformedFeed))
}

func TestSyncURL_ETag(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(priceFeed))
	}))
	defer srv.Close()

	store := catalog.NewMemory()
	seed(t, store, "77", 20)
	s := NewSyncer(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxRetries: 1}), store, "")

	first, err := s.SyncURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.False(t, first.NotModified)
	assert.Equal(t, 1, first.Updated)

	second, err := s.SyncURL(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, second.NotModified)
	assert.Equal(t, int32(2), hits.Load())
}

func TestRunOnce_IsolatesFailures(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(priceFeed))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer bad.Close()

	store := catalog.NewMemory()
	id := seed(t, store, "77", 20)
	s := NewSyncer(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxRetries: 1}), store, "")

	results := s.RunOnce(context.Background(), []string{bad.URL, good.URL})
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, 1, results[1].Updated)

	p, _ := store.Product(id)
	assert.Equal(t, 11.79, p.Variants[0].Prices[0].Amount)
}

func TestRun_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(priceFeed))
	}))
	defer srv.Close()

	s := NewSyncer(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{MaxRetries: 1}), catalog.NewMemory(), "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, []string{srv.URL}, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
