// Package images copies product images into the blob store.
package images

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-importer/internal/blob"
	"github.com/sells-group/catalog-importer/internal/model"
)

// Mode selects what happens to source image URLs.
type Mode string

const (
	// ModePassthrough leaves source URLs untouched.
	ModePassthrough Mode = "passthrough"
	// ModeMaterialize downloads each image and re-uploads it to the blob store.
	ModeMaterialize Mode = "materialize"
)

// Getter downloads a URL into memory. fetcher.HTTPFetcher satisfies it.
type Getter interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Options configures a Materializer.
type Options struct {
	Mode        Mode
	Concurrency int
	Timeout     time.Duration
}

// Materializer rewrites a product's image URLs.
type Materializer struct {
	opts  Options
	get   Getter
	store blob.Store
}

// New creates a materializer. get and store are only used in materialize mode.
func New(opts Options, get Getter, store blob.Store) *Materializer {
	if opts.Mode == "" {
		opts.Mode = ModePassthrough
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Minute
	}
	return &Materializer{opts: opts, get: get, store: store}
}

// Mode returns the configured mode.
func (m *Materializer) Mode() Mode {
	return m.opts.Mode
}

// Materialize replaces p's images (and thumbnail) with blob store URLs. An
// image that cannot be fetched or uploaded keeps its source URL. It returns
// the number of images that kept their source URL.
func (m *Materializer) Materialize(ctx context.Context, p *model.MappedProduct) int {
	if m.opts.Mode != ModeMaterialize || len(p.Images) == 0 {
		return 0
	}

	out := make([]string, len(p.Images))
	failed := make([]bool, len(p.Images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)
	for i, src := range p.Images {
		g.Go(func() error {
			dst, err := m.copy(gctx, src)
			if err != nil {
				zap.L().Warn("images: keeping source url",
					zap.String("external_id", p.ExternalID),
					zap.String("url", src),
					zap.Error(err),
				)
				dst = src
				failed[i] = true
			}
			out[i] = dst
			return nil
		})
	}
	_ = g.Wait()

	thumbIdx := -1
	for i, src := range p.Images {
		if src == p.Thumbnail {
			thumbIdx = i
			break
		}
	}
	p.Images = out
	if thumbIdx >= 0 {
		p.Thumbnail = out[thumbIdx]
	}

	n := 0
	for _, f := range failed {
		if f {
			n++
		}
	}
	return n
}

func (m *Materializer) copy(ctx context.Context, src string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.opts.Timeout)
	defer cancel()

	data, err := m.get.Fetch(ctx, src)
	if err != nil {
		return "", eris.Wrap(err, "images: fetch")
	}
	dst, err := m.store.Put(ctx, data, http.DetectContentType(data), imageName(src))
	if err != nil {
		return "", eris.Wrap(err, "images: upload")
	}
	return dst, nil
}

// imageName is the last path segment of src without query or fragment.
func imageName(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return "image"
	}
	switch name := path.Base(u.Path); name {
	case ".", "/":
		return "image"
	default:
		return name
	}
}
