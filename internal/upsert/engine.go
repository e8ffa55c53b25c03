// Package upsert writes mapped products into the catalog, creating or
// updating each by its handle.
package upsert

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/catalog"
	"github.com/sells-group/catalog-importer/internal/model"
)

// Metadata keys recording the storefront placement of imported products.
const (
	MetaShippingProfileID = "shipping_profile_id"
	MetaSalesChannelID    = "sales_channel_id"
)

// Options configures an Engine.
type Options struct {
	ShippingProfileID string
	SalesChannelID    string // optional
}

// Outcome is what happened to one product.
type Outcome string

const (
	Created Outcome = "created"
	Updated Outcome = "updated"
	Failed  Outcome = "failed"
)

// ItemResult is the outcome for one product.
type ItemResult struct {
	Handle    string
	ProductID string
	Outcome   Outcome
	Err       error
}

// Result summarizes one Upsert call.
type Result struct {
	Created int
	Updated int
	Failed  int
	Items   []ItemResult
}

func (r *Result) add(item ItemResult) {
	switch item.Outcome {
	case Created:
		r.Created++
	case Updated:
		r.Updated++
	case Failed:
		r.Failed++
	}
	r.Items = append(r.Items, item)
}

// Engine upserts products against a catalog.
type Engine struct {
	store catalog.ProductStore
	opts  Options
}

// NewEngine creates an engine.
func NewEngine(store catalog.ProductStore, opts Options) *Engine {
	return &Engine{store: store, opts: opts}
}

type pending struct {
	product  *model.MappedProduct
	existing *model.CatalogProduct
}

// Upsert creates the products whose handle is unknown and updates the rest,
// then links each product's resolved categories. Per-product failures are
// counted and never abort the batch.
func (e *Engine) Upsert(ctx context.Context, products []*model.MappedProduct) *Result {
	res := &Result{}
	var creates, updates []pending

	for _, p := range products {
		e.stamp(p)
		existing, err := e.store.FindByHandle(ctx, p.Handle)
		if err != nil {
			res.add(e.fail(p, "lookup", err))
			continue
		}
		if existing != nil {
			updates = append(updates, pending{product: p, existing: existing})
		} else {
			creates = append(creates, pending{product: p})
		}
	}

	for _, c := range creates {
		created, err := e.store.CreateProduct(ctx, c.product)
		if err == nil {
			res.add(e.link(ctx, c.product, created, Created))
			continue
		}
		if !eris.Is(err, catalog.ErrDuplicate) {
			res.add(e.fail(c.product, "create", err))
			continue
		}

		// Another writer created the handle between lookup and create.
		existing, lookupErr := e.store.FindByHandle(ctx, c.product.Handle)
		if lookupErr != nil || existing == nil {
			if lookupErr == nil {
				lookupErr = err
			}
			res.add(e.fail(c.product, "create", lookupErr))
			continue
		}
		zap.L().Info("upsert: handle created concurrently, updating instead", zap.String("handle", c.product.Handle))
		updates = append(updates, pending{product: c.product, existing: existing})
	}

	for _, u := range updates {
		updated, err := e.store.UpdateProduct(ctx, u.existing.ID, u.product)
		if err != nil {
			res.add(e.fail(u.product, "update", err))
			continue
		}
		res.add(e.link(ctx, u.product, updated, Updated))
	}

	zap.L().Info("upsert: batch complete",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	)
	return res
}

// UpsertOne upserts a single product.
func (e *Engine) UpsertOne(ctx context.Context, p *model.MappedProduct) ItemResult {
	res := e.Upsert(ctx, []*model.MappedProduct{p})
	return res.Items[0]
}

func (e *Engine) stamp(p *model.MappedProduct) {
	if e.opts.ShippingProfileID != "" {
		p.SetMeta(MetaShippingProfileID, e.opts.ShippingProfileID)
	}
	if e.opts.SalesChannelID != "" {
		p.SetMeta(MetaSalesChannelID, e.opts.SalesChannelID)
	}
}

// link assigns the product's resolved categories. A failed assignment is
// reported on the item but leaves the write counted.
func (e *Engine) link(ctx context.Context, p *model.MappedProduct, stored *model.CatalogProduct, outcome Outcome) ItemResult {
	item := ItemResult{Handle: p.Handle, ProductID: stored.ID, Outcome: outcome}
	if len(p.CategoryIDs) == 0 {
		return item
	}
	if err := e.store.AssignCategories(ctx, stored.ID, p.CategoryIDs); err != nil {
		zap.L().Error("upsert: assign categories failed",
			zap.String("handle", p.Handle),
			zap.Strings("category_ids", p.CategoryIDs),
			zap.Error(err),
		)
		item.Err = err
	}
	return item
}

func (e *Engine) fail(p *model.MappedProduct, op string, err error) ItemResult {
	zap.L().Error("upsert: product failed",
		zap.String("handle", p.Handle),
		zap.String("external_id", p.ExternalID),
		zap.String("op", op),
		zap.Error(err),
	)
	return ItemResult{
		Handle:  p.Handle,
		Outcome: Failed,
		Err:     model.NewError(model.KindUpsertFailed, "upsert."+op, err),
	}
}
