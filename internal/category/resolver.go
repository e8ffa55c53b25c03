// Package category maps "/"-delimited category paths onto the catalog's
// category tree, creating missing nodes and deduplicating them by source
// identity rather than by translated display name.
package category

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/catalog"
	"github.com/sells-group/catalog-importer/internal/model"
)

// Describer generates the SEO description stored on a new category.
// It returns "" when no description is available.
type Describer interface {
	DescribeCategory(ctx context.Context, path string) string
}

type cacheKey struct {
	display  string
	parentID string
}

// Cache remembers resolved segments for one import run. It must not be
// shared between concurrent imports.
type Cache map[cacheKey]string

// NewCache returns an empty per-run cache.
func NewCache() Cache {
	return make(Cache)
}

// Resolver resolves category paths against a catalog.
type Resolver struct {
	store     catalog.CategoryStore
	describer Describer
}

// NewResolver creates a resolver. describer may be nil.
func NewResolver(store catalog.CategoryStore, describer Describer) *Resolver {
	return &Resolver{store: store, describer: describer}
}

// segment is one level of the path being resolved.
type segment struct {
	display    string
	source     string
	externalID string
	path       string // display path up to and including this segment
	leaf       bool
}

func splitPath(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "/") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// segments aligns the display path with the source path by position. A
// missing source segment falls back to the display name.
func segments(path, sourcePath, externalID string) []segment {
	display := splitPath(path)
	source := splitPath(sourcePath)
	out := make([]segment, len(display))
	for i, d := range display {
		src := d
		if i < len(source) {
			src = source[i]
		}
		out[i] = segment{
			display: d,
			source:  src,
			path:    strings.Join(display[:i+1], "/"),
			leaf:    i == len(display)-1,
		}
	}
	if len(out) > 0 {
		out[len(out)-1].externalID = externalID
	}
	return out
}

// Resolve returns the id of the leaf category of path, creating missing
// levels. sourcePath holds the untranslated names aligned with path;
// externalID is the source id of the leaf and may be empty. An empty path
// resolves to "". A failure affects only the calling product and carries
// model.KindCategoryCreateConflict when a create race could not be settled.
func (r *Resolver) Resolve(ctx context.Context, cache Cache, path, sourcePath, externalID string) (string, error) {
	parentID := ""
	for _, seg := range segments(path, sourcePath, externalID) {
		key := cacheKey{display: seg.display, parentID: parentID}
		if id, ok := cache[key]; ok {
			parentID = id
			continue
		}

		id, err := r.resolveSegment(ctx, seg, parentID)
		if err != nil {
			return "", err
		}
		if cache != nil {
			cache[key] = id
		}
		parentID = id
	}
	return parentID, nil
}

func (r *Resolver) resolveSegment(ctx context.Context, seg segment, parentID string) (string, error) {
	if seg.leaf && seg.externalID != "" {
		id, err := r.byExternalID(ctx, seg.externalID, parentID)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}

	id, err := r.bySourceName(ctx, seg, parentID)
	if err != nil || id != "" {
		return id, err
	}
	return r.create(ctx, seg, parentID)
}

// byExternalID returns the category carrying externalID directly under
// parentID. A match elsewhere in the tree is ignored.
func (r *Resolver) byExternalID(ctx context.Context, externalID, parentID string) (string, error) {
	matches, err := r.store.FindCategoriesByExternalID(ctx, externalID)
	if err != nil {
		return "", eris.Wrap(err, "category: lookup by external id")
	}
	for _, m := range matches {
		if m.Category.ParentID == parentID {
			return m.Category.ID, nil
		}
	}
	if len(matches) > 0 {
		zap.L().Debug("category: external id matched outside the running parent",
			zap.String("external_id", externalID),
			zap.String("parent_id", parentID),
			zap.Int("matches", len(matches)),
		)
	}
	return "", nil
}

// bySourceName finds the category by its untranslated name under parentID
// and backfills a missing external id on the extension.
func (r *Resolver) bySourceName(ctx context.Context, seg segment, parentID string) (string, error) {
	m, err := r.store.FindCategoryBySourceKey(ctx, catalog.SourceKey(seg.source), parentID)
	if err != nil {
		return "", eris.Wrap(err, "category: lookup by source name")
	}
	if m == nil {
		return "", nil
	}

	switch {
	case seg.externalID == "" || m.Extension.ExternalID == seg.externalID:
	case m.Extension.ExternalID == "":
		ext := m.Extension
		ext.ExternalID = seg.externalID
		if err := r.store.UpdateExtension(ctx, &ext); err != nil {
			zap.L().Warn("category: external id backfill failed",
				zap.String("category_id", m.Category.ID),
				zap.String("external_id", seg.externalID),
				zap.Error(err),
			)
		}
	default:
		// Stored ids are never overwritten.
		zap.L().Warn("category: source external id differs from stored id",
			zap.String("category_id", m.Category.ID),
			zap.String("stored_external_id", m.Extension.ExternalID),
			zap.String("external_id", seg.externalID),
		)
	}
	return m.Category.ID, nil
}

func (r *Resolver) create(ctx context.Context, seg segment, parentID string) (string, error) {
	log := zap.L().With(zap.String("category_path", seg.path), zap.String("parent_id", parentID))

	c, err := r.store.CreateCategory(ctx, seg.display, parentID)
	if err != nil {
		if !eris.Is(err, catalog.ErrDuplicate) {
			return "", eris.Wrapf(err, "category: create %q", seg.display)
		}
		log.Info("category: create conflict, retrying lookup", zap.String("name", seg.display))
		return r.settleConflict(ctx, seg, parentID, err)
	}

	ext := &model.CategoryExtension{
		CategoryID: c.ID,
		ParentID:   parentID,
		SourceName: seg.source,
		SourceKey:  catalog.SourceKey(seg.source),
		ExternalID: seg.externalID,
	}
	if r.describer != nil {
		ext.SEODescription = r.describer.DescribeCategory(ctx, seg.path)
	}
	if err := r.store.CreateExtension(ctx, ext); err != nil {
		// The category exists either way; a lost extension only weakens dedup.
		log.Warn("category: create extension failed", zap.String("category_id", c.ID), zap.Error(err))
	}

	log.Info("category: created", zap.String("category_id", c.ID), zap.String("name", c.Name))
	return c.ID, nil
}

// settleConflict runs after another writer created a sibling with the same
// name. The source-name lookup is retried once; failing that a sibling with
// the same display name is adopted.
func (r *Resolver) settleConflict(ctx context.Context, seg segment, parentID string, cause error) (string, error) {
	id, err := r.bySourceName(ctx, seg, parentID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	siblings, err := r.store.ListCategories(ctx, seg.display, parentID)
	if err != nil {
		return "", eris.Wrap(err, "category: list siblings")
	}
	if len(siblings) > 0 {
		return siblings[0].ID, nil
	}
	return "", model.NewError(model.KindCategoryCreateConflict, "category: resolve "+seg.path, cause)
}
