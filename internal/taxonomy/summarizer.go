// Package taxonomy builds the preview summary of a feed's categories and brands.
package taxonomy

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/catalog-importer/internal/feed"
	"github.com/sells-group/catalog-importer/internal/model"
)

type facet struct {
	name  string
	count int
	order int
}

// Summarizer accumulates facet counts one record at a time so a preview
// never needs the full record list in memory.
type Summarizer struct {
	langs      []string
	categories map[string]*facet
	brands     map[string]*facet
	brandCats  map[string]map[string]struct{}
	total      int
}

// NewSummarizer returns an empty summarizer resolving names in the given languages.
func NewSummarizer(langs []string) *Summarizer {
	return &Summarizer{
		langs:      langs,
		categories: make(map[string]*facet),
		brands:     make(map[string]*facet),
		brandCats:  make(map[string]map[string]struct{}),
	}
}

// Add folds one record into the summary.
func (s *Summarizer) Add(rec feed.Record) {
	s.total++

	cat := rec.Category(s.langs...)
	brand := rec.Brand(s.langs...)

	s.count(s.categories, cat, "category", rec.ID())
	s.count(s.brands, brand, "brand", rec.ID())

	if cat.ID != "" && brand.ID != "" {
		set, ok := s.brandCats[brand.ID]
		if !ok {
			set = make(map[string]struct{})
			s.brandCats[brand.ID] = set
		}
		set[cat.ID] = struct{}{}
	}
}

func (s *Summarizer) count(into map[string]*facet, ref feed.Ref, kind, productID string) {
	if ref.ID == "" && ref.Name == "" {
		return
	}
	if !ref.Resolved() {
		zap.L().Debug("taxonomy: dropping unresolved reference",
			zap.String("kind", kind),
			zap.String("id", ref.ID),
			zap.String("name", ref.Name),
			zap.String("product_id", productID),
		)
		return
	}
	f, ok := into[ref.ID]
	if !ok {
		f = &facet{name: ref.Name, order: len(into)}
		into[ref.ID] = f
	}
	f.count++
}

// Summary returns the accumulated summary, facets sorted by descending
// count with ties in first-seen order.
func (s *Summarizer) Summary() *model.TaxonomySummary {
	out := &model.TaxonomySummary{
		Categories:      sorted(s.categories),
		Brands:          sorted(s.brands),
		TotalProducts:   s.total,
		BrandCategories: make(map[string][]string, len(s.brandCats)),
	}
	for brandID, set := range s.brandCats {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out.BrandCategories[brandID] = ids
	}
	return out
}

func sorted(m map[string]*facet) []model.FacetCount {
	type entry struct {
		id string
		*facet
	}
	entries := make([]entry, 0, len(m))
	for id, f := range m {
		entries = append(entries, entry{id: id, facet: f})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].order < entries[j].order
	})
	out := make([]model.FacetCount, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.FacetCount{ID: e.id, Name: e.name, Count: e.count})
	}
	return out
}

// Summarize builds a summary over a record slice.
func Summarize(records []feed.Record, langs []string) *model.TaxonomySummary {
	s := NewSummarizer(langs)
	for _, r := range records {
		s.Add(r)
	}
	return s.Summary()
}
