// Package selection applies operator filters to feed records.
package selection

import (
	"github.com/sells-group/catalog-importer/internal/feed"
	"github.com/sells-group/catalog-importer/internal/model"
)

type set map[string]struct{}

func toSet(ids []string) set {
	if len(ids) == 0 {
		return nil
	}
	s := make(set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s set) has(id string) bool {
	_, ok := s[id]
	return ok
}

// Matcher returns a predicate implementing the selection policy:
// explicit product ids win and suppress the other filters; otherwise
// category and brand filters are ANDed. Empty filters do not constrain.
func Matcher(sel *model.Selection) func(feed.Record) bool {
	if sel.Empty() {
		return func(feed.Record) bool { return true }
	}

	if ids := toSet(sel.ProductIDs); ids != nil {
		return func(r feed.Record) bool {
			return ids.has(r.ID())
		}
	}

	cats := toSet(sel.Categories)
	brands := toSet(sel.Brands)
	return func(r feed.Record) bool {
		if cats != nil && !cats.has(r.Category().ID) {
			return false
		}
		if brands != nil && !brands.has(r.Brand().ID) {
			return false
		}
		return true
	}
}

// Filter returns the records matching sel, in input order.
func Filter(records []feed.Record, sel *model.Selection) []feed.Record {
	match := Matcher(sel)
	out := make([]feed.Record, 0, len(records))
	for _, r := range records {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}
