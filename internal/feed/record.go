package feed

import (
	"sort"
	"strconv"
	"strings"
)

// Record is one product entry in a feed.
type Record struct {
	node *Node
}

// NewRecord wraps a product element.
func NewRecord(n *Node) Record {
	return Record{node: n}
}

// Node exposes the underlying element.
func (r Record) Node() *Node { return r.node }

// Ref is a category or brand reference. Name may be a "/"-delimited path.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Resolved reports whether both id and name are present.
func (r Ref) Resolved() bool { return r.ID != "" && r.Name != "" }

// Size is one entry of a product's size list.
type Size struct {
	ID       string
	SKU      string
	Barcode  string
	Weight   *float64
	Stock    *int
	PriceNet *float64
}

// Parameter is a free-form key/value pair from the parameter list.
type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Image is one picture with its storefront ordering priority.
type Image struct {
	URL      string
	Priority int
}

// Prices carries the price and recommended retail price groups.
type Prices struct {
	Net              *float64
	Gross            *float64
	RecommendedNet   *float64
	RecommendedGross *float64
}

var (
	idAccessor = FirstOf(AttrValue("id"), ChildValue("id"))
	// refName tolerates <category name="..."/>, localized <name> children and bare text.
	refNameAccessor = func(langs []string) Accessor {
		return FirstOf(AttrValue("name"), Localized("name", langs), PlainText)
	}
)

// ID returns the product's external id.
func (r Record) ID() string {
	v, _ := idAccessor(r.node)
	return v
}

// Name returns the product name in the first available preferred language.
func (r Record) Name(langs []string) string {
	v, _ := FirstOf(
		func(n *Node) (string, bool) { return Localized("name", langs)(n.Child("description")) },
		Localized("name", langs),
		AttrValue("name"),
	)(r.node)
	return v
}

// Description returns the long product description, falling back to the short one.
func (r Record) Description(langs []string) string {
	desc := r.node.Child("description")
	v, _ := FirstOf(
		func(*Node) (string, bool) { return Localized("long_desc", langs)(desc) },
		func(*Node) (string, bool) { return Localized("short_desc", langs)(desc) },
		func(*Node) (string, bool) {
			if desc == nil || desc.Child("name") != nil {
				return "", false
			}
			return PlainText(desc)
		},
	)(r.node)
	return v
}

// ShortDescription returns the short description when the feed carries one.
func (r Record) ShortDescription(langs []string) string {
	v, _ := Localized("short_desc", langs)(r.node.Child("description"))
	return v
}

func (r Record) ref(langs []string, names ...string) Ref {
	for _, name := range names {
		n := r.node.Child(name)
		if n == nil {
			continue
		}
		id, _ := idAccessor(n)
		nm, _ := refNameAccessor(langs)(n)
		return Ref{ID: id, Name: nm}
	}
	return Ref{}
}

// Category returns the category reference.
func (r Record) Category(langs ...string) Ref {
	return r.ref(langs, "category")
}

// Brand returns the producer reference.
func (r Record) Brand(langs ...string) Ref {
	return r.ref(langs, "producer", "brand")
}

// Warranty returns the warranty description, if any.
func (r Record) Warranty() string {
	w := r.node.Child("warranty")
	if w == nil {
		return ""
	}
	v, _ := FirstOf(AttrValue("name"), AttrValue("period"), PlainText)(w)
	return v
}

// Sizes returns the size list in feed order.
func (r Record) Sizes() []Size {
	var out []Size
	for _, s := range r.node.Path("sizes").ChildrenNamed("size") {
		id, _ := AttrValue("id")(s)
		sku, _ := FirstOf(AttrValue("code"), ChildValue("code"))(s)
		barcode, _ := FirstOf(AttrValue("code_producer"), AttrValue("code_external"), AttrValue("ean"))(s)
		size := Size{
			ID:      id,
			SKU:     sku,
			Barcode: barcode,
			Weight:  numberAttr(s, "weight"),
			Stock:   stockOf(s),
		}
		if p := s.Child("price"); p != nil {
			size.PriceNet = numberAttr(p, "net")
		}
		out = append(out, size)
	}
	return out
}

func stockOf(size *Node) *int {
	stocks := size.ChildrenNamed("stock")
	if len(stocks) == 0 {
		return nil
	}
	total := 0
	found := false
	for _, st := range stocks {
		v, ok := st.Attr("quantity")
		if !ok {
			continue
		}
		q, ok := parseNumber(v)
		if !ok {
			continue
		}
		total += int(q)
		found = true
	}
	if !found {
		return nil
	}
	return &total
}

// Stock sums per-size stock quantities. Nil when no size reports stock.
func (r Record) Stock() *int {
	var total int
	found := false
	for _, s := range r.Sizes() {
		if s.Stock != nil {
			total += *s.Stock
			found = true
		}
	}
	if !found {
		return nil
	}
	return &total
}

// Parameters returns the parameter list with localized names and values.
func (r Record) Parameters(langs ...string) []Parameter {
	var out []Parameter
	for _, p := range r.node.Path("parameters").ChildrenNamed("parameter") {
		name, _ := refNameAccessor(langs)(p)
		if name == "" {
			continue
		}
		var values []string
		for _, v := range p.ChildrenNamed("value") {
			if val, ok := FirstOf(AttrValue("name"), AttrValue("value"), Localized("name", langs), PlainText)(v); ok {
				values = append(values, val)
			}
		}
		if len(values) == 0 {
			if val, ok := AttrValue("value")(p); ok {
				values = append(values, val)
			}
		}
		out = append(out, Parameter{Name: name, Value: strings.Join(values, ", ")})
	}
	return out
}

// Images returns the best available image group sorted by ascending priority.
// It prefers "originals", then a namespace-qualified originals group, then "large".
func (r Record) Images() []Image {
	group := imageGroup(r.node.Child("images"))
	if group == nil {
		return nil
	}
	var out []Image
	for _, img := range group.ChildrenNamed("image") {
		url, ok := FirstOf(AttrValue("url"), AttrValue("src"), PlainText)(img)
		if !ok {
			continue
		}
		prio := 0
		if v, ok := img.Attr("priority"); ok {
			if p, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				prio = p
			}
		}
		out = append(out, Image{URL: url, Priority: prio})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func imageGroup(images *Node) *Node {
	if images == nil {
		return nil
	}
	for _, c := range images.Children {
		if c.Name.Local == "originals" && c.Name.Space == "" {
			return c
		}
	}
	for _, c := range images.Children {
		if c.Name.Local == "originals" || strings.HasSuffix(c.Name.Local, ":originals") {
			return c
		}
	}
	return images.Child("large")
}

// Prices returns the price and srp groups.
func (r Record) Prices() Prices {
	var p Prices
	if n := r.node.Child("price"); n != nil {
		p.Net = numberAttr(n, "net")
		p.Gross = numberAttr(n, "gross")
	}
	if n := r.node.Child("srp"); n != nil {
		p.RecommendedNet = numberAttr(n, "net")
		p.RecommendedGross = numberAttr(n, "gross")
	}
	return p
}
