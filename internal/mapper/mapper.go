// Package mapper converts feed records into the catalog's product shape.
package mapper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-importer/internal/feed"
	"github.com/sells-group/catalog-importer/internal/model"
)

// Options controls how records are mapped.
type Options struct {
	// Langs is the preferred-language chain for names and descriptions.
	Langs []string
	// Status is the publication state given to mapped products.
	Status model.ProductStatus
	// Currency is the ISO code used for variant prices.
	Currency string
}

func (o Options) withDefaults() Options {
	if o.Status == "" {
		o.Status = model.ProductDraft
	}
	if o.Currency == "" {
		o.Currency = "pln"
	}
	return o
}

type physicalField int

const (
	fieldWeight physicalField = iota + 1
	fieldLength
	fieldWidth
	fieldHeight
	fieldHSCode
	fieldMaterial
	fieldWarranty
	fieldMIDCode
)

// parameterFields maps lowercased parameter names onto first-class fields.
var parameterFields = map[string]physicalField{
	"waga":           fieldWeight,
	"weight":         fieldWeight,
	"długość":        fieldLength,
	"dlugosc":        fieldLength,
	"length":         fieldLength,
	"szerokość":      fieldWidth,
	"szerokosc":      fieldWidth,
	"width":          fieldWidth,
	"wysokość":       fieldHeight,
	"wysokosc":       fieldHeight,
	"height":         fieldHeight,
	"kod hs":         fieldHSCode,
	"hs code":        fieldHSCode,
	"hs":             fieldHSCode,
	"materiał":       fieldMaterial,
	"material":       fieldMaterial,
	"gwarancja":      fieldWarranty,
	"warranty":       fieldWarranty,
	"kod mid":        fieldMIDCode,
	"mid code":       fieldMIDCode,
	"kraj produkcji": fieldMIDCode,
}

var numberRe = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

func parseMeasure(s string) *float64 {
	m := numberRe.FindString(s)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64)
	if err != nil {
		return nil
	}
	return &f
}

// Map converts one record. The only failure is a record without an external id.
func Map(rec feed.Record, opts Options) (*model.MappedProduct, error) {
	opts = opts.withDefaults()

	id := rec.ID()
	if id == "" {
		return nil, model.NewError(model.KindMappingError, "mapper.map", eris.New("record has no external id"))
	}
	handle := Slug(id)
	if handle == "" {
		return nil, model.NewError(model.KindMappingError, "mapper.map", eris.Errorf("external id %q yields an empty handle", id))
	}

	title := strings.TrimSpace(rec.Name(opts.Langs))
	if title == "" {
		title = model.PlaceholderProductTitle
	}

	p := &model.MappedProduct{
		ExternalID:  id,
		Title:       title,
		Description: rec.Description(opts.Langs),
		Handle:      handle,
		Status:      opts.Status,
		Metadata:    map[string]any{model.MetaExternalID: id},
	}
	p.SetMeta(model.MetaOriginalTitle, title)

	cat := rec.Category(opts.Langs...)
	if cat.ID != "" {
		p.SetMeta(model.MetaSourceCategoryID, cat.ID)
	}
	if cat.Name != "" {
		p.SetMeta(model.MetaSourceCategoryName, cat.Name)
	}
	p.CategorySourcePath = cat.Name
	p.CategoryExternalID = cat.ID

	brand := rec.Brand(opts.Langs...)
	if brand.ID != "" {
		p.SetMeta(model.MetaProducerID, brand.ID)
	}
	if brand.Name != "" {
		p.SetMeta(model.MetaProducerName, brand.Name)
	}
	if short := rec.ShortDescription(opts.Langs); short != "" {
		p.SetMeta(model.MetaShortDescription, short)
	}
	if w := rec.Warranty(); w != "" {
		p.SetMeta(model.MetaWarranty, w)
	}

	for _, img := range rec.Images() {
		p.Images = append(p.Images, img.URL)
	}
	if len(p.Images) > 0 {
		p.Thumbnail = p.Images[0]
	}

	applyParameters(p, rec.Parameters(opts.Langs...))
	p.Options = []model.ProductOption{{Title: model.DefaultOptionTitle, Values: []string{model.DefaultOptionValue}}}
	p.Variants = []model.ProductVariant{defaultVariant(rec, p, opts)}
	return p, nil
}

func applyParameters(p *model.MappedProduct, params []feed.Parameter) {
	if len(params) == 0 {
		return
	}
	kept := make([]map[string]string, 0, len(params))
	for _, prm := range params {
		kept = append(kept, map[string]string{"name": prm.Name, "value": prm.Value})

		field, ok := parameterFields[strings.ToLower(strings.TrimSpace(prm.Name))]
		if !ok {
			continue
		}
		switch field {
		case fieldWeight:
			if p.Weight == nil {
				p.Weight = parseMeasure(prm.Value)
			}
		case fieldLength:
			p.Length = parseMeasure(prm.Value)
		case fieldWidth:
			p.Width = parseMeasure(prm.Value)
		case fieldHeight:
			p.Height = parseMeasure(prm.Value)
		case fieldHSCode:
			p.HSCode = prm.Value
		case fieldMaterial:
			p.Material = prm.Value
		case fieldWarranty:
			if p.MetaString(model.MetaWarranty) == "" {
				p.SetMeta(model.MetaWarranty, prm.Value)
			}
		case fieldMIDCode:
			p.MIDCode = prm.Value
		}
	}
	p.SetMeta(model.MetaParameters, kept)
}

func defaultVariant(rec feed.Record, p *model.MappedProduct, opts Options) model.ProductVariant {
	v := model.ProductVariant{
		Title:   model.DefaultVariantTitle,
		Options: map[string]string{model.DefaultOptionTitle: model.DefaultOptionValue},
	}

	sizes := rec.Sizes()
	if len(sizes) > 0 {
		first := sizes[0]
		v.SKU = first.SKU
		v.Barcode = first.Barcode
		v.Weight = first.Weight
		if p.Weight == nil {
			p.Weight = first.Weight
		}
		if len(sizes) > 1 {
			meta := make([]map[string]any, 0, len(sizes))
			for _, s := range sizes {
				entry := map[string]any{"id": s.ID, "sku": s.SKU, "barcode": s.Barcode}
				if s.Stock != nil {
					entry["stock"] = *s.Stock
				}
				meta = append(meta, entry)
			}
			p.SetMeta(model.MetaSizes, meta)
		}
	}
	if stock := rec.Stock(); stock != nil {
		v.ManageInventory = true
		v.InventoryQuantity = *stock
	}

	prices := rec.Prices()
	update := model.PriceUpdate{
		ExternalID:       p.ExternalID,
		CostNet:          prices.Net,
		CostGross:        prices.Gross,
		RecommendedNet:   prices.RecommendedNet,
		RecommendedGross: prices.RecommendedGross,
	}
	if amount, ok := update.CustomerPrice(); ok {
		v.Prices = []model.Price{{Amount: amount, CurrencyCode: opts.Currency}}
	}
	if meta := update.CostMetadata(); len(meta) > 0 {
		v.Metadata = meta
	}
	return v
}

// PriceUpdateFrom builds the price sync view of a record.
func PriceUpdateFrom(rec feed.Record) model.PriceUpdate {
	prices := rec.Prices()
	return model.PriceUpdate{
		ExternalID:       rec.ID(),
		CostNet:          prices.Net,
		CostGross:        prices.Gross,
		RecommendedNet:   prices.RecommendedNet,
		RecommendedGross: prices.RecommendedGross,
		Stock:            rec.Stock(),
	}
}
