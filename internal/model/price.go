package model

// PriceUpdate is one product's price and stock from the light price feed.
type PriceUpdate struct {
	ExternalID       string
	CostNet          *float64
	CostGross        *float64
	RecommendedNet   *float64
	RecommendedGross *float64
	Stock            *int
}

// CostPrice returns the net cost price, falling back to gross.
func (u PriceUpdate) CostPrice() *float64 {
	if u.CostNet != nil {
		return u.CostNet
	}
	return u.CostGross
}

// RecommendedPrice returns the net recommended retail price, falling back to gross.
func (u PriceUpdate) RecommendedPrice() *float64 {
	if u.RecommendedNet != nil {
		return u.RecommendedNet
	}
	return u.RecommendedGross
}

// CustomerPrice is the storefront price: recommended if known, else cost.
func (u PriceUpdate) CustomerPrice() (float64, bool) {
	if p := u.RecommendedPrice(); p != nil {
		return *p, true
	}
	if p := u.CostPrice(); p != nil {
		return *p, true
	}
	return 0, false
}

// CostMetadata returns the variant metadata recorded for margin reporting.
func (u PriceUpdate) CostMetadata() map[string]any {
	out := make(map[string]any, 4)
	put := func(k string, v *float64) {
		if v != nil {
			out[k] = *v
		}
	}
	put(MetaCostPriceNet, u.CostNet)
	put(MetaCostPriceGross, u.CostGross)
	put(MetaRecommendedNet, u.RecommendedNet)
	put(MetaRecommendedGross, u.RecommendedGross)
	return out
}
