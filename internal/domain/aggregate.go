package domain

import "github.com/shopspring/decimal"

// PriceRange is the effective price span of a product
type PriceRange struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// Single reports whether the range collapses to one value
func (r PriceRange) Single() bool {
	return r.Min.Equal(r.Max)
}

// String renders "79.99" or "79.99 - 89.99"
func (r PriceRange) String() string {
	if r.Single() {
		return r.Min.StringFixed(2)
	}
	return r.Min.StringFixed(2) + " - " + r.Max.StringFixed(2)
}

// TotalStock returns the authoritative stock figure for a product.
// Variation stocks win whenever variations exist.
func TotalStock(p *Product) int {
	if len(p.Variations) == 0 {
		return p.Stock
	}
	total := 0
	for _, v := range p.Variations {
		total += v.Stock
	}
	return total
}

// PriceRangeOf derives the price range from the variation set
func PriceRangeOf(p *Product) PriceRange {
	if len(p.Variations) == 0 {
		return PriceRange{Min: p.Price, Max: p.Price}
	}
	r := PriceRange{Min: p.Variations[0].Price, Max: p.Variations[0].Price}
	for _, v := range p.Variations[1:] {
		if v.Price.LessThan(r.Min) {
			r.Min = v.Price
		}
		if v.Price.GreaterThan(r.Max) {
			r.Max = v.Price
		}
	}
	return r
}

// Summary is a product enriched with its derived aggregates
type Summary struct {
	*Product
	TotalStock int        `json:"total_stock"`
	PriceRange PriceRange `json:"price_range"`
	PriceLabel string     `json:"price_label"`
}

// Summarize computes aggregates for presentation
func Summarize(p *Product) Summary {
	r := PriceRangeOf(p)
	return Summary{
		Product:    p,
		TotalStock: TotalStock(p),
		PriceRange: r,
		PriceLabel: r.String(),
	}
}
