package form

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"catalog-admin/internal/catalog"
	"catalog-admin/internal/domain"
)

var ErrNoSuchVariation = errors.New("no such variation")

// VariationDraft holds a variation as typed by the user
type VariationDraft struct {
	SKU        string            `json:"sku"`
	Price      string            `json:"price"`
	Stock      string            `json:"stock"`
	Attributes map[string]string `json:"attributes"`
}

// Draft is an unsaved product edit
type Draft struct {
	Name        string           `json:"name"`
	SKU         string           `json:"sku"`
	Category    string           `json:"category"`
	Price       string           `json:"price"`
	Stock       string           `json:"stock"`
	Status      domain.Status    `json:"status"`
	Description string           `json:"description"`
	Images      []string         `json:"images"`
	Variations  []VariationDraft `json:"variations"`
}

// Submitter persists a validated product
type Submitter interface {
	Create(ctx context.Context, p *domain.Product) (*domain.Product, error)
	Update(ctx context.Context, id string, p *domain.Product) (*domain.Product, error)
}

// Form edits a draft against the category schema
type Form struct {
	schema *catalog.Schema
	id     string
	draft  Draft
}

// New starts a form. A nil base starts a new product, otherwise base is edited.
func New(schema *catalog.Schema, base *domain.Product) *Form {
	f := &Form{
		schema: schema,
		draft:  Draft{Price: "0", Stock: "0", Status: domain.StatusActive},
	}
	if base != nil {
		f.id = base.ID
		f.draft = DraftFrom(base)
	}
	return f
}

// FromDraft resumes a form from a posted draft
func FromDraft(schema *catalog.Schema, id string, d Draft) *Form {
	f := &Form{schema: schema, id: id, draft: d}
	f.draft.Images = append([]string(nil), d.Images...)
	f.draft.Variations = make([]VariationDraft, len(d.Variations))
	for i, v := range d.Variations {
		f.draft.Variations[i] = v.clone()
	}
	return f
}

// DraftFrom renders a stored product as an editable draft
func DraftFrom(p *domain.Product) Draft {
	d := Draft{
		Name:        p.Name,
		SKU:         p.SKU,
		Category:    p.Category,
		Price:       p.Price.StringFixed(2),
		Stock:       strconv.Itoa(p.Stock),
		Status:      p.Status,
		Description: p.Description,
		Images:      p.ImageURLs(),
		Variations:  make([]VariationDraft, 0, len(p.Variations)),
	}
	for _, v := range p.Variations {
		d.Variations = append(d.Variations, VariationDraft{
			SKU:        v.SKU,
			Price:      v.Price.StringFixed(2),
			Stock:      strconv.Itoa(v.Stock),
			Attributes: v.Clone().Attributes,
		})
	}
	return d
}

func (v VariationDraft) clone() VariationDraft {
	attrs := make(map[string]string, len(v.Attributes))
	for k, val := range v.Attributes {
		attrs[k] = val
	}
	v.Attributes = attrs
	return v
}

// Editing reports whether the form edits an existing product
func (f *Form) Editing() bool {
	return f.id != ""
}

// Draft returns a copy of the current draft
func (f *Form) Draft() Draft {
	return FromDraft(f.schema, f.id, f.draft).draft
}

func (f *Form) SetName(v string)          { f.draft.Name = v }
func (f *Form) SetSKU(v string)           { f.draft.SKU = v }
func (f *Form) SetPrice(v string)         { f.draft.Price = v }
func (f *Form) SetStock(v string)         { f.draft.Stock = v }
func (f *Form) SetDescription(v string)   { f.draft.Description = v }
func (f *Form) SetStatus(v domain.Status) { f.draft.Status = v }

// SetImages replaces the image list; order defines display order
func (f *Form) SetImages(urls []string) {
	f.draft.Images = append([]string(nil), urls...)
}

// SelectCategory switches category. A different category drops all
// variations since their attribute keys belong to the old category.
func (f *Form) SelectCategory(category string) {
	if category == f.draft.Category {
		return
	}
	f.draft.Category = category
	f.draft.Variations = nil
}

// AddVariation appends a variation seeded from the base price with zero stock
func (f *Form) AddVariation() VariationDraft {
	attrs := make(map[string]string)
	for _, a := range f.schema.AttributesFor(f.draft.Category) {
		attrs[a] = ""
	}
	v := VariationDraft{
		SKU:        fmt.Sprintf("%s-VAR-%d", f.draft.SKU, len(f.draft.Variations)+1),
		Price:      f.draft.Price,
		Stock:      "0",
		Attributes: attrs,
	}
	f.draft.Variations = append(f.draft.Variations, v)
	return v.clone()
}

// UpdateVariation sets one field of one variation.
// field is sku, price, stock or an attribute of the selected category.
func (f *Form) UpdateVariation(index int, field, value string) error {
	if index < 0 || index >= len(f.draft.Variations) {
		return fmt.Errorf("%w: %d", ErrNoSuchVariation, index)
	}
	v := &f.draft.Variations[index]
	switch field {
	case "sku":
		v.SKU = value
	case "price":
		v.Price = value
	case "stock":
		v.Stock = value
	default:
		if unknown := f.schema.UnknownAttributes(f.draft.Category, map[string]string{field: value}); len(unknown) > 0 {
			return invalid(fmt.Sprintf("variations[%d].attributes", index), "%s not defined for %s", field, f.draft.Category)
		}
		if v.Attributes == nil {
			v.Attributes = make(map[string]string)
		}
		v.Attributes[field] = value
	}
	return nil
}

// RemoveVariation deletes the variation at index
func (f *Form) RemoveVariation(index int) error {
	if index < 0 || index >= len(f.draft.Variations) {
		return fmt.Errorf("%w: %d", ErrNoSuchVariation, index)
	}
	f.draft.Variations = append(f.draft.Variations[:index], f.draft.Variations[index+1:]...)
	return nil
}

// Build parses and validates the draft into a product ready for the repository
func (f *Form) Build() (*domain.Product, error) {
	d := f.draft
	p := &domain.Product{
		ID:          f.id,
		Name:        d.Name,
		SKU:         d.SKU,
		Category:    d.Category,
		Status:      d.Status,
		Description: d.Description,
		Images:      make([]domain.ProductImage, 0, len(d.Images)),
		Variations:  make([]domain.ProductVariation, 0, len(d.Variations)),
	}
	if p.Status == "" {
		p.Status = domain.StatusActive
	}

	// required scalars first so the reported field follows form order
	if err := ValidateProduct(f.schema, &domain.Product{Name: p.Name, SKU: p.SKU, Category: p.Category, Status: p.Status}, false); err != nil {
		return nil, err
	}

	var err error
	if p.Price, err = ParsePrice("price", d.Price); err != nil {
		return nil, err
	}
	if p.Stock, err = ParseStock("stock", d.Stock); err != nil {
		return nil, err
	}

	for i, url := range d.Images {
		p.Images = append(p.Images, domain.ProductImage{URL: url, DisplayOrder: i})
	}

	for i, v := range d.Variations {
		field := fmt.Sprintf("variations[%d]", i)
		price, err := ParsePrice(field+".price", v.Price)
		if err != nil {
			return nil, err
		}
		stock, err := ParseStock(field+".stock", v.Stock)
		if err != nil {
			return nil, err
		}
		p.Variations = append(p.Variations, domain.ProductVariation{
			SKU:        v.SKU,
			Price:      price,
			Stock:      stock,
			Attributes: v.clone().Attributes,
		})
	}

	if err := ValidateProduct(f.schema, p, !f.Editing()); err != nil {
		return nil, err
	}
	return p, nil
}

// Submit validates and hands the product to s. Nothing reaches s when validation fails.
func (f *Form) Submit(ctx context.Context, s Submitter) (*domain.Product, error) {
	p, err := f.Build()
	if err != nil {
		return nil, err
	}
	if f.Editing() {
		return s.Update(ctx, f.id, p)
	}
	return s.Create(ctx, p)
}
