package catalog

import "sort"

// Schema is the immutable category and attribute reference data.
// Lookups on unknown keys return empty results instead of failing.
type Schema struct {
	categories []string
	attributes map[string][]string
	options    map[string][]string
}

// Category pairs a category name with its attribute names
type Category struct {
	Name       string   `json:"name"`
	Attributes []string `json:"attributes"`
}

// NewSchema builds a schema from ordered categories and lookup tables.
// Inputs are copied.
func NewSchema(categories []string, attributes map[string][]string, options map[string][]string) *Schema {
	s := &Schema{
		categories: append([]string(nil), categories...),
		attributes: make(map[string][]string, len(attributes)),
		options:    make(map[string][]string, len(options)),
	}
	for k, v := range attributes {
		s.attributes[k] = append([]string(nil), v...)
	}
	for k, v := range options {
		s.options[k] = append([]string(nil), v...)
	}
	return s
}

// Default returns the dashboard's built-in schema
func Default() *Schema {
	return NewSchema(
		[]string{
			"Electronics",
			"Clothing",
			"Shoes",
			"Accessories",
			"Home & Garden",
			"Sports & Outdoors",
			"Books",
			"Toys & Games",
			"Health & Beauty",
			"Food & Beverages",
		},
		map[string][]string{
			"Electronics":       {"color", "storage"},
			"Clothing":          {"size", "color"},
			"Shoes":             {"size", "color"},
			"Accessories":       {"color", "material"},
			"Home & Garden":     {"color", "material"},
			"Sports & Outdoors": {"size", "color"},
		},
		map[string][]string{
			"color":    {"Black", "White", "Silver", "Red", "Blue", "Green", "Gray"},
			"storage":  {"32GB", "64GB", "128GB", "256GB", "512GB", "1TB"},
			"size":     {"XS", "S", "M", "L", "XL", "XXL"},
			"material": {"Cotton", "Leather", "Metal", "Plastic", "Wood", "Glass"},
		},
	)
}

// Categories returns category names in display order
func (s *Schema) Categories() []string {
	return append([]string(nil), s.categories...)
}

// HasCategory reports whether name is a known category
func (s *Schema) HasCategory(name string) bool {
	for _, c := range s.categories {
		if c == name {
			return true
		}
	}
	return false
}

// AttributesFor returns the attribute names of a category
func (s *Schema) AttributesFor(category string) []string {
	return append([]string{}, s.attributes[category]...)
}

// OptionsFor returns allowed values for an attribute
func (s *Schema) OptionsFor(attribute string) []string {
	return append([]string{}, s.options[attribute]...)
}

// Describe lists every category with its attributes
func (s *Schema) Describe() []Category {
	out := make([]Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, Category{Name: c, Attributes: s.AttributesFor(c)})
	}
	return out
}

// UnknownAttributes returns keys of attrs that the category does not define, sorted
func (s *Schema) UnknownAttributes(category string, attrs map[string]string) []string {
	allowed := make(map[string]struct{})
	for _, a := range s.attributes[category] {
		allowed[a] = struct{}{}
	}
	var unknown []string
	for k := range attrs {
		if _, ok := allowed[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// OptionViolations returns attributes whose non-empty value is outside the allowed options.
// Unconstrained attributes never violate.
func (s *Schema) OptionViolations(attrs map[string]string) map[string]string {
	violations := make(map[string]string)
	for k, v := range attrs {
		opts := s.options[k]
		if v == "" || len(opts) == 0 {
			continue
		}
		found := false
		for _, o := range opts {
			if o == v {
				found = true
				break
			}
		}
		if !found {
			violations[k] = v
		}
	}
	return violations
}
