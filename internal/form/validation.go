package form

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"catalog-admin/internal/catalog"
	"catalog-admin/internal/domain"

	"github.com/shopspring/decimal"
)

// Largest values the store columns hold: DECIMAL(12,2) and INTEGER
var (
	MaxPrice = decimal.RequireFromString("9999999999.99")
	MaxStock = math.MaxInt32
)

// ValidationError names the first field that failed validation
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ParsePrice reads a non-negative amount with at most two decimal places
func ParsePrice(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, invalid(field, "is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, invalid(field, "must be a number")
	}
	return d, checkPrice(field, d)
}

func checkPrice(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return invalid(field, "must not be negative")
	}
	if d.Exponent() < -2 && !d.Equal(d.Truncate(2)) {
		return invalid(field, "must have at most 2 decimal places")
	}
	if d.GreaterThan(MaxPrice) {
		return invalid(field, "must not exceed %s", MaxPrice.StringFixed(2))
	}
	return nil
}

func checkStock(field string, n int) error {
	if n < 0 {
		return invalid(field, "must not be negative")
	}
	if n > MaxStock {
		return invalid(field, "must not exceed %d", MaxStock)
	}
	return nil
}

// ParseStock reads a non-negative whole quantity
func ParseStock(field, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid(field, "is required")
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, invalid(field, "must not exceed %d", MaxStock)
		}
		return 0, invalid(field, "must be a whole number")
	}
	return n, checkStock(field, n)
}

// ValidateProduct checks a product against the schema and returns the first problem.
// Images are required only when creating.
func ValidateProduct(schema *catalog.Schema, p *domain.Product, creating bool) error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", "is required")
	}
	if strings.TrimSpace(p.SKU) == "" {
		return invalid("sku", "is required")
	}
	if strings.TrimSpace(p.Category) == "" {
		return invalid("category", "is required")
	}
	if !schema.HasCategory(p.Category) {
		return invalid("category", "unknown category %q", p.Category)
	}
	if err := checkPrice("price", p.Price); err != nil {
		return err
	}
	if err := checkStock("stock", p.Stock); err != nil {
		return err
	}
	if p.Status != "" && !p.Status.Valid() {
		return invalid("status", "must be active or inactive")
	}
	if creating && len(p.Images) == 0 {
		return invalid("images", "at least one image is required")
	}
	for i, img := range p.Images {
		if strings.TrimSpace(img.URL) == "" {
			return invalid(fmt.Sprintf("images[%d]", i), "url is required")
		}
	}
	for i, v := range p.Variations {
		field := fmt.Sprintf("variations[%d]", i)
		if err := checkPrice(field+".price", v.Price); err != nil {
			return err
		}
		if err := checkStock(field+".stock", v.Stock); err != nil {
			return err
		}
		if unknown := schema.UnknownAttributes(p.Category, v.Attributes); len(unknown) > 0 {
			return invalid(field+".attributes", "%s not defined for %s", strings.Join(unknown, ", "), p.Category)
		}
	}
	return nil
}

// OptionWarnings lists attribute values outside their allowed options, keyed by variation sku.
// These are advisory and never block a write.
func OptionWarnings(schema *catalog.Schema, p *domain.Product) map[string]map[string]string {
	warnings := make(map[string]map[string]string)
	for _, v := range p.Variations {
		if bad := schema.OptionViolations(v.Attributes); len(bad) > 0 {
			warnings[v.SKU] = bad
		}
	}
	return warnings
}
