package view

import (
	"strings"

	"catalog-admin/internal/domain"
)

// AllCategories disables the category filter
const AllCategories = "all"

// DefaultPageSize is the dashboard's list page size
const DefaultPageSize = 5

// Query selects one page of the filtered catalog
type Query struct {
	Search   string `json:"search"`
	Category string `json:"category"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// Page is a window over the filtered catalog
type Page struct {
	Items      []*domain.Product `json:"items"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalItems int               `json:"total_items"`
	TotalPages int               `json:"total_pages"`
}

// Matches reports whether a product passes the search and category filters.
// Search is a case-insensitive substring test on name or sku; the term is
// used as typed, surrounding spaces included.
func Matches(p *domain.Product, search, category string) bool {
	if category != "" && category != AllCategories && p.Category != category {
		return false
	}
	term := strings.ToLower(search)
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Name), term) ||
		strings.Contains(strings.ToLower(p.SKU), term)
}

// Filter keeps matching products in their original order
func Filter(products []*domain.Product, search, category string) []*domain.Product {
	out := make([]*domain.Product, 0, len(products))
	for _, p := range products {
		if Matches(p, search, category) {
			out = append(out, p)
		}
	}
	return out
}

// TotalPages is ceil(n/size), zero for an empty collection
func TotalPages(n, size int) int {
	if size < 1 || n <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// ClampPage bounds page to [1, totalPages], or 1 when there are no pages
func ClampPage(page, totalPages int) int {
	if totalPages < 1 || page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// Paginate slices the window for the requested page
func Paginate(items []*domain.Product, page, size int) Page {
	if size < 1 {
		size = DefaultPageSize
	}
	total := TotalPages(len(items), size)
	page = ClampPage(page, total)

	start := (page - 1) * size
	end := start + size
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	window := items[start:end]
	if window == nil {
		window = []*domain.Product{}
	}

	return Page{
		Items:      window,
		Page:       page,
		PageSize:   size,
		TotalItems: len(items),
		TotalPages: total,
	}
}

// Apply filters then paginates
func Apply(products []*domain.Product, q Query) Page {
	return Paginate(Filter(products, q.Search, q.Category), q.Page, q.PageSize)
}
