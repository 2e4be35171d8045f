package view

import "catalog-admin/internal/domain"

// State is the list position of one dashboard session.
// Any filter change sends the session back to page 1.
type State struct {
	query Query
}

// NewState starts on page 1 with no filters
func NewState(pageSize int) *State {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return &State{query: Query{Category: AllCategories, Page: 1, PageSize: pageSize}}
}

// Query returns the current query
func (s *State) Query() Query {
	return s.query
}

func (s *State) SetSearch(term string) {
	if term == s.query.Search {
		return
	}
	s.query.Search = term
	s.query.Page = 1
}

func (s *State) SetCategory(category string) {
	if category == "" {
		category = AllCategories
	}
	if category == s.query.Category {
		return
	}
	s.query.Category = category
	s.query.Page = 1
}

// SetPage requests a page; Render clamps it
func (s *State) SetPage(page int) {
	s.query.Page = page
}

// Render applies the state to a collection and stores the clamped page
func (s *State) Render(products []*domain.Product) Page {
	page := Apply(products, s.query)
	s.query.Page = page.Page
	return page
}
