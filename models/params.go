// Package models defines the canonical data structures shared by the
// search and refresh components.
package models

import (
	"fmt"
	"strings"
)

// ListingType is the listing intent of a search.
type ListingType string

const (
	ListingRent ListingType = "rent"
	ListingBuy  ListingType = "buy"
)

// PropertyType is a structural property category.
type PropertyType string

const (
	PropertyApartment PropertyType = "apartment"
	PropertyHouse     PropertyType = "house"
	PropertyTownhouse PropertyType = "townhouse"
)

// PropertyTypes are the concrete types an unconstrained search expands into.
var PropertyTypes = []PropertyType{PropertyApartment, PropertyHouse, PropertyTownhouse}

// ParsePropertyType maps a free-text type (including common synonyms) onto a
// known PropertyType.
func ParsePropertyType(text string) (PropertyType, bool) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "apartment", "unit", "flat", "studio", "apartments", "units":
		return PropertyApartment, true
	case "house", "houses", "home", "villa", "duplex":
		return PropertyHouse, true
	case "townhouse", "townhouses", "terrace", "semi-detached":
		return PropertyTownhouse, true
	default:
		return "", false
	}
}

// SortKey selects result ordering.
type SortKey string

const (
	SortRelevance SortKey = "relevance"
	SortPriceAsc  SortKey = "price-asc"
	SortPriceDesc SortKey = "price-desc"
	SortNewest    SortKey = "newest"
)

// ValidSort reports whether s is a known sort key.
func ValidSort(s SortKey) bool {
	switch s {
	case SortRelevance, SortPriceAsc, SortPriceDesc, SortNewest:
		return true
	}
	return false
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Range is an inclusive integer range with optional bounds.
type Range struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// IsZero reports whether neither bound is set.
func (r Range) IsZero() bool {
	return r.Min == nil && r.Max == nil
}

// Contains reports whether v satisfies both bounds.
func (r Range) Contains(v int) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// Equal compares bound values rather than pointers.
func (r Range) Equal(o Range) bool {
	return intPtrEqual(r.Min, o.Min) && intPtrEqual(r.Max, o.Max)
}

func (r Range) validate(field string) error {
	if r.Min != nil && *r.Min < 0 {
		return &ValidationError{Field: field, Reason: "minimum cannot be negative"}
	}
	if r.Max != nil && *r.Max < 0 {
		return &ValidationError{Field: field, Reason: "maximum cannot be negative"}
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("minimum %d exceeds maximum %d", *r.Min, *r.Max)}
	}
	return nil
}

// A zero minimum constrains nothing, so it is dropped.
func (r Range) normalized() Range {
	out := Range{}
	if r.Min != nil && *r.Min > 0 {
		out.Min = IntPtr(*r.Min)
	}
	if r.Max != nil {
		out.Max = IntPtr(*r.Max)
	}
	return out
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// SearchParams describes one search request. It is treated as an immutable
// value: helpers return modified copies.
type SearchParams struct {
	ListingType  ListingType  `json:"listing_type"`
	Suburb       string       `json:"suburb"`
	State        string       `json:"state"`
	Postcode     string       `json:"postcode"`
	PropertyType PropertyType `json:"property_type,omitempty"`
	Bedrooms     Range        `json:"bedrooms"`
	Bathrooms    Range        `json:"bathrooms"`
	Price        Range        `json:"price"`
	Parking      *int         `json:"parking,omitempty"`
	Sort         SortKey      `json:"sort,omitempty"`
	Page         int          `json:"page,omitempty"`
	PageSize     int          `json:"page_size,omitempty"`
}

// ValidationError reports a malformed search parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks that the parameters describe a searchable request.
func (p SearchParams) Validate() error {
	switch ListingType(strings.ToLower(string(p.ListingType))) {
	case ListingRent, ListingBuy:
	default:
		return &ValidationError{Field: "listing_type", Reason: fmt.Sprintf("must be rent or buy, got %q", p.ListingType)}
	}

	if Slugify(p.Suburb) == "" {
		return &ValidationError{Field: "suburb", Reason: "suburb is required"}
	}
	if !ValidState(p.State) {
		return &ValidationError{Field: "state", Reason: fmt.Sprintf("unknown state %q", p.State)}
	}
	if !ValidPostcode(strings.TrimSpace(p.Postcode)) {
		return &ValidationError{Field: "postcode", Reason: "postcode must be 4 digits"}
	}

	if p.PropertyType != "" {
		if _, ok := ParsePropertyType(string(p.PropertyType)); !ok {
			return &ValidationError{Field: "property_type", Reason: fmt.Sprintf("unknown property type %q", p.PropertyType)}
		}
	}

	if err := p.Bedrooms.validate("bedrooms"); err != nil {
		return err
	}
	if err := p.Bathrooms.validate("bathrooms"); err != nil {
		return err
	}
	if err := p.Price.validate("price"); err != nil {
		return err
	}
	if p.Parking != nil && *p.Parking < 0 {
		return &ValidationError{Field: "parking", Reason: "minimum cannot be negative"}
	}

	if p.Sort != "" && !ValidSort(SortKey(strings.ToLower(string(p.Sort)))) {
		return &ValidationError{Field: "sort", Reason: fmt.Sprintf("unknown sort %q", p.Sort)}
	}
	if p.Page < 0 {
		return &ValidationError{Field: "page", Reason: "page cannot be negative"}
	}
	if p.PageSize < 0 || p.PageSize > MaxPageSize {
		return &ValidationError{Field: "page_size", Reason: fmt.Sprintf("page size must be between 1 and %d", MaxPageSize)}
	}
	return nil
}

// Normalized returns the canonical form of p: canonical suburb spelling,
// upper-case state, synonym-free property type, dropped zero minimums and
// default paging and sort.
func (p SearchParams) Normalized() SearchParams {
	out := p
	out.ListingType = ListingType(strings.ToLower(strings.TrimSpace(string(p.ListingType))))
	out.Suburb = CanonicalSuburb(p.Suburb)
	out.State = strings.ToUpper(strings.TrimSpace(p.State))
	out.Postcode = strings.TrimSpace(p.Postcode)
	if p.PropertyType != "" {
		if pt, ok := ParsePropertyType(string(p.PropertyType)); ok {
			out.PropertyType = pt
		}
	}
	out.Bedrooms = p.Bedrooms.normalized()
	out.Bathrooms = p.Bathrooms.normalized()
	out.Price = p.Price.normalized()
	out.Parking = nil
	if p.Parking != nil && *p.Parking > 0 {
		out.Parking = IntPtr(*p.Parking)
	}
	out.Sort = SortKey(strings.ToLower(strings.TrimSpace(string(p.Sort))))
	if out.Sort == "" {
		out.Sort = SortRelevance
	}
	if out.Page <= 0 {
		out.Page = 1
	}
	if out.PageSize <= 0 {
		out.PageSize = DefaultPageSize
	}
	return out
}

// WithPropertyType returns a copy of p constrained to t.
func (p SearchParams) WithPropertyType(t PropertyType) SearchParams {
	p.PropertyType = t
	return p
}

// Offset is the zero-based index of the first record on the page.
func (p SearchParams) Offset() int {
	n := p.Normalized()
	return (n.Page - 1) * n.PageSize
}

// Equal compares two parameter sets by value.
func (p SearchParams) Equal(o SearchParams) bool {
	return p.ListingType == o.ListingType &&
		p.Suburb == o.Suburb &&
		p.State == o.State &&
		p.Postcode == o.Postcode &&
		p.PropertyType == o.PropertyType &&
		p.Bedrooms.Equal(o.Bedrooms) &&
		p.Bathrooms.Equal(o.Bathrooms) &&
		p.Price.Equal(o.Price) &&
		intPtrEqual(p.Parking, o.Parking) &&
		p.Sort == o.Sort &&
		p.Page == o.Page &&
		p.PageSize == o.PageSize
}

// Location returns the location triple of p.
func (p SearchParams) Location() Location {
	return Location{Suburb: p.Suburb, State: p.State, Postcode: p.Postcode}
}
