package models

import "strings"

// PropertyFilter is the store-level selection derived from SearchParams.
type PropertyFilter struct {
	ListingType  ListingType
	Suburb       string
	State        string
	Postcode     string
	PropertyType PropertyType
	Bedrooms     Range
	Bathrooms    Range
	Price        Range
	MinParking   *int
	Sort         SortKey
}

// FilterFromParams derives the store filter for p.
func FilterFromParams(p SearchParams) PropertyFilter {
	n := p.Normalized()
	return PropertyFilter{
		ListingType:  n.ListingType,
		Suburb:       n.Suburb,
		State:        n.State,
		Postcode:     n.Postcode,
		PropertyType: n.PropertyType,
		Bedrooms:     n.Bedrooms,
		Bathrooms:    n.Bathrooms,
		Price:        n.Price,
		MinParking:   n.Parking,
		Sort:         n.Sort,
	}
}

// Matches reports whether p satisfies every constraint of f. Records with an
// unknown value for a constrained numeric field do not match.
func (f PropertyFilter) Matches(p Property) bool {
	if f.ListingType != "" && p.ListingType != f.ListingType {
		return false
	}
	if f.Suburb != "" && !strings.EqualFold(p.Address.Suburb, f.Suburb) {
		return false
	}
	if f.State != "" && !strings.EqualFold(p.Address.State, f.State) {
		return false
	}
	if f.Postcode != "" && p.Address.Postcode != f.Postcode {
		return false
	}
	if f.PropertyType != "" && p.Details.PropertyType != f.PropertyType {
		return false
	}
	if !matchIntRange(f.Bedrooms, p.Details.Bedrooms) || !matchIntRange(f.Bathrooms, p.Details.Bathrooms) {
		return false
	}
	if !f.Price.IsZero() {
		if p.Price.Amount == nil {
			return false
		}
		amount := *p.Price.Amount
		if f.Price.Min != nil && amount < float64(*f.Price.Min) {
			return false
		}
		if f.Price.Max != nil && amount > float64(*f.Price.Max) {
			return false
		}
	}
	if f.MinParking != nil && (p.Details.Parking == nil || *p.Details.Parking < *f.MinParking) {
		return false
	}
	return true
}

func matchIntRange(r Range, v *int) bool {
	if r.IsZero() {
		return true
	}
	if v == nil {
		return false
	}
	return r.Contains(*v)
}
