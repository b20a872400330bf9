package models_test

import (
	"errors"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

func validParams() models.SearchParams {
	return models.SearchParams{
		ListingType: models.ListingRent,
		Suburb:      "Camperdown",
		State:       "NSW",
		Postcode:    "2050",
	}
}

func TestSearchParamsValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*models.SearchParams)
		wantField string
	}{
		{name: "valid", mutate: func(*models.SearchParams) {}},
		{name: "bad listing type", mutate: func(p *models.SearchParams) { p.ListingType = "lease" }, wantField: "listing_type"},
		{name: "missing suburb", mutate: func(p *models.SearchParams) { p.Suburb = " - " }, wantField: "suburb"},
		{name: "bad state", mutate: func(p *models.SearchParams) { p.State = "XYZ" }, wantField: "state"},
		{name: "short postcode", mutate: func(p *models.SearchParams) { p.Postcode = "205" }, wantField: "postcode"},
		{name: "unknown type", mutate: func(p *models.SearchParams) { p.PropertyType = "castle" }, wantField: "property_type"},
		{name: "inverted bedrooms", mutate: func(p *models.SearchParams) {
			p.Bedrooms = models.Range{Min: models.IntPtr(3), Max: models.IntPtr(2)}
		}, wantField: "bedrooms"},
		{name: "negative price", mutate: func(p *models.SearchParams) { p.Price = models.Range{Max: models.IntPtr(-1)} }, wantField: "price"},
		{name: "huge page size", mutate: func(p *models.SearchParams) { p.PageSize = models.MaxPageSize + 1 }, wantField: "page_size"},
		{name: "bad sort", mutate: func(p *models.SearchParams) { p.Sort = "random" }, wantField: "sort"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *models.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tt.wantField {
				t.Fatalf("field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestSearchParamsNormalized(t *testing.T) {
	p := models.SearchParams{
		ListingType:  "RENT",
		Suburb:       "  st   kilda-EAST ",
		State:        "vic",
		Postcode:     "3183",
		PropertyType: "Unit",
		Bedrooms:     models.Range{Min: models.IntPtr(0), Max: models.IntPtr(3)},
		Parking:      models.IntPtr(0),
	}

	n := p.Normalized()
	if n.Suburb != "St Kilda East" {
		t.Fatalf("suburb = %q", n.Suburb)
	}
	if n.State != "VIC" || n.ListingType != models.ListingRent || n.PropertyType != models.PropertyApartment {
		t.Fatalf("unexpected normalization: %+v", n)
	}
	if n.Bedrooms.Min != nil || n.Bedrooms.Max == nil || *n.Bedrooms.Max != 3 {
		t.Fatalf("bedrooms = %+v, want {nil, 3}", n.Bedrooms)
	}
	if n.Parking != nil {
		t.Fatalf("zero parking should be dropped")
	}
	if n.Page != 1 || n.PageSize != models.DefaultPageSize || n.Sort != models.SortRelevance {
		t.Fatalf("paging defaults not applied: %+v", n)
	}
	if !n.Normalized().Equal(n) {
		t.Fatalf("Normalized is not idempotent")
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"St Kilda East":     "st-kilda-east",
		"  st kilda  EAST ": "st-kilda-east",
		"O'Connor":          "o-connor",
		"Café Précinct":     "cafe-precinct",
		"---":               "",
	}
	for in, want := range tests {
		if got := models.Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFreshnessPolicy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := models.FreshnessPolicy{Window: 15 * time.Minute}

	fresh := models.Property{Metadata: models.Metadata{ScrapedAt: now.Add(-5 * time.Minute)}}
	old := models.Property{Metadata: models.Metadata{ScrapedAt: now.Add(-20 * time.Minute)}}

	if !policy.Stale(nil, now) {
		t.Fatalf("empty result must be stale")
	}
	if policy.Stale([]models.Property{fresh}, now) {
		t.Fatalf("fresh record reported stale")
	}
	if !policy.Stale([]models.Property{old}, now) {
		t.Fatalf("old record not reported stale")
	}
	if !policy.Stale([]models.Property{fresh, old}, now) {
		t.Fatalf("any old record makes the set stale")
	}
}

func TestPropertyFilterMatches(t *testing.T) {
	amount := 650.0
	prop := models.Property{
		ListingType: models.ListingRent,
		Address:     models.Address{Suburb: "Camperdown", State: "NSW", Postcode: "2050"},
		Price:       models.Price{Amount: &amount},
		Details: models.Details{
			PropertyType: models.PropertyApartment,
			Bedrooms:     models.IntPtr(2),
			Bathrooms:    models.IntPtr(1),
		},
	}

	tests := []struct {
		name   string
		params models.SearchParams
		want   bool
	}{
		{name: "location only", params: validParams(), want: true},
		{name: "bedroom range", params: func() models.SearchParams {
			p := validParams()
			p.Bedrooms = models.Range{Min: models.IntPtr(2), Max: models.IntPtr(3)}
			return p
		}(), want: true},
		{name: "price above max", params: func() models.SearchParams {
			p := validParams()
			p.Price = models.Range{Max: models.IntPtr(600)}
			return p
		}(), want: false},
		{name: "wrong type", params: validParams().WithPropertyType(models.PropertyHouse), want: false},
		{name: "parking unknown", params: func() models.SearchParams {
			p := validParams()
			p.Parking = models.IntPtr(1)
			return p
		}(), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := models.FilterFromParams(tt.params).Matches(prop); got != tt.want {
				t.Fatalf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}
