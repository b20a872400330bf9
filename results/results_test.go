package results

import (
	"errors"
	"testing"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

func priced(suburb string, t models.PropertyType, amount float64) models.Property {
	a := amount
	return models.Property{
		Address: models.Address{Suburb: suburb},
		Details: models.Details{PropertyType: t},
		Price:   models.Price{Amount: &a},
	}
}

func TestPaginate(t *testing.T) {
	tests := []struct {
		name               string
		page, size, total  int
		wantPages          int
		wantNext, wantPrev bool
	}{
		{"first of three", 1, 20, 45, 3, true, false},
		{"middle", 2, 20, 45, 3, true, true},
		{"last", 3, 20, 45, 3, false, true},
		{"exact fit", 1, 20, 20, 1, false, false},
		{"empty", 1, 20, 0, 0, false, false},
		{"defaults", 0, 0, 25, 2, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paginate(tt.page, tt.size, tt.total)
			if p.TotalPages != tt.wantPages || p.HasNext != tt.wantNext || p.HasPrev != tt.wantPrev {
				t.Fatalf("got %+v", p)
			}
			if p.Page < 1 || p.PageSize < 1 {
				t.Fatalf("page and size must be positive: %+v", p)
			}
		})
	}
}

func TestFacets(t *testing.T) {
	b := New(nil)
	records := []models.Property{
		priced("Camperdown", models.PropertyApartment, 250),
		priced("Camperdown", models.PropertyApartment, 500),
		priced("Newtown", models.PropertyHouse, 1499),
		priced("Newtown", models.PropertyHouse, 2000),
		{Address: models.Address{Suburb: "Newtown"}},
	}

	f := b.Facets(records)

	if len(f.Suburbs) != 2 || f.Suburbs[0].Value != "Newtown" || f.Suburbs[0].Count != 3 {
		t.Errorf("unexpected suburb facets %+v", f.Suburbs)
	}
	if len(f.PropertyTypes) != 2 || f.PropertyTypes[0].Value != string(models.PropertyApartment) {
		t.Errorf("unexpected type facets %+v", f.PropertyTypes)
	}

	want := []int{1, 0, 1, 0, 1, 1}
	if len(f.PriceBuckets) != len(want) {
		t.Fatalf("expected %d buckets, got %d", len(want), len(f.PriceBuckets))
	}
	for i, n := range want {
		if f.PriceBuckets[i].Count != n {
			t.Errorf("bucket %s count = %d, want %d", f.PriceBuckets[i].Label, f.PriceBuckets[i].Count, n)
		}
	}
	if last := f.PriceBuckets[len(f.PriceBuckets)-1]; last.Max != nil || last.Label != "1500+" {
		t.Errorf("last bucket must be open-ended, got %+v", last)
	}
	if f.PriceBuckets[0].Label != "0-300" {
		t.Errorf("first bucket label %q", f.PriceBuckets[0].Label)
	}
}

func TestPageAndEmpty(t *testing.T) {
	b := New([]int{400})
	params := models.SearchParams{Page: 2, PageSize: 1}
	page := b.Page([]models.Property{priced("Camperdown", models.PropertyHouse, 450)}, 3, params, models.SourceStore)
	if page.Pagination == nil || page.Pagination.Page != 2 || !page.Pagination.HasNext {
		t.Fatalf("unexpected pagination %+v", page.Pagination)
	}
	if page.Source != models.SourceStore || len(page.Facets.PriceBuckets) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}

	empty := Empty(models.SourceQueue)
	if empty.Pagination != nil || empty.Properties == nil || len(empty.Properties) != 0 {
		t.Fatalf("empty page must be unpaginated with a non-nil slice: %+v", empty)
	}

	failed := Failed(models.ErrorStore, errors.New("connection refused"))
	if failed.Error == nil || failed.Error.Kind != models.ErrorStore || len(failed.Properties) != 0 {
		t.Fatalf("unexpected failed page %+v", failed)
	}
}
