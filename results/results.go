// Package results assembles result pages: pagination and facet summaries.
package results

import (
	"fmt"
	"sort"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

// DefaultPriceBuckets are weekly rent boundaries.
var DefaultPriceBuckets = []int{300, 500, 750, 1000, 1500}

// Builder turns store rows into result pages.
type Builder struct {
	priceBuckets []int
}

// New returns a Builder using the given price-bucket boundaries. An empty
// slice selects DefaultPriceBuckets. Boundaries must be ascending.
func New(priceBuckets []int) *Builder {
	if len(priceBuckets) == 0 {
		priceBuckets = DefaultPriceBuckets
	}
	return &Builder{priceBuckets: append([]int(nil), priceBuckets...)}
}

// Page wraps records returned for params into a paginated page with facets.
// params must already be normalized.
func (b *Builder) Page(records []models.Property, total int, params models.SearchParams, source models.DataSource) models.ResultPage {
	if records == nil {
		records = []models.Property{}
	}
	return models.ResultPage{
		Properties: records,
		Pagination: Paginate(params.Page, params.PageSize, total),
		Facets:     b.Facets(records),
		Source:     source,
	}
}

// Empty is the unpaginated answer given when nothing is stored yet.
func Empty(source models.DataSource) models.ResultPage {
	return models.ResultPage{Properties: []models.Property{}, Source: source}
}

// Failed is the zero-result answer carrying a typed error.
func Failed(kind models.ErrorKind, err error) models.ResultPage {
	return models.ResultPage{
		Properties: []models.Property{},
		Error:      &models.SearchError{Kind: kind, Message: err.Error()},
	}
}

// Paginate describes page within total results of pageSize.
func Paginate(page, pageSize, total int) *models.Pagination {
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	totalPages := (total + pageSize - 1) / pageSize
	return &models.Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Facets counts suburbs, property types and price buckets over records.
func (b *Builder) Facets(records []models.Property) *models.Facets {
	suburbs := make(map[string]int)
	types := make(map[string]int)
	buckets := b.emptyBuckets()

	for _, r := range records {
		if r.Address.Suburb != "" {
			suburbs[r.Address.Suburb]++
		}
		if r.Details.PropertyType != "" {
			types[string(r.Details.PropertyType)]++
		}
		if r.Price.Amount != nil {
			buckets[b.bucketIndex(*r.Price.Amount)].Count++
		}
	}

	return &models.Facets{
		Suburbs:       sortedCounts(suburbs),
		PropertyTypes: sortedCounts(types),
		PriceBuckets:  buckets,
	}
}

// emptyBuckets yields len(boundaries)+1 buckets: [0,b0), [b0,b1) ... [bn,∞).
func (b *Builder) emptyBuckets() []models.PriceBucket {
	out := make([]models.PriceBucket, 0, len(b.priceBuckets)+1)
	lower := 0
	for _, upper := range b.priceBuckets {
		max := float64(upper)
		out = append(out, models.PriceBucket{
			Label: fmt.Sprintf("%d-%d", lower, upper),
			Min:   float64(lower),
			Max:   &max,
		})
		lower = upper
	}
	out = append(out, models.PriceBucket{Label: fmt.Sprintf("%d+", lower), Min: float64(lower)})
	return out
}

func (b *Builder) bucketIndex(amount float64) int {
	return sort.Search(len(b.priceBuckets), func(i int) bool {
		return amount < float64(b.priceBuckets[i])
	})
}

func sortedCounts(counts map[string]int) []models.FacetCount {
	out := make([]models.FacetCount, 0, len(counts))
	for v, n := range counts {
		out = append(out, models.FacetCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}
