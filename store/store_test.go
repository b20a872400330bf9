package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

var baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func listing(id, suburb string, price float64, beds int, scraped time.Time) models.Property {
	p := price
	b := beds
	return models.Property{
		SourceListingID: id,
		SourceName:      "realestate.com.au",
		ListingType:     models.ListingRent,
		Address:         models.Address{Suburb: suburb, State: "NSW", Postcode: "2050"},
		Price:           models.Price{Amount: &p, Frequency: models.FrequencyWeekly},
		Details:         models.Details{PropertyType: models.PropertyApartment, Bedrooms: &b},
		Metadata:        models.Metadata{ScrapedAt: scraped, LastUpdated: scraped},
	}
}

func TestMemoryUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	batch := []models.Property{
		listing("1", "Camperdown", 650, 2, baseTime),
		listing("2", "Camperdown", 720, 3, baseTime),
	}
	for i := 0; i < 2; i++ {
		if err := m.UpsertMany(ctx, batch); err != nil {
			t.Fatalf("upsert %d: %v", i, err)
		}
	}
	if m.Len() != 2 {
		t.Fatalf("expected 2 stored listings, got %d", m.Len())
	}
}

func TestMemoryUpsertKeepsLastUpdatedMonotonic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	newer := listing("1", "Camperdown", 650, 2, baseTime.Add(time.Hour))
	if err := m.UpsertMany(ctx, []models.Property{newer}); err != nil {
		t.Fatal(err)
	}

	older := listing("1", "Camperdown", 600, 2, baseTime)
	older.ListingType = ""
	if err := m.UpsertMany(ctx, []models.Property{older}); err != nil {
		t.Fatal(err)
	}

	got, err := m.GetByKey(ctx, older.Key())
	if err != nil {
		t.Fatal(err)
	}
	if !got.Metadata.LastUpdated.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("last updated moved backwards to %v", got.Metadata.LastUpdated)
	}
	if *got.Price.Amount != 600 {
		t.Errorf("expected price to be replaced, got %v", *got.Price.Amount)
	}
	if got.ListingType != models.ListingRent {
		t.Errorf("known listing type was erased")
	}
}

func TestMemoryUpsertRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	bad := listing("", "Camperdown", 650, 2, baseTime)
	err := m.UpsertMany(ctx, []models.Property{listing("1", "Camperdown", 650, 2, baseTime), bad})
	if !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("partial batch was applied: %d listings", m.Len())
	}
}

func TestMemoryQuery(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	records := []models.Property{
		listing("1", "Camperdown", 650, 2, baseTime),
		listing("2", "Camperdown", 500, 1, baseTime.Add(time.Minute)),
		listing("3", "Camperdown", 900, 3, baseTime.Add(2*time.Minute)),
		listing("4", "Newtown", 550, 2, baseTime),
	}
	unpriced := listing("5", "Camperdown", 0, 2, baseTime)
	unpriced.Price.Amount = nil
	records = append(records, unpriced)
	if err := m.UpsertMany(ctx, records); err != nil {
		t.Fatal(err)
	}

	ids := func(props []models.Property) string {
		out := make([]string, len(props))
		for i, p := range props {
			out[i] = p.SourceListingID
		}
		return strings.Join(out, ",")
	}

	tests := []struct {
		name      string
		filter    models.PropertyFilter
		offset    int
		limit     int
		wantIDs   string
		wantTotal int
	}{
		{
			name:      "suburb default order",
			filter:    models.PropertyFilter{Suburb: "camperdown"},
			wantIDs:   "3,2,1,5",
			wantTotal: 4,
		},
		{
			name:      "price ascending unknown last",
			filter:    models.PropertyFilter{Suburb: "Camperdown", Sort: models.SortPriceAsc},
			wantIDs:   "2,1,3,5",
			wantTotal: 4,
		},
		{
			name:      "price descending",
			filter:    models.PropertyFilter{Sort: models.SortPriceDesc},
			wantIDs:   "3,1,4,2,5",
			wantTotal: 5,
		},
		{
			name:      "price bound excludes unknown",
			filter:    models.PropertyFilter{Price: models.Range{Max: models.IntPtr(600)}},
			wantIDs:   "2,4",
			wantTotal: 2,
		},
		{
			name:      "bedroom range",
			filter:    models.PropertyFilter{Bedrooms: models.Range{Min: models.IntPtr(2), Max: models.IntPtr(2)}, Sort: models.SortPriceAsc},
			wantIDs:   "4,1,5",
			wantTotal: 3,
		},
		{
			name:      "paged",
			filter:    models.PropertyFilter{Sort: models.SortPriceAsc},
			offset:    1,
			limit:     2,
			wantIDs:   "4,1",
			wantTotal: 5,
		},
		{
			name:      "offset past end",
			filter:    models.PropertyFilter{},
			offset:    10,
			limit:     2,
			wantIDs:   "",
			wantTotal: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := m.Query(ctx, tt.filter, tt.offset, tt.limit)
			if err != nil {
				t.Fatal(err)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
			if ids(got) != tt.wantIDs {
				t.Errorf("ids = %q, want %q", ids(got), tt.wantIDs)
			}
		})
	}
}

func TestMemoryNewestSortPutsUnknownListingDatesLast(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	early := baseTime.Add(-48 * time.Hour)
	late := baseTime.Add(-24 * time.Hour)
	a := listing("a", "Camperdown", 600, 2, baseTime)
	a.Metadata.ListedAt = &early
	b := listing("b", "Camperdown", 600, 2, baseTime)
	b.Metadata.ListedAt = &late
	c := listing("c", "Camperdown", 600, 2, baseTime.Add(time.Hour))
	if err := m.UpsertMany(ctx, []models.Property{a, b, c}); err != nil {
		t.Fatal(err)
	}

	got, _, err := m.Query(ctx, models.PropertyFilter{Sort: models.SortNewest}, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].SourceListingID != "b" || got[1].SourceListingID != "a" || got[2].SourceListingID != "c" {
		t.Fatalf("unexpected order: %s %s %s", got[0].SourceListingID, got[1].SourceListingID, got[2].SourceListingID)
	}
}

func TestMemoryGetByKeyNotFound(t *testing.T) {
	_, err := NewMemory().GetByKey(context.Background(), models.NaturalKey{SourceName: "x", SourceListingID: "1"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryLocationSuggestions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	newtown := listing("4", "Newtown", 550, 2, baseTime)
	newtown.Address.Postcode = "2042"
	records := []models.Property{
		listing("1", "Camperdown", 650, 2, baseTime),
		listing("2", "Camperdown", 500, 1, baseTime),
		newtown,
		listing("5", "", 500, 1, baseTime),
	}
	if err := m.UpsertMany(ctx, records); err != nil {
		t.Fatal(err)
	}

	got, err := m.LocationSuggestions(ctx, "cam", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Suburb != "Camperdown" || got[0].Listings != 2 {
		t.Fatalf("unexpected suggestions: %+v", got)
	}

	got, err = m.LocationSuggestions(ctx, "20", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Suburb != "Camperdown" {
		t.Fatalf("expected ranked, limited suggestions, got %+v", got)
	}

	got, err = m.LocationSuggestions(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both locations, got %+v", got)
	}
}

func TestMemoryJobs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	job := &models.ScrapeJob{ID: "j1", Kind: models.JobSearch, Status: models.StatusPending, SubmittedAt: baseTime}

	if err := m.UpdateJobResult(ctx, job); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unsaved job, got %v", err)
	}
	if err := m.SaveJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	job.Status = models.StatusRunning
	if got, _ := m.Job("j1"); got.Status != models.StatusPending {
		t.Fatalf("saved job aliases the caller's copy")
	}

	if err := job.Transition(models.StatusCompleted, baseTime); err != nil {
		t.Fatal(err)
	}
	job.Result = &models.JobResult{Records: 3}
	if err := m.UpdateJobResult(ctx, job); err != nil {
		t.Fatal(err)
	}
	got, ok := m.Job("j1")
	if !ok || got.Status != models.StatusCompleted || got.Result.Records != 3 {
		t.Fatalf("unexpected persisted job %+v", got)
	}
}

func TestMemoryExecutionRecords(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := models.SearchExecutionRecord{ID: "e1", CacheKey: "search:abc", CreatedAt: baseTime}
	if err := m.AppendExecutionRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if got := m.Executions(); len(got) != 1 || got[0].ID != "e1" {
		t.Fatalf("unexpected executions %+v", got)
	}
}

func TestMemoryHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := NewMemory()
	if err := m.UpsertMany(ctx, []models.Property{listing("1", "Camperdown", 650, 2, baseTime)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestApplyFilter(t *testing.T) {
	tests := []struct {
		name      string
		filter    models.PropertyFilter
		wantWhere string
		wantArgs  int
	}{
		{
			name:      "empty",
			filter:    models.PropertyFilter{},
			wantWhere: "",
		},
		{
			name: "location and ranges",
			filter: models.PropertyFilter{
				ListingType: models.ListingRent,
				Suburb:      "Camperdown",
				State:       "nsw",
				Bedrooms:    models.Range{Min: models.IntPtr(2)},
				Price:       models.Range{Max: models.IntPtr(700)},
				MinParking:  models.IntPtr(1),
			},
			wantWhere: "WHERE listing_type = $1 AND lower(suburb) = lower($2) AND state = $3 AND bedrooms >= $4 AND price_amount <= $5 AND parking >= $6",
			wantArgs:  6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qb := applyFilter(tt.filter)
			if got := qb.where(); got != tt.wantWhere {
				t.Errorf("where = %q, want %q", got, tt.wantWhere)
			}
			if len(qb.args) != tt.wantArgs {
				t.Errorf("args = %d, want %d", len(qb.args), tt.wantArgs)
			}
		})
	}
}

func TestApplyFilterUppercasesStateAndNumbersTrailingArgs(t *testing.T) {
	qb := applyFilter(models.PropertyFilter{State: "vic"})
	if qb.args[0] != "VIC" {
		t.Fatalf("state arg = %v", qb.args[0])
	}
	if got := qb.next(10); got != "$2" {
		t.Fatalf("next placeholder = %s, want $2", got)
	}
}

func TestOrderBy(t *testing.T) {
	tests := map[models.SortKey]string{
		models.SortRelevance: "ORDER BY scraped_at DESC, source_name, source_listing_id",
		models.SortPriceAsc:  "ORDER BY price_amount ASC NULLS LAST, scraped_at DESC, source_name, source_listing_id",
		models.SortNewest:    "ORDER BY listed_at DESC NULLS LAST, scraped_at DESC, source_name, source_listing_id",
	}
	for key, want := range tests {
		if got := orderBy(key); got != want {
			t.Errorf("orderBy(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestLikePrefixEscapes(t *testing.T) {
	if got := likePrefix("St_Kilda%"); got != `st\_kilda\%%` {
		t.Fatalf("likePrefix = %q", got)
	}
}
