// Package store holds the listing store adapters: PostgreSQL for deployments
// and an in-memory implementation for local runs and tests.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

var (
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("store: not found")
	// ErrInvalidRecord rejects a batch holding a record without a natural key.
	ErrInvalidRecord = errors.New("store: record without natural key")
)

// DefaultSuggestionLimit caps LocationSuggestions when no limit is given.
const DefaultSuggestionLimit = 10

func validateBatch(records []models.Property) error {
	for i, r := range records {
		if !r.HasKey() {
			return fmt.Errorf("record %d: %w", i, ErrInvalidRecord)
		}
	}
	return nil
}

// merge applies an incoming record over the stored one. Every mutable field
// is replaced; LastUpdated never moves backwards and a known listing type is
// not erased by a record that lacks one.
func merge(stored, incoming models.Property) models.Property {
	out := incoming
	if stored.Metadata.LastUpdated.After(out.Metadata.LastUpdated) {
		out.Metadata.LastUpdated = stored.Metadata.LastUpdated
	}
	if out.ListingType == "" {
		out.ListingType = stored.ListingType
	}
	return out
}

// sortProperties orders records for a sort key. Ties fall back to the
// natural key so paging is stable.
func sortProperties(records []models.Property, key models.SortKey) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		switch key {
		case models.SortPriceAsc, models.SortPriceDesc:
			if c := compareAmount(a.Price.Amount, b.Price.Amount, key == models.SortPriceDesc); c != 0 {
				return c < 0
			}
		case models.SortNewest:
			if c := compareListed(a.Metadata.ListedAt, b.Metadata.ListedAt); c != 0 {
				return c < 0
			}
		}
		if !a.Metadata.ScrapedAt.Equal(b.Metadata.ScrapedAt) {
			return a.Metadata.ScrapedAt.After(b.Metadata.ScrapedAt)
		}
		if a.SourceName != b.SourceName {
			return a.SourceName < b.SourceName
		}
		return a.SourceListingID < b.SourceListingID
	})
}

// compareAmount orders known prices before unknown ones.
func compareAmount(a, b *float64, desc bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a == *b:
		return 0
	case (*a < *b) != desc:
		return -1
	default:
		return 1
	}
}

// compareListed orders recent listing dates first and unknown dates last.
func compareListed(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Equal(*b):
		return 0
	case a.After(*b):
		return -1
	default:
		return 1
	}
}

func matchesLocationPrefix(loc models.Location, prefix string) bool {
	if prefix == "" {
		return true
	}
	p := strings.ToLower(prefix)
	return strings.HasPrefix(strings.ToLower(loc.Suburb), p) || strings.HasPrefix(loc.Postcode, p)
}

func rankLocations(locs []models.Location, limit int) []models.Location {
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].Listings != locs[j].Listings {
			return locs[i].Listings > locs[j].Listings
		}
		if locs[i].Suburb != locs[j].Suburb {
			return locs[i].Suburb < locs[j].Suburb
		}
		return locs[i].Postcode < locs[j].Postcode
	})
	if limit > 0 && len(locs) > limit {
		locs = locs[:limit]
	}
	return locs
}
