// Package cache holds the result-page cache adapters and the cache key
// derivation shared by both orchestrators.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

// KeyPrefix namespaces search result pages.
const KeyPrefix = "search:"

// AllSearches matches every search key.
const AllSearches = KeyPrefix + "*"

// Key derives the cache key for params. Parameter sets that normalize to the
// same value share a key.
func Key(params models.SearchParams) string {
	// SearchParams holds only plain values, so Marshal cannot fail.
	data, _ := json.Marshal(params.Normalized())
	sum := sha256.Sum256(data)
	return KeyPrefix + hex.EncodeToString(sum[:])[:32]
}

// Noop never stores anything. It stands in when caching is disabled.
type Noop struct{}

func (Noop) Get(context.Context, string) (*models.CacheEntry, error) { return nil, nil }

func (Noop) Set(context.Context, string, models.CacheEntry, time.Duration) error { return nil }

func (Noop) Invalidate(context.Context, string) (int, error) { return 0, nil }

func (Noop) Ping(context.Context) error { return nil }
