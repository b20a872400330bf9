package cache

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	entry     models.CacheEntry
	expiresAt time.Time
}

// Memory is an in-process LRU cache with per-entry expiry.
type Memory struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemory builds a cache that holds at most size pages.
func NewMemory(size int) (*Memory, error) {
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &Memory{entries: entries, now: time.Now}, nil
}

func (m *Memory) Get(_ context.Context, key string) (*models.CacheEntry, error) {
	item, ok := m.entries.Get(key)
	if !ok {
		return nil, nil
	}
	if !item.expiresAt.IsZero() && !m.now().Before(item.expiresAt) {
		m.entries.Remove(key)
		return nil, nil
	}
	entry := item.entry
	return &entry, nil
}

func (m *Memory) Set(_ context.Context, key string, entry models.CacheEntry, ttl time.Duration) error {
	item := memoryEntry{entry: entry}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}
	m.entries.Add(key, item)
	return nil
}

// Invalidate removes keys matching a path.Match glob.
func (m *Memory) Invalidate(_ context.Context, pattern string) (int, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return 0, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	removed := 0
	for _, key := range m.entries.Keys() {
		if ok, _ := path.Match(pattern, key); ok && m.entries.Remove(key) {
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of cached pages, expired or not.
func (m *Memory) Len() int {
	return m.entries.Len()
}

func (m *Memory) Ping(context.Context) error { return nil }
