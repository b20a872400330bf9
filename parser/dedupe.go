package parser

import "github.com/aluiziolira/go-scrape-rentals/models"

// Dedupe keeps one record per natural key. A later record replaces an earlier
// one in place, so the first-seen order is preserved.
func Dedupe(records []models.Property) []models.Property {
	seen := make(map[models.NaturalKey]int, len(records))
	out := make([]models.Property, 0, len(records))
	for _, r := range records {
		if idx, ok := seen[r.Key()]; ok {
			out[idx] = r
			continue
		}
		seen[r.Key()] = len(out)
		out = append(out, r)
	}
	return out
}
