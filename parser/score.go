package parser

import (
	"sort"
	"strings"
)

// ListingThreshold is the minimum ListingScore for an object to be treated
// as a listing.
const ListingThreshold = 3

// indicatorKeys are normalized key names that suggest a listing object:
// identifiers, prices, room counts, locations, types and media.
var indicatorKeys = map[string]struct{}{
	"id": {}, "listingid": {}, "propertyid": {}, "adid": {}, "externalid": {},

	"price": {}, "rent": {}, "cost": {}, "displayprice": {}, "pricetext": {}, "priceamount": {}, "weeklyrent": {},

	"bedrooms": {}, "beds": {}, "bedroom": {}, "bed": {},
	"bathrooms": {}, "baths": {}, "bathroom": {}, "bath": {},

	"address": {}, "displayaddress": {}, "fulladdress": {}, "location": {}, "suburb": {}, "street": {}, "postcode": {},

	"propertytype": {}, "type": {}, "category": {},

	"images": {}, "image": {}, "photos": {}, "media": {}, "mainimage": {}, "thumbnail": {},
}

// normalizeKey lowercases k and strips separators so that listing_id,
// listingId and listing-id compare equal.
func normalizeKey(k string) string {
	k = strings.ToLower(k)
	return strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '.', '@':
			return -1
		}
		return r
	}, k)
}

// ListingScore counts the keys of obj that match a listing indicator.
func ListingScore(obj map[string]any) int {
	score := 0
	for k := range obj {
		if _, ok := indicatorKeys[normalizeKey(k)]; ok {
			score++
		}
	}
	return score
}

// LooksLikeListing reports whether obj reaches ListingThreshold.
func LooksLikeListing(obj map[string]any) bool {
	return ListingScore(obj) >= ListingThreshold
}

// findListingArrays walks node up to maxDepth levels and collects the
// qualifying elements of every array that has at least one. Arrays that
// qualify are not searched further.
func findListingArrays(node any, depth, maxDepth int, out *[]map[string]any) {
	if depth > maxDepth {
		return
	}
	switch v := node.(type) {
	case map[string]any:
		for _, k := range sortedKeys(v) {
			findListingArrays(v[k], depth+1, maxDepth, out)
		}
	case []any:
		found := false
		for _, el := range v {
			if obj, ok := el.(map[string]any); ok && LooksLikeListing(obj) {
				*out = append(*out, obj)
				found = true
			}
		}
		if found {
			return
		}
		for _, el := range v {
			findListingArrays(el, depth+1, maxDepth, out)
		}
	}
}

// findListingObject returns the shallowest object that looks like a listing.
// Detail pages carry a single listing rather than an array of them.
func findListingObject(root any, maxDepth int) (map[string]any, bool) {
	level := []any{root}
	for depth := 0; depth <= maxDepth && len(level) > 0; depth++ {
		var next []any
		for _, node := range level {
			switch v := node.(type) {
			case map[string]any:
				if LooksLikeListing(v) {
					return v, true
				}
				for _, k := range sortedKeys(v) {
					next = append(next, v[k])
				}
			case []any:
				next = append(next, v...)
			}
		}
		level = next
	}
	return nil, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
