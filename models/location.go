package models

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// States lists the Australian state and territory codes accepted in a location.
var States = []string{"NSW", "VIC", "QLD", "WA", "SA", "TAS", "ACT", "NT"}

var (
	postcodePattern = regexp.MustCompile(`^\d{4}$`)
	slugSeparators  = regexp.MustCompile(`[^a-z0-9]+`)
)

// Location is a suburb/state/postcode triple, optionally with the number of
// stored listings that reference it.
type Location struct {
	Suburb   string `json:"suburb"`
	State    string `json:"state"`
	Postcode string `json:"postcode"`
	Listings int    `json:"listings,omitempty"`
}

// ValidState reports whether code is a known state code (case-insensitive).
func ValidState(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, s := range States {
		if s == code {
			return true
		}
	}
	return false
}

// ValidPostcode reports whether code is exactly four digits.
func ValidPostcode(code string) bool {
	return postcodePattern.MatchString(code)
}

// Slugify folds diacritics, lowercases and collapses every run of
// non-alphanumeric characters into a single hyphen.
func Slugify(text string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, text)
	if err != nil {
		folded = text
	}
	slug := slugSeparators.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(slug, "-")
}

// SuburbFromSlug turns a slug back into a display suburb name.
func SuburbFromSlug(slug string) string {
	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	if len(words) == 0 {
		return ""
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// CanonicalSuburb is the normal form of a free-text suburb name.
func CanonicalSuburb(name string) string {
	return SuburbFromSlug(Slugify(name))
}
