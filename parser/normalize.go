package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

var (
	amountPattern  = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	integerPattern = regexp.MustCompile(`\d+`)
	spacePattern   = regexp.MustCompile(`\s+`)

	monthlyPattern  = regexp.MustCompile(`(?i)(per\s+(calendar\s+)?month|\bpcm\b|\bmonthly\b|/\s*(month|mth|mo)\b|\bp\.c\.m\.?)`)
	annuallyPattern = regexp.MustCompile(`(?i)(per\s+(annum|year)|\bp\.?a\.?(\s|$)|\bannual(ly)?\b|\byearly\b|/\s*(year|yr|annum)\b)`)
)

// ParseAmount extracts the first numeric amount from a price text. Currency
// symbols, thousands separators and surrounding words are ignored; a k or m
// suffix scales the amount.
func ParseAmount(text string) (float64, bool) {
	loc := amountPattern.FindStringIndex(text)
	if loc == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(text[loc[0]:loc[1]], ",", ""), 64)
	if err != nil {
		return 0, false
	}

	rest := strings.TrimLeft(text[loc[1]:], " ")
	if len(rest) > 0 {
		suffixEnds := len(rest) == 1 || !isLetter(rest[1])
		switch {
		case (rest[0] == 'k' || rest[0] == 'K') && suffixEnds:
			value *= 1_000
		case (rest[0] == 'm' || rest[0] == 'M') && suffixEnds:
			value *= 1_000_000
		}
	}
	return value, true
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// ParseCount extracts the first integer from text such as "3 beds".
func ParseCount(text string) (int, bool) {
	match := integerPattern.FindString(text)
	if match == "" {
		return 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0, false
	}
	return n, true
}

// InferFrequency reads the billing period from a price text, defaulting to weekly.
func InferFrequency(text string) models.Frequency {
	switch {
	case monthlyPattern.MatchString(text):
		return models.FrequencyMonthly
	case annuallyPattern.MatchString(text):
		return models.FrequencyAnnually
	default:
		return models.FrequencyWeekly
	}
}

// frequencyFromPeriod maps an explicit period field ("week", "MONTHLY", "pa").
func frequencyFromPeriod(period string) models.Frequency {
	period = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.ToLower(period), "per ")))
	switch {
	case strings.HasPrefix(period, "week"), period == "pw":
		return models.FrequencyWeekly
	case strings.HasPrefix(period, "month"), period == "pcm", period == "pm":
		return models.FrequencyMonthly
	case strings.HasPrefix(period, "year"), strings.HasPrefix(period, "annu"), period == "pa":
		return models.FrequencyAnnually
	default:
		return InferFrequency(period)
	}
}

// NormalizeWhitespace trims text and collapses internal whitespace runs.
func NormalizeWhitespace(text string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}
