package store

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

// queryBuilder accumulates WHERE conditions with positional arguments.
type queryBuilder struct {
	conditions []string
	args       []interface{}
	argID      int
}

func newQueryBuilder() *queryBuilder {
	return &queryBuilder{argID: 1}
}

func (qb *queryBuilder) addCondition(condition string, fieldName string, arg interface{}) {
	qb.conditions = append(qb.conditions, fmt.Sprintf(condition, fieldName, qb.argID))
	qb.args = append(qb.args, arg)
	qb.argID++
}

func (qb *queryBuilder) addIntRange(fieldName string, r models.Range) {
	if r.Min != nil {
		qb.addCondition("%s >= $%d", fieldName, *r.Min)
	}
	if r.Max != nil {
		qb.addCondition("%s <= $%d", fieldName, *r.Max)
	}
}

// next returns the placeholder for an argument appended after the conditions.
func (qb *queryBuilder) next(arg interface{}) string {
	qb.args = append(qb.args, arg)
	placeholder := fmt.Sprintf("$%d", qb.argID)
	qb.argID++
	return placeholder
}

func (qb *queryBuilder) where() string {
	if len(qb.conditions) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(qb.conditions, " AND ")
}

// applyFilter translates a PropertyFilter into conditions on the properties
// table.
func applyFilter(filter models.PropertyFilter) *queryBuilder {
	qb := newQueryBuilder()
	if filter.ListingType != "" {
		qb.addCondition("%s = $%d", "listing_type", string(filter.ListingType))
	}
	if filter.Suburb != "" {
		qb.addCondition("%s = lower($%d)", "lower(suburb)", filter.Suburb)
	}
	if filter.State != "" {
		qb.addCondition("%s = $%d", "state", strings.ToUpper(filter.State))
	}
	if filter.Postcode != "" {
		qb.addCondition("%s = $%d", "postcode", filter.Postcode)
	}
	if filter.PropertyType != "" {
		qb.addCondition("%s = $%d", "property_type", string(filter.PropertyType))
	}
	qb.addIntRange("bedrooms", filter.Bedrooms)
	qb.addIntRange("bathrooms", filter.Bathrooms)
	if filter.Price.Min != nil {
		qb.addCondition("%s >= $%d", "price_amount", float64(*filter.Price.Min))
	}
	if filter.Price.Max != nil {
		qb.addCondition("%s <= $%d", "price_amount", float64(*filter.Price.Max))
	}
	if filter.MinParking != nil {
		qb.addCondition("%s >= $%d", "parking", *filter.MinParking)
	}
	return qb
}

// orderBy mirrors sortProperties.
func orderBy(key models.SortKey) string {
	tail := "scraped_at DESC, source_name, source_listing_id"
	switch key {
	case models.SortPriceAsc:
		return "ORDER BY price_amount ASC NULLS LAST, " + tail
	case models.SortPriceDesc:
		return "ORDER BY price_amount DESC NULLS LAST, " + tail
	case models.SortNewest:
		return "ORDER BY listed_at DESC NULLS LAST, " + tail
	default:
		return "ORDER BY " + tail
	}
}

// likePrefix escapes LIKE metacharacters and appends a trailing wildcard.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(strings.ToLower(prefix)) + "%"
}
