package parser

import (
	"encoding/json"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-rentals/models"
	"github.com/mmcloughlin/geohash"
)

const geohashPrecision = 7

var (
	errNoNaturalKey = errors.New("no listing id")
	errNoSource     = errors.New("no source name")

	stateTailPattern = regexp.MustCompile(`(?i)(?:,\s*)?([A-Za-z][A-Za-z' .-]*?)?,?\s+(NSW|VIC|QLD|WA|SA|TAS|ACT|NT)\s+(\d{4})\b`)

	dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "02/01/2006", "2 January 2006", "Mon 2 Jan 2006"}
)

// Fallback chains, tried in order. Dotted names descend into nested objects.
var (
	idKeys          = []string{"id", "listingId", "propertyId", "adId", "externalId"}
	priceKeys       = []string{"price", "rent", "cost", "displayPrice", "priceText", "priceAmount", "weeklyRent"}
	bedroomKeys     = []string{"bedrooms", "beds", "bedroom", "generalFeatures.bedrooms", "features.bedrooms", "attributes.bedrooms"}
	bathroomKeys    = []string{"bathrooms", "baths", "bathroom", "generalFeatures.bathrooms", "features.bathrooms", "attributes.bathrooms"}
	parkingKeys     = []string{"parking", "parkingSpaces", "carspaces", "carSpaces", "garages", "generalFeatures.parkingSpaces", "features.parking"}
	addressKeys     = []string{"address", "displayAddress", "fullAddress", "location"}
	typeKeys        = []string{"propertyType", "type", "category", "propertyTypes"}
	imageKeys       = []string{"images", "photos", "media", "image", "mainImage", "thumbnail"}
	descriptionKeys = []string{"description", "body", "summary"}
	featureKeys     = []string{"features", "amenities", "propertyFeatures"}
	agentKeys       = []string{"agent", "agents", "lister", "listers", "contact"}
	agencyKeys      = []string{"agency", "agencyName", "brand", "branding", "listingCompany"}
	inspectionKeys  = []string{"inspections", "inspectionTimes", "openHomes", "inspectionsAndAuctions"}
	availableKeys   = []string{"availableFrom", "dateAvailable", "availableDate"}
	listedKeys      = []string{"dateListed", "listedAt", "listingDate", "dateCreated", "created"}
	urlKeys         = []string{"url", "link", "href", "canonicalUrl", "permalink"}
	landKeys        = []string{"landSize", "landArea"}
	buildingKeys    = []string{"buildingSize", "floorArea", "buildingArea"}
	latitudeKeys    = []string{"latitude", "lat", "geo.latitude", "coordinates.lat", "location.latitude", "address.latitude"}
	longitudeKeys   = []string{"longitude", "lng", "lon", "geo.longitude", "coordinates.lng", "location.longitude", "address.longitude"}
	listingTypeKeys = []string{"channel", "listingType", "saleType"}
	scalarKeys      = []string{"value", "display", "displayValue", "text", "amount", "name", "label"}
)

// object is a listing element with normalized key lookup.
type object map[string]any

func newObject(m map[string]any) object {
	o := make(object, len(m))
	for k, v := range m {
		nk := normalizeKey(k)
		if _, dup := o[nk]; !dup {
			o[nk] = v
		}
	}
	return o
}

// get resolves the first present, non-null key in the chain.
func (o object) get(chain ...string) (any, bool) {
	for _, name := range chain {
		if v, ok := o.path(strings.Split(name, ".")); ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (o object) path(parts []string) (any, bool) {
	v, ok := o[normalizeKey(parts[0])]
	if !ok || len(parts) == 1 {
		return v, ok
	}
	nested, isMap := v.(map[string]any)
	if !isMap {
		return nil, false
	}
	return newObject(nested).path(parts[1:])
}

func (o object) str(chain ...string) string {
	v, ok := o.get(chain...)
	if !ok {
		return ""
	}
	return asString(v)
}

func (o object) count(chain ...string) *int {
	v, ok := o.get(chain...)
	if !ok {
		return nil
	}
	if n, ok := asInt(v); ok && n >= 0 {
		return &n
	}
	return nil
}

func (o object) float(chain ...string) *float64 {
	v, ok := o.get(chain...)
	if !ok {
		return nil
	}
	if f, ok := asFloat(v); ok {
		return &f
	}
	return nil
}

// asString renders scalars and unwraps {"value": ...}-style wrappers.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return NormalizeWhitespace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		if inner, ok := newObject(t).get(scalarKeys...); ok {
			return asString(inner)
		}
	}
	return ""
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case string:
		return ParseAmount(t)
	case map[string]any:
		if inner, ok := newObject(t).get(scalarKeys...); ok {
			return asFloat(inner)
		}
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		f, err := t.Float64()
		return int(f), err == nil
	case float64:
		return int(t), true
	case string:
		return ParseCount(t)
	case map[string]any:
		if inner, ok := newObject(t).get(scalarKeys...); ok {
			return asInt(inner)
		}
	}
	return 0, false
}

// mapListing converts one listing element into a canonical record.
func (s *Standardizer) mapListing(raw map[string]any, page *url.URL, scrapedAt time.Time) (models.Property, error) {
	o := newObject(raw)

	id := o.str(idKeys...)
	if id == "" {
		return models.Property{}, errNoNaturalKey
	}
	source := s.sourceName(page)
	if source == "" {
		return models.Property{}, errNoSource
	}

	p := models.Property{
		SourceListingID: id,
		SourceName:      source,
		ListingType:     listingTypeOf(o.str(listingTypeKeys...), page),
		Price:           s.mapPrice(o),
		Address:         mapAddress(o),
		Details: models.Details{
			Bedrooms:     o.count(bedroomKeys...),
			Bathrooms:    o.count(bathroomKeys...),
			Parking:      o.count(parkingKeys...),
			LandSize:     o.float(landKeys...),
			BuildingSize: o.float(buildingKeys...),
		},
		Images:      mapImages(o, page),
		Description: o.str(descriptionKeys...),
		Features:    mapFeatures(o),
		Contact:     mapContact(o),
		Availability: models.Availability{
			AvailableFrom: o.str(availableKeys...),
			Inspections:   mapInspections(o),
		},
		Metadata: models.Metadata{
			ListedAt:    parseDate(o.str(listedKeys...)),
			LastUpdated: scrapedAt,
			ScrapedAt:   scrapedAt,
			SourceURL:   resolveURL(page, o.str(urlKeys...)),
			Provenance:  models.ProvenanceStructured,
		},
	}
	if pt, ok := models.ParsePropertyType(o.str(typeKeys...)); ok {
		p.Details.PropertyType = pt
	}
	if p.Metadata.SourceURL == "" && page != nil {
		p.Metadata.SourceURL = page.String()
	}
	p.Metadata.Confidence = structuredConfidence(p)
	return p, nil
}

func (s *Standardizer) mapPrice(o object) models.Price {
	price := models.Price{Currency: s.cfg.Currency, Frequency: models.FrequencyWeekly}
	v, ok := o.get(priceKeys...)
	if !ok {
		return price
	}

	switch t := v.(type) {
	case map[string]any:
		po := newObject(t)
		price.Display = po.str("display", "displayPrice", "text", "label")
		price.Amount = po.float("amount", "value", "price", "min", "from")
		if c := po.str("currency", "currencyCode"); c != "" {
			price.Currency = strings.ToUpper(c)
		}
		if period := po.str("frequency", "period", "unit"); period != "" {
			price.Frequency = frequencyFromPeriod(period)
			return price
		}
	default:
		price.Display = asString(v)
		if f, ok := asFloat(v); ok {
			price.Amount = &f
		}
	}
	if price.Amount == nil && price.Display != "" {
		if f, ok := ParseAmount(price.Display); ok {
			price.Amount = &f
		}
	}
	price.Frequency = InferFrequency(price.Display)
	return price
}

func mapAddress(o object) models.Address {
	var addr models.Address
	if v, ok := o.get(addressKeys...); ok {
		switch t := v.(type) {
		case map[string]any:
			ao := newObject(t)
			addr.Display = ao.str("display", "displayAddress", "full", "fullAddress", "formatted")
			addr.Street = ao.str("streetAddress", "street", "line1", "addressLine1")
			addr.Suburb = ao.str("suburb", "locality", "addressLocality", "city")
			addr.State = strings.ToUpper(ao.str("state", "region", "addressRegion"))
			addr.Postcode = ao.str("postcode", "postalCode", "zip")
			if addr.Display == "" && addr.Street != "" {
				addr.Display = strings.Join(nonEmpty(addr.Street, addr.Suburb, addr.State, addr.Postcode), " ")
			}
		default:
			addr.Display = asString(v)
		}
	}

	if addr.Suburb == "" {
		addr.Suburb = o.str("suburb", "locality")
	}
	if addr.State == "" {
		addr.State = strings.ToUpper(o.str("state"))
	}
	if addr.Postcode == "" {
		addr.Postcode = o.str("postcode", "postalCode")
	}
	if addr.Street == "" {
		addr.Street = o.str("street", "streetAddress")
	}

	if (addr.State == "" || addr.Postcode == "" || addr.Suburb == "") && addr.Display != "" {
		if m := stateTailPattern.FindStringSubmatch(addr.Display); m != nil {
			if addr.Suburb == "" {
				addr.Suburb = strings.TrimSpace(m[1])
			}
			if addr.State == "" {
				addr.State = strings.ToUpper(m[2])
			}
			if addr.Postcode == "" {
				addr.Postcode = m[3]
			}
		}
	}
	if addr.Suburb != "" {
		addr.Suburb = models.CanonicalSuburb(addr.Suburb)
	}

	addr.Latitude = o.float(latitudeKeys...)
	addr.Longitude = o.float(longitudeKeys...)
	if addr.Latitude != nil && addr.Longitude != nil {
		addr.Geohash = geohash.EncodeWithPrecision(*addr.Latitude, *addr.Longitude, geohashPrecision)
	}
	return addr
}

func mapImages(o object, page *url.URL) []string {
	v, ok := o.get(imageKeys...)
	if !ok {
		return nil
	}
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	default:
		items = []any{t}
	}

	var out []string
	for _, item := range items {
		var link string
		switch t := item.(type) {
		case string:
			link = t
		case map[string]any:
			link = newObject(t).str("url", "src", "uri", "href", "templatedUrl")
		}
		if link = resolveURL(page, link); link != "" {
			out = append(out, link)
		}
	}
	return out
}

func mapFeatures(o object) []string {
	v, ok := o.get(featureKeys...)
	if !ok {
		return nil
	}
	items, isList := v.([]any)
	if !isList {
		return nil
	}
	var out []string
	for _, item := range items {
		if text := asString(item); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func mapContact(o object) models.Contact {
	var c models.Contact
	if v, ok := o.get(agentKeys...); ok {
		if list, isList := v.([]any); isList && len(list) > 0 {
			v = list[0]
		}
		switch t := v.(type) {
		case map[string]any:
			ao := newObject(t)
			c.AgentName = ao.str("name", "fullName", "displayName")
			c.AgentPhone = ao.str("phone", "phoneNumber", "mobile", "mobilePhone")
			c.AgencyName = ao.str("agency", "agencyName")
		case string:
			c.AgentName = NormalizeWhitespace(t)
		}
	}
	if c.AgencyName == "" {
		if v, ok := o.get(agencyKeys...); ok {
			if m, isMap := v.(map[string]any); isMap {
				c.AgencyName = newObject(m).str("name", "displayName", "agencyName")
			} else {
				c.AgencyName = asString(v)
			}
		}
	}
	return c
}

func mapInspections(o object) []models.InspectionSlot {
	v, ok := o.get(inspectionKeys...)
	if !ok {
		return nil
	}
	items, isList := v.([]any)
	if !isList {
		return nil
	}
	var out []models.InspectionSlot
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if text := NormalizeWhitespace(t); text != "" {
				out = append(out, models.InspectionSlot{Start: text})
			}
		case map[string]any:
			so := newObject(t)
			slot := models.InspectionSlot{
				Start: so.str("start", "startTime", "startsAt", "from"),
				End:   so.str("end", "endTime", "endsAt", "to"),
			}
			if slot.Start != "" {
				out = append(out, slot)
			}
		}
	}
	return out
}

func listingTypeOf(text string, page *url.URL) models.ListingType {
	switch strings.ToLower(text) {
	case "rent", "rental", "lease":
		return models.ListingRent
	case "buy", "sale", "sold":
		return models.ListingBuy
	}
	if page != nil {
		segments := strings.Split(strings.Trim(page.Path, "/"), "/")
		if len(segments) > 0 {
			switch models.ListingType(segments[0]) {
			case models.ListingRent, models.ListingBuy:
				return models.ListingType(segments[0])
			}
		}
	}
	return ""
}

func parseDate(text string) *time.Time {
	if text == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func resolveURL(page *url.URL, link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if page == nil || ref.IsAbs() {
		return ref.String()
	}
	return page.ResolveReference(ref).String()
}

// structuredConfidence starts at 1 and loses weight for each core field the
// element did not provide.
func structuredConfidence(p models.Property) float64 {
	score := 1.0
	missing := []bool{
		p.Price.Amount == nil,
		p.Details.Bedrooms == nil,
		p.Address.Suburb == "" && p.Address.Display == "",
		p.Details.PropertyType == "",
	}
	for _, m := range missing {
		if m {
			score -= 0.15
		}
	}
	return score
}

func nonEmpty(values ...string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
