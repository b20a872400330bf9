// Package querybuilder maps SearchParams to source-site search URLs and back.
//
// A target has the shape
//
//	{base}/{rent|buy}/{property|property-<type>}/{suburb}-{state}-{postcode}/list-{page}?{filters}
//
// with filters emitted in a fixed order: bedrooms, bathrooms, price, parking,
// sort, pagesize. Ranges use the min-max, min-any and 0-max encodings.
package querybuilder

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-rentals/models"
)

// ErrInvalidTarget is wrapped by every Parse failure.
var ErrInvalidTarget = errors.New("querybuilder: invalid target")

const (
	typeSegment = "property"
	listPrefix  = "list-"
	anyBound    = "any"
)

// Builder converts between SearchParams and target URLs for one site.
type Builder struct {
	base *url.URL
}

// New returns a Builder rooted at baseURL.
func New(baseURL string) (*Builder, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if parsed.Scheme == "" {
		parsed.Scheme = "https"
	}
	return &Builder{base: parsed}, nil
}

// Host returns the site host targets are built for.
func (b *Builder) Host() string {
	return b.base.Host
}

// Build returns the canonical target for params. Params are normalized first,
// so differently spelled but equivalent requests produce the same target.
func (b *Builder) Build(params models.SearchParams) string {
	p := params.Normalized()

	var sb strings.Builder
	sb.WriteString(b.base.Scheme)
	sb.WriteString("://")
	sb.WriteString(b.base.Host)
	sb.WriteString(strings.TrimRight(b.base.Path, "/"))
	sb.WriteByte('/')
	sb.WriteString(string(p.ListingType))
	sb.WriteByte('/')
	sb.WriteString(typeSegment)
	if p.PropertyType != "" {
		sb.WriteByte('-')
		sb.WriteString(string(p.PropertyType))
	}
	sb.WriteByte('/')
	sb.WriteString(locationSegment(p))
	sb.WriteByte('/')
	sb.WriteString(listPrefix)
	sb.WriteString(strconv.Itoa(p.Page))

	filters := make([]string, 0, 6)
	addRange := func(name string, r models.Range) {
		if enc := EncodeRange(r); enc != "" {
			filters = append(filters, name+"="+enc)
		}
	}
	addRange("bedrooms", p.Bedrooms)
	addRange("bathrooms", p.Bathrooms)
	addRange("price", p.Price)
	if p.Parking != nil {
		filters = append(filters, "parking="+strconv.Itoa(*p.Parking))
	}
	if p.Sort != models.SortRelevance {
		filters = append(filters, "sort="+string(p.Sort))
	}
	if p.PageSize != models.DefaultPageSize {
		filters = append(filters, "pagesize="+strconv.Itoa(p.PageSize))
	}
	if len(filters) > 0 {
		sb.WriteByte('?')
		sb.WriteString(strings.Join(filters, "&"))
	}
	return sb.String()
}

// BuildAll expands a request without a property type into one target per
// known type. A typed request yields exactly one target.
func (b *Builder) BuildAll(params models.SearchParams) []string {
	if params.PropertyType != "" {
		return []string{b.Build(params)}
	}
	targets := make([]string, 0, len(models.PropertyTypes))
	for _, t := range models.PropertyTypes {
		targets = append(targets, b.Build(params.WithPropertyType(t)))
	}
	return targets
}

// Parse is the inverse of Build. It fails when the target does not have the
// expected shape.
func (b *Builder) Parse(target string) (models.SearchParams, error) {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return models.SearchParams{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if !strings.EqualFold(u.Host, b.base.Host) {
		return models.SearchParams{}, fmt.Errorf("%w: host %q is not %q", ErrInvalidTarget, u.Host, b.base.Host)
	}

	path := strings.TrimPrefix(u.Path, strings.TrimRight(b.base.Path, "/"))
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) != 4 {
		return models.SearchParams{}, fmt.Errorf("%w: expected 4 path segments, got %d", ErrInvalidTarget, len(segments))
	}

	var p models.SearchParams
	switch listing := models.ListingType(segments[0]); listing {
	case models.ListingRent, models.ListingBuy:
		p.ListingType = listing
	default:
		return models.SearchParams{}, fmt.Errorf("%w: unknown listing intent %q", ErrInvalidTarget, segments[0])
	}

	if p.PropertyType, err = parseTypeSegment(segments[1]); err != nil {
		return models.SearchParams{}, err
	}
	if err := parseLocationSegment(segments[2], &p); err != nil {
		return models.SearchParams{}, err
	}

	pageText, ok := strings.CutPrefix(segments[3], listPrefix)
	if !ok {
		return models.SearchParams{}, fmt.Errorf("%w: malformed list segment %q", ErrInvalidTarget, segments[3])
	}
	if p.Page, err = positiveInt(pageText); err != nil {
		return models.SearchParams{}, fmt.Errorf("%w: page: %v", ErrInvalidTarget, err)
	}

	if err := parseFilters(u.Query(), &p); err != nil {
		return models.SearchParams{}, err
	}
	if p.Sort == "" {
		p.Sort = models.SortRelevance
	}
	if p.PageSize == 0 {
		p.PageSize = models.DefaultPageSize
	}
	if err := p.Validate(); err != nil {
		return models.SearchParams{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	return p, nil
}

// Owns reports whether rawURL points at the builder's site.
func (b *Builder) Owns(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && strings.EqualFold(u.Host, b.base.Host)
}

func locationSegment(p models.SearchParams) string {
	return models.Slugify(p.Suburb) + "-" + strings.ToLower(p.State) + "-" + p.Postcode
}

func parseTypeSegment(segment string) (models.PropertyType, error) {
	if segment == typeSegment {
		return "", nil
	}
	slug, ok := strings.CutPrefix(segment, typeSegment+"-")
	if !ok {
		return "", fmt.Errorf("%w: malformed property segment %q", ErrInvalidTarget, segment)
	}
	for _, t := range models.PropertyTypes {
		if string(t) == slug {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unrecognized property type %q", ErrInvalidTarget, slug)
}

func parseLocationSegment(segment string, p *models.SearchParams) error {
	parts := strings.Split(segment, "-")
	if len(parts) < 3 {
		return fmt.Errorf("%w: malformed location segment %q", ErrInvalidTarget, segment)
	}
	postcode := parts[len(parts)-1]
	state := strings.ToUpper(parts[len(parts)-2])
	suburb := strings.Join(parts[:len(parts)-2], "-")

	if !models.ValidPostcode(postcode) {
		return fmt.Errorf("%w: postcode %q is not 4 digits", ErrInvalidTarget, postcode)
	}
	if !models.ValidState(state) {
		return fmt.Errorf("%w: invalid state code %q", ErrInvalidTarget, state)
	}
	if suburb == "" || models.Slugify(suburb) != suburb {
		return fmt.Errorf("%w: malformed suburb slug %q", ErrInvalidTarget, suburb)
	}

	p.Suburb = models.SuburbFromSlug(suburb)
	p.State = state
	p.Postcode = postcode
	return nil
}

func parseFilters(values url.Values, p *models.SearchParams) error {
	var err error
	for key := range values {
		switch key {
		case "bedrooms", "bathrooms", "price", "parking", "sort", "pagesize":
		default:
			return fmt.Errorf("%w: unknown filter %q", ErrInvalidTarget, key)
		}
	}
	if p.Bedrooms, err = DecodeRange(values.Get("bedrooms")); err != nil {
		return fmt.Errorf("%w: bedrooms: %v", ErrInvalidTarget, err)
	}
	if p.Bathrooms, err = DecodeRange(values.Get("bathrooms")); err != nil {
		return fmt.Errorf("%w: bathrooms: %v", ErrInvalidTarget, err)
	}
	if p.Price, err = DecodeRange(values.Get("price")); err != nil {
		return fmt.Errorf("%w: price: %v", ErrInvalidTarget, err)
	}
	if raw := values.Get("parking"); raw != "" {
		n, err := positiveInt(raw)
		if err != nil {
			return fmt.Errorf("%w: parking: %v", ErrInvalidTarget, err)
		}
		p.Parking = models.IntPtr(n)
	}
	if raw := values.Get("sort"); raw != "" {
		if !models.ValidSort(models.SortKey(raw)) || models.SortKey(raw) == models.SortRelevance {
			return fmt.Errorf("%w: sort %q", ErrInvalidTarget, raw)
		}
		p.Sort = models.SortKey(raw)
	}
	if raw := values.Get("pagesize"); raw != "" {
		if p.PageSize, err = positiveInt(raw); err != nil {
			return fmt.Errorf("%w: pagesize: %v", ErrInvalidTarget, err)
		}
	}
	return nil
}

// EncodeRange renders r as min-max, min-any or 0-max. An unbounded range
// encodes to the empty string.
func EncodeRange(r models.Range) string {
	switch {
	case r.Min != nil && r.Max != nil:
		return fmt.Sprintf("%d-%d", *r.Min, *r.Max)
	case r.Min != nil:
		return fmt.Sprintf("%d-%s", *r.Min, anyBound)
	case r.Max != nil:
		return fmt.Sprintf("0-%d", *r.Max)
	default:
		return ""
	}
}

// DecodeRange parses the EncodeRange format. A zero minimum decodes as an
// absent minimum.
func DecodeRange(text string) (models.Range, error) {
	if text == "" {
		return models.Range{}, nil
	}
	lo, hi, ok := strings.Cut(text, "-")
	if !ok {
		return models.Range{}, fmt.Errorf("range %q must be min-max", text)
	}

	var r models.Range
	lower, err := nonNegativeInt(lo)
	if err != nil {
		return models.Range{}, err
	}
	if lower > 0 {
		r.Min = models.IntPtr(lower)
	}
	if hi != anyBound {
		upper, err := nonNegativeInt(hi)
		if err != nil {
			return models.Range{}, err
		}
		if lower > upper {
			return models.Range{}, fmt.Errorf("range %q has min above max", text)
		}
		r.Max = models.IntPtr(upper)
	}
	return r, nil
}

func nonNegativeInt(text string) (int, error) {
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", text)
	}
	if n < 0 {
		return 0, fmt.Errorf("%q is negative", text)
	}
	return n, nil
}

func positiveInt(text string) (int, error) {
	n, err := nonNegativeInt(text)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, fmt.Errorf("%q must be positive", text)
	}
	return n, nil
}
