package parser

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-rentals/models"
	"golang.org/x/net/html"
)

const (
	contextRadius  = 2
	textConfidence = 0.3
)

var (
	linePricePattern   = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?`)
	lineBedPattern     = regexp.MustCompile(`(?i)\b(\d+)\s*(?:bed(?:room)?s?|br)\b`)
	lineBathPattern    = regexp.MustCompile(`(?i)\b(\d+)\s*(?:bath(?:room)?s?)\b`)
	lineParkingPattern = regexp.MustCompile(`(?i)\b(\d+)\s*(?:car\s?spaces?|cars?|parking|garages?)\b`)
	lineTypePattern    = regexp.MustCompile(`(?i)\b(apartment|unit|flat|studio|townhouse|terrace|house|villa|duplex)\b`)
	htmlPattern        = regexp.MustCompile(`(?is)<\s*(html|body|div|p|span|section|article|ul|li|table|h[1-6])[\s>]`)
)

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "dd": true, "div": true,
	"dl": true, "dt": true, "figcaption": true, "figure": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "header": true,
	"li": true, "main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "td": true, "th": true, "tr": true, "ul": true,
}

// renderLines turns markup into visible text lines. HTML is rendered with
// block elements as line boundaries; anything else is split on newlines.
func renderLines(markup string) ([]string, error) {
	if !htmlPattern.MatchString(markup) {
		return splitLines(markup), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup: %w", err)
	}
	doc.Find("head, script, style, noscript, template, svg").Remove()

	var sb strings.Builder
	for _, n := range doc.Nodes {
		writeText(&sb, n)
	}
	return splitLines(sb.String()), nil
}

func writeText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	case html.ElementNode:
		if n.Data == "br" {
			sb.WriteByte('\n')
			return
		}
	}

	block := n.Type == html.ElementNode && blockTags[n.Data]
	if block {
		sb.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(sb, c)
	}
	if block {
		sb.WriteByte('\n')
	}
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = NormalizeWhitespace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// textFallback emits one low-confidence record per line that carries both a
// price and a bedroom count. Neighbouring lines fill in what they can.
func (s *Standardizer) textFallback(lines []string, page *url.URL, scrapedAt time.Time) []models.Property {
	var out []models.Property
	for i, line := range lines {
		priceText := linePricePattern.FindString(line)
		bed := lineBedPattern.FindStringSubmatch(line)
		if priceText == "" || bed == nil {
			continue
		}

		window := contextWindow(lines, i)
		p := models.Property{
			SourceListingID: syntheticID(page, i),
			SourceName:      s.sourceName(page),
			ListingType:     listingTypeOf("", page),
			Price: models.Price{
				Display:   NormalizeWhitespace(priceText),
				Frequency: InferFrequency(line),
				Currency:  s.cfg.Currency,
			},
			Description: line,
			Metadata: models.Metadata{
				LastUpdated: scrapedAt,
				ScrapedAt:   scrapedAt,
				Provenance:  models.ProvenanceText,
				Confidence:  textConfidence,
			},
		}
		if page != nil {
			p.Metadata.SourceURL = page.String()
		}
		if amount, ok := ParseAmount(priceText); ok {
			p.Price.Amount = &amount
		}
		if n, ok := ParseCount(bed[1]); ok {
			p.Details.Bedrooms = &n
		}
		p.Details.Bathrooms = firstCount(lineBathPattern, window)
		p.Details.Parking = firstCount(lineParkingPattern, window)
		for _, l := range window {
			if m := lineTypePattern.FindString(l); m != "" {
				if pt, ok := models.ParsePropertyType(m); ok {
					p.Details.PropertyType = pt
					break
				}
			}
		}
		for _, l := range window {
			if m := stateTailPattern.FindStringSubmatch(l); m != nil {
				p.Address = models.Address{
					Display:  strings.TrimLeft(strings.TrimSpace(l), ", "),
					Suburb:   models.CanonicalSuburb(m[1]),
					State:    strings.ToUpper(m[2]),
					Postcode: m[3],
				}
				break
			}
		}
		out = append(out, p)
	}
	return out
}

// contextWindow returns line i first, followed by up to contextRadius lines
// on either side, nearest first.
func contextWindow(lines []string, i int) []string {
	window := []string{lines[i]}
	for d := 1; d <= contextRadius; d++ {
		if i-d >= 0 {
			window = append(window, lines[i-d])
		}
		if i+d < len(lines) {
			window = append(window, lines[i+d])
		}
	}
	return window
}

func firstCount(pattern *regexp.Regexp, lines []string) *int {
	for _, l := range lines {
		if m := pattern.FindStringSubmatch(l); m != nil {
			if n, ok := ParseCount(m[1]); ok {
				return &n
			}
		}
	}
	return nil
}

// syntheticID derives a position-based id for records without an upstream id.
func syntheticID(page *url.URL, line int) string {
	source := ""
	if page != nil {
		source = page.String()
	}
	sum := sha1.Sum([]byte(source))
	return fmt.Sprintf("text-%s-%d", hex.EncodeToString(sum[:])[:10], line)
}
