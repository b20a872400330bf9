package scraper

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// stateAssignments are inline-script globals that carry page state.
var stateAssignments = []string{
	"window.__INITIAL_STATE__",
	"window.ArgonautExchange",
	"window.__PRELOADED_STATE__",
	"window.__APOLLO_STATE__",
}

// extractStructured pulls the embedded data blob out of an HTML page, along
// with a few descriptive metadata fields. The Next.js data script wins over
// inline state assignments, which win over JSON-LD.
func extractStructured(markup string) (json.RawMessage, map[string]string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, nil
	}

	meta := map[string]string{}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		meta["title"] = title
	}
	if canonical, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && canonical != "" {
		meta["canonical_url"] = canonical
	}

	if text := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text()); json.Valid([]byte(text)) {
		meta["structured_source"] = "next_data"
		return json.RawMessage(text), meta
	}

	var state json.RawMessage
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if data, ok := stateAssignment(s.Text()); ok {
			state = data
			return false
		}
		return true
	})
	if state != nil {
		meta["structured_source"] = "inline_state"
		return state, meta
	}

	var blocks []json.RawMessage
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if json.Valid([]byte(text)) {
			blocks = append(blocks, json.RawMessage(text))
		}
	})
	switch len(blocks) {
	case 0:
		return nil, meta
	case 1:
		meta["structured_source"] = "ld_json"
		return blocks[0], meta
	default:
		merged, err := json.Marshal(blocks)
		if err != nil {
			return nil, meta
		}
		meta["structured_source"] = "ld_json"
		return merged, meta
	}
}

// stateAssignment decodes the first JSON value assigned to a known global in
// script. Trailing statements after the value are ignored.
func stateAssignment(script string) (json.RawMessage, bool) {
	for _, name := range stateAssignments {
		idx := strings.Index(script, name)
		if idx < 0 {
			continue
		}
		rest := script[idx+len(name):]
		eq := strings.IndexByte(rest, '=')
		if eq < 0 || strings.TrimSpace(rest[:eq]) != "" {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(rest[eq+1:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
			return raw, true
		}
	}
	return nil, false
}
