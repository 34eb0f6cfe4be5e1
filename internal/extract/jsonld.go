package extract

import (
	"encoding/json"
	nethtml "html"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// jsonLD is the loosely-typed shape of an embedded JobPosting record.
// Numeric salary fields arrive as numbers or strings depending on the
// site, so everything below baseSalary is decoded as any.
type jsonLD struct {
	Type        any     `json:"@type"`
	Graph       []jsonLD `json:"@graph"`
	Description string  `json:"description"`
	BaseSalary  struct {
		Value any `json:"value"`
	} `json:"baseSalary"`
}

// fromJSONLD scans the page's ld+json scripts for a JobPosting record
// and returns its description with any structured salary range.
func fromJSONLD(html string) (Result, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{}, false
	}

	var res Result
	var found bool
	doc.Find("script[type='application/ld+json']").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return true
		}

		for _, item := range decodeItems(raw) {
			if !isJobPosting(item.Type) || item.Description == "" {
				continue
			}
			res.Description = stripHTML(item.Description)
			res.SalaryMin, res.SalaryMax = salaryBounds(item.BaseSalary.Value)
			found = true
			return false
		}
		return true
	})

	if !found || res.Description == "" {
		return Result{}, false
	}
	return res, true
}

// decodeItems accepts a bare object, a top-level array, or an @graph
// wrapper and flattens all of them into candidate records.
func decodeItems(raw string) []jsonLD {
	var one jsonLD
	if err := json.Unmarshal([]byte(raw), &one); err == nil {
		if len(one.Graph) > 0 {
			return one.Graph
		}
		return []jsonLD{one}
	}

	var many []jsonLD
	if err := json.Unmarshal([]byte(raw), &many); err == nil {
		return many
	}
	return nil
}

func isJobPosting(t any) bool {
	switch v := t.(type) {
	case string:
		return v == "JobPosting"
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == "JobPosting" {
				return true
			}
		}
	}
	return false
}

// salaryBounds reads a schema.org QuantitativeValue: either a
// min/max pair or a single value used for both bounds.
func salaryBounds(value any) (*float64, *float64) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, nil
	}

	lo := toFloat(obj["minValue"])
	hi := toFloat(obj["maxValue"])
	if lo == nil && hi == nil {
		if v := toFloat(obj["value"]); v != nil {
			return v, v
		}
		return nil, nil
	}
	if lo == nil {
		lo = hi
	}
	if hi == nil {
		hi = lo
	}
	return lo, hi
}

func toFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		if n > 0 {
			return &n
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil && f > 0 {
			return &f
		}
	}
	return nil
}

// stripHTML flattens an HTML description fragment to plain text.
func stripHTML(fragment string) string {
	text := stripPolicy.Sanitize(fragment)
	return collapse(nethtml.UnescapeString(text))
}
