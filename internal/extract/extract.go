// Package extract turns fetched detail-page HTML into a description
// and optional salary bounds. Strategies are ordered: embedded
// JobPosting metadata first, then per-host selector chains, then a
// generic text-block sweep for unknown hosts. First success wins.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Result is the outcome of a successful extraction. Salary bounds are
// nil unless the page carried structured salary data.
type Result struct {
	Description string
	SalaryMin   *float64
	SalaryMax   *float64
}

// hostSelectors is the fallback chain of content selectors for hosts
// we know. Tried in order after the structured-metadata pass.
var hostSelectors = map[string][]string{
	"stepstone": {
		"div[class*='JobDescription']",
		"div.js-app-ld-ContentBlock",
		"article",
	},
	"xing": {
		"div[class*='job-description']",
		"div[class*='description']",
		"main",
	},
}

// blockMarkers are phrases whose presence means the page is a bot
// wall, CAPTCHA or geo redirect rather than a job posting. Matching is
// case-insensitive substring.
var blockMarkers = []string{
	"access denied",
	"request blocked",
	"are you a robot",
	"are you a human",
	"captcha",
	"pardon our interruption",
	"verify you are human",
	"unusual traffic",
	"zugriff verweigert",
	"sicherheitsüberprüfung",
}

// Blocked reports whether text looks like a block page.
func Blocked(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range blockMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Run extracts a description from html fetched from host (the final
// post-redirect host). Returns false when no strategy matched.
func Run(host, html string) (Result, bool) {
	if res, ok := fromJSONLD(html); ok {
		return res, true
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Result{}, false
	}

	for key, selectors := range hostSelectors {
		if !strings.Contains(host, key) {
			continue
		}
		for _, sel := range selectors {
			block := doc.Find(sel).First()
			if block.Length() == 0 {
				continue
			}
			if text := collapse(block.Text()); text != "" {
				return Result{Description: text}, true
			}
		}
		break
	}

	if text := genericBlocks(doc); text != "" {
		return Result{Description: text}, true
	}
	return Result{}, false
}

// genericBlocks is the last-resort strategy for unrecognized hosts:
// drop chrome elements, keep block-level text longer than 100 chars.
func genericBlocks(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header, aside").Remove()

	var blocks []string
	doc.Find("p, li").Each(func(_ int, sel *goquery.Selection) {
		if text := collapse(sel.Text()); len(text) > 100 {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		doc.Find("div").Each(func(_ int, sel *goquery.Selection) {
			if sel.Children().Length() > 0 {
				return
			}
			if text := collapse(sel.Text()); len(text) > 100 {
				blocks = append(blocks, text)
			}
		})
	}
	return strings.Join(blocks, "\n")
}

// collapse trims and squashes runs of whitespace to single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
