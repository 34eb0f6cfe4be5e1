package stepstone

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/dachjobs/go-crawler/internal/domain"
)

var (
	jobLinkRe = regexp.MustCompile(`/stellenangebote--`)
	jobIDRe   = regexp.MustCompile(`-(\d+)(?:-inline)?\.html`)
)

// countrySite maps a country code to the StepStone domain and the
// location slug appended to search URLs.
type countrySite struct {
	base string
	loc  string
}

var sites = map[string]countrySite{
	"DE": {base: "https://www.stepstone.de", loc: "in-deutschland"},
	"AT": {base: "https://www.stepstone.at", loc: "in-österreich"},
	"CH": {base: "https://www.stepstone.ch", loc: "in-schweiz"},
}

// Scraper crawls StepStone search result pages with Colly. Request
// pacing is left to the collector's limit rule.
type Scraper struct {
	collector *colly.Collector
}

// New creates a StepStone scraper.
func New() *Scraper {
	c := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
		colly.AllowURLRevisit(),
	)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Delay:       2 * time.Second,
		RandomDelay: time.Second,
	})
	return &Scraper{collector: c}
}

// Name returns the source identifier.
func (s *Scraper) Name() string {
	return string(domain.SourceStepStone)
}

// Fetch crawls search pages for query. Each result card is an
// <article> with a job link, a company link (or data-test fallback)
// and a location span.
func (s *Scraper) Fetch(ctx context.Context, query string, pages int, country string) ([]domain.RawListing, error) {
	site, ok := sites[strings.ToUpper(country)]
	if !ok {
		site = sites["DE"]
	}

	var all []domain.RawListing
	for page := 1; page <= pages; page++ {
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		pageJobs, err := s.fetchPage(site, query, page, strings.ToUpper(country))
		if err != nil {
			// A failed page ends pagination; what was collected so far
			// still counts.
			log.Printf("[StepStone] Error on page %d for %q: %v", page, query, err)
			break
		}
		if len(pageJobs) == 0 {
			log.Printf("[StepStone] No more results on page %d for %q", page, query)
			break
		}
		all = append(all, pageJobs...)
	}

	return all, nil
}

func (s *Scraper) fetchPage(site countrySite, query string, page int, country string) ([]domain.RawListing, error) {
	var jobs []domain.RawListing
	var scrapeErr error

	collector := s.collector.Clone()

	collector.OnHTML("article", func(el *colly.HTMLElement) {
		title := strings.TrimSpace(el.DOM.Find("h2").First().Text())

		link := el.DOM.Find("a").FilterFunction(func(_ int, sel *goquery.Selection) bool {
			href, _ := sel.Attr("href")
			return jobLinkRe.MatchString(href)
		}).First()
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return
		}
		if !strings.HasPrefix(href, "http") {
			href = site.base + href
		}

		company := strings.TrimSpace(el.DOM.Find("a[href*='/cmp/']").First().Text())
		if company == "" {
			company = strings.TrimSpace(el.DOM.Find("[data-test='job-item-company-name']").First().Text())
		}
		if company == "" {
			company = companyFromURL(href)
		}

		location := strings.TrimSpace(el.DOM.Find("span[data-test='job-item-location']").First().Text())
		if location == "" {
			location = strings.TrimSpace(el.DOM.Find("div[data-test='job-item-location']").First().Text())
		}
		if location == "" {
			if country == "DE" {
				location = "Germany"
			} else {
				location = country
			}
		}

		jobs = append(jobs, domain.RawListing{
			ExternalID:  jobID(href),
			Title:       title,
			Company:     company,
			Location:    location,
			Country:     country,
			URL:         href,
			Source:      string(domain.SourceStepStone),
			SearchQuery: query,
		})
	})

	collector.OnError(func(r *colly.Response, err error) {
		scrapeErr = fmt.Errorf("fetch %s: %w (status %d)", r.Request.URL, err, r.StatusCode)
	})

	url := searchURL(site, query, page)
	if err := collector.Visit(url); err != nil {
		return nil, fmt.Errorf("visit %s: %w", url, err)
	}
	collector.Wait()

	if scrapeErr != nil {
		return nil, scrapeErr
	}
	return jobs, nil
}

func searchURL(site countrySite, query string, page int) string {
	slug := strings.ReplaceAll(query, " ", "-")
	return fmt.Sprintf("%s/jobs/%s/%s?page=%d", site.base, slug, site.loc, page)
}

// jobID extracts the numeric listing id from a detail URL. URLs without
// one fall back to the URL itself so dedup still has a stable key.
func jobID(href string) string {
	if m := jobIDRe.FindStringSubmatch(href); m != nil {
		return m[1]
	}
	return href
}

// companyFromURL recovers a company name from the detail URL slug when
// the result card carries none. The slug tail before the id is usually
// the company: .../stellenangebote--Title-Location-Company--12345-inline.html
func companyFromURL(href string) string {
	parts := strings.Split(href, "--")
	if len(parts) < 2 {
		return "Unknown"
	}
	words := strings.Split(parts[1], "-")
	if len(words) <= 2 {
		return "Unknown"
	}
	tail := words[len(words)-2:]
	return titleCase(strings.Join(tail, " "))
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
