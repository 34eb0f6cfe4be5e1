package xing

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/dachjobs/go-crawler/internal/domain"
)

const searchBase = "https://www.xing.com/jobs/search"

var (
	jobLinkRe     = regexp.MustCompile(`/jobs/.*-\d+$`)
	salarySpanRe  = regexp.MustCompile(`\d+[.\s]?\d+\s?€\s?–?\s?(\d+[.\s]?\d+)?\s?€?`)
	salaryValueRe = regexp.MustCompile(`\d{1,3}[.\s]?\d{3}`)
)

// Annual EUR figures outside this band are page noise (premium prices,
// result counts), not salaries.
const (
	salaryFloor   = 20000
	salaryCeiling = 300000
)

var countryLocations = map[string]string{
	"DE": "Germany",
	"AT": "Austria",
	"CH": "Switzerland",
}

// Scraper crawls Xing job search result pages with Colly. Result cards
// carry no stable selectors, so fields are recovered from the card's
// pipe-joined text in title/company/location order.
type Scraper struct {
	collector *colly.Collector
	baseURL   string
	pageSize  int
}

// New creates a Xing scraper.
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
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7")
	})
	return &Scraper{collector: c, baseURL: searchBase, pageSize: 20}
}

// Name returns the source identifier.
func (s *Scraper) Name() string {
	return string(domain.SourceXing)
}

// Fetch crawls offset-paginated search pages for query.
func (s *Scraper) Fetch(ctx context.Context, query string, pages int, country string) ([]domain.RawListing, error) {
	location, ok := countryLocations[strings.ToUpper(country)]
	if !ok {
		location = countryLocations["DE"]
	}

	var all []domain.RawListing
	for page := 0; page < pages; page++ {
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		pageJobs, err := s.fetchPage(query, location, page*s.pageSize, strings.ToUpper(country))
		if err != nil {
			// A failed page ends pagination; what was collected so far
			// still counts.
			log.Printf("[Xing] Error at offset %d for %q: %v", page*s.pageSize, query, err)
			break
		}
		if len(pageJobs) == 0 {
			break
		}
		all = append(all, pageJobs...)
	}

	return all, nil
}

func (s *Scraper) fetchPage(query, location string, offset int, country string) ([]domain.RawListing, error) {
	var jobs []domain.RawListing
	var scrapeErr error

	collector := s.collector.Clone()

	collector.OnHTML("a[href]", func(el *colly.HTMLElement) {
		href := el.Attr("href")
		if !jobLinkRe.MatchString(href) {
			return
		}

		card := el.DOM.Closest("article")
		if card.Length() == 0 {
			card = el.DOM
		}

		parts := cardParts(card.Text())
		if len(parts) == 0 || strings.Contains(parts[0], "Jobs gefunden") {
			return
		}

		title := strings.TrimSpace(card.Find("h2, h3").First().Text())
		if title == "" {
			title = parts[0]
		}
		company := "Unknown"
		if len(parts) > 1 {
			company = parts[1]
		}
		loc := "Germany"
		if len(parts) > 2 {
			loc = parts[2]
		}

		salaryMin, salaryMax := parseSalary(salarySpanRe.FindString(strings.Join(parts, " ")))

		if strings.HasPrefix(href, "/") {
			href = "https://www.xing.com" + href
		}
		id := href[strings.LastIndex(href, "-")+1:]

		jobs = append(jobs, domain.RawListing{
			ExternalID:  id,
			Title:       title,
			Company:     company,
			Location:    loc,
			Country:     country,
			SalaryMin:   salaryMin,
			SalaryMax:   salaryMax,
			URL:         href,
			Source:      string(domain.SourceXing),
			SearchQuery: query,
		})
	})

	collector.OnError(func(r *colly.Response, err error) {
		scrapeErr = fmt.Errorf("fetch %s: %w (status %d)", r.Request.URL, err, r.StatusCode)
	})

	params := url.Values{}
	params.Set("keywords", query)
	params.Set("location", location)
	params.Set("offset", strconv.Itoa(offset))
	searchURL := s.baseURL + "?" + params.Encode()
	if err := collector.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", searchURL, err)
	}
	collector.Wait()

	if scrapeErr != nil {
		return nil, scrapeErr
	}
	return jobs, nil
}

// cardParts splits a card's text blob into trimmed non-empty segments.
func cardParts(text string) []string {
	var parts []string
	for _, p := range strings.Split(text, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// parseSalary pulls annual EUR bounds out of a salary snippet like
// "55.000 € – 70.000 €". Values outside the plausibility band are
// dropped; a single surviving value is both min and max.
func parseSalary(snippet string) (*float64, *float64) {
	if snippet == "" {
		return nil, nil
	}

	var values []float64
	for _, m := range salaryValueRe.FindAllString(snippet, -1) {
		m = strings.ReplaceAll(m, ".", "")
		m = strings.ReplaceAll(m, " ", "")
		v, err := strconv.ParseFloat(m, 64)
		if err != nil {
			continue
		}
		if v >= salaryFloor && v <= salaryCeiling {
			values = append(values, v)
		}
	}

	switch len(values) {
	case 0:
		return nil, nil
	case 1:
		return &values[0], &values[0]
	default:
		lo, hi := values[0], values[0]
		for _, v := range values[1:] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		return &lo, &hi
	}
}
