package arbeitsagentur

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dachjobs/go-crawler/internal/domain"
)

const (
	defaultBaseURL = "https://rest.arbeitsagentur.de/jobboerse/jobsuche-service/pc/v5/jobs"
	detailURL      = "https://www.arbeitsagentur.de/jobsuche/jobdetail/"

	// Public client key baked into the official job search frontend.
	apiKey = "jobboerse-jobsuche"
)

// Client queries the Bundesagentur fuer Arbeit job search API. The v5
// endpoint is primary; a non-200 answer triggers one retry against v4,
// which has survived several v5 outages.
type Client struct {
	baseURL   string
	client    *http.Client
	pageDelay time.Duration
}

// New creates an Arbeitsagentur API client.
func New() *Client {
	return &Client{
		baseURL:   defaultBaseURL,
		pageDelay: time.Second,
		client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Name returns the source identifier.
func (c *Client) Name() string {
	return string(domain.SourceArbeitsagentur)
}

type searchResponse struct {
	Stellenangebote []struct {
		Refnr       string `json:"refnr"`
		Titel       string `json:"titel"`
		Arbeitgeber string `json:"arbeitgeber"`
		Arbeitsort  struct {
			Ort string `json:"ort"`
		} `json:"arbeitsort"`
		Veroeffentlicht string `json:"aktuelleVeroeffentlichungsdatum"`
	} `json:"stellenangebote"`
}

// Fetch pages through the search API. The "wo" parameter is fussy:
// "Germany", "Remote" and similar return zero results, so anything
// country-wide collapses to "Deutschland".
func (c *Client) Fetch(ctx context.Context, query string, pages int, country string) ([]domain.RawListing, error) {
	location := "Deutschland"

	var all []domain.RawListing
	for page := 1; page <= pages; page++ {
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		payload, err := c.searchPage(ctx, query, location, page)
		if err != nil {
			// A failed page ends pagination; what was collected so far
			// still counts.
			log.Printf("[Arbeitsagentur] Error on page %d for %q: %v", page, query, err)
			break
		}

		for _, item := range payload.Stellenangebote {
			if item.Refnr == "" {
				continue
			}
			ort := item.Arbeitsort.Ort
			if ort == "" {
				ort = "Deutschland"
			}
			all = append(all, domain.RawListing{
				ExternalID:  item.Refnr,
				Title:       item.Titel,
				Company:     item.Arbeitgeber,
				Location:    ort,
				Country:     strings.ToUpper(country),
				Created:     item.Veroeffentlicht,
				URL:         detailURL + item.Refnr,
				Source:      string(domain.SourceArbeitsagentur),
				SearchQuery: query,
			})
		}

		if len(payload.Stellenangebote) < 50 {
			break
		}

		t := time.NewTimer(c.pageDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return all, ctx.Err()
		case <-t.C:
		}
	}

	return all, nil
}

func (c *Client) searchPage(ctx context.Context, query, location string, page int) (*searchResponse, error) {
	params := url.Values{}
	params.Set("was", query)
	params.Set("wo", location)
	params.Set("page", fmt.Sprintf("%d", page))
	params.Set("size", "50")

	resp, err := c.get(ctx, c.baseURL, params)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		// v4 fallback
		alt := strings.Replace(c.baseURL, "/v5/", "/v4/", 1)
		resp, err = c.get(ctx, alt, params)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}
	}
	defer resp.Body.Close()

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &payload, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/133.0.0.0 Safari/537.36")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	return resp, nil
}
