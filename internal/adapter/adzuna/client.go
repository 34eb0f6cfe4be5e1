package adzuna

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
	"github.com/dachjobs/go-crawler/internal/quota"
)

const defaultBaseURL = "https://api.adzuna.com/v1/api/jobs"

// DefaultLimits mirrors the free-tier ceilings of the Adzuna API.
var DefaultLimits = quota.Limits{
	Minute:  25,
	Daily:   250,
	Weekly:  1000,
	Monthly: 2500,
}

// Client is the quota-gated Adzuna search client. Every request is
// debited against the tracker before it is sent, so a failed call
// still counts: the upstream meter ticks either way.
type Client struct {
	appID   string
	appKey  string
	baseURL string
	client  *http.Client
	tracker *quota.Tracker
	limits  quota.Limits

	resultsPerPage int
	pageDelay      time.Duration
}

// New creates an Adzuna client debiting hits against the given tracker.
func New(appID, appKey string, tracker *quota.Tracker) *Client {
	return &Client{
		appID:          appID,
		appKey:         appKey,
		baseURL:        defaultBaseURL,
		tracker:        tracker,
		limits:         DefaultLimits,
		resultsPerPage: 50,
		pageDelay:      time.Second,
		client:         &http.Client{Timeout: 10 * time.Second},
	}
}

// Name returns the source identifier.
func (c *Client) Name() string {
	return string(domain.SourceAdzuna)
}

// searchResponse is the subset of the Adzuna search payload we keep.
// Company and location arrive nested; salary_is_predicted is a string
// flag ("1"/"0").
type searchResponse struct {
	Results []struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Company struct {
			DisplayName string `json:"display_name"`
		} `json:"company"`
		Location struct {
			DisplayName string `json:"display_name"`
		} `json:"location"`
		SalaryMin         *float64 `json:"salary_min"`
		SalaryMax         *float64 `json:"salary_max"`
		SalaryIsPredicted string   `json:"salary_is_predicted"`
		Description       string   `json:"description"`
		Created           string   `json:"created"`
		RedirectURL       string   `json:"redirect_url"`
	} `json:"results"`
}

// Fetch pages through the search endpoint until pages are exhausted, a
// short page signals the end, or a quota period fills up.
func (c *Client) Fetch(ctx context.Context, query string, pages int, country string) ([]domain.RawListing, error) {
	var all []domain.RawListing

	for page := 1; page <= pages; page++ {
		select {
		case <-ctx.Done():
			return all, ctx.Err()
		default:
		}

		if period, over := c.overLimit(); over {
			log.Printf("[Adzuna] Quota limit reached (%s), stopping at page %d", period, page)
			break
		}

		endpoint := fmt.Sprintf("%s/%s/search/%d", c.baseURL, strings.ToLower(country), page)
		var payload searchResponse
		if err := c.getJSON(ctx, endpoint, query, &payload); err != nil {
			// A failed page ends pagination; what was collected so far
			// still counts.
			log.Printf("[Adzuna] Error on page %d for %q: %v", page, query, err)
			break
		}

		for _, r := range payload.Results {
			all = append(all, domain.RawListing{
				ExternalID:        r.ID,
				Title:             r.Title,
				Company:           r.Company.DisplayName,
				Location:          r.Location.DisplayName,
				Country:           strings.ToUpper(country),
				SalaryMin:         r.SalaryMin,
				SalaryMax:         r.SalaryMax,
				SalaryIsPredicted: r.SalaryIsPredicted == "1",
				Description:       r.Description,
				Created:           r.Created,
				URL:               r.RedirectURL,
				Source:            string(domain.SourceAdzuna),
				SearchQuery:       query,
			})
		}

		if len(payload.Results) < c.resultsPerPage {
			break
		}
		sleep(ctx, c.pageDelay)
	}

	return all, nil
}

// FetchSalaryHistory retrieves monthly average salaries for a role
// from the /history endpoint. Keys are "YYYY-MM" month stamps.
func (c *Client) FetchSalaryHistory(ctx context.Context, query, country string) (map[string]float64, error) {
	if period, over := c.overLimit(); over {
		return nil, fmt.Errorf("adzuna quota limit reached: %s", period)
	}

	endpoint := fmt.Sprintf("%s/%s/history", c.baseURL, strings.ToLower(country))
	var payload struct {
		Month map[string]float64 `json:"month"`
	}
	if err := c.getJSON(ctx, endpoint, query, &payload); err != nil {
		return nil, fmt.Errorf("adzuna history %q (%s): %w", query, country, err)
	}
	if len(payload.Month) == 0 {
		log.Printf("[Adzuna] History: no data for %q in %s", query, strings.ToUpper(country))
	}
	return payload.Month, nil
}

func (c *Client) overLimit() (string, bool) {
	usage, err := c.tracker.Status()
	if err != nil {
		log.Printf("[Adzuna] Quota status unavailable, assuming over limit: %v", err)
		return "unknown", true
	}
	return usage.Exceeded(c.limits)
}

func (c *Client) getJSON(ctx context.Context, endpoint, query string, out any) error {
	// Debit before sending. The upstream counts a hit even for
	// responses we end up discarding.
	if _, err := c.tracker.RecordHit(); err != nil {
		return fmt.Errorf("record quota hit: %w", err)
	}

	params := url.Values{}
	params.Set("app_id", c.appID)
	params.Set("app_key", c.appKey)
	params.Set("what", query)
	params.Set("results_per_page", fmt.Sprintf("%d", c.resultsPerPage))
	params.Set("content-type", "application/json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
