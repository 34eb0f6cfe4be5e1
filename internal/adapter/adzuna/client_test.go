package adzuna

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dachjobs/go-crawler/internal/quota"
)

func testClient(t *testing.T, handler http.Handler) (*Client, *quota.Tracker) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tracker := quota.NewTracker(quota.NewMemoryStore())
	c := New("id", "key", tracker)
	c.baseURL = srv.URL
	c.pageDelay = 0
	return c, tracker
}

func searchPage(n int) []byte {
	type result struct {
		ID                string `json:"id"`
		Title             string `json:"title"`
		Company           any    `json:"company"`
		Location          any    `json:"location"`
		SalaryIsPredicted string `json:"salary_is_predicted"`
		RedirectURL       string `json:"redirect_url"`
	}
	results := make([]result, n)
	for i := range results {
		results[i] = result{
			ID:                fmt.Sprintf("job-%d", i),
			Title:             "Data Engineer (m/w/d)",
			Company:           map[string]string{"display_name": "ACME GmbH"},
			Location:          map[string]string{"display_name": "Berlin, Berlin"},
			SalaryIsPredicted: "1",
			RedirectURL:       fmt.Sprintf("https://example.org/job-%d", i),
		}
	}
	b, _ := json.Marshal(map[string]any{"results": results})
	return b
}

func TestFetch_FlattensNestedFields(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(searchPage(2))
	}))

	jobs, err := c.Fetch(context.Background(), "Data Engineer", 1, "de")
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "ACME GmbH", jobs[0].Company)
	assert.Equal(t, "Berlin, Berlin", jobs[0].Location)
	assert.Equal(t, "DE", jobs[0].Country)
	assert.True(t, jobs[0].SalaryIsPredicted)
	assert.Equal(t, "adzuna", jobs[0].Source)
	assert.Equal(t, "Data Engineer", jobs[0].SearchQuery)
}

func TestFetch_StopsOnShortPage(t *testing.T) {
	var calls int
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(searchPage(3)) // below resultsPerPage: last page
	}))

	jobs, err := c.Fetch(context.Background(), "Data Analyst", 5, "de")
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
	assert.Equal(t, 1, calls, "short page must end pagination")
}

func TestFetch_QuotaGateStopsPagination(t *testing.T) {
	var calls int
	c, tracker := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write(searchPage(50)) // full page, would keep paging
	}))
	c.limits = quota.Limits{Minute: 2}

	jobs, err := c.Fetch(context.Background(), "Data Scientist", 10, "de")
	require.NoError(t, err)

	// The gate is checked before each page, so exactly two requests go
	// out before the minute ceiling closes the loop.
	assert.Equal(t, 2, calls)
	assert.Len(t, jobs, 100)

	u, err := tracker.Status()
	require.NoError(t, err)
	assert.Equal(t, 2, u.Minute)
}

func TestFetch_DebitsQuotaEvenOnErrorStatus(t *testing.T) {
	c, tracker := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))

	// A failed page ends pagination without erroring the fetch.
	jobs, err := c.Fetch(context.Background(), "Data Analyst", 1, "de")
	require.NoError(t, err)
	assert.Empty(t, jobs)

	u, err := tracker.Status()
	require.NoError(t, err)
	assert.Equal(t, 1, u.Minute, "failed requests still count against the quota")
}

func TestFetchSalaryHistory(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/de/history", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"month": map[string]float64{"2026-07": 64500, "2026-08": 65100},
		})
	}))

	months, err := c.FetchSalaryHistory(context.Background(), "Data Engineer", "DE")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"2026-07": 64500, "2026-08": 65100}, months)
}

func TestFetch_ContextCancellation(t *testing.T) {
	c, _ := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(searchPage(50))
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, "Data Analyst", 3, "de")
	assert.ErrorIs(t, err, context.Canceled)
}
