package arbeitsagentur

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func page(refs ...string) map[string]any {
	items := make([]map[string]any, 0, len(refs))
	for _, r := range refs {
		items = append(items, map[string]any{
			"refnr":                           r,
			"titel":                           "Data Analyst",
			"arbeitgeber":                     "Beispiel AG",
			"arbeitsort":                      map[string]string{"ort": "Hamburg"},
			"aktuelleVeroeffentlichungsdatum": "2026-08-20",
		})
	}
	return map[string]any{"stellenangebote": items}
}

func TestFetch_MapsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "jobboerse-jobsuche", r.Header.Get("X-API-Key"))
		assert.Equal(t, "Deutschland", r.URL.Query().Get("wo"))
		json.NewEncoder(w).Encode(page("10001-ABC"))
	}))
	defer srv.Close()

	c := New()
	c.baseURL = srv.URL + "/v5/jobs"
	c.pageDelay = 0

	jobs, err := c.Fetch(context.Background(), "Data Analyst", 1, "de")
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	assert.Equal(t, "10001-ABC", jobs[0].ExternalID)
	assert.Equal(t, "Beispiel AG", jobs[0].Company)
	assert.Equal(t, "Hamburg", jobs[0].Location)
	assert.Equal(t, "DE", jobs[0].Country)
	assert.Equal(t, "arbeitsagentur", jobs[0].Source)
	assert.True(t, strings.HasSuffix(jobs[0].URL, "/jobdetail/10001-ABC"))
}

func TestFetch_FallsBackToV4(t *testing.T) {
	var sawV4 bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/v5/") {
			http.Error(w, "gone", http.StatusBadGateway)
			return
		}
		sawV4 = true
		json.NewEncoder(w).Encode(page("20002-XYZ"))
	}))
	defer srv.Close()

	c := New()
	c.baseURL = srv.URL + "/v5/jobs"
	c.pageDelay = 0

	jobs, err := c.Fetch(context.Background(), "Data Engineer", 1, "de")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.True(t, sawV4, "v5 failure must retry against v4")
}

func TestFetch_FirstPageErrorReturnsEmptyList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New()
	c.baseURL = srv.URL + "/v5/jobs"
	c.pageDelay = 0

	jobs, err := c.Fetch(context.Background(), "Data Analyst", 3, "de")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestFetch_SkipsItemsWithoutRefnr(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"stellenangebote": []map[string]any{
				{"titel": "No ref"},
				{"refnr": "30003", "titel": "Valid", "arbeitgeber": "Firma"},
			},
		})
	}))
	defer srv.Close()

	c := New()
	c.baseURL = srv.URL + "/v5/jobs"
	c.pageDelay = 0

	jobs, err := c.Fetch(context.Background(), "BI Developer", 1, "de")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "30003", jobs[0].ExternalID)
}
