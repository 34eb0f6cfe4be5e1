package xing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<!DOCTYPE html><html><body>
<p>1.234 Jobs gefunden</p>
<article>
  <h3>Data Scientist</h3>
  <span>Beispiel Analytics GmbH</span>
  <span>München</span>
  <span>55.000 € – 70.000 €</span>
  <a href="/jobs/data-scientist-muenchen-1234567">Details</a>
</article>
<article>
  <h3>Werkstudent Data</h3>
  <span>Startup UG</span>
  <span>Berlin</span>
  <a href="/jobs/werkstudent-data-berlin-7654321">Details</a>
</article>
</body></html>`

func TestFetchPage_ParsesCards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Data Scientist", r.URL.Query().Get("keywords"))
		assert.Equal(t, "Germany", r.URL.Query().Get("location"))
		w.Write([]byte(resultsPage))
	}))
	defer srv.Close()

	s := &Scraper{collector: colly.NewCollector(colly.AllowURLRevisit()), baseURL: srv.URL, pageSize: 20}
	jobs, err := s.fetchPage("Data Scientist", "Germany", 0, "DE")
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, "1234567", jobs[0].ExternalID)
	assert.Equal(t, "Data Scientist", jobs[0].Title)
	assert.Equal(t, "Beispiel Analytics GmbH", jobs[0].Company)
	assert.Equal(t, "München", jobs[0].Location)
	assert.Equal(t, "https://www.xing.com/jobs/data-scientist-muenchen-1234567", jobs[0].URL)
	require.NotNil(t, jobs[0].SalaryMin)
	assert.Equal(t, 55000.0, *jobs[0].SalaryMin)
	assert.Equal(t, 70000.0, *jobs[0].SalaryMax)

	assert.Nil(t, jobs[1].SalaryMin)
	assert.Equal(t, "Startup UG", jobs[1].Company)
}

func TestFetch_FirstPageErrorReturnsEmptyList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := &Scraper{collector: colly.NewCollector(colly.AllowURLRevisit()), baseURL: srv.URL, pageSize: 20}
	jobs, err := s.Fetch(context.Background(), "Data Scientist", 2, "de")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestParseSalary(t *testing.T) {
	tests := []struct {
		name    string
		snippet string
		wantMin float64
		wantMax float64
		wantNil bool
	}{
		{name: "range", snippet: "55.000 € – 70.000 €", wantMin: 55000, wantMax: 70000},
		{name: "single value", snippet: "65 000 €", wantMin: 65000, wantMax: 65000},
		{name: "empty", snippet: "", wantNil: true},
		{name: "out of band low", snippet: "1.000 €", wantNil: true},
		{name: "out of band high", snippet: "900.000 €", wantNil: true},
		{name: "mixed keeps plausible", snippet: "1.000 € 48.000 €", wantMin: 48000, wantMax: 48000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := parseSalary(tt.snippet)
			if tt.wantNil {
				assert.Nil(t, lo)
				assert.Nil(t, hi)
				return
			}
			require.NotNil(t, lo)
			require.NotNil(t, hi)
			assert.Equal(t, tt.wantMin, *lo)
			assert.Equal(t, tt.wantMax, *hi)
		})
	}
}
