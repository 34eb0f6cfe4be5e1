package enricher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dachjobs/go-crawler/internal/domain"
)

const okPage = `<html><body><p>We are looking for a data engineer to design, build and operate our analytics
platform, including batch and streaming pipelines, warehouse modelling and stakeholder reporting.</p></body></html>`

type fakeStore struct {
	mu      sync.Mutex
	pending []domain.PendingVacancy
	updates map[string]string
	changed bool
}

func (f *fakeStore) PendingEnrichment(_ context.Context, limit int, _ string) ([]domain.PendingVacancy, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeStore) UpdateEnrichment(_ context.Context, fp, desc string, _, _ *float64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = map[string]string{}
	}
	f.updates[fp] = desc
	return f.changed, nil
}

func fastConfig(workers int) Config {
	return Config{
		Workers:          workers,
		MinDescLen:       20,
		BreakerThreshold: 15,
		JitterMin:        time.Nanosecond,
		JitterMax:        2 * time.Nanosecond,
		RetryDelayMin:    time.Nanosecond,
		RetryDelayMax:    2 * time.Nanosecond,
	}
}

func pendingTasks(baseURL string, n int) []domain.PendingVacancy {
	tasks := make([]domain.PendingVacancy, n)
	for i := range tasks {
		tasks[i] = domain.PendingVacancy{
			Fingerprint: fmt.Sprintf("fp-%03d", i),
			URL:         fmt.Sprintf("%s/job/%d", baseURL, i),
			Source:      "stepstone",
		}
	}
	return tasks
}

func total(s Stats) int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}

func TestConfigDefaults_MaxStaysAboveMin(t *testing.T) {
	// A large caller-set minimum must never leave max below it, or the
	// random sleep range collapses.
	cfg := Config{JitterMin: 10 * time.Second, RetryDelayMin: 30 * time.Second}.withDefaults()
	assert.Greater(t, cfg.JitterMax, cfg.JitterMin)
	assert.Greater(t, cfg.RetryDelayMax, cfg.RetryDelayMin)

	cfg = Config{}.withDefaults()
	assert.Equal(t, 4*time.Second, cfg.JitterMax)
	assert.Equal(t, 10*time.Second, cfg.RetryDelayMax)
}

func TestRun_EnrichesAndClassifiesOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(okPage))
	}))
	defer srv.Close()

	store := &fakeStore{pending: pendingTasks(srv.URL, 4), changed: true}
	e := New(store, fastConfig(2))

	stats, err := e.Run(context.Background(), 10, "")
	require.NoError(t, err)
	assert.Equal(t, 4, stats[OutcomeOK])
	assert.Len(t, store.updates, 4)
}

func TestRun_NoChangeWhenStoredDescriptionAlreadyLonger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(okPage))
	}))
	defer srv.Close()

	store := &fakeStore{pending: pendingTasks(srv.URL, 2), changed: false}
	e := New(store, fastConfig(1))

	stats, err := e.Run(context.Background(), 10, "")
	require.NoError(t, err)
	assert.Equal(t, 2, stats[OutcomeOKNoChange])
}

func TestRun_BreakerTripsAndStopsSubmission(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	store := &fakeStore{pending: pendingTasks(srv.URL, 60)}
	e := New(store, fastConfig(2))

	stats, err := e.Run(context.Background(), 60, "")
	require.NoError(t, err)

	// Threshold 15 trips on the 16th consecutive block; only tasks
	// already dispatched may still complete afterwards.
	assert.GreaterOrEqual(t, stats[OutcomeBlocked], 16)
	assert.Less(t, total(stats), 60, "breaker must stop further submissions")
	assert.Empty(t, store.updates)
}

func TestRun_BreakerDoesNotTripWithInterleavedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// One success after every nine blocks.
		if strings.HasSuffix(r.URL.Path, "9") {
			w.Write([]byte(okPage))
			return
		}
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	store := &fakeStore{pending: pendingTasks(srv.URL, 30), changed: true}
	e := New(store, fastConfig(1))

	stats, err := e.Run(context.Background(), 30, "")
	require.NoError(t, err)

	assert.Equal(t, 30, total(stats), "interleaved successes must keep the breaker open")
	assert.Equal(t, 27, stats[OutcomeBlocked])
	assert.Equal(t, 3, stats[OutcomeOK])
}

func TestFetch_RetriesBlockedExactlyOnce(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	e := New(&fakeStore{}, fastConfig(1))
	_, _, outcome := e.fetch(context.Background(), srv.URL)

	assert.Equal(t, OutcomeBlocked, outcome)
	assert.Equal(t, int64(2), calls.Load())
}

func TestProcessOne_Outcomes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>x</p></body></html>"))
	})
	mux.HandleFunc("/wall", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>Please solve this captcha</body></html>"))
	})
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(okPage))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cfg := fastConfig(1)
	cfg.MinDescLen = 5000 // force TooShort on /ok
	short := New(&fakeStore{}, cfg)
	e := New(&fakeStore{changed: true}, fastConfig(1))

	task := func(path string) domain.PendingVacancy {
		return domain.PendingVacancy{Fingerprint: "fp", URL: srv.URL + path}
	}

	assert.Equal(t, OutcomeNotFound, e.processOne(context.Background(), task("/missing")))
	assert.Equal(t, OutcomeParseFailed, e.processOne(context.Background(), task("/empty")))
	assert.Equal(t, OutcomeBlocked, e.processOne(context.Background(), task("/wall")))
	assert.Equal(t, OutcomeTooShort, short.processOne(context.Background(), task("/ok")))
	assert.Equal(t, OutcomeOK, e.processOne(context.Background(), task("/ok")))
}

func TestStats_String(t *testing.T) {
	s := Stats{OutcomeOK: 3, OutcomeBlocked: 1}
	assert.Equal(t, "blocked=1 ok=3", s.String())
}
