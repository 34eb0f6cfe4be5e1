// Package enricher re-fetches detail pages for stored vacancies whose
// description is missing or too thin and writes back the extracted
// full text. It is the only concurrent component: a bounded worker
// pool drives the fetches, guarded by a consecutive-block circuit
// breaker.
package enricher

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dachjobs/go-crawler/internal/domain"
	"github.com/dachjobs/go-crawler/internal/extract"
)

// Outcome is the terminal state of one enrichment task.
type Outcome string

const (
	OutcomeOK              Outcome = "ok"
	OutcomeOKNoChange      Outcome = "ok_no_change"
	OutcomeBlocked         Outcome = "blocked"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeConnectionError Outcome = "connection_error"
	OutcomeParseFailed     Outcome = "parsing_failed"
	OutcomeTooShort        Outcome = "too_short"
	OutcomeError           Outcome = "error"
)

// Stats is the run's outcome histogram.
type Stats map[Outcome]int

// String renders the histogram with stable key order.
func (s Stats) String() string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, s[Outcome(k)]))
	}
	return strings.Join(parts, " ")
}

// Store is the slice of the vacancy store the enricher needs.
type Store interface {
	PendingEnrichment(ctx context.Context, limit int, sourceFilter string) ([]domain.PendingVacancy, error)
	UpdateEnrichment(ctx context.Context, fingerprint, description string, salaryMin, salaryMax *float64) (bool, error)
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:122.0) Gecko/20100101 Firefox/122.0",
}

var referers = []string{
	"https://www.google.com/",
	"https://www.google.de/",
	"https://www.bing.com/",
	"https://duckduckgo.com/",
}

// Config tunes the crawler. Zero values fall back to the defaults
// used in production runs; tests shrink the delays.
type Config struct {
	Workers          int
	MinDescLen       int           // shortest acceptable description
	BreakerThreshold int           // consecutive Blocked outcomes before the run stops
	JitterMin        time.Duration // pre-request delay bounds
	JitterMax        time.Duration
	RetryDelayMin    time.Duration // delay before the single post-403 retry
	RetryDelayMax    time.Duration
	Timeout          time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.MinDescLen <= 0 {
		c.MinDescLen = 500
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 15
	}
	if c.JitterMin <= 0 {
		c.JitterMin = time.Second
	}
	if c.JitterMax <= c.JitterMin {
		c.JitterMax = c.JitterMin + 3*time.Second
	}
	if c.RetryDelayMin <= 0 {
		c.RetryDelayMin = 5 * time.Second
	}
	if c.RetryDelayMax <= c.RetryDelayMin {
		c.RetryDelayMax = c.RetryDelayMin + 5*time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	return c
}

// Enricher runs enrichment passes over thin records.
type Enricher struct {
	store  Store
	client *http.Client
	cfg    Config
}

// New creates an enricher over the given store. The HTTP client is
// shared across workers so connections get reused.
func New(store Store, cfg Config) *Enricher {
	cfg = cfg.withDefaults()
	return &Enricher{
		store: store,
		cfg:   cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        2 * cfg.Workers,
				MaxIdleConnsPerHost: cfg.Workers,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Run fetches up to limit thin records (optionally restricted to one
// source) and enriches them concurrently. It returns the outcome
// histogram; the circuit breaker ends the run early after sustained
// consecutive blocks, letting in-flight tasks drain.
func (e *Enricher) Run(ctx context.Context, limit int, sourceFilter string) (Stats, error) {
	pending, err := e.store.PendingEnrichment(ctx, limit, sourceFilter)
	if err != nil {
		return nil, fmt.Errorf("load pending vacancies: %w", err)
	}

	log.Printf("[Enricher] Processing %d vacancies with %d workers", len(pending), e.cfg.Workers)
	if len(pending) == 0 {
		return Stats{}, nil
	}

	jobs := make(chan domain.PendingVacancy)
	results := make(chan Outcome)
	stop := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range jobs {
				results <- e.processOne(ctx, task)
			}
		}()
	}

	// Feeder: stops submitting when the breaker trips or the context
	// ends; dispatched tasks always finish.
	go func() {
		defer close(jobs)
		for _, task := range pending {
			select {
			case jobs <- task:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	stats := Stats{}
	consecutiveBlocked := 0
	tripped := false
	processed := 0
	for outcome := range results {
		stats[outcome]++
		processed++
		if processed%50 == 0 {
			log.Printf("[Enricher] Progress: %d/%d", processed, len(pending))
		}

		if outcome == OutcomeBlocked {
			consecutiveBlocked++
		} else {
			consecutiveBlocked = 0
		}
		if !tripped && consecutiveBlocked > e.cfg.BreakerThreshold {
			tripped = true
			close(stop)
			log.Printf("[Enricher] Circuit breaker tripped after %d consecutive blocked responses, draining", consecutiveBlocked)
		}
	}

	log.Printf("[Enricher] Done: %s", stats)
	return stats, nil
}

// processOne runs the per-task state machine: jitter, fetch (with one
// retried attempt on a blocked response), extract, store write.
func (e *Enricher) processOne(ctx context.Context, task domain.PendingVacancy) Outcome {
	sleepRand(ctx, e.cfg.JitterMin, e.cfg.JitterMax)

	body, host, outcome := e.fetch(ctx, task.URL)
	if outcome != "" {
		return outcome
	}

	res, ok := extract.Run(host, body)
	if !ok || res.Description == "" {
		return OutcomeParseFailed
	}
	if extract.Blocked(res.Description) {
		return OutcomeBlocked
	}
	if len(res.Description) < e.cfg.MinDescLen {
		return OutcomeTooShort
	}

	changed, err := e.store.UpdateEnrichment(ctx, task.Fingerprint, res.Description, res.SalaryMin, res.SalaryMax)
	if err != nil {
		log.Printf("[Enricher] Store write failed for %s: %v", task.Fingerprint, err)
		return OutcomeError
	}
	if changed {
		return OutcomeOK
	}
	return OutcomeOKNoChange
}

// fetch retrieves the detail page. A 403 or a block-marker body gets
// exactly one retry after a longer delay with a fresh user agent; a
// second blocked answer is final. The returned outcome is empty on
// success.
func (e *Enricher) fetch(ctx context.Context, url string) (body, host string, outcome Outcome) {
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			sleepRand(ctx, e.cfg.RetryDelayMin, e.cfg.RetryDelayMax)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", "", OutcomeConnectionError
		}
		req.Header.Set("User-Agent", userAgents[rand.Intn(len(userAgents))])
		req.Header.Set("Referer", referers[rand.Intn(len(referers))])
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.8")

		resp, err := e.client.Do(req)
		if err != nil {
			return "", "", OutcomeConnectionError
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return "", "", OutcomeNotFound
		}
		if resp.StatusCode == http.StatusForbidden {
			resp.Body.Close()
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return "", "", OutcomeConnectionError
		}

		raw, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return "", "", OutcomeConnectionError
		}

		// Block walls often answer 200 with a challenge page.
		if extract.Blocked(string(raw)) {
			continue
		}

		return string(raw), resp.Request.URL.Host, ""
	}
	return "", "", OutcomeBlocked
}

// sleepRand sleeps a random duration in [min, max), returning early on
// context cancellation.
func sleepRand(ctx context.Context, min, max time.Duration) {
	d := min + time.Duration(rand.Int63n(int64(max-min)))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
