// Package pipeline orchestrates a full aggregation run: scraping all
// configured sources, enriching thin descriptions, tagging skills and
// collecting salary trends. Per-source failures are logged and never
// abort the run; only losing the store is fatal.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/dachjobs/go-crawler/internal/adapter"
	"github.com/dachjobs/go-crawler/internal/adapter/adzuna"
	"github.com/dachjobs/go-crawler/internal/domain"
	"github.com/dachjobs/go-crawler/internal/enricher"
	"github.com/dachjobs/go-crawler/internal/fingerprint"
	"github.com/dachjobs/go-crawler/internal/indexer"
	"github.com/dachjobs/go-crawler/internal/quota"
	"github.com/dachjobs/go-crawler/internal/skills"
	"github.com/dachjobs/go-crawler/internal/store"
	"github.com/dachjobs/go-crawler/internal/translate"
)

// SearchPlan drives the scraping pass: which roles to search, the
// level synonyms prepended to each role, and the target countries.
type SearchPlan struct {
	Roles     []string
	Levels    map[string][]string
	Countries []string

	// pages per call: direct sources get more depth than the broad
	// aggregator sweep
	PriorityPages   int
	AggregatorPages int
}

// DefaultSearchPlan is the production DACH data-role plan.
func DefaultSearchPlan() SearchPlan {
	return SearchPlan{
		Roles: []string{
			"Data Analyst", "Data Scientist", "BI Analyst",
			"AI Manager", "AI Project Manager", "Prompt Engineer",
			"Machine Learning Engineer", "Data Engineer",
		},
		Levels: map[string][]string{
			"Junior":  {"Junior", "Entry Level", "Absolvent", "Trainee", "Graduate"},
			"Senior":  {"Senior", "Lead", "Principal", "Expert"},
			"Intern":  {"Internship", "Intern", "Working Student", "Thesis"},
			"General": {""},
		},
		Countries:       []string{"de", "at", "ch"},
		PriorityPages:   5,
		AggregatorPages: 3,
	}
}

// TestSearchPlan is the shrunk plan behind the -test flag.
func TestSearchPlan() SearchPlan {
	return SearchPlan{
		Roles: []string{"Data Analyst"},
		Levels: map[string][]string{
			"Junior":  {"Junior"},
			"General": {""},
		},
		Countries:       []string{"de"},
		PriorityPages:   1,
		AggregatorPages: 1,
	}
}

// trendKeywords maps roles to broader fallbacks that the salary
// history endpoint actually has data for.
var trendKeywords = map[string][]string{
	"Data Analyst":              {"Analyst", "Data"},
	"Data Scientist":            {"Scientist", "Data Scientist"},
	"BI Analyst":                {"BI", "Analyst"},
	"AI Manager":                {"AI", "Manager"},
	"AI Project Manager":        {"AI", "Manager"},
	"Prompt Engineer":           {"Engineer", "AI"},
	"Machine Learning Engineer": {"Engineer", "ML", "Machine Learning"},
	"Data Engineer":             {"Engineer", "Data"},
}

// Pipeline wires the components of one aggregation run.
type Pipeline struct {
	store      *store.Store
	direct     []adapter.Source // stepstone, xing, arbeitsagentur
	aggregator *adzuna.Client
	enricher   *enricher.Enricher
	tagger     *skills.Tagger
	translator *translate.Translator
	search     *indexer.ElasticsearchIndexer
	tracker    *quota.Tracker
	plan       SearchPlan
}

// Options carries the optional collaborators; nil fields disable the
// corresponding pass.
type Options struct {
	Translator *translate.Translator
	Search     *indexer.ElasticsearchIndexer
}

// New assembles a pipeline.
func New(st *store.Store, direct []adapter.Source, aggregator *adzuna.Client, en *enricher.Enricher, tagger *skills.Tagger, tracker *quota.Tracker, plan SearchPlan, opts Options) *Pipeline {
	return &Pipeline{
		store:      st,
		direct:     direct,
		aggregator: aggregator,
		enricher:   en,
		tagger:     tagger,
		translator: opts.Translator,
		search:     opts.Search,
		tracker:    tracker,
		plan:       plan,
	}
}

// Ingest normalizes and stores a batch of listings, returning the
// count of genuinely new vacancies.
func (p *Pipeline) Ingest(ctx context.Context, listings []domain.RawListing) (int, error) {
	for i := range listings {
		listings[i].Location = fingerprint.NormalizeLocation(listings[i].Location)
	}
	return p.store.UpsertBatch(ctx, listings)
}

// RunScrape fans every role/level/country combination out to the
// direct sources, then one broad aggregator sweep per role and
// country. Returns the total count of new vacancies.
func (p *Pipeline) RunScrape(ctx context.Context) (int, error) {
	total := 0
	for _, role := range p.plan.Roles {
		for levelName, synonyms := range p.plan.Levels {
			for _, syn := range synonyms {
				query := strings.TrimSpace(syn + " " + role)
				log.Printf("[Pipeline] Searching %q", query)

				for _, country := range p.plan.Countries {
					for _, src := range p.direct {
						// Arbeitsagentur covers Germany only.
						if src.Name() == string(domain.SourceArbeitsagentur) && country != "de" {
							continue
						}
						n, err := p.scrapeOne(ctx, src, query, role, levelName, country, p.plan.PriorityPages, false)
						if err != nil {
							if ctx.Err() != nil {
								return total, ctx.Err()
							}
							log.Printf("[Pipeline] %s %q (%s): %v", src.Name(), query, country, err)
							continue
						}
						total += n
					}
				}
			}
		}

		if p.aggregator != nil {
			for _, country := range p.plan.Countries {
				n, err := p.scrapeOne(ctx, p.aggregator, role, role, "", country, p.plan.AggregatorPages, true)
				if err != nil {
					if ctx.Err() != nil {
						return total, ctx.Err()
					}
					log.Printf("[Pipeline] adzuna %q (%s): %v", role, country, err)
					continue
				}
				total += n
			}
		}
	}
	return total, nil
}

// scrapeOne fetches one (source, query, country) slice and ingests it.
// Aggregator results get their level detected from the title since the
// broad query carries no level synonym.
func (p *Pipeline) scrapeOne(ctx context.Context, src adapter.Source, query, role, level, country string, pages int, autoLevel bool) (int, error) {
	listings, err := src.Fetch(ctx, query, pages, country)
	if err != nil {
		return 0, err
	}

	for i := range listings {
		listings[i].SearchQuery = role
		if autoLevel {
			listings[i].SearchLevel = p.detectLevel(listings[i].Title)
		} else {
			listings[i].SearchLevel = level
		}
		if listings[i].Country == "" {
			listings[i].Country = strings.ToUpper(country)
		}
	}

	n, err := p.Ingest(ctx, listings)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Printf("[Pipeline] %s: added %d new vacancies", src.Name(), n)
	}
	return n, nil
}

// detectLevel infers a seniority level from a title using the plan's
// level synonyms.
func (p *Pipeline) detectLevel(title string) string {
	lower := strings.ToLower(title)
	for level, synonyms := range p.plan.Levels {
		for _, syn := range synonyms {
			if syn != "" && strings.Contains(lower, strings.ToLower(syn)) {
				return level
			}
		}
	}
	return "General"
}

// Enrich runs the enrichment crawler over thin records.
func (p *Pipeline) Enrich(ctx context.Context, limit int, sourceFilter string) (enricher.Stats, error) {
	return p.enricher.Run(ctx, limit, sourceFilter)
}

// TagSkills re-tags every stored vacancy from its current description.
func (p *Pipeline) TagSkills(ctx context.Context) error {
	records, err := p.store.AllForTagging(ctx)
	if err != nil {
		return fmt.Errorf("load vacancies for tagging: %w", err)
	}

	log.Printf("[Pipeline] Tagging skills on %d vacancies", len(records))
	tagged := 0
	for _, rec := range records {
		joined := p.tagger.ExtractJoined(rec.Title, rec.Description)
		if err := p.store.UpdateSkills(ctx, rec.Fingerprint, joined); err != nil {
			log.Printf("[Pipeline] Save skills for %s: %v", rec.Fingerprint, err)
			continue
		}
		tagged++
	}
	log.Printf("[Pipeline] Skills written for %d vacancies", tagged)
	return nil
}

// TranslateTitles runs the best-effort title translation pass.
func (p *Pipeline) TranslateTitles(ctx context.Context, limit int) (int, error) {
	if p.translator == nil {
		return 0, nil
	}
	return p.translator.Run(ctx, limit)
}

// RunSalaryTrends collects monthly salary history per role and country
// from the aggregator, walking the keyword fallbacks until one has
// data.
func (p *Pipeline) RunSalaryTrends(ctx context.Context) error {
	if p.aggregator == nil {
		return fmt.Errorf("no aggregator client configured")
	}

	for _, role := range p.plan.Roles {
		keywords := append([]string{role}, trendKeywords[role]...)

		for _, country := range p.plan.Countries {
			saved := false
			for _, kw := range keywords {
				months, err := p.aggregator.FetchSalaryHistory(ctx, kw, country)
				if err != nil {
					log.Printf("[Pipeline] Trends %q (%s): %v", kw, country, err)
					continue
				}
				if len(months) == 0 {
					continue
				}
				if err := p.store.SaveSalaryHistory(ctx, strings.ToUpper(country), role, months); err != nil {
					return fmt.Errorf("save salary history: %w", err)
				}
				log.Printf("[Pipeline] Saved %d months of history for %s (%s) via %q", len(months), role, strings.ToUpper(country), kw)
				saved = true
				break
			}
			if !saved {
				log.Printf("[Pipeline] No history data for %s in %s", role, strings.ToUpper(country))
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}

	p.logTrendsSummary(ctx)
	return nil
}

// logTrendsSummary reads back the stored history and logs the latest
// month's average per role and country.
func (p *Pipeline) logTrendsSummary(ctx context.Context) {
	for _, country := range p.plan.Countries {
		points, err := p.store.SalaryHistory(ctx, country, "")
		if err != nil {
			log.Printf("[Pipeline] Trends summary (%s): %v", strings.ToUpper(country), err)
			continue
		}

		latest := map[string]domain.SalaryHistoryPoint{}
		for _, pt := range points {
			if cur, ok := latest[pt.Role]; !ok || pt.Month > cur.Month {
				latest[pt.Role] = pt
			}
		}

		roles := make([]string, 0, len(latest))
		for role := range latest {
			roles = append(roles, role)
		}
		sort.Strings(roles)
		for _, role := range roles {
			pt := latest[role]
			log.Printf("[Pipeline] %s (%s): %.0f EUR avg as of %s", role, pt.Country, pt.AvgSalary, pt.Month)
		}
	}
}

// SyncSearchIndex mirrors all stored vacancies into Elasticsearch.
func (p *Pipeline) SyncSearchIndex(ctx context.Context) error {
	if p.search == nil {
		return nil
	}
	if err := p.search.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	records, err := p.store.All(ctx)
	if err != nil {
		return fmt.Errorf("load vacancies for indexing: %w", err)
	}
	if err := p.search.BulkIndex(ctx, records); err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	log.Printf("[Pipeline] Indexed %d vacancies", len(records))
	return nil
}

// QuotaStatus reports the aggregator's current quota usage.
func (p *Pipeline) QuotaStatus() (quota.Usage, error) {
	return p.tracker.Status()
}

// Reset drops all stored data. Destructive; the caller confirms.
func (p *Pipeline) Reset(ctx context.Context) error {
	return p.store.Reset(ctx)
}
