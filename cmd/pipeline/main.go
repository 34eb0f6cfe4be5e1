package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/dachjobs/go-crawler/internal/adapter"
	"github.com/dachjobs/go-crawler/internal/adapter/adzuna"
	"github.com/dachjobs/go-crawler/internal/adapter/arbeitsagentur"
	"github.com/dachjobs/go-crawler/internal/adapter/stepstone"
	"github.com/dachjobs/go-crawler/internal/adapter/xing"
	"github.com/dachjobs/go-crawler/internal/config"
	"github.com/dachjobs/go-crawler/internal/enricher"
	"github.com/dachjobs/go-crawler/internal/indexer"
	"github.com/dachjobs/go-crawler/internal/pipeline"
	"github.com/dachjobs/go-crawler/internal/quota"
	"github.com/dachjobs/go-crawler/internal/skills"
	"github.com/dachjobs/go-crawler/internal/store"
	"github.com/dachjobs/go-crawler/internal/translate"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	scrape := flag.Bool("scrape", false, "run only vacancy scraping")
	enrich := flag.Bool("enrich", false, "run only description enrichment")
	tagSkills := flag.Bool("skills", false, "run only skill extraction")
	trends := flag.Bool("trends", false, "run only salary trends collection")
	translateFlag := flag.Bool("translate", false, "run only title translation")
	index := flag.Bool("index", false, "run only the search index sync")
	reset := flag.Bool("reset", false, "clear all stored data before starting")
	testMode := flag.Bool("test", false, "run with the shrunk test plan")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down", sig)
		cancel()
	}()

	st, err := store.New(cfg.Postgres.ConnectionString)
	if err != nil {
		log.Fatalf("PostgreSQL connection failed: %v", err)
	}
	defer st.Close()
	log.Println("PostgreSQL connected")

	if *reset {
		if !confirm("Clear ALL data from the database?") {
			log.Println("Reset cancelled")
			return
		}
		if err := st.Reset(ctx); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		log.Println("Database cleared")
	}

	tracker := quota.NewTracker(quotaStore(cfg))
	adzunaClient := adzuna.New(cfg.Adzuna.AppID, cfg.Adzuna.AppKey, tracker)
	direct := []adapter.Source{stepstone.New(), xing.New(), arbeitsagentur.New()}

	en := enricher.New(st, enricher.Config{Workers: cfg.Enricher.Workers})
	tagger := skills.New(skills.DefaultConfig())

	opts := pipeline.Options{
		Translator: translate.New(st, cfg.DeepL.APIKey, cfg.DeepL.TargetLang, cfg.DeepL.SessionLimit),
	}
	if cfg.Elasticsearch.Enabled {
		search, err := indexer.NewElasticsearchIndexer(cfg.Elasticsearch.Addresses, cfg.Elasticsearch.Index)
		if err != nil {
			log.Fatalf("Elasticsearch connection failed: %v", err)
		}
		opts.Search = search
		log.Println("Elasticsearch connected")
	}

	plan := pipeline.DefaultSearchPlan()
	enrichLimit := cfg.Enricher.Limit
	if *testMode {
		plan = pipeline.TestSearchPlan()
		enrichLimit = 20
	}

	p := pipeline.New(st, direct, adzunaClient, en, tagger, tracker, plan, opts)

	start := time.Now()
	log.Printf("=== STARTING PIPELINE: %s ===", start.Format("2006-01-02 15:04"))

	// No stage flag means the full scrape+enrich+skills run; translate,
	// index and trends only happen when asked for.
	all := !*scrape && !*enrich && !*tagSkills && !*trends && !*translateFlag && !*index

	if *trends {
		if err := p.RunSalaryTrends(ctx); err != nil {
			log.Printf("Salary trends failed: %v", err)
		}
	} else {
		runStages(ctx, p, stagePlan{
			scrape:    all || *scrape,
			enrich:    all || *enrich,
			skills:    all || *tagSkills,
			translate: *translateFlag,
			index:     *index,
		}, enrichLimit)
	}

	reportQuota(tracker)
	log.Printf("=== PIPELINE FINISHED IN %.1f MINUTES ===", time.Since(start).Minutes())
}

type stagePlan struct {
	scrape, enrich, skills, translate, index bool
}

func runStages(ctx context.Context, p *pipeline.Pipeline, stages stagePlan, enrichLimit int) {
	if stages.scrape {
		log.Println("[SCRAPING] Fetching new vacancies...")
		n, err := p.RunScrape(ctx)
		if err != nil {
			log.Printf("Scrape ended early: %v", err)
		}
		log.Printf("[SCRAPING] %d new vacancies", n)
	}

	if stages.enrich && ctx.Err() == nil {
		log.Println("[ENRICHMENT] Scraping full descriptions...")
		stats, err := p.Enrich(ctx, enrichLimit, "")
		if err != nil {
			log.Printf("Enrichment failed: %v", err)
		} else {
			log.Printf("[ENRICHMENT] %s", stats)
		}
	}

	if stages.skills && ctx.Err() == nil {
		log.Println("[SKILLS] Extracting skills...")
		if err := p.TagSkills(ctx); err != nil {
			log.Printf("Skill extraction failed: %v", err)
		}
	}

	if stages.translate && ctx.Err() == nil {
		log.Println("[TRANSLATE] Translating titles...")
		if _, err := p.TranslateTitles(ctx, 1000); err != nil {
			log.Printf("Translation failed: %v", err)
		}
	}

	if stages.index && ctx.Err() == nil {
		log.Println("[INDEX] Syncing search index...")
		if err := p.SyncSearchIndex(ctx); err != nil {
			log.Printf("Index sync failed: %v", err)
		}
	}
}

// quotaStore picks Redis when configured, the JSON state file
// otherwise.
func quotaStore(cfg *config.Config) quota.StateStore {
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Redis connection failed: %v", err)
		}
		log.Println("Redis connected, quota state in Redis")
		return quota.NewRedisStore(rdb, cfg.Redis.QuotaKey)
	}

	fs, err := quota.NewFileStore(cfg.Adzuna.QuotaStatePath)
	if err != nil {
		log.Fatalf("Quota state file unavailable: %v", err)
	}
	return fs
}

func reportQuota(tracker *quota.Tracker) {
	usage, err := tracker.Status()
	if err != nil {
		log.Printf("Quota status unavailable: %v", err)
		return
	}
	limits := adzuna.DefaultLimits
	log.Println("=== ADZUNA API QUOTA USAGE ===")
	log.Printf("  Minute:  %d/%d", usage.Minute, limits.Minute)
	log.Printf("  Daily:   %d/%d", usage.Daily, limits.Daily)
	log.Printf("  Weekly:  %d/%d", usage.Weekly, limits.Weekly)
	log.Printf("  Monthly: %d/%d", usage.Monthly, limits.Monthly)
}

func confirm(prompt string) bool {
	fmt.Printf("[?] %s (y/n): ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(answer), "y")
}
