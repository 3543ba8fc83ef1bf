package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/project-tktt/job-scout/internal/classify"
	"github.com/project-tktt/job-scout/internal/config"
	"github.com/project-tktt/job-scout/internal/gateway"
	"github.com/project-tktt/job-scout/internal/metrics"
	"github.com/project-tktt/job-scout/internal/pipeline"
	"github.com/project-tktt/job-scout/internal/store"
)

// One-shot discovery run: scrape the given listing pages (or the
// configured defaults), classify, enrich, and persist the results.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	urlsFlag := flag.String("urls", "", "comma-separated listing page URLs (default: JOB_LIST_URLS)")
	dryRun := flag.Bool("dry-run", false, "run the pipeline without storing results")
	flag.Parse()

	cfg := config.Load()

	urls := cfg.Discovery.ListingURLs
	if *urlsFlag != "" {
		urls = nil
		for _, u := range strings.Split(*urlsFlag, ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
	}
	if len(urls) == 0 {
		log.Fatal("No listing URLs given; pass -urls or set JOB_LIST_URLS")
	}

	ctx := context.Background()

	pg, err := store.NewPostgres(cfg.Postgres.ConnectionString, cfg.Postgres.TableName)
	if err != nil {
		log.Fatalf("PostgreSQL connection failed: %v", err)
	}
	defer pg.Close()

	recorder := metrics.NewRecorder(cfg.Discovery.MetricsCapacity)

	fetcher := gateway.NewFetcher(gateway.Config{
		UserAgent:    cfg.Scraper.UserAgent,
		ProxyURL:     cfg.Scraper.ProxyURL,
		RequestDelay: cfg.Scraper.RequestDelay,
		Timeout:      cfg.Scraper.ExtractTimeout,
	})

	extractor, err := gateway.NewLLM(cfg.OpenAI.APIKey, fetcher, recorder,
		cfg.OpenAI.ListingModel, cfg.OpenAI.DetailModel, cfg.Scraper.ExtractTimeout)
	if err != nil {
		log.Fatalf("Extraction gateway init failed: %v", err)
	}

	profile, err := classify.LoadProfile(cfg.Discovery.ProfilePath)
	if err != nil {
		log.Fatalf("Profile load failed: %v", err)
	}

	classifier, err := classify.NewOpenAIClassifier(cfg.OpenAI.APIKey, profile, recorder,
		cfg.OpenAI.ClassifyModel, cfg.Scraper.ClassifyTimeout)
	if err != nil {
		log.Fatalf("Classifier init failed: %v", err)
	}

	pipe := pipeline.New(extractor, classifier, pg, pipeline.Config{
		RecencyMonths:     cfg.Discovery.RecencyMonths,
		DedupBatchSize:    cfg.Discovery.DedupBatchSize,
		ClassifyBatchSize: cfg.Discovery.ClassifyBatchSize,
		DetailBatchSize:   cfg.Discovery.DetailBatchSize,
	})

	result, err := pipe.Discover(ctx, urls, func(percent int, message string) {
		log.Printf("%d%% - %s", percent, message)
	})
	if err != nil {
		log.Fatalf("Discovery failed: %v", err)
	}

	log.Printf("Discovery finished: %d matched, %d irrelevant, %d relevant but unenriched",
		len(result.Matched), len(result.Irrelevant), len(result.Unenriched))

	if !*dryRun {
		stored, skipped, err := store.StoreResults(ctx, pg, result.Records())
		if err != nil {
			log.Fatalf("Store failed after %d records: %v", stored, err)
		}
		log.Printf("Stored %d records, skipped %d duplicates", stored, skipped)
	}

	s := recorder.Summarize()
	log.Printf("Model calls=%d failures=%d tokens=%d avg latency=%s",
		s.Calls, s.Failures, s.TotalTokens, s.AvgLatency)
}
