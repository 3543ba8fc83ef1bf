package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/project-tktt/job-scout/internal/classify"
	"github.com/project-tktt/job-scout/internal/config"
	"github.com/project-tktt/job-scout/internal/gateway"
	"github.com/project-tktt/job-scout/internal/metrics"
	"github.com/project-tktt/job-scout/internal/pipeline"
	"github.com/project-tktt/job-scout/internal/queue"
	"github.com/project-tktt/job-scout/internal/store"
)

const progressChannel = "discovery:progress"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Job Discovery Service")

	cfg := config.Load()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}
	log.Println("Redis connected")

	pg, err := store.NewPostgres(cfg.Postgres.ConnectionString, cfg.Postgres.TableName)
	if err != nil {
		log.Fatalf("PostgreSQL connection failed: %v", err)
	}
	defer pg.Close()
	log.Println("PostgreSQL connected")

	// Search index is best-effort; discovery works without it
	var search store.SearchIndexer
	es, err := store.NewElasticsearch(cfg.Elasticsearch.Addresses, cfg.Elasticsearch.Index)
	if err != nil {
		log.Printf("Warning: Elasticsearch unavailable, search indexing disabled: %v", err)
	} else {
		if err := es.EnsureIndex(ctx); err != nil {
			log.Printf("Warning: ensure index failed: %v", err)
		}
		search = es
		log.Println("Elasticsearch connected")
	}

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

	seen := store.NewSeenCache(rdb, pg, cfg.Redis.SeenPrefix, 0)

	pipe := pipeline.New(extractor, classifier, seen, pipeline.Config{
		RecencyMonths:     cfg.Discovery.RecencyMonths,
		DedupBatchSize:    cfg.Discovery.DedupBatchSize,
		ClassifyBatchSize: cfg.Discovery.ClassifyBatchSize,
		DetailBatchSize:   cfg.Discovery.DetailBatchSize,
	})

	publisher := queue.NewPublisher(rdb, cfg.Redis.TaskQueue)
	consumer := queue.NewConsumer(rdb, cfg.Redis.TaskQueue, 5*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	// Worker: consume tasks, run the pipeline, persist results
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := consumer.Run(ctx, func(task queue.Task) error {
			return runDiscovery(ctx, task, cfg, pipe, pg, seen, search, rdb, recorder)
		})
		if err != nil && err != context.Canceled {
			log.Printf("Worker error: %v", err)
		}
	}()

	// Scheduler: enqueue one task per tick
	c := cron.New()
	_, err = c.AddFunc(cfg.Discovery.Schedule, func() {
		task := queue.NewTask(nil)
		if err := publisher.Publish(ctx, task); err != nil {
			log.Printf("Failed to enqueue scheduled discovery task: %v", err)
			return
		}
		log.Printf("Enqueued scheduled discovery task %s", task.RunID)
	})
	if err != nil {
		log.Fatalf("Invalid discovery schedule %q: %v", cfg.Discovery.Schedule, err)
	}
	c.Start()
	log.Printf("Scheduled discovery runs: %s", cfg.Discovery.Schedule)

	// Kick off one run immediately on startup
	startup := queue.NewTask(nil)
	if err := publisher.Publish(ctx, startup); err != nil {
		log.Printf("Failed to enqueue startup discovery task: %v", err)
	}

	<-sigChan
	log.Println("Shutdown signal received, stopping...")
	c.Stop()
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Graceful shutdown complete")
	case <-time.After(30 * time.Second):
		log.Println("Shutdown timeout, forcing exit")
	}
}

// runDiscovery executes one discovery task end to end: pipeline, store,
// seen-cache update, search indexing.
func runDiscovery(
	ctx context.Context,
	task queue.Task,
	cfg *config.Config,
	pipe *pipeline.Pipeline,
	sink store.Sink,
	seen *store.SeenCache,
	search store.SearchIndexer,
	rdb *redis.Client,
	recorder *metrics.Recorder,
) error {
	urls := task.ListingURLs
	if len(urls) == 0 {
		urls = cfg.Discovery.ListingURLs
	}
	if len(urls) == 0 {
		log.Printf("Task %s has no listing URLs and none are configured, skipping", task.RunID)
		return nil
	}

	log.Printf("Task %s: discovering jobs from %d listing page(s)", task.RunID, len(urls))

	onProgress := func(percent int, message string) {
		log.Printf("Task %s: %d%% - %s", task.RunID, percent, message)
		payload, err := json.Marshal(map[string]any{
			"run_id":  task.RunID,
			"percent": percent,
			"message": message,
		})
		if err != nil {
			return
		}
		if err := rdb.Publish(ctx, progressChannel, payload).Err(); err != nil {
			log.Printf("Progress publish failed: %v", err)
		}
	}

	result, err := pipe.Discover(ctx, urls, onProgress)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	recs := result.Records()
	stored, skipped, err := store.StoreResults(ctx, sink, recs)
	if err != nil {
		return fmt.Errorf("store results: %w", err)
	}
	for _, rec := range recs {
		seen.MarkSeen(ctx, rec.URL)
	}
	log.Printf("Task %s: stored %d records, skipped %d duplicates", task.RunID, stored, skipped)

	if search != nil && len(recs) > 0 {
		if err := search.BulkIndex(ctx, recs); err != nil {
			log.Printf("Task %s: search indexing failed: %v", task.RunID, err)
		}
	}

	s := recorder.Summarize()
	log.Printf("Task %s: model calls=%d failures=%d tokens=%d avg latency=%s",
		task.RunID, s.Calls, s.Failures, s.TotalTokens, s.AvgLatency)

	return nil
}
