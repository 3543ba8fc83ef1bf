package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/project-tktt/job-scout/internal/classify"
	"github.com/project-tktt/job-scout/internal/domain"
	"github.com/project-tktt/job-scout/internal/gateway"
	"github.com/project-tktt/job-scout/internal/store"
)

// Config holds the pipeline's tuning knobs, read once at construction.
type Config struct {
	// Postings older than this many months are dropped
	RecencyMonths int
	// Batch sizes per stage: dedup hits the database, classification a
	// paid model, enrichment a full page fetch plus the strongest model —
	// hence the shrinking defaults 10 / 5 / 3
	DedupBatchSize    int
	ClassifyBatchSize int
	DetailBatchSize   int
	// Now is the clock used by the date filter; nil means time.Now
	Now func() time.Time
}

// Result is the outcome of one discovery run.
type Result struct {
	// Matched are relevant postings whose detail scrape succeeded
	Matched []domain.EnrichedPosting
	// Irrelevant are classified candidates that did not match the profile
	Irrelevant []domain.ClassifiedCandidate
	// Unenriched are relevant candidates whose detail scrape failed.
	// They are retained here so no classified-relevant posting vanishes
	// without a trace.
	Unenriched []domain.ClassifiedCandidate
}

// Records maps the run outcome to persistable records: matched postings
// keep their detail fields, everything else is stored listing-only.
func (r Result) Records() []domain.Record {
	recs := make([]domain.Record, 0, len(r.Matched)+len(r.Irrelevant)+len(r.Unenriched))
	for _, p := range r.Matched {
		recs = append(recs, domain.NewDetailedRecord(p))
	}
	for _, c := range r.Unenriched {
		recs = append(recs, domain.NewListingRecord(c))
	}
	for _, c := range r.Irrelevant {
		recs = append(recs, domain.NewListingRecord(c))
	}
	return recs
}

// Pipeline runs the six-stage discovery sequence:
// scrape listings, deduplicate, filter by date, classify relevance,
// split, enrich details. Stages run in strict order; each stage sees the
// complete output of the previous one before any expensive downstream
// call is made.
type Pipeline struct {
	extractor  gateway.Extractor
	classifier classify.Classifier
	dupes      store.DuplicateIndex
	cfg        Config
}

// New creates a Pipeline. Zero-valued knobs fall back to defaults
// (4 months, batch sizes 10/5/3).
func New(extractor gateway.Extractor, classifier classify.Classifier, dupes store.DuplicateIndex, cfg Config) *Pipeline {
	if cfg.RecencyMonths <= 0 {
		cfg.RecencyMonths = 4
	}
	if cfg.DedupBatchSize <= 0 {
		cfg.DedupBatchSize = 10
	}
	if cfg.ClassifyBatchSize <= 0 {
		cfg.ClassifyBatchSize = 5
	}
	if cfg.DetailBatchSize <= 0 {
		cfg.DetailBatchSize = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Pipeline{
		extractor:  extractor,
		classifier: classifier,
		dupes:      dupes,
		cfg:        cfg,
	}
}

// Discover runs the full pipeline over the given listing pages. Per-item
// failures in scraping, classification and enrichment degrade gracefully;
// only a duplicate-index backend error aborts the run, because admitting
// a true duplicate would corrupt the uniqueness invariant downstream.
func (p *Pipeline) Discover(ctx context.Context, listingURLs []string, onProgress ProgressFunc) (Result, error) {
	log.Printf("Starting job extraction from %d URL(s)", len(listingURLs))

	if len(listingURLs) == 0 {
		return Result{}, nil
	}

	n := newNotifier(onProgress)
	defer n.close()

	n.notify(10, "Scraping job listing pages...")
	scraped := p.scrapeListings(ctx, listingURLs)
	if len(scraped) == 0 {
		log.Println("No jobs found in any initial scrape")
		return Result{}, nil
	}

	n.notify(30, "Deduplicating jobs...")
	fresh, err := p.dropDuplicates(ctx, scraped)
	if err != nil {
		return Result{}, err
	}

	n.notify(40, "Filtering by date...")
	recent := p.filterRecent(fresh)
	if len(recent) == 0 {
		log.Println("No recent jobs found")
		return Result{}, nil
	}

	n.notify(60, "Analyzing job relevance...")
	classified := p.classifyAll(ctx, recent)

	relevant, irrelevant := splitByRelevance(classified)

	n.notify(80, "Scraping detailed job information...")
	matched, unenriched := p.enrichAll(ctx, relevant)

	n.notify(100, "Job discovery completed")
	log.Printf("Job discovery completed: %d matched, %d irrelevant, %d relevant but unenriched",
		len(matched), len(irrelevant), len(unenriched))

	return Result{Matched: matched, Irrelevant: irrelevant, Unenriched: unenriched}, nil
}

// scrapeListings extracts candidates from every listing page in parallel.
// Listing counts are small, so the fan-out is unbounded. A failed page
// contributes nothing and never disturbs its siblings.
func (p *Pipeline) scrapeListings(ctx context.Context, listingURLs []string) []domain.ListingCandidate {
	perURL := make([][]domain.ListingCandidate, len(listingURLs))

	var wg sync.WaitGroup
	for i, pageURL := range listingURLs {
		wg.Add(1)
		go func(i int, pageURL string) {
			defer wg.Done()
			candidates, err := p.extractor.ExtractListings(ctx, pageURL)
			if err != nil {
				log.Printf("Failed to scrape job list from %s: %v. Skipping this URL.", pageURL, err)
				return
			}
			log.Printf("Found %d jobs from %s", len(candidates), pageURL)
			perURL[i] = candidates
		}(i, pageURL)
	}
	wg.Wait()

	var all []domain.ListingCandidate
	for _, candidates := range perURL {
		all = append(all, candidates...)
	}
	log.Printf("Total %d jobs found in initial scrapes", len(all))
	return all
}

// dropDuplicates removes candidates whose URL is already persisted.
// A lookup failure aborts the whole stage: treating an unknown URL as
// fresh would admit duplicates further down.
func (p *Pipeline) dropDuplicates(ctx context.Context, candidates []domain.ListingCandidate) ([]domain.ListingCandidate, error) {
	dupe, errs := mapBatches(ctx, candidates, p.cfg.DedupBatchSize,
		func(ctx context.Context, c domain.ListingCandidate) (bool, error) {
			return p.dupes.Exists(ctx, c.Link)
		})

	fresh := make([]domain.ListingCandidate, 0, len(candidates))
	for i, c := range candidates {
		if errs[i] != nil {
			return nil, fmt.Errorf("duplicate check for %s: %w", c.Link, errs[i])
		}
		if !dupe[i] {
			fresh = append(fresh, c)
		}
	}

	log.Printf("Deduplicated %d jobs. %d unique jobs remaining.", len(candidates)-len(fresh), len(fresh))
	return fresh, nil
}

// filterRecent keeps candidates posted within the recency window. The
// cutoff uses calendar-aware month subtraction, and an unparsable date
// drops the candidate rather than passing it on as recent.
func (p *Pipeline) filterRecent(candidates []domain.ListingCandidate) []domain.ListingCandidate {
	cutoff := p.cfg.Now().AddDate(0, -p.cfg.RecencyMonths, 0)

	recent := make([]domain.ListingCandidate, 0, len(candidates))
	for _, c := range candidates {
		posted, err := c.PostedDate()
		if err != nil {
			log.Printf("Could not parse date %q for job %q. Skipping.", c.PostedDateISO, c.Title)
			continue
		}
		if posted.Before(cutoff) {
			continue
		}
		recent = append(recent, c)
	}

	log.Printf("Filtered %d old jobs. %d recent jobs remaining.", len(candidates)-len(recent), len(recent))
	return recent
}

// classifyAll judges every candidate's relevance. A classifier error for
// one item degrades that item to not-relevant with the failure recorded
// in its reasoning; siblings in the batch are untouched.
func (p *Pipeline) classifyAll(ctx context.Context, candidates []domain.ListingCandidate) []domain.ClassifiedCandidate {
	classified, _ := mapBatches(ctx, candidates, p.cfg.ClassifyBatchSize,
		func(ctx context.Context, c domain.ListingCandidate) (domain.ClassifiedCandidate, error) {
			verdict, err := p.classifier.Classify(ctx, c.Title)
			if err != nil {
				log.Printf("Error analyzing job %q: %v", c.Title, err)
				verdict = domain.Verdict{
					IsRelevant: false,
					Reasoning:  fmt.Sprintf("Analysis failed: %v", err),
				}
			}
			return domain.ClassifiedCandidate{ListingCandidate: c, Verdict: verdict}, nil
		})

	log.Printf("Analyzed %d jobs for relevance", len(classified))
	return classified
}

func splitByRelevance(classified []domain.ClassifiedCandidate) (relevant, irrelevant []domain.ClassifiedCandidate) {
	for _, c := range classified {
		if c.IsRelevant {
			relevant = append(relevant, c)
		} else {
			irrelevant = append(irrelevant, c)
		}
	}
	log.Printf("Split jobs: %d relevant, %d irrelevant", len(relevant), len(irrelevant))
	return relevant, irrelevant
}

// enrichAll scrapes detail fields for relevant candidates. A failed or
// unusable detail scrape moves the candidate to the unenriched set
// instead of dropping it.
func (p *Pipeline) enrichAll(ctx context.Context, relevant []domain.ClassifiedCandidate) (matched []domain.EnrichedPosting, unenriched []domain.ClassifiedCandidate) {
	details, errs := mapBatches(ctx, relevant, p.cfg.DetailBatchSize,
		func(ctx context.Context, c domain.ClassifiedCandidate) (domain.PostingDetails, error) {
			return p.extractor.ExtractDetails(ctx, c.Link)
		})

	for i, c := range relevant {
		if errs[i] != nil {
			log.Printf("Failed to scrape job details from %s: %v", c.Link, errs[i])
			unenriched = append(unenriched, c)
			continue
		}
		matched = append(matched, domain.NewEnrichedPosting(c, details[i]))
	}

	log.Printf("Successfully scraped details for %d jobs", len(matched))
	return matched, unenriched
}
