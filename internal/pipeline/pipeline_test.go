package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/project-tktt/job-scout/internal/domain"
)

type stubExtractor struct {
	mu          sync.Mutex
	listings    map[string][]domain.ListingCandidate
	listingErrs map[string]error
	details     map[string]domain.PostingDetails
	detailErrs  map[string]error
	detailCalls []string
}

func (s *stubExtractor) ExtractListings(_ context.Context, pageURL string) ([]domain.ListingCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.listingErrs[pageURL]; err != nil {
		return nil, err
	}
	return s.listings[pageURL], nil
}

func (s *stubExtractor) ExtractDetails(_ context.Context, pageURL string) (domain.PostingDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detailCalls = append(s.detailCalls, pageURL)
	if err := s.detailErrs[pageURL]; err != nil {
		return domain.PostingDetails{}, err
	}
	return s.details[pageURL], nil
}

func (s *stubExtractor) detailCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.detailCalls)
}

type stubClassifier struct {
	mu       sync.Mutex
	verdicts map[string]domain.Verdict
	errs     map[string]error
	calls    []string
}

func (s *stubClassifier) Classify(_ context.Context, title string) (domain.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, title)
	if err := s.errs[title]; err != nil {
		return domain.Verdict{}, err
	}
	return s.verdicts[title], nil
}

func (s *stubClassifier) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type stubDupes struct {
	mu    sync.Mutex
	seen  map[string]bool
	errs  map[string]error
	calls []string
}

func (s *stubDupes) Exists(_ context.Context, link string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, link)
	if err := s.errs[link]; err != nil {
		return false, err
	}
	return s.seen[link], nil
}

func candidate(title, link, posted string) domain.ListingCandidate {
	return domain.ListingCandidate{Title: title, Link: link, PostedDateISO: posted}
}

func fixedNow() time.Time {
	return time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
}

func TestDiscoverHappyPath(t *testing.T) {
	company := "Acme"
	role := "Design and build backend services"

	ext := &stubExtractor{
		listings: map[string][]domain.ListingCandidate{
			"https://site-a/jobs": {
				candidate("Backend Engineer", "https://site-a/jobs/1", "2025-01-10"),
			},
		},
		details: map[string]domain.PostingDetails{
			"https://site-a/jobs/1": {Company: &company, Role: &role},
		},
	}
	cls := &stubClassifier{
		verdicts: map[string]domain.Verdict{
			"Backend Engineer": {IsRelevant: true, Reasoning: "matches backend preference"},
		},
	}
	dupes := &stubDupes{seen: map[string]bool{}}

	p := New(ext, cls, dupes, Config{Now: fixedNow})
	result, err := p.Discover(context.Background(), []string{"https://site-a/jobs"}, nil)
	require.NoError(t, err)

	require.Len(t, result.Matched, 1)
	assert.Empty(t, result.Irrelevant)
	assert.Empty(t, result.Unenriched)

	m := result.Matched[0]
	assert.Equal(t, "Backend Engineer", m.Title)
	assert.True(t, m.IsRelevant)
	require.NotNil(t, m.Details.Company)
	assert.Equal(t, "Acme", *m.Details.Company)

	recs := result.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "Acme", recs[0].Company)
	assert.Equal(t, domain.StatusPending, recs[0].Status)
}

func TestDiscoverEmptyInput(t *testing.T) {
	ext := &stubExtractor{}
	cls := &stubClassifier{}
	dupes := &stubDupes{}

	p := New(ext, cls, dupes, Config{Now: fixedNow})
	result, err := p.Discover(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Matched)
	assert.Empty(t, result.Irrelevant)
	assert.Empty(t, result.Unenriched)
	assert.Zero(t, cls.callCount())
}

func TestDiscoverDuplicateShortCircuits(t *testing.T) {
	ext := &stubExtractor{
		listings: map[string][]domain.ListingCandidate{
			"https://site-a/jobs": {
				candidate("Backend Engineer", "https://site-a/jobs/1", "2025-01-10"),
			},
		},
	}
	cls := &stubClassifier{}
	dupes := &stubDupes{seen: map[string]bool{"https://site-a/jobs/1": true}}

	p := New(ext, cls, dupes, Config{Now: fixedNow})
	result, err := p.Discover(context.Background(), []string{"https://site-a/jobs"}, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Matched)
	assert.Empty(t, result.Irrelevant)
	assert.Empty(t, result.Unenriched)

	// A known URL must never reach the model or the detail scraper.
	assert.Zero(t, cls.callCount())
	assert.Zero(t, ext.detailCallCount())
}

func TestDiscoverDuplicateLookupErrorAborts(t *testing.T) {
	ext := &stubExtractor{
		listings: map[string][]domain.ListingCandidate{
			"https://site-a/jobs": {
				candidate("Backend Engineer", "https://site-a/jobs/1", "2025-01-10"),
				candidate("Data Engineer", "https://site-a/jobs/2", "2025-01-12"),
			},
		},
	}
	cls := &stubClassifier{}
	dupes := &stubDupes{
		seen: map[string]bool{},
		errs: map[string]error{"https://site-a/jobs/2": errors.New("connection refused")},
	}

	p := New(ext, cls, dupes, Config{Now: fixedNow})
	_, err := p.Discover(context.Background(), []string{"https://site-a/jobs"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "https://site-a/jobs/2")
	assert.Zero(t, cls.callCount())
}

func TestDiscoverListingFailureIsIsolated(t *testing.T) {
	ext := &stubExtractor{
		listings: map[string][]domain.ListingCandidate{
			"https://site-a/jobs": {
				candidate("Backend Engineer", "https://site-a/jobs/1", "2025-01-10"),
			},
		},
		listingErrs: map[string]error{
			"https://site-b/jobs": errors.New("503 Service Unavailable"),
		},
	}
	cls := &stubClassifier{
		verdicts: map[string]domain.Verdict{
			"Backend Engineer": {IsRelevant: false, Reasoning: "not a match"},
		},
	}
	dupes := &stubDupes{seen: map[string]bool{}}

	p := New(ext, cls, dupes, Config{Now: fixedNow})
	result, err := p.Discover(context.Background(),
		[]string{"https://site-a/jobs", "https://site-b/jobs"}, nil)
	require.NoError(t, err)

	// site-b failing must not disturb site-a's candidates.
	require.Len(t, result.Irrelevant, 1)
	assert.Equal(t, "Backend Engineer", result.Irrelevant[0].Title)
}

func TestDiscoverUnparsableDateDropped(t *testing.T) {
	ext := &stubExtractor{
		listings: map[string][]domain.ListingCandidate{
			"https://site-a/jobs": {
				candidate("Backend Engineer", "https://site-a/jobs/1", "about a week ago"),
			},
		},
	}
	cls := &stubClassifier{}
	dupes := &stubDupes{seen: map[string]bool{}}

	p := New(ext, cls, dupes, Config{Now: fixedNow})
	result, err := p.Discover(context.Background(), []string{"https://site-a/jobs"}, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Matched)
	assert.Empty(t, result.Irrelevant)
	// A candidate without a usable date is never classified.
	assert.Zero(t, cls.callCount())
}

func TestDiscoverRecencyBoundary(t *testing.T) {
	// now = 2025-02-01, threshold 4 months, cutoff = 2024-10-01:
	// a 3-month-old posting survives, a 5-month-old one does not.
	ext := &stubExtractor{
		listings: map[string][]domain.ListingCandidate{
			"https://site-a/jobs": {
				candidate("Recent Role", "https://site-a/jobs/1", "2024-11-01"),
				candidate("Stale Role", "https://site-a/jobs/2", "2024-09-01"),
			},
		},
	}
	cls := &stubClassifier{
		verdicts: map[string]domain.Verdict{
			"Recent Role": {IsRelevant: false, Reasoning: "no"},
		},
	}
	dupes := &stubDupes{seen: map[string]bool{}}

	p := New(ext, cls, dupes, Config{RecencyMonths: 4, Now: fixedNow})
	result, err := p.Discover(context.Background(), []string{"https://site-a/jobs"}, nil)
	require.NoError(t, err)

	require.Len(t, result.Irrelevant, 1)
	assert.Equal(t, "Recent Role", result.Irrelevant[0].Title)
	require.Equal(t, 1, cls.callCount())
}

func TestDiscoverClassifierErrorFailsClosed(t *testing.T) {
	ext := &stubExtractor{
		listings: map[string][]domain.ListingCandidate{
			"https://site-a/jobs": {
				candidate("Backend Engineer", "https://site-a/jobs/1", "2025-01-10"),
				candidate("Data Engineer", "https://site-a/jobs/2", "2025-01-12"),
			},
		},
	}
	cls := &stubClassifier{
		verdicts: map[string]domain.Verdict{
			"Data Engineer": {IsRelevant: false, Reasoning: "not a match"},
		},
		errs: map[string]error{
			"Backend Engineer": errors.New("rate limited"),
		},
	}
	dupes := &stubDupes{seen: map[string]bool{}}

	p := New(ext, cls, dupes, Config{Now: fixedNow})
	result, err := p.Discover(context.Background(), []string{"https://site-a/jobs"}, nil)
	require.NoError(t, err)

	// Both end up irrelevant: one by verdict, one by degraded failure.
	require.Len(t, result.Irrelevant, 2)
	assert.Empty(t, result.Matched)

	byTitle := map[string]domain.ClassifiedCandidate{}
	for _, c := range result.Irrelevant {
		byTitle[c.Title] = c
	}
	failed := byTitle["Backend Engineer"]
	assert.False(t, failed.IsRelevant)
	assert.Contains(t, failed.Reasoning, "rate limited")
	assert.Equal(t, "not a match", byTitle["Data Engineer"].Reasoning)
}

func TestDiscoverEnrichmentFailureGoesUnenriched(t *testing.T) {
	company := "Acme"
	ext := &stubExtractor{
		listings: map[string][]domain.ListingCandidate{
			"https://site-a/jobs": {
				candidate("Backend Engineer", "https://site-a/jobs/1", "2025-01-10"),
				candidate("Platform Engineer", "https://site-a/jobs/2", "2025-01-12"),
			},
		},
		details: map[string]domain.PostingDetails{
			"https://site-a/jobs/1": {Company: &company},
		},
		detailErrs: map[string]error{
			"https://site-a/jobs/2": errors.New("timeout"),
		},
	}
	cls := &stubClassifier{
		verdicts: map[string]domain.Verdict{
			"Backend Engineer":  {IsRelevant: true, Reasoning: "yes"},
			"Platform Engineer": {IsRelevant: true, Reasoning: "yes"},
		},
	}
	dupes := &stubDupes{seen: map[string]bool{}}

	p := New(ext, cls, dupes, Config{Now: fixedNow})
	result, err := p.Discover(context.Background(), []string{"https://site-a/jobs"}, nil)
	require.NoError(t, err)

	require.Len(t, result.Matched, 1)
	require.Len(t, result.Unenriched, 1)
	assert.Equal(t, "Backend Engineer", result.Matched[0].Title)
	assert.Equal(t, "Platform Engineer", result.Unenriched[0].Title)

	// Every relevant candidate lands in exactly one of the two buckets.
	assert.Equal(t, 2, len(result.Matched)+len(result.Unenriched))

	// The unenriched posting is still persisted, just without details.
	recs := result.Records()
	require.Len(t, recs, 2)
	byURL := map[string]domain.Record{}
	for _, r := range recs {
		byURL[r.URL] = r
	}
	assert.Empty(t, byURL["https://site-a/jobs/2"].Company)
	assert.True(t, byURL["https://site-a/jobs/2"].IsRelevant)
}

func TestDiscoverProgressCheckpoints(t *testing.T) {
	ext := &stubExtractor{
		listings: map[string][]domain.ListingCandidate{
			"https://site-a/jobs": {
				candidate("Backend Engineer", "https://site-a/jobs/1", "2025-01-10"),
			},
		},
	}
	cls := &stubClassifier{
		verdicts: map[string]domain.Verdict{
			"Backend Engineer": {IsRelevant: true, Reasoning: "yes"},
		},
	}
	dupes := &stubDupes{seen: map[string]bool{}}

	var mu sync.Mutex
	var percents []int
	onProgress := func(percent int, message string) {
		mu.Lock()
		defer mu.Unlock()
		percents = append(percents, percent)
	}

	p := New(ext, cls, dupes, Config{Now: fixedNow})
	_, err := p.Discover(context.Background(), []string{"https://site-a/jobs"}, onProgress)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{10, 30, 40, 60, 80, 100}, percents)
}

func TestDiscoverProgressPanicTolerated(t *testing.T) {
	ext := &stubExtractor{
		listings: map[string][]domain.ListingCandidate{
			"https://site-a/jobs": {
				candidate("Backend Engineer", "https://site-a/jobs/1", "2025-01-10"),
			},
		},
	}
	cls := &stubClassifier{
		verdicts: map[string]domain.Verdict{
			"Backend Engineer": {IsRelevant: false, Reasoning: "no"},
		},
	}
	dupes := &stubDupes{seen: map[string]bool{}}

	p := New(ext, cls, dupes, Config{Now: fixedNow})
	result, err := p.Discover(context.Background(), []string{"https://site-a/jobs"},
		func(percent int, message string) {
			panic(fmt.Sprintf("boom at %d", percent))
		})
	require.NoError(t, err)
	assert.Len(t, result.Irrelevant, 1)
}
