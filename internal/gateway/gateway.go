package gateway

import (
	"context"
	"time"

	"github.com/project-tktt/job-scout/internal/domain"
)

// Extractor turns a page URL into structured data. Implementations may
// render, fetch, or prompt however they like; callers only see parsed
// results or an error. A failed call and a schema-invalid response are
// the same thing to the caller: the URL produced nothing usable.
// Retry policy, if any, lives behind this interface, not in front of it.
type Extractor interface {
	// ExtractListings pulls all job postings referenced on a listing page.
	ExtractListings(ctx context.Context, pageURL string) ([]domain.ListingCandidate, error)

	// ExtractDetails pulls detail fields from a single posting's page.
	ExtractDetails(ctx context.Context, pageURL string) (domain.PostingDetails, error)
}

// Config holds common settings for gateway implementations.
type Config struct {
	UserAgent    string
	ProxyURL     string
	RequestDelay time.Duration
	// Timeout bounds one whole extraction call (fetch + model)
	Timeout time.Duration
}
