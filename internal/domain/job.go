package domain

import (
	"fmt"
	"net/url"
	"time"
)

// ListingCandidate is a job posting reference scraped from a listing page,
// before relevance is known. Link is the natural identity: two candidates
// with the same link are the same posting.
type ListingCandidate struct {
	Title         string `json:"job_title"`
	Link          string `json:"job_link"`
	PostedDateISO string `json:"posted_date_iso"`
	Constraints   string `json:"constraints,omitempty"`
}

// Validate checks the fields the listing extraction must produce.
func (c ListingCandidate) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("empty title")
	}
	u, err := url.Parse(c.Link)
	if err != nil {
		return fmt.Errorf("parse link: %w", err)
	}
	if !u.IsAbs() || u.Hostname() == "" {
		return fmt.Errorf("link %q is not an absolute URL", c.Link)
	}
	return nil
}

// PostedDate parses the posting date. The extraction prompt asks for
// YYYY-MM-DD but the model does not always comply, so callers must treat
// an error as "date unknown" rather than "recent".
func (c ListingCandidate) PostedDate() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.PostedDateISO)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse posted date %q: %w", c.PostedDateISO, err)
	}
	return t, nil
}

// SourceHost returns the hostname of the candidate's link, used as the
// persisted source field.
func (c ListingCandidate) SourceHost() string {
	u, err := url.Parse(c.Link)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// Verdict is the outcome of relevance classification.
type Verdict struct {
	IsRelevant bool   `json:"isRelevant"`
	Reasoning  string `json:"reasoning"`
}

// ClassifiedCandidate is a ListingCandidate plus its classification outcome.
// When classification fails the candidate degrades to not-relevant with the
// failure recorded in Reasoning, so no candidate is silently lost.
type ClassifiedCandidate struct {
	ListingCandidate
	Verdict
}

// PostingDetails holds the fields scraped from a posting's own page.
// All fields are optional; nil means not found on the page.
type PostingDetails struct {
	Region     *string `json:"region"`
	Role       *string `json:"role"`
	Experience *string `json:"experience"`
	Company    *string `json:"company"`
	JobType    *string `json:"job_type"`
	Salary     *string `json:"salary"`
}

// EnrichedPosting is a relevant ClassifiedCandidate whose detail scrape
// succeeded. It is only ever built through NewEnrichedPosting, never by
// inspecting field presence at runtime.
type EnrichedPosting struct {
	ClassifiedCandidate
	Details PostingDetails
}

// NewEnrichedPosting combines a classified candidate with scraped details.
func NewEnrichedPosting(c ClassifiedCandidate, d PostingDetails) EnrichedPosting {
	return EnrichedPosting{ClassifiedCandidate: c, Details: d}
}

// JobStatus is the lifecycle state of a persisted posting. The pipeline
// only ever creates PENDING records; the review workflow owns the rest:
// PENDING -> {APPROVED, REJECTED} -> {APPLIED, INTERVIEW, REJECTED_BY_COMPANY}.
type JobStatus string

const (
	StatusPending           JobStatus = "PENDING"
	StatusApproved          JobStatus = "APPROVED"
	StatusRejected          JobStatus = "REJECTED"
	StatusApplied           JobStatus = "APPLIED"
	StatusInterview         JobStatus = "INTERVIEW"
	StatusRejectedByCompany JobStatus = "REJECTED_BY_COMPANY"
)

// Record is the durable posting shape keyed by URL. It is built through
// exactly one of NewListingRecord and NewDetailedRecord; which constructor
// ran decides whether detail fields are present.
type Record struct {
	Title              string     `json:"title"`
	Company            string     `json:"company"`
	Description        string     `json:"description"`
	URL                string     `json:"url"`
	Source             string     `json:"source"`
	Status             JobStatus  `json:"status"`
	IsRelevant         bool       `json:"is_relevant"`
	RelevanceReasoning string     `json:"relevance_reasoning"`
	Region             *string    `json:"region"`
	JobType            *string    `json:"job_type"`
	Experience         *string    `json:"experience"`
	Salary             *string    `json:"salary"`
	PostedDate         *time.Time `json:"posted_date"`
	Notes              *string    `json:"notes"`
}

// NewListingRecord maps a candidate that never reached (or survived)
// detail enrichment. Detail fields stay null.
func NewListingRecord(c ClassifiedCandidate) Record {
	return Record{
		Title:              c.Title,
		URL:                c.Link,
		Source:             c.SourceHost(),
		Status:             StatusPending,
		IsRelevant:         c.IsRelevant,
		RelevanceReasoning: c.Reasoning,
		PostedDate:         postedDateOrNil(c.ListingCandidate),
	}
}

// NewDetailedRecord maps an enriched posting, including its detail fields.
func NewDetailedRecord(p EnrichedPosting) Record {
	r := NewListingRecord(p.ClassifiedCandidate)
	if p.Details.Company != nil {
		r.Company = *p.Details.Company
	}
	if p.Details.Role != nil {
		r.Description = *p.Details.Role
	}
	r.Region = p.Details.Region
	r.JobType = p.Details.JobType
	r.Experience = p.Details.Experience
	r.Salary = p.Details.Salary
	return r
}

// NewManualRecord maps a posting entered by hand. Manual entries skip the
// pipeline entirely, so they start APPROVED and relevant.
func NewManualRecord(title, company, link, notes string) Record {
	c := ListingCandidate{Title: title, Link: link}
	r := Record{
		Title:      title,
		Company:    company,
		URL:        link,
		Source:     c.SourceHost(),
		Status:     StatusApproved,
		IsRelevant: true,
	}
	if notes != "" {
		r.Notes = &notes
	}
	return r
}

func postedDateOrNil(c ListingCandidate) *time.Time {
	t, err := c.PostedDate()
	if err != nil {
		return nil
	}
	return &t
}
