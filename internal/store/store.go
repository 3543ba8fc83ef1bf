package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/project-tktt/job-scout/internal/domain"
)

// ErrDuplicate is returned when a record's URL already exists in the sink.
// The uniqueness constraint in the database is the source of truth; the
// pipeline's earlier duplicate check is only a best-effort optimization
// that can miss a concurrent insert.
var ErrDuplicate = errors.New("posting already stored")

// DuplicateIndex answers whether a posting URL has already been persisted.
type DuplicateIndex interface {
	Exists(ctx context.Context, url string) (bool, error)
}

// Sink stores finalized posting records, one at a time.
type Sink interface {
	Insert(ctx context.Context, rec domain.Record) error
}

// SearchIndexer pushes stored records into a secondary search index.
type SearchIndexer interface {
	BulkIndex(ctx context.Context, recs []domain.Record) error
}

// StoreResults persists records sequentially. A duplicate conflict is
// logged and skipped so one race with a concurrent run cannot block the
// remaining records; any other error stops the loop and is returned.
func StoreResults(ctx context.Context, sink Sink, recs []domain.Record) (stored, skipped int, err error) {
	for _, rec := range recs {
		if err := sink.Insert(ctx, rec); err != nil {
			if errors.Is(err, ErrDuplicate) {
				log.Printf("Skipping already-stored posting %s", rec.URL)
				skipped++
				continue
			}
			return stored, skipped, fmt.Errorf("store %s: %w", rec.URL, err)
		}
		log.Printf("Stored job: %s", rec.Title)
		stored++
	}
	return stored, skipped, nil
}
