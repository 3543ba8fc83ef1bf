package classify

import (
	"context"

	"github.com/project-tktt/job-scout/internal/domain"
)

// Classifier judges whether a single job title matches the user's stated
// preferences. One call per title; titles are never batched into one
// request, so a malformed response can only hurt its own item.
type Classifier interface {
	Classify(ctx context.Context, title string) (domain.Verdict, error)
}
