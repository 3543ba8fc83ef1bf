package pipeline

import (
	"context"
	"sync"
)

// mapBatches runs fn concurrently over items in fixed-size batches. All
// calls within a batch are issued at once and the next batch does not
// start until the current one has fully settled, so the batch size caps
// the number of concurrently in-flight calls. Results and errors are
// index-aligned with items; no ordering is guaranteed within a batch.
func mapBatches[T, R any](ctx context.Context, items []T, size int, fn func(ctx context.Context, item T) (R, error)) ([]R, []error) {
	if size <= 0 {
		size = 1
	}

	results := make([]R, len(items))
	errs := make([]error, len(items))

	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = fn(ctx, items[i])
			}(i)
		}
		wg.Wait()
	}

	return results, errs
}
