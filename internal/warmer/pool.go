package warmer

import (
	"context"
	"sync"
	"sync/atomic"
)

// FetchResult holds the outcome of warming a single movie id.
type FetchResult struct {
	MovieID     int
	Placeholder bool
	Err         error
}

// FetchFunc warms one movie id and reports whether only a placeholder
// could be produced.
type FetchFunc func(ctx context.Context, movieID int) (placeholder bool, err error)

// FetchConcurrently fans ids out across N workers. processedCount is
// atomically incremented after each id completes, success or failure.
// Results are returned in no guaranteed order.
func FetchConcurrently(
	ctx context.Context,
	ids []int,
	fn FetchFunc,
	workers int,
	processedCount *int64,
) []FetchResult {
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan int, len(ids))
	results := make(chan FetchResult, len(ids))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if ctx.Err() != nil {
					results <- FetchResult{MovieID: id, Err: ctx.Err()}
					atomic.AddInt64(processedCount, 1)
					continue
				}

				placeholder, err := fn(ctx, id)
				results <- FetchResult{MovieID: id, Placeholder: placeholder, Err: err}
				atomic.AddInt64(processedCount, 1)
			}
		}()
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make([]FetchResult, 0, len(ids))
	for r := range results {
		out = append(out, r)
	}
	return out
}
