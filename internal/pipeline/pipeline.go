package pipeline

import (
	"context"
	"runtime"
	"sync"
)

type Task func(ctx context.Context, index int) error

func Workers(requested int) int {
	if requested > 0 {
		return requested
	}
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}

// Run executes fn for every index in [0,n) on a fixed pool of workers and
// returns one error slot per index. Once ctx is cancelled no further indices
// are dispatched and the remaining slots hold ctx.Err().
func Run(ctx context.Context, n, workers int, fn Task) []error {
	if n == 0 || fn == nil {
		return nil
	}
	workers = Workers(workers)
	if workers > n {
		workers = n
	}

	errs := make([]error, n)
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				errs[i] = fn(ctx, i)
			}
		}()
	}

	next := 0
dispatch:
	for ; next < n; next++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- next:
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < n; i++ {
		errs[i] = ctx.Err()
	}
	return errs
}

// FirstError returns the lowest-index non-nil error.
func FirstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
