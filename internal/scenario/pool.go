package scenario

import (
	"context"
	"sync"
)

// Runner runs one named scenario to an outcome.
type Runner interface {
	Run(ctx context.Context, name string) Outcome
}

// RunAll executes the named scenarios on a bounded worker pool and
// returns their outcomes in the order the names were given, regardless
// of completion order. A scenario that blows its own deadline never
// delays or cancels its siblings.
func RunAll(ctx context.Context, runner Runner, names []string, maxParallel int) []Outcome {
	if maxParallel <= 0 {
		maxParallel = 2
	}
	if maxParallel > len(names) {
		maxParallel = len(names)
	}

	outcomes := make([]Outcome, len(names))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < maxParallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				outcomes[idx] = runner.Run(ctx, names[idx])
			}
		}()
	}
	for idx := range names {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()
	return outcomes
}
