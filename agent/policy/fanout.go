package policy

import (
	"context"
	"slices"
	"sync"
)

type Task[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

type Outcome[T any] struct {
	Name  string
	Value T
	Err   error
}

type indexedOutcome[T any] struct {
	index   int
	outcome Outcome[T]
}

// FanOut runs every task concurrently and returns once all of them have
// finished, in task order. It never returns early on the first failure.
func FanOut[T any](ctx context.Context, tasks []Task[T]) []Outcome[T] {
	results := make(chan indexedOutcome[T], len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(idx int, task Task[T]) {
			defer wg.Done()
			value, err := task.Run(ctx)
			results <- indexedOutcome[T]{index: idx, outcome: Outcome[T]{Name: task.Name, Value: value, Err: err}}
		}(i, task)
	}

	wg.Wait()
	close(results)

	collected := make([]indexedOutcome[T], 0, len(tasks))
	for r := range results {
		collected = append(collected, r)
	}
	slices.SortFunc(collected, func(a, b indexedOutcome[T]) int { return a.index - b.index })

	out := make([]Outcome[T], len(collected))
	for i, r := range collected {
		out[i] = r.outcome
	}
	return out
}
