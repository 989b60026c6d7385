// Package worker runs units of work concurrently under a shared rate limit.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// ErrInvalidWorkers is returned for a pool with fewer than one worker.
var ErrInvalidWorkers = errors.New("worker count must be at least 1")

// PanicError reports a panic recovered inside the pool. The pool's results
// are incomplete when it is returned.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worker panic: %v", e.Value)
}

// Pool executes indexed jobs on a fixed number of goroutines.
type Pool struct {
	workers int
}

// NewPool creates a pool with the given number of workers.
func NewPool(workers int) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidWorkers, workers)
	}
	return &Pool{workers: workers}, nil
}

// Workers returns the pool size.
func (p *Pool) Workers() int { return p.workers }

// Run calls job once for every index in [0, n) and waits for all of them.
// A panic in any job stops the pool: jobs not yet started are skipped and
// Run returns a *PanicError. Jobs already running keep ctx and finish on
// their own. Cancelling ctx also stops scheduling new jobs.
func (p *Pool) Run(ctx context.Context, n int, job func(ctx context.Context, i int)) error {
	if n == 0 {
		return nil
	}

	workers := min(p.workers, n)
	jobs := make(chan int, workers*2)
	stop := make(chan struct{})

	var (
		wg        sync.WaitGroup
		panicOnce sync.Once
		panicErr  *PanicError
	)
	stopped := func() bool {
		select {
		case <-stop:
			return true
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}

	worker := func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				panicOnce.Do(func() {
					panicErr = &PanicError{Value: r, Stack: debug.Stack()}
					close(stop)
				})
			}
		}()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case i, ok := <-jobs:
				if !ok || stopped() {
					return
				}
				job(ctx, i)
			}
		}
	}

	wg.Add(workers)
	for range workers {
		go worker()
	}

submit:
	for i := range n {
		select {
		case <-stop:
			break submit
		case <-ctx.Done():
			break submit
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if panicErr != nil {
		return panicErr
	}
	return nil
}
