package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrInvalidBatchSize is returned for a batch size below one.
var ErrInvalidBatchSize = errors.New("batch size must be at least 1")

// Config configures a Processor.
type Config struct {
	Workers   int
	BatchSize int

	// Limiter is shared by every unit. Nil means no rate limiting.
	Limiter *Limiter

	// Timeout bounds the wait for a limiter token.
	Timeout time.Duration

	// Progress, if set, is called after each unit with the number of units
	// finished so far and the total.
	Progress func(done, total int)

	Logger *slog.Logger
}

// Processor runs a unit function over many inputs in batches.
type Processor struct {
	config Config
	pool   *Pool
	logger *slog.Logger
}

// NewProcessor validates cfg and creates a Processor.
func NewProcessor(cfg Config) (*Processor, error) {
	pool, err := NewPool(cfg.Workers)
	if err != nil {
		return nil, err
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidBatchSize, cfg.BatchSize)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Processor{config: cfg, pool: pool, logger: logger}, nil
}

// Run calls unit for every index in [0, n) and returns the indices that
// succeeded, in ascending order. Failed units are logged and left out.
//
// A single unit runs on the calling goroutine. Larger inputs are split into
// batches of BatchSize, each run on the worker pool. If the pool itself
// fails, the units of that batch that did not finish are run sequentially.
func (p *Processor) Run(ctx context.Context, n int, unit func(ctx context.Context, i int) error) []int {
	if n == 0 {
		return nil
	}

	ok := make([]bool, n)
	finished := make([]bool, n)
	var (
		mu   sync.Mutex
		done int
	)
	record := func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		finished[i] = true
		if err != nil {
			p.logger.Warn("unit failed", "index", i, "error", err)
		} else {
			ok[i] = true
		}
		done++
		if p.config.Progress != nil {
			p.config.Progress(done, n)
		}
	}
	call := func(ctx context.Context, i int) error {
		if p.config.Limiter != nil {
			if err := p.config.Limiter.Acquire(ctx, p.config.Timeout); err != nil {
				return err
			}
		}
		return unit(ctx, i)
	}

	if n == 1 {
		p.sequential(ctx, []int{0}, call, record)
		return successes(ok)
	}

	for start := 0; start < n; start += p.config.BatchSize {
		if ctx.Err() != nil {
			break
		}
		end := min(start+p.config.BatchSize, n)
		p.logger.Debug("processing batch", "start", start, "end", end, "total", n, "workers", p.pool.Workers())

		err := p.pool.Run(ctx, end-start, func(ctx context.Context, j int) {
			i := start + j
			record(i, call(ctx, i))
		})
		if err == nil {
			continue
		}

		p.logger.Warn("parallel processing failed, falling back to sequential", "error", err)
		var pending []int
		mu.Lock()
		for i := start; i < end; i++ {
			if !finished[i] {
				pending = append(pending, i)
			}
		}
		mu.Unlock()
		p.sequential(ctx, pending, call, record)
	}

	return successes(ok)
}

// sequential runs the given units one after another on the caller. A panic
// in a unit fails only that unit.
func (p *Processor) sequential(ctx context.Context, indices []int, call func(context.Context, int) error, record func(int, error)) {
	for _, i := range indices {
		if ctx.Err() != nil {
			return
		}
		record(i, safeCall(ctx, i, call))
	}
}

func safeCall(ctx context.Context, i int, call func(context.Context, int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unit panic: %v", r)
		}
	}()
	return call(ctx, i)
}

func successes(ok []bool) []int {
	var out []int
	for i, v := range ok {
		if v {
			out = append(out, i)
		}
	}
	return out
}

// Process applies fn to every item and returns the successful results in
// input order.
func Process[T, R any](ctx context.Context, p *Processor, items []T, fn func(ctx context.Context, item T) (R, error)) []R {
	results := make([]R, len(items))
	indices := p.Run(ctx, len(items), func(ctx context.Context, i int) error {
		r, err := fn(ctx, items[i])
		if err != nil {
			return err
		}
		results[i] = r
		return nil
	})

	out := make([]R, 0, len(indices))
	for _, i := range indices {
		out = append(out, results[i])
	}
	return out
}
