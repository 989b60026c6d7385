package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newProcessor(t *testing.T, cfg Config) *Processor {
	t.Helper()
	p, err := NewProcessor(cfg)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	return p
}

func TestNewProcessor_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"no workers", Config{Workers: 0, BatchSize: 1}, ErrInvalidWorkers},
		{"no batch", Config{Workers: 1, BatchSize: 0}, ErrInvalidBatchSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProcessor(tt.cfg); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestProcess_PreservesOrderAndDropsFailures(t *testing.T) {
	p := newProcessor(t, Config{Workers: 4, BatchSize: 3})
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}

	got := Process(context.Background(), p, items, func(ctx context.Context, n int) (string, error) {
		// finish out of order
		time.Sleep(time.Duration(10-n) * time.Millisecond)
		if n%3 == 0 {
			return "", fmt.Errorf("item %d failed", n)
		}
		return fmt.Sprintf("r%d", n), nil
	})

	want := []string{"r1", "r2", "r4", "r5", "r7", "r8"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %q at %d, got %q", want[i], i, got[i])
		}
	}
}

func TestProcess_SingleUnitRunsInline(t *testing.T) {
	p := newProcessor(t, Config{Workers: 4, BatchSize: 10})

	got := Process(context.Background(), p, []string{"only"}, func(ctx context.Context, s string) (string, error) {
		return s + "!", nil
	})
	if len(got) != 1 || got[0] != "only!" {
		t.Errorf("expected [only!], got %v", got)
	}
}

func TestProcess_FallsBackToSequentialOnPanic(t *testing.T) {
	p := newProcessor(t, Config{Workers: 3, BatchSize: 5})
	var panicked atomic.Bool
	var calls sync.Map

	items := []int{0, 1, 2, 3, 4, 5, 6}
	got := Process(context.Background(), p, items, func(ctx context.Context, n int) (int, error) {
		v, _ := calls.LoadOrStore(n, new(int32))
		atomic.AddInt32(v.(*int32), 1)
		if n == 2 && panicked.CompareAndSwap(false, true) {
			panic("pool broke")
		}
		return n * 10, nil
	})

	if len(got) != len(items) {
		t.Fatalf("expected %d results, got %v", len(items), got)
	}
	for i, v := range got {
		if v != items[i]*10 {
			t.Errorf("expected %d at %d, got %d", items[i]*10, i, v)
		}
	}
	calls.Range(func(k, v any) bool {
		if n := atomic.LoadInt32(v.(*int32)); n > 1 && k.(int) != 2 {
			t.Errorf("finished unit %d ran %d times", k, n)
		}
		return true
	})
}

func TestProcess_PanicKeepsInFlightUnits(t *testing.T) {
	p := newProcessor(t, Config{Workers: 3, BatchSize: 3})
	var panicked atomic.Bool

	got := Process(context.Background(), p, []int{0, 1, 2}, func(ctx context.Context, n int) (int, error) {
		if n == 0 {
			time.Sleep(20 * time.Millisecond)
			if panicked.CompareAndSwap(false, true) {
				panic("pool broke")
			}
			return 0, nil
		}
		select {
		case <-time.After(200 * time.Millisecond):
			return n * 10, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	})

	want := []int{0, 10, 20}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %d at %d, got %d", want[i], i, got[i])
		}
	}
}

func TestProcess_LimiterTimeoutDropsUnits(t *testing.T) {
	p := newProcessor(t, Config{
		Workers:   1,
		BatchSize: 10,
		Limiter:   NewLimiter(2),
		Timeout:   20 * time.Millisecond,
	})

	got := Process(context.Background(), p, []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		return n, nil
	})
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("expected [1 2], got %v", got)
	}
}

func TestProcess_Progress(t *testing.T) {
	var last, calls int
	p := newProcessor(t, Config{
		Workers:   2,
		BatchSize: 2,
		Progress: func(done, total int) {
			calls++
			last = done
			if total != 5 {
				t.Errorf("expected total 5, got %d", total)
			}
		},
	})

	Process(context.Background(), p, []int{1, 2, 3, 4, 5}, func(ctx context.Context, n int) (int, error) {
		if n == 4 {
			return 0, errors.New("nope")
		}
		return n, nil
	})
	if calls != 5 || last != 5 {
		t.Errorf("expected 5 progress calls ending at 5, got %d calls ending at %d", calls, last)
	}
}

func TestProcess_Empty(t *testing.T) {
	p := newProcessor(t, Config{Workers: 1, BatchSize: 1})
	got := Process(context.Background(), p, nil, func(ctx context.Context, n int) (int, error) {
		t.Error("unit must not run")
		return n, nil
	})
	if len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
}
