package metaminer

import (
	"context"
	"sync/atomic"

	"github.com/travis4dams/metaminer/pkg/llm"
)

// Usage totals provider calls and tokens for one Inquiry.
type Usage struct {
	Calls        int64
	Failures     int64
	InputTokens  int64
	OutputTokens int64
}

type usageObserver struct {
	calls, failures, input, output atomic.Int64
}

func (u *usageObserver) OnCall(_ context.Context, event llm.CallEvent) {
	u.calls.Add(1)
	if event.Error != nil || event.Response == nil {
		u.failures.Add(1)
		return
	}
	u.input.Add(int64(event.Response.Usage.InputTokens))
	u.output.Add(int64(event.Response.Usage.OutputTokens))
}

func (u *usageObserver) snapshot() Usage {
	return Usage{
		Calls:        u.calls.Load(),
		Failures:     u.failures.Load(),
		InputTokens:  u.input.Load(),
		OutputTokens: u.output.Load(),
	}
}
