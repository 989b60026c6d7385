package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerSettings configures WithBreaker.
type BreakerSettings struct {
	// Threshold is the number of consecutive transport failures that opens
	// the breaker. Zero disables the breaker.
	Threshold uint32

	// OpenTimeout is how long the breaker stays open before letting a probe
	// request through. Defaults to 30s.
	OpenTimeout time.Duration

	Logger *slog.Logger
}

// breakerProvider fails fast while the backend keeps failing at the
// transport level.
type breakerProvider struct {
	Provider
	cb *gobreaker.CircuitBreaker[*Response]
}

// WithBreaker wraps p with a circuit breaker. Only transport failures count
// against it; parse and API errors pass through untouched. While open, calls
// fail with a transient connection error so that retry policies treat them
// like any other outage.
func WithBreaker(p Provider, s BreakerSettings) Provider {
	if s.Threshold == 0 {
		return p
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	threshold := s.Threshold
	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsTransient(err)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "provider", name, "from", from.String(), "to", to.String())
		},
	})
	return &breakerProvider{Provider: p, cb: cb}
}

func (b *breakerProvider) Execute(ctx context.Context, req Request) (*Response, error) {
	resp, err := b.cb.Execute(func() (*Response, error) {
		return b.Provider.Execute(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &TransportError{Kind: KindConnection, Provider: b.Name(), Err: err}
	}
	return resp, err
}

func (b *breakerProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return listModels(ctx, b.Provider)
}
