package llm

import (
	"context"
	"time"
)

// Observer receives a notification after every provider call, successful or
// not. Implementations should not block; they run on the calling goroutine.
type Observer interface {
	OnCall(ctx context.Context, event CallEvent)
}

// CallEvent contains all information about one provider call.
type CallEvent struct {
	Provider string
	Model    string

	Request Request

	// Response is nil when the call failed.
	Response *Response

	Error error

	StartedAt time.Time
	Duration  time.Duration
}

// ObserverFunc is a convenience type for using a function as an Observer.
type ObserverFunc func(ctx context.Context, event CallEvent)

// OnCall implements Observer.
func (f ObserverFunc) OnCall(ctx context.Context, event CallEvent) {
	f(ctx, event)
}

// MultiObserver combines multiple observers into one.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver creates an observer that dispatches to multiple observers.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	return &MultiObserver{observers: observers}
}

// OnCall dispatches the event to all registered observers.
func (m *MultiObserver) OnCall(ctx context.Context, event CallEvent) {
	for _, obs := range m.observers {
		obs.OnCall(ctx, event)
	}
}

// Add adds an observer to the multi-observer.
func (m *MultiObserver) Add(obs Observer) {
	m.observers = append(m.observers, obs)
}

// observedProvider reports every Execute call to an observer.
type observedProvider struct {
	Provider
	obs Observer
}

// WithObserver wraps p so that obs sees every call. A nil observer returns p
// unchanged.
func WithObserver(p Provider, obs Observer) Provider {
	if obs == nil {
		return p
	}
	return &observedProvider{Provider: p, obs: obs}
}

func (o *observedProvider) Execute(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := o.Provider.Execute(ctx, req)

	event := CallEvent{
		Provider:  o.Name(),
		Model:     o.Model(),
		Request:   req,
		Response:  resp,
		Error:     err,
		StartedAt: start,
		Duration:  time.Since(start),
	}
	if resp != nil && resp.Model != "" {
		event.Model = resp.Model
	}
	o.obs.OnCall(ctx, event)
	return resp, err
}

func (o *observedProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return listModels(ctx, o.Provider)
}

// listModels delegates to the wrapped provider's lister.
func listModels(ctx context.Context, p Provider) ([]ModelInfo, error) {
	lister, ok := AsModelLister(p)
	if !ok {
		return nil, ErrListUnsupported
	}
	return lister.ListModels(ctx)
}
