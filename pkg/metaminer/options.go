package metaminer

import (
	"log/slog"

	"github.com/travis4dams/metaminer/pkg/document"
	"github.com/travis4dams/metaminer/pkg/llm"
)

type options struct {
	provider llm.Provider
	reader   *document.Reader
	logger   *slog.Logger
	observer llm.Observer
	progress func(done, total int)
}

// Option configures an Inquiry.
type Option func(*options)

// WithProvider uses p instead of building a provider from the config. The
// configured model is ignored; p is used as is.
func WithProvider(p llm.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithDocumentReader sets the reader used to turn files into text.
func WithDocumentReader(r *document.Reader) Option {
	return func(o *options) {
		o.reader = r
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver registers an observer for every provider call.
func WithObserver(obs llm.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithProgress sets a callback invoked after each unit of a batch.
func WithProgress(fn func(done, total int)) Option {
	return func(o *options) {
		o.progress = fn
	}
}
