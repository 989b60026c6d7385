// Package metaminer extracts typed answers to a fixed set of questions from
// documents and text using an LLM.
//
// Basic usage:
//
//	cfg := config.Default()
//	inq, err := metaminer.New(ctx, map[string]any{
//		"title": map[string]any{"question": "What is the title?", "type": "str"},
//	}, cfg)
//	rec, err := inq.ProcessDocument(ctx, "report.pdf")
package metaminer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/travis4dams/metaminer/internal/worker"
	"github.com/travis4dams/metaminer/pkg/config"
	"github.com/travis4dams/metaminer/pkg/document"
	"github.com/travis4dams/metaminer/pkg/extractor"
	"github.com/travis4dams/metaminer/pkg/inference"
	"github.com/travis4dams/metaminer/pkg/llm"
	"github.com/travis4dams/metaminer/pkg/question"
	"github.com/travis4dams/metaminer/pkg/record"
	"github.com/travis4dams/metaminer/pkg/schema"
)

// ErrNoText is returned when a document yields no text.
var ErrNoText = errors.New("no text could be extracted from document")

// Unit is one text to extract from, with the metadata appended to its
// record.
type Unit struct {
	Text string
	Meta record.Metadata
}

// Inquiry asks one question set of many documents.
type Inquiry struct {
	config      config.Config
	logger      *slog.Logger
	set         *question.Set
	provider    llm.Provider
	usage       *usageObserver
	schemas     *schema.Cache
	inferrer    *inference.Inferrer
	extractor   *extractor.Extractor
	reader      *document.Reader
	processor   *worker.Processor
	maxFileSize int64

	mu       sync.Mutex
	inferred bool
}

// New creates an Inquiry. questions is anything question.Normalize accepts,
// or a *question.Set. cfg is validated first.
func New(ctx context.Context, questions any, cfg config.Config, opts ...Option) (*Inquiry, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	maxFileSize, err := cfg.MaxFileSizeBytes()
	if err != nil {
		return nil, err
	}

	set, ok := questions.(*question.Set)
	if !ok {
		set, err = question.Normalize(questions)
		if err != nil {
			return nil, err
		}
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}

	p := o.provider
	if p == nil {
		p, err = NewProvider(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	usage := &usageObserver{}
	var obs llm.Observer = usage
	if o.observer != nil {
		obs = llm.NewMultiObserver(usage, o.observer)
	}
	p = llm.WithObserver(p, obs)
	p = llm.WithBreaker(p, llm.BreakerSettings{
		Threshold: uint32(cfg.BreakerThreshold),
		Logger:    logger,
	})

	limiter := worker.NewLimiter(cfg.RequestsPerMinute)
	processor, err := worker.NewProcessor(worker.Config{
		Workers:   cfg.Workers,
		BatchSize: cfg.BatchSize,
		Limiter:   limiter,
		Timeout:   cfg.Timeout,
		Progress:  o.progress,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	reader := o.reader
	if reader == nil {
		reader = document.NewReader(document.WithLogger(logger))
	}

	logger.Info("loaded questions", "count", set.Len(), "provider", p.Name(), "model", p.Model())
	return &Inquiry{
		config:   cfg,
		logger:   logger,
		set:      set,
		provider: p,
		usage:    usage,
		schemas:  schema.NewCache(cfg.SchemaCacheTTL),
		inferrer: inference.New(p,
			inference.WithMaxTokens(cfg.MaxTokens),
			inference.WithLogger(logger)),
		extractor: extractor.New(p,
			extractor.WithMaxRetries(cfg.MaxRetries),
			extractor.WithBaseDelay(cfg.RetryBaseDelay),
			extractor.WithTemperature(cfg.Temperature),
			extractor.WithMaxTokens(cfg.MaxTokens),
			extractor.WithStrictMode(cfg.StrictSchema),
			extractor.WithLogger(logger)),
		reader:      reader,
		processor:   processor,
		maxFileSize: maxFileSize,
	}, nil
}

// FromFile creates an Inquiry from a questions file.
func FromFile(ctx context.Context, path string, cfg config.Config, opts ...Option) (*Inquiry, error) {
	set, err := question.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return New(ctx, set, cfg, opts...)
}

// NewProvider builds the configured provider. Without a configured model the
// provider's default is used; providers without one are asked for their
// models, falling back to llm.FallbackModel.
func NewProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) (llm.Provider, error) {
	pc := cfg.ProviderConfig()
	if pc.Model == "" {
		pc.Model = llm.DefaultModels[cfg.Provider]
	}
	p, err := llm.NewProvider(cfg.Provider, pc)
	if err != nil {
		return nil, err
	}
	if pc.Model != "" {
		return p, nil
	}

	pc.Model = llm.ResolveModel(ctx, p, llm.FallbackModel, logger)
	return llm.NewProvider(cfg.Provider, pc)
}

// Questions returns the question set. Inferred types are visible once
// InferTypes or an extraction has run.
func (i *Inquiry) Questions() *question.Set { return i.set }

// Provider returns the provider used for every call.
func (i *Inquiry) Provider() llm.Provider { return i.provider }

// Usage returns the provider calls and tokens spent so far.
func (i *Inquiry) Usage() Usage { return i.usage.snapshot() }

// InferTypes infers the types of questions that did not declare one and
// returns the suggestions. It runs at most once per Inquiry, regardless of
// the infer_types setting.
func (i *Inquiry) InferTypes(ctx context.Context) map[string]inference.Suggestion {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inferLocked(ctx)
}

func (i *Inquiry) inferLocked(ctx context.Context) map[string]inference.Suggestion {
	if i.inferred {
		return nil
	}
	i.inferred = true
	if len(i.set.Pending()) == 0 {
		return nil
	}
	return i.inferrer.Apply(ctx, i.set)
}

// compiledSchema infers pending types when enabled, then compiles the set.
func (i *Inquiry) compiledSchema(ctx context.Context) (*schema.Schema, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.config.InferTypes {
		i.inferLocked(ctx)
	}
	return i.schemas.Compile(i.set)
}

// ProcessText extracts answers from text. meta is appended to the record.
func (i *Inquiry) ProcessText(ctx context.Context, text string, meta record.Metadata) (*record.Record, error) {
	sch, err := i.compiledSchema(ctx)
	if err != nil {
		return nil, err
	}
	return i.extract(ctx, sch, text, meta)
}

func (i *Inquiry) extract(ctx context.Context, sch *schema.Schema, text string, meta record.Metadata) (*record.Record, error) {
	prompt := extractor.BuildPrompt(i.set, text)
	return i.extractor.Extract(ctx, sch, prompt, meta)
}

// ProcessDocument validates and reads a document and extracts answers from
// it. The record carries _document_path and _document_name.
func (i *Inquiry) ProcessDocument(ctx context.Context, path string) (*record.Record, error) {
	sch, err := i.compiledSchema(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := i.processDocument(ctx, sch, path)
	if err != nil {
		return nil, fmt.Errorf("failed to process document %s: %w", path, err)
	}
	return rec, nil
}

func (i *Inquiry) processDocument(ctx context.Context, sch *schema.Schema, path string) (*record.Record, error) {
	i.logger.Info("processing document", "path", path)
	if err := document.Validate(path, i.maxFileSize, i.config.SupportedExtensions); err != nil {
		return nil, err
	}
	text, err := i.reader.Extract(ctx, path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		i.logger.Warn("no text extracted from document", "path", path)
		return nil, ErrNoText
	}
	i.logger.Debug("extracted text", "path", path, "chars", len(text))

	meta := record.NewMetadata(
		record.KeyDocumentPath, path,
		record.KeyDocumentName, filepath.Base(path),
	)
	rec, err := i.extract(ctx, sch, text, meta)
	if err != nil {
		return nil, err
	}
	i.logger.Info("processed document", "path", path)
	return rec, nil
}

// ProcessMany extracts from every unit concurrently. Results keep input
// order; units that fail are logged and left out.
func (i *Inquiry) ProcessMany(ctx context.Context, units []Unit) ([]*record.Record, error) {
	sch, err := i.compiledSchema(ctx)
	if err != nil {
		return nil, err
	}
	return worker.Process(ctx, i.processor, units, func(ctx context.Context, u Unit) (*record.Record, error) {
		return i.extract(ctx, sch, u.Text, u.Meta)
	}), nil
}

// ProcessDocuments processes documents concurrently. Results keep input
// order; documents that fail are logged and left out.
func (i *Inquiry) ProcessDocuments(ctx context.Context, paths []string) ([]*record.Record, error) {
	sch, err := i.compiledSchema(ctx)
	if err != nil {
		return nil, err
	}
	return worker.Process(ctx, i.processor, paths, func(ctx context.Context, path string) (*record.Record, error) {
		return i.processDocument(ctx, sch, path)
	}), nil
}

// ProcessDirectory processes the supported files directly inside dir.
func (i *Inquiry) ProcessDirectory(ctx context.Context, dir string) ([]*record.Record, error) {
	paths, err := document.ListDirectory(dir, i.config.SupportedExtensions)
	if err != nil {
		return nil, err
	}
	i.logger.Info("processing directory", "path", dir, "documents", len(paths))
	return i.ProcessDocuments(ctx, paths)
}

// Process handles a file or a directory. A single file fails loudly; a
// directory returns whatever succeeded.
func (i *Inquiry) Process(ctx context.Context, path string) ([]*record.Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", document.ErrNotFound, path)
		}
		return nil, err
	}
	if info.IsDir() {
		return i.ProcessDirectory(ctx, path)
	}
	rec, err := i.ProcessDocument(ctx, path)
	if err != nil {
		return nil, err
	}
	return []*record.Record{rec}, nil
}
