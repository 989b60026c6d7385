// Package output serialises extraction records.
package output

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/travis4dams/metaminer/pkg/record"
)

// Format represents output format types.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatXLSX  Format = "xlsx"
)

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatCSV, FormatJSON, FormatJSONL, FormatYAML, FormatXLSX}
}

// ParseFormat parses a format name. "yml" is accepted for YAML.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if f == "yml" {
		return FormatYAML, nil
	}
	for _, known := range Formats() {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported output format: %s", s)
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) (Format, bool) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", false
	}
	f, err := ParseFormat(ext)
	return f, err == nil
}

// Writer handles output serialization.
type Writer interface {
	// Write outputs a single record.
	Write(rec *record.Record) error

	// WriteAll outputs multiple records.
	WriteAll(recs []*record.Record) error

	// Flush ensures all data is written.
	Flush() error

	// Close releases resources.
	Close() error
}

// WriterOption configures a writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	pretty    bool
	indent    string
	sheetName string
	logger    *slog.Logger
}

// WithPretty enables pretty-printing.
func WithPretty(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.pretty = enabled
	}
}

// WithIndent sets the indentation string.
func WithIndent(indent string) WriterOption {
	return func(c *writerConfig) {
		c.indent = indent
	}
}

// WithSheetName sets the worksheet name of xlsx output.
func WithSheetName(name string) WriterOption {
	return func(c *writerConfig) {
		c.sheetName = name
	}
}

// WithLogger sets the logger for warnings raised while writing.
func WithLogger(l *slog.Logger) WriterOption {
	return func(c *writerConfig) {
		c.logger = l
	}
}

// NewWriter creates a writer for the specified format.
func NewWriter(w io.Writer, format Format, opts ...WriterOption) (Writer, error) {
	cfg := &writerConfig{
		pretty:    true,
		indent:    "  ",
		sheetName: DefaultSheetName,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch format {
	case FormatCSV:
		return NewCSVWriter(w), nil
	case FormatJSON:
		return NewJSONWriter(w, cfg.pretty, cfg.indent), nil
	case FormatJSONL:
		return NewJSONLWriter(w), nil
	case FormatYAML:
		return NewYAMLWriter(w), nil
	case FormatXLSX:
		xw := NewXLSXWriter(w, cfg.sheetName)
		if cfg.logger != nil {
			xw.logger = cfg.logger
		}
		return xw, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// columns returns the union of record keys in first-seen order.
func columns(recs []*record.Record) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range recs {
		for _, k := range r.Keys() {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}
