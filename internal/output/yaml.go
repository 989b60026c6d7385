package output

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/travis4dams/metaminer/pkg/record"
)

// YAMLWriter writes records as a YAML sequence.
type YAMLWriter struct {
	w     *bufio.Writer
	items []*record.Record
	done  bool
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{
		w:     bufio.NewWriter(w),
		items: make([]*record.Record, 0),
	}
}

// Write buffers a single record.
func (w *YAMLWriter) Write(rec *record.Record) error {
	w.items = append(w.items, rec)
	w.done = false
	return nil
}

// WriteAll buffers multiple records.
func (w *YAMLWriter) WriteAll(recs []*record.Record) error {
	w.items = append(w.items, recs...)
	w.done = false
	return nil
}

// Flush writes the buffered records as YAML.
func (w *YAMLWriter) Flush() error {
	encoder := yaml.NewEncoder(w.w)
	encoder.SetIndent(2)

	if err := encoder.Encode(w.items); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	w.items = w.items[:0]
	w.done = true
	return w.w.Flush()
}

// Close flushes anything not yet written.
func (w *YAMLWriter) Close() error {
	if w.done {
		return nil
	}
	return w.Flush()
}
