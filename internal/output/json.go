package output

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/travis4dams/metaminer/pkg/record"
)

// JSONWriter writes records as one JSON array.
type JSONWriter struct {
	w      *bufio.Writer
	pretty bool
	indent string
	items  []*record.Record
	done   bool
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string) *JSONWriter {
	return &JSONWriter{
		w:      bufio.NewWriter(w),
		pretty: pretty,
		indent: indent,
		items:  make([]*record.Record, 0),
	}
}

// Write buffers a single record.
func (w *JSONWriter) Write(rec *record.Record) error {
	w.items = append(w.items, rec)
	w.done = false
	return nil
}

// WriteAll buffers multiple records.
func (w *JSONWriter) WriteAll(recs []*record.Record) error {
	w.items = append(w.items, recs...)
	w.done = false
	return nil
}

// Flush writes the buffered records as a JSON array. An empty writer
// produces "[]".
func (w *JSONWriter) Flush() error {
	var output []byte
	var err error
	if w.pretty {
		output, err = json.MarshalIndent(w.items, "", w.indent)
	} else {
		output, err = json.Marshal(w.items)
	}
	if err != nil {
		return err
	}

	if _, err := w.w.Write(output); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}
	w.items = w.items[:0]
	w.done = true
	return w.w.Flush()
}

// Close flushes anything not yet written.
func (w *JSONWriter) Close() error {
	if w.done {
		return nil
	}
	return w.Flush()
}

// JSONLWriter writes newline-delimited JSON (JSONL).
type JSONLWriter struct {
	w *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{
		w: bufio.NewWriter(w),
	}
}

// Write writes a single record as a JSON line.
func (w *JSONLWriter) Write(rec *record.Record) error {
	output, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	if _, err := w.w.Write(output); err != nil {
		return err
	}
	if _, err := w.w.WriteString("\n"); err != nil {
		return err
	}

	return w.w.Flush()
}

// WriteAll writes multiple records as JSON lines.
func (w *JSONLWriter) WriteAll(recs []*record.Record) error {
	for _, rec := range recs {
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the buffer.
func (w *JSONLWriter) Flush() error {
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONLWriter) Close() error {
	return w.Flush()
}
