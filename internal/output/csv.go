package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/travis4dams/metaminer/pkg/record"
)

// CSVWriter writes records as CSV with a header row. Records are buffered
// until Flush because the header is the union of every record's keys.
type CSVWriter struct {
	w     *csv.Writer
	items []*record.Record
	done  bool
}

// NewCSVWriter creates a CSV writer.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Write buffers a single record.
func (w *CSVWriter) Write(rec *record.Record) error {
	w.items = append(w.items, rec)
	w.done = false
	return nil
}

// WriteAll buffers multiple records.
func (w *CSVWriter) WriteAll(recs []*record.Record) error {
	w.items = append(w.items, recs...)
	w.done = false
	return nil
}

// Flush writes the header and one row per buffered record. Missing values
// and nulls are empty cells. Nothing is written without records.
func (w *CSVWriter) Flush() error {
	if len(w.items) > 0 {
		cols := columns(w.items)
		if err := w.w.Write(cols); err != nil {
			return err
		}
		row := make([]string, len(cols))
		for _, rec := range w.items {
			for i, c := range cols {
				v, _ := rec.Get(c)
				row[i] = cellString(v)
			}
			if err := w.w.Write(row); err != nil {
				return err
			}
		}
	}
	w.items = w.items[:0]
	w.done = true
	w.w.Flush()
	return w.w.Error()
}

// Close flushes anything not yet written.
func (w *CSVWriter) Close() error {
	if w.done {
		return nil
	}
	return w.Flush()
}

// cellString renders a value for a text cell. Lists are written as JSON
// arrays.
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case record.Date:
		return x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	case []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
