package output

import (
	"fmt"
	"io"
	"log/slog"
	"unicode/utf16"

	"github.com/xuri/excelize/v2"

	"github.com/travis4dams/metaminer/pkg/record"
)

// DefaultSheetName names the worksheet of xlsx output.
const DefaultSheetName = "Results"

// XLSXWriter writes records to a single worksheet. The workbook is built on
// Flush since it cannot be streamed.
type XLSXWriter struct {
	w      io.Writer
	sheet  string
	items  []*record.Record
	done   bool
	logger *slog.Logger
}

// NewXLSXWriter creates an xlsx writer.
func NewXLSXWriter(w io.Writer, sheet string) *XLSXWriter {
	if sheet == "" {
		sheet = DefaultSheetName
	}
	return &XLSXWriter{w: w, sheet: sheet, logger: slog.New(slog.DiscardHandler)}
}

// Write buffers a single record.
func (w *XLSXWriter) Write(rec *record.Record) error {
	w.items = append(w.items, rec)
	w.done = false
	return nil
}

// WriteAll buffers multiple records.
func (w *XLSXWriter) WriteAll(recs []*record.Record) error {
	w.items = append(w.items, recs...)
	w.done = false
	return nil
}

// Flush builds the workbook and writes it out. Numbers and booleans keep
// their cell types; everything else is written as text.
func (w *XLSXWriter) Flush() error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if index, _ := f.GetSheetIndex(w.sheet); index == -1 {
		if _, err := f.NewSheet(w.sheet); err != nil {
			return fmt.Errorf("xlsx sheet: %w", err)
		}
	}
	if w.sheet != "Sheet1" {
		_ = f.DeleteSheet("Sheet1")
	}
	activeIndex, _ := f.GetSheetIndex(w.sheet)
	f.SetActiveSheet(activeIndex)

	cols := columns(w.items)
	for i, h := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(w.sheet, cell, h); err != nil {
			return fmt.Errorf("xlsx cell %s: %w", cell, err)
		}
	}
	for r, rec := range w.items {
		for c, col := range cols {
			v, _ := rec.Get(col)
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			value := cellValue(v)
			if s, ok := value.(string); ok {
				if cut, truncated := truncateCell(s); truncated {
					w.logger.Warn("xlsx cell truncated", "cell", cell, "field", col, "limit", excelize.TotalCellChars)
					value = cut
				}
			}
			if err := f.SetCellValue(w.sheet, cell, value); err != nil {
				return fmt.Errorf("xlsx cell %s: %w", cell, err)
			}
		}
	}

	if err := f.Write(w.w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	w.items = w.items[:0]
	w.done = true
	return nil
}

// Close writes the workbook unless Flush already did.
func (w *XLSXWriter) Close() error {
	if w.done {
		return nil
	}
	return w.Flush()
}

func cellValue(v any) any {
	switch x := v.(type) {
	case bool, int, int64, float64:
		return x
	default:
		return cellString(v)
	}
}

// truncateCell cuts s to the number of UTF-16 code units a cell can hold.
func truncateCell(s string) (string, bool) {
	n := 0
	for i, r := range s {
		n += utf16.RuneLen(r)
		if n > excelize.TotalCellChars {
			return s[:i], true
		}
	}
	return s, false
}
