package document

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrNoTextLayer is wrapped by NoTextLayerError.
var ErrNoTextLayer = errors.New("pdf has no text layer")

// NoTextLayerError reports a PDF with pages but no extractable text, which
// usually means a scanned document that needs OCR.
type NoTextLayerError struct {
	Pages int
}

func (e *NoTextLayerError) Error() string {
	return fmt.Sprintf("%v (%d pages, scanned document?)", ErrNoTextLayer, e.Pages)
}

func (e *NoTextLayerError) Unwrap() error { return ErrNoTextLayer }

// extractPDF concatenates the plain text of every page.
func (r *Reader) extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("read page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	text := sb.String()
	if strings.TrimSpace(text) != "" {
		return text, nil
	}
	pages, err := PageCount(path)
	if err != nil {
		r.logger.Debug("pdf page count failed", "path", path, "error", err)
		return text, nil
	}
	if pages > 0 {
		return "", &NoTextLayerError{Pages: pages}
	}
	return text, nil
}

// PageCount returns the number of pages of a PDF file.
func PageCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	pageCount, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count for %s: %w", path, err)
	}
	return pageCount, nil
}
