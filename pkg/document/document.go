// Package document extracts plain text from document files.
package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"

	"github.com/travis4dams/metaminer/internal/textenc"
)

var (
	// ErrNotFound is returned when the document path does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrUnsupportedFormat is returned for files no extractor handles.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrTooLarge is returned by Validate for files over the size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrNotAFile is returned for directories and other non-regular paths.
	ErrNotAFile = errors.New("path is not a file")
)

// ExtractError reports a failure to read text from a document.
type ExtractError struct {
	Path string
	Err  error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("failed to extract text from %s: %v", e.Path, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// SupportedExtensions returns the default list of document extensions.
func SupportedExtensions() []string {
	return []string{
		".pdf", ".docx", ".doc", ".odt", ".rtf", ".txt", ".md",
		".html", ".htm", ".epub", ".tex", ".xlsx", ".csv",
	}
}

type format int

const (
	formatUnknown format = iota
	formatText
	formatPDF
	formatHTML
	formatXLSX
	formatPandoc
)

var formatsByExt = map[string]format{
	".txt":  formatText,
	".md":   formatText,
	".csv":  formatText,
	".pdf":  formatPDF,
	".html": formatHTML,
	".htm":  formatHTML,
	".xlsx": formatXLSX,
	".docx": formatPandoc,
	".doc":  formatPandoc,
	".odt":  formatPandoc,
	".rtf":  formatPandoc,
	".epub": formatPandoc,
	".tex":  formatPandoc,
}

// Reader extracts document text.
type Reader struct {
	pandoc string
	logger *slog.Logger
}

// Option configures a Reader.
type Option func(*Reader)

// WithPandoc sets the pandoc binary (default: "pandoc" from PATH).
func WithPandoc(path string) Option {
	return func(r *Reader) { r.pandoc = path }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// NewReader creates a Reader.
func NewReader(opts ...Option) *Reader {
	r := &Reader{pandoc: "pandoc"}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	return r
}

var defaultReader = NewReader()

// Extract reads the text of the document at path with the default Reader.
func Extract(ctx context.Context, path string) (string, error) {
	return defaultReader.Extract(ctx, path)
}

// Extract reads the text of the document at path. The extractor is chosen by
// extension; files with an unknown extension are sniffed by content.
func (r *Reader) Extract(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", &ExtractError{Path: path, Err: err}
	}
	if info.IsDir() {
		return "", &ExtractError{Path: path, Err: ErrNotAFile}
	}

	f := formatsByExt[strings.ToLower(filepath.Ext(path))]
	if f == formatUnknown {
		f, err = sniff(path)
		if err != nil {
			return "", &ExtractError{Path: path, Err: err}
		}
	}

	var text string
	switch f {
	case formatText:
		text, err = textenc.ReadFile(path)
	case formatPDF:
		text, err = r.extractPDF(path)
	case formatHTML:
		text, err = extractHTMLFile(path)
	case formatXLSX:
		text, err = extractXLSX(path)
	case formatPandoc:
		text, err = r.extractPandoc(ctx, path)
	}
	if err != nil {
		return "", &ExtractError{Path: path, Err: err}
	}

	r.logger.Debug("extracted document text", "path", path, "chars", len(text))
	return text, nil
}

// sniff maps a file's detected MIME type to an extractor.
func sniff(path string) (format, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return formatUnknown, err
	}
	for mt := m; mt != nil; mt = mt.Parent() {
		switch {
		case mt.Is("application/pdf"):
			return formatPDF, nil
		case mt.Is("text/html"):
			return formatHTML, nil
		case mt.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"):
			return formatXLSX, nil
		case mt.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"),
			mt.Is("application/vnd.oasis.opendocument.text"),
			mt.Is("application/epub+zip"),
			mt.Is("text/rtf"):
			return formatPandoc, nil
		case mt.Is("text/plain"):
			return formatText, nil
		}
	}
	return formatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, m.String())
}

// Validate checks that path is a regular file no larger than maxBytes whose
// extension is in extensions. A zero maxBytes or empty extensions list skips
// that check.
func Validate(path string, maxBytes int64, extensions []string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotAFile, path)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return fmt.Errorf("%w: %s (maximum allowed: %s)", ErrTooLarge,
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(maxBytes)))
	}
	if len(extensions) > 0 {
		ext := strings.ToLower(filepath.Ext(path))
		if !slices.Contains(extensions, ext) {
			return fmt.Errorf("%w: %q (supported formats: %s)", ErrUnsupportedFormat, ext, strings.Join(extensions, ", "))
		}
	}
	return nil
}

// ListDirectory returns the files in dir whose extension is in extensions,
// sorted by path. Subdirectories are not descended into.
func ListDirectory(dir string, extensions []string) ([]string, error) {
	if len(extensions) == 0 {
		extensions = SupportedExtensions()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if slices.Contains(extensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}
