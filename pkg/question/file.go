package question

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/travis4dams/metaminer/internal/textenc"
)

// ErrUnsupportedFormat is returned for question files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported questions file format")

// Header names recognised in CSV question files, compared case-insensitively.
var (
	questionHeaders = []string{"question", "q", "text"}
	nameHeaders     = []string{"field_name", "field", "name", "output_name"}
	typeHeaders     = []string{"data_type", "type", "dtype"}
	defaultHeaders  = []string{"default", "default_value"}
)

// LoadFile parses a questions file. Text files hold one question per line
// (blank lines and lines starting with # are skipped). CSV files have a
// header row naming the question, field name, type and default columns.
// YAML and JSON files hold a mapping of key to question mapping (or to the
// bare question text), or a list.
func LoadFile(path string) (*Set, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("questions file not found: %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("questions path is a directory: %s", path)
	}

	text, err := textenc.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questions file %s: %w", path, err)
	}

	var set *Set
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".txt":
		set, err = ParseText(text)
	case ".csv":
		set, err = ParseCSV(text)
	case ".yaml", ".yml", ".json":
		set, err = ParseYAML([]byte(text))
	default:
		return nil, fmt.Errorf("%w: %q (use .txt, .csv, .yaml or .json)", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse questions file %s: %w", path, err)
	}
	return set, nil
}

// ParseText reads one question per line. Keys are question_<line number>.
func ParseText(text string) (*Set, error) {
	var entries []Entry
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, Entry{Key: generatedKey(i), Question: line})
	}
	return FromEntries(entries)
}

// ParseCSV reads a CSV question table. The delimiter is sniffed from the
// first lines. Declared types are parsed leniently: an unknown type becomes
// str rather than an error.
func ParseCSV(text string) (*Set, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: CSV file is empty", ErrInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	qCol := findColumn(header, questionHeaders)
	nameCol := findColumn(header, nameHeaders)
	typeCol := findColumn(header, typeHeaders)
	defCol := findColumn(header, defaultHeaders)

	var entries []Entry
	for row := 1; ; row++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row %d: %w", row, err)
		}
		if blankRow(rec) {
			continue
		}

		q := cell(rec, qCol)
		if qCol < 0 {
			q = cell(rec, 0)
		}
		if q == "" {
			continue
		}

		e := Entry{
			Key:        cell(rec, nameCol),
			Question:   q,
			Type:       cell(rec, typeCol),
			OutputName: cell(rec, nameCol),
			lenient:    true,
		}
		if e.Key == "" {
			e.Key = generatedKey(row - 1)
		}
		if d := cell(rec, defCol); d != "" {
			e.Default = d
		}
		entries = append(entries, e)
	}
	return FromEntries(entries)
}

// ParseYAML reads declarative questions from YAML or JSON, keeping the
// document order of mapping keys. Types are validated strictly.
func ParseYAML(b []byte) (*Set, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: questions file is empty", ErrInvalid)
	}
	root := doc.Content[0]

	switch root.Kind {
	case yaml.MappingNode:
		entries := make([]Entry, 0, len(root.Content)/2)
		for i := 0; i+1 < len(root.Content); i += 2 {
			key := root.Content[i].Value
			if v := root.Content[i+1]; v.Kind == yaml.ScalarNode {
				entries = append(entries, Entry{Key: key, Question: v.Value})
				continue
			}
			var m map[string]any
			if err := root.Content[i+1].Decode(&m); err != nil {
				return nil, &Error{Ref: quote(key), Msg: "value must be a mapping", Err: err}
			}
			e, err := entryFromMap(quote(key), m)
			if err != nil {
				return nil, err
			}
			e.Key = key
			entries = append(entries, e)
		}
		return FromEntries(entries)
	default:
		var v any
		if err := root.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode questions: %w", err)
		}
		return Normalize(v)
	}
}

// sniffDelimiter picks the candidate that splits the first lines into the
// same, non-zero number of fields. Comma wins ties.
func sniffDelimiter(text string) rune {
	var sample []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			sample = append(sample, line)
		}
		if len(sample) == 5 {
			break
		}
	}
	if len(sample) == 0 {
		return ','
	}

	best, bestScore := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		first := countOutsideQuotes(sample[0], d)
		if first == 0 {
			continue
		}
		consistent := 0
		for _, line := range sample {
			if countOutsideQuotes(line, d) == first {
				consistent++
			}
		}
		score := consistent*100 + first
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	return best
}

func countOutsideQuotes(line string, d rune) int {
	n := 0
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == d && !inQuotes:
			n++
		}
	}
	return n
}

func findColumn(header []string, names []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}

func cell(rec []string, col int) string {
	if col < 0 || col >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[col])
}

func blankRow(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
