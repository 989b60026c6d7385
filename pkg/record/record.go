// Package record holds extraction results as ordered key/value records.
package record

import (
	"bytes"
	"encoding/json"
	"time"

	"gopkg.in/yaml.v3"
)

// Metadata keys injected for document extractions.
const (
	KeyDocumentPath = "_document_path"
	KeyDocumentName = "_document_name"
)

// Metadata is caller-supplied data merged into a record after the schema
// fields. Keys keep the order they were added in.
type Metadata struct {
	keys   []string
	values map[string]any
}

// NewMetadata builds metadata from alternating key/value pairs.
func NewMetadata(kv ...any) Metadata {
	var m Metadata
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		m.Set(key, kv[i+1])
	}
	return m
}

// MetadataFromMap builds metadata from a plain map. Keys are added in the
// iteration order of the map, which is unspecified.
func MetadataFromMap(in map[string]any) Metadata {
	var m Metadata
	for k, v := range in {
		m.Set(k, v)
	}
	return m
}

// Set adds or replaces a metadata value.
func (m *Metadata) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, exists := m.values[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Len returns the number of metadata keys.
func (m Metadata) Len() int { return len(m.keys) }

// Keys returns metadata keys in insertion order.
func (m Metadata) Keys() []string { return append([]string(nil), m.keys...) }

// Get returns a metadata value.
func (m Metadata) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Record is an ordered mapping of field name to value.
type Record struct {
	keys   []string
	values map[string]any
}

// New returns an empty record.
func New() *Record {
	return &Record{values: make(map[string]any)}
}

// Set stores a value, appending the key if it is new.
func (r *Record) Set(key string, value any) {
	if _, exists := r.values[key]; !exists {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the record keys in order.
func (r *Record) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Len returns the number of keys.
func (r *Record) Len() int { return len(r.keys) }

// Merge appends metadata after the existing fields. Metadata keys that
// collide with existing keys overwrite the value in place.
func (r *Record) Merge(meta Metadata) {
	for _, k := range meta.keys {
		r.Set(k, meta.values[k])
	}
}

// Map returns a plain copy of the record.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		out[k] = r.values[k]
	}
	return out
}

// MarshalJSON writes the record as a JSON object preserving key order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalYAML writes the record as a YAML mapping preserving key order.
func (r *Record) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range r.keys {
		var val yaml.Node
		if err := val.Encode(r.values[k]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			&val)
	}
	return node, nil
}

// Date is a calendar date without time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC on the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Time().Format(time.DateOnly)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YYYY-MM-DD input.
func (d *Date) UnmarshalText(b []byte) error {
	t, err := time.Parse(time.DateOnly, string(b))
	if err != nil {
		return err
	}
	*d = DateOf(t)
	return nil
}
