// Package schema compiles a question set into a validator that coerces raw
// LLM answers into typed, ordered records.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/travis4dams/metaminer/pkg/question"
	"github.com/travis4dams/metaminer/pkg/record"
)

var (
	// ErrDefaultOnArray is returned when a list type declares a default.
	ErrDefaultOnArray = question.ErrDefaultOnArray

	// ErrInvalidDate is wrapped by date and datetime parse failures.
	ErrInvalidDate = errors.New("unparsable date")

	// ErrTypeMismatch is wrapped when a value cannot be converted.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrInvalidDefault is wrapped when a declared default does not fit its type.
	ErrInvalidDefault = errors.New("invalid default")
)

// FieldError reports a value that could not be coerced for a field.
type FieldError struct {
	Field string
	Value any
	Err   error
}

func (e *FieldError) Error() string {
	if errors.Is(e.Err, ErrInvalidDate) {
		return fmt.Sprintf("could not parse date %q for field %s", fmt.Sprint(e.Value), e.Field)
	}
	return fmt.Sprintf("invalid value %v for field %s: %v", e.Value, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// ShapeError reports a response whose top level is not an object.
type ShapeError struct {
	Got string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("expected a JSON object, got %s", e.Got)
}

// Schema is a compiled, read-only view of a question set. It is safe for
// concurrent use.
type Schema struct {
	fields      []Field
	fingerprint string
}

// Compile builds a Schema from a question set, validating defaults against
// the final field types.
func Compile(set *question.Set) (*Schema, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}

	s := &Schema{fingerprint: Fingerprint(set)}
	for _, q := range set.Questions() {
		f := Field{
			Name:        q.OutputName,
			Description: q.Text,
			Type:        q.Type,
			coerce:      newCoercer(q.OutputName, q.Type),
		}
		if q.HasDefault {
			d, err := compileDefault(f, q.Default)
			if err != nil {
				return nil, err
			}
			f.Default = d
			f.HasDefault = true
		}
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// compileDefault coerces a declared default. Anything the field would drop
// is rejected here.
func compileDefault(f Field, raw any) (any, error) {
	if f.Type.IsArray() {
		return nil, &FieldError{Field: f.Name, Value: raw, Err: ErrDefaultOnArray}
	}
	if f.Type.IsMulti() {
		if s, ok := raw.(string); ok {
			parts := strings.Split(s, ",")
			items := make([]any, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					items = append(items, p)
				}
			}
			raw = items
		}
		if items, ok := raw.([]any); ok {
			for _, it := range items {
				if s, ok := it.(string); !ok || !f.Type.Contains(s) {
					return nil, &FieldError{Field: f.Name, Value: it, Err: fmt.Errorf("%w: %v is not one of %v", ErrInvalidDefault, it, f.Type.Values())}
				}
			}
		}
	}

	res, err := f.Coerce(raw)
	if err != nil {
		var fe *FieldError
		if errors.As(err, &fe) {
			fe.Err = fmt.Errorf("%w: %w", ErrInvalidDefault, fe.Err)
			return nil, fe
		}
		return nil, err
	}
	if res.Dropped || res.Value == nil {
		return nil, &FieldError{Field: f.Name, Value: raw, Err: fmt.Errorf("%w: must be one of %v", ErrInvalidDefault, f.Type.Values())}
	}
	return res.Value, nil
}

// Fields returns the compiled fields in question order.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Names returns the field names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Fingerprint identifies the compiled content.
func (s *Schema) Fingerprint() string { return s.fingerprint }

// Validate coerces a decoded JSON value into a record holding exactly the
// schema fields, in order. Keys the schema does not know are ignored.
func (s *Schema) Validate(raw any) (*record.Record, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, &ShapeError{Got: jsonKind(raw)}
	}

	rec := record.New()
	for _, f := range s.fields {
		v, present := m[f.Name]
		out, err := f.resolve(v, present)
		if err != nil {
			return nil, err
		}
		rec.Set(f.Name, out)
	}
	return rec, nil
}

// Fingerprint hashes the parts of a question set that affect compilation.
func Fingerprint(set *question.Set) string {
	h := sha256.New()
	for _, q := range set.Questions() {
		def := ""
		if q.HasDefault {
			def = fmt.Sprintf("%#v", q.Default)
		}
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1f%s\x1e", q.OutputName, q.Text, q.Type.String(), def)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
