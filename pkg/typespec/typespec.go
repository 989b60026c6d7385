// Package typespec parses the type vocabulary used to declare answer types
// for questions: scalars, list(T), enum(...) and multi_enum(...).
package typespec

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies a scalar type.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindDate
	KindDateTime
)

// String returns the canonical keyword for the kind.
func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "int"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "bool"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	default:
		return "str"
	}
}

// Form distinguishes the shape of a Spec.
type Form int

const (
	FormScalar Form = iota
	FormArray
	FormEnum
	FormMultiEnum
)

// Spec is a parsed type specification. The zero value is the string scalar.
type Spec struct {
	form   Form
	kind   Kind
	values []string
}

// ErrInvalidType is wrapped by every strict parse failure.
var ErrInvalidType = errors.New("invalid type")

// ParseError describes why a type string was rejected.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid type %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrInvalidType
}

// scalarSynonyms maps every accepted scalar keyword to its kind.
var scalarSynonyms = map[string]Kind{
	"str":      KindString,
	"string":   KindString,
	"text":     KindString,
	"int":      KindInteger,
	"integer":  KindInteger,
	"number":   KindInteger,
	"float":    KindFloat,
	"decimal":  KindFloat,
	"bool":     KindBoolean,
	"boolean":  KindBoolean,
	"date":     KindDate,
	"datetime": KindDateTime,
}

// String is the default type assigned to questions without a declared type.
var String = Spec{}

// Scalar returns a scalar spec of the given kind.
func Scalar(k Kind) Spec {
	return Spec{form: FormScalar, kind: k}
}

// Array returns list(k).
func Array(k Kind) Spec {
	return Spec{form: FormArray, kind: k}
}

// Enum returns enum(values...) or multi_enum(values...) when multi is set.
// Values are trimmed; an empty list or an empty value is rejected.
func Enum(multi bool, values ...string) (Spec, error) {
	form := FormEnum
	keyword := "enum"
	if multi {
		form = FormMultiEnum
		keyword = "multi_enum"
	}
	input := keyword + "(" + strings.Join(values, ",") + ")"
	if len(values) == 0 {
		return Spec{}, &ParseError{Input: input, Reason: "enum needs at least one value"}
	}
	cleaned := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			return Spec{}, &ParseError{Input: input, Reason: "enum values must not be empty"}
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		cleaned = append(cleaned, v)
	}
	return Spec{form: form, kind: KindString, values: cleaned}, nil
}

// Parse parses a type string strictly. Unknown keywords, unknown list bases
// and malformed enum value lists are rejected.
func Parse(s string) (Spec, error) {
	raw := s
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)

	if inner, ok := cutCall(s, lower, "list"); ok {
		base := strings.ToLower(strings.TrimSpace(inner))
		kind, known := scalarSynonyms[base]
		if !known {
			return Spec{}, &ParseError{Input: raw, Reason: fmt.Sprintf("unsupported list element type %q", base)}
		}
		return Array(kind), nil
	}
	if inner, ok := cutCall(s, lower, "multi_enum"); ok {
		return parseEnumValues(raw, inner, true)
	}
	if inner, ok := cutCall(s, lower, "enum"); ok {
		return parseEnumValues(raw, inner, false)
	}

	kind, known := scalarSynonyms[lower]
	if !known {
		return Spec{}, &ParseError{Input: raw, Reason: "unknown type"}
	}
	return Scalar(kind), nil
}

// ParseLenient parses like Parse but returns the string type for anything
// it cannot understand.
func ParseLenient(s string) Spec {
	spec, err := Parse(s)
	if err != nil {
		return String
	}
	return spec
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Spec {
	spec, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return spec
}

// Valid reports whether s parses strictly.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// cutCall matches keyword(...) case-insensitively, tolerating whitespace
// between the keyword and the parenthesis. The returned content keeps the
// original casing.
func cutCall(s, lower, keyword string) (string, bool) {
	if !strings.HasPrefix(lower, keyword) || !strings.HasSuffix(lower, ")") {
		return "", false
	}
	rest := strings.TrimLeft(s[len(keyword):], " \t")
	if !strings.HasPrefix(rest, "(") {
		return "", false
	}
	return rest[1 : len(rest)-1], true
}

func parseEnumValues(raw, inner string, multi bool) (Spec, error) {
	if strings.TrimSpace(inner) == "" {
		return Spec{}, &ParseError{Input: raw, Reason: "enum needs at least one value"}
	}
	parts := strings.Split(inner, ",")
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return Spec{}, &ParseError{Input: raw, Reason: "enum values must not be empty"}
		}
	}
	spec, err := Enum(multi, parts...)
	if err != nil {
		return Spec{}, &ParseError{Input: raw, Reason: err.(*ParseError).Reason}
	}
	return spec, nil
}

// Form returns the shape of the type.
func (s Spec) Form() Form { return s.form }

// Kind returns the scalar kind, or the element kind for arrays. Enums report
// KindString.
func (s Spec) Kind() Kind { return s.kind }

// Values returns a copy of the allowed enum values.
func (s Spec) Values() []string {
	if len(s.values) == 0 {
		return nil
	}
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// IsArray reports whether the type is list(T).
func (s Spec) IsArray() bool { return s.form == FormArray }

// IsEnum reports whether the type is enum or multi_enum.
func (s Spec) IsEnum() bool { return s.form == FormEnum || s.form == FormMultiEnum }

// IsMulti reports whether the type is multi_enum.
func (s Spec) IsMulti() bool { return s.form == FormMultiEnum }

// IsTemporal reports whether values are dates or datetimes (scalar or list).
func (s Spec) IsTemporal() bool {
	return (s.form == FormScalar || s.form == FormArray) && (s.kind == KindDate || s.kind == KindDateTime)
}

// Contains reports whether v is one of the enum values. Matching is exact.
func (s Spec) Contains(v string) bool {
	for _, allowed := range s.values {
		if allowed == v {
			return true
		}
	}
	return false
}

// Equal reports whether two specs describe the same type.
func (s Spec) Equal(o Spec) bool {
	if s.form != o.form || s.kind != o.kind || len(s.values) != len(o.values) {
		return false
	}
	for i := range s.values {
		if s.values[i] != o.values[i] {
			return false
		}
	}
	return true
}

// String renders the canonical type string.
func (s Spec) String() string {
	switch s.form {
	case FormArray:
		return "list(" + s.kind.String() + ")"
	case FormEnum:
		return "enum(" + strings.Join(s.values, ",") + ")"
	case FormMultiEnum:
		return "multi_enum(" + strings.Join(s.values, ",") + ")"
	default:
		return s.kind.String()
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Spec) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using strict parsing.
func (s *Spec) UnmarshalText(b []byte) error {
	spec, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = spec
	return nil
}

// Vocabulary lists the type strings offered to the model during inference.
func Vocabulary() []string {
	return []string{
		"str", "int", "float", "bool", "date", "datetime",
		"list(str)", "list(int)", "list(float)", "list(bool)", "list(date)", "list(datetime)",
		"enum(value1,value2,value3)",
		"multi_enum(value1,value2,value3)",
	}
}
