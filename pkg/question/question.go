// Package question normalizes user-supplied questions into an ordered,
// validated question set.
package question

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/travis4dams/metaminer/pkg/typespec"
)

// DefaultKey is the field key used when the input is a single string.
const DefaultKey = "default"

var (
	// ErrInvalid is wrapped by every normalization failure.
	ErrInvalid = errors.New("invalid questions")

	// ErrDefaultOnArray reports a default value declared for a list type.
	ErrDefaultOnArray = errors.New("default values are not supported for list types")
)

// Error identifies the question element that failed to normalize.
type Error struct {
	Ref string // key or element position
	Msg string
	Err error
}

func (e *Error) Error() string {
	msg := "question " + e.Ref + ": " + e.Msg
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalid, e.Err}
	}
	return []error{ErrInvalid}
}

// Question is one normalized question.
type Question struct {
	Key          string
	Text         string
	Type         typespec.Spec
	OutputName   string
	Default      any
	HasDefault   bool
	ExplicitType bool
}

// Entry is the declarative form of a question, as found in mappings and
// question files. An empty Type means the type was not declared.
type Entry struct {
	Key        string `yaml:"-" json:"-"`
	Question   string `yaml:"question" json:"question"`
	Type       string `yaml:"type,omitempty" json:"type,omitempty"`
	OutputName string `yaml:"output_name,omitempty" json:"output_name,omitempty"`
	Default    any    `yaml:"default,omitempty" json:"default,omitempty"`

	// lenient parses Type with typespec.ParseLenient instead of Parse.
	lenient bool
}

// Set is an insertion-ordered collection of questions keyed by output name.
type Set struct {
	order  []string
	byName map[string]*Question
}

func newSet() *Set {
	return &Set{byName: make(map[string]*Question)}
}

func (s *Set) add(q *Question, ref string) error {
	if _, dup := s.byName[q.OutputName]; dup {
		return &Error{Ref: ref, Msg: fmt.Sprintf("duplicate output name %q", q.OutputName)}
	}
	s.order = append(s.order, q.OutputName)
	s.byName[q.OutputName] = q
	return nil
}

// Len returns the number of questions.
func (s *Set) Len() int { return len(s.order) }

// Names returns the output names in order.
func (s *Set) Names() []string { return append([]string(nil), s.order...) }

// Get returns a copy of the question with the given output name.
func (s *Set) Get(name string) (Question, bool) {
	q, ok := s.byName[name]
	if !ok {
		return Question{}, false
	}
	return *q, true
}

// Questions returns copies of all questions in order.
func (s *Set) Questions() []Question {
	out := make([]Question, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, *s.byName[name])
	}
	return out
}

// Pending returns the questions whose type was not declared.
func (s *Set) Pending() []Question {
	var out []Question
	for _, name := range s.order {
		if q := s.byName[name]; !q.ExplicitType {
			out = append(out, *q)
		}
	}
	return out
}

// SetType replaces the type of a question whose type was not declared.
// It reports false when the question is unknown or its type is explicit.
func (s *Set) SetType(name string, spec typespec.Spec) bool {
	q, ok := s.byName[name]
	if !ok || q.ExplicitType {
		return false
	}
	q.Type = spec
	return true
}

// Validate checks the set is usable for extraction.
func (s *Set) Validate() error {
	if s == nil || len(s.order) == 0 {
		return fmt.Errorf("%w: no questions defined", ErrInvalid)
	}
	for _, name := range s.order {
		q := s.byName[name]
		if strings.TrimSpace(q.Text) == "" {
			return &Error{Ref: quote(name), Msg: "question text is empty"}
		}
		if q.HasDefault && q.Type.IsArray() {
			return &Error{Ref: quote(name), Msg: "invalid default", Err: ErrDefaultOnArray}
		}
	}
	return nil
}

// Normalize converts loosely-shaped input into a Set. Accepted shapes are a
// single string, a slice of strings, a slice of mappings (or a mix), and a
// mapping of key to mapping. Plain Go maps carry no order, so their entries
// are normalized in sorted key order.
func Normalize(input any) (*Set, error) {
	switch v := input.(type) {
	case string:
		return FromEntries([]Entry{{Key: DefaultKey, Question: v}})
	case []string:
		entries := make([]Entry, len(v))
		for i, text := range v {
			entries[i] = Entry{Key: generatedKey(i), Question: text}
		}
		return FromEntries(entries)
	case []Entry:
		return FromEntries(v)
	case []map[string]any:
		items := make([]any, len(v))
		for i, m := range v {
			items[i] = m
		}
		return Normalize(items)
	case []any:
		entries := make([]Entry, 0, len(v))
		for i, item := range v {
			ref := fmt.Sprintf("#%d", i+1)
			switch it := item.(type) {
			case string:
				entries = append(entries, Entry{Key: generatedKey(i), Question: it})
			case map[string]any:
				e, err := entryFromMap(ref, it)
				if err != nil {
					return nil, err
				}
				e.Key = generatedKey(i)
				entries = append(entries, e)
			default:
				return nil, &Error{Ref: ref, Msg: fmt.Sprintf("list elements must be strings or mappings, got %T", item)}
			}
		}
		return FromEntries(entries)
	case map[string]map[string]any:
		generic := make(map[string]any, len(v))
		for k, m := range v {
			generic[k] = m
		}
		return Normalize(generic)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]Entry, 0, len(keys))
		for _, k := range keys {
			m, ok := v[k].(map[string]any)
			if !ok {
				return nil, &Error{Ref: quote(k), Msg: fmt.Sprintf("value must be a mapping, got %T", v[k])}
			}
			e, err := entryFromMap(quote(k), m)
			if err != nil {
				return nil, err
			}
			e.Key = k
			entries = append(entries, e)
		}
		return FromEntries(entries)
	case nil:
		return nil, fmt.Errorf("%w: no questions given", ErrInvalid)
	default:
		return nil, fmt.Errorf("%w: unsupported input type %T", ErrInvalid, input)
	}
}

// FromEntries builds a Set from declarative entries, in order. Entries
// without a key get question_N where N is their 1-based position.
func FromEntries(entries []Entry) (*Set, error) {
	set := newSet()
	for i, e := range entries {
		key := e.Key
		if key == "" {
			key = generatedKey(i)
		}
		ref := quote(key)

		text := strings.TrimSpace(e.Question)
		if text == "" {
			return nil, &Error{Ref: ref, Msg: "question text is empty"}
		}

		q := &Question{
			Key:        key,
			Text:       text,
			Type:       typespec.String,
			OutputName: e.OutputName,
		}
		if q.OutputName == "" {
			q.OutputName = key
		}

		if strings.TrimSpace(e.Type) != "" {
			if e.lenient {
				q.Type = typespec.ParseLenient(e.Type)
			} else {
				spec, err := typespec.Parse(e.Type)
				if err != nil {
					return nil, &Error{Ref: ref, Msg: "invalid type", Err: err}
				}
				q.Type = spec
			}
			q.ExplicitType = true
		}

		if e.Default != nil {
			if q.ExplicitType && q.Type.IsArray() {
				return nil, &Error{Ref: ref, Msg: "invalid default", Err: ErrDefaultOnArray}
			}
			q.Default = e.Default
			q.HasDefault = true
		}

		if err := set.add(q, ref); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// entryFromMap reads the recognised keys of a question mapping.
func entryFromMap(ref string, m map[string]any) (Entry, error) {
	raw, ok := m["question"]
	if !ok {
		return Entry{}, &Error{Ref: ref, Msg: `mapping must contain a "question" key`}
	}
	text, ok := raw.(string)
	if !ok {
		return Entry{}, &Error{Ref: ref, Msg: fmt.Sprintf("question text must be a string, got %T", raw)}
	}

	e := Entry{Question: text, Default: m["default"]}

	if t, present := m["type"]; present {
		s, ok := t.(string)
		if !ok {
			return Entry{}, &Error{Ref: ref, Msg: fmt.Sprintf("type must be a string, got %T", t)}
		}
		if strings.TrimSpace(s) == "" {
			return Entry{}, &Error{Ref: ref, Msg: "invalid type", Err: &typespec.ParseError{Input: s, Reason: "empty type"}}
		}
		e.Type = s
	}

	if o, present := m["output_name"]; present && o != nil {
		s, ok := o.(string)
		if !ok {
			return Entry{}, &Error{Ref: ref, Msg: fmt.Sprintf("output_name must be a string, got %T", o)}
		}
		e.OutputName = strings.TrimSpace(s)
	}
	return e, nil
}

func generatedKey(i int) string {
	return fmt.Sprintf("question_%d", i+1)
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
