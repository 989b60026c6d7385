package question

import (
	"errors"
	"strings"
	"testing"

	"github.com/travis4dams/metaminer/pkg/typespec"
)

func TestNormalize_String(t *testing.T) {
	set, err := Normalize("What is the main topic?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Len() != 1 {
		t.Fatalf("expected 1 question, got %d", set.Len())
	}
	q, ok := set.Get(DefaultKey)
	if !ok {
		t.Fatal("expected default key")
	}
	if q.ExplicitType {
		t.Error("string input must not mark the type explicit")
	}
	if !q.Type.Equal(typespec.String) {
		t.Errorf("expected str, got %s", q.Type)
	}
}

func TestNormalize_StringList(t *testing.T) {
	set, err := Normalize([]string{"What is the title?", "Who is the author?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := set.Names()
	want := []string{"question_1", "question_2"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("name %d: expected %q, got %q", i, want[i], names[i])
		}
	}
	if len(set.Pending()) != 2 {
		t.Errorf("expected 2 pending questions, got %d", len(set.Pending()))
	}
}

func TestNormalize_MappingList(t *testing.T) {
	input := []any{
		map[string]any{"question": "What is the title?", "type": "str", "output_name": "title"},
		map[string]any{"question": "How many pages?", "type": "int"},
		"Who wrote it?",
	}

	set, err := Normalize(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		key      string
		explicit bool
	}{
		{"title", "question_1", true},
		{"question_2", "question_2", true},
		{"question_3", "question_3", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, ok := set.Get(tt.name)
			if !ok {
				t.Fatalf("missing %q", tt.name)
			}
			if q.Key != tt.key {
				t.Errorf("expected key %q, got %q", tt.key, q.Key)
			}
			if q.ExplicitType != tt.explicit {
				t.Errorf("expected explicit=%v, got %v", tt.explicit, q.ExplicitType)
			}
		})
	}
}

func TestNormalize_Mapping(t *testing.T) {
	input := map[string]any{
		"title":  map[string]any{"question": "What is the title?", "type": "str"},
		"author": map[string]any{"question": "Who is the author?", "output_name": "writer"},
	}
	set, err := Normalize(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.Len() != 2 {
		t.Fatalf("expected 2 questions, got %d", set.Len())
	}
	q, ok := set.Get("writer")
	if !ok {
		t.Fatal("expected output name writer")
	}
	if q.Key != "author" {
		t.Errorf("expected key author, got %q", q.Key)
	}
	if q.ExplicitType {
		t.Error("author has no declared type")
	}
	title, _ := set.Get("title")
	if !title.ExplicitType {
		t.Error("explicitly declared str must be marked explicit")
	}
}

func TestNormalize_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantRef string
	}{
		{"missing question key", []any{map[string]any{"type": "str"}}, "#1"},
		{"bad element", []any{42}, "#1"},
		{"bad mapping value", map[string]any{"title": "What?"}, `"title"`},
		{"invalid type", map[string]any{"x": map[string]any{"question": "Q?", "type": "varchar"}}, `"x"`},
		{"empty text", []string{"  "}, `"question_1"`},
		{"unsupported input", 3.14, ""},
		{"nil input", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
			if tt.wantRef != "" && !strings.Contains(err.Error(), tt.wantRef) {
				t.Errorf("expected error to name %s, got %q", tt.wantRef, err.Error())
			}
		})
	}
}

func TestNormalize_InvalidTypeWrapsParseError(t *testing.T) {
	_, err := Normalize(map[string]any{"x": map[string]any{"question": "Q?", "type": "list(varchar)"}})
	if !errors.Is(err, typespec.ErrInvalidType) {
		t.Errorf("expected typespec.ErrInvalidType in chain, got %v", err)
	}
}

func TestNormalize_DuplicateOutputName(t *testing.T) {
	_, err := Normalize([]any{
		map[string]any{"question": "A?", "output_name": "x"},
		map[string]any{"question": "B?", "output_name": "x"},
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("expected duplicate error, got %v", err)
	}
}

func TestNormalize_DefaultOnArrayRejected(t *testing.T) {
	_, err := Normalize(map[string]any{
		"tags": map[string]any{"question": "Tags?", "type": "list(str)", "default": "a"},
	})
	if !errors.Is(err, ErrDefaultOnArray) {
		t.Errorf("expected ErrDefaultOnArray, got %v", err)
	}
}

func TestSet_SetTypeRespectsExplicit(t *testing.T) {
	set, err := Normalize([]any{
		map[string]any{"question": "Title?", "type": "str", "output_name": "title"},
		map[string]any{"question": "When?", "output_name": "when"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if set.SetType("title", typespec.Scalar(typespec.KindDate)) {
		t.Error("explicit types must not be overwritten")
	}
	if !set.SetType("when", typespec.Scalar(typespec.KindDate)) {
		t.Error("expected inferred type to be applied")
	}
	q, _ := set.Get("when")
	if q.Type.Kind() != typespec.KindDate {
		t.Errorf("expected date, got %s", q.Type)
	}
	if set.SetType("missing", typespec.String) {
		t.Error("unknown names must be rejected")
	}
}

func TestSet_Validate(t *testing.T) {
	var empty *Set
	if err := empty.Validate(); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid for nil set, got %v", err)
	}

	set, _ := Normalize("Title?")
	if err := set.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFromEntries_PreservesOrder(t *testing.T) {
	set, err := FromEntries([]Entry{
		{Key: "zeta", Question: "Z?"},
		{Key: "alpha", Question: "A?"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := set.Names()
	if names[0] != "zeta" || names[1] != "alpha" {
		t.Errorf("expected insertion order, got %v", names)
	}
}
