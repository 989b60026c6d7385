package typespec

import (
	"errors"
	"testing"
)

func TestParse_Scalars(t *testing.T) {
	tests := []struct {
		input string
		want  Kind
	}{
		{"str", KindString},
		{"string", KindString},
		{"TEXT", KindString},
		{"int", KindInteger},
		{"integer", KindInteger},
		{"number", KindInteger},
		{"float", KindFloat},
		{"decimal", KindFloat},
		{"bool", KindBoolean},
		{"Boolean", KindBoolean},
		{"date", KindDate},
		{" datetime ", KindDateTime},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			spec, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if spec.Form() != FormScalar {
				t.Errorf("expected scalar form, got %v", spec.Form())
			}
			if spec.Kind() != tt.want {
				t.Errorf("expected kind %v, got %v", tt.want, spec.Kind())
			}
		})
	}
}

func TestParse_Arrays(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"list(str)", "list(str)"},
		{"LIST(Integer)", "list(int)"},
		{"list( date )", "list(date)"},
		{"list (float)", "list(float)"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			spec, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !spec.IsArray() {
				t.Error("expected array spec")
			}
			if spec.String() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, spec.String())
			}
		})
	}
}

func TestParse_Enums(t *testing.T) {
	spec, err := Parse("enum( Low, Medium ,High)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !spec.IsEnum() || spec.IsMulti() {
		t.Errorf("expected single enum, got %s", spec)
	}
	want := []string{"Low", "Medium", "High"}
	got := spec.Values()
	if len(got) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	multi, err := Parse("MULTI_ENUM(finance,hr)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !multi.IsMulti() {
		t.Error("expected multi enum")
	}
	if multi.String() != "multi_enum(finance,hr)" {
		t.Errorf("unexpected canonical form %q", multi.String())
	}
}

func TestParse_Rejects(t *testing.T) {
	inputs := []string{
		"",
		"varchar",
		"list(varchar)",
		"list()",
		"enum()",
		"enum(a,,b)",
		"multi_enum( )",
		"enum(a, )",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidType) {
				t.Errorf("expected ErrInvalidType, got %v", err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Errorf("expected *ParseError, got %T", err)
			}
		})
	}
}

func TestParseLenient_FallsBackToString(t *testing.T) {
	for _, input := range []string{"varchar", "list(varchar)", "enum()", ""} {
		spec := ParseLenient(input)
		if !spec.Equal(String) {
			t.Errorf("%q: expected string fallback, got %s", input, spec)
		}
	}

	if got := ParseLenient("int"); got.Kind() != KindInteger {
		t.Errorf("expected int, got %s", got)
	}
}

func TestSpec_Contains(t *testing.T) {
	spec := MustParse("enum(dovish,neutral,hawkish)")
	if !spec.Contains("neutral") {
		t.Error("expected neutral to be a member")
	}
	if spec.Contains("Neutral") {
		t.Error("membership must be case-sensitive")
	}
}

func TestSpec_TextRoundTrip(t *testing.T) {
	spec := MustParse("list(datetime)")
	b, err := spec.MarshalText()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var back Spec
	if err := back.UnmarshalText(b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !back.Equal(spec) {
		t.Errorf("expected %s, got %s", spec, back)
	}
}

func TestSpec_IsTemporal(t *testing.T) {
	tests := map[string]bool{
		"date":           true,
		"list(datetime)": true,
		"str":            false,
		"enum(date)":     false,
	}
	for input, want := range tests {
		if got := MustParse(input).IsTemporal(); got != want {
			t.Errorf("%s: expected %v, got %v", input, want, got)
		}
	}
}
