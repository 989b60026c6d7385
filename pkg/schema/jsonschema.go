package schema

import (
	"github.com/travis4dams/metaminer/pkg/typespec"
)

// JSONSchema renders the schema for LLM structured output. The result is
// compatible with strict mode: every property is required, additional
// properties are forbidden and unknown answers are expressed as null.
func (s *Schema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.fields))
	required := make([]string, 0, len(s.fields))

	for _, f := range s.fields {
		properties[f.Name] = fieldToJSONSchema(f)
		required = append(required, f.Name)
	}

	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func fieldToJSONSchema(f Field) map[string]any {
	spec := f.Type
	var schema map[string]any

	switch spec.Form() {
	case typespec.FormEnum:
		values := make([]any, 0, len(spec.Values())+1)
		for _, v := range spec.Values() {
			values = append(values, v)
		}
		schema = map[string]any{
			"type": []any{"string", "null"},
			"enum": append(values, nil),
		}
	case typespec.FormMultiEnum:
		schema = map[string]any{
			"type": []any{"array", "null"},
			"items": map[string]any{
				"type": "string",
				"enum": spec.Values(),
			},
		}
	case typespec.FormArray:
		item := scalarJSONSchema(spec.Kind())
		item["type"] = []any{item["type"], "null"}
		schema = map[string]any{
			"type":  []any{"array", "null"},
			"items": item,
		}
	default:
		schema = scalarJSONSchema(spec.Kind())
		schema["type"] = []any{schema["type"], "null"}
	}

	if f.Description != "" {
		schema["description"] = f.Description
	}
	return schema
}

func scalarJSONSchema(kind typespec.Kind) map[string]any {
	switch kind {
	case typespec.KindInteger:
		return map[string]any{"type": "integer"}
	case typespec.KindFloat:
		return map[string]any{"type": "number"}
	case typespec.KindBoolean:
		return map[string]any{"type": "boolean"}
	case typespec.KindDate:
		return map[string]any{"type": "string", "format": "date"}
	case typespec.KindDateTime:
		return map[string]any{"type": "string", "format": "date-time"}
	default:
		return map[string]any{"type": "string"}
	}
}
