package inference

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// responseSchema checks the envelope of an inference answer. Entries are
// checked one by one against entrySchema so a single bad entry does not
// discard the rest.
var responseSchema = mustCompile("response.json", map[string]any{
	"type":     "object",
	"required": []string{"suggestions"},
	"properties": map[string]any{
		"suggestions": map[string]any{"type": "object"},
	},
})

var entrySchema = mustCompile("entry.json", entryJSONSchema())

func entryJSONSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"suggested_type", "reasoning"},
		"properties": map[string]any{
			"suggested_type": map[string]any{"type": "string", "minLength": 1},
			"reasoning":      map[string]any{"type": "string"},
			"alternatives": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	}
}

// requestSchema is sent for structured output. It names every question id
// so strict backends can honour it.
func requestSchema(ids []string) map[string]any {
	props := make(map[string]any, len(ids))
	for _, id := range ids {
		entry := entryJSONSchema()
		entry["required"] = []string{"suggested_type", "reasoning", "alternatives"}
		entry["additionalProperties"] = false
		delete(entry["properties"].(map[string]any)["suggested_type"].(map[string]any), "minLength")
		props[id] = entry
	}
	return map[string]any{
		"type":                 "object",
		"required":             []string{"suggestions"},
		"additionalProperties": false,
		"properties": map[string]any{
			"suggestions": map[string]any{
				"type":                 "object",
				"properties":           props,
				"required":             ids,
				"additionalProperties": false,
			},
		},
	}
}

func mustCompile(name string, schema map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(schema)
	if err != nil {
		panic(fmt.Sprintf("marshal %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("add %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}
