package extractor

import (
	"strings"

	"github.com/travis4dams/metaminer/pkg/question"
)

// SystemPrompt is sent as the system message of every extraction call.
const SystemPrompt = `You are a document analysis assistant. Answer questions about a document with structured data.

Respond with ONLY a valid JSON object. No explanations.

Rules:
1. Use the exact field names you are given
2. Use null when the document does not contain the answer
3. Numbers: numeric value only (no units or currency symbols)
4. Dates: ISO 8601 (YYYY-MM-DD)`

// BuildPrompt renders the extraction prompt for a document. Questions appear
// in set order.
func BuildPrompt(set *question.Set, text string) string {
	var prompt strings.Builder

	prompt.WriteString("Please analyze the following document and extract the requested information.\n\n")
	prompt.WriteString("Document text:\n")
	prompt.WriteString(text)
	prompt.WriteString("\n\nPlease answer the following questions based on the document content:\n")
	writeQuestions(&prompt, set)
	prompt.WriteString("\nReturn your response as a JSON object with the exact field names specified above. ")
	prompt.WriteString("If information is not available in the document, use null for the field value.\n\n")
	prompt.WriteString("For enum fields, you must choose only from the specified valid options. ")
	prompt.WriteString("If the document contains similar but not exact matches, choose the closest valid option ")
	prompt.WriteString("or use null if no reasonable match exists.\n\n")
	prompt.WriteString("Example response format:\n")
	prompt.WriteString("{\n")
	prompt.WriteString("    \"field_name_1\": \"extracted_value_1\",\n")
	prompt.WriteString("    \"field_name_2\": \"extracted_value_2\",\n")
	prompt.WriteString("    \"field_name_3\": null\n")
	prompt.WriteString("}\n")

	return prompt.String()
}

func writeQuestions(sb *strings.Builder, set *question.Set) {
	for _, q := range set.Questions() {
		if !q.Type.IsEnum() {
			sb.WriteString("- " + q.OutputName + " (" + q.Type.String() + "): " + q.Text + "\n")
			continue
		}
		sb.WriteString("- " + q.OutputName + ": " + q.Text + "\n")
		options := "[" + strings.Join(q.Type.Values(), ", ") + "]"
		if q.Type.IsMulti() {
			sb.WriteString("  Select all that apply from: " + options + "\n")
		} else {
			sb.WriteString("  Choose one from: " + options + "\n")
		}
	}
}

// StripMarkdownCodeBlock removes markdown code block wrappers from JSON responses.
// Some models wrap their JSON output in ```json ... ``` blocks.
func StripMarkdownCodeBlock(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	} else {
		return s
	}

	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}
