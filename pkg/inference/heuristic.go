package inference

import (
	"strings"

	"github.com/travis4dams/metaminer/pkg/typespec"
)

var (
	dateWords     = []string{"date", "when"}
	dateTimeWords = []string{"datetime", "time", "timestamp"}
	countWords    = []string{"how many", "count", "number", "quantity", "amount"}
	yesNoPhrases  = []string{"yes or no", "true or false", "is it", "are they", "does it", "did it", "is this", "are these"}
	categoryWords = []string{"priority", "level", "status", "type", "category"}
)

// Heuristic suggests a type from keywords in the question text. It is used
// when the model gives no usable answer.
func Heuristic(text string) Suggestion {
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, dateWords) && !strings.Contains(lower, "time"):
		return heuristic(typespec.Scalar(typespec.KindDate), "Contains date-related keywords",
			typespec.Scalar(typespec.KindString), typespec.Scalar(typespec.KindDateTime))
	case containsAny(lower, dateTimeWords):
		return heuristic(typespec.Scalar(typespec.KindDateTime), "Contains time-related keywords",
			typespec.Scalar(typespec.KindString), typespec.Scalar(typespec.KindDate))
	case containsAny(lower, countWords):
		return heuristic(typespec.Scalar(typespec.KindInteger), "Asks for quantity or count",
			typespec.Scalar(typespec.KindFloat), typespec.Scalar(typespec.KindString))
	case containsAny(lower, yesNoPhrases):
		return heuristic(typespec.Scalar(typespec.KindBoolean), "Appears to be yes/no question",
			typespec.Scalar(typespec.KindString))
	case containsAny(lower, categoryWords):
		return heuristic(typespec.MustParse("enum(low,medium,high)"), "Suggests categorical values",
			typespec.Scalar(typespec.KindString))
	default:
		return heuristic(typespec.Scalar(typespec.KindString), "Default text type",
			typespec.Scalar(typespec.KindInteger), typespec.Scalar(typespec.KindBoolean))
	}
}

func heuristic(t typespec.Spec, reasoning string, alternatives ...typespec.Spec) Suggestion {
	return Suggestion{Type: t, Reasoning: reasoning, Alternatives: alternatives, Heuristic: true}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
