package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	dps "github.com/markusmobius/go-dateparser"

	"github.com/travis4dams/metaminer/pkg/record"
	"github.com/travis4dams/metaminer/pkg/typespec"
)

// Result is the outcome of coercing one value. Dropped marks a value that a
// flexible type discarded; the field default (or null) replaces it.
type Result struct {
	Value   any
	Dropped bool
}

// Coercer converts a raw decoded value. It never receives nil.
type Coercer func(raw any) (Result, error)

func newCoercer(field string, spec typespec.Spec) Coercer {
	switch spec.Form() {
	case typespec.FormEnum:
		return enumCoercer(spec)
	case typespec.FormMultiEnum:
		return multiEnumCoercer(spec)
	case typespec.FormArray:
		return listCoercer(scalarCoercer(field, spec.Kind()))
	default:
		return scalarCoercer(field, spec.Kind())
	}
}

func scalarCoercer(field string, kind typespec.Kind) Coercer {
	var conv func(any) (any, error)
	switch kind {
	case typespec.KindInteger:
		conv = toInt
	case typespec.KindFloat:
		conv = toFloat
	case typespec.KindBoolean:
		conv = toBool
	case typespec.KindDate:
		conv = toDate
	case typespec.KindDateTime:
		conv = toDateTime
	default:
		conv = toString
	}

	return func(raw any) (Result, error) {
		// An empty answer to a non-string question means "no answer".
		if s, ok := raw.(string); ok && kind != typespec.KindString && strings.TrimSpace(s) == "" {
			return Result{}, nil
		}
		v, err := conv(raw)
		if err != nil {
			return Result{}, &FieldError{Field: field, Value: raw, Err: err}
		}
		return Result{Value: v}, nil
	}
}

// listCoercer coerces every element. Null elements are kept; a lone scalar
// becomes a one-element list.
func listCoercer(elem Coercer) Coercer {
	return func(raw any) (Result, error) {
		items, ok := asList(raw)
		if !ok {
			items = []any{raw}
		}
		out := make([]any, len(items))
		for i, it := range items {
			if it == nil {
				continue
			}
			res, err := elem(it)
			if err != nil {
				return Result{}, err
			}
			out[i] = res.Value
		}
		return Result{Value: out}, nil
	}
}

func enumCoercer(spec typespec.Spec) Coercer {
	return func(raw any) (Result, error) {
		s, err := toString(raw)
		if err != nil || !spec.Contains(s.(string)) {
			return Result{Dropped: true}, nil
		}
		return Result{Value: s}, nil
	}
}

func multiEnumCoercer(spec typespec.Spec) Coercer {
	return func(raw any) (Result, error) {
		items, ok := asList(raw)
		if !ok {
			return Result{Dropped: true}, nil
		}
		var out []string
		for _, it := range items {
			if s, ok := it.(string); ok && spec.Contains(s) {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return Result{}, nil
		}
		return Result{Value: out}, nil
	}
}

func asList(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func toString(raw any) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case json.Number:
		return v.String(), nil
	case bool:
		return strconv.FormatBool(v), nil
	case record.Date:
		return v.String(), nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	default:
		return nil, fmt.Errorf("%w: cannot use %T as str", ErrTypeMismatch, raw)
	}
}

func toInt(raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return integral(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrTypeMismatch, v)
		}
		return integral(f)
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrTypeMismatch, v)
		}
		return integral(f)
	default:
		return nil, fmt.Errorf("%w: cannot use %T as int", ErrTypeMismatch, raw)
	}
}

func integral(f float64) (any, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return nil, fmt.Errorf("%w: %v is not an integer", ErrTypeMismatch, f)
	}
	return int64(f), nil
}

func toFloat(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrTypeMismatch, v)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", ErrTypeMismatch, v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: cannot use %T as float", ErrTypeMismatch, raw)
	}
}

func toBool(raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
	case float64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case int:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case int64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	}
	return nil, fmt.Errorf("%w: cannot use %v as bool", ErrTypeMismatch, raw)
}

func toDate(raw any) (any, error) {
	switch v := raw.(type) {
	case record.Date:
		return v, nil
	case time.Time:
		return record.DateOf(v), nil
	case string:
		t, err := parseTime(v)
		if err != nil {
			return nil, err
		}
		return record.DateOf(t), nil
	default:
		return nil, fmt.Errorf("%w: cannot use %T as date", ErrInvalidDate, raw)
	}
}

func toDateTime(raw any) (any, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case record.Date:
		return v.Time(), nil
	case string:
		return parseTime(v)
	default:
		return nil, fmt.Errorf("%w: cannot use %T as datetime", ErrInvalidDate, raw)
	}
}

// fallbackDates needs day, month and year from the text itself. Partial
// inputs such as weekday names are rejected rather than filled in from the
// current date.
var fallbackDates = &dps.Configuration{StrictParsing: true}

// parseTime accepts ISO, numeric and written-out date forms. Natural
// language ("3 days ago", "le 12 mars 2015") is handled by the fallback
// parser, which only sees inputs containing a digit.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := dateparse.ParseAny(s); err == nil {
		return t, nil
	}
	if !strings.ContainsAny(s, "0123456789") {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	dt, err := dps.Parse(fallbackDates, s)
	if err != nil || dt.Time.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return dt.Time, nil
}
