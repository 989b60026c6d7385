package schema

import (
	"github.com/travis4dams/metaminer/pkg/typespec"
)

// Field is one compiled output field.
type Field struct {
	Name        string
	Description string // the question text
	Type        typespec.Spec
	Default     any // already coerced to Type
	HasDefault  bool

	coerce Coercer
}

// Coerce converts a raw decoded value into the field's type. Values that a
// flexible type (enum, multi_enum) cannot use come back Dropped.
func (f Field) Coerce(raw any) (Result, error) {
	if raw == nil {
		return Result{}, nil
	}
	return f.coerce(raw)
}

// resolve applies the default for missing, null and dropped values.
func (f Field) resolve(raw any, present bool) (any, error) {
	if !present || raw == nil {
		return f.fallback(), nil
	}
	res, err := f.Coerce(raw)
	if err != nil {
		return nil, err
	}
	if res.Dropped || res.Value == nil {
		return f.fallback(), nil
	}
	return res.Value, nil
}

func (f Field) fallback() any {
	if f.HasDefault {
		return f.Default
	}
	return nil
}
