package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Validate checks raw against s and returns a normalized copy: undeclared
// keys are dropped, null counts as absent and numbers become float64. On
// failure the returned error is a *ValidationError naming every offending field.
func Validate(s Schema, raw map[string]any) (map[string]any, error) {
	v := &validator{}
	out := v.object("", s.Fields, raw)
	if len(v.errs) > 0 {
		return nil, &ValidationError{Schema: s.Name, Fields: v.errs}
	}
	return out, nil
}

type validator struct {
	errs []FieldError
}

func (v *validator) fail(path, constraint, format string, args ...any) {
	v.errs = append(v.errs, FieldError{
		Path:       path,
		Constraint: constraint,
		Message:    path + " " + fmt.Sprintf(format, args...),
	})
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

func (v *validator) object(path string, fields []Field, raw map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		p := join(path, f.Name)
		val, ok := raw[f.Name]
		if !ok || val == nil {
			if f.Required {
				v.fail(p, ConstraintRequired, "is required")
			}
			continue
		}
		if norm, ok := v.value(p, f, val); ok {
			out[f.Name] = norm
		}
	}
	return out
}

func (v *validator) value(path string, f Field, val any) (any, bool) {
	switch f.Kind {
	case KindString:
		return v.str(path, f, val)
	case KindNumber, KindInteger:
		return v.number(path, f, val)
	case KindBoolean:
		b, ok := val.(bool)
		if !ok {
			v.fail(path, ConstraintType, "must be a boolean")
		}
		return b, ok
	case KindArray:
		return v.array(path, f, val)
	case KindObject:
		m, ok := val.(map[string]any)
		if !ok {
			v.fail(path, ConstraintType, "must be an object")
			return nil, false
		}
		before := len(v.errs)
		out := v.object(path, f.Fields, m)
		return out, len(v.errs) == before
	default:
		v.fail(path, ConstraintType, "has unsupported kind %q", f.Kind)
		return nil, false
	}
}

func (v *validator) str(path string, f Field, val any) (any, bool) {
	s, ok := val.(string)
	if !ok {
		v.fail(path, ConstraintType, "must be a string")
		return nil, false
	}
	before := len(v.errs)
	n := utf8.RuneCountInString(s)
	if f.NonBlank && strings.TrimSpace(s) == "" {
		v.fail(path, ConstraintBlank, "must not be empty")
	} else if f.MinLength != nil && n < *f.MinLength {
		if *f.MinLength == 1 {
			v.fail(path, ConstraintMinLength, "must not be empty")
		} else {
			v.fail(path, ConstraintMinLength, "must be at least %d characters", *f.MinLength)
		}
	}
	if f.MaxLength != nil && n > *f.MaxLength {
		v.fail(path, ConstraintMaxLength, "must be at most %d characters", *f.MaxLength)
	}
	if len(f.Enum) > 0 && !contains(f.Enum, s) {
		v.fail(path, ConstraintEnum, "must be one of [%s]", strings.Join(f.Enum, " "))
	}
	if f.Format == FormatDataURI {
		d, err := ParseDataURI(s)
		switch {
		case err != nil:
			v.fail(path, ConstraintFormat, "must be a data URI with a MIME type prefix")
		case f.MediaPrefix != "" && !strings.HasPrefix(d.MIMEType, f.MediaPrefix):
			v.fail(path, ConstraintFormat, "must have MIME type %s*", f.MediaPrefix)
		}
	}
	return s, len(v.errs) == before
}

func (v *validator) number(path string, f Field, val any) (any, bool) {
	n, ok := toFloat(val)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		if f.Kind == KindInteger {
			v.fail(path, ConstraintType, "must be an integer")
		} else {
			v.fail(path, ConstraintType, "must be a number")
		}
		return nil, false
	}
	if f.Kind == KindInteger && n != math.Trunc(n) {
		v.fail(path, ConstraintType, "must be an integer")
		return nil, false
	}
	before := len(v.errs)
	if f.Min != nil && n < *f.Min {
		v.fail(path, ConstraintMin, "must be >= %s", fmtNum(*f.Min))
	}
	if f.Max != nil && n > *f.Max {
		v.fail(path, ConstraintMax, "must be <= %s", fmtNum(*f.Max))
	}
	return n, len(v.errs) == before
}

func (v *validator) array(path string, f Field, val any) (any, bool) {
	items, ok := toSlice(val)
	if !ok {
		v.fail(path, ConstraintType, "must be an array")
		return nil, false
	}
	before := len(v.errs)
	if f.MinItems != nil && len(items) < *f.MinItems {
		v.fail(path, ConstraintMinItems, "must have at least %d items", *f.MinItems)
	}
	if f.MaxItems != nil && len(items) > *f.MaxItems {
		v.fail(path, ConstraintMaxItems, "must have at most %d items", *f.MaxItems)
	}
	out := make([]any, 0, len(items))
	if f.Items != nil {
		for i, it := range items {
			p := fmt.Sprintf("%s[%d]", path, i)
			if it == nil {
				v.fail(p, ConstraintRequired, "is required")
				continue
			}
			if norm, ok := v.value(p, *f.Items, it); ok {
				out = append(out, norm)
			}
		}
	} else {
		out = append(out, items...)
	}
	return out, len(v.errs) == before
}

func toFloat(val any) (float64, bool) {
	switch n := val.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toSlice(val any) ([]any, bool) {
	switch s := val.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(s))
		for i := range s {
			out[i] = s[i]
		}
		return out, true
	default:
		return nil, false
	}
}

func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
