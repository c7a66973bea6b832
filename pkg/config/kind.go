package config

import (
	"fmt"
	"math"
	"sort"
)

// Kind is the declared value kind of a scalar field, a list item, or a dict
// key/value. Values are normalized on assignment: integers are stored as
// int64, floats as float64. Int does not accept floats and Float quietly
// widens integers; there is no silent truncation anywhere.
type Kind int

const (
	// Invalid is the zero Kind. Declaring a field with it fails at Build.
	Invalid Kind = iota

	// Int stores int64 and accepts any Go integer type that fits.
	Int

	// Float stores float64 and accepts floats and integers.
	Float

	// String stores string and accepts only strings.
	String

	// Bool stores bool and accepts only bools.
	Bool
)

// String returns the kind's name as used in error messages.
func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("invalid kind (%d)", int(k))
	}
}

func (k Kind) valid() bool {
	return k >= Int && k <= Bool
}

// coerce normalizes raw into the kind's storage form. nil passes through
// unchanged; optionality is enforced by Validate, not here.
func (k Kind) coerce(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch k {
	case Int:
		return coerceInt(raw)
	case Float:
		return coerceFloat(raw)
	case String:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected a string value, got %T", raw)
	case Bool:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("expected a bool value, got %T", raw)
	default:
		return nil, fmt.Errorf("invalid kind")
	}
}

func coerceInt(raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, fmt.Errorf("integer value %d overflows int64", v)
		}
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("integer value %d overflows int64", v)
		}
		return int64(v), nil
	default:
		return nil, fmt.Errorf("expected an int value, got %T", raw)
	}
}

func coerceFloat(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return nil, fmt.Errorf("expected a float value, got %T", raw)
	}
}

// anySlice widens the common concrete slice types into []any. Used by list
// assignment so callers are not forced to build []any by hand.
func anySlice(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case []any:
		return v, true
	case *List:
		if v == nil {
			return nil, true
		}
		return v.Values(), true
	case []int:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, true
	case []int64:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, true
	case []float64:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, true
	case []string:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, true
	case []bool:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = e
		}
		return out, true
	default:
		return nil, false
	}
}

// anyMap widens the common concrete map types into map[any]any.
func anyMap(raw any) (map[any]any, bool) {
	switch v := raw.(type) {
	case map[any]any:
		return v, true
	case *Dict:
		if v == nil {
			return nil, true
		}
		return v.Items(), true
	case map[string]any:
		out := make(map[any]any, len(v))
		for k, e := range v {
			out[k] = e
		}
		return out, true
	case map[int]any:
		out := make(map[any]any, len(v))
		for k, e := range v {
			out[k] = e
		}
		return out, true
	case map[string]string:
		out := make(map[any]any, len(v))
		for k, e := range v {
			out[k] = e
		}
		return out, true
	case map[string]int:
		out := make(map[any]any, len(v))
		for k, e := range v {
			out[k] = e
		}
		return out, true
	default:
		return nil, false
	}
}

// sortKeys orders coerced keys of the given kind for deterministic iteration,
// rendering, and persistence.
func sortKeys(kind Kind, keys []any) {
	sort.Slice(keys, func(i, j int) bool {
		switch kind {
		case Int:
			return keys[i].(int64) < keys[j].(int64)
		case Float:
			return keys[i].(float64) < keys[j].(float64)
		case Bool:
			return !keys[i].(bool) && keys[j].(bool)
		default:
			return keys[i].(string) < keys[j].(string)
		}
	})
}

// plainCopy deep-copies the plain-data forms that appear in storage, history
// snapshots, and ToDict output. Values outside those forms are returned as is.
func plainCopy(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plainCopy(e)
		}
		return out
	case map[any]any:
		out := make(map[any]any, len(t))
		for k, e := range t {
			out[k] = plainCopy(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = plainCopy(e)
		}
		return out
	default:
		return v
	}
}
