// Package checks provides reusable value checks for config field
// declarations.
//
// Each factory returns a config.CheckFunc ready to plug into a FieldSpec's
// Check or a container spec's ItemCheck. Tag adapts a go-playground/validator
// tag expression, which covers the formats (email, url, uuid4, ...) the
// bespoke factories do not.
package checks

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/parfait/pkg/config"
)

// validate is shared across all Tag checks. A Validate caches parsed tag
// expressions and is safe for concurrent use.
var validate = validator.New()

// Tag adapts a validator tag expression such as "gte=0,lte=130" or "email"
// into a check. The expression is parsed lazily, so a malformed tag panics
// on first use, the same way validator treats it elsewhere.
func Tag(tag string) config.CheckFunc {
	return func(v any) error {
		err := validate.Var(v, tag)
		if err == nil {
			return nil
		}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			failed := fe.Tag()
			if fe.Param() != "" {
				failed += "=" + fe.Param()
			}
			return fmt.Errorf("value %v fails %q", v, failed)
		}
		return err
	}
}

// Range requires lo <= value <= hi. It accepts the numeric storage forms
// scalar fields produce, int64 and float64.
func Range(lo, hi float64) config.CheckFunc {
	return func(v any) error {
		var n float64
		switch t := v.(type) {
		case int64:
			n = float64(t)
		case float64:
			n = t
		default:
			return fmt.Errorf("value must be numeric, got %T", v)
		}
		if n < lo || n > hi {
			return fmt.Errorf("value %v out of range [%v, %v]", v, lo, hi)
		}
		return nil
	}
}

// OneOf requires the value to equal one of the allowed values. Allowed
// values are widened to the storage forms scalar fields produce, so
// OneOf(80, 443) matches an int field holding int64(443).
func OneOf(allowed ...any) config.CheckFunc {
	want := make([]any, len(allowed))
	for i, a := range allowed {
		want[i] = normalize(a)
	}
	return func(v any) error {
		for _, a := range want {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("value %v is not one of %v", v, want)
	}
}

// Regex requires a string value matching pattern. The pattern is a program
// literal; Regex panics on a pattern that does not compile.
func Regex(pattern string) config.CheckFunc {
	re := regexp.MustCompile(pattern)
	return func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("value must be a string, got %T", v)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("value %q does not match %s", s, re)
		}
		return nil
	}
}

// NonEmpty rejects blank strings and empty lists or dicts. Values of other
// types pass unchanged.
func NonEmpty(v any) error {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("value must not be blank")
		}
	case []any:
		if len(t) == 0 {
			return fmt.Errorf("value must not be empty")
		}
	case map[any]any:
		if len(t) == 0 {
			return fmt.Errorf("value must not be empty")
		}
	}
	return nil
}

// normalize widens literals to the forms scalar fields store.
func normalize(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
