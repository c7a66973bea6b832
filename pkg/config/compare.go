package config

import (
	"fmt"
	"math"
)

const defaultTolerance = 1e-8

// CompareOption adjusts structural comparison.
type CompareOption func(*compareScope)

// WithRelTolerance sets the relative tolerance for float comparisons.
func WithRelTolerance(rtol float64) CompareOption {
	return func(sc *compareScope) {
		sc.rtol = rtol
	}
}

// WithAbsTolerance sets the absolute tolerance for float comparisons.
func WithAbsTolerance(atol float64) CompareOption {
	return func(sc *compareScope) {
		sc.atol = atol
	}
}

// WithReport registers a callback invoked once per mismatch with the dotted
// path of the differing value and a message describing the difference.
func WithReport(fn func(path, msg string)) CompareOption {
	return func(sc *compareScope) {
		sc.reportFn = fn
	}
}

// WithShortcut controls whether comparison stops at the first mismatch.
// It defaults to true; disable it to collect a full difference report.
func WithShortcut(shortcut bool) CompareOption {
	return func(sc *compareScope) {
		sc.shortcut = shortcut
	}
}

// Compare reports whether two configs are structurally equal: same schema,
// same values field by field, floats compared within tolerance as
// |x-y| <= atol + rtol*|y|. Histories and origins never take part in
// equality.
func Compare(a, b *Config, opts ...CompareOption) bool {
	sc := &compareScope{rtol: defaultTolerance, atol: defaultTolerance, shortcut: true}
	for _, o := range opts {
		o(sc)
	}
	return compareConfigValues(a, b, sc)
}

type compareScope struct {
	rtol       float64
	atol       float64
	shortcut   bool
	reportFn   func(path, msg string)
	mismatches int
}

func (sc *compareScope) report(path, msg string) {
	sc.mismatches++
	if sc.reportFn != nil {
		sc.reportFn(path, msg)
	}
}

func compareConfigValues(a, b *Config, sc *compareScope) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		sc.report(compareName(a, b), fmt.Sprintf("presence differs: %v != %v", a != nil, b != nil))
		return false
	}
	if a.schema != b.schema {
		sc.report(compareName(a, b), fmt.Sprintf("schemas differ: %s != %s", a.schema.name, b.schema.name))
		return false
	}
	equal := true
	for _, f := range a.schema.Fields() {
		if !f.compare(a, b, sc) {
			equal = false
			if sc.shortcut {
				return false
			}
		}
	}
	return equal
}

func compareName(a, b *Config) string {
	if a != nil {
		return a.displayName()
	}
	if b != nil {
		return b.displayName()
	}
	return "<nil>"
}

// compareValues deep-compares two plain values, descending into slices and
// maps with indexed paths.
func (sc *compareScope) compareValues(path string, x, y any) bool {
	if x == nil && y == nil {
		return true
	}
	if x == nil || y == nil {
		sc.report(path, fmt.Sprintf("%v != %v", renderValue(x), renderValue(y)))
		return false
	}
	switch xv := x.(type) {
	case float64:
		yv, ok := y.(float64)
		if !ok {
			sc.report(path, fmt.Sprintf("types differ: %T != %T", x, y))
			return false
		}
		if !sc.floatsEqual(xv, yv) {
			sc.report(path, fmt.Sprintf("%v != %v (rtol=%v, atol=%v)", xv, yv, sc.rtol, sc.atol))
			return false
		}
		return true
	case []any:
		yv, ok := y.([]any)
		if !ok {
			sc.report(path, fmt.Sprintf("types differ: %T != %T", x, y))
			return false
		}
		if len(xv) != len(yv) {
			sc.report(path, fmt.Sprintf("sizes differ: %d != %d", len(xv), len(yv)))
			return false
		}
		equal := true
		for i := range xv {
			if !sc.compareValues(fmt.Sprintf("%s[%d]", path, i), xv[i], yv[i]) {
				equal = false
				if sc.shortcut {
					return false
				}
			}
		}
		return equal
	case map[any]any:
		yv, ok := y.(map[any]any)
		if !ok {
			sc.report(path, fmt.Sprintf("types differ: %T != %T", x, y))
			return false
		}
		if len(xv) != len(yv) {
			sc.report(path, fmt.Sprintf("sizes differ: %d != %d", len(xv), len(yv)))
			return false
		}
		equal := true
		for k, xe := range xv {
			ye, ok := yv[k]
			if !ok {
				sc.report(path, fmt.Sprintf("key %v missing on one side", k))
				equal = false
				if sc.shortcut {
					return false
				}
				continue
			}
			if !sc.compareValues(fmt.Sprintf("%s[%s]", path, keyRepr(k)), xe, ye) {
				equal = false
				if sc.shortcut {
					return false
				}
			}
		}
		return equal
	default:
		if x != y {
			sc.report(path, fmt.Sprintf("%v != %v", renderValue(x), renderValue(y)))
			return false
		}
		return true
	}
}

// floatsEqual applies the tolerance formula. Exact equality short-circuits
// so infinities compare to themselves, and two NaNs are treated as equal so
// a saved config always round-trips clean.
func (sc *compareScope) floatsEqual(x, y float64) bool {
	if x == y {
		return true
	}
	if math.IsNaN(x) && math.IsNaN(y) {
		return true
	}
	return math.Abs(x-y) <= sc.atol+sc.rtol*math.Abs(y)
}

func renderValue(v any) string {
	if s, ok := v.(string); ok {
		return keyRepr(s)
	}
	return fmt.Sprintf("%v", v)
}
