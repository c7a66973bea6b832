package config

import (
	"errors"
	"fmt"

	"github.com/openfroyo/parfait/pkg/provenance"
)

var errNilItem = errors.New("nil items are not allowed")

// ListSpec declares a ListField. A zero Length, MinLength, or MaxLength
// means the constraint is unset. Length constraints are enforced at Validate
// time only, so a config may pass through shorter intermediate states while
// being built up.
type ListSpec struct {
	Doc        string
	Default    any
	Optional   bool
	ItemCheck  CheckFunc
	ListCheck  CheckFunc
	Length     int
	MinLength  int
	MaxLength  int
	Deprecated string
	Source     provenance.Origin
}

// ListField holds an ordered sequence of scalars of a single kind. Items are
// coerced and item-checked on every write, whether the whole list is assigned
// or a wrapper edits it in place.
type ListField struct {
	fieldBase
	kind      Kind
	def       []any
	itemCheck CheckFunc
	listCheck CheckFunc
	length    int
	minLength int
	maxLength int
}

// NewListField declares a list of the given item kind.
func NewListField(kind Kind, spec ListSpec) *ListField {
	f := &ListField{
		fieldBase: fieldBase{
			doc:        spec.Doc,
			typeName:   "ListField",
			optional:   spec.Optional,
			deprecated: spec.Deprecated,
			source:     spec.Source,
		},
		kind:      kind,
		itemCheck: spec.ItemCheck,
		listCheck: spec.ListCheck,
		length:    spec.Length,
		minLength: spec.MinLength,
		maxLength: spec.MaxLength,
	}
	if !kind.valid() {
		f.fail("invalid item kind %d", int(kind))
		return f
	}
	if spec.Length < 0 {
		f.fail("length (%d) must be non-negative", spec.Length)
	}
	if spec.MinLength < 0 || spec.MaxLength < 0 {
		f.fail("minLength and maxLength must be non-negative")
	}
	if spec.Length > 0 && (spec.MinLength > 0 || spec.MaxLength > 0) {
		f.fail("length and minLength/maxLength are mutually exclusive")
	}
	if spec.MinLength > 0 && spec.MaxLength > 0 && spec.MinLength > spec.MaxLength {
		f.fail("minLength (%d) cannot exceed maxLength (%d)", spec.MinLength, spec.MaxLength)
	}
	if spec.Default != nil {
		items, err := f.coerceList(spec.Default)
		if err != nil {
			f.fail("invalid default: %v", err)
		} else {
			f.def = items
		}
	}
	return f
}

// ItemKind returns the scalar kind of the list's items.
func (f *ListField) ItemKind() Kind {
	return f.kind
}

// Default returns a copy of the declared default, or nil.
func (f *ListField) Default() []any {
	if f.def == nil {
		return nil
	}
	out, _ := plainCopy(f.def).([]any)
	return out
}

func (f *ListField) coerceItem(v any) (any, error) {
	cv, err := f.kind.coerce(v)
	if err != nil {
		return nil, err
	}
	if cv == nil {
		return nil, errNilItem
	}
	if f.itemCheck != nil {
		if err := f.itemCheck(cv); err != nil {
			return nil, err
		}
	}
	return cv, nil
}

func (f *ListField) coerceList(raw any) ([]any, error) {
	src, ok := anySlice(raw)
	if !ok {
		return nil, fmt.Errorf("expected a sequence, got %T", raw)
	}
	out := make([]any, len(src))
	for i, v := range src {
		cv, err := f.coerceItem(v)
		if err != nil {
			return nil, fmt.Errorf("invalid item at index %d: %v", i, err)
		}
		out[i] = cv
	}
	return out, nil
}

func (f *ListField) initialize(c *Config) {
	if f.def == nil {
		c.storage[f.name] = nil
		return
	}
	c.storage[f.name] = plainCopy(f.def)
}

func (f *ListField) get(c *Config) (any, error) {
	if c.storage[f.name] == nil {
		return nil, nil
	}
	return &List{config: c, field: f}, nil
}

func (f *ListField) set(c *Config, value any, op setOp) error {
	if err := c.checkFrozen(f.name); err != nil {
		return err
	}
	path := c.fieldPath(f.name)
	if value == nil {
		c.storage[f.name] = nil
		c.appendHistory(f.name, nil, op)
		return nil
	}
	items, err := f.coerceList(value)
	if err != nil {
		return newValidationError(f.typeName, path, "%v", err)
	}
	c.storage[f.name] = items
	c.appendHistory(f.name, items, op)
	return nil
}

func (f *ListField) validate(c *Config) error {
	path := c.fieldPath(f.name)
	v := c.storage[f.name]
	if v == nil {
		if f.optional {
			return nil
		}
		return newValidationError(f.typeName, path, "required value cannot be nil")
	}
	items := v.([]any)
	n := len(items)
	if f.length > 0 && n != f.length {
		return newValidationError(f.typeName, path, "expected list of length %d, got length %d", f.length, n)
	}
	if f.minLength > 0 && n < f.minLength {
		return newValidationError(f.typeName, path, "expected list of length >= %d, got length %d", f.minLength, n)
	}
	if f.maxLength > 0 && n > f.maxLength {
		return newValidationError(f.typeName, path, "expected list of length <= %d, got length %d", f.maxLength, n)
	}
	if f.listCheck != nil {
		if err := f.listCheck(plainCopy(items)); err != nil {
			return newValidationError(f.typeName, path, "%v", err)
		}
	}
	return nil
}

func (f *ListField) rename(c *Config) {}

func (f *ListField) freeze(c *Config) {}

func (f *ListField) toDict(c *Config) any {
	v := c.storage[f.name]
	if v == nil {
		return nil
	}
	return plainCopy(v)
}

func (f *ListField) save(w *scriptWriter, c *Config, prefix string) error {
	return w.assign(prefix+"."+f.name, c.storage[f.name])
}

func (f *ListField) compare(a, b *Config, sc *compareScope) bool {
	return sc.compareValues(a.fieldPath(f.name), a.storage[f.name], b.storage[f.name])
}

// List is a live view over a list field's current value. Every mutation runs
// the field's frozen check, coercion, and item check, and appends a history
// entry on the owning config labeled with the operation name.
type List struct {
	config *Config
	field  *ListField
}

func (l *List) items() []any {
	v, _ := l.config.storage[l.field.name].([]any)
	return v
}

// Len returns the current number of items.
func (l *List) Len() int {
	return len(l.items())
}

// Values returns a copy of the current items.
func (l *List) Values() []any {
	out, _ := plainCopy(l.items()).([]any)
	if out == nil {
		out = []any{}
	}
	return out
}

// At returns the item at index i.
func (l *List) At(i int) (any, error) {
	items := l.items()
	if i < 0 || i >= len(items) {
		return nil, l.indexError(i, len(items))
	}
	return items[i], nil
}

// Set replaces the item at index i.
func (l *List) Set(i int, value any, opts ...SetOption) error {
	return l.edit("setitem", opts, func(items []any) ([]any, error) {
		if i < 0 || i >= len(items) {
			return nil, l.indexError(i, len(items))
		}
		cv, err := l.field.coerceItem(value)
		if err != nil {
			return nil, l.itemError(i, err)
		}
		items[i] = cv
		return items, nil
	})
}

// Append adds an item at the end.
func (l *List) Append(value any, opts ...SetOption) error {
	return l.edit("append", opts, func(items []any) ([]any, error) {
		cv, err := l.field.coerceItem(value)
		if err != nil {
			return nil, l.itemError(len(items), err)
		}
		return append(items, cv), nil
	})
}

// Insert inserts an item before index i. Inserting at Len appends. Insert
// is slice replacement over the empty range [i, i).
func (l *List) Insert(i int, value any, opts ...SetOption) error {
	return l.setSlice("insert", i, i, []any{value}, opts)
}

// SetSlice replaces the items in the half-open range [i, j) with values,
// which may change the list's length. Every replacement value is coerced
// and checked before any item is committed, so a failed SetSlice leaves
// the list unchanged.
func (l *List) SetSlice(i, j int, values []any, opts ...SetOption) error {
	return l.setSlice("setslice", i, j, values, opts)
}

func (l *List) setSlice(label string, i, j int, values []any, opts []SetOption) error {
	return l.edit(label, opts, func(items []any) ([]any, error) {
		n := len(items)
		if i < 0 || i > n {
			return nil, l.indexError(i, n)
		}
		if j < i || j > n {
			return nil, l.indexError(j, n)
		}
		repl := make([]any, len(values))
		for k, v := range values {
			cv, err := l.field.coerceItem(v)
			if err != nil {
				return nil, l.itemError(i+k, err)
			}
			repl[k] = cv
		}
		out := make([]any, 0, n-(j-i)+len(repl))
		out = append(out, items[:i]...)
		out = append(out, repl...)
		out = append(out, items[j:]...)
		return out, nil
	})
}

// Remove deletes the item at index i.
func (l *List) Remove(i int, opts ...SetOption) error {
	return l.edit("delitem", opts, func(items []any) ([]any, error) {
		if i < 0 || i >= len(items) {
			return nil, l.indexError(i, len(items))
		}
		return append(items[:i], items[i+1:]...), nil
	})
}

// Extend appends every value in order. The whole extension is validated
// before any item is committed, so a failed Extend leaves the list unchanged.
func (l *List) Extend(values []any, opts ...SetOption) error {
	return l.edit("extend", opts, func(items []any) ([]any, error) {
		add := make([]any, len(values))
		for j, v := range values {
			cv, err := l.field.coerceItem(v)
			if err != nil {
				return nil, l.itemError(len(items)+j, err)
			}
			add[j] = cv
		}
		return append(items, add...), nil
	})
}

func (l *List) edit(label string, opts []SetOption, fn func([]any) ([]any, error)) error {
	if err := l.config.checkFrozen(l.field.name); err != nil {
		return err
	}
	items, err := fn(l.items())
	if err != nil {
		return err
	}
	op := newSetOp(label, opts)
	l.config.storage[l.field.name] = items
	l.config.appendHistory(l.field.name, items, op)
	return nil
}

func (l *List) indexError(i, n int) error {
	return newValidationError(l.field.typeName, l.config.fieldPath(l.field.name),
		"index %d out of range for list of length %d", i, n)
}

func (l *List) itemError(i int, err error) error {
	return newValidationError(l.field.typeName, l.config.fieldPath(l.field.name),
		"invalid item at index %d: %v", i, err)
}
