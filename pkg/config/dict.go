package config

import (
	"fmt"

	"github.com/openfroyo/parfait/pkg/provenance"
)

// DictSpec declares a DictField.
type DictSpec struct {
	Doc        string
	Default    any
	Optional   bool
	ItemCheck  CheckFunc
	DictCheck  CheckFunc
	Deprecated string
	Source     provenance.Origin
}

// DictField holds a mapping from scalar keys of one kind to scalar values of
// another. Keys and values are coerced on every write; ItemCheck runs per
// value on write, DictCheck runs on the whole mapping at Validate.
type DictField struct {
	fieldBase
	keyKind   Kind
	itemKind  Kind
	def       map[any]any
	itemCheck CheckFunc
	dictCheck CheckFunc
}

// NewDictField declares a dict with the given key and value kinds.
func NewDictField(keyKind, itemKind Kind, spec DictSpec) *DictField {
	f := &DictField{
		fieldBase: fieldBase{
			doc:        spec.Doc,
			typeName:   "DictField",
			optional:   spec.Optional,
			deprecated: spec.Deprecated,
			source:     spec.Source,
		},
		keyKind:   keyKind,
		itemKind:  itemKind,
		itemCheck: spec.ItemCheck,
		dictCheck: spec.DictCheck,
	}
	if !keyKind.valid() {
		f.fail("invalid key kind %d", int(keyKind))
		return f
	}
	if !itemKind.valid() {
		f.fail("invalid item kind %d", int(itemKind))
		return f
	}
	if spec.Default != nil {
		m, err := f.coerceDict(spec.Default)
		if err != nil {
			f.fail("invalid default: %v", err)
		} else {
			f.def = m
		}
	}
	return f
}

// KeyKind returns the scalar kind of the dict's keys.
func (f *DictField) KeyKind() Kind {
	return f.keyKind
}

// ItemKind returns the scalar kind of the dict's values.
func (f *DictField) ItemKind() Kind {
	return f.itemKind
}

// Default returns a copy of the declared default, or nil.
func (f *DictField) Default() map[any]any {
	if f.def == nil {
		return nil
	}
	out, _ := plainCopy(f.def).(map[any]any)
	return out
}

func (f *DictField) coerceKey(k any) (any, error) {
	ck, err := f.keyKind.coerce(k)
	if err != nil {
		return nil, fmt.Errorf("invalid key: %v", err)
	}
	if ck == nil {
		return nil, fmt.Errorf("invalid key: nil keys are not allowed")
	}
	return ck, nil
}

func (f *DictField) coerceValue(k, v any) (any, error) {
	cv, err := f.itemKind.coerce(v)
	if err != nil {
		return nil, fmt.Errorf("invalid value for key %v: %v", k, err)
	}
	if cv == nil {
		return nil, fmt.Errorf("invalid value for key %v: %v", k, errNilItem)
	}
	if f.itemCheck != nil {
		if err := f.itemCheck(cv); err != nil {
			return nil, fmt.Errorf("invalid value for key %v: %v", k, err)
		}
	}
	return cv, nil
}

func (f *DictField) coerceDict(raw any) (map[any]any, error) {
	src, ok := anyMap(raw)
	if !ok {
		return nil, fmt.Errorf("expected a mapping, got %T", raw)
	}
	out := make(map[any]any, len(src))
	for k, v := range src {
		ck, err := f.coerceKey(k)
		if err != nil {
			return nil, err
		}
		cv, err := f.coerceValue(ck, v)
		if err != nil {
			return nil, err
		}
		out[ck] = cv
	}
	return out, nil
}

func (f *DictField) initialize(c *Config) {
	if f.def == nil {
		c.storage[f.name] = nil
		return
	}
	c.storage[f.name] = plainCopy(f.def)
}

func (f *DictField) get(c *Config) (any, error) {
	if c.storage[f.name] == nil {
		return nil, nil
	}
	return &Dict{config: c, field: f}, nil
}

func (f *DictField) set(c *Config, value any, op setOp) error {
	if err := c.checkFrozen(f.name); err != nil {
		return err
	}
	path := c.fieldPath(f.name)
	if value == nil {
		c.storage[f.name] = nil
		c.appendHistory(f.name, nil, op)
		return nil
	}
	m, err := f.coerceDict(value)
	if err != nil {
		return newValidationError(f.typeName, path, "%v", err)
	}
	c.storage[f.name] = m
	c.appendHistory(f.name, m, op)
	return nil
}

func (f *DictField) validate(c *Config) error {
	path := c.fieldPath(f.name)
	v := c.storage[f.name]
	if v == nil {
		if f.optional {
			return nil
		}
		return newValidationError(f.typeName, path, "required value cannot be nil")
	}
	if f.dictCheck != nil {
		m := v.(map[any]any)
		if err := f.dictCheck(plainCopy(m)); err != nil {
			return newValidationError(f.typeName, path, "%v", err)
		}
	}
	return nil
}

func (f *DictField) rename(c *Config) {}

func (f *DictField) freeze(c *Config) {}

func (f *DictField) toDict(c *Config) any {
	v := c.storage[f.name]
	if v == nil {
		return nil
	}
	return plainCopy(v)
}

func (f *DictField) save(w *scriptWriter, c *Config, prefix string) error {
	return w.assign(prefix+"."+f.name, c.storage[f.name])
}

func (f *DictField) compare(a, b *Config, sc *compareScope) bool {
	return sc.compareValues(a.fieldPath(f.name), a.storage[f.name], b.storage[f.name])
}

// Dict is a live view over a dict field's current value. Mutations run the
// field's frozen check and coercion and append history on the owning config.
type Dict struct {
	config *Config
	field  *DictField
}

func (d *Dict) items() map[any]any {
	v, _ := d.config.storage[d.field.name].(map[any]any)
	return v
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return len(d.items())
}

// Keys returns the current keys in sorted order.
func (d *Dict) Keys() []any {
	m := d.items()
	keys := make([]any, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortKeys(d.field.keyKind, keys)
	return keys
}

// Items returns a copy of the current entries.
func (d *Dict) Items() map[any]any {
	out, _ := plainCopy(d.items()).(map[any]any)
	if out == nil {
		out = map[any]any{}
	}
	return out
}

// Contains reports whether the dict has an entry for key.
func (d *Dict) Contains(key any) bool {
	ck, err := d.field.coerceKey(key)
	if err != nil {
		return false
	}
	_, ok := d.items()[ck]
	return ok
}

// Get returns the value stored under key.
func (d *Dict) Get(key any) (any, error) {
	ck, err := d.field.coerceKey(key)
	if err != nil {
		return nil, d.entryError("%v", err)
	}
	v, ok := d.items()[ck]
	if !ok {
		return nil, d.entryError("no entry for key %v", ck)
	}
	return v, nil
}

// Set stores value under key, replacing any existing entry.
func (d *Dict) Set(key, value any, opts ...SetOption) error {
	if err := d.config.checkFrozen(d.field.name); err != nil {
		return err
	}
	ck, err := d.field.coerceKey(key)
	if err != nil {
		return d.entryError("%v", err)
	}
	cv, err := d.field.coerceValue(ck, value)
	if err != nil {
		return d.entryError("%v", err)
	}
	m := d.items()
	if m == nil {
		m = make(map[any]any, 1)
	}
	m[ck] = cv
	d.config.storage[d.field.name] = m
	d.config.appendHistory(d.field.name, m, newSetOp("setitem", opts))
	return nil
}

// Delete removes the entry under key. Deleting a missing key is an error.
func (d *Dict) Delete(key any, opts ...SetOption) error {
	if err := d.config.checkFrozen(d.field.name); err != nil {
		return err
	}
	ck, err := d.field.coerceKey(key)
	if err != nil {
		return d.entryError("%v", err)
	}
	m := d.items()
	if _, ok := m[ck]; !ok {
		return d.entryError("no entry for key %v", ck)
	}
	delete(m, ck)
	d.config.appendHistory(d.field.name, m, newSetOp("delitem", opts))
	return nil
}

func (d *Dict) entryError(format string, args ...any) error {
	return newValidationError(d.field.typeName, d.config.fieldPath(d.field.name), format, args...)
}
