package config

import (
	"fmt"

	"github.com/openfroyo/parfait/pkg/provenance"
)

// ConfigDictSpec declares a ConfigDictField.
type ConfigDictSpec struct {
	Doc        string
	Default    map[any]*Config
	Optional   bool
	ItemCheck  CheckFunc
	DictCheck  CheckFunc
	Deprecated string
	Source     provenance.Origin
}

// ConfigDictField maps scalar keys to full config instances of a single
// schema. Entries are owned by the field: assigned instances are cloned in
// and renamed to the entry's bracketed path, so validation errors from an
// entry read like "server.workers['batch'].threads".
type ConfigDictField struct {
	fieldBase
	keyKind   Kind
	schema    *Schema
	def       map[any]*Config
	itemCheck CheckFunc
	dictCheck CheckFunc
}

// NewConfigDictField declares a dict of configs keyed by the given kind.
func NewConfigDictField(keyKind Kind, schema *Schema, spec ConfigDictSpec) *ConfigDictField {
	f := &ConfigDictField{
		fieldBase: fieldBase{
			doc:        spec.Doc,
			typeName:   "ConfigDictField",
			optional:   spec.Optional,
			deprecated: spec.Deprecated,
			source:     spec.Source,
		},
		keyKind:   keyKind,
		schema:    schema,
		itemCheck: spec.ItemCheck,
		dictCheck: spec.DictCheck,
	}
	if !keyKind.valid() {
		f.fail("invalid key kind %d", int(keyKind))
		return f
	}
	if schema == nil {
		f.fail("item schema must not be nil")
		return f
	}
	if spec.Default != nil {
		def := make(map[any]*Config, len(spec.Default))
		for k, v := range spec.Default {
			ck, err := keyKind.coerce(k)
			if err != nil || ck == nil {
				f.fail("invalid default key %v: %v", k, err)
				return f
			}
			if v == nil || !v.schema.DerivesFrom(schema) {
				f.fail("default entry %v must be a config whose schema derives from %s", k, schema.name)
				return f
			}
			def[ck] = v.clone()
		}
		f.def = def
	}
	return f
}

// KeyKind returns the scalar kind of the dict's keys.
func (f *ConfigDictField) KeyKind() Kind {
	return f.keyKind
}

// Schema returns the schema every entry conforms to.
func (f *ConfigDictField) Schema() *Schema {
	return f.schema
}

func (f *ConfigDictField) entryPath(c *Config, key any) string {
	return fmt.Sprintf("%s[%s]", c.fieldPath(f.name), keyRepr(key))
}

func (f *ConfigDictField) initialize(c *Config) {
	if f.def == nil {
		c.storage[f.name] = nil
		return
	}
	m := make(map[any]*Config, len(f.def))
	for k, v := range f.def {
		e := v.clone()
		e.rename(f.entryPath(c, k))
		m[k] = e
	}
	c.storage[f.name] = m
}

func (f *ConfigDictField) entries(c *Config) map[any]*Config {
	m, _ := c.storage[f.name].(map[any]*Config)
	return m
}

func (f *ConfigDictField) get(c *Config) (any, error) {
	if c.storage[f.name] == nil {
		return nil, nil
	}
	return &ConfigDict{config: c, field: f}, nil
}

// makeEntry builds or updates the entry for key from value, which may be a
// *Schema (fresh defaults), a *Config (cloned in, or merged into an existing
// entry of the same schema), or a plain mapping applied over fresh defaults.
func (f *ConfigDictField) makeEntry(c *Config, m map[any]*Config, key, value any, op setOp) error {
	path := f.entryPath(c, key)
	switch v := value.(type) {
	case *Schema:
		if v == nil || !v.DerivesFrom(f.schema) {
			return newValidationError(f.typeName, path,
				"value must be a schema deriving from %s", f.schema.name)
		}
		e := newConfig(v)
		e.rename(path)
		m[key] = e
		return nil
	case *Config:
		if v == nil || !v.schema.DerivesFrom(f.schema) {
			return newValidationError(f.typeName, path,
				"value must be a config whose schema derives from %s", f.schema.name)
		}
		if cur, ok := m[key]; ok && cur.schema == v.schema {
			return cur.updateFrom(v, op)
		}
		e := v.clone()
		e.rename(path)
		m[key] = e
		return nil
	default:
		if plain, ok := anyMap(value); ok {
			e, ok := m[key]
			if !ok {
				e = newConfig(f.schema)
				e.rename(path)
				m[key] = e
			}
			sm := make(map[string]any, len(plain))
			for pk, pv := range plain {
				ks, ok := pk.(string)
				if !ok {
					return newValidationError(f.typeName, path,
						"field names must be strings, got %T", pk)
				}
				sm[ks] = pv
			}
			return e.applyDict(sm, op)
		}
		return newValidationError(f.typeName, path,
			"value must be a *Schema, *Config, or mapping, got %T", value)
	}
}

func (f *ConfigDictField) set(c *Config, value any, op setOp) error {
	if err := c.checkFrozen(f.name); err != nil {
		return err
	}
	path := c.fieldPath(f.name)
	if value == nil {
		c.storage[f.name] = nil
		c.appendHistory(f.name, nil, op)
		return nil
	}
	src, ok := anyMap(value)
	if !ok {
		if cd, isCD := value.(*ConfigDict); isCD {
			src = make(map[any]any, len(cd.entries()))
			for k, e := range cd.entries() {
				src[k] = e
			}
		} else {
			return newValidationError(f.typeName, path, "expected a mapping, got %T", value)
		}
	}
	m := make(map[any]*Config, len(src))
	for k, v := range src {
		ck, err := f.keyKind.coerce(k)
		if err != nil || ck == nil {
			return newValidationError(f.typeName, path, "invalid key %v: %v", k, err)
		}
		if err := f.makeEntry(c, m, ck, v, op); err != nil {
			return err
		}
	}
	c.storage[f.name] = m
	c.appendHistory(f.name, f.toDict(c), op)
	return nil
}

func (f *ConfigDictField) validate(c *Config) error {
	path := c.fieldPath(f.name)
	m := f.entries(c)
	if c.storage[f.name] == nil {
		if f.optional {
			return nil
		}
		return newValidationError(f.typeName, path, "required value cannot be nil")
	}
	keys := make([]any, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortKeys(f.keyKind, keys)
	for _, k := range keys {
		e := m[k]
		if err := e.Validate(); err != nil {
			return err
		}
		if f.itemCheck != nil {
			if err := f.itemCheck(e); err != nil {
				return newValidationError(f.typeName, f.entryPath(c, k), "%v", err)
			}
		}
	}
	if f.dictCheck != nil {
		if err := f.dictCheck(&ConfigDict{config: c, field: f}); err != nil {
			return newValidationError(f.typeName, path, "%v", err)
		}
	}
	return nil
}

func (f *ConfigDictField) rename(c *Config) {
	for k, e := range f.entries(c) {
		e.rename(f.entryPath(c, k))
	}
}

func (f *ConfigDictField) freeze(c *Config) {
	for _, e := range f.entries(c) {
		e.Freeze()
	}
}

func (f *ConfigDictField) toDict(c *Config) any {
	if c.storage[f.name] == nil {
		return nil
	}
	m := f.entries(c)
	out := make(map[any]any, len(m))
	for k, e := range m {
		out[k] = e.ToDict()
	}
	return out
}

func (f *ConfigDictField) save(w *scriptWriter, c *Config, prefix string) error {
	lhs := prefix + "." + f.name
	if c.storage[f.name] == nil {
		return w.assign(lhs, nil)
	}
	if err := w.assign(lhs, map[any]any{}); err != nil {
		return err
	}
	m := f.entries(c)
	keys := make([]any, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortKeys(f.keyKind, keys)
	for _, k := range keys {
		entryExpr := fmt.Sprintf("%s[%s]", lhs, keyRepr(k))
		if err := w.assign(entryExpr, map[any]any{}); err != nil {
			return err
		}
		e := m[k]
		for _, nf := range e.schema.Fields() {
			if err := nf.save(w, e, entryExpr); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *ConfigDictField) compare(a, b *Config, sc *compareScope) bool {
	path := a.fieldPath(f.name)
	am, bm := f.entries(a), f.entries(b)
	aNil := a.storage[f.name] == nil
	bNil := b.storage[f.name] == nil
	if aNil != bNil {
		sc.report(path, fmt.Sprintf("presence differs: %v != %v", !aNil, !bNil))
		return false
	}
	if aNil {
		return true
	}
	if !sameKeySet(am, bm) {
		sc.report(path, fmt.Sprintf("keys differ: %s != %s", keyList(f.keyKind, am), keyList(f.keyKind, bm)))
		return false
	}
	equal := true
	keys := make([]any, 0, len(am))
	for k := range am {
		keys = append(keys, k)
	}
	sortKeys(f.keyKind, keys)
	for _, k := range keys {
		if !compareConfigValues(am[k], bm[k], sc) {
			equal = false
			if sc.shortcut {
				return false
			}
		}
	}
	return equal
}

func sameKeySet(a, b map[any]*Config) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func keyList(kind Kind, m map[any]*Config) string {
	keys := make([]any, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortKeys(kind, keys)
	return fmt.Sprintf("%v", keys)
}

// ConfigDict is a live view over a config-dict field's entries.
type ConfigDict struct {
	config *Config
	field  *ConfigDictField
}

func (d *ConfigDict) entries() map[any]*Config {
	return d.field.entries(d.config)
}

// Len returns the number of entries.
func (d *ConfigDict) Len() int {
	return len(d.entries())
}

// Keys returns the current keys in sorted order.
func (d *ConfigDict) Keys() []any {
	m := d.entries()
	keys := make([]any, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortKeys(d.field.keyKind, keys)
	return keys
}

// Contains reports whether an entry exists for key.
func (d *ConfigDict) Contains(key any) bool {
	ck, err := d.field.keyKind.coerce(key)
	if err != nil || ck == nil {
		return false
	}
	_, ok := d.entries()[ck]
	return ok
}

// Get returns the entry stored under key.
func (d *ConfigDict) Get(key any) (*Config, error) {
	ck, err := d.field.keyKind.coerce(key)
	if err != nil || ck == nil {
		return nil, newValidationError(d.field.typeName, d.config.fieldPath(d.field.name),
			"invalid key %v: %v", key, err)
	}
	e, ok := d.entries()[ck]
	if !ok {
		return nil, newValidationError(d.field.typeName, d.config.fieldPath(d.field.name),
			"no entry for key %v", ck)
	}
	return e, nil
}

// Set stores an entry under key. A *Schema creates fresh defaults, a
// *Config with the same schema as an existing entry merges into it, and a
// plain mapping applies field values over the entry. New entries record
// "added entry" in history, updates record "modified entry".
func (d *ConfigDict) Set(key, value any, opts ...SetOption) error {
	if err := d.config.checkFrozen(d.field.name); err != nil {
		return err
	}
	ck, err := d.field.keyKind.coerce(key)
	if err != nil || ck == nil {
		return newValidationError(d.field.typeName, d.config.fieldPath(d.field.name),
			"invalid key %v: %v", key, err)
	}
	m := d.entries()
	if m == nil {
		m = make(map[any]*Config)
		d.config.storage[d.field.name] = m
	}
	_, existed := m[ck]
	if err := d.field.makeEntry(d.config, m, ck, value, newSetOp("setitem", opts)); err != nil {
		return err
	}
	event := "added entry at key"
	if existed {
		event = "modified entry at key"
	}
	d.config.appendHistory(d.field.name,
		fmt.Sprintf("%s %s", event, keyRepr(ck)), newSetOp("setitem", opts))
	return nil
}

// Create ensures an entry exists under key and returns it, building fresh
// defaults when the key is new.
func (d *ConfigDict) Create(key any, opts ...SetOption) (*Config, error) {
	ck, err := d.field.keyKind.coerce(key)
	if err == nil && ck != nil {
		if e, ok := d.entries()[ck]; ok {
			return e, nil
		}
	}
	if err := d.Set(key, d.field.schema, opts...); err != nil {
		return nil, err
	}
	return d.Get(key)
}

// Delete removes the entry under key. Deleting a missing key is an error.
func (d *ConfigDict) Delete(key any, opts ...SetOption) error {
	if err := d.config.checkFrozen(d.field.name); err != nil {
		return err
	}
	ck, err := d.field.keyKind.coerce(key)
	if err != nil || ck == nil {
		return newValidationError(d.field.typeName, d.config.fieldPath(d.field.name),
			"invalid key %v: %v", key, err)
	}
	m := d.entries()
	if _, ok := m[ck]; !ok {
		return newValidationError(d.field.typeName, d.config.fieldPath(d.field.name),
			"no entry for key %v", ck)
	}
	delete(m, ck)
	d.config.appendHistory(d.field.name,
		fmt.Sprintf("removed entry at key %s", keyRepr(ck)), newSetOp("delitem", opts))
	return nil
}
