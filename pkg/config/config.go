package config

import (
	"fmt"
	"sort"

	"github.com/openfroyo/parfait/pkg/provenance"
)

// Config is one instance of a schema: a named bag of field-backed values with
// a per-field mutation history and a terminal frozen state. Instances are
// created by New; nested instances are created and owned by their parent's
// field slots and are never shared between two parents.
//
// A Config is not safe for concurrent mutation. Read-only operations (Get,
// Validate, ToDict, Compare, Save) may run concurrently against a quiescent
// instance; see the package documentation.
type Config struct {
	schema  *Schema
	name    string
	storage map[string]any
	history map[string][]HistoryEntry
	frozen  bool
}

type newOptions struct {
	name      string
	origin    provenance.Origin
	overrides []override
}

type override struct {
	name  string
	value any
}

// NewOption customizes construction of a Config.
type NewOption func(*newOptions)

// WithName sets the instance's dotted-path name. Nested instances are renamed
// by their parent regardless; the name matters for root configs, where it
// prefixes every path reported in errors and history.
func WithName(name string) NewOption {
	return func(o *newOptions) {
		o.name = name
	}
}

// WithOrigin records the given origin for every override applied during
// construction.
func WithOrigin(origin provenance.Origin) NewOption {
	return func(o *newOptions) {
		o.origin = origin
	}
}

// WithOverride sets a field during construction. Overrides are applied in
// option order through the normal assignment path, so each one is validated
// and recorded in history with the label "assignment".
func WithOverride(name string, value any) NewOption {
	return func(o *newOptions) {
		o.overrides = append(o.overrides, override{name: name, value: value})
	}
}

// New creates a Config from a schema. Field defaults seed storage silently;
// only overrides, later mutations, and lazy default materializations appear
// in history.
func New(s *Schema, opts ...NewOption) (*Config, error) {
	if s == nil {
		return nil, newSchemaError("", "", "cannot instantiate a nil schema")
	}
	var no newOptions
	for _, o := range opts {
		o(&no)
	}
	c := newConfig(s)
	if no.name != "" {
		c.rename(no.name)
	}
	for _, ov := range no.overrides {
		if err := c.Set(ov.name, ov.value, WithSetOrigin(no.origin)); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is New that panics on error.
func MustNew(s *Schema, opts ...NewOption) *Config {
	c, err := New(s, opts...)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return c
}

// newConfig builds an instance with pure defaults. It cannot fail: every
// fallible input was rejected when the schema was built.
func newConfig(s *Schema) *Config {
	c := &Config{
		schema:  s,
		storage: make(map[string]any, len(s.order)),
		history: make(map[string][]HistoryEntry),
	}
	for _, f := range s.Fields() {
		f.initialize(c)
	}
	return c
}

// Schema returns the schema the instance was built from.
func (c *Config) Schema() *Schema {
	return c.schema
}

// Name returns the instance's dotted-path name. Root configs default to "".
func (c *Config) Name() string {
	return c.name
}

// IsFrozen reports whether Freeze has been called.
func (c *Config) IsFrozen() bool {
	return c.frozen
}

// Fields returns the schema's fields in declaration order.
func (c *Config) Fields() []Field {
	return c.schema.Fields()
}

// displayName names the instance in errors about the config itself, falling
// back to the schema name for unnamed roots.
func (c *Config) displayName() string {
	if c.name != "" {
		return c.name
	}
	return c.schema.name
}

// fieldPath returns the fully qualified dotted path of a field.
func (c *Config) fieldPath(field string) string {
	if c.name == "" {
		return field
	}
	return c.name + "." + field
}

func (c *Config) checkFrozen(field string) error {
	if c.frozen {
		return &FrozenConfigError{Path: c.name, Field: field}
	}
	return nil
}

func (c *Config) field(name string) (Field, error) {
	f, ok := c.schema.fields[name]
	if !ok {
		return nil, &UnknownKeyError{
			Path:  c.displayName(),
			Key:   name,
			Known: c.schema.sortedFieldNames(),
		}
	}
	return f, nil
}

// Get returns a field's current value: the stored scalar for scalar fields,
// nil or a live *List / *Dict wrapper for container fields, the nested
// *Config for config fields (materializing the default on first access), and
// the *ConfigDict, *InstanceDict, or *ConfigurableInstance view for the
// remaining variants.
func (c *Config) Get(name string) (any, error) {
	f, err := c.field(name)
	if err != nil {
		return nil, err
	}
	return f.get(c)
}

// Set assigns a field through validation. The frozen check runs first; then
// the value is coerced and checked, storage is replaced, and exactly one
// history entry is appended with the label "assignment" unless overridden.
func (c *Config) Set(name string, value any, opts ...SetOption) error {
	return c.setField(name, value, newSetOp("assignment", opts))
}

func (c *Config) setField(name string, value any, op setOp) error {
	if err := c.checkFrozen(name); err != nil {
		return err
	}
	f, err := c.field(name)
	if err != nil {
		return err
	}
	return f.set(c, value, op)
}

// GetInt returns an int field's value. It errors when the value is nil; use
// Get to distinguish nil for optional fields.
func (c *Config) GetInt(name string) (int64, error) {
	v, err := c.Get(name)
	if err != nil {
		return 0, err
	}
	i, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("field %q of %s holds %T, not int64", name, c.displayName(), v)
	}
	return i, nil
}

// GetFloat returns a float field's value.
func (c *Config) GetFloat(name string) (float64, error) {
	v, err := c.Get(name)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q of %s holds %T, not float64", name, c.displayName(), v)
	}
	return f, nil
}

// GetString returns a string field's value.
func (c *Config) GetString(name string) (string, error) {
	v, err := c.Get(name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q of %s holds %T, not string", name, c.displayName(), v)
	}
	return s, nil
}

// GetBool returns a bool field's value.
func (c *Config) GetBool(name string) (bool, error) {
	v, err := c.Get(name)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("field %q of %s holds %T, not bool", name, c.displayName(), v)
	}
	return b, nil
}

// GetList returns the live wrapper for a list field, or nil when the list
// value is nil.
func (c *Config) GetList(name string) (*List, error) {
	v, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	l, ok := v.(*List)
	if !ok {
		return nil, fmt.Errorf("field %q of %s is not a list field", name, c.displayName())
	}
	return l, nil
}

// GetDict returns the live wrapper for a dict field, or nil when the dict
// value is nil.
func (c *Config) GetDict(name string) (*Dict, error) {
	v, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	d, ok := v.(*Dict)
	if !ok {
		return nil, fmt.Errorf("field %q of %s is not a dict field", name, c.displayName())
	}
	return d, nil
}

// GetConfig returns a nested config, materializing its default on first
// access.
func (c *Config) GetConfig(name string) (*Config, error) {
	v, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	nested, ok := v.(*Config)
	if !ok {
		return nil, fmt.Errorf("field %q of %s is not a config field", name, c.displayName())
	}
	return nested, nil
}

// GetConfigDict returns the view over a config-dict field, or nil when the
// field's value is nil.
func (c *Config) GetConfigDict(name string) (*ConfigDict, error) {
	v, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	d, ok := v.(*ConfigDict)
	if !ok {
		return nil, fmt.Errorf("field %q of %s is not a config dict field", name, c.displayName())
	}
	return d, nil
}

// GetChoice returns the instance-dict view over a choice or registry field.
func (c *Config) GetChoice(name string) (*InstanceDict, error) {
	v, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	d, ok := v.(*InstanceDict)
	if !ok {
		return nil, fmt.Errorf("field %q of %s is not a choice field", name, c.displayName())
	}
	return d, nil
}

// GetConfigurable returns the view over a configurable field.
func (c *Config) GetConfigurable(name string) (*ConfigurableInstance, error) {
	v, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	ci, ok := v.(*ConfigurableInstance)
	if !ok {
		return nil, fmt.Errorf("field %q of %s is not a configurable field", name, c.displayName())
	}
	return ci, nil
}

// Validate checks every field in declaration order and returns the first
// failure. Nested validation errors propagate unchanged, carrying the fully
// qualified dotted path from the root. Schema-level checks run last.
func (c *Config) Validate() error {
	for _, f := range c.schema.Fields() {
		if err := f.validate(c); err != nil {
			return err
		}
	}
	for _, check := range c.schema.checks {
		if err := check(c); err != nil {
			return err
		}
	}
	return nil
}

// Freeze makes the instance terminal: every later mutation fails with
// FrozenConfigError. Freezing recurses into nested configs, materializes
// lazy defaults so the frozen value is complete, and snapshots each choice
// field's universe so later registry changes cannot alter it. Freeze is
// idempotent.
func (c *Config) Freeze() {
	if c.frozen {
		return
	}
	c.frozen = true
	for _, f := range c.schema.Fields() {
		f.freeze(c)
	}
}

// ToDict renders the instance as plain nested data: scalars, []any,
// map[any]any, and map[string]any only. Lazy defaults are materialized on
// the way.
func (c *Config) ToDict() map[string]any {
	out := make(map[string]any, len(c.schema.order))
	for _, f := range c.schema.Fields() {
		out[f.Name()] = f.toDict(c)
	}
	return out
}

// ApplyDict assigns fields from a plain nested mapping, such as one produced
// by ToDict or decoded from YAML. Every assignment goes through the normal
// set path; the default history label is "loadDict". Keys not declared on the
// schema fail with UnknownKeyError.
func (c *Config) ApplyDict(values map[string]any, opts ...SetOption) error {
	return c.applyDict(values, newSetOp("loadDict", opts))
}

func (c *Config) applyDict(values map[string]any, op setOp) error {
	if err := c.checkFrozen(""); err != nil {
		return err
	}
	for k := range values {
		if _, ok := c.schema.fields[k]; !ok {
			return &UnknownKeyError{
				Path:  c.displayName(),
				Key:   k,
				Known: c.schema.sortedFieldNames(),
			}
		}
	}
	for _, f := range c.schema.Fields() {
		v, ok := values[f.Name()]
		if !ok {
			continue
		}
		if err := f.set(c, v, op); err != nil {
			return err
		}
	}
	return nil
}

// History returns a copy of a field's history log, oldest first. Entry values
// are plain-form snapshots taken when each mutation committed.
func (c *Config) History(name string) ([]HistoryEntry, error) {
	if _, err := c.field(name); err != nil {
		return nil, err
	}
	entries := c.history[name]
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (c *Config) appendHistory(field string, snapshot any, op setOp) {
	c.history[field] = append(c.history[field], HistoryEntry{
		Value:  plainCopy(snapshot),
		Origin: op.origin,
		Label:  op.label,
	})
}

// rename moves the instance to a new dotted path and pushes the prefix into
// every nested structure, so validation errors and saved assignments always
// carry fully qualified names.
func (c *Config) rename(name string) {
	c.name = name
	for _, f := range c.schema.Fields() {
		f.rename(c)
	}
}

// clone deep-copies the instance for ownership transfer into a field slot.
// Storage and history are copied; the clone is never frozen, because an
// assigned copy is a fresh mutable value regardless of its source.
func (c *Config) clone() *Config {
	out := &Config{
		schema:  c.schema,
		name:    c.name,
		storage: make(map[string]any, len(c.storage)),
		history: make(map[string][]HistoryEntry, len(c.history)),
	}
	for k, v := range c.storage {
		out.storage[k] = cloneStorageValue(v)
	}
	for k, entries := range c.history {
		cp := make([]HistoryEntry, len(entries))
		copy(cp, entries)
		out.history[k] = cp
	}
	return out
}

func cloneStorageValue(v any) any {
	switch t := v.(type) {
	case *Config:
		return t.clone()
	case []any:
		return plainCopy(t)
	case map[any]any:
		return plainCopy(t)
	case map[any]*Config:
		out := make(map[any]*Config, len(t))
		for k, e := range t {
			out[k] = e.clone()
		}
		return out
	case *choiceState:
		return t.clone()
	case *configurableState:
		return t.clone()
	default:
		return v
	}
}

// updateFrom merges another instance of the same schema field by field
// through the set path, preserving this instance's identity and history.
// Fields are read through get, so each set sees the view it accepts: the
// live wrapper for containers, the nested instance for config fields.
func (c *Config) updateFrom(src *Config, op setOp) error {
	for _, f := range src.schema.Fields() {
		v, err := f.get(src)
		if err != nil {
			return err
		}
		if err := f.set(c, v, op); err != nil {
			return err
		}
	}
	return nil
}

func sortedStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
