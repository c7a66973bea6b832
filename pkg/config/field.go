package config

import (
	"regexp"

	"github.com/openfroyo/parfait/pkg/provenance"
)

// CheckFunc is a caller-supplied predicate applied to a candidate value. It
// runs both on assignment and during Validate; returning an error rejects the
// value. The value is passed in its storage form (int64, float64, string,
// bool, or a *Config for nested fields).
type CheckFunc func(value any) error

// Field is the schema-level description of one named slot on a Config. A
// Field instance is shared by every Config built from schemas that declare
// it; it holds no per-instance state. The variant set is closed: only this
// package implements Field.
type Field interface {
	// Name returns the attribute name the field was bound to at declaration.
	Name() string

	// Doc returns the field's documentation string.
	Doc() string

	// TypeName returns the variant name, e.g. "IntField" or "ListField".
	TypeName() string

	// Optional reports whether a nil value passes Validate.
	Optional() bool

	// Deprecated returns the deprecation notice, or "" when the field is
	// not deprecated.
	Deprecated() string

	// Source returns the origin recorded at field declaration.
	Source() provenance.Origin

	bind(name string) error
	declarationError() error
	initialize(c *Config)
	get(c *Config) (any, error)
	set(c *Config, value any, op setOp) error
	validate(c *Config) error
	rename(c *Config)
	freeze(c *Config)
	toDict(c *Config) any
	save(w *scriptWriter, c *Config, prefix string) error
	compare(a, b *Config, sc *compareScope) bool
}

// setOp carries the provenance of one mutation through the set path.
type setOp struct {
	origin provenance.Origin
	label  string
}

// SetOption customizes the provenance recorded for a mutation.
type SetOption func(*setOp)

// WithSetOrigin records the given origin in the mutation's history entry.
func WithSetOrigin(o provenance.Origin) SetOption {
	return func(op *setOp) {
		op.origin = o
	}
}

// WithLabel overrides the history label recorded for a mutation. Labels are
// free text; the library itself uses "assignment", "default", "load",
// "loadDict", and "retarget".
func WithLabel(label string) SetOption {
	return func(op *setOp) {
		op.label = label
	}
}

func newSetOp(label string, opts []SetOption) setOp {
	op := setOp{label: label}
	for _, o := range opts {
		o(&op)
	}
	return op
}

// FieldSpec declares a scalar field. The zero value of every member is a
// usable default: no doc, nil default, required, no check.
type FieldSpec struct {
	// Doc documents the field for schema introspection.
	Doc string

	// Default is the initial value, or nil for none. It must coerce to the
	// field's kind or Build fails.
	Default any

	// Optional permits a nil value to pass Validate.
	Optional bool

	// Check is an extra predicate run on assignment and during Validate.
	Check CheckFunc

	// Deprecated marks the field as deprecated with the given notice.
	Deprecated string

	// Source records where the field was declared, for diagnostics.
	Source provenance.Origin
}

// fieldBase carries the metadata shared by every field variant.
type fieldBase struct {
	name       string
	doc        string
	typeName   string
	optional   bool
	deprecated string
	source     provenance.Origin
	declErr    error
}

func (f *fieldBase) Name() string               { return f.name }
func (f *fieldBase) Doc() string                { return f.doc }
func (f *fieldBase) TypeName() string           { return f.typeName }
func (f *fieldBase) Optional() bool             { return f.optional }
func (f *fieldBase) Deprecated() string         { return f.deprecated }
func (f *fieldBase) Source() provenance.Origin  { return f.source }
func (f *fieldBase) declarationError() error    { return f.declErr }

// bind fixes the field's attribute name. Binding is one-shot: rebinding to
// the same name is a no-op (schemas share inherited fields), rebinding to a
// different name is a declaration error.
func (f *fieldBase) bind(name string) error {
	if f.name != "" && f.name != name {
		return newSchemaError("", name, "field is already bound as %q", f.name)
	}
	f.name = name
	return nil
}

// fail records a declaration error on the field. The first failure wins;
// Build attaches the field and schema names before reporting it.
func (f *fieldBase) fail(format string, args ...any) {
	if f.declErr == nil {
		f.declErr = newSchemaError("", "", f.typeName+": "+format, args...)
	}
}

var fieldNameRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ScalarField is a Field holding one scalar value of a fixed Kind. Construct
// it with NewIntField, NewFloatField, NewStringField, or NewBoolField.
type ScalarField struct {
	fieldBase
	kind  Kind
	def   any
	check CheckFunc
}

// NewIntField declares a scalar field storing int64.
func NewIntField(spec FieldSpec) *ScalarField {
	return newScalarField(Int, "IntField", spec)
}

// NewFloatField declares a scalar field storing float64.
func NewFloatField(spec FieldSpec) *ScalarField {
	return newScalarField(Float, "FloatField", spec)
}

// NewStringField declares a scalar field storing string.
func NewStringField(spec FieldSpec) *ScalarField {
	return newScalarField(String, "StringField", spec)
}

// NewBoolField declares a scalar field storing bool.
func NewBoolField(spec FieldSpec) *ScalarField {
	return newScalarField(Bool, "BoolField", spec)
}

func newScalarField(kind Kind, typeName string, spec FieldSpec) *ScalarField {
	f := &ScalarField{
		fieldBase: fieldBase{
			doc:        spec.Doc,
			typeName:   typeName,
			optional:   spec.Optional,
			deprecated: spec.Deprecated,
			source:     spec.Source,
		},
		kind:  kind,
		check: spec.Check,
	}
	def, err := kind.coerce(spec.Default)
	if err != nil {
		f.fail("invalid default: %v", err)
		return f
	}
	f.def = def
	return f
}

// Kind returns the field's declared value kind.
func (f *ScalarField) Kind() Kind {
	return f.kind
}

// Default returns the field's declared default in storage form.
func (f *ScalarField) Default() any {
	return f.def
}

func (f *ScalarField) initialize(c *Config) {
	c.storage[f.name] = f.def
}

func (f *ScalarField) get(c *Config) (any, error) {
	return c.storage[f.name], nil
}

func (f *ScalarField) set(c *Config, raw any, op setOp) error {
	if err := c.checkFrozen(f.name); err != nil {
		return err
	}
	v, err := f.kind.coerce(raw)
	if err != nil {
		return newValidationError(f.typeName, c.fieldPath(f.name), "%v", err)
	}
	if v != nil && f.check != nil {
		if err := f.check(v); err != nil {
			return newValidationError(f.typeName, c.fieldPath(f.name), "%v", err)
		}
	}
	c.storage[f.name] = v
	c.appendHistory(f.name, v, op)
	return nil
}

func (f *ScalarField) validate(c *Config) error {
	v := c.storage[f.name]
	if v == nil {
		if f.optional {
			return nil
		}
		return newValidationError(f.typeName, c.fieldPath(f.name), "required value cannot be nil")
	}
	if f.check != nil {
		if err := f.check(v); err != nil {
			return newValidationError(f.typeName, c.fieldPath(f.name), "%v", err)
		}
	}
	return nil
}

func (f *ScalarField) rename(c *Config) {}

func (f *ScalarField) freeze(c *Config) {}

func (f *ScalarField) toDict(c *Config) any {
	return c.storage[f.name]
}

func (f *ScalarField) save(w *scriptWriter, c *Config, prefix string) error {
	return w.assign(prefix+"."+f.name, c.storage[f.name])
}

func (f *ScalarField) compare(a, b *Config, sc *compareScope) bool {
	return sc.compareValues(a.fieldPath(f.name), a.storage[f.name], b.storage[f.name])
}
