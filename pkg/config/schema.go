package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Schema is the immutable, ordered field layout shared by every Config of one
// type. Build one with a SchemaBuilder; after Build a schema never changes.
type Schema struct {
	name    string
	fields  map[string]Field
	order   []string
	parents []*Schema
	checks  []func(*Config) error
}

// Name returns the schema's type name.
func (s *Schema) Name() string {
	return s.name
}

// Fields returns the schema's fields in declaration order: inherited fields
// first, then the schema's own additions.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.order))
	for i, name := range s.order {
		out[i] = s.fields[name]
	}
	return out
}

// FieldNames returns the field names in declaration order.
func (s *Schema) FieldNames() []string {
	return slices.Clone(s.order)
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// NumFields returns the number of declared fields.
func (s *Schema) NumFields() int {
	return len(s.order)
}

// DerivesFrom reports whether the schema is base itself or extends it,
// directly or through any chain of parents. Registries use this to enforce
// a base schema constraint on admission.
func (s *Schema) DerivesFrom(base *Schema) bool {
	if base == nil {
		return false
	}
	if s == base {
		return true
	}
	for _, p := range s.parents {
		if p.DerivesFrom(base) {
			return true
		}
	}
	return false
}

func (s *Schema) sortedFieldNames() []string {
	names := slices.Clone(s.order)
	sort.Strings(names)
	return names
}

// SchemaBuilder accumulates field declarations for one schema. Declaration
// problems are collected rather than returned call by call; they all surface
// from Build. A builder is single-use.
type SchemaBuilder struct {
	name    string
	fields  map[string]Field
	order   []string
	parents []*Schema
	checks  []func(*Config) error
	errs    []error
}

// NewSchemaBuilder starts a schema with the given type name.
func NewSchemaBuilder(name string) *SchemaBuilder {
	b := &SchemaBuilder{
		name:   name,
		fields: make(map[string]Field),
	}
	if name == "" {
		b.errs = append(b.errs, newSchemaError("", "", "schema name cannot be empty"))
	}
	return b
}

// Extend composes a parent schema into this one. Parent fields keep their
// declaration order and precede fields added afterwards; a later Add under an
// inherited name replaces the field in place without changing its position.
// Extending through multiple parents that share a common ancestor is fine:
// a field instance already present under the same name is skipped.
func (b *SchemaBuilder) Extend(parent *Schema) *SchemaBuilder {
	if parent == nil {
		b.errs = append(b.errs, newSchemaError(b.name, "", "cannot extend a nil schema"))
		return b
	}
	b.parents = append(b.parents, parent)
	for _, name := range parent.order {
		b.place(name, parent.fields[name])
	}
	b.checks = append(b.checks, parent.checks...)
	return b
}

// Add declares a field under the given name. The field becomes bound to that
// name; binding the same field instance under two different names is a
// declaration error.
func (b *SchemaBuilder) Add(name string, f Field) *SchemaBuilder {
	if f == nil {
		b.errs = append(b.errs, newSchemaError(b.name, name, "field cannot be nil"))
		return b
	}
	if !fieldNameRE.MatchString(name) {
		b.errs = append(b.errs, newSchemaError(b.name, name, "invalid field name"))
		return b
	}
	if err := b.bindField(name, f); err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.place(name, f)
	return b
}

// Check registers a schema-level predicate run by Validate after every field
// has validated, for constraints that span fields. Checks accumulate in
// declaration order; Extend inherits the parent's checks.
func (b *SchemaBuilder) Check(fn func(*Config) error) *SchemaBuilder {
	if fn == nil {
		b.errs = append(b.errs, newSchemaError(b.name, "", "schema check cannot be nil"))
		return b
	}
	b.checks = append(b.checks, fn)
	return b
}

func (b *SchemaBuilder) bindField(name string, f Field) error {
	if err := f.bind(name); err != nil {
		var sde *SchemaDeclarationError
		if errors.As(err, &sde) {
			cp := *sde
			cp.Schema = b.name
			return &cp
		}
		return err
	}
	return nil
}

func (b *SchemaBuilder) place(name string, f Field) {
	if existing, ok := b.fields[name]; ok {
		if existing == f {
			return
		}
		b.fields[name] = f
		return
	}
	b.fields[name] = f
	b.order = append(b.order, name)
}

// Build finalizes the schema. It returns every declaration error collected by
// the builder and by the field constructors, joined; on success the schema is
// immutable and safe to share.
func (b *SchemaBuilder) Build() (*Schema, error) {
	errs := slices.Clone(b.errs)
	for _, name := range b.order {
		if derr := b.fields[name].declarationError(); derr != nil {
			errs = append(errs, b.annotate(name, derr))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Schema{
		name:    b.name,
		fields:  maps.Clone(b.fields),
		order:   slices.Clone(b.order),
		parents: slices.Clone(b.parents),
		checks:  slices.Clone(b.checks),
	}, nil
}

// MustBuild is Build that panics on error, for schemas declared at package
// init where a declaration error is unrecoverable anyway.
func (b *SchemaBuilder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("config: invalid schema %s: %v", b.name, err))
	}
	return s
}

func (b *SchemaBuilder) annotate(field string, err error) error {
	var sde *SchemaDeclarationError
	if errors.As(err, &sde) {
		cp := *sde
		if cp.Field == "" {
			cp.Field = field
		}
		if cp.Schema == "" {
			cp.Schema = b.name
		}
		return &cp
	}
	return err
}
