package config

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaDeclarationError reports an invalid field or schema declaration, such
// as an unsupported value kind, a default of the wrong type, or conflicting
// length constraints. Declaration errors are collected while a schema is being
// built and surface from SchemaBuilder.Build; they are programming errors and
// are never recoverable at runtime.
type SchemaDeclarationError struct {
	// Schema is the name of the schema being built, when known.
	Schema string

	// Field is the field name involved, when known.
	Field string

	// Reason is the human-readable cause.
	Reason string
}

// Error implements the error interface.
func (e *SchemaDeclarationError) Error() string {
	switch {
	case e.Schema != "" && e.Field != "":
		return fmt.Sprintf("schema %s: field %s: %s", e.Schema, e.Field, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("field %s: %s", e.Field, e.Reason)
	case e.Schema != "":
		return fmt.Sprintf("schema %s: %s", e.Schema, e.Reason)
	default:
		return e.Reason
	}
}

func newSchemaError(schema, field, format string, args ...any) *SchemaDeclarationError {
	return &SchemaDeclarationError{
		Schema: schema,
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

// FieldValidationError reports a value rejected by a field, either at
// assignment time or during Validate. It carries the field's type name and
// the fully qualified dotted path from the root config.
type FieldValidationError struct {
	// FieldType is the rejecting field's type name, e.g. "IntField".
	FieldType string

	// Path is the fully qualified dotted path of the field.
	Path string

	// Reason is the human-readable cause.
	Reason string
}

// Error implements the error interface.
func (e *FieldValidationError) Error() string {
	return fmt.Sprintf("%s %q failed validation: %s", e.FieldType, e.Path, e.Reason)
}

func newValidationError(fieldType, path, format string, args ...any) *FieldValidationError {
	return &FieldValidationError{
		FieldType: fieldType,
		Path:      path,
		Reason:    fmt.Sprintf(format, args...),
	}
}

// FrozenConfigError reports a mutation attempted on a frozen Config. The
// frozen check is the first guard in every mutating operation, so a frozen
// config is returned unchanged even when the attempted value was also invalid.
type FrozenConfigError struct {
	// Path is the dotted path of the config that is frozen.
	Path string

	// Field is the field being mutated, when the mutation targeted one.
	Field string
}

// Error implements the error interface.
func (e *FrozenConfigError) Error() string {
	path := e.Field
	if e.Path != "" {
		path = e.Path
		if e.Field != "" {
			path = e.Path + "." + e.Field
		}
	}
	return fmt.Sprintf("cannot modify a frozen config: %s", path)
}

// UnknownKeyError reports a lookup by a name outside the known universe: a
// field name not declared on a schema, a choice key absent from the typemap,
// or a dict key that is not present. It is distinct from FieldValidationError
// because it indicates a schema-usage error rather than a bad value.
type UnknownKeyError struct {
	// Path is the dotted path of the config or field that was indexed.
	Path string

	// Key is the unknown key, formatted for display.
	Key string

	// Known lists the valid keys, sorted, when the universe is enumerable.
	Known []string
}

// Error implements the error interface.
func (e *UnknownKeyError) Error() string {
	if len(e.Known) > 0 {
		return fmt.Sprintf("unknown key %q for %s (known: %s)", e.Key, e.Path, strings.Join(e.Known, ", "))
	}
	return fmt.Sprintf("unknown key %q for %s", e.Key, e.Path)
}

// AlreadyRegisteredError reports a duplicate registration on a Registry
// without an explicit replace.
type AlreadyRegisteredError struct {
	// Registry is the name of the registry.
	Registry string

	// Name is the duplicated entry name.
	Name string
}

// Error implements the error interface.
func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("%q is already registered in %s (use Replace to override)", e.Name, e.Registry)
}

// IsSchemaDeclarationError returns true if the error is a schema declaration error.
func IsSchemaDeclarationError(err error) bool {
	var e *SchemaDeclarationError
	return errors.As(err, &e)
}

// IsFieldValidationError returns true if the error is a field validation error.
func IsFieldValidationError(err error) bool {
	var e *FieldValidationError
	return errors.As(err, &e)
}

// IsFrozenConfigError returns true if the error reports mutation of a frozen config.
func IsFrozenConfigError(err error) bool {
	var e *FrozenConfigError
	return errors.As(err, &e)
}

// IsUnknownKeyError returns true if the error reports an unknown key or field name.
func IsUnknownKeyError(err error) bool {
	var e *UnknownKeyError
	return errors.As(err, &e)
}

// IsAlreadyRegisteredError returns true if the error reports a duplicate registration.
func IsAlreadyRegisteredError(err error) bool {
	var e *AlreadyRegisteredError
	return errors.As(err, &e)
}
