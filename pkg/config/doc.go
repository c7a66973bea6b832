// Package config implements a declarative configuration framework built
// around typed, validated schemas with full per-field provenance.
//
// # Overview
//
// A Schema declares named, typed field slots; a Config is one instance of a
// schema, carrying a value and a mutation history for every field. All
// mutation goes through validated set paths, so a config can always say what
// each value is, where it came from, and why it was accepted. Once a config
// is frozen it becomes terminal: every further mutation fails, which pins
// down exactly what a consumer ran with.
//
// # Features
//
//   - Typed scalar fields (int, float, string, bool) with coercion,
//     optional-ness, and per-field check functions
//   - List and dict container fields with validated in-place edits
//   - Nested config fields, config dicts, and selection-based polymorphism
//     via choice and registry fields
//   - Configurable fields binding a buildable target to its config
//   - Per-field history: every mutation records a value snapshot, an origin,
//     and a label
//   - Freeze semantics: terminal instances that reject all writes
//   - Structural comparison with float tolerance and mismatch reporting
//   - Executable persistence: configs save to scripts of assignments that
//     replay through the same validated paths on load
//   - Plain-dict rendering and YAML interop for data-only consumers
//
// # Components
//
// SchemaBuilder: Declares schemas. Field declarations are validated when the
// schema builds, so a schema that exists is a schema whose defaults and
// constraints are coherent.
//
// Config: An instance. Created by New, mutated through Set and the container
// views, checked by Validate, pinned by Freeze.
//
// Registry: An append-only catalog of named entries pairing a schema with a
// factory. Backs RegistryField and resolves retarget names for
// ConfigurableField.
//
// Save and Load: The persistence pair. Save writes one assignment per field
// in declaration order; Load executes a script against a fresh instance and
// reproduces the saved values exactly.
//
// # Usage Example
//
//	schema := config.NewSchemaBuilder("server").
//		Add("host", config.NewStringField(config.FieldSpec{
//			Doc:     "bind address",
//			Default: "127.0.0.1",
//		})).
//		Add("port", config.NewIntField(config.FieldSpec{
//			Doc:     "listen port",
//			Default: 8080,
//			Check: func(v any) error {
//				if v.(int64) <= 0 {
//					return fmt.Errorf("port must be positive")
//				}
//				return nil
//			},
//		})).
//		MustBuild()
//
//	cfg := config.MustNew(schema)
//	if err := cfg.Set("port", 9090, config.WithSetOrigin(provenance.Here())); err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//	cfg.Freeze()
//
// # History and Provenance
//
// Defaults seed storage silently; everything after that is recorded. Each
// history entry carries a plain-form snapshot of the new value, the origin
// the caller supplied (see the provenance package), and a label naming the
// event: "assignment" for direct sets, "default" for lazy materialization,
// "load" for script execution, "loadDict" for plain-dict application,
// "retarget" for configurable target swaps, and operation names like
// "append" or "setitem" for container edits.
//
// # Error Handling
//
// Failures carry fully qualified dotted paths from the root instance:
//
//	FieldValidationError{
//	    FieldType: "IntField",
//	    Path:      "server.workers['batch'].threads",
//	    Reason:    "port must be positive",
//	}
//
// Declaration mistakes surface as SchemaDeclarationError when the schema
// builds, writes to frozen configs as FrozenConfigError, and unrecognized
// field or member names as UnknownKeyError listing the known names.
//
// # Thread Safety
//
// Registry is safe for concurrent use. Config instances are not safe for
// concurrent mutation; share them only after Freeze, or confine each
// instance to one goroutine.
package config
