package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Factory builds whatever a registry entry ultimately produces, from a
// validated config conforming to the entry's schema. Extra arguments are
// whatever the applying caller passed, forwarded verbatim.
type Factory func(cfg *Config, args ...any) (any, error)

// RegistryEntry is one named item in a Registry.
type RegistryEntry struct {
	Name    string
	Schema  *Schema
	Factory Factory
}

// Registry is a concurrency-safe catalog of named entries, each pairing a
// schema with an optional factory. Registration is append-only: names are
// never removed, so a name that resolved once keeps resolving for the life
// of the process. Replace swaps an existing entry's schema or factory but
// cannot retire the name.
//
// The append-only rule is what lets fields validate registry-backed defaults
// once, at declaration time, and trust them afterwards.
type Registry struct {
	name      string
	base      *Schema
	admission func(RegistryEntry) error
	logger    zerolog.Logger

	mu      sync.RWMutex
	entries map[string]RegistryEntry
}

// RegistryOption adjusts a registry at construction time.
type RegistryOption func(*Registry)

// WithAdmission installs a gate run against every candidate entry before it
// is admitted. A non-nil error rejects the registration, and Replace runs
// the same gate against the replacement.
func WithAdmission(check func(RegistryEntry) error) RegistryOption {
	return func(r *Registry) { r.admission = check }
}

// WithBase restricts the registry to schemas deriving from base. The
// restriction runs before any WithAdmission gate.
func WithBase(base *Schema) RegistryOption {
	return func(r *Registry) { r.base = base }
}

// WithRegistryLogger routes registration events to the given logger at
// debug level. Registries are silent by default.
func WithRegistryLogger(logger zerolog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates an empty registry. The name appears in error messages.
func NewRegistry(name string, opts ...RegistryOption) *Registry {
	r := &Registry{
		name:    name,
		logger:  zerolog.Nop(),
		entries: make(map[string]RegistryEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the registry's name.
func (r *Registry) Name() string {
	return r.name
}

// Base returns the schema every entry must derive from, or nil when the
// registry is unrestricted.
func (r *Registry) Base() *Schema {
	return r.base
}

func (r *Registry) admit(entry RegistryEntry) error {
	if r.base != nil && !entry.Schema.DerivesFrom(r.base) {
		return newSchemaError("", "", "registry %s: entry %q schema %s does not derive from %s",
			r.name, entry.Name, entry.Schema.name, r.base.name)
	}
	if r.admission != nil {
		if err := r.admission(entry); err != nil {
			return fmt.Errorf("registry %s: entry %q rejected: %w", r.name, entry.Name, err)
		}
	}
	return nil
}

// Register adds a new entry. Registering a name twice fails with
// AlreadyRegisteredError; use Replace to change an existing entry.
func (r *Registry) Register(name string, schema *Schema, factory Factory) error {
	if name == "" {
		return newSchemaError("", "", "registry %s: entry name must not be empty", r.name)
	}
	if schema == nil {
		return newSchemaError("", "", "registry %s: entry %q must carry a schema", r.name, name)
	}
	entry := RegistryEntry{Name: name, Schema: schema, Factory: factory}
	if err := r.admit(entry); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return &AlreadyRegisteredError{Registry: r.name, Name: name}
	}
	r.entries[name] = entry
	r.logger.Debug().
		Str("registry", r.name).
		Str("entry", name).
		Str("schema", schema.name).
		Msg("Registered entry")
	return nil
}

// MustRegister is Register that panics on error, for package-init
// registration blocks.
func (r *Registry) MustRegister(name string, schema *Schema, factory Factory) {
	if err := r.Register(name, schema, factory); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

// Replace swaps the schema and factory of an existing entry. The name must
// already be registered, and the replacement passes the same admission
// checks as a fresh registration.
func (r *Registry) Replace(name string, schema *Schema, factory Factory) error {
	if schema == nil {
		return newSchemaError("", "", "registry %s: entry %q must carry a schema", r.name, name)
	}
	entry := RegistryEntry{Name: name, Schema: schema, Factory: factory}
	if err := r.admit(entry); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return newSchemaError("", "", "registry %s: cannot replace unregistered entry %q", r.name, name)
	}
	r.entries[name] = entry
	r.logger.Debug().
		Str("registry", r.name).
		Str("entry", name).
		Str("schema", schema.name).
		Msg("Replaced entry")
	return nil
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns a point-in-time copy of every entry, sorted by name.
func (r *Registry) Snapshot() []RegistryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Schemas returns a point-in-time copy of the name-to-schema mapping.
func (r *Registry) Schemas() map[string]*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Schema, len(r.entries))
	for n, e := range r.entries {
		out[n] = e.Schema
	}
	return out
}
