package config

import (
	"fmt"

	"github.com/openfroyo/parfait/pkg/provenance"
)

// reserved method names on the saved-script form of a configurable field.
// A target schema declaring one of these would make that field unaddressable
// in scripts, so declaration rejects them.
var reservedConfigurableNames = []string{"apply", "retarget", "target"}

// ConfigurableSpec declares a ConfigurableField. Registry, when set, lets
// Retarget resolve targets by name, which is also how saved scripts restore
// a retargeted field.
type ConfigurableSpec struct {
	Doc        string
	Registry   *Registry
	Check      CheckFunc
	Deprecated string
	Source     provenance.Origin
}

// ConfigurableField binds a buildable target and the config it consumes.
// Unlike a choice field there is no universe to select from: the field
// always has exactly one target, materialized eagerly, and Retarget swaps
// it for another. Field values survive a retarget between targets sharing
// a schema and reset to the new defaults otherwise.
type ConfigurableField struct {
	fieldBase
	target   RegistryEntry
	registry *Registry
	check    CheckFunc
}

// NewConfigurableField declares a configurable bound to the given target.
// Anonymous targets (empty Name) work until the config must be saved; a
// retargeted field can only be written out when its target has a name to
// restore it by.
func NewConfigurableField(target RegistryEntry, spec ConfigurableSpec) *ConfigurableField {
	f := &ConfigurableField{
		fieldBase: fieldBase{
			doc:        spec.Doc,
			typeName:   "ConfigurableField",
			optional:   false,
			deprecated: spec.Deprecated,
			source:     spec.Source,
		},
		target:   target,
		registry: spec.Registry,
		check:    spec.Check,
	}
	if target.Schema == nil {
		f.fail("target must carry a schema")
		return f
	}
	for _, reserved := range reservedConfigurableNames {
		if _, ok := target.Schema.Field(reserved); ok {
			f.fail("target schema %s declares reserved field name %q", target.Schema.name, reserved)
			return f
		}
	}
	return f
}

// Target returns the declared target.
func (f *ConfigurableField) Target() RegistryEntry {
	return f.target
}

// Registry returns the registry used to resolve retarget names, or nil.
func (f *ConfigurableField) Registry() *Registry {
	return f.registry
}

func (f *ConfigurableField) state(c *Config) *configurableState {
	return c.storage[f.name].(*configurableState)
}

func (f *ConfigurableField) initialize(c *Config) {
	value := newConfig(f.target.Schema)
	value.rename(c.fieldPath(f.name))
	c.storage[f.name] = &configurableState{target: f.target, value: value}
}

func (f *ConfigurableField) get(c *Config) (any, error) {
	return &ConfigurableInstance{config: c, field: f}, nil
}

func (f *ConfigurableField) set(c *Config, value any, op setOp) error {
	if err := c.checkFrozen(f.name); err != nil {
		return err
	}
	st := f.state(c)
	path := c.fieldPath(f.name)
	switch v := value.(type) {
	case *Schema:
		if v == nil || !v.DerivesFrom(st.target.Schema) {
			return newValidationError(f.typeName, path,
				"value must be a schema deriving from %s", st.target.Schema.name)
		}
		if err := st.value.updateFrom(newConfig(v), op); err != nil {
			return err
		}
	case *Config:
		if v == nil || !v.schema.DerivesFrom(st.target.Schema) {
			return newValidationError(f.typeName, path,
				"value must be a config whose schema derives from %s", st.target.Schema.name)
		}
		if err := st.value.updateFrom(v, op); err != nil {
			return err
		}
	case *ConfigurableInstance:
		src := v.state()
		f.retargetState(c, st, src.target, src.retargeted)
		if err := st.value.updateFrom(src.value, op); err != nil {
			return err
		}
	default:
		if plain, ok := anyMap(value); ok {
			sm := make(map[string]any, len(plain))
			for pk, pv := range plain {
				ks, ok := pk.(string)
				if !ok {
					return newValidationError(f.typeName, path,
						"field names must be strings, got %T", pk)
				}
				sm[ks] = pv
			}
			if err := st.value.applyDict(sm, op); err != nil {
				return err
			}
		} else {
			return newValidationError(f.typeName, path,
				"value must be a *Schema, *Config, *ConfigurableInstance, or mapping, got %T", value)
		}
	}
	c.appendHistory(f.name, st.value.ToDict(), op)
	return nil
}

// retargetState swaps the state's target. The value carries over untouched
// when the new target shares the old one's schema and is rebuilt from the
// new schema's defaults otherwise.
func (f *ConfigurableField) retargetState(c *Config, st *configurableState, target RegistryEntry, retargeted bool) {
	sameSchema := target.Schema == st.target.Schema
	st.target = target
	st.retargeted = retargeted
	if sameSchema {
		return
	}
	value := newConfig(target.Schema)
	value.rename(c.fieldPath(f.name))
	st.value = value
}

func (f *ConfigurableField) validate(c *Config) error {
	st := f.state(c)
	if err := st.value.Validate(); err != nil {
		return err
	}
	if f.check != nil {
		if err := f.check(st.value); err != nil {
			return newValidationError(f.typeName, c.fieldPath(f.name), "%v", err)
		}
	}
	return nil
}

func (f *ConfigurableField) rename(c *Config) {
	f.state(c).value.rename(c.fieldPath(f.name))
}

func (f *ConfigurableField) freeze(c *Config) {
	f.state(c).value.Freeze()
}

func (f *ConfigurableField) toDict(c *Config) any {
	return f.state(c).value.ToDict()
}

func (f *ConfigurableField) save(w *scriptWriter, c *Config, prefix string) error {
	st := f.state(c)
	lhs := prefix + "." + f.name
	if st.retargeted {
		if st.target.Name == "" {
			return fmt.Errorf("cannot save %s: retargeted to an unnamed target", c.fieldPath(f.name))
		}
		if err := w.line(fmt.Sprintf("%s.retarget(%s)", lhs, keyRepr(st.target.Name))); err != nil {
			return err
		}
	}
	for _, nf := range st.value.schema.Fields() {
		if err := nf.save(w, st.value, lhs); err != nil {
			return err
		}
	}
	return nil
}

func (f *ConfigurableField) compare(a, b *Config, sc *compareScope) bool {
	path := a.fieldPath(f.name)
	aSt, bSt := f.state(a), f.state(b)
	if aSt.target.Name != bSt.target.Name || aSt.target.Schema != bSt.target.Schema {
		sc.report(path, fmt.Sprintf("target differs: %s != %s",
			targetLabel(aSt.target), targetLabel(bSt.target)))
		return false
	}
	return compareConfigValues(aSt.value, bSt.value, sc)
}

func targetLabel(t RegistryEntry) string {
	if t.Name != "" {
		return t.Name
	}
	if t.Schema != nil {
		return fmt.Sprintf("<anonymous %s>", t.Schema.name)
	}
	return "<anonymous>"
}

// configurableState is a configurable field's per-instance storage: the
// bound target, its eagerly built value, and whether the target has been
// swapped since construction.
type configurableState struct {
	target     RegistryEntry
	value      *Config
	retargeted bool
}

func (st *configurableState) clone() *configurableState {
	return &configurableState{
		target:     st.target,
		value:      st.value.clone(),
		retargeted: st.retargeted,
	}
}

// ConfigurableInstance is the live view over a configurable field.
type ConfigurableInstance struct {
	config *Config
	field  *ConfigurableField
}

func (ci *ConfigurableInstance) state() *configurableState {
	return ci.field.state(ci.config)
}

// Target returns the currently bound target.
func (ci *ConfigurableInstance) Target() RegistryEntry {
	return ci.state().target
}

// Retargeted reports whether the target has been swapped since construction.
func (ci *ConfigurableInstance) Retargeted() bool {
	return ci.state().retargeted
}

// Config returns the target's config value.
func (ci *ConfigurableInstance) Config() *Config {
	return ci.state().value
}

// Retarget swaps the bound target. Field values carry over when the new
// target shares the current schema; a target with a different schema resets
// the value to its defaults. History records the event under the label
// "retarget".
func (ci *ConfigurableInstance) Retarget(target RegistryEntry, opts ...SetOption) error {
	if err := ci.config.checkFrozen(ci.field.name); err != nil {
		return err
	}
	if target.Schema == nil {
		return newValidationError(ci.field.typeName,
			ci.config.fieldPath(ci.field.name), "target must carry a schema")
	}
	for _, reserved := range reservedConfigurableNames {
		if _, ok := target.Schema.Field(reserved); ok {
			return newValidationError(ci.field.typeName, ci.config.fieldPath(ci.field.name),
				"target schema %s declares reserved field name %q", target.Schema.name, reserved)
		}
	}
	st := ci.state()
	ci.field.retargetState(ci.config, st, target, true)
	ci.config.appendHistory(ci.field.name, targetLabel(target), newSetOp("retarget", opts))
	return nil
}

// RetargetName swaps the target to a registry entry resolved by name.
func (ci *ConfigurableInstance) RetargetName(name string, opts ...SetOption) error {
	r := ci.field.registry
	if r == nil {
		return newValidationError(ci.field.typeName, ci.config.fieldPath(ci.field.name),
			"field has no registry to resolve target names")
	}
	entry, ok := r.Get(name)
	if !ok {
		return &UnknownKeyError{
			Path:  ci.config.fieldPath(ci.field.name),
			Key:   name,
			Known: r.Names(),
		}
	}
	return ci.Retarget(entry, opts...)
}

// Apply builds the target's product by running its factory against the
// field's config value. Extra arguments pass through to the factory as
// given.
func (ci *ConfigurableInstance) Apply(args ...any) (any, error) {
	st := ci.state()
	if st.target.Factory == nil {
		return nil, newValidationError(ci.field.typeName,
			ci.config.fieldPath(ci.field.name), "target %s has no factory", targetLabel(st.target))
	}
	return st.target.Factory(st.value, args...)
}
