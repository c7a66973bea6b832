package config

import (
	"github.com/openfroyo/parfait/pkg/provenance"
)

// ConfigFieldSpec declares a ConfigField. Default, when set, supplies the
// instance cloned on first access instead of the schema's pure defaults.
type ConfigFieldSpec struct {
	Doc        string
	Default    *Config
	Check      CheckFunc
	Deprecated string
	Source     provenance.Origin
}

// ConfigField embeds one config inside another. The nested instance is
// created lazily on first access and owned by the parent; it can never be
// nil. Assigning a *Schema resets the slot to that schema's defaults, while
// assigning a *Config merges its values into the existing instance without
// replacing it, so accumulated history survives.
type ConfigField struct {
	fieldBase
	schema *Schema
	def    *Config
	check  CheckFunc
}

// NewConfigField declares a nested config conforming to schema.
func NewConfigField(schema *Schema, spec ConfigFieldSpec) *ConfigField {
	f := &ConfigField{
		fieldBase: fieldBase{
			doc:        spec.Doc,
			typeName:   "ConfigField",
			optional:   false,
			deprecated: spec.Deprecated,
			source:     spec.Source,
		},
		schema: schema,
		check:  spec.Check,
	}
	if schema == nil {
		f.fail("schema must not be nil")
		return f
	}
	if spec.Default != nil {
		if !spec.Default.schema.DerivesFrom(schema) {
			f.fail("default instance has schema %s, which does not derive from %s",
				spec.Default.schema.name, schema.name)
		} else {
			f.def = spec.Default.clone()
		}
	}
	return f
}

// Schema returns the declared nested schema.
func (f *ConfigField) Schema() *Schema {
	return f.schema
}

func (f *ConfigField) initialize(c *Config) {
	c.storage[f.name] = nil
}

// materialize returns the nested instance, creating it on first access and
// recording the creation in history under the label "default".
func (f *ConfigField) materialize(c *Config) *Config {
	if v, ok := c.storage[f.name].(*Config); ok && v != nil {
		return v
	}
	var inst *Config
	if f.def != nil {
		inst = f.def.clone()
	} else {
		inst = newConfig(f.schema)
	}
	inst.rename(c.fieldPath(f.name))
	c.storage[f.name] = inst
	c.appendHistory(f.name, inst.ToDict(), setOp{label: "default"})
	return inst
}

func (f *ConfigField) get(c *Config) (any, error) {
	return f.materialize(c), nil
}

func (f *ConfigField) set(c *Config, value any, op setOp) error {
	if err := c.checkFrozen(f.name); err != nil {
		return err
	}
	path := c.fieldPath(f.name)
	switch v := value.(type) {
	case *Schema:
		if v == nil || !v.DerivesFrom(f.schema) {
			return newValidationError(f.typeName, path,
				"value must be a schema deriving from %s", f.schema.name)
		}
		return f.assign(c, newConfig(v), op)
	case *Config:
		if v == nil || !v.schema.DerivesFrom(f.schema) {
			return newValidationError(f.typeName, path,
				"value must be a config whose schema derives from %s", f.schema.name)
		}
		return f.assign(c, v, op)
	default:
		return newValidationError(f.typeName, path,
			"value must be a *Schema or *Config, got %T", value)
	}
}

// assign merges src into the slot. The existing instance keeps its identity
// when the schemas match; a schema change replaces the instance outright.
func (f *ConfigField) assign(c *Config, src *Config, op setOp) error {
	path := c.fieldPath(f.name)
	cur, _ := c.storage[f.name].(*Config)
	if cur == nil || cur.schema != src.schema {
		repl := src.clone()
		repl.rename(path)
		c.storage[f.name] = repl
		c.appendHistory(f.name, repl.ToDict(), op)
		return nil
	}
	if err := cur.updateFrom(src, op); err != nil {
		return err
	}
	c.appendHistory(f.name, cur.ToDict(), op)
	return nil
}

func (f *ConfigField) validate(c *Config) error {
	inst := f.materialize(c)
	if err := inst.Validate(); err != nil {
		return err
	}
	if f.check != nil {
		if err := f.check(inst); err != nil {
			return newValidationError(f.typeName, c.fieldPath(f.name), "%v", err)
		}
	}
	return nil
}

func (f *ConfigField) rename(c *Config) {
	if inst, ok := c.storage[f.name].(*Config); ok && inst != nil {
		inst.rename(c.fieldPath(f.name))
	}
}

func (f *ConfigField) freeze(c *Config) {
	f.materialize(c).Freeze()
}

func (f *ConfigField) toDict(c *Config) any {
	return f.materialize(c).ToDict()
}

func (f *ConfigField) save(w *scriptWriter, c *Config, prefix string) error {
	inst := f.materialize(c)
	childPrefix := prefix + "." + f.name
	for _, nf := range inst.schema.Fields() {
		if err := nf.save(w, inst, childPrefix); err != nil {
			return err
		}
	}
	return nil
}

func (f *ConfigField) compare(a, b *Config, sc *compareScope) bool {
	return compareConfigValues(f.materialize(a), f.materialize(b), sc)
}
