package config

import (
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/openfroyo/parfait/pkg/provenance"
)

// ChoiceSpec declares a ConfigChoiceField or, through NewRegistryField, its
// registry-backed variant. Default names a selection: a string for
// single-selection fields, a string or slice of strings for multi.
type ChoiceSpec struct {
	Doc        string
	Default    any
	Optional   bool
	Multi      bool
	Deprecated string
	Source     provenance.Origin
}

// ConfigChoiceField selects between alternative sub-configs drawn from a
// universe of named schemas. Instances are created lazily per name, every
// instantiated member keeps its settings even while deselected, and the
// selection itself is part of the field's value. Multi-selection fields
// treat the selection as a set: duplicate names collapse and order is
// canonical.
//
// Freezing a config snapshots the field's universe by value, so entries
// added to a backing registry afterwards never appear in a frozen instance.
type ConfigChoiceField struct {
	fieldBase
	typemap  map[string]*Schema
	registry *Registry
	multi    bool
	defSel   []string
}

// NewConfigChoiceField declares a choice over a fixed universe of schemas.
func NewConfigChoiceField(typemap map[string]*Schema, spec ChoiceSpec) *ConfigChoiceField {
	f := &ConfigChoiceField{
		fieldBase: fieldBase{
			doc:        spec.Doc,
			typeName:   "ConfigChoiceField",
			optional:   spec.Optional,
			deprecated: spec.Deprecated,
			source:     spec.Source,
		},
		typemap: maps.Clone(typemap),
		multi:   spec.Multi,
	}
	if len(typemap) == 0 {
		f.fail("typemap must not be empty")
		return f
	}
	for name, s := range typemap {
		if name == "" {
			f.fail("typemap keys must not be empty")
			return f
		}
		if s == nil {
			f.fail("typemap entry %q must carry a schema", name)
			return f
		}
	}
	f.initDefault(spec.Default)
	return f
}

// initDefault parses and resolves the declared default selection. Callers
// that cannot resolve names yet (registries populated later) still get the
// check, because registries are append-only: a name resolvable here stays
// resolvable.
func (f *ConfigChoiceField) initDefault(def any) {
	names, err := f.selectionNames(def)
	if err != nil {
		f.fail("invalid default: %v", err)
		return
	}
	for _, n := range names {
		if _, ok := f.lookup(nil, n); !ok {
			f.fail("default selection %q is not a known key", n)
			return
		}
	}
	f.defSel = names
}

// Multi reports whether the field holds a set of selections.
func (f *ConfigChoiceField) Multi() bool {
	return f.multi
}

// Registry returns the backing registry, or nil for a fixed typemap.
func (f *ConfigChoiceField) Registry() *Registry {
	return f.registry
}

// selectionNames normalizes a selection value to its canonical form: nil for
// none, a one-element slice for single-selection fields, and a deduplicated
// sorted slice for multi.
func (f *ConfigChoiceField) selectionNames(value any) ([]string, error) {
	var names []string
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		names = []string{v}
	case []string:
		names = slices.Clone(v)
	case []any:
		names = make([]string, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("selection names must be strings, got %T", e)
			}
			names[i] = s
		}
	default:
		return nil, fmt.Errorf("expected a selection name or names, got %T", value)
	}
	for _, n := range names {
		if n == "" {
			return nil, fmt.Errorf("selection names must not be empty")
		}
	}
	if !f.multi {
		if len(names) != 1 {
			return nil, fmt.Errorf("single-selection field takes exactly one name, got %d", len(names))
		}
		return names, nil
	}
	sort.Strings(names)
	return slices.Compact(names), nil
}

// lookup resolves a member name to its schema, honoring a frozen snapshot
// when the state carries one.
func (f *ConfigChoiceField) lookup(st *choiceState, name string) (*Schema, bool) {
	if st != nil && st.universe != nil {
		s, ok := st.universe[name]
		return s, ok
	}
	if f.registry != nil {
		e, ok := f.registry.Get(name)
		if !ok {
			return nil, false
		}
		return e.Schema, true
	}
	s, ok := f.typemap[name]
	return s, ok
}

func (f *ConfigChoiceField) knownNames(st *choiceState) []string {
	var m map[string]*Schema
	switch {
	case st != nil && st.universe != nil:
		m = st.universe
	case f.registry != nil:
		return f.registry.Names()
	default:
		m = f.typemap
	}
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (f *ConfigChoiceField) snapshotUniverse(st *choiceState) map[string]*Schema {
	if st.universe != nil {
		return st.universe
	}
	if f.registry != nil {
		return f.registry.Schemas()
	}
	return maps.Clone(f.typemap)
}

func (f *ConfigChoiceField) entryPath(c *Config, name string) string {
	return fmt.Sprintf("%s[%s]", c.fieldPath(f.name), keyRepr(name))
}

func (f *ConfigChoiceField) state(c *Config) *choiceState {
	return c.storage[f.name].(*choiceState)
}

// selectionValue renders a canonical selection in its external shape: nil,
// a bare string, or a []any of strings.
func (f *ConfigChoiceField) selectionValue(sel []string) any {
	if sel == nil {
		return nil
	}
	if !f.multi {
		return sel[0]
	}
	out := make([]any, len(sel))
	for i, n := range sel {
		out[i] = n
	}
	return out
}

func (f *ConfigChoiceField) initialize(c *Config) {
	st := &choiceState{instances: make(map[string]*Config)}
	c.storage[f.name] = st
	if f.defSel != nil {
		st.selection = slices.Clone(f.defSel)
		c.appendHistory(f.name, f.selectionValue(st.selection), setOp{label: "default"})
	}
}

// ensure returns the member instance for name, creating it lazily. Frozen
// configs only surface members that were materialized by Freeze.
func (f *ConfigChoiceField) ensure(c *Config, st *choiceState, name string, thawed bool) (*Config, error) {
	if inst, ok := st.instances[name]; ok {
		return inst, nil
	}
	schema, ok := f.lookup(st, name)
	if !ok {
		return nil, &UnknownKeyError{
			Path:  c.fieldPath(f.name),
			Key:   name,
			Known: f.knownNames(st),
		}
	}
	if c.frozen && !thawed {
		return nil, newValidationError(f.typeName, c.fieldPath(f.name),
			"cannot instantiate member %q of a frozen config", name)
	}
	inst := newConfig(schema)
	inst.rename(f.entryPath(c, name))
	st.instances[name] = inst
	return inst, nil
}

func (f *ConfigChoiceField) setSelection(c *Config, st *choiceState, names []string, op setOp) error {
	for _, n := range names {
		if _, ok := f.lookup(st, n); !ok {
			return &UnknownKeyError{
				Path:  c.fieldPath(f.name),
				Key:   n,
				Known: f.knownNames(st),
			}
		}
	}
	st.selection = names
	c.appendHistory(f.name, f.selectionValue(names), op)
	return nil
}

// setMember assigns one member's config from a *Schema, a *Config, or a
// plain mapping, mirroring config-dict entry assignment.
func (f *ConfigChoiceField) setMember(c *Config, st *choiceState, name string, value any, op setOp) error {
	schema, ok := f.lookup(st, name)
	if !ok {
		return &UnknownKeyError{
			Path:  c.fieldPath(f.name),
			Key:   name,
			Known: f.knownNames(st),
		}
	}
	path := f.entryPath(c, name)
	switch v := value.(type) {
	case *Schema:
		if v == nil || !v.DerivesFrom(schema) {
			return newValidationError(f.typeName, path,
				"value must be a schema deriving from %s", schema.name)
		}
		inst := newConfig(v)
		inst.rename(path)
		st.instances[name] = inst
		return nil
	case *Config:
		if v == nil || !v.schema.DerivesFrom(schema) {
			return newValidationError(f.typeName, path,
				"value must be a config whose schema derives from %s", schema.name)
		}
		if cur, ok := st.instances[name]; ok && cur.schema == v.schema {
			return cur.updateFrom(v, op)
		}
		inst := v.clone()
		inst.rename(path)
		st.instances[name] = inst
		return nil
	default:
		if plain, ok := anyMap(value); ok {
			inst, err := f.ensure(c, st, name, false)
			if err != nil {
				return err
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
			return inst.applyDict(sm, op)
		}
		return newValidationError(f.typeName, path,
			"value must be a *Schema, *Config, or mapping, got %T", value)
	}
}

func (f *ConfigChoiceField) get(c *Config) (any, error) {
	return &InstanceDict{config: c, field: f}, nil
}

func (f *ConfigChoiceField) set(c *Config, value any, op setOp) error {
	if err := c.checkFrozen(f.name); err != nil {
		return err
	}
	st := f.state(c)
	switch v := value.(type) {
	case nil, string, []string, []any:
		names, err := f.selectionNames(v)
		if err != nil {
			return newValidationError(f.typeName, c.fieldPath(f.name), "%v", err)
		}
		return f.setSelection(c, st, names, op)
	case *InstanceDict:
		src := v.state()
		for _, name := range sortedStrings(instantiatedNames(src)) {
			if err := f.setMember(c, st, name, src.instances[name], op); err != nil {
				return err
			}
		}
		return f.setSelection(c, st, slices.Clone(src.selection), op)
	default:
		if plain, ok := anyMap(value); ok {
			return f.setFromDict(c, st, plain, op)
		}
		return newValidationError(f.typeName, c.fieldPath(f.name),
			"cannot assign %T to a choice field", value)
	}
}

// setFromDict applies the plain form produced by toDict: a mapping with
// "values" (member name to member fields) and "selection".
func (f *ConfigChoiceField) setFromDict(c *Config, st *choiceState, plain map[any]any, op setOp) error {
	path := c.fieldPath(f.name)
	for k := range plain {
		ks, ok := k.(string)
		if !ok || (ks != "selection" && ks != "values") {
			return newValidationError(f.typeName, path,
				"choice mappings carry only \"selection\" and \"values\" keys, got %v", k)
		}
	}
	if raw, ok := plain["values"]; ok && raw != nil {
		values, ok := anyMap(raw)
		if !ok {
			return newValidationError(f.typeName, path, "\"values\" must be a mapping, got %T", raw)
		}
		names := make([]string, 0, len(values))
		for k := range values {
			ks, ok := k.(string)
			if !ok {
				return newValidationError(f.typeName, path, "member names must be strings, got %T", k)
			}
			names = append(names, ks)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := f.setMember(c, st, name, values[name], op); err != nil {
				return err
			}
		}
	}
	sel, err := f.selectionNames(plain["selection"])
	if err != nil {
		return newValidationError(f.typeName, path, "%v", err)
	}
	return f.setSelection(c, st, sel, op)
}

func (f *ConfigChoiceField) validate(c *Config) error {
	st := f.state(c)
	if st.selection == nil {
		if f.optional {
			return nil
		}
		return newValidationError(f.typeName, c.fieldPath(f.name), "required value cannot be nil")
	}
	for _, name := range st.selection {
		inst, err := f.ensure(c, st, name, false)
		if err != nil {
			return err
		}
		if err := inst.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (f *ConfigChoiceField) rename(c *Config) {
	st := f.state(c)
	for name, inst := range st.instances {
		inst.rename(f.entryPath(c, name))
	}
}

func (f *ConfigChoiceField) freeze(c *Config) {
	st := f.state(c)
	st.universe = f.snapshotUniverse(st)
	// Selected members materialize before the freeze lands on them, so
	// Active keeps working afterwards.
	for _, name := range st.selection {
		f.ensure(c, st, name, true)
	}
	for _, inst := range st.instances {
		inst.Freeze()
	}
}

func (f *ConfigChoiceField) toDict(c *Config) any {
	st := f.state(c)
	values := make(map[string]any, len(st.selection))
	for _, name := range st.selection {
		inst, err := f.ensure(c, st, name, true)
		if err != nil {
			continue
		}
		values[name] = inst.ToDict()
	}
	return map[string]any{
		"selection": f.selectionValue(st.selection),
		"values":    values,
	}
}

func (f *ConfigChoiceField) save(w *scriptWriter, c *Config, prefix string) error {
	st := f.state(c)
	lhs := prefix + "." + f.name
	for _, name := range st.selection {
		inst, err := f.ensure(c, st, name, true)
		if err != nil {
			return err
		}
		entryExpr := fmt.Sprintf("%s[%s]", lhs, keyRepr(name))
		for _, nf := range inst.schema.Fields() {
			if err := nf.save(w, inst, entryExpr); err != nil {
				return err
			}
		}
	}
	if f.multi {
		return w.assign(lhs+".names", f.selectionValue(st.selection))
	}
	return w.assign(lhs+".name", f.selectionValue(st.selection))
}

func (f *ConfigChoiceField) compare(a, b *Config, sc *compareScope) bool {
	path := a.fieldPath(f.name)
	aSt, bSt := f.state(a), f.state(b)
	if !slices.Equal(aSt.selection, bSt.selection) {
		sc.report(path, fmt.Sprintf("selection differs: %v != %v",
			f.selectionValue(aSt.selection), f.selectionValue(bSt.selection)))
		return false
	}
	if aSt.selection == nil {
		return true
	}
	equal := true
	for _, name := range aSt.selection {
		ai, aErr := f.ensure(a, aSt, name, true)
		bi, bErr := f.ensure(b, bSt, name, true)
		if aErr != nil || bErr != nil {
			sc.report(fmt.Sprintf("%s[%s]", path, keyRepr(name)), "member cannot be instantiated")
			equal = false
		} else if !compareConfigValues(ai, bi, sc) {
			equal = false
		}
		if !equal && sc.shortcut {
			return false
		}
	}
	return equal
}

// choiceState is a choice field's per-instance storage: its lazily built
// members, the canonical selection, and the universe snapshot taken at
// freeze time.
type choiceState struct {
	universe  map[string]*Schema
	instances map[string]*Config
	selection []string
}

func (st *choiceState) clone() *choiceState {
	out := &choiceState{
		universe:  maps.Clone(st.universe),
		instances: make(map[string]*Config, len(st.instances)),
		selection: slices.Clone(st.selection),
	}
	for name, inst := range st.instances {
		out.instances[name] = inst.clone()
	}
	return out
}

func instantiatedNames(st *choiceState) []string {
	names := make([]string, 0, len(st.instances))
	for n := range st.instances {
		names = append(names, n)
	}
	return names
}

// InstanceDict is the live view over a choice or registry field: the member
// universe, the lazily created member instances, and the selection.
type InstanceDict struct {
	config *Config
	field  *ConfigChoiceField
}

func (d *InstanceDict) state() *choiceState {
	return d.field.state(d.config)
}

// Multi reports whether the underlying field is multi-selection.
func (d *InstanceDict) Multi() bool {
	return d.field.multi
}

// Names returns every known member name, sorted. After freeze this reflects
// the snapshot taken when the config froze.
func (d *InstanceDict) Names() []string {
	return d.field.knownNames(d.state())
}

// Instantiated returns the names whose member instances exist, sorted.
func (d *InstanceDict) Instantiated() []string {
	return sortedStrings(instantiatedNames(d.state()))
}

// Contains reports whether name is part of the member universe.
func (d *InstanceDict) Contains(name string) bool {
	_, ok := d.field.lookup(d.state(), name)
	return ok
}

// Get returns the member instance for name, creating it lazily. Deselected
// members keep their settings, so tweaking an alternative before switching
// to it is cheap.
func (d *InstanceDict) Get(name string) (*Config, error) {
	return d.field.ensure(d.config, d.state(), name, false)
}

// Set assigns one member's config without touching the selection.
func (d *InstanceDict) Set(name string, value any, opts ...SetOption) error {
	if err := d.config.checkFrozen(d.field.name); err != nil {
		return err
	}
	return d.field.setMember(d.config, d.state(), name, value, newSetOp("assignment", opts))
}

// Selected returns the canonical selection, or nil when nothing is selected.
func (d *InstanceDict) Selected() []string {
	return slices.Clone(d.state().selection)
}

// Name returns the single selected name. The second result is false when
// nothing is selected or the field is multi-selection.
func (d *InstanceDict) Name() (string, bool) {
	st := d.state()
	if d.field.multi || len(st.selection) != 1 {
		return "", false
	}
	return st.selection[0], true
}

// SetName selects a single member by name.
func (d *InstanceDict) SetName(name string, opts ...SetOption) error {
	if d.field.multi {
		return newValidationError(d.field.typeName, d.config.fieldPath(d.field.name),
			"multi-selection field takes SetNames, not SetName")
	}
	if err := d.config.checkFrozen(d.field.name); err != nil {
		return err
	}
	return d.field.setSelection(d.config, d.state(), []string{name}, newSetOp("assignment", opts))
}

// SetNames selects a set of members by name. Duplicates collapse and order
// is canonicalized.
func (d *InstanceDict) SetNames(names []string, opts ...SetOption) error {
	if !d.field.multi {
		return newValidationError(d.field.typeName, d.config.fieldPath(d.field.name),
			"single-selection field takes SetName, not SetNames")
	}
	if err := d.config.checkFrozen(d.field.name); err != nil {
		return err
	}
	canonical, err := d.field.selectionNames(names)
	if err != nil {
		return newValidationError(d.field.typeName, d.config.fieldPath(d.field.name), "%v", err)
	}
	return d.field.setSelection(d.config, d.state(), canonical, newSetOp("assignment", opts))
}

// Deselect clears the selection.
func (d *InstanceDict) Deselect(opts ...SetOption) error {
	if err := d.config.checkFrozen(d.field.name); err != nil {
		return err
	}
	return d.field.setSelection(d.config, d.state(), nil, newSetOp("assignment", opts))
}

// Active returns the selected member of a single-selection field, or nil
// when nothing is selected.
func (d *InstanceDict) Active() (*Config, error) {
	if d.field.multi {
		return nil, newValidationError(d.field.typeName, d.config.fieldPath(d.field.name),
			"multi-selection field takes ActiveAll, not Active")
	}
	st := d.state()
	if st.selection == nil {
		return nil, nil
	}
	return d.field.ensure(d.config, st, st.selection[0], false)
}

// ActiveAll returns every selected member in canonical order.
func (d *InstanceDict) ActiveAll() ([]*Config, error) {
	st := d.state()
	out := make([]*Config, 0, len(st.selection))
	for _, name := range st.selection {
		inst, err := d.field.ensure(d.config, st, name, false)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}
