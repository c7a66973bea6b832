package config

// RegistryField is a choice field whose member universe is a Registry
// instead of a fixed typemap. Beyond selection it can resolve the selected
// entries' factories and run them, so a config alone is enough to build the
// component it describes.
//
// Default selections are resolved against the registry when the field is
// declared; register entries before declaring fields that name them.
type RegistryField struct {
	ConfigChoiceField
}

// NewRegistryField declares a registry-backed choice.
func NewRegistryField(registry *Registry, spec ChoiceSpec) *RegistryField {
	f := &RegistryField{
		ConfigChoiceField: ConfigChoiceField{
			fieldBase: fieldBase{
				doc:        spec.Doc,
				typeName:   "RegistryField",
				optional:   spec.Optional,
				deprecated: spec.Deprecated,
				source:     spec.Source,
			},
			registry: registry,
			multi:    spec.Multi,
		},
	}
	if registry == nil {
		f.fail("registry must not be nil")
		return f
	}
	f.initDefault(spec.Default)
	return f
}

func (d *InstanceDict) registryEntry(name string) (RegistryEntry, error) {
	r := d.field.registry
	if r == nil {
		return RegistryEntry{}, newValidationError(d.field.typeName,
			d.config.fieldPath(d.field.name), "field is not registry-backed")
	}
	e, ok := r.Get(name)
	if !ok {
		return RegistryEntry{}, &UnknownKeyError{
			Path:  d.config.fieldPath(d.field.name),
			Key:   name,
			Known: r.Names(),
		}
	}
	return e, nil
}

// Target returns the registry entry for the single selected member.
func (d *InstanceDict) Target() (RegistryEntry, error) {
	name, ok := d.Name()
	if !ok {
		return RegistryEntry{}, newValidationError(d.field.typeName,
			d.config.fieldPath(d.field.name), "no member is selected")
	}
	return d.registryEntry(name)
}

// Targets returns the registry entries for every selected member, in
// canonical order.
func (d *InstanceDict) Targets() ([]RegistryEntry, error) {
	st := d.state()
	out := make([]RegistryEntry, 0, len(st.selection))
	for _, name := range st.selection {
		e, err := d.registryEntry(name)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Apply builds the selected entry's product by running its factory against
// the selected member config. Extra arguments pass through to the factory
// as given.
func (d *InstanceDict) Apply(args ...any) (any, error) {
	entry, err := d.Target()
	if err != nil {
		return nil, err
	}
	inst, err := d.Active()
	if err != nil {
		return nil, err
	}
	if entry.Factory == nil {
		return nil, newValidationError(d.field.typeName,
			d.config.fieldPath(d.field.name), "entry %q has no factory", entry.Name)
	}
	return entry.Factory(inst, args...)
}

// ApplyAll runs every selected entry's factory, in canonical order. Each
// factory receives the same extra arguments.
func (d *InstanceDict) ApplyAll(args ...any) ([]any, error) {
	entries, err := d.Targets()
	if err != nil {
		return nil, err
	}
	st := d.state()
	out := make([]any, 0, len(entries))
	for i, name := range st.selection {
		inst, err := d.field.ensure(d.config, st, name, false)
		if err != nil {
			return nil, err
		}
		if entries[i].Factory == nil {
			return nil, newValidationError(d.field.typeName,
				d.config.fieldPath(d.field.name), "entry %q has no factory", name)
		}
		product, err := entries[i].Factory(inst, args...)
		if err != nil {
			return nil, err
		}
		out = append(out, product)
	}
	return out, nil
}
