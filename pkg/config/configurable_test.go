package config

import (
	"reflect"
	"strings"
	"testing"
)

func configurableSchema(t *testing.T, target RegistryEntry, spec ConfigurableSpec) *Schema {
	t.Helper()
	s, err := NewSchemaBuilder("Pipeline").
		Add("writer", NewConfigurableField(target, spec)).
		Build()
	if err != nil {
		t.Fatalf("building configurable schema: %v", err)
	}
	return s
}

func TestConfigurableDeclarationErrors(t *testing.T) {
	if _, err := NewSchemaBuilder("S").
		Add("w", NewConfigurableField(RegistryEntry{}, ConfigurableSpec{})).
		Build(); err == nil {
		t.Error("expected a schema-less target to be rejected")
	}

	for _, reserved := range []string{"apply", "retarget", "target"} {
		bad, err := NewSchemaBuilder("Bad").
			Add(reserved, NewIntField(FieldSpec{Default: 1})).
			Build()
		if err != nil {
			t.Fatalf("building schema: %v", err)
		}
		_, err = NewSchemaBuilder("S").
			Add("w", NewConfigurableField(RegistryEntry{Schema: bad}, ConfigurableSpec{})).
			Build()
		if err == nil {
			t.Errorf("expected reserved field name %q to be rejected", reserved)
		}
	}
}

func TestConfigurableEagerValue(t *testing.T) {
	ws := workerSchema(t)
	cfg := MustNew(configurableSchema(t, RegistryEntry{Name: "pool", Schema: ws}, ConfigurableSpec{}), WithName("p"))

	inst, err := cfg.GetConfigurable("writer")
	if err != nil {
		t.Fatalf("GetConfigurable: %v", err)
	}
	if inst.Retargeted() {
		t.Error("fresh field reports retargeted")
	}
	if inst.Target().Name != "pool" {
		t.Errorf("Target().Name = %q", inst.Target().Name)
	}

	value := inst.Config()
	if value == nil {
		t.Fatal("value is nil; configurables materialize eagerly")
	}
	if got, _ := value.GetInt("threads"); got != 4 {
		t.Errorf("threads = %d, want 4", got)
	}

	// The value carries the field's path.
	if err := value.Set("threads", -1); err == nil {
		t.Fatal("expected check failure")
	} else if !strings.Contains(err.Error(), "p.writer.threads") {
		t.Errorf("value error path = %v", err)
	}
}

func TestConfigurableSetForms(t *testing.T) {
	ws := workerSchema(t)
	s := configurableSchema(t, RegistryEntry{Name: "pool", Schema: ws}, ConfigurableSpec{})
	cfg := MustNew(s)
	inst, _ := cfg.GetConfigurable("writer")

	// Mapping form.
	if err := cfg.Set("writer", map[string]any{"threads": 9}); err != nil {
		t.Fatalf("Set mapping: %v", err)
	}
	if got, _ := inst.Config().GetInt("threads"); got != 9 {
		t.Errorf("threads = %d, want 9", got)
	}
	if got := lastHistory(t, cfg, "writer").Label; got != "assignment" {
		t.Errorf("label = %q", got)
	}

	// Config form merges into the existing value.
	before := inst.Config()
	if err := cfg.Set("writer", MustNew(ws, WithOverride("queue", "bulk"))); err != nil {
		t.Fatalf("Set config: %v", err)
	}
	if inst.Config() != before {
		t.Error("config assignment replaced the value instance")
	}
	if got, _ := inst.Config().GetString("queue"); got != "bulk" {
		t.Errorf("queue = %q, want bulk", got)
	}

	// Instance form copies target and value from another configurable.
	other := MustNew(s)
	oinst, _ := other.GetConfigurable("writer")
	if err := oinst.Config().Set("threads", 2); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cfg.Set("writer", oinst); err != nil {
		t.Fatalf("Set instance: %v", err)
	}
	if got, _ := inst.Config().GetInt("threads"); got != 2 {
		t.Errorf("threads = %d, want copied 2", got)
	}

	if err := cfg.Set("writer", 42); err == nil {
		t.Error("expected a non-config value to be rejected")
	}
	if err := cfg.Set("writer", serverSchema(t)); err == nil {
		t.Error("expected an unrelated schema to be rejected")
	}
}

func TestConfigurableRetarget(t *testing.T) {
	ws := workerSchema(t)
	cfg := MustNew(configurableSchema(t, RegistryEntry{Name: "pool", Schema: ws}, ConfigurableSpec{}))
	inst, _ := cfg.GetConfigurable("writer")
	if err := inst.Config().Set("threads", 32); err != nil {
		t.Fatalf("Set: %v", err)
	}

	replacement := RegistryEntry{Name: "direct", Schema: serverSchema(t)}
	if err := inst.Retarget(replacement); err != nil {
		t.Fatalf("Retarget: %v", err)
	}
	if !inst.Retargeted() {
		t.Error("Retargeted() = false after Retarget")
	}
	if inst.Target().Name != "direct" {
		t.Errorf("Target().Name = %q", inst.Target().Name)
	}
	// A different schema resets the value to the new target's defaults.
	if got, _ := inst.Config().GetString("host"); got != "localhost" {
		t.Errorf("host = %q, want the new schema's default", got)
	}
	if _, err := inst.Config().Get("threads"); err == nil {
		t.Error("old schema's fields survived the retarget")
	}

	e := lastHistory(t, cfg, "writer")
	if e.Label != "retarget" || e.Value != "direct" {
		t.Errorf("retarget history = %+v", e)
	}

	if err := inst.Retarget(RegistryEntry{}); err == nil {
		t.Error("expected a schema-less retarget to be rejected")
	}
}

func TestConfigurableRetargetSameSchemaKeepsValues(t *testing.T) {
	ws := workerSchema(t)
	cfg := MustNew(configurableSchema(t, RegistryEntry{Name: "pool", Schema: ws}, ConfigurableSpec{}))
	inst, _ := cfg.GetConfigurable("writer")
	if err := inst.Config().Set("threads", 32); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if err := inst.Retarget(RegistryEntry{Name: "turbo", Schema: ws}); err != nil {
		t.Fatalf("Retarget: %v", err)
	}
	if !inst.Retargeted() {
		t.Error("Retargeted() = false after Retarget")
	}
	if inst.Target().Name != "turbo" {
		t.Errorf("Target().Name = %q", inst.Target().Name)
	}
	// Same schema, so assigned values survive the swap.
	if got, _ := inst.Config().GetInt("threads"); got != 32 {
		t.Errorf("threads = %d, want 32 preserved across retarget", got)
	}
}

func TestConfigurableRetargetName(t *testing.T) {
	ws := workerSchema(t)
	r := sinkRegistry(t)
	cfg := MustNew(configurableSchema(t,
		RegistryEntry{Name: "pool", Schema: ws},
		ConfigurableSpec{Registry: r},
	))
	inst, _ := cfg.GetConfigurable("writer")

	if err := inst.RetargetName("s3"); err != nil {
		t.Fatalf("RetargetName: %v", err)
	}
	if inst.Target().Name != "s3" {
		t.Errorf("Target().Name = %q", inst.Target().Name)
	}

	err := inst.RetargetName("tape")
	if err == nil {
		t.Fatal("expected an unknown name to be rejected")
	}
	if !IsUnknownKeyError(err) {
		t.Errorf("expected UnknownKeyError, got %T", err)
	}

	// Without a registry, name resolution is unavailable.
	bare := MustNew(configurableSchema(t, RegistryEntry{Name: "pool", Schema: ws}, ConfigurableSpec{}))
	binst, _ := bare.GetConfigurable("writer")
	if err := binst.RetargetName("s3"); err == nil || !strings.Contains(err.Error(), "no registry") {
		t.Errorf("RetargetName without registry: %v", err)
	}
}

func TestConfigurableApply(t *testing.T) {
	r := sinkRegistry(t)
	entry, _ := r.Get("file")
	cfg := MustNew(configurableSchema(t, entry, ConfigurableSpec{Registry: r}))
	inst, _ := cfg.GetConfigurable("writer")
	if err := inst.Config().Set("threads", 3); err != nil {
		t.Fatalf("Set: %v", err)
	}

	product, err := inst.Apply()
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	sink := product.(*fakeSink)
	if sink.kind != "file" || sink.workers != 3 {
		t.Errorf("sink = %+v", sink)
	}

	noFactory := MustNew(configurableSchema(t, RegistryEntry{Name: "x", Schema: workerSchema(t)}, ConfigurableSpec{}))
	ninst, _ := noFactory.GetConfigurable("writer")
	if _, err := ninst.Apply(); err == nil || !strings.Contains(err.Error(), "no factory") {
		t.Errorf("Apply without factory: %v", err)
	}
}

func TestConfigurableApplyForwardsArgs(t *testing.T) {
	var got []any
	entry := RegistryEntry{
		Name:   "echo",
		Schema: workerSchema(t),
		Factory: func(cfg *Config, args ...any) (any, error) {
			got = append([]any(nil), args...)
			return nil, nil
		},
	}
	cfg := MustNew(configurableSchema(t, entry, ConfigurableSpec{}))
	inst, _ := cfg.GetConfigurable("writer")

	if _, err := inst.Apply("fsync", 2); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !reflect.DeepEqual(got, []any{"fsync", 2}) {
		t.Errorf("factory args = %v", got)
	}
}

func TestConfigurableValidateAndFreeze(t *testing.T) {
	strict, err := NewSchemaBuilder("Strict").
		Add("token", NewStringField(FieldSpec{})).
		Build()
	if err != nil {
		t.Fatalf("building schema: %v", err)
	}
	cfg := MustNew(configurableSchema(t, RegistryEntry{Name: "auth", Schema: strict}, ConfigurableSpec{}), WithName("p"))

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected the value's required field to fail validation")
	}
	if !strings.Contains(err.Error(), "p.writer.token") {
		t.Errorf("error path = %v", err)
	}

	inst, _ := cfg.GetConfigurable("writer")
	if err := inst.Config().Set("token", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	cfg.Freeze()
	if !inst.Config().IsFrozen() {
		t.Error("value not frozen with its parent")
	}
	if err := inst.Retarget(RegistryEntry{Schema: strict}); !IsFrozenConfigError(err) {
		t.Errorf("Retarget on frozen config: %v", err)
	}
	if err := cfg.Set("writer", map[string]any{"token": "z"}); !IsFrozenConfigError(err) {
		t.Errorf("Set on frozen config: %v", err)
	}
}

func TestConfigurableCompare(t *testing.T) {
	ws := workerSchema(t)
	s := configurableSchema(t, RegistryEntry{Name: "pool", Schema: ws}, ConfigurableSpec{})
	a := MustNew(s)
	b := MustNew(s)
	if !Compare(a, b) {
		t.Fatal("identical configurables compare unequal")
	}

	binst, _ := b.GetConfigurable("writer")
	if err := binst.Config().Set("threads", 7); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if Compare(a, b) {
		t.Error("different values compare equal")
	}

	var reports []string
	if err := binst.Retarget(RegistryEntry{Name: "other", Schema: serverSchema(t)}); err != nil {
		t.Fatalf("Retarget: %v", err)
	}
	if Compare(a, b, WithReport(func(path, msg string) {
		reports = append(reports, msg)
	})) {
		t.Error("different targets compare equal")
	}
	found := false
	for _, m := range reports {
		if strings.Contains(m, "target differs") {
			found = true
		}
	}
	if !found {
		t.Errorf("no target-differs report in %v", reports)
	}
}
