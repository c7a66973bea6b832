package config

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func choiceSchema(t *testing.T, spec ChoiceSpec) *Schema {
	t.Helper()
	s, err := NewSchemaBuilder("Writer").
		Add("codec", NewConfigChoiceField(codecSchemas(t), spec)).
		Build()
	if err != nil {
		t.Fatalf("building choice schema: %v", err)
	}
	return s
}

func TestChoiceDeclarationErrors(t *testing.T) {
	tests := []struct {
		name    string
		typemap map[string]*Schema
		spec    ChoiceSpec
	}{
		{name: "empty typemap", typemap: map[string]*Schema{}},
		{name: "empty key", typemap: map[string]*Schema{"": workerSchema(t)}},
		{name: "nil schema", typemap: map[string]*Schema{"a": nil}},
		{name: "unknown default", typemap: map[string]*Schema{"a": workerSchema(t)}, spec: ChoiceSpec{Default: "b"}},
		{name: "multi default on single", typemap: map[string]*Schema{"a": workerSchema(t)}, spec: ChoiceSpec{Default: []string{"a", "a"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSchemaBuilder("S").Add("c", NewConfigChoiceField(tt.typemap, tt.spec)).Build()
			if err == nil {
				t.Fatal("expected a declaration error")
			}
			if !IsSchemaDeclarationError(err) {
				t.Errorf("expected SchemaDeclarationError, got %T", err)
			}
		})
	}

	// Duplicate names in a multi default collapse instead of failing.
	s, err := NewSchemaBuilder("S").
		Add("c", NewConfigChoiceField(map[string]*Schema{"a": workerSchema(t)},
			ChoiceSpec{Multi: true, Default: []string{"a", "a"}})).
		Build()
	if err != nil {
		t.Fatalf("multi default with duplicates: %v", err)
	}
	ch, _ := MustNew(s).GetChoice("c")
	if got := ch.Selected(); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("Selected() = %v, want [a]", got)
	}
}

func TestChoiceDefaultSelection(t *testing.T) {
	cfg := MustNew(choiceSchema(t, ChoiceSpec{Default: "json"}))
	ch, err := cfg.GetChoice("codec")
	if err != nil {
		t.Fatalf("GetChoice: %v", err)
	}

	name, ok := ch.Name()
	if !ok || name != "json" {
		t.Errorf("Name() = %q, %v; want json", name, ok)
	}
	e := lastHistory(t, cfg, "codec")
	if e.Label != "default" || e.Value != "json" {
		t.Errorf("default selection history = %+v", e)
	}

	// The default selects but does not instantiate.
	if got := ch.Instantiated(); len(got) != 0 {
		t.Errorf("Instantiated() = %v, want none before access", got)
	}

	active, err := ch.Active()
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	if got, _ := active.GetInt("indent"); got != 2 {
		t.Errorf("indent = %d, want 2", got)
	}
	if got := ch.Instantiated(); !reflect.DeepEqual(got, []string{"json"}) {
		t.Errorf("Instantiated() = %v, want [json]", got)
	}
}

func TestChoiceSelectionChanges(t *testing.T) {
	cfg := MustNew(choiceSchema(t, ChoiceSpec{Optional: true}), WithName("w"))
	ch, _ := cfg.GetChoice("codec")

	if _, ok := ch.Name(); ok {
		t.Error("fresh optional choice reports a selection")
	}
	if active, err := ch.Active(); err != nil || active != nil {
		t.Errorf("Active() = %v, %v; want nil for no selection", active, err)
	}

	if err := ch.SetName("binary"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	if got := lastHistory(t, cfg, "codec").Label; got != "assignment" {
		t.Errorf("selection label = %q", got)
	}

	err := ch.SetName("gzip")
	if err == nil {
		t.Fatal("expected an unknown member to be rejected")
	}
	var uk *UnknownKeyError
	if !errors.As(err, &uk) {
		t.Fatalf("expected UnknownKeyError, got %T", err)
	}
	if !reflect.DeepEqual(uk.Known, []string{"binary", "json"}) {
		t.Errorf("Known = %v", uk.Known)
	}
	if name, _ := ch.Name(); name != "binary" {
		t.Errorf("failed SetName changed the selection to %q", name)
	}

	if err := ch.Deselect(); err != nil {
		t.Fatalf("Deselect: %v", err)
	}
	if _, ok := ch.Name(); ok {
		t.Error("selection survived Deselect")
	}

	if err := ch.SetNames([]string{"json"}); err == nil {
		t.Error("SetNames on a single-selection field should fail")
	}
}

func TestChoiceMembersKeepSettings(t *testing.T) {
	cfg := MustNew(choiceSchema(t, ChoiceSpec{Default: "json"}))
	ch, _ := cfg.GetChoice("codec")

	bin, err := ch.Get("binary")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := bin.Set("compress", false); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Tweaked while deselected; switching to it later sees the tweak.
	if err := ch.SetName("binary"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	active, _ := ch.Active()
	if active != bin {
		t.Error("Active() returned a different instance than Get()")
	}
	if got, _ := active.GetBool("compress"); got != false {
		t.Error("member lost its settings while deselected")
	}
}

func TestChoiceMemberPaths(t *testing.T) {
	cfg := MustNew(choiceSchema(t, ChoiceSpec{Default: "json"}), WithName("w"))
	ch, _ := cfg.GetChoice("codec")
	member, _ := ch.Get("json")

	if err := member.Set("indent", "four"); err == nil {
		t.Fatal("expected a type error")
	} else if !strings.Contains(err.Error(), "w.codec['json'].indent") {
		t.Errorf("member error path = %v", err)
	}
}

func TestChoiceValidate(t *testing.T) {
	strict, err := NewSchemaBuilder("Strict").
		Add("token", NewStringField(FieldSpec{})).
		Build()
	if err != nil {
		t.Fatalf("building schema: %v", err)
	}
	relaxed, err := NewSchemaBuilder("Relaxed").
		Add("level", NewIntField(FieldSpec{Default: 1})).
		Build()
	if err != nil {
		t.Fatalf("building schema: %v", err)
	}
	typemap := map[string]*Schema{"strict": strict, "relaxed": relaxed}

	build := func(spec ChoiceSpec) *Config {
		s, err := NewSchemaBuilder("Auth").
			Add("mode", NewConfigChoiceField(typemap, spec)).
			Build()
		if err != nil {
			t.Fatalf("building schema: %v", err)
		}
		return MustNew(s, WithName("auth"))
	}

	// No selection: required fails, optional passes.
	if err := build(ChoiceSpec{}).Validate(); err == nil {
		t.Error("required choice with no selection should fail validation")
	}
	if err := build(ChoiceSpec{Optional: true}).Validate(); err != nil {
		t.Errorf("optional choice with no selection: %v", err)
	}

	// Only the selected member validates: an invalid deselected member is
	// ignored, selecting it surfaces the failure with its path.
	cfg := build(ChoiceSpec{Default: "relaxed"})
	ch, _ := cfg.GetChoice("mode")
	if _, err := ch.Get("strict"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("deselected invalid member failed validation: %v", err)
	}
	if err := ch.SetName("strict"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected the selected member to fail validation")
	}
	if !strings.Contains(err.Error(), "auth.mode['strict'].token") {
		t.Errorf("error path = %v", err)
	}
}

func TestChoiceMultiSelection(t *testing.T) {
	cfg := MustNew(choiceSchema(t, ChoiceSpec{Multi: true, Optional: true}))
	ch, _ := cfg.GetChoice("codec")

	if !ch.Multi() {
		t.Fatal("Multi() = false")
	}
	if err := ch.SetName("json"); err == nil {
		t.Error("SetName on a multi-selection field should fail")
	}
	if _, err := ch.Active(); err == nil {
		t.Error("Active on a multi-selection field should fail")
	}

	if err := ch.SetNames([]string{"json", "binary", "json"}); err != nil {
		t.Fatalf("SetNames: %v", err)
	}
	if got := ch.Selected(); !reflect.DeepEqual(got, []string{"binary", "json"}) {
		t.Errorf("Selected() = %v, want canonical [binary json]", got)
	}

	all, err := ch.ActiveAll()
	if err != nil {
		t.Fatalf("ActiveAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ActiveAll returned %d members", len(all))
	}

	// Whole-field assignment accepts a bare string as a one-element set.
	if err := cfg.Set("codec", "json"); err != nil {
		t.Fatalf("Set(string): %v", err)
	}
	if got := ch.Selected(); !reflect.DeepEqual(got, []string{"json"}) {
		t.Errorf("Selected() = %v, want [json]", got)
	}
}

func TestChoiceWholeFieldSet(t *testing.T) {
	cfg := MustNew(choiceSchema(t, ChoiceSpec{Optional: true}))
	ch, _ := cfg.GetChoice("codec")

	if err := cfg.Set("codec", "binary"); err != nil {
		t.Fatalf("Set(string): %v", err)
	}
	if name, _ := ch.Name(); name != "binary" {
		t.Errorf("Name() = %q", name)
	}

	// The dict form carries both selection and member values.
	err := cfg.Set("codec", map[string]any{
		"selection": "json",
		"values": map[string]any{
			"json": map[string]any{"indent": 8},
		},
	})
	if err != nil {
		t.Fatalf("Set(dict form): %v", err)
	}
	if name, _ := ch.Name(); name != "json" {
		t.Errorf("Name() = %q, want json", name)
	}
	member, _ := ch.Get("json")
	if got, _ := member.GetInt("indent"); got != 8 {
		t.Errorf("indent = %d, want 8", got)
	}

	if err := cfg.Set("codec", map[string]any{"selection": "json", "bogus": 1}); err == nil {
		t.Error("expected an unknown key in the dict form to be rejected")
	}

	if err := cfg.Set("codec", nil); err != nil {
		t.Fatalf("Set(nil): %v", err)
	}
	if _, ok := ch.Name(); ok {
		t.Error("selection survived Set(nil)")
	}
}

func TestChoiceToDict(t *testing.T) {
	cfg := MustNew(choiceSchema(t, ChoiceSpec{Default: "json"}))
	ch, _ := cfg.GetChoice("codec")
	if _, err := ch.Get("binary"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	got := cfg.ToDict()["codec"].(map[string]any)
	if got["selection"] != "json" {
		t.Errorf("selection = %v", got["selection"])
	}
	values := got["values"].(map[string]any)
	if _, ok := values["binary"]; ok {
		t.Error("deselected member appears in the dict form")
	}
	if _, ok := values["json"]; !ok {
		t.Error("selected member missing from the dict form")
	}
}

func TestChoiceFreezeSnapshotsUniverse(t *testing.T) {
	cfg := MustNew(choiceSchema(t, ChoiceSpec{Default: "json"}))
	ch, _ := cfg.GetChoice("codec")
	cfg.Freeze()

	// Freeze materialized the selected member; it is frozen and readable.
	active, err := ch.Active()
	if err != nil {
		t.Fatalf("Active after freeze: %v", err)
	}
	if !active.IsFrozen() {
		t.Error("selected member not frozen with its parent")
	}
	if err := active.Set("indent", 4); !IsFrozenConfigError(err) {
		t.Errorf("Set on frozen member: %v", err)
	}

	// Uninstantiated members cannot materialize after the freeze.
	_, err = ch.Get("binary")
	if err == nil {
		t.Fatal("expected Get of an uninstantiated member to fail on a frozen config")
	}
	if !strings.Contains(err.Error(), "frozen") {
		t.Errorf("unexpected error: %v", err)
	}

	if err := ch.SetName("binary"); !IsFrozenConfigError(err) {
		t.Errorf("SetName on frozen config: %v", err)
	}
	if err := ch.Deselect(); !IsFrozenConfigError(err) {
		t.Errorf("Deselect on frozen config: %v", err)
	}
}

func TestChoiceCompare(t *testing.T) {
	s := choiceSchema(t, ChoiceSpec{Default: "json"})
	a := MustNew(s)
	b := MustNew(s)
	if !Compare(a, b) {
		t.Fatal("identical choices compare unequal")
	}

	chB, _ := b.GetChoice("codec")
	if err := chB.SetName("binary"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	var reports []string
	if Compare(a, b, WithReport(func(path, msg string) {
		reports = append(reports, path+": "+msg)
	})) {
		t.Error("different selections compare equal")
	}
	if len(reports) == 0 || !strings.Contains(reports[0], "selection differs") {
		t.Errorf("reports = %v", reports)
	}

	// Same selection, different member value.
	if err := chB.SetName("json"); err != nil {
		t.Fatalf("SetName: %v", err)
	}
	member, _ := chB.Get("json")
	if err := member.Set("indent", 6); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if Compare(a, b) {
		t.Error("different member values compare equal")
	}
}
