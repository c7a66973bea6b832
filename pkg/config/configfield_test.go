package config

import (
	"fmt"
	"strings"
	"testing"
)

func nestedSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchemaBuilder("Service").
		Add("name", NewStringField(FieldSpec{Default: "svc"})).
		Add("worker", NewConfigField(workerSchema(t), ConfigFieldSpec{Doc: "worker pool settings"})).
		Build()
	if err != nil {
		t.Fatalf("building nested schema: %v", err)
	}
	return s
}

func TestConfigFieldLazyMaterialization(t *testing.T) {
	cfg := MustNew(nestedSchema(t))

	entries, err := cfg.History("worker")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("untouched nested field has %d history entries, want 0", len(entries))
	}

	sub, err := cfg.GetConfig("worker")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if sub == nil {
		t.Fatal("nested instance is nil")
	}
	if got, _ := sub.GetInt("threads"); got != 4 {
		t.Errorf("nested default threads = %d, want 4", got)
	}

	if got := lastHistory(t, cfg, "worker").Label; got != "default" {
		t.Errorf("materialization label = %q, want %q", got, "default")
	}

	again, _ := cfg.GetConfig("worker")
	if again != sub {
		t.Error("second access returned a different instance")
	}
	if labels := historyLabels(t, cfg, "worker"); len(labels) != 1 {
		t.Errorf("second access appended history: %v", labels)
	}
}

func TestConfigFieldPathNaming(t *testing.T) {
	named := MustNew(nestedSchema(t), WithName("app"))
	sub, _ := named.GetConfig("worker")
	if err := sub.Set("threads", -1); err == nil {
		t.Fatal("expected check failure")
	} else if !strings.Contains(err.Error(), "app.worker.threads") {
		t.Errorf("error path = %v, want app.worker.threads", err)
	}

	unnamed := MustNew(nestedSchema(t))
	sub, _ = unnamed.GetConfig("worker")
	if err := sub.Set("threads", -1); err == nil {
		t.Fatal("expected check failure")
	} else if !strings.Contains(err.Error(), `"worker.threads"`) {
		t.Errorf("error path = %v, want worker.threads", err)
	}
}

func TestConfigFieldDefaultInstance(t *testing.T) {
	tuned := MustNew(workerSchema(t), WithOverride("threads", 16))
	s, err := NewSchemaBuilder("Service").
		Add("worker", NewConfigField(workerSchema(t), ConfigFieldSpec{Default: tuned})).
		Build()
	if err != nil {
		t.Fatalf("building schema: %v", err)
	}

	cfg := MustNew(s)
	sub, _ := cfg.GetConfig("worker")
	if got, _ := sub.GetInt("threads"); got != 16 {
		t.Errorf("threads = %d, want the default instance's 16", got)
	}

	// The declared default is isolated from materialized copies.
	if err := sub.Set("threads", 2); err != nil {
		t.Fatalf("Set: %v", err)
	}
	other := MustNew(s)
	osub, _ := other.GetConfig("worker")
	if got, _ := osub.GetInt("threads"); got != 16 {
		t.Errorf("second instance threads = %d, want 16", got)
	}
}

func TestConfigFieldAssignMergePreservesIdentity(t *testing.T) {
	ws := workerSchema(t)
	s, err := NewSchemaBuilder("Service").
		Add("worker", NewConfigField(ws, ConfigFieldSpec{})).
		Build()
	if err != nil {
		t.Fatalf("building schema: %v", err)
	}
	cfg := MustNew(s)
	sub, _ := cfg.GetConfig("worker")
	if err := sub.Set("queue", "fast"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	src := MustNew(ws, WithOverride("threads", 8))
	if err := cfg.Set("worker", src); err != nil {
		t.Fatalf("Set(*Config): %v", err)
	}

	after, _ := cfg.GetConfig("worker")
	if after != sub {
		t.Error("same-schema assignment replaced the nested instance")
	}
	if got, _ := after.GetInt("threads"); got != 8 {
		t.Errorf("threads = %d, want merged 8", got)
	}
	// Merging must not alias the source.
	if err := src.Set("threads", 1); err != nil {
		t.Fatalf("Set on source: %v", err)
	}
	if got, _ := after.GetInt("threads"); got != 8 {
		t.Errorf("nested instance aliased its source: threads = %d", got)
	}
}

func TestConfigFieldAssignSchemaResets(t *testing.T) {
	ws := workerSchema(t)
	derived, err := NewSchemaBuilder("PriorityWorker").
		Extend(ws).
		Add("priority", NewIntField(FieldSpec{Default: 1})).
		Build()
	if err != nil {
		t.Fatalf("building derived schema: %v", err)
	}
	s, err := NewSchemaBuilder("Service").
		Add("worker", NewConfigField(ws, ConfigFieldSpec{})).
		Build()
	if err != nil {
		t.Fatalf("building schema: %v", err)
	}
	cfg := MustNew(s)
	sub, _ := cfg.GetConfig("worker")
	if err := sub.Set("threads", 9); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Assigning a different schema replaces the instance with fresh defaults.
	if err := cfg.Set("worker", derived); err != nil {
		t.Fatalf("Set(*Schema): %v", err)
	}
	after, _ := cfg.GetConfig("worker")
	if after == sub {
		t.Error("schema assignment kept the old instance")
	}
	if got, _ := after.GetInt("threads"); got != 4 {
		t.Errorf("threads = %d, want schema default 4", got)
	}
}

func TestConfigFieldRejectsForeignValues(t *testing.T) {
	cfg := MustNew(nestedSchema(t))

	if err := cfg.Set("worker", serverSchema(t)); err == nil {
		t.Error("expected an unrelated schema to be rejected")
	}
	if err := cfg.Set("worker", MustNew(serverSchema(t))); err == nil {
		t.Error("expected an unrelated config to be rejected")
	}
	if err := cfg.Set("worker", 42); err == nil {
		t.Error("expected a non-config value to be rejected")
	}
}

func TestConfigFieldAcceptsDerivedSchema(t *testing.T) {
	base := workerSchema(t)
	derived, err := NewSchemaBuilder("PriorityWorker").
		Extend(base).
		Add("priority", NewIntField(FieldSpec{Default: 1})).
		Build()
	if err != nil {
		t.Fatalf("building derived schema: %v", err)
	}
	s, err := NewSchemaBuilder("Service").
		Add("worker", NewConfigField(base, ConfigFieldSpec{})).
		Build()
	if err != nil {
		t.Fatalf("building schema: %v", err)
	}

	cfg := MustNew(s)
	if err := cfg.Set("worker", derived); err != nil {
		t.Fatalf("assigning a derived schema: %v", err)
	}
	sub, _ := cfg.GetConfig("worker")
	if sub.Schema() != derived {
		t.Error("nested instance does not use the derived schema")
	}
	if got, _ := sub.GetInt("priority"); got != 1 {
		t.Errorf("priority = %d, want 1", got)
	}
}

func TestConfigFieldValidateRecurses(t *testing.T) {
	strict, err := NewSchemaBuilder("Strict").
		Add("token", NewStringField(FieldSpec{})).
		Build()
	if err != nil {
		t.Fatalf("building schema: %v", err)
	}
	s, err := NewSchemaBuilder("Svc").
		Add("auth", NewConfigField(strict, ConfigFieldSpec{})).
		Build()
	if err != nil {
		t.Fatalf("building schema: %v", err)
	}

	cfg := MustNew(s, WithName("svc"))
	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected nested required field to fail validation")
	}
	if !strings.Contains(err.Error(), "svc.auth.token") {
		t.Errorf("error does not carry the nested path: %v", err)
	}
}

func TestConfigFieldCheck(t *testing.T) {
	s, err := NewSchemaBuilder("Svc").
		Add("worker", NewConfigField(workerSchema(t), ConfigFieldSpec{
			Check: func(v any) error {
				sub := v.(*Config)
				n, _ := sub.GetInt("threads")
				if n > 64 {
					return fmt.Errorf("threads capped at 64, got %d", n)
				}
				return nil
			},
		})).
		Build()
	if err != nil {
		t.Fatalf("building schema: %v", err)
	}

	cfg := MustNew(s)
	sub, _ := cfg.GetConfig("worker")
	if err := sub.Set("threads", 128); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected the config-level check to fail")
	}
}

func TestConfigFieldFreezeRecurses(t *testing.T) {
	cfg := MustNew(nestedSchema(t))
	sub, _ := cfg.GetConfig("worker")
	cfg.Freeze()

	if !sub.IsFrozen() {
		t.Error("nested instance not frozen with its parent")
	}
	if err := sub.Set("threads", 2); !IsFrozenConfigError(err) {
		t.Errorf("Set on frozen nested config: %v", err)
	}
}

func TestConfigFieldDeclarationErrors(t *testing.T) {
	if _, err := NewSchemaBuilder("S").Add("sub", NewConfigField(nil, ConfigFieldSpec{})).Build(); err == nil {
		t.Error("expected a nil schema to be rejected")
	}

	foreign := MustNew(serverSchema(t))
	_, err := NewSchemaBuilder("S").
		Add("sub", NewConfigField(workerSchema(t), ConfigFieldSpec{Default: foreign})).
		Build()
	if err == nil {
		t.Error("expected a default of a foreign schema to be rejected")
	}
}
