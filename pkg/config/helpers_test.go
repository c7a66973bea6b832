package config

import (
	"fmt"
	"testing"
)

// serverSchema is the scalar-only schema most tests start from.
func serverSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchemaBuilder("Server").
		Add("host", NewStringField(FieldSpec{Doc: "bind address", Default: "localhost"})).
		Add("port", NewIntField(FieldSpec{Doc: "listen port", Default: 8080, Check: positiveInt})).
		Add("ratio", NewFloatField(FieldSpec{Doc: "sampling ratio", Default: 0.5})).
		Add("debug", NewBoolField(FieldSpec{Doc: "verbose output", Default: false})).
		Add("note", NewStringField(FieldSpec{Doc: "free-form note", Optional: true})).
		Build()
	if err != nil {
		t.Fatalf("building server schema: %v", err)
	}
	return s
}

func positiveInt(v any) error {
	if v.(int64) <= 0 {
		return fmt.Errorf("value must be positive, got %d", v)
	}
	return nil
}

// workerSchema is a small schema used as a nested member in tests.
func workerSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchemaBuilder("Worker").
		Add("threads", NewIntField(FieldSpec{Doc: "worker threads", Default: 4, Check: positiveInt})).
		Add("queue", NewStringField(FieldSpec{Doc: "queue name", Default: "default"})).
		Build()
	if err != nil {
		t.Fatalf("building worker schema: %v", err)
	}
	return s
}

// codecSchemas is a typemap for choice-field tests: two alternative codecs.
func codecSchemas(t *testing.T) map[string]*Schema {
	t.Helper()
	jsonSchema, err := NewSchemaBuilder("JSONCodec").
		Add("indent", NewIntField(FieldSpec{Doc: "indent width", Default: 2})).
		Build()
	if err != nil {
		t.Fatalf("building json codec schema: %v", err)
	}
	binSchema, err := NewSchemaBuilder("BinaryCodec").
		Add("compress", NewBoolField(FieldSpec{Doc: "enable compression", Default: true})).
		Build()
	if err != nil {
		t.Fatalf("building binary codec schema: %v", err)
	}
	return map[string]*Schema{"json": jsonSchema, "binary": binSchema}
}

// lastHistory returns the most recent history entry for a field, failing the
// test when the log is empty.
func lastHistory(t *testing.T, c *Config, field string) HistoryEntry {
	t.Helper()
	entries, err := c.History(field)
	if err != nil {
		t.Fatalf("History(%q): %v", field, err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected history for %q, got none", field)
	}
	return entries[len(entries)-1]
}

// historyLabels projects a field's history into its label sequence.
func historyLabels(t *testing.T, c *Config, field string) []string {
	t.Helper()
	entries, err := c.History(field)
	if err != nil {
		t.Fatalf("History(%q): %v", field, err)
	}
	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = e.Label
	}
	return labels
}
