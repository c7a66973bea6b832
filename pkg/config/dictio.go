package config

import (
	"errors"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// YAML interop for the plain-dict form. The script form (Save/Load) is the
// canonical persistence format because it replays through the validated set
// paths with full provenance; the YAML form exists for handing configs to
// systems that speak data, not scripts. YAML rather than JSON because dict
// fields may be keyed by ints or bools, which JSON object keys cannot carry.

// EncodeYAML writes the config's plain-dict form as YAML.
func EncodeYAML(w io.Writer, c *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.ToDict()); err != nil {
		return err
	}
	return enc.Close()
}

// YAMLString renders the config's plain-dict form as a YAML string.
func YAMLString(c *Config) (string, error) {
	var b strings.Builder
	if err := EncodeYAML(&b, c); err != nil {
		return "", err
	}
	return b.String(), nil
}

// DecodeYAML reads a YAML mapping and applies it through ApplyDict. Unknown
// top-level keys fail with UnknownKeyError; history entries default to the
// label "loadDict".
func DecodeYAML(r io.Reader, c *Config, opts ...SetOption) error {
	dec := yaml.NewDecoder(r)
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return c.ApplyDict(raw, opts...)
}

// DecodeYAMLString applies a YAML mapping held in a string.
func DecodeYAMLString(s string, c *Config, opts ...SetOption) error {
	return DecodeYAML(strings.NewReader(s), c, opts...)
}
