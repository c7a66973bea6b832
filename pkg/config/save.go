package config

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

type scriptOptions struct {
	root     string
	filename string
}

// ScriptOption adjusts Save and Load.
type ScriptOption func(*scriptOptions)

// WithRoot sets the identifier the script binds the config to. It defaults
// to "config"; a config saved with one root only loads with the same root.
func WithRoot(name string) ScriptOption {
	return func(o *scriptOptions) {
		o.root = name
	}
}

// WithFilename names the script source for history origins and error
// messages when loading from a reader.
func WithFilename(name string) ScriptOption {
	return func(o *scriptOptions) {
		o.filename = name
	}
}

func applyScriptOptions(opts []ScriptOption) scriptOptions {
	so := scriptOptions{root: "config"}
	for _, o := range opts {
		o(&so)
	}
	return so
}

// Save writes the config as an executable script of field assignments, one
// per line in schema declaration order. Executing the script against a
// fresh instance of the same schema reproduces the saved values exactly;
// see Load.
func Save(w io.Writer, c *Config, opts ...ScriptOption) error {
	so := applyScriptOptions(opts)
	if !fieldNameRE.MatchString(so.root) {
		return fmt.Errorf("invalid root identifier %q", so.root)
	}
	sw := &scriptWriter{w: w}
	for _, f := range c.schema.Fields() {
		if err := f.save(sw, c, so.root); err != nil {
			return err
		}
	}
	return sw.err
}

// SaveString renders the config's script form as a string.
func SaveString(c *Config, opts ...ScriptOption) (string, error) {
	var buf bytes.Buffer
	if err := Save(&buf, c, opts...); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// SaveFile writes the config's script form to a file.
func SaveFile(path string, c *Config, opts ...ScriptOption) error {
	var buf bytes.Buffer
	if err := Save(&buf, c, opts...); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// scriptWriter emits script lines and remembers the first write error.
type scriptWriter struct {
	w   io.Writer
	err error
}

func (w *scriptWriter) line(s string) error {
	if w.err != nil {
		return w.err
	}
	_, w.err = io.WriteString(w.w, s+"\n")
	return w.err
}

func (w *scriptWriter) assign(lhs string, value any) error {
	return w.line(lhs + " = " + scriptLiteral(value))
}

// scriptLiteral renders a plain value as a script literal. The output is
// valid Starlark and deterministic: map keys are emitted in sorted order and
// floats always carry a decimal point or exponent, so an int field and a
// float field can never save to the same text.
func scriptLiteral(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return floatLiteral(t)
	case string:
		return quoteString(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = scriptLiteral(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		m := make(map[any]any, len(t))
		for k, e := range t {
			m[k] = e
		}
		return scriptLiteral(m)
	case map[any]any:
		keys := make([]any, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sortKeys(literalKind(keys), keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = keyRepr(k) + ": " + scriptLiteral(t[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func literalKind(keys []any) Kind {
	if len(keys) == 0 {
		return String
	}
	switch keys[0].(type) {
	case int64:
		return Int
	case float64:
		return Float
	case bool:
		return Bool
	default:
		return String
	}
}

// keyRepr renders a scalar key the way it appears in bracketed paths and
// dict literals.
func keyRepr(k any) string {
	if s, ok := k.(string); ok {
		return quoteString(s)
	}
	return scriptLiteral(k)
}

func floatLiteral(f float64) string {
	switch {
	case math.IsNaN(f):
		return `float("nan")`
	case math.IsInf(f, 1):
		return `float("inf")`
	case math.IsInf(f, -1):
		return `float("-inf")`
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\x%02x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('\'')
	return b.String()
}
