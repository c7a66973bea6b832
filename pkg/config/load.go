package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.starlark.net/starlark"

	"github.com/openfroyo/parfait/pkg/provenance"
)

// Load executes a script of field assignments against the config. The root
// identifier (default "config") is predeclared as the config itself, every
// assignment runs through the normal validated set path, and history entries
// carry the label "load" with the script's filename as their origin.
//
// Loading a config saved with Save restores it value for value; loading a
// hand-written script is equally fine. A config can absorb several scripts
// in sequence, later assignments overriding earlier ones.
func Load(r io.Reader, c *Config, opts ...ScriptOption) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return loadScript(c, src, opts)
}

// LoadString executes a script held in a string.
func LoadString(script string, c *Config, opts ...ScriptOption) error {
	return loadScript(c, script, opts)
}

// LoadFile executes a script read from a file. The path becomes the history
// origin unless WithFilename overrides it.
func LoadFile(path string, c *Config, opts ...ScriptOption) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if so := applyScriptOptions(opts); so.filename == "" {
		opts = append(opts, WithFilename(path))
	}
	return loadScript(c, src, opts)
}

func loadScript(c *Config, src any, opts []ScriptOption) error {
	so := applyScriptOptions(opts)
	if !fieldNameRE.MatchString(so.root) {
		return fmt.Errorf("invalid root identifier %q", so.root)
	}
	filename := so.filename
	if filename == "" {
		filename = "<config>"
	}
	if c.frozen {
		return &FrozenConfigError{Path: c.name}
	}

	op := setOp{
		origin: provenance.Origin{File: filename},
		label:  "load",
	}
	thread := &starlark.Thread{
		Name:  "config load",
		Print: func(_ *starlark.Thread, _ string) {},
	}
	predeclared := starlark.StringDict{
		so.root: &configValue{c: c, op: op},
	}
	_, err := starlark.ExecFile(thread, filename, src, predeclared)
	return unwrapLoadError(filename, err)
}

// unwrapLoadError surfaces framework errors raised inside the interpreter
// unchanged, so a bad assignment in a script fails with the same error a bad
// Set call would.
func unwrapLoadError(filename string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		cause := evalErr.Unwrap()
		if cause != nil && isFrameworkError(cause) {
			return cause
		}
		return fmt.Errorf("cannot load %s: %s", filename, evalErr.Error())
	}
	return fmt.Errorf("cannot load %s: %w", filename, err)
}

func isFrameworkError(err error) bool {
	return IsFieldValidationError(err) ||
		IsFrozenConfigError(err) ||
		IsUnknownKeyError(err) ||
		IsSchemaDeclarationError(err) ||
		IsAlreadyRegisteredError(err)
}
