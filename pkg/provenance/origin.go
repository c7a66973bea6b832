// Package provenance describes where a configuration value came from.
//
// Every mutating operation in pkg/config accepts an optional Origin that is
// recorded alongside the new value in the owning config's history. Origins are
// plain data supplied by the caller; the library never inspects the call stack
// on its own. Here and Caller are conveniences for callers that want their own
// source location captured.
package provenance

import (
	"fmt"
	"runtime"
)

// Origin identifies the call site responsible for a value change.
// The zero Origin means the caller did not say where the change came from.
type Origin struct {
	// File is the source file of the call site.
	File string

	// Line is the line number within File.
	Line int

	// Func is the fully qualified function name, if known.
	Func string
}

// Here captures the origin of its own call site.
func Here() Origin {
	return Caller(1)
}

// Caller captures the origin skip frames above the caller of Caller.
// Caller(0) is equivalent to Here called from the same place.
func Caller(skip int) Origin {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Origin{}
	}
	o := Origin{File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		o.Func = fn.Name()
	}
	return o
}

// IsZero reports whether the origin carries no information.
func (o Origin) IsZero() bool {
	return o == Origin{}
}

// String renders the origin as "file:line (func)". A zero origin renders
// as "unknown".
func (o Origin) String() string {
	if o.IsZero() {
		return "unknown"
	}
	s := fmt.Sprintf("%s:%d", o.File, o.Line)
	if o.Func != "" {
		s += " (" + o.Func + ")"
	}
	return s
}
