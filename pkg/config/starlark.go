package config

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
)

// The script side of executable persistence. A loaded script sees the root
// config as a predeclared value whose attributes are its fields; assignments
// route through the exact same set paths as Go calls, so coercion, checks,
// frozen errors, and history all behave identically. Wrapper Freeze methods
// are deliberately inert: the interpreter freezes every reachable value when
// a module finishes executing, and that must not freeze the config being
// loaded.

func opOptions(op setOp) []SetOption {
	return []SetOption{WithSetOrigin(op.origin), WithLabel(op.label)}
}

// toScriptValue converts a plain Go value to its Starlark form.
func toScriptValue(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toScriptValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[any]any:
		dict := starlark.NewDict(len(val))
		for k, e := range val {
			sk, err := toScriptValue(k)
			if err != nil {
				return nil, err
			}
			sv, err := toScriptValue(e)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(sk, sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, e := range val {
			sv, err := toScriptValue(e)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromScriptValue converts a Starlark value to its plain Go form. Wrapper
// values convert to the live views they carry, so one config's field can be
// assigned to another's inside a script.
func fromScriptValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromScriptValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]any, len(val))
		for i, item := range val {
			gv, err := fromScriptValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = gv
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[any]any, val.Len())
		for _, item := range val.Items() {
			key, err := fromScriptValue(item[0])
			if err != nil {
				return nil, err
			}
			value, err := fromScriptValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[key] = value
		}
		return dict, nil
	case *configValue:
		return val.c, nil
	case *listValue:
		return val.list, nil
	case *dictValue:
		return val.dict, nil
	case *choiceValue:
		return val.dict, nil
	case *configDictValue:
		return val.dict, nil
	case *configurableValue:
		return val.inst, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}

// configValue exposes a *Config to scripts.
type configValue struct {
	c  *Config
	op setOp
}

func (cv *configValue) String() string        { return fmt.Sprintf("<config %s>", cv.c.displayName()) }
func (cv *configValue) Type() string          { return "config" }
func (cv *configValue) Freeze()               {}
func (cv *configValue) Truth() starlark.Bool  { return starlark.True }
func (cv *configValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: config") }

func (cv *configValue) AttrNames() []string {
	return cv.c.schema.FieldNames()
}

func (cv *configValue) Attr(name string) (starlark.Value, error) {
	v, err := cv.c.Get(name)
	if err != nil {
		if IsUnknownKeyError(err) {
			return nil, starlark.NoSuchAttrError(
				fmt.Sprintf("config %s has no field %q", cv.c.displayName(), name))
		}
		return nil, err
	}
	switch t := v.(type) {
	case *List:
		return &listValue{list: t, op: cv.op}, nil
	case *Dict:
		return &dictValue{dict: t, op: cv.op}, nil
	case *Config:
		return &configValue{c: t, op: cv.op}, nil
	case *ConfigDict:
		return &configDictValue{dict: t, op: cv.op}, nil
	case *InstanceDict:
		return &choiceValue{dict: t, op: cv.op}, nil
	case *ConfigurableInstance:
		return &configurableValue{inst: t, op: cv.op}, nil
	default:
		return toScriptValue(v)
	}
}

func (cv *configValue) SetField(name string, val starlark.Value) error {
	gv, err := fromScriptValue(val)
	if err != nil {
		return err
	}
	return cv.c.setField(name, gv, cv.op)
}

// listValue exposes a list field's live view to scripts, with enough of the
// native list surface for the usual edits: indexing, iteration, append, and
// extend.
type listValue struct {
	list *List
	op   setOp
}

func (lv *listValue) String() string        { return scriptLiteral(lv.list.Values()) }
func (lv *listValue) Type() string          { return "config_list" }
func (lv *listValue) Freeze()               {}
func (lv *listValue) Truth() starlark.Bool  { return starlark.Bool(lv.list.Len() > 0) }
func (lv *listValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: config_list") }
func (lv *listValue) Len() int              { return lv.list.Len() }

func (lv *listValue) Index(i int) starlark.Value {
	item, err := lv.list.At(i)
	if err != nil {
		return starlark.None
	}
	sv, err := toScriptValue(item)
	if err != nil {
		return starlark.None
	}
	return sv
}

func (lv *listValue) SetIndex(i int, v starlark.Value) error {
	gv, err := fromScriptValue(v)
	if err != nil {
		return err
	}
	return lv.list.Set(i, gv, opOptions(lv.op)...)
}

func (lv *listValue) Iterate() starlark.Iterator {
	items := lv.list.Values()
	values := make([]starlark.Value, len(items))
	for i, item := range items {
		sv, err := toScriptValue(item)
		if err != nil {
			sv = starlark.None
		}
		values[i] = sv
	}
	return &sliceIterator{items: values}
}

func (lv *listValue) AttrNames() []string {
	return []string{"append", "extend"}
}

func (lv *listValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "append":
		return starlark.NewBuiltin("append", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var x starlark.Value
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x); err != nil {
				return nil, err
			}
			gv, err := fromScriptValue(x)
			if err != nil {
				return nil, err
			}
			if err := lv.list.Append(gv, opOptions(lv.op)...); err != nil {
				return nil, err
			}
			return starlark.None, nil
		}), nil
	case "extend":
		return starlark.NewBuiltin("extend", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var x starlark.Value
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "x", &x); err != nil {
				return nil, err
			}
			gv, err := fromScriptValue(x)
			if err != nil {
				return nil, err
			}
			items, ok := anySlice(gv)
			if !ok {
				return nil, fmt.Errorf("extend: expected a sequence, got %s", x.Type())
			}
			if err := lv.list.Extend(items, opOptions(lv.op)...); err != nil {
				return nil, err
			}
			return starlark.None, nil
		}), nil
	}
	return nil, nil
}

type sliceIterator struct {
	items []starlark.Value
	i     int
}

func (it *sliceIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.items) {
		return false
	}
	*p = it.items[it.i]
	it.i++
	return true
}

func (it *sliceIterator) Done() {}

// dictValue exposes a dict field's live view to scripts.
type dictValue struct {
	dict *Dict
	op   setOp
}

func (dv *dictValue) String() string        { return scriptLiteral(dv.dict.Items()) }
func (dv *dictValue) Type() string          { return "config_dict" }
func (dv *dictValue) Freeze()               {}
func (dv *dictValue) Truth() starlark.Bool  { return starlark.Bool(dv.dict.Len() > 0) }
func (dv *dictValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: config_dict") }
func (dv *dictValue) Len() int              { return dv.dict.Len() }

func (dv *dictValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	gk, err := fromScriptValue(k)
	if err != nil {
		return nil, false, err
	}
	if !dv.dict.Contains(gk) {
		return nil, false, nil
	}
	v, err := dv.dict.Get(gk)
	if err != nil {
		return nil, false, err
	}
	sv, err := toScriptValue(v)
	if err != nil {
		return nil, false, err
	}
	return sv, true, nil
}

func (dv *dictValue) SetKey(k, v starlark.Value) error {
	gk, err := fromScriptValue(k)
	if err != nil {
		return err
	}
	gv, err := fromScriptValue(v)
	if err != nil {
		return err
	}
	return dv.dict.Set(gk, gv, opOptions(dv.op)...)
}

func (dv *dictValue) Iterate() starlark.Iterator {
	keys := dv.dict.Keys()
	values := make([]starlark.Value, len(keys))
	for i, k := range keys {
		sv, err := toScriptValue(k)
		if err != nil {
			sv = starlark.None
		}
		values[i] = sv
	}
	return &sliceIterator{items: values}
}

// configDictValue exposes a config-dict field's live view to scripts.
// Assigning a dict to a key creates or updates the entry, so the canonical
// saved form "d['x'] = {}" followed by entry field lines replays cleanly.
type configDictValue struct {
	dict *ConfigDict
	op   setOp
}

func (cd *configDictValue) String() string {
	return fmt.Sprintf("<config dict of %d entries>", cd.dict.Len())
}
func (cd *configDictValue) Type() string         { return "config_dict_field" }
func (cd *configDictValue) Freeze()              {}
func (cd *configDictValue) Truth() starlark.Bool { return starlark.Bool(cd.dict.Len() > 0) }
func (cd *configDictValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: config_dict_field")
}
func (cd *configDictValue) Len() int { return cd.dict.Len() }

func (cd *configDictValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	gk, err := fromScriptValue(k)
	if err != nil {
		return nil, false, err
	}
	if !cd.dict.Contains(gk) {
		return nil, false, nil
	}
	entry, err := cd.dict.Get(gk)
	if err != nil {
		return nil, false, err
	}
	return &configValue{c: entry, op: cd.op}, true, nil
}

func (cd *configDictValue) SetKey(k, v starlark.Value) error {
	gk, err := fromScriptValue(k)
	if err != nil {
		return err
	}
	gv, err := fromScriptValue(v)
	if err != nil {
		return err
	}
	return cd.dict.Set(gk, gv, opOptions(cd.op)...)
}

func (cd *configDictValue) Iterate() starlark.Iterator {
	keys := cd.dict.Keys()
	values := make([]starlark.Value, len(keys))
	for i, k := range keys {
		sv, err := toScriptValue(k)
		if err != nil {
			sv = starlark.None
		}
		values[i] = sv
	}
	return &sliceIterator{items: values}
}

// choiceValue exposes a choice or registry field to scripts: selection via
// the "name" and "names" attributes, members via indexing.
type choiceValue struct {
	dict *InstanceDict
	op   setOp
}

func (ch *choiceValue) String() string {
	return fmt.Sprintf("<choice selection=%v>", ch.dict.Selected())
}
func (ch *choiceValue) Type() string          { return "config_choice" }
func (ch *choiceValue) Freeze()               {}
func (ch *choiceValue) Truth() starlark.Bool  { return starlark.Bool(ch.dict.Selected() != nil) }
func (ch *choiceValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: config_choice") }

func (ch *choiceValue) AttrNames() []string {
	if ch.dict.Multi() {
		return []string{"names"}
	}
	return []string{"name"}
}

func (ch *choiceValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		if ch.dict.Multi() {
			return nil, starlark.NoSuchAttrError("multi-selection field has no attribute \"name\"")
		}
		sel, ok := ch.dict.Name()
		if !ok {
			return starlark.None, nil
		}
		return starlark.String(sel), nil
	case "names":
		if !ch.dict.Multi() {
			return nil, starlark.NoSuchAttrError("single-selection field has no attribute \"names\"")
		}
		sel := ch.dict.Selected()
		if sel == nil {
			return starlark.None, nil
		}
		values := make([]starlark.Value, len(sel))
		for i, n := range sel {
			values[i] = starlark.String(n)
		}
		return starlark.NewList(values), nil
	}
	return nil, nil
}

func (ch *choiceValue) SetField(name string, val starlark.Value) error {
	switch name {
	case "name":
		if ch.dict.Multi() {
			return newValidationError(ch.dict.field.typeName,
				ch.dict.config.fieldPath(ch.dict.field.name),
				"multi-selection field takes names, not name")
		}
		switch v := val.(type) {
		case starlark.NoneType:
			return ch.dict.Deselect(opOptions(ch.op)...)
		case starlark.String:
			return ch.dict.SetName(string(v), opOptions(ch.op)...)
		default:
			return fmt.Errorf("name must be a string or None, got %s", val.Type())
		}
	case "names":
		if !ch.dict.Multi() {
			return newValidationError(ch.dict.field.typeName,
				ch.dict.config.fieldPath(ch.dict.field.name),
				"single-selection field takes name, not names")
		}
		if _, ok := val.(starlark.NoneType); ok {
			return ch.dict.Deselect(opOptions(ch.op)...)
		}
		gv, err := fromScriptValue(val)
		if err != nil {
			return err
		}
		items, ok := gv.([]any)
		if !ok {
			return fmt.Errorf("names must be a list of strings or None, got %s", val.Type())
		}
		names := make([]string, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("names must be strings, got %T", item)
			}
			names[i] = s
		}
		return ch.dict.SetNames(names, opOptions(ch.op)...)
	}
	return starlark.NoSuchAttrError(fmt.Sprintf("choice field has no attribute %q", name))
}

func (ch *choiceValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	name, ok := k.(starlark.String)
	if !ok {
		return nil, false, fmt.Errorf("member names are strings, got %s", k.Type())
	}
	if !ch.dict.Contains(string(name)) {
		return nil, false, nil
	}
	member, err := ch.dict.Get(string(name))
	if err != nil {
		return nil, false, err
	}
	return &configValue{c: member, op: ch.op}, true, nil
}

func (ch *choiceValue) SetKey(k, v starlark.Value) error {
	name, ok := k.(starlark.String)
	if !ok {
		return fmt.Errorf("member names are strings, got %s", k.Type())
	}
	gv, err := fromScriptValue(v)
	if err != nil {
		return err
	}
	return ch.dict.Set(string(name), gv, opOptions(ch.op)...)
}

// configurableValue exposes a configurable field to scripts: value fields as
// attributes plus the retarget method.
type configurableValue struct {
	inst *ConfigurableInstance
	op   setOp
}

func (cf *configurableValue) String() string {
	return fmt.Sprintf("<configurable %s>", targetLabel(cf.inst.Target()))
}
func (cf *configurableValue) Type() string         { return "configurable" }
func (cf *configurableValue) Freeze()              {}
func (cf *configurableValue) Truth() starlark.Bool { return starlark.True }
func (cf *configurableValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: configurable")
}

func (cf *configurableValue) AttrNames() []string {
	names := append([]string{"retarget"}, cf.inst.Config().schema.FieldNames()...)
	sort.Strings(names)
	return names
}

func (cf *configurableValue) Attr(name string) (starlark.Value, error) {
	if name == "retarget" {
		return starlark.NewBuiltin("retarget", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var target string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "target", &target); err != nil {
				return nil, err
			}
			if err := cf.inst.RetargetName(target, opOptions(cf.op)...); err != nil {
				return nil, err
			}
			return starlark.None, nil
		}), nil
	}
	inner := &configValue{c: cf.inst.Config(), op: cf.op}
	return inner.Attr(name)
}

func (cf *configurableValue) SetField(name string, val starlark.Value) error {
	if name == "retarget" {
		return fmt.Errorf("retarget is a method, not a field")
	}
	inner := &configValue{c: cf.inst.Config(), op: cf.op}
	return inner.SetField(name, val)
}
