// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package luahandler

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/serialization"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// goToLua converts an arbitrary Go value, as produced by a delegate
// dispatcher decoding a JSON reply or an in-process handler's direct
// return, to its Lua equivalent.
func goToLua(L *lua.LState, v interface{}) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case float64:
		return lua.LNumber(x)
	case float32:
		return lua.LNumber(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case map[string]interface{}:
		t := L.NewTable()
		for k, vv := range x {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []interface{}:
		t := L.NewTable()
		for i, vv := range x {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", x))
	}
}

// goField reads key out of v when v is a string-keyed map, the shape a
// JSON object delegate reply decodes to; anything else has no fields.
func goField(v interface{}, key string) interface{} {
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	return m[key]
}

// variantToLua converts a result/argument ValueVariant to its Lua
// equivalent for passing into or returning from the script.
func variantToLua(L *lua.LState, v value.Variant) (lua.LValue, error) {
	switch v.Type() {
	case value.Void:
		return lua.LNil, nil
	case value.Int:
		i, err := v.ToInt()
		if err != nil {
			return nil, err
		}
		return lua.LNumber(i), nil
	case value.Double:
		d, err := v.ToDouble()
		if err != nil {
			return nil, err
		}
		return lua.LNumber(d), nil
	case value.Bool:
		b, err := v.ToBool()
		if err != nil {
			return nil, err
		}
		return lua.LBool(b), nil
	case value.String:
		s, err := v.ToString(nil)
		if err != nil {
			return nil, err
		}
		return lua.LString(string(s)), nil
	case value.SerializationType:
		ser, _ := serialization.FromVariant(v)
		return serializationToTable(L, ser)
	case value.HostObjectType:
		ud := L.NewUserData()
		ud.Value = v.Host()
		return ud, nil
	default:
		return lua.LNil, nil
	}
}

// serializationToTable renders a Serialization as an LTable: Name-tagged
// siblings become string keys, bare Value/Open siblings become the
// 1-based array part, nested Open blocks recurse.
func serializationToTable(L *lua.LState, ser *serialization.Serialization) (*lua.LTable, error) {
	t := L.NewTable()
	it := ser.Begin()
	idx := 1
	for !it.Eof() {
		switch it.Tag() {
		case value.TagName:
			name, err := it.Value().ToString(nil)
			if err != nil {
				return nil, err
			}
			it.Skip()
			if it.Eof() {
				break
			}
			if it.Tag() == value.TagOpen {
				it.Skip()
				nested, end := sliceBlock(it)
				child, err := serializationToTable(L, nested)
				if err != nil {
					return nil, err
				}
				t.RawSetString(string(name), child)
				it = end
			} else {
				lv, err := variantToLua(L, it.Value())
				if err != nil {
					return nil, err
				}
				t.RawSetString(string(name), lv)
				it.Skip()
			}
		case value.TagOpen:
			it.Skip()
			nested, end := sliceBlock(it)
			child, err := serializationToTable(L, nested)
			if err != nil {
				return nil, err
			}
			t.RawSetInt(idx, child)
			idx++
			it = end
		case value.TagValue:
			lv, err := variantToLua(L, it.Value())
			if err != nil {
				return nil, err
			}
			t.RawSetInt(idx, lv)
			idx++
			it.Skip()
		case value.TagClose:
			it.Skip()
		}
	}
	return t, nil
}

// sliceBlock collects the nodes up to (and consuming) the matching
// Close into a standalone Serialization, returning the iterator
// positioned just after it.
func sliceBlock(it *serialization.Iter) (*serialization.Serialization, *serialization.Iter) {
	out := serialization.New()
	depth := 1
	for !it.Eof() {
		tag := it.Tag()
		v := it.Value()
		if tag == value.TagOpen {
			depth++
		} else if tag == value.TagClose {
			depth--
			if depth == 0 {
				it.Skip()
				return out, it
			}
		}
		out.Push(tag, v)
		it.Skip()
	}
	return out, it
}

// luaToVariant converts a Lua value returned from or passed into the
// script back to a ValueVariant, recursing through table values.
func luaToVariant(a *allocator.Allocator, lv lua.LValue) (value.Variant, error) {
	switch v := lv.(type) {
	case *lua.LNilType:
		return value.NewVoid(), nil
	case lua.LBool:
		return value.NewBool(bool(v)), nil
	case lua.LNumber:
		f := float64(v)
		if f == float64(int64(f)) {
			return value.NewInt(int64(f)), nil
		}
		return value.NewDouble(f), nil
	case lua.LString:
		return value.NewString(string(v)), nil
	case *lua.LTable:
		ser, err := tableToSerialization(a, v)
		if err != nil {
			return value.Variant{}, err
		}
		return serialization.AsVariant(ser), nil
	case *lua.LUserData:
		if h, ok := v.Value.(*value.HostObject); ok {
			return value.NewHostObjectValue(h), nil
		}
		return value.NewVoid(), nil
	default:
		return value.NewVoid(), nil
	}
}

// tableToSerialization walks an LTable's array part (in index order)
// followed by its hash part (in gopher-lua's internal iteration order;
// callers that need determinism should request canonical rendering
// downstream), building a Serialization.
func tableToSerialization(a *allocator.Allocator, t *lua.LTable) (*serialization.Serialization, error) {
	out := serialization.New()
	n := t.Len()
	for i := 1; i <= n; i++ {
		elem, err := luaValueToNodes(a, t.RawGetInt(i))
		if err != nil {
			return nil, err
		}
		appendNode(out, elem)
	}
	var walkErr error
	t.ForEach(func(k, v lua.LValue) {
		if walkErr != nil {
			return
		}
		if ik, ok := k.(lua.LNumber); ok {
			if i := int(ik); i >= 1 && i <= n && float64(i) == float64(ik) {
				return // already emitted as part of the array part above
			}
		}
		name, ok := k.(lua.LString)
		if !ok {
			return
		}
		out.PushNameString(string(name))
		elem, err := luaValueToNodes(a, v)
		if err != nil {
			walkErr = err
			return
		}
		appendNode(out, elem)
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}

type nodeElem struct {
	scalar value.Variant
	nested *serialization.Serialization
}

func luaValueToNodes(a *allocator.Allocator, lv lua.LValue) (nodeElem, error) {
	if t, ok := lv.(*lua.LTable); ok {
		ser, err := tableToSerialization(a, t)
		if err != nil {
			return nodeElem{}, err
		}
		return nodeElem{nested: ser}, nil
	}
	v, err := luaToVariant(a, lv)
	if err != nil {
		return nodeElem{}, err
	}
	return nodeElem{scalar: v}, nil
}

func appendNode(out *serialization.Serialization, e nodeElem) {
	if e.nested != nil {
		out.PushOpen()
		it := e.nested.Begin()
		for !it.Eof() {
			out.Push(it.Tag(), it.Value())
			it.Skip()
		}
		out.PushClose()
		return
	}
	out.PushValue(e.scalar)
}
