// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package luahandler

import (
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/serialization"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

func TestLuaToVariantScalars(t *testing.T) {
	a := allocator.New()
	cases := []struct {
		name string
		in   lua.LValue
		want value.Type
	}{
		{"string", lua.LString("x"), value.String},
		{"int", lua.LNumber(5), value.Int},
		{"double", lua.LNumber(1.5), value.Double},
		{"bool", lua.LBool(true), value.Bool},
		{"nil", lua.LNil, value.Void},
	}
	for _, c := range cases {
		v, err := luaToVariant(a, c.in)
		if err != nil {
			t.Fatalf("%s: luaToVariant: %v", c.name, err)
		}
		if v.Type() != c.want {
			t.Fatalf("%s: type = %v, want %v", c.name, v.Type(), c.want)
		}
	}
}

func TestTableToSerializationArrayAndHashParts(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	a := allocator.New()

	tbl := L.NewTable()
	tbl.RawSetInt(1, lua.LString("a"))
	tbl.RawSetInt(2, lua.LString("b"))
	tbl.RawSetString("name", lua.LString("joe"))

	ser, err := tableToSerialization(a, tbl)
	if err != nil {
		t.Fatalf("tableToSerialization: %v", err)
	}

	var arrayVals []string
	var nameVal string
	it := ser.Begin()
	for !it.Eof() {
		switch it.Tag() {
		case value.TagValue:
			s, _ := it.Value().ToString(nil)
			arrayVals = append(arrayVals, string(s))
			it.Skip()
		case value.TagName:
			n, _ := it.Value().ToString(nil)
			it.Skip()
			if string(n) == "name" {
				s, _ := it.Value().ToString(nil)
				nameVal = string(s)
			}
			it.Skip()
		default:
			it.Skip()
		}
	}
	if len(arrayVals) != 2 || arrayVals[0] != "a" || arrayVals[1] != "b" {
		t.Fatalf("array part = %v, want [a b]", arrayVals)
	}
	if nameVal != "joe" {
		t.Fatalf("name = %q, want \"joe\"", nameVal)
	}
}

func TestSerializationToTableRoundTrip(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	s := serialization.New()
	s.PushNameString("x")
	s.PushValue(value.NewInt(42))

	tbl, err := serializationToTable(L, s)
	if err != nil {
		t.Fatalf("serializationToTable: %v", err)
	}
	lv := tbl.RawGetString("x")
	n, ok := lv.(lua.LNumber)
	if !ok {
		t.Fatalf("x = %T, want lua.LNumber", lv)
	}
	if int64(n) != 42 {
		t.Fatalf("x = %v, want 42", n)
	}
}

func TestVariantToLuaSerializationProducesTable(t *testing.T) {
	L := lua.NewState()
	defer L.Close()

	s := serialization.New()
	s.PushValue(value.NewInt(1))
	s.PushValue(value.NewInt(2))
	v := serialization.AsVariant(s)

	lv, err := variantToLua(L, v)
	if err != nil {
		t.Fatalf("variantToLua: %v", err)
	}
	tbl, ok := lv.(*lua.LTable)
	if !ok {
		t.Fatalf("got %T, want *lua.LTable", lv)
	}
	if tbl.Len() != 2 {
		t.Fatalf("table length = %d, want 2", tbl.Len())
	}
}

func TestLuaToVariantNestedTableBecomesOpenBlock(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	a := allocator.New()

	inner := L.NewTable()
	inner.RawSetString("y", lua.LNumber(7))
	outer := L.NewTable()
	outer.RawSetString("child", inner)

	ser, err := tableToSerialization(a, outer)
	if err != nil {
		t.Fatalf("tableToSerialization: %v", err)
	}
	it := ser.Begin()
	if it.Tag() != value.TagName {
		t.Fatal("expected a Name node for \"child\"")
	}
	it.Skip()
	if it.Tag() != value.TagOpen {
		t.Fatal("expected the nested table to be wrapped in an Open block")
	}
}
