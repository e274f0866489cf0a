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

func newTestInvocation(t *testing.T, schemas SchemaLookup, accept AcceptSet) *Invocation {
	t.Helper()
	cs, err := Compile("function Get() end", "builtins.lua")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	h := NewHandler(cs, nil, schemas, accept)
	inv := NewInvocation(h, allocator.New())
	t.Cleanup(inv.Close)
	return inv
}

func TestBuiltinHTTPAcceptReturnsHandlerBits(t *testing.T) {
	inv := newTestInvocation(t, nil, AcceptSet{Bits: AcceptJSON, Preferred: AcceptJSON})
	if err := inv.L.DoString(`result = http_accept()`); err != nil {
		t.Fatalf("DoString: %v", err)
	}
	got := inv.L.GetGlobal("result")
	n, ok := got.(lua.LNumber)
	if !ok || ContentTypeBit(n) != AcceptJSON {
		t.Fatalf("http_accept() = %v, want AcceptJSON", got)
	}
}

func TestBuiltinLinkEchoesPath(t *testing.T) {
	inv := newTestInvocation(t, nil, AcceptSet{})
	if err := inv.L.DoString(`result = link("/widgets/7")`); err != nil {
		t.Fatalf("DoString: %v", err)
	}
	got := inv.L.GetGlobal("result")
	s, ok := got.(lua.LString)
	if !ok || string(s) != "/widgets/7" {
		t.Fatalf("link() = %v, want \"/widgets/7\"", got)
	}
}

func TestBuiltinContentDoctypeEncodingFirstCallWins(t *testing.T) {
	inv := newTestInvocation(t, nil, AcceptSet{})
	if err := inv.L.DoString(`
doctype("json")
doctype("xml")
encoding("utf-8")
encoding("utf-16be")
`); err != nil {
		t.Fatalf("DoString: %v", err)
	}
	if inv.doctype != "json" {
		t.Fatalf("doctype = %q, want %q (first call wins)", inv.doctype, "json")
	}
	if inv.encname != "utf-8" {
		t.Fatalf("encname = %q, want %q (first call wins)", inv.encname, "utf-8")
	}
}

func TestBuiltinTransactionAndCounterAreNoOps(t *testing.T) {
	inv := newTestInvocation(t, nil, AcceptSet{})
	if err := inv.L.DoString(`
transaction("begin", nil)
counter("requests")
`); err != nil {
		t.Fatalf("DoString: %v", err)
	}
}

func TestBuiltinLogDoesNotRaise(t *testing.T) {
	inv := newTestInvocation(t, nil, AcceptSet{})
	if err := inv.L.DoString(`
log("debug", "tag", "hello")
log("warn", "tag", 42)
log("error", "tag", true)
log("info", "tag", "x")
`); err != nil {
		t.Fatalf("DoString: %v", err)
	}
}

func TestBuiltinHTTPErrorRaisesLuaError(t *testing.T) {
	inv := newTestInvocation(t, nil, AcceptSet{})
	err := inv.L.DoString(`http_error(400, "bad request")`)
	if err == nil {
		t.Fatal("expected http_error to raise a Lua error")
	}
}

type fakeSchemaLookup struct {
	name     string
	content  []byte
	withRoot bool
}

func (f *fakeSchemaLookup) Parse(name string, content []byte, withRoot bool) (*serialization.Serialization, error) {
	f.name, f.content, f.withRoot = name, content, withRoot
	s := serialization.New()
	s.PushNameString("ok")
	s.PushValue(value.NewBool(true))
	return s, nil
}

func TestBuiltinSchemaValidatesAndReturnsTable(t *testing.T) {
	fs := &fakeSchemaLookup{}
	inv := newTestInvocation(t, fs, AcceptSet{})
	if err := inv.L.DoString(`result = schema("widget", "{}", true)`); err != nil {
		t.Fatalf("DoString: %v", err)
	}
	if fs.name != "widget" || !fs.withRoot {
		t.Fatalf("schema called with name=%q withRoot=%v", fs.name, fs.withRoot)
	}
	tbl, ok := inv.L.GetGlobal("result").(*lua.LTable)
	if !ok {
		t.Fatalf("result = %T, want *lua.LTable", inv.L.GetGlobal("result"))
	}
	if tbl.RawGetString("ok") != lua.LTrue {
		t.Fatalf("result.ok = %v, want true", tbl.RawGetString("ok"))
	}
}

func TestBuiltinSchemaWithoutRegistryIsError(t *testing.T) {
	inv := newTestInvocation(t, nil, AcceptSet{})
	if err := inv.L.DoString(`schema("widget", "{}")`); err == nil {
		t.Fatal("expected an error when no schema registry is configured")
	}
}

func TestBuiltinDocumentParsesJSONIntoTable(t *testing.T) {
	inv := newTestInvocation(t, nil, AcceptSet{})
	if err := inv.L.DoString(`result = document("json", "utf-8", '{"x":5}')`); err != nil {
		t.Fatalf("DoString: %v", err)
	}
	tbl, ok := inv.L.GetGlobal("result").(*lua.LTable)
	if !ok {
		t.Fatalf("result = %T, want *lua.LTable", inv.L.GetGlobal("result"))
	}
	// Every opened element nests its content one level, so a scalar
	// member surfaces as a single-element array, not a bare value.
	xs, ok := tbl.RawGetString("x").(*lua.LTable)
	if !ok {
		t.Fatalf("result.x = %T, want *lua.LTable", tbl.RawGetString("x"))
	}
	n, ok := xs.RawGetInt(1).(lua.LNumber)
	if !ok || int64(n) != 5 {
		t.Fatalf("result.x[1] = %v, want 5", xs.RawGetInt(1))
	}
}
