// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package luahandler

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/papuga-go/papuga/pkg/log"
	"github.com/papuga-go/papuga/pkg/papuga/document"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// registerBuiltins installs every script-facing global function on
// the coroutine's parent state; functions registered on L are visible
// from every coroutine spawned off it.
func (inv *Invocation) registerBuiltins() {
	L := inv.L
	L.SetGlobal("http_error", L.NewFunction(inv.builtinHTTPError))
	L.SetGlobal("yield", L.NewFunction(inv.builtinYield))
	L.SetGlobal("send", L.NewFunction(inv.builtinSend))
	L.SetGlobal("document", L.NewFunction(inv.builtinDocument))
	L.SetGlobal("log", L.NewFunction(inv.builtinLog))
	L.SetGlobal("transaction", L.NewFunction(inv.builtinTransaction))
	L.SetGlobal("counter", L.NewFunction(inv.builtinCounter))
	L.SetGlobal("link", L.NewFunction(inv.builtinLink))
	L.SetGlobal("http_accept", L.NewFunction(inv.builtinHTTPAccept))
	L.SetGlobal("schema", L.NewFunction(inv.builtinSchema))
	L.SetGlobal("content", L.NewFunction(inv.builtinContent))
	L.SetGlobal("doctype", L.NewFunction(inv.builtinDoctype))
	L.SetGlobal("encoding", L.NewFunction(inv.builtinEncoding))
}

// builtinHTTPError raises a script-declared HTTP failure: http_error(code, message).
func (inv *Invocation) builtinHTTPError(L *lua.LState) int {
	code := L.CheckInt(1)
	msg := L.OptString(2, "")
	L.RaiseError("http_error %d: %s", code, msg)
	return 0
}

// builtinYield suspends the coroutine, handing every value passed back
// to the host via Resume's return values.
func (inv *Invocation) builtinYield(L *lua.LState) int {
	n := L.GetTop()
	vals := make([]lua.LValue, n)
	for i := 1; i <= n; i++ {
		vals[i-1] = L.Get(i)
	}
	return L.Yield(vals...)
}

// builtinSend enqueues a delegate request: send(method, url, value).
// Does not suspend; the script observes its results after the next
// yield.
func (inv *Invocation) builtinSend(L *lua.LState) int {
	if len(inv.pending) >= MaxNofDelegates {
		L.RaiseError("send: exceeded MAX_NOF_DELEGATES (%d)", MaxNofDelegates)
		return 0
	}
	method := L.CheckString(1)
	url := L.CheckString(2)
	var val interface{}
	if L.GetTop() >= 3 {
		v, err := luaToVariant(inv.a, L.Get(3))
		if err != nil {
			L.RaiseError("send: %v", err)
			return 0
		}
		val = v
	}
	inv.pending = append(inv.pending, DelegateRequest{Method: method, URL: url, Value: val})

	handle := &delegateHandle{}
	inv.pendingHandles = append(inv.pendingHandles, handle)

	ud := L.NewUserData()
	ud.Value = handle
	L.SetMetatable(ud, inv.sendMT)
	L.Push(ud)
	return 1
}

// builtinDocument parses document(type, enc, value) eagerly and returns
// it as a native table, used by scripts that need to re-ingest a
// sub-document they received as a plain string.
func (inv *Invocation) builtinDocument(L *lua.LState) int {
	ctName := L.CheckString(1)
	encName := L.OptString(2, "utf-8")
	rawStr := L.CheckString(3)

	// Route the incoming payload through the request's slab allocator
	// so its lifetime (and size-class bucket) matches every other
	// buffer the handler hands the script, rather than a bare Go string
	// copy.
	raw := inv.slab.alloc(len(rawStr))
	copy(raw, rawStr)

	ct := document.UnknownContent
	switch ctName {
	case "xml":
		ct = document.XML
	case "json":
		ct = document.JSON
	}
	enc := parseEncodingName(encName)

	parser, _, err := document.Open(raw, ct, enc)
	if err != nil {
		L.RaiseError("document: %v", err)
		return 0
	}
	var events []document.Event
	for {
		ev, err := parser.Next()
		if err != nil {
			L.RaiseError("document: %v", err)
			return 0
		}
		if ev.Type == document.None {
			break
		}
		events = append(events, ev)
	}
	t, err := eventsToTable(L, events)
	if err != nil {
		L.RaiseError("document: %v", err)
		return 0
	}
	L.Push(t)
	return 1
}

// builtinLog forwards a script log record to the host logger:
// log(level, tag, value).
func (inv *Invocation) builtinLog(L *lua.LState) int {
	level := L.CheckString(1)
	tag := L.CheckString(2)
	val := luaValueString(L.Get(3))
	switch level {
	case "debug":
		log.Debugf("lua[%s]: %s", tag, val)
	case "warn":
		log.Warnf("lua[%s]: %s", tag, val)
	case "error":
		log.Errorf("lua[%s]: %s", tag, val)
	default:
		log.Infof("lua[%s]: %s", tag, val)
	}
	return 0
}

// builtinTransaction marks the start/end of a transactional block:
// transaction(type, self). Host bookkeeping only; no return value.
func (inv *Invocation) builtinTransaction(L *lua.LState) int {
	L.CheckString(1)
	L.Get(2)
	return 0
}

// builtinCounter backs counter(type): it checks that type is a string
// and does nothing else. It does not increment any internal/metrics
// counter.
func (inv *Invocation) builtinCounter(L *lua.LState) int {
	L.CheckString(1)
	return 0
}

// builtinLink renders a same-service hyperlink: link(path).
func (inv *Invocation) builtinLink(L *lua.LState) int {
	path := L.CheckString(1)
	L.Push(lua.LString(path))
	return 1
}

// builtinHTTPAccept returns the handler's parsed Accept bitset as an
// integer the script can compare against.
func (inv *Invocation) builtinHTTPAccept(L *lua.LState) int {
	L.Push(lua.LNumber(inv.h.Accept.Bits))
	return 1
}

// builtinSchema validates content against a precompiled schema:
// schema(name, content[, withRoot]).
func (inv *Invocation) builtinSchema(L *lua.LState) int {
	name := L.CheckString(1)
	content := L.CheckString(2)
	withRoot := L.OptBool(3, false)
	if inv.h.Schemas == nil {
		L.RaiseError("schema: no schema registry configured")
		return 0
	}
	ser, err := inv.h.Schemas.Parse(name, []byte(content), withRoot)
	if err != nil {
		L.RaiseError("schema %q: %v", name, err)
		return 0
	}
	lv, err := serializationToTable(L, ser)
	if err != nil {
		L.RaiseError("schema %q: %v", name, err)
		return 0
	}
	L.Push(lv)
	return 1
}

// builtinContent backs content(raw): it detects the document type of raw
// (XML, JSON or unknown) and records it as the invocation's doctype
// unless a doctype is already recorded, so the first content() or
// doctype() call wins. It records no encoding, and a later conflicting
// observation is ignored; it is not compared against the Accept set.
func (inv *Invocation) builtinContent(L *lua.LState) int {
	raw := L.CheckString(1)
	if inv.doctype == "" {
		inv.doctype = document.DetectContentType([]byte(raw)).String()
	}
	return 0
}

func (inv *Invocation) builtinDoctype(L *lua.LState) int {
	raw := L.CheckString(1)
	if inv.doctype == "" {
		inv.doctype = raw
	}
	return 0
}

func (inv *Invocation) builtinEncoding(L *lua.LState) int {
	raw := L.CheckString(1)
	if inv.encname == "" {
		inv.encname = raw
	}
	return 0
}

func parseEncodingName(name string) value.Encoding {
	switch name {
	case "utf-16be":
		return value.UTF16BE
	case "utf-16le":
		return value.UTF16LE
	case "utf-32be":
		return value.UTF32BE
	case "utf-32le":
		return value.UTF32LE
	case "binary":
		return value.Binary
	default:
		return value.UTF8
	}
}

// eventsToTable linearizes a flat document event stream into a native
// Lua table without requiring a schema. Every Open nests its content one
// table level, so a scalar member becomes a one-element array ({"x":5}
// gives x = {5}), unlike serializationToTable, which maps a named scalar
// to a bare value.
func eventsToTable(L *lua.LState, events []document.Event) (*lua.LTable, error) {
	root := L.NewTable()
	_, err := buildEventTable(L, root, events, 0)
	return root, err
}

func buildEventTable(L *lua.LState, t *lua.LTable, events []document.Event, pos int) (int, error) {
	idx := 1
	for pos < len(events) {
		ev := events[pos]
		switch ev.Type {
		case document.Close:
			return pos + 1, nil
		case document.Open:
			child := L.NewTable()
			next, err := buildEventTable(L, child, events, pos+1)
			if err != nil {
				return pos, err
			}
			if ev.Name != "" {
				t.RawSetString(ev.Name, child)
			} else {
				t.RawSetInt(idx, child)
				idx++
			}
			pos = next
		case document.Value, document.AttributeValue:
			lv, err := variantToLua(L, ev.Val)
			if err != nil {
				return pos, err
			}
			if ev.Name != "" {
				t.RawSetString(ev.Name, lv)
			} else {
				t.RawSetInt(idx, lv)
				idx++
			}
			pos++
		default:
			pos++
		}
	}
	return pos, nil
}
