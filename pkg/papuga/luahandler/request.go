// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package luahandler

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/papuga-go/papuga/pkg/log"
	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// delegateHandle is the boxed userdata send() returns: the script may
// hold onto it past the next yield and read its result fields once the
// dispatcher has answered.
type delegateHandle struct {
	result *DelegateResult
}

// Invocation is one run of the handler's script against a single
// request's content, from initial call through every yield/resume round
// trip to the final result.
type Invocation struct {
	h              *Handler
	L              *lua.LState
	co             *lua.LState
	cancel         func()
	slab           *slabAllocator
	a              *allocator.Allocator
	fn             *lua.LFunction
	pending        []DelegateRequest
	pendingHandles []*delegateHandle
	sendMT         *lua.LTable
	doctype        string
	encname        string
}

// NewInvocation creates a fresh Lua state for one request, loading the
// handler's compiled proto and registering its built-ins. The state's
// buffers are served by a size-class slab allocator; gopher-lua does not
// expose a low-level allocator hook, so the slab only serves the copy of
// the payload the document() built-in parses; schema() payloads, send()
// bodies and the VM's own internal object graph do not use it.
func NewInvocation(h *Handler, a *allocator.Allocator) *Invocation {
	L := lua.NewState()
	inv := &Invocation{h: h, L: L, slab: newSlabAllocator(), a: a}
	inv.registerBuiltins()
	inv.sendMT = L.NewTable()
	L.SetField(inv.sendMT, "__index", L.NewFunction(inv.delegateIndex))
	return inv
}

// delegateIndex backs the metatable of every userdata send() returns:
// delegate_result[key] reads into the dispatched DelegateResult's Value
// once the coroutine has resumed past the yield that serviced it, and
// is nil before that.
func (inv *Invocation) delegateIndex(L *lua.LState) int {
	ud := L.CheckUserData(1)
	key := L.CheckString(2)
	h, ok := ud.Value.(*delegateHandle)
	if !ok || h.result == nil || h.result.Err != nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(goToLua(L, goField(h.result.Value, key)))
	return 1
}

// Run loads the compiled script as the coroutine's entry function and
// starts it with (context, content, path, contextName), driving the
// yield/resume cycle until the script returns or a terminal error
// occurs.
func (inv *Invocation) Run(context, content, path, contextName string) (value.Variant, error) {
	fn := inv.L.NewFunctionFromProto(inv.h.script.Proto)
	inv.L.Push(fn)
	co, cancel := inv.L.NewThread()
	inv.co = co
	inv.cancel = cancel
	defer cancel()

	args := []lua.LValue{lua.LString(context), lua.LString(content), lua.LString(path), lua.LString(contextName)}
	return inv.resumeLoop(fn, args)
}

func (inv *Invocation) resumeLoop(fn *lua.LFunction, args []lua.LValue) (value.Variant, error) {
	for {
		st, rets, err := inv.L.Resume(inv.co, fn, args...)
		if err != nil {
			return value.Variant{}, classifyLuaError(err)
		}
		switch st {
		case lua.ResumeYield:
			results, err := inv.handleDelegates()
			if err != nil {
				return value.Variant{}, err
			}
			args = resultsToLuaArgs(inv.L, results)
			continue
		case lua.ResumeOK:
			return inv.marshalResult(rets)
		default:
			return value.Variant{}, perror.New(perror.ServiceImplementationError, "unexpected lua coroutine state %v", st)
		}
	}
}

// handleDelegates performs every DelegateRequest enqueued by send()
// since the last yield, via the handler's dispatcher, in the same order
// send() enqueued them, and writes each DelegateResult back into the
// delegateHandle userdata its send() call returned.
func (inv *Invocation) handleDelegates() ([]DelegateResult, error) {
	if len(inv.pending) == 0 {
		return nil, nil
	}
	pending, handles := inv.pending, inv.pendingHandles
	inv.pending, inv.pendingHandles = nil, nil
	if inv.h.Delegate == nil {
		return nil, perror.New(perror.DelegateRequestFailed, "handler has no delegate dispatcher configured")
	}
	results, err := inv.h.Delegate.Dispatch(pending)
	log.Debugf("papuga/luahandler: dispatched %d delegate request(s)", len(pending))
	if err != nil {
		return nil, perror.New(perror.DelegateRequestFailed, "delegate dispatch failed: %v", err)
	}
	for i := range results {
		if i < len(handles) {
			handles[i].result = &results[i]
		}
	}
	return results, nil
}

// resultsToLuaArgs converts each dispatched DelegateResult's Value to a
// Lua value, in the documented index order, for the yield() call that
// queued the requests to receive as its resume arguments.
func resultsToLuaArgs(L *lua.LState, results []DelegateResult) []lua.LValue {
	if len(results) == 0 {
		return nil
	}
	args := make([]lua.LValue, len(results))
	for i, r := range results {
		if r.Err != nil {
			args[i] = lua.LNil
			continue
		}
		args[i] = goToLua(L, r.Value)
	}
	return args
}

// marshalResult converts the script's first return value: a string
// becomes a String value, and a table, or any other value, goes through
// luaToVariant. A single-key table is converted like any other table;
// its key is not used as the root element name.
func (inv *Invocation) marshalResult(rets []lua.LValue) (value.Variant, error) {
	if len(rets) == 0 {
		return value.NewVoid(), nil
	}
	switch v := rets[0].(type) {
	case lua.LString:
		return value.NewString(string(v)), nil
	case *lua.LTable:
		return luaToVariant(inv.a, v)
	default:
		return luaToVariant(inv.a, v)
	}
}

// classifyLuaError maps a gopher-lua runtime failure into the engine's
// error taxonomy. Every VM failure surfaces as ServiceImplementationError;
// nothing about a script's own runtime error is the host's fault.
func classifyLuaError(err error) *perror.Error {
	msg := err.Error()
	if apiErr, ok := err.(*lua.ApiError); ok {
		if apiErr.Type == lua.ApiErrorRun {
			return perror.New(perror.ServiceImplementationError, "%s", msg)
		}
	}
	return perror.New(perror.ServiceImplementationError, "%s", msg)
}

// Close releases the invocation's Lua state. Safe to call after Run
// returns an error as well as on the success path: partial state is
// cleaned up by cancelling the coroutine and closing the Lua state. The
// allocator passed to NewInvocation is not destroyed here; its owner
// destroys it.
func (inv *Invocation) Close() {
	if inv.cancel != nil {
		inv.cancel()
	}
	inv.L.Close()
}

func luaValueString(lv lua.LValue) string {
	return fmt.Sprintf("%v", lv)
}
