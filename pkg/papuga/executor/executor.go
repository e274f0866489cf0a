// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package executor runs the call schedule a compiled automaton.Request
// produces against a reqcontext.RequestContext, in the order the
// automaton determined.
package executor

import (
	"fmt"

	"github.com/papuga-go/papuga/pkg/log"
	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/automaton"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/reqcontext"
	"github.com/papuga-go/papuga/pkg/papuga/serialization"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// serializationOf unwraps v's Serialization, if it carries one.
func serializationOf(v value.Variant) (*serialization.Serialization, bool) {
	return serialization.FromVariant(v)
}

// CallResult records one executed call's outcome for diagnostics and
// for the delegate-feedback channel.
type CallResult struct {
	Call  *automaton.CallInstance
	Value value.Variant
	Err   error
}

// Executor drives a scheduled call list against a RequestContext,
// feeding each call's result back into the context as ResultVar so
// later calls in the schedule can reference earlier ones by name.
type Executor struct {
	ctx   *reqcontext.RequestContext
	a     *allocator.Allocator
	req   *automaton.Request
	stopOnError bool
}

// New creates an Executor bound to ctx and the request's allocator.
// When stopOnError is false, a failing call is recorded in the returned
// results but does not prevent later independent calls from running; this
// is the "best effort" execution mode. The native HTTP routes pass true.
func New(ctx *reqcontext.RequestContext, a *allocator.Allocator, req *automaton.Request, stopOnError bool) *Executor {
	return &Executor{ctx: ctx, a: a, req: req, stopOnError: stopOnError}
}

// Run resolves arguments and invokes every scheduled call in order,
// returning one CallResult per call.
func (e *Executor) Run() ([]CallResult, error) {
	calls := e.req.Calls()
	results := make([]CallResult, 0, len(calls))
	for i := range calls {
		ci := &calls[i]
		res, err := e.runOne(ci)
		results = append(results, CallResult{Call: ci, Value: res, Err: err})
		if err != nil {
			log.Debugf("papuga/executor: call %q failed: %v", ci.Def.Expr, err)
			if e.stopOnError {
				return results, err
			}
		}
	}
	return results, nil
}

func (e *Executor) runOne(ci *automaton.CallInstance) (value.Variant, error) {
	if err := e.req.ResolveArgs(ci); err != nil {
		return value.Variant{}, err
	}
	def := ci.Def
	args := make([]value.Variant, len(def.Args))
	for i, slot := range def.Args {
		if slot.HasItem {
			args[i] = ci.ArgVals[i]
			continue
		}
		v, ok := e.ctx.GetVar(slot.VarName)
		if !ok {
			return value.Variant{}, perror.NewAt(perror.InvalidAccess, ci.EvIdx, "call %q references undefined context variable %q", def.Expr, slot.VarName)
		}
		args[i] = v
	}

	var self *value.HostObject
	if def.FuncID != 0 {
		if def.SelfVar == "" {
			return value.Variant{}, perror.NewAt(perror.MissingSelf, ci.EvIdx, "call %q is a method but declares no self variable", def.Expr)
		}
		selfVal, ok := e.ctx.GetVar(def.SelfVar)
		if !ok {
			return value.Variant{}, perror.NewAt(perror.MissingSelf, ci.EvIdx, "call %q: self variable %q is unbound", def.Expr, def.SelfVar)
		}
		self = selfVal.Host()
		if self == nil {
			return value.Variant{}, perror.NewAt(perror.MissingSelf, ci.EvIdx, "call %q: self variable %q is not a host object", def.Expr, def.SelfVar)
		}
	}

	class, err := e.ctx.ClassByID(def.ClassID)
	if err != nil {
		return value.Variant{}, err
	}
	var method *reqcontext.Method
	if def.FuncID == 0 {
		method = &class.Constructor
	} else if def.FuncID-1 < len(class.Methods) {
		method = &class.Methods[def.FuncID-1]
	}
	if method == nil || method.Call == nil {
		return value.Variant{}, perror.NewAt(perror.AddressedItemNotFound, ci.EvIdx, "class %q declares no function id %d", class.Name, def.FuncID)
	}

	result, err := method.Call(e.a, self, args)
	if err != nil {
		return value.Variant{}, fmt.Errorf("%s.%s: %w", class.Name, method.Name, err)
	}

	if def.ResultVar != "" {
		e.bindResult(def, result)
	}
	return result, nil
}

// bindResult stores a call's return value into its ResultVar, appending
// to an existing Serialization there instead of overwriting it when the
// call was declared with Append, for repeated-call accumulation.
func (e *Executor) bindResult(def *automaton.CallDef, result value.Variant) {
	if !def.Append {
		e.ctx.SetVar(def.ResultVar, result)
		return
	}
	existing, ok := e.ctx.GetVar(def.ResultVar)
	if !ok || !existing.Defined() {
		e.ctx.SetVar(def.ResultVar, result)
		return
	}
	ser, ok := serializationOf(existing)
	if !ok {
		e.ctx.SetVar(def.ResultVar, result)
		return
	}
	ser.PushValue(result)
	e.ctx.SetVar(def.ResultVar, value.NewSerializationValue(ser))
}
