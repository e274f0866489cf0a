// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package luahandler implements a scripted request handler: it compiles
// a Lua source once per service object and runs it, via a yield/resume
// coroutine cycle, against one request's content and delegate I/O per
// invocation.
package luahandler

import (
	"regexp"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
	luaparse "github.com/yuin/gopher-lua/parse"

	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/serialization"
)

// MaxNofDelegates bounds the number of delegate requests a single
// script invocation may enqueue via send().
const MaxNofDelegates = 256

var exportedFuncRe = regexp.MustCompile(`(?m)^\s*function\s+([A-Z][A-Za-z0-9_]*)\s*\(`)

// CompiledScript is a Lua source compiled once and reused across every
// request the handler serves: gopher-lua's FunctionProto is already the
// bytecode form the VM loads without re-parsing, so it plays the role a
// dumped compiled binary would.
type CompiledScript struct {
	Source  string
	Proto   *lua.FunctionProto
	Methods []string // sorted, uppercase-named top-level functions
}

// Compile parses and compiles source once. Script syntax errors surface
// as perror.SyntaxError.
func Compile(source, chunkName string) (*CompiledScript, error) {
	chunk, err := luaparse.Parse(strings.NewReader(source), chunkName)
	if err != nil {
		return nil, perror.New(perror.SyntaxError, "lua parse error in %q: %v", chunkName, err)
	}
	proto, err := lua.Compile(chunk, chunkName)
	if err != nil {
		return nil, perror.New(perror.SyntaxError, "lua compile error in %q: %v", chunkName, err)
	}
	methods := exportedMethods(source)
	return &CompiledScript{Source: source, Proto: proto, Methods: methods}, nil
}

// exportedMethods returns the sorted, uppercase-named top-level function
// names, the REST-ish convention a route binding dispatches against.
func exportedMethods(source string) []string {
	matches := exportedFuncRe.FindAllStringSubmatch(source, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	sort.Strings(out)
	return out
}

// Handler binds one CompiledScript to the schema lookup, delegate
// dispatcher and Accept set every request invocation needs.
type Handler struct {
	script    *CompiledScript
	Delegate  DelegateDispatcher
	Schemas   SchemaLookup
	Accept    AcceptSet
}

// DelegateDispatcher performs the out-of-process calls a script
// enqueues via send(), e.g. backed by an in-process table or NATS
// request/reply.
type DelegateDispatcher interface {
	Dispatch(reqs []DelegateRequest) ([]DelegateResult, error)
}

// SchemaLookup resolves a schema name to its parser for the script's
// schema() builtin.
type SchemaLookup interface {
	Parse(name string, content []byte, withRoot bool) (*serialization.Serialization, error)
}

// DelegateRequest is one send() invocation queued by the script.
type DelegateRequest struct {
	Method string
	URL    string
	Value  interface{}
}

// DelegateResult is the host's answer to one DelegateRequest, supplied
// back in the same index order as the requests were enqueued.
type DelegateResult struct {
	Value interface{}
	Err   error
}

// NewHandler binds script to a dispatcher and schema lookup.
func NewHandler(script *CompiledScript, dispatch DelegateDispatcher, schemas SchemaLookup, accept AcceptSet) *Handler {
	return &Handler{script: script, Delegate: dispatch, Schemas: schemas, Accept: accept}
}

// Methods exposes the compiled script's sorted, uppercase exported
// function names.
func (h *Handler) Methods() []string {
	return h.script.Methods
}
