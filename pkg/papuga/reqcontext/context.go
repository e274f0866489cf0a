// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package reqcontext implements RequestContext and RequestContextPool:
// the copy-on-write binding of context variables and host-object class
// instances that every request executes against, and a pool that lets a
// warmed-up context (pre-bound globals, cached class/method lookup
// tables) be reused across requests without re-paying setup cost.
package reqcontext

import (
	"sync"

	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// ClassDef describes one host-object class registered with a context:
// its constructor and methods, addressed by the small integer ids the
// compiled Automaton's CallDef carries.
type ClassDef struct {
	Name        string
	ClassID     int
	Constructor Method
	Methods     []Method
}

// Method is a single bound function: either a class method (self != nil
// on invocation) or a constructor (self is nil, the return value becomes
// the new instance).
type Method struct {
	Name string
	Call func(a *allocator.Allocator, self *value.HostObject, args []value.Variant) (value.Variant, error)
}

// varmap is the copy-on-write variable table shared between a parent
// RequestContext and every context Fork()'d from it until one of them
// actually mutates it.
type varmap struct {
	vars map[string]value.Variant
}

func (m *varmap) clone() *varmap {
	n := make(map[string]value.Variant, len(m.vars))
	for k, v := range m.vars {
		n[k] = v
	}
	return &varmap{vars: n}
}

// RequestContext binds a set of global context variables and registered
// classes that a Request executes its scheduled calls against. Forking
// a context is cheap (shares the parent's varmap until written) so a
// pool can hand out a warm base context to every incoming request
// without copying its full variable set up front.
type RequestContext struct {
	mu      sync.Mutex
	vars    *varmap
	owned   bool // true once this context has its own (post-COW) varmap
	classes map[int]*ClassDef
	byName  map[string]*ClassDef
}

// New creates an empty, writable RequestContext.
func New() *RequestContext {
	return &RequestContext{
		vars:    &varmap{vars: map[string]value.Variant{}},
		owned:   true,
		classes: map[int]*ClassDef{},
		byName:  map[string]*ClassDef{},
	}
}

// RegisterClass adds or replaces a class definition. Not safe to call
// concurrently with Fork/GetVar/SetVar on the same context.
func (c *RequestContext) RegisterClass(def *ClassDef) {
	c.classes[def.ClassID] = def
	c.byName[def.Name] = def
}

// ClassByID looks up a registered class by its CallDef.ClassID.
func (c *RequestContext) ClassByID(id int) (*ClassDef, error) {
	d, ok := c.classes[id]
	if !ok {
		return nil, perror.New(perror.AddressedItemNotFound, "class id %d not registered", id)
	}
	return d, nil
}

// ClassByName looks up a registered class by name, as used by the Lua
// binding layer.
func (c *RequestContext) ClassByName(name string) (*ClassDef, error) {
	d, ok := c.byName[name]
	if !ok {
		return nil, perror.New(perror.AddressedItemNotFound, "class %q not registered", name)
	}
	return d, nil
}

// GetVar reads a context variable. Safe for concurrent use with other
// readers; a concurrent Fork is safe too since forking never mutates the
// parent's varmap.
func (c *RequestContext) GetVar(name string) (value.Variant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vars.vars[name]
	return v, ok
}

// SetVar writes a context variable, copying the shared varmap on first
// write after a Fork (copy-on-write).
func (c *RequestContext) SetVar(name string, v value.Variant) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.owned {
		c.vars = c.vars.clone()
		c.owned = true
	}
	c.vars.vars[name] = v
}

// Fork returns a new RequestContext that shares this context's variable
// map and class tables until the child calls SetVar, at which point the
// child copies the map for itself. The parent is unaffected by anything
// the child does, and likewise copies the map on its own next SetVar.
func (c *RequestContext) Fork() *RequestContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owned = false
	return &RequestContext{
		vars:    c.vars,
		owned:   false,
		classes: c.classes, // class tables are immutable after setup, shared freely
		byName:  c.byName,
	}
}

// VarNames returns a snapshot of the currently bound variable names,
// primarily for diagnostics and tests.
func (c *RequestContext) VarNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.vars.vars))
	for k := range c.vars.vars {
		out = append(out, k)
	}
	return out
}
