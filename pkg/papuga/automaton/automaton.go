// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package automaton

import "github.com/papuga-go/papuga/pkg/papuga/perror"

// MaxNofArguments bounds a single call's argument list.
const MaxNofArguments = 32

// MaxNofReturns bounds a function's return values.
const MaxNofReturns = 8

// ResolveType is the policy by which an argument slot or structure
// member selects its value from the scope-tagged value/structure maps
type ResolveType int

const (
	Required ResolveType = iota
	Optional
	Inherited
	Array
	ArrayNonEmpty
)

// ArgSlot is one call-argument or structure-member binding: either a
// context variable reference, or an item reference resolved against the
// call's Scope with the given policy.
type ArgSlot struct {
	VarName     string
	HasItem     bool
	ItemID      int
	ResolveType ResolveType
	MaxTagDiff  int
}

// CallDef schedules one method invocation. FuncID == 0 denotes a
// constructor.
type CallDef struct {
	Expr       string
	sel        *selector
	ClassID    int
	FuncID     int
	SelfVar    string
	ResultVar  string
	Args       []ArgSlot
	Group      int
	Append     bool
}

// StructMember is one named/positional binding of a StructDef.
type StructMember struct {
	Name        string
	VarName     string
	HasItem     bool
	ItemID      int
	ResolveType ResolveType
	MaxTagDiff  int
}

// StructDef synthesizes a Serialization from its Members whenever its
// selector's element closes.
type StructDef struct {
	Expr    string
	sel     *selector
	ItemID  int
	Members []StructMember
}

// ValueDef collects one scalar value whenever selectExpr matches inside
// the Scope established by scopeExpr.
type ValueDef struct {
	ScopeExpr  string
	SelectExpr string
	scopeSel   *selector
	selectSel  *selector
	ItemID     int
}

// Automaton is the compiled selector table: every ValueDef, StructDef
// and CallDef registered through the builder API before Done().
type Automaton struct {
	Values     []ValueDef
	Structs    []StructDef
	Calls      []CallDef
	done       bool
	groupStack []int
	nextGroup  int
}

// New creates an empty, mutable Automaton.
func New() *Automaton {
	return &Automaton{nextGroup: 1}
}

func (a *Automaton) requireOpen() error {
	if a.done {
		return perror.New(perror.ExecutionOrder, "automaton already finalized by Done()")
	}
	return nil
}

// AddValue registers a ValueDef; scopeExpr may be empty to mean "the
// whole document".
func (a *Automaton) AddValue(scopeExpr, selectExpr string, itemid int) error {
	if err := a.requireOpen(); err != nil {
		return err
	}
	var scopeSel *selector
	if scopeExpr != "" {
		s, err := compileSelector(scopeExpr)
		if err != nil {
			return err
		}
		scopeSel = s
	}
	selectSel, err := compileSelector(selectExpr)
	if err != nil {
		return err
	}
	a.Values = append(a.Values, ValueDef{ScopeExpr: scopeExpr, SelectExpr: selectExpr, scopeSel: scopeSel, selectSel: selectSel, ItemID: itemid})
	return nil
}

// AddStructure registers a StructDef with nMembers slots to be filled by
// SetStructureElement, and returns its index.
func (a *Automaton) AddStructure(expr string, itemid int, nMembers int) (int, error) {
	if err := a.requireOpen(); err != nil {
		return 0, err
	}
	sel, err := compileSelector(expr)
	if err != nil {
		return 0, err
	}
	idx := len(a.Structs)
	a.Structs = append(a.Structs, StructDef{Expr: expr, sel: sel, ItemID: itemid, Members: make([]StructMember, nMembers)})
	return idx, nil
}

// SetStructureElement fills member idx of the structure at structIdx.
// Exactly one of itemid (itemGiven=true) or varname identifies the
// source.
func (a *Automaton) SetStructureElement(structIdx, idx int, name string, itemid int, itemGiven bool, varname string, resolveType ResolveType, maxTagDiff int) error {
	if err := a.requireOpen(); err != nil {
		return err
	}
	if structIdx < 0 || structIdx >= len(a.Structs) {
		return perror.New(perror.OutOfRangeError, "structure index %d out of range", structIdx)
	}
	s := &a.Structs[structIdx]
	if idx < 0 || idx >= len(s.Members) {
		return perror.New(perror.OutOfRangeError, "structure member index %d out of range", idx)
	}
	s.Members[idx] = StructMember{Name: name, ItemID: itemid, HasItem: itemGiven, VarName: varname, ResolveType: resolveType, MaxTagDiff: maxTagDiff}
	return nil
}

// AddCall registers a CallDef with nargs argument slots, to be filled by
// SetCallArgVar/SetCallArgItem, and returns its index.
func (a *Automaton) AddCall(expr string, classid, funcid int, selfVar, resultVar string, nargs int) (int, error) {
	if err := a.requireOpen(); err != nil {
		return 0, err
	}
	if nargs > MaxNofArguments {
		return 0, perror.New(perror.NofArgsError, "call at %q declares %d arguments, limit is %d", expr, nargs, MaxNofArguments)
	}
	sel, err := compileSelector(expr)
	if err != nil {
		return 0, err
	}
	idx := len(a.Calls)
	group := idx
	if len(a.groupStack) > 0 {
		group = a.groupStack[len(a.groupStack)-1]
	}
	a.Calls = append(a.Calls, CallDef{Expr: expr, sel: sel, ClassID: classid, FuncID: funcid, SelfVar: selfVar, ResultVar: resultVar, Args: make([]ArgSlot, nargs), Group: group})
	return idx, nil
}

// SetCallAppend marks the call's result as appended to resultVar (which
// must be or become a Serialization) instead of overwriting it.
func (a *Automaton) SetCallAppend(callIdx int, append bool) error {
	if callIdx < 0 || callIdx >= len(a.Calls) {
		return perror.New(perror.OutOfRangeError, "call index %d out of range", callIdx)
	}
	a.Calls[callIdx].Append = append
	return nil
}

// SetCallArgVar binds argument idx of call callIdx to a context
// variable.
func (a *Automaton) SetCallArgVar(callIdx, idx int, varname string) error {
	if err := a.requireOpen(); err != nil {
		return err
	}
	c := &a.Calls[callIdx]
	if idx < 0 || idx >= len(c.Args) {
		return perror.New(perror.OutOfRangeError, "argument index %d out of range", idx)
	}
	c.Args[idx] = ArgSlot{VarName: varname}
	return nil
}

// SetCallArgItem binds argument idx of call callIdx to an item
// (value/structure) resolved against the call's scope.
func (a *Automaton) SetCallArgItem(callIdx, idx, itemid int, resolveType ResolveType, maxTagDiff int) error {
	if err := a.requireOpen(); err != nil {
		return err
	}
	c := &a.Calls[callIdx]
	if idx < 0 || idx >= len(c.Args) {
		return perror.New(perror.OutOfRangeError, "argument index %d out of range", idx)
	}
	c.Args[idx] = ArgSlot{HasItem: true, ItemID: itemid, ResolveType: resolveType, MaxTagDiff: maxTagDiff}
	return nil
}

// OpenGroup begins a group that forces in-order execution across its
// members even when scopes would otherwise reorder them.
func (a *Automaton) OpenGroup(groupid int) error {
	if err := a.requireOpen(); err != nil {
		return err
	}
	a.groupStack = append(a.groupStack, groupid)
	return nil
}

// CloseGroup ends the most recently opened group.
func (a *Automaton) CloseGroup() error {
	if err := a.requireOpen(); err != nil {
		return err
	}
	if len(a.groupStack) == 0 {
		return perror.New(perror.LogicError, "CloseGroup without matching OpenGroup")
	}
	a.groupStack = a.groupStack[:len(a.groupStack)-1]
	return nil
}

// Done finalizes the builder; later mutation returns ExecutionOrder.
func (a *Automaton) Done() error {
	if len(a.groupStack) != 0 {
		return perror.New(perror.LogicError, "unbalanced OpenGroup/CloseGroup")
	}
	a.done = true
	return nil
}
