// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package automaton

import (
	"sort"

	"github.com/papuga-go/papuga/pkg/papuga/document"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/serialization"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// Scope is the half-open [From,To) event-index range an element
// occupies, From being the index of its Open event and To the index one
// past its matching Close. A value's or structure's Scope
// is used both to order calls and to resolve "Inherited"/"Array"
// argument items against the enclosing element.
type Scope struct {
	From, To int
}

// Contains reports whether inner lies within (or equals) s.
func (s Scope) Contains(inner Scope) bool {
	return s.From <= inner.From && inner.To <= s.To
}

// collectedValue is one instance of a ValueDef collected at runtime.
type collectedValue struct {
	Scope Scope
	Depth int // nesting depth of the value's enclosing element
	Val   value.Variant
}

// collectedStruct is one instance of a StructDef collected at runtime.
type collectedStruct struct {
	Scope Scope
	Ser   *serialization.Serialization
}

// CallInstance is one scheduled method invocation, ready for the
// executor once its Args are resolved.
type CallInstance struct {
	Def      *CallDef
	Scope    Scope
	Depth    int // nesting depth of the call's own element
	EvIdx    int
	ArgVals  []value.Variant // parallel to Def.Args; Void where unresolved-optional
	ArgValid []bool
}

// Request drives a parsed event stream against a compiled Automaton,
// collecting every ValueDef/StructDef instance and scheduling every
// CallDef match in the order the executor must run them.
type Request struct {
	a     *Automaton
	path  []string
	open  []openElem
	evidx int

	values  map[int][]collectedValue
	structs map[int][]collectedStruct
	calls   []CallInstance
}

type openElem struct {
	name  string
	start int
}

// NewRequest creates a Request runtime bound to the finalized Automaton a.
func NewRequest(a *Automaton) *Request {
	return &Request{
		a:       a,
		values:  map[int][]collectedValue{},
		structs: map[int][]collectedStruct{},
	}
}

// Run consumes every event from p, building the Values/Structures maps
// and the CallInstances schedule. Events are indexed
// by their position (evidx) in the stream, starting at 0.
func (r *Request) Run(p document.Parser) error {
	for {
		ev, err := p.Next()
		if err != nil {
			return err
		}
		if ev.Type == document.None {
			break
		}
		if err := r.feed(ev); err != nil {
			return err
		}
		r.evidx++
	}
	if len(r.open) != 0 {
		return perror.New(perror.SyntaxError, "document ended with %d element(s) still open", len(r.open))
	}
	sort.SliceStable(r.calls, func(i, j int) bool {
		ci, cj := r.calls[i], r.calls[j]
		if ci.Def.Group != cj.Def.Group {
			return ci.Def.Group < cj.Def.Group
		}
		if ci.Scope.To != cj.Scope.To {
			return ci.Scope.To < cj.Scope.To
		}
		return ci.EvIdx < cj.EvIdx
	})
	return nil
}

func (r *Request) feed(ev document.Event) error {
	switch ev.Type {
	case document.Open:
		r.open = append(r.open, openElem{name: ev.Name, start: r.evidx})
		r.path = append(r.path, ev.Name)
		r.matchValues(ev)
	case document.Close:
		if len(r.open) == 0 {
			return perror.NewAt(perror.SyntaxError, r.evidx, "unmatched close event")
		}
		top := r.open[len(r.open)-1]
		r.open = r.open[:len(r.open)-1]
		sc := Scope{From: top.start, To: r.evidx + 1}
		if err := r.matchStructsAndCalls(sc); err != nil {
			return err
		}
		r.path = r.path[:len(r.path)-1]
	case document.Value:
		r.matchValues(ev)
	case document.AttributeName, document.AttributeValue:
		r.matchValues(ev)
	}
	return nil
}

// matchValues tests every ValueDef's select selector against the
// current path (and, for Open/Value events, records a value).
func (r *Request) matchValues(ev document.Event) {
	path := r.path
	if ev.Type == document.Open {
		// Opening elements cannot themselves carry a scalar value; only
		// their later Value/AttributeValue children do. Nothing to match
		// here beyond scope tracking already done by the caller.
		return
	}
	if !ev.Val.Defined() && ev.Type != document.AttributeValue {
		return
	}
	for i := range r.a.Values {
		vd := &r.a.Values[i]
		if vd.scopeSel != nil && !r.inScope(vd.scopeSel) {
			continue
		}
		matchPath := path
		attrName := ""
		if ev.Type == document.AttributeValue {
			attrName = ev.Name
			matched := vd.selectSel.matchAttr(matchPath, attrName)
			if !matched {
				continue
			}
		} else if !vd.selectSel.matchElementPath(matchPath) {
			continue
		}
		scope := Scope{From: r.evidx, To: r.evidx + 1}
		if len(r.open) > 0 {
			scope.From = r.open[len(r.open)-1].start
		}
		r.values[vd.ItemID] = append(r.values[vd.ItemID], collectedValue{Scope: scope, Depth: len(path), Val: ev.Val})
	}
}

// inScope reports whether sel matches some ancestor currently open.
func (r *Request) inScope(sel *selector) bool {
	for depth := 1; depth <= len(r.path); depth++ {
		if sel.matchElementPath(r.path[:depth]) {
			return true
		}
	}
	return false
}

// matchStructsAndCalls runs at the Close of every element, since both
// StructDef and CallDef fire once their governing element's Scope is
// fully known.
func (r *Request) matchStructsAndCalls(sc Scope) error {
	path := r.path
	depth := len(path)
	for i := range r.a.Structs {
		sd := &r.a.Structs[i]
		if sd.sel.matchElementPath(path) {
			ser, err := r.buildStruct(sd, sc, depth)
			if err != nil {
				return err
			}
			r.structs[sd.ItemID] = append(r.structs[sd.ItemID], collectedStruct{Scope: sc, Ser: ser})
		}
	}
	for i := range r.a.Calls {
		cd := &r.a.Calls[i]
		if cd.sel.matchElementPath(path) {
			r.calls = append(r.calls, CallInstance{Def: cd, Scope: sc, Depth: depth, EvIdx: r.evidx})
		}
	}
	return nil
}

func (r *Request) buildStruct(sd *StructDef, sc Scope, depth int) (*serialization.Serialization, error) {
	ser := serialization.New()
	for _, m := range sd.Members {
		ser.PushNameString(m.Name)
		if !m.HasItem {
			ser.PushValue(value.NewVoid())
			continue
		}
		v, ok, err := r.resolveItemValue(m.ItemID, sc, depth, m.ResolveType, m.MaxTagDiff)
		if err != nil {
			return nil, err
		}
		if ok {
			ser.PushValue(v)
		} else {
			ser.PushValue(value.NewVoid())
		}
	}
	return ser, nil
}

// tagDiffExceeds reports whether the nesting-depth gap between a
// resolver at depth and a candidate at candDepth exceeds maxTagDiff.
// maxTagDiff <= 0 means unbounded: every technically-enclosed candidate
// is eligible regardless of depth.
func tagDiffExceeds(depth, candDepth, maxTagDiff int) bool {
	if maxTagDiff <= 0 {
		return false
	}
	diff := candDepth - depth
	if diff < 0 {
		diff = -diff
	}
	return diff > maxTagDiff
}

// resolveItemValue picks the best-matching collected value for itemid
// within (or, for Inherited, enclosing) sc according to resolveType,
// rejecting candidates more than maxTagDiff tag-depths away from depth.
// Required/Optional resolution that finds more than one eligible
// candidate is an AmbiguousReference.
func (r *Request) resolveItemValue(itemid int, sc Scope, depth int, rt ResolveType, maxTagDiff int) (value.Variant, bool, error) {
	cands := r.values[itemid]
	if rt == Inherited {
		var best *collectedValue
		for i := range cands {
			c := &cands[i]
			if c.Scope.From <= sc.From && sc.To <= c.Scope.To && !tagDiffExceeds(depth, c.Depth, maxTagDiff) {
				if best == nil || c.Scope.From > best.Scope.From {
					best = c
				}
			}
		}
		if best == nil {
			return value.Variant{}, false, nil
		}
		return best.Val, true, nil
	}
	var match *collectedValue
	ambiguous := false
	for i := range cands {
		c := &cands[i]
		if !sc.Contains(c.Scope) || tagDiffExceeds(depth, c.Depth, maxTagDiff) {
			continue
		}
		if match != nil {
			ambiguous = true
		}
		match = c
	}
	if ambiguous {
		return value.Variant{}, false, perror.New(perror.AmbiguousReference, "item %d has more than one candidate enclosed by scope [%d,%d)", itemid, sc.From, sc.To)
	}
	if match == nil {
		return value.Variant{}, false, nil
	}
	return match.Val, true, nil
}

// ResolveArgs finalizes a CallInstance's argument values from the
// collected Values/Structures maps, applying each ArgSlot's
// ResolveType. Required/ArrayNonEmpty slots that find nothing return an
// error; Optional/Inherited slots fall back to a Void value.
func (r *Request) ResolveArgs(ci *CallInstance) error {
	ci.ArgVals = make([]value.Variant, len(ci.Def.Args))
	ci.ArgValid = make([]bool, len(ci.Def.Args))
	for i, slot := range ci.Def.Args {
		if !slot.HasItem {
			continue // context-variable args are resolved by the executor
		}
		if slot.ResolveType == Array || slot.ResolveType == ArrayNonEmpty {
			ser := r.resolveItemArray(slot.ItemID, ci.Scope)
			if ser.Len() == 0 && slot.ResolveType == ArrayNonEmpty {
				return perror.NewAt(perror.NofArgsError, ci.EvIdx, "required array argument %d of call %q is empty", i, ci.Def.Expr)
			}
			ci.ArgVals[i] = serialization.AsVariant(ser)
			ci.ArgValid[i] = true
			continue
		}
		v, ok, err := r.resolveItemValue(slot.ItemID, ci.Scope, ci.Depth, slot.ResolveType, slot.MaxTagDiff)
		if err != nil {
			return perror.NewAt(perror.CodeOf(err), ci.EvIdx, "argument %d of call %q: %v", i, ci.Def.Expr, err)
		}
		if !ok {
			if s, sok := r.resolveItemStruct(slot.ItemID, ci.Scope, slot.ResolveType); sok {
				ci.ArgVals[i] = serialization.AsVariant(s)
				ci.ArgValid[i] = true
				continue
			}
		}
		if !ok {
			if slot.ResolveType == Required {
				return perror.NewAt(perror.ValueUndefined, ci.EvIdx, "required argument %d of call %q could not be resolved", i, ci.Def.Expr)
			}
			ci.ArgVals[i] = value.NewVoid()
			ci.ArgValid[i] = true
			continue
		}
		ci.ArgVals[i] = v
		ci.ArgValid[i] = true
	}
	return nil
}

func (r *Request) resolveItemStruct(itemid int, sc Scope, rt ResolveType) (*serialization.Serialization, bool) {
	cands := r.structs[itemid]
	for i := range cands {
		if sc.Contains(cands[i].Scope) || (rt == Inherited && cands[i].Scope.Contains(sc)) {
			return cands[i].Ser, true
		}
	}
	return nil, false
}

// resolveItemArray gathers every collected value or structure for itemid
// within sc, in document order, as a flat Serialization of values.
func (r *Request) resolveItemArray(itemid int, sc Scope) *serialization.Serialization {
	out := serialization.New()
	type tagged struct {
		from int
		val  value.Variant
	}
	var items []tagged
	for _, c := range r.values[itemid] {
		if sc.Contains(c.Scope) {
			items = append(items, tagged{from: c.Scope.From, val: c.Val})
		}
	}
	for _, c := range r.structs[itemid] {
		if sc.Contains(c.Scope) {
			items = append(items, tagged{from: c.Scope.From, val: serialization.AsVariant(c.Ser)})
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].from < items[j].from })
	for _, it := range items {
		out.PushValue(it.val)
	}
	return out
}

// Calls returns the finalized, order-scheduled call list after Run.
func (r *Request) Calls() []CallInstance {
	return r.calls
}
