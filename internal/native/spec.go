// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package native drives a papugad route straight through
// pkg/papuga/automaton, pkg/papuga/executor and pkg/papuga/reqcontext,
// without a Lua script in between: a JSON-described RequestAutomaton
// compiled once at startup, run against every request's parsed document.
package native

import (
	"bytes"
	"encoding/json"

	"github.com/papuga-go/papuga/pkg/papuga/automaton"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
)

// ValueSpec declares one automaton.ValueDef.
type ValueSpec struct {
	Scope  string `json:"scope"`
	Select string `json:"select"`
	Item   int    `json:"item"`
}

// ArgSpec declares one automaton.ArgSlot: a context-variable reference
// when Var is non-empty, otherwise an item reference resolved against
// the call's scope with Resolve/MaxTagDiff.
type ArgSpec struct {
	Var        string `json:"var,omitempty"`
	Item       int    `json:"item,omitempty"`
	Resolve    string `json:"resolve,omitempty"`
	MaxTagDiff int    `json:"maxTagDiff,omitempty"`
}

// MemberSpec declares one automaton.StructMember, with the same
// var-or-item shape as ArgSpec.
type MemberSpec struct {
	Name       string `json:"name"`
	Var        string `json:"var,omitempty"`
	Item       int    `json:"item,omitempty"`
	Resolve    string `json:"resolve,omitempty"`
	MaxTagDiff int    `json:"maxTagDiff,omitempty"`
}

// StructSpec declares one automaton.StructDef.
type StructSpec struct {
	Expr    string       `json:"expr"`
	Item    int          `json:"item"`
	Members []MemberSpec `json:"members"`
}

// CallSpec declares one automaton.CallDef. Group, when set, opens and
// closes a single-member group around the call so it keeps document
// order against its sibling group members instead of being ordered by
// scope end alone.
type CallSpec struct {
	Expr      string    `json:"expr"`
	ClassID   int       `json:"classId"`
	FuncID    int       `json:"funcId"`
	SelfVar   string    `json:"selfVar,omitempty"`
	ResultVar string    `json:"resultVar,omitempty"`
	Append    bool      `json:"append,omitempty"`
	Group     *int      `json:"group,omitempty"`
	Args      []ArgSpec `json:"args"`
}

// Spec is the declarative, JSON-encoded description of a compiled
// automaton.Automaton: the non-scripted alternative to a Lua handler's
// call schedule, bound to a papugad route in place of a scriptPath.
type Spec struct {
	Values    []ValueSpec  `json:"values"`
	Structs   []StructSpec `json:"structs"`
	Calls     []CallSpec   `json:"calls"`
	ResultVar string       `json:"resultVar"`
}

// ParseSpec decodes and compiles raw into a finalized Automaton.
func ParseSpec(raw []byte) (*Spec, *automaton.Automaton, error) {
	var s Spec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, nil, perror.New(perror.SyntaxError, "native binding spec: %v", err)
	}
	a, err := s.Compile()
	if err != nil {
		return nil, nil, err
	}
	return &s, a, nil
}

func resolveType(name string) (automaton.ResolveType, error) {
	switch name {
	case "", "Required":
		return automaton.Required, nil
	case "Optional":
		return automaton.Optional, nil
	case "Inherited":
		return automaton.Inherited, nil
	case "Array":
		return automaton.Array, nil
	case "ArrayNonEmpty":
		return automaton.ArrayNonEmpty, nil
	default:
		return 0, perror.New(perror.SyntaxError, "unknown resolve type %q", name)
	}
}

// Compile builds the Automaton s describes.
func (s *Spec) Compile() (*automaton.Automaton, error) {
	a := automaton.New()
	for _, v := range s.Values {
		if err := a.AddValue(v.Scope, v.Select, v.Item); err != nil {
			return nil, err
		}
	}
	for _, sd := range s.Structs {
		idx, err := a.AddStructure(sd.Expr, sd.Item, len(sd.Members))
		if err != nil {
			return nil, err
		}
		for mi, m := range sd.Members {
			rt, err := resolveType(m.Resolve)
			if err != nil {
				return nil, err
			}
			if err := a.SetStructureElement(idx, mi, m.Name, m.Item, m.Var == "", m.Var, rt, m.MaxTagDiff); err != nil {
				return nil, err
			}
		}
	}
	for _, c := range s.Calls {
		if c.Group != nil {
			if err := a.OpenGroup(*c.Group); err != nil {
				return nil, err
			}
		}
		idx, err := a.AddCall(c.Expr, c.ClassID, c.FuncID, c.SelfVar, c.ResultVar, len(c.Args))
		if err != nil {
			return nil, err
		}
		if c.Append {
			if err := a.SetCallAppend(idx, true); err != nil {
				return nil, err
			}
		}
		for ai, arg := range c.Args {
			if arg.Var != "" {
				if err := a.SetCallArgVar(idx, ai, arg.Var); err != nil {
					return nil, err
				}
				continue
			}
			rt, err := resolveType(arg.Resolve)
			if err != nil {
				return nil, err
			}
			if err := a.SetCallArgItem(idx, ai, arg.Item, rt, arg.MaxTagDiff); err != nil {
				return nil, err
			}
		}
		if c.Group != nil {
			if err := a.CloseGroup(); err != nil {
				return nil, err
			}
		}
	}
	if err := a.Done(); err != nil {
		return nil, err
	}
	return a, nil
}
