// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package executor

import (
	"testing"

	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/automaton"
	"github.com/papuga-go/papuga/pkg/papuga/document"
	"github.com/papuga-go/papuga/pkg/papuga/reqcontext"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

type fakeParser struct {
	events []document.Event
	pos    int
}

func (p *fakeParser) Next() (document.Event, error) {
	if p.pos >= len(p.events) {
		return document.Event{Type: document.None}, nil
	}
	ev := p.events[p.pos]
	p.pos++
	return ev, nil
}

func (p *fakeParser) Pos() int { return p.pos }

func scalarDocEvents(x int64) []document.Event {
	return []document.Event{
		{Type: document.Open, Name: "doc"},
		{Type: document.Open, Name: "x"},
		{Type: document.Value, Val: value.NewInt(x)},
		{Type: document.Close, Name: "x"},
		{Type: document.Close, Name: "doc"},
	}
}

func buildRequest(t *testing.T, configure func(a *automaton.Automaton) error, events []document.Event) *automaton.Request {
	t.Helper()
	a := automaton.New()
	if err := configure(a); err != nil {
		t.Fatalf("configure automaton: %v", err)
	}
	if err := a.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}
	req := automaton.NewRequest(a)
	if err := req.Run(&fakeParser{events: events}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return req
}

func doublingClass(classID int) *reqcontext.ClassDef {
	return &reqcontext.ClassDef{
		Name:    "Widget",
		ClassID: classID,
		Constructor: reqcontext.Method{
			Name: "new",
			Call: func(a *allocator.Allocator, self *value.HostObject, args []value.Variant) (value.Variant, error) {
				n, err := args[0].ToInt()
				if err != nil {
					return value.Variant{}, err
				}
				return value.NewInt(n * 2), nil
			},
		},
	}
}

func TestExecutorRunsConstructorAndBindsResult(t *testing.T) {
	req := buildRequest(t, func(a *automaton.Automaton) error {
		if err := a.AddValue("", "/doc/x", 1); err != nil {
			return err
		}
		idx, err := a.AddCall("/doc", 1, 0, "", "obj", 1)
		if err != nil {
			return err
		}
		return a.SetCallArgItem(idx, 0, 1, automaton.Required, 0)
	}, scalarDocEvents(5))

	ctx := reqcontext.New()
	ctx.RegisterClass(doublingClass(1))
	alloc := allocator.New()

	ex := New(ctx, alloc, req, true)
	results, err := ex.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Err != nil {
		t.Fatalf("call failed: %v", results[0].Err)
	}
	n, err := results[0].Value.ToInt()
	if err != nil || n != 10 {
		t.Fatalf("result = %v, %v; want 10, nil", n, err)
	}
	bound, ok := ctx.GetVar("obj")
	if !ok {
		t.Fatal("expected ResultVar \"obj\" to be bound in the context")
	}
	bn, _ := bound.ToInt()
	if bn != 10 {
		t.Fatalf("bound obj = %d, want 10", bn)
	}
}

func TestExecutorMethodCallWithoutSelfVarIsError(t *testing.T) {
	req := buildRequest(t, func(a *automaton.Automaton) error {
		_, err := a.AddCall("/doc", 1, 1, "", "", 0)
		return err
	}, scalarDocEvents(5))

	ctx := reqcontext.New()
	ctx.RegisterClass(doublingClass(1))
	alloc := allocator.New()

	ex := New(ctx, alloc, req, true)
	if _, err := ex.Run(); err == nil {
		t.Fatal("expected MissingSelf error for a method call with no self variable")
	}
}

func TestExecutorUndefinedContextVariableArgIsError(t *testing.T) {
	req := buildRequest(t, func(a *automaton.Automaton) error {
		idx, err := a.AddCall("/doc", 1, 0, "", "", 1)
		if err != nil {
			return err
		}
		return a.SetCallArgVar(idx, 0, "neverBound")
	}, scalarDocEvents(5))

	ctx := reqcontext.New()
	ctx.RegisterClass(doublingClass(1))
	alloc := allocator.New()

	ex := New(ctx, alloc, req, true)
	if _, err := ex.Run(); err == nil {
		t.Fatal("expected an error referencing an unbound context variable")
	}
}

func TestExecutorContinuesAfterFailureWhenNotStoppingOnError(t *testing.T) {
	req := buildRequest(t, func(a *automaton.Automaton) error {
		if _, err := a.AddCall("/doc", 1, 1, "", "", 0); err != nil { // fails: method call, no self
			return err
		}
		if err := a.AddValue("", "/doc/x", 1); err != nil {
			return err
		}
		idx, err := a.AddCall("//x", 1, 0, "", "", 1)
		if err != nil {
			return err
		}
		return a.SetCallArgItem(idx, 0, 1, automaton.Required, 0)
	}, scalarDocEvents(5))

	ctx := reqcontext.New()
	ctx.RegisterClass(doublingClass(1))
	alloc := allocator.New()

	ex := New(ctx, alloc, req, false)
	results, err := ex.Run()
	if err != nil {
		t.Fatalf("Run returned an error in best-effort mode: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	var nFailed, nOK int
	for _, r := range results {
		if r.Err != nil {
			nFailed++
		} else {
			nOK++
		}
	}
	if nFailed != 1 || nOK != 1 {
		t.Fatalf("got %d failed, %d ok; want exactly one of each", nFailed, nOK)
	}
}

func TestExecutorAppendAccumulatesIntoExistingSerialization(t *testing.T) {
	req := buildRequest(t, func(a *automaton.Automaton) error {
		idx, err := a.AddCall("/doc", 1, 0, "", "acc", 1)
		if err != nil {
			return err
		}
		if err := a.SetCallAppend(idx, true); err != nil {
			return err
		}
		if err := a.AddValue("", "/doc/x", 1); err != nil {
			return err
		}
		return a.SetCallArgItem(idx, 0, 1, automaton.Required, 0)
	}, scalarDocEvents(5))

	ctx := reqcontext.New()
	ctx.RegisterClass(doublingClass(1))
	alloc := allocator.New()

	ex := New(ctx, alloc, req, true)
	if _, err := ex.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := ctx.GetVar("acc"); !ok {
		t.Fatal("expected ResultVar \"acc\" to be bound after the first append")
	}
}
