// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package automaton

import "testing"

func TestAddValueRejectsBadSelector(t *testing.T) {
	a := New()
	if err := a.AddValue("", "a/b", 1); err == nil {
		t.Fatal("expected SyntaxError for a relative select expression")
	}
}

func TestAddStructureAndSetStructureElement(t *testing.T) {
	a := New()
	idx, err := a.AddStructure("/item", 1, 2)
	if err != nil {
		t.Fatalf("AddStructure: %v", err)
	}
	if err := a.SetStructureElement(idx, 0, "x", 10, true, "", Required, 0); err != nil {
		t.Fatalf("SetStructureElement: %v", err)
	}
	if err := a.SetStructureElement(idx, 5, "y", 11, true, "", Required, 0); err == nil {
		t.Fatal("expected OutOfRangeError for an out-of-range member index")
	}
	if a.Structs[idx].Members[0].Name != "x" {
		t.Fatalf("member 0 name = %q, want \"x\"", a.Structs[idx].Members[0].Name)
	}
}

func TestAddCallArgumentLimitEnforced(t *testing.T) {
	a := New()
	if _, err := a.AddCall("/call", 1, 1, "", "", MaxNofArguments+1); err == nil {
		t.Fatal("expected NofArgsError exceeding MaxNofArguments")
	}
}

func TestSetCallArgVarAndItem(t *testing.T) {
	a := New()
	idx, err := a.AddCall("/call", 1, 1, "self", "result", 2)
	if err != nil {
		t.Fatalf("AddCall: %v", err)
	}
	if err := a.SetCallArgVar(idx, 0, "ctxvar"); err != nil {
		t.Fatalf("SetCallArgVar: %v", err)
	}
	if err := a.SetCallArgItem(idx, 1, 42, Optional, 0); err != nil {
		t.Fatalf("SetCallArgItem: %v", err)
	}
	if a.Calls[idx].Args[0].VarName != "ctxvar" {
		t.Fatal("argument 0 did not bind the context variable")
	}
	if !a.Calls[idx].Args[1].HasItem || a.Calls[idx].Args[1].ItemID != 42 {
		t.Fatal("argument 1 did not bind the item")
	}
}

func TestOpenGroupAssignsGroupToCalls(t *testing.T) {
	a := New()
	if err := a.OpenGroup(7); err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	idx, err := a.AddCall("/call", 1, 1, "", "", 0)
	if err != nil {
		t.Fatalf("AddCall: %v", err)
	}
	if a.Calls[idx].Group != 7 {
		t.Fatalf("call group = %d, want 7", a.Calls[idx].Group)
	}
	if err := a.CloseGroup(); err != nil {
		t.Fatalf("CloseGroup: %v", err)
	}
}

func TestCloseGroupWithoutOpenIsError(t *testing.T) {
	a := New()
	if err := a.CloseGroup(); err == nil {
		t.Fatal("expected LogicError for CloseGroup without OpenGroup")
	}
}

func TestDoneRejectsUnbalancedGroups(t *testing.T) {
	a := New()
	if err := a.OpenGroup(1); err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	if err := a.Done(); err == nil {
		t.Fatal("expected Done to reject an unbalanced OpenGroup")
	}
}

func TestMutationAfterDoneIsRejected(t *testing.T) {
	a := New()
	if err := a.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}
	if err := a.AddValue("", "/a", 1); err == nil {
		t.Fatal("expected ExecutionOrder error mutating a finalized Automaton")
	}
}
