// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package reqcontext

import (
	"errors"
	"testing"
	"time"

	"github.com/papuga-go/papuga/pkg/papuga/value"
)

func TestSetVarAndGetVar(t *testing.T) {
	c := New()
	c.SetVar("x", value.NewInt(1))
	v, ok := c.GetVar("x")
	if !ok {
		t.Fatal("expected x to be bound")
	}
	n, _ := v.ToInt()
	if n != 1 {
		t.Fatalf("x = %d, want 1", n)
	}
	if _, ok := c.GetVar("missing"); ok {
		t.Fatal("expected missing variable to be unbound")
	}
}

func TestForkSharesUntilWrite(t *testing.T) {
	parent := New()
	parent.SetVar("x", value.NewInt(1))
	child := parent.Fork()

	if _, ok := child.GetVar("x"); !ok {
		t.Fatal("forked child should see the parent's variables")
	}
	child.SetVar("x", value.NewInt(2))

	pv, _ := parent.GetVar("x")
	cv, _ := child.GetVar("x")
	pn, _ := pv.ToInt()
	cn, _ := cv.ToInt()
	if pn != 1 {
		t.Fatalf("parent x mutated by child write: got %d, want 1", pn)
	}
	if cn != 2 {
		t.Fatalf("child x = %d, want 2", cn)
	}
}

func TestForkChildAddingVarDoesNotLeakToParent(t *testing.T) {
	parent := New()
	child := parent.Fork()
	child.SetVar("onlyChild", value.NewInt(9))
	if _, ok := parent.GetVar("onlyChild"); ok {
		t.Fatal("parent must not see a variable the child introduced after forking")
	}
}

func TestRegisterAndLookupClass(t *testing.T) {
	c := New()
	def := &ClassDef{Name: "Widget", ClassID: 5}
	c.RegisterClass(def)

	byID, err := c.ClassByID(5)
	if err != nil || byID != def {
		t.Fatalf("ClassByID: %v, %v", byID, err)
	}
	byName, err := c.ClassByName("Widget")
	if err != nil || byName != def {
		t.Fatalf("ClassByName: %v, %v", byName, err)
	}
	if _, err := c.ClassByID(99); err == nil {
		t.Fatal("expected AddressedItemNotFound for an unregistered class id")
	}
}

func TestForkSharesClassTables(t *testing.T) {
	parent := New()
	parent.RegisterClass(&ClassDef{Name: "Widget", ClassID: 1})
	child := parent.Fork()
	if _, err := child.ClassByName("Widget"); err != nil {
		t.Fatalf("forked child lost the parent's class table: %v", err)
	}
}

func TestPoolGetBuildsOnceAndForksEachTime(t *testing.T) {
	pool := NewPool(1<<20, time.Minute)
	builds := 0
	build := func() (*RequestContext, error) {
		builds++
		c := New()
		c.SetVar("seeded", value.NewInt(1))
		return c, nil
	}
	a, err := pool.Get("profile", build)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := pool.Get("profile", build)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if builds != 1 {
		t.Fatalf("build ran %d times, want 1", builds)
	}
	if a == b {
		t.Fatal("Get must return a distinct forked context each time")
	}
	a.SetVar("seeded", value.NewInt(2))
	bv, _ := b.GetVar("seeded")
	bn, _ := bv.ToInt()
	if bn != 1 {
		t.Fatalf("mutating one fork leaked into another: got %d, want 1", bn)
	}
}

func TestPoolInvalidateForcesRebuild(t *testing.T) {
	pool := NewPool(1<<20, time.Minute)
	builds := 0
	build := func() (*RequestContext, error) {
		builds++
		return New(), nil
	}
	if _, err := pool.Get("profile", build); err != nil {
		t.Fatalf("Get: %v", err)
	}
	pool.Invalidate("profile")
	if _, err := pool.Get("profile", build); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if builds != 2 {
		t.Fatalf("build ran %d times after Invalidate, want 2", builds)
	}
}

var errBuildFailed = errors.New("build failed")

func TestPoolGetPropagatesBuildError(t *testing.T) {
	pool := NewPool(1<<20, time.Minute)
	build := func() (*RequestContext, error) {
		return nil, errBuildFailed
	}
	if _, err := pool.Get("profile", build); err == nil {
		t.Fatal("expected Get to propagate the build error")
	}
}
