// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package allocator

import "testing"

func TestAllocZeroed(t *testing.T) {
	a := New()
	b, err := a.Alloc(16, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, v)
		}
	}
}

func TestAllocRejectsBadAlignment(t *testing.T) {
	a := New()
	if _, err := a.Alloc(4, 3); err == nil {
		t.Fatal("expected error for non-power-of-two alignment")
	}
	if _, err := a.Alloc(4, 0); err == nil {
		t.Fatal("expected error for zero alignment")
	}
}

func TestAllocGrowsChunks(t *testing.T) {
	a := New()
	if _, err := a.Alloc(baseChunkSize*3, 1); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	chunks, used := a.Stats()
	if chunks < 2 {
		t.Fatalf("expected allocation larger than one chunk to grow the arena, got %d chunks", chunks)
	}
	if used < baseChunkSize*3 {
		t.Fatalf("used=%d want >= %d", used, baseChunkSize*3)
	}
}

func TestCopyBytesIndependentOfSource(t *testing.T) {
	a := New()
	src := []byte("hello")
	dst, err := a.CopyBytes(src)
	if err != nil {
		t.Fatalf("CopyBytes: %v", err)
	}
	src[0] = 'X'
	if string(dst) != "hello" {
		t.Fatalf("copy shares storage with source: got %q", dst)
	}
}

func TestNewWithBufferExhausted(t *testing.T) {
	a := NewWithBuffer(make([]byte, 0, 4))
	if _, err := a.Alloc(4, 1); err != nil {
		t.Fatalf("Alloc within capacity: %v", err)
	}
	if _, err := a.Alloc(1, 1); err == nil {
		t.Fatal("expected NoMemError once the borrowed chunk is exhausted")
	}
}

func TestTakeoverRefusesBorrowedRoot(t *testing.T) {
	dst := New()
	src := NewWithBuffer(make([]byte, 0, 16))
	if err := dst.Takeover(src); err == nil {
		t.Fatal("expected error taking over an allocator with a caller-provided root chunk")
	}
}

func TestTakeoverMovesChunksAndRefs(t *testing.T) {
	dst := New()
	src := New()
	if _, err := src.Alloc(64, 1); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	destroyed := false
	src.Register(destroyableFunc(func() { destroyed = true }))

	if err := dst.Takeover(src); err != nil {
		t.Fatalf("Takeover: %v", err)
	}
	if _, used := dst.Stats(); used < 64 {
		t.Fatalf("takeover did not move src's used bytes into dst")
	}
	dst.Destroy()
	if !destroyed {
		t.Fatal("Destroy did not run a reference moved in via Takeover")
	}
}

func TestDestroyRunsReferencesInOrder(t *testing.T) {
	a := New()
	var order []int
	a.Register(destroyableFunc(func() { order = append(order, 1) }))
	a.Register(destroyableFunc(func() { order = append(order, 2) }))
	a.Destroy()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("unexpected destroy order: %v", order)
	}
}

type destroyableFunc func()

func (f destroyableFunc) Destroy() { f() }
