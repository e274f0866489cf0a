// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package allocator implements the arena/reference substrate every other
// papuga component is threaded through: a bump-pointer byte-slice arena
// plus a list of io.Closer-like Destroyables, so every allocator-scoped
// object (a HostObject deleter, an Iterator, a nested Allocator) gets
// torn down together when the arena goes away.
package allocator

import (
	"github.com/google/uuid"

	"github.com/papuga-go/papuga/pkg/log"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
)

const (
	baseChunkSize = 4096
	maxAlign      = 16
)

// MaxIteratorExpansion bounds how many tuples deepcopy_value and the
// result encoder will pull from a producing Iterator.
const MaxIteratorExpansion = 100

// Destroyable is anything an Allocator must finalize when it is
// destroyed: a HostObject deleter, an Iterator's underlying resource, or
// a nested Allocator.
type Destroyable interface {
	Destroy()
}

type chunk struct {
	buf      []byte
	used     int
	borrowed bool // true for a caller-supplied first chunk: never reallocated/grown
}

// Allocator is a single-owner memory region plus a list of references
// requiring destruction when the region goes away. It is not safe for
// concurrent use — callers run one Allocator per request.
type Allocator struct {
	// ID identifies this allocator instance in log correlation across its
	// whole request lifetime, independent of the request content itself.
	ID     uuid.UUID
	chunks []*chunk
	refs   []Destroyable
	// size is the starting size for the next chunk: it begins at
	// baseChunkSize and becomes twice the last grown chunk's size.
	size int
}

// New creates an Allocator whose first chunk is allocated by the system
// allocator.
func New() *Allocator {
	a := &Allocator{ID: uuid.New()}
	a.chunks = append(a.chunks, &chunk{buf: make([]byte, 0, baseChunkSize)})
	a.size = baseChunkSize
	return a
}

// NewWithBuffer creates an Allocator whose first chunk is the
// caller-provided buffer: a "no free" root chunk that is never
// reallocated, and that Takeover refuses to splice into another
// allocator.
func NewWithBuffer(buf []byte) *Allocator {
	a := &Allocator{ID: uuid.New()}
	a.chunks = append(a.chunks, &chunk{buf: buf[:0], borrowed: true})
	a.size = cap(buf)
	if a.size == 0 {
		a.size = baseChunkSize
	}
	return a
}

// Alloc reserves size bytes aligned to alignment (a power of two, at
// most maxAlign) from the arena and returns a zeroed slice. A bad
// alignment returns OutOfRangeError; a negative size or an exhausted
// caller-provided chunk returns NoMemError.
func (a *Allocator) Alloc(size int, alignment int) ([]byte, error) {
	if alignment <= 0 || alignment > maxAlign || alignment&(alignment-1) != 0 {
		return nil, perror.New(perror.OutOfRangeError, "alignment %d is not a power of two <= %d", alignment, maxAlign)
	}
	if size < 0 {
		return nil, perror.New(perror.NoMemError, "negative allocation size")
	}
	c := a.chunks[len(a.chunks)-1]
	pad := alignPad(len(c.buf), alignment)
	if !c.borrowed && c.used+pad+size > cap(c.buf) {
		a.growChunk(pad + size)
		c = a.chunks[len(a.chunks)-1]
		pad = alignPad(len(c.buf), alignment)
	}
	if c.used+pad+size > cap(c.buf) {
		// borrowed chunk exhausted: cannot grow, cannot free individual
		// allocations.
		return nil, perror.New(perror.NoMemError, "caller-provided chunk exhausted")
	}
	c.buf = c.buf[:c.used+pad+size]
	for i := c.used; i < c.used+pad; i++ {
		c.buf[i] = 0
	}
	region := c.buf[c.used+pad : c.used+pad+size]
	c.used += pad + size
	log.Debug("allocator[", a.ID, "]: alloc ", size, " bytes, align ", alignment)
	return region, nil
}

func alignPad(offset, alignment int) int {
	rem := offset % alignment
	if rem == 0 {
		return 0
	}
	return alignment - rem
}

func (a *Allocator) growChunk(minSize int) {
	next := a.size
	for next < minSize {
		next *= 2
	}
	a.size = next * 2
	a.chunks = append(a.chunks, &chunk{buf: make([]byte, 0, next)})
}

// CopyBytes copies src into a freshly allocated region owned by a.
func (a *Allocator) CopyBytes(src []byte) ([]byte, error) {
	dst, err := a.Alloc(len(src), 1)
	if err != nil {
		return nil, err
	}
	copy(dst, src)
	return dst, nil
}

// CopyString copies an UTF-8 Go string into the arena and returns the
// owned bytes; callers never need a NUL terminator.
func (a *Allocator) CopyString(s string) ([]byte, error) {
	return a.CopyBytes([]byte(s))
}

// Register adds d to the reference list so Destroy() reaches it.
func (a *Allocator) Register(d Destroyable) {
	a.refs = append(a.refs, d)
}

// AllocAllocator creates a nested Allocator owned by this one and
// registers it for destruction.
func (a *Allocator) AllocAllocator() *Allocator {
	nested := New()
	a.Register(nestedAllocatorRef{nested})
	return nested
}

type nestedAllocatorRef struct{ a *Allocator }

func (r nestedAllocatorRef) Destroy() { r.a.Destroy() }

// Takeover splices other's chunk list and reference list into a and
// resets other to empty. Fails with InvalidAccess if other's root chunk
// is caller-provided: a borrowed root can never be adopted, since
// nothing owns it to free.
func (a *Allocator) Takeover(other *Allocator) error {
	if other.chunks[0].borrowed {
		return perror.New(perror.InvalidAccess, "cannot take over an allocator with a caller-provided root chunk")
	}
	a.chunks = append(a.chunks, other.chunks...)
	a.refs = append(a.refs, other.refs...)
	other.chunks = []*chunk{{buf: make([]byte, 0, baseChunkSize)}}
	other.refs = nil
	return nil
}

// Destroy finalizes every registered reference. The arena's own memory
// is reclaimed by the Go garbage collector once the Allocator is no
// longer reachable; Destroy's job is purely to run destructor-bearing
// references (HostObjects, Iterators, nested Allocators), in
// registration order.
func (a *Allocator) Destroy() {
	for _, r := range a.refs {
		r.Destroy()
	}
	a.refs = nil
	a.chunks = a.chunks[:1]
	a.chunks[0].buf = a.chunks[0].buf[:0]
}

// Stats reports the number of chunks and total bytes used, for
// diagnostics/logging only.
func (a *Allocator) Stats() (chunks int, used int) {
	for _, c := range a.chunks {
		used += c.used
	}
	return len(a.chunks), used
}
