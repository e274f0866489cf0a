// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package serialization implements the lazy (tag, value) node stream
// used to encode trees under a bracket grammar.
package serialization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// NodeChunkSize is the node count allocated per growth step.
const NodeChunkSize = 128

// Node is one (tag, value) pair.
type Node struct {
	Tag   value.Tag
	Value value.Variant
}

type nodeChunk struct {
	nodes [NodeChunkSize]Node
	used  int
	next  *nodeChunk
}

// Serialization is a chunked linear list of Nodes. Well-formedness (the
// Open/Close bracket language, Name followed by Value|Open) is the
// caller's responsibility to produce; consumers surface SyntaxError on
// mismatch rather than validating eagerly.
type Serialization struct {
	head, tail *nodeChunk
	length     int
	// StructID is the id of a named-field layout; zero means "no struct
	// interface". DeepCopyValue preserves it; this module has no
	// struct-interface table and the result encoders do not read it.
	StructID int
}

// New creates an empty Serialization.
func New() *Serialization {
	c := &nodeChunk{}
	return &Serialization{head: c, tail: c}
}

// AsVariant wraps s as a value.Variant carrying a Serialization
// reference, the one place package value and package serialization
// cross without an import cycle.
func AsVariant(s *Serialization) value.Variant {
	return value.NewSerializationValue(s)
}

// FromVariant extracts the *Serialization a Variant refers to, or nil
// with ok=false if v is not a Serialization value.
func FromVariant(v value.Variant) (*Serialization, bool) {
	if v.Type() != value.SerializationType {
		return nil, false
	}
	s, ok := v.RawSer().(*Serialization)
	return s, ok
}

// Len returns the number of nodes pushed.
func (s *Serialization) Len() int { return s.length }

// Push appends a raw node.
func (s *Serialization) Push(tag value.Tag, v value.Variant) {
	v.SetTag(tag)
	if s.tail.used == NodeChunkSize {
		nc := &nodeChunk{}
		s.tail.next = nc
		s.tail = nc
	}
	s.tail.nodes[s.tail.used] = Node{Tag: tag, Value: v}
	s.tail.used++
	s.length++
}

func (s *Serialization) PushOpen()                 { s.Push(value.TagOpen, value.NewVoid()) }
func (s *Serialization) PushClose()                { s.Push(value.TagClose, value.NewVoid()) }
func (s *Serialization) PushName(v value.Variant)   { s.Push(value.TagName, v) }
func (s *Serialization) PushNameString(name string) { s.PushName(value.NewString(name)) }
func (s *Serialization) PushValue(v value.Variant)  { s.Push(value.TagValue, v) }

// --- iteration ---

// Iter is a stateless cursor over a Serialization: (chunk, chunkpos).
// Advancing crosses chunk boundaries transparently.
type Iter struct {
	ser      *Serialization
	chunk    *nodeChunk
	chunkpos int
	index    int
}

// Begin returns a cursor positioned at the first node.
func (s *Serialization) Begin() *Iter {
	return &Iter{ser: s, chunk: s.head, chunkpos: 0, index: 0}
}

// Eof reports whether the cursor has advanced past the last node.
func (it *Iter) Eof() bool {
	return it.index >= it.ser.length
}

// Tag returns the current node's tag, or Close at eof (matching the
// spec's "eof yields tag=Close, value=null").
func (it *Iter) Tag() value.Tag {
	if it.Eof() {
		return value.TagClose
	}
	return it.chunk.nodes[it.chunkpos].Tag
}

// Value returns the current node's value, or Void at eof.
func (it *Iter) Value() value.Variant {
	if it.Eof() {
		return value.NewVoid()
	}
	return it.chunk.nodes[it.chunkpos].Value
}

// Skip advances the cursor by one node, crossing chunk boundaries.
func (it *Iter) Skip() {
	if it.Eof() {
		return
	}
	it.index++
	it.chunkpos++
	if it.chunkpos >= it.chunk.used {
		it.chunk = it.chunk.next
		it.chunkpos = 0
	}
}

// Copy produces a detached cursor at the same position.
func (it *Iter) Copy() *Iter {
	cp := *it
	return &cp
}

// IsEqual reports whether two cursors reference the same position of
// the same Serialization.
func (it *Iter) IsEqual(other *Iter) bool {
	return it.ser == other.ser && it.chunk == other.chunk && it.chunkpos == other.chunkpos
}

// Last reports whether the cursor is on the final node.
func (it *Iter) Last() bool {
	return !it.Eof() && it.index == it.ser.length-1
}

// --- SerializationIter as a value.Iterator (so a Serialization can be
// wrapped in a value.Variant of IteratorType and driven generically) ---

type tupleIterator struct {
	it *Iter
}

// AsTupleIterator exposes s as a value.Iterator yielding (Open..Close)
// top-level blocks as successive tuples, used by components that only
// understand the generic value.Iterator contract (e.g. deepcopy's
// iterator expansion, or a host object lazily emitting rows).
func (s *Serialization) AsTupleIterator() value.Iterator {
	return &tupleIterator{it: s.Begin()}
}

func (t *tupleIterator) Next(a *allocator.Allocator) (value.Variant, value.Variant, bool, error) {
	if t.it.Eof() {
		return value.NewVoid(), value.NewVoid(), false, nil
	}
	if t.it.Tag() != value.TagOpen {
		v := t.it.Value()
		t.it.Skip()
		return value.NewVoid(), v, true, nil
	}
	depth := 0
	inner := New()
	for {
		tag := t.it.Tag()
		if t.it.Eof() {
			return value.NewVoid(), value.NewVoid(), false, perror.New(perror.SyntaxError, "unterminated Open in serialization iterator")
		}
		val := t.it.Value()
		inner.Push(tag, val)
		t.it.Skip()
		if tag == value.TagOpen {
			depth++
		} else if tag == value.TagClose {
			depth--
			if depth == 0 {
				break
			}
		}
	}
	return value.NewVoid(), AsVariant(inner), true, nil
}

func (t *tupleIterator) Destroy() {}

// --- structural helpers ---

// ConvertArrayAssoc rewrites the tail range of s starting at startIndex
// (a node index within s) by inserting synthetic integer Name nodes
// before each top-level array element, turning [a,b] into
// [0:a, 1:b], an associative form with integer member names. The
// result encoders do not call it.
func (s *Serialization) ConvertArrayAssoc(startIndex int) error {
	if startIndex < 0 || startIndex > s.length {
		return perror.New(perror.OutOfRangeError, "start index %d out of range", startIndex)
	}
	tailNodes := s.collectFrom(startIndex)
	rebuilt := New()
	idx := 0
	i := 0
	for i < len(tailNodes) {
		n := tailNodes[i]
		if n.Tag == value.TagName {
			rebuilt.Push(n.Tag, n.Value)
			i++
			continue
		}
		rebuilt.PushName(value.NewInt(int64(idx)))
		idx++
		if n.Tag == value.TagOpen {
			depth := 1
			rebuilt.Push(n.Tag, n.Value)
			i++
			for i < len(tailNodes) && depth > 0 {
				m := tailNodes[i]
				rebuilt.Push(m.Tag, m.Value)
				if m.Tag == value.TagOpen {
					depth++
				} else if m.Tag == value.TagClose {
					depth--
				}
				i++
			}
		} else {
			rebuilt.Push(n.Tag, n.Value)
			i++
		}
	}
	s.truncate(startIndex)
	it := rebuilt.Begin()
	for !it.Eof() {
		s.Push(it.Tag(), it.Value())
		it.Skip()
	}
	return nil
}

func (s *Serialization) collectFrom(startIndex int) []Node {
	out := make([]Node, 0, s.length-startIndex)
	it := s.Begin()
	for i := 0; !it.Eof(); i++ {
		if i >= startIndex {
			out = append(out, Node{Tag: it.Tag(), Value: it.Value()})
		}
		it.Skip()
	}
	return out
}

// truncate drops every node from index n onward, rebuilding the chunk
// chain (Serializations have no per-node free, matching the Allocator's
// "no free of individual allocations" policy — this rewrites the whole
// chain instead of mutating chunks in place).
func (s *Serialization) truncate(n int) {
	kept := s.collectFrom(0)[:n]
	s.head = &nodeChunk{}
	s.tail = s.head
	s.length = 0
	for _, node := range kept {
		s.Push(node.Tag, node.Value)
	}
}

// SortNamesStable reorders the immediate (Name, Value|Open..Close)
// siblings of a single structure block into deterministic key order,
// used for deterministic-output rendering. It expects s to consist
// entirely of Name-prefixed members (a single object's members); a
// member's Open..Close block is kept whole as its value and the names
// inside it are not sorted.
func SortNamesStable(s *Serialization) (*Serialization, error) {
	type member struct {
		name  string
		nodes []Node
	}
	it := s.Begin()
	var members []member
	for !it.Eof() {
		if it.Tag() != value.TagName {
			return nil, perror.New(perror.SyntaxError, "deterministic sort expects Name-led members")
		}
		nameVal := it.Value()
		name, err := nameVal.ToString(nil)
		_ = err
		m := member{name: string(name)}
		it.Skip()
		if it.Tag() == value.TagOpen {
			depth := 0
			for {
				m.nodes = append(m.nodes, Node{Tag: it.Tag(), Value: it.Value()})
				tag := it.Tag()
				it.Skip()
				if tag == value.TagOpen {
					depth++
				} else if tag == value.TagClose {
					depth--
					if depth == 0 {
						break
					}
				}
			}
		} else {
			m.nodes = append(m.nodes, Node{Tag: it.Tag(), Value: it.Value()})
			it.Skip()
		}
		members = append(members, m)
	}
	sort.SliceStable(members, func(i, j int) bool { return members[i].name < members[j].name })
	out := New()
	for _, m := range members {
		out.PushNameString(m.name)
		for _, n := range m.nodes {
			out.Push(n.Tag, n.Value)
		}
	}
	return out, nil
}

// --- debug / diagnostics ---

// PrintNode formats a single node for debugging.
func PrintNode(n Node) string {
	switch n.Tag {
	case value.TagOpen:
		return "{"
	case value.TagClose:
		return "}"
	case value.TagName:
		s, _ := n.Value.ToString(nil)
		return fmt.Sprintf("%s:", s)
	default:
		switch n.Value.Type() {
		case value.String:
			s, _ := n.Value.ToString(nil)
			return fmt.Sprintf("%q", s)
		case value.Void:
			return "null"
		default:
			s, _ := n.Value.ToString(allocator.New())
			return string(s)
		}
	}
}

// String dumps the whole chain for debugging/logging.
func (s *Serialization) String() string {
	var b strings.Builder
	it := s.Begin()
	first := true
	for !it.Eof() {
		if !first {
			b.WriteByte(' ')
		}
		first = false
		b.WriteString(PrintNode(Node{Tag: it.Tag(), Value: it.Value()}))
		it.Skip()
	}
	return b.String()
}

// CheckWellFormed verifies the Open/Close bracket language and the
// Name-followed-by-Value-or-Open rule, returning SyntaxError at the
// first violation.
func (s *Serialization) CheckWellFormed() error {
	depth := 0
	it := s.Begin()
	afterName := false
	for !it.Eof() {
		tag := it.Tag()
		if afterName && tag != value.TagValue && tag != value.TagOpen {
			return perror.New(perror.SyntaxError, "Name must be followed by Value or Open")
		}
		switch tag {
		case value.TagOpen:
			depth++
		case value.TagClose:
			depth--
			if depth < 0 {
				return perror.New(perror.SyntaxError, "unmatched Close")
			}
		}
		afterName = tag == value.TagName
		it.Skip()
	}
	if afterName {
		return perror.New(perror.SyntaxError, "Name must be followed by Value or Open")
	}
	if depth != 0 {
		return perror.New(perror.SyntaxError, "unmatched Open")
	}
	return nil
}
