// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package schema

import (
	"github.com/papuga-go/papuga/pkg/papuga/document"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/serialization"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// Parse drives content (XML or JSON, auto-sniffed unless ct is given)
// against schema and returns a typed-value Serialization. If withRoot is
// true, content is expected to carry one
// enclosing root element/object named schema.Name; otherwise content's
// top-level members are matched directly against schema's fields.
func (m *Map) Parse(s *Schema, withRoot bool, ct document.ContentType, enc value.Encoding, content []byte) (*serialization.Serialization, error) {
	parser, _, err := document.Open(content, ct, enc)
	if err != nil {
		return nil, err
	}
	var events []document.Event
	for {
		ev, err := parser.Next()
		if err != nil {
			return nil, err
		}
		if ev.Type == document.None {
			break
		}
		events = append(events, ev)
	}
	pos := 0
	if withRoot {
		if pos >= len(events) || events[pos].Type != document.Open || events[pos].Name != s.Name {
			return nil, perror.NewAt(perror.SyntaxError, pos, "expected root element %q", s.Name)
		}
		pos++
	}
	ser, pos, err := parseFields(m, s, events, pos, 0)
	if err != nil {
		return nil, err
	}
	if withRoot {
		if pos >= len(events) || events[pos].Type != document.Close {
			return nil, perror.NewAt(perror.SyntaxError, pos, "expected close of root element %q", s.Name)
		}
		pos++
	}
	return ser, nil
}

func fieldByName(s *Schema) map[string]*Field {
	out := make(map[string]*Field, len(s.Fields))
	for i := range s.Fields {
		out[s.Fields[i].Name] = &s.Fields[i]
	}
	return out
}

// parseFields consumes events[pos:] until an unmatched Close (the
// enclosing element's own Close, left unconsumed for the caller) and
// returns the fields' typed values as Name-prefixed Serialization
// members.
func parseFields(m *Map, s *Schema, events []document.Event, pos int, depth int) (*serialization.Serialization, int, error) {
	if depth > MaxRecursionDepth {
		return nil, pos, perror.NewAt(perror.MaxRecursionDepthReached, pos, "schema %q nesting too deep", s.Name)
	}
	byName := fieldByName(s)
	out := serialization.New()
	for pos < len(events) {
		ev := events[pos]
		switch ev.Type {
		case document.Close:
			return out, pos, nil
		case document.AttributeName:
			// Attribute pairs are not modeled in the DSL; pass through
			// consuming the matching AttributeValue.
			if pos+1 < len(events) && events[pos+1].Type == document.AttributeValue {
				pos += 2
				continue
			}
			pos++
		case document.Value:
			pos++
		case document.Open:
			f, ok := byName[ev.Name]
			if !ok {
				pos = skipSubtree(events, pos)
				continue
			}
			if f.Repeated {
				arr := serialization.New()
				for pos < len(events) && events[pos].Type == document.Open && events[pos].Name == f.Name {
					elemSer, next, err := parseOneOccurrence(m, f, events, pos, depth)
					if err != nil {
						return nil, pos, err
					}
					pos = next
					appendElement(arr, elemSer)
				}
				out.PushNameString(f.Name)
				out.PushOpen()
				copyInto(out, arr)
				out.PushClose()
				continue
			}
			elemSer, next, err := parseOneOccurrence(m, f, events, pos, depth)
			if err != nil {
				return nil, pos, err
			}
			pos = next
			out.PushNameString(f.Name)
			copyInto(out, elemSer)
		default:
			pos++
		}
	}
	return out, pos, nil
}

// occurrence is either a single scalar value (pushed via PushValue) or
// a nested serialization of member fields, which both copyInto (single
// occurrences) and appendElement (repeated-array elements) wrap in
// Open/Close.
type occurrence struct {
	scalar   value.Variant
	isScalar bool
	nested   *serialization.Serialization
}

func parseOneOccurrence(m *Map, f *Field, events []document.Event, pos int, depth int) (occurrence, int, error) {
	// events[pos] is Open(f.Name).
	pos++ // consume Open
	switch f.Kind {
	case KindInteger, KindFloat, KindString:
		if pos >= len(events) || events[pos].Type != document.Value {
			return occurrence{}, pos, perror.NewAt(perror.SyntaxError, pos, "expected scalar value for field %q", f.Name)
		}
		raw := events[pos].Val
		pos++
		typed, err := coerce(f.Kind, raw)
		if err != nil {
			return occurrence{}, pos, err
		}
		if pos >= len(events) || events[pos].Type != document.Close {
			return occurrence{}, pos, perror.NewAt(perror.SyntaxError, pos, "expected close of field %q", f.Name)
		}
		pos++
		return occurrence{scalar: typed, isScalar: true}, pos, nil
	case KindObject, KindRef:
		nested := f.Nested
		if f.Kind == KindRef {
			var err error
			nested, err = m.Get(f.RefName)
			if err != nil {
				return occurrence{}, pos, err
			}
		}
		inner, next, err := parseFields(m, nested, events, pos, depth+1)
		if err != nil {
			return occurrence{}, pos, err
		}
		pos = next
		if pos >= len(events) || events[pos].Type != document.Close {
			return occurrence{}, pos, perror.NewAt(perror.SyntaxError, pos, "expected close of field %q", f.Name)
		}
		pos++
		return occurrence{nested: inner}, pos, nil
	default:
		return occurrence{}, pos, perror.New(perror.TypeError, "unknown field kind for %q", f.Name)
	}
}

func coerce(k Kind, v value.Variant) (value.Variant, error) {
	switch k {
	case KindInteger:
		i, err := v.ToInt()
		if err != nil {
			return value.Variant{}, err
		}
		return value.NewInt(i), nil
	case KindFloat:
		d, err := v.ToDouble()
		if err != nil {
			return value.Variant{}, err
		}
		return value.NewDouble(d), nil
	case KindString:
		b, err := v.ToString(nil)
		if err != nil {
			return value.Variant{}, err
		}
		return value.NewString(string(b)), nil
	default:
		return v, nil
	}
}

func copyInto(dst *serialization.Serialization, occ occurrence) {
	if occ.isScalar {
		dst.PushValue(occ.scalar)
		return
	}
	dst.PushOpen()
	if occ.nested != nil {
		it := occ.nested.Begin()
		for !it.Eof() {
			dst.Push(it.Tag(), it.Value())
			it.Skip()
		}
	}
	dst.PushClose()
}

func appendElement(arr *serialization.Serialization, occ occurrence) {
	if occ.isScalar {
		arr.PushValue(occ.scalar)
		return
	}
	arr.PushOpen()
	if occ.nested != nil {
		it := occ.nested.Begin()
		for !it.Eof() {
			arr.Push(it.Tag(), it.Value())
			it.Skip()
		}
	}
	arr.PushClose()
}

func skipSubtree(events []document.Event, pos int) int {
	if events[pos].Type != document.Open {
		return pos + 1
	}
	depth := 0
	for pos < len(events) {
		switch events[pos].Type {
		case document.Open:
			depth++
		case document.Close:
			depth--
			pos++
			if depth == 0 {
				return pos
			}
			continue
		}
		pos++
	}
	return pos
}
