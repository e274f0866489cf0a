// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package result

import (
	"strings"

	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/serialization"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// expandValue flattens any IteratorType in v into a Serialization the
// walker can render, up to the shared allocator.MaxIteratorExpansion cap:
// iterators are expanded so each tuple becomes one array element.
func (w *walker) expandValue(v value.Variant) (value.Variant, error) {
	if v.Type() != value.IteratorType {
		return v, nil
	}
	iter := v.IterRef()
	out := serialization.New()
	for i := 0; i < allocator.MaxIteratorExpansion; i++ {
		k, val, ok, err := iter.Next(w.a)
		if err != nil {
			return value.Variant{}, err
		}
		if !ok {
			break
		}
		out.PushOpen()
		if k.Defined() {
			out.PushNameString(k.Type().String())
			out.Push(value.TagValue, k)
		}
		out.Push(value.TagValue, val)
		out.PushClose()
	}
	return serialization.AsVariant(out), nil
}

// --- XML ---

func (w *walker) renderXML(v value.Variant) ([]byte, error) {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="` + w.opts.Charset + `"?>`)
	if w.opts.Beautify {
		b.WriteByte('\n')
	}
	if err := w.xmlRoot(&b, w.opts.RootName, v, 0, 0); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// xmlRoot renders v as one element named name, recursing into its
// Serialization's node stream if it has one.
func (w *walker) xmlRoot(b *strings.Builder, name string, v value.Variant, depth, reclevel int) error {
	if reclevel > MaxRecursionDepth {
		return perror.New(perror.MaxRecursionDepthReached, "result nesting exceeds %d", MaxRecursionDepth)
	}
	v, err := w.expandValue(v)
	if err != nil {
		return err
	}
	ser, ok := serializationOf(v)
	if !ok {
		b.WriteString("<" + name + ">")
		s, err := scalarText(w.a, v)
		if err != nil {
			return err
		}
		b.WriteString(escapeMarkup(s))
		b.WriteString("</" + name + ">")
		return nil
	}
	b.WriteString("<" + name + ">")
	it := ser.Begin()
	if err := w.xmlNodes(b, it, depth+1, reclevel+1); err != nil {
		return err
	}
	if ser.Len() > 0 {
		indent(b, depth, w.opts.Beautify)
	}
	b.WriteString("</" + name + ">")
	return nil
}

// xmlNodes renders sibling nodes from it until a Close is consumed (the
// block's own closing tag) or Eof is reached (top-level call), advancing
// it in place.
func (w *walker) xmlNodes(b *strings.Builder, it *serialization.Iter, depth, reclevel int) error {
	if reclevel > MaxRecursionDepth {
		return perror.New(perror.MaxRecursionDepthReached, "result nesting exceeds %d", MaxRecursionDepth)
	}
	for !it.Eof() {
		switch it.Tag() {
		case value.TagClose:
			it.Skip()
			return nil
		case value.TagName:
			name, err := scalarText(w.a, it.Value())
			if err != nil {
				return err
			}
			it.Skip()
			if it.Eof() {
				return perror.New(perror.SyntaxError, "name %q has no following value", name)
			}
			indent(b, depth, w.opts.Beautify)
			if it.Tag() == value.TagOpen {
				it.Skip()
				b.WriteString("<" + name + ">")
				if err := w.xmlNodes(b, it, depth+1, reclevel+1); err != nil {
					return err
				}
				indent(b, depth, w.opts.Beautify)
				b.WriteString("</" + name + ">")
			} else {
				if err := w.xmlRoot(b, name, it.Value(), depth, reclevel); err != nil {
					return err
				}
				it.Skip()
			}
		case value.TagValue:
			indent(b, depth, w.opts.Beautify)
			if err := w.xmlRoot(b, "item", it.Value(), depth, reclevel); err != nil {
				return err
			}
			it.Skip()
		case value.TagOpen:
			it.Skip()
			indent(b, depth, w.opts.Beautify)
			b.WriteString("<item>")
			if err := w.xmlNodes(b, it, depth+1, reclevel+1); err != nil {
				return err
			}
			indent(b, depth, w.opts.Beautify)
			b.WriteString("</item>")
		}
	}
	return nil
}
