// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package result

import (
	"strings"

	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/serialization"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

func (w *walker) renderJSON(v value.Variant) ([]byte, error) {
	var b strings.Builder
	if err := w.jsonValue(&b, v, 0, 0); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func (w *walker) jsonValue(b *strings.Builder, v value.Variant, depth, reclevel int) error {
	if reclevel > MaxRecursionDepth {
		return perror.New(perror.MaxRecursionDepthReached, "result nesting exceeds %d", MaxRecursionDepth)
	}
	v, err := w.expandValue(v)
	if err != nil {
		return err
	}
	ser, ok := serializationOf(v)
	if !ok {
		s, err := formatScalarJSON(w.a, v)
		if err != nil {
			return err
		}
		b.WriteString(s)
		return nil
	}
	it := ser.Begin()
	if it.Eof() {
		b.WriteString("{}")
		return nil
	}
	if it.Tag() == value.TagName {
		return w.jsonObject(b, it, depth, reclevel)
	}
	return w.jsonArray(b, it, depth, reclevel)
}

func (w *walker) jsonObject(b *strings.Builder, it *serialization.Iter, depth, reclevel int) error {
	b.WriteByte('{')
	first := true
	for !it.Eof() && it.Tag() != value.TagClose {
		if it.Tag() != value.TagName {
			return perror.New(perror.MissingStructureDescription, "expected named member in object")
		}
		name, err := scalarText(w.a, it.Value())
		if err != nil {
			return err
		}
		it.Skip()
		if !first {
			b.WriteByte(',')
		}
		first = false
		indent(b, depth+1, w.opts.Beautify)
		b.WriteString(escapeJSONString(name))
		b.WriteByte(':')
		if w.opts.Beautify {
			b.WriteByte(' ')
		}
		if it.Eof() {
			return perror.New(perror.SyntaxError, "member %q has no value", name)
		}
		if it.Tag() == value.TagOpen {
			it.Skip()
			if err := w.jsonBlock(b, it, depth+1, reclevel+1); err != nil {
				return err
			}
		} else {
			if err := w.jsonValue(b, it.Value(), depth+1, reclevel+1); err != nil {
				return err
			}
			it.Skip()
		}
	}
	if !it.Eof() {
		it.Skip() // consume Close
	}
	if !first {
		indent(b, depth, w.opts.Beautify)
	}
	b.WriteByte('}')
	return nil
}

func (w *walker) jsonArray(b *strings.Builder, it *serialization.Iter, depth, reclevel int) error {
	b.WriteByte('[')
	first := true
	for !it.Eof() && it.Tag() != value.TagClose {
		if !first {
			b.WriteByte(',')
		}
		first = false
		indent(b, depth+1, w.opts.Beautify)
		switch it.Tag() {
		case value.TagOpen:
			it.Skip()
			if err := w.jsonBlock(b, it, depth+1, reclevel+1); err != nil {
				return err
			}
		case value.TagValue:
			if err := w.jsonValue(b, it.Value(), depth+1, reclevel+1); err != nil {
				return err
			}
			it.Skip()
		default:
			return perror.New(perror.SyntaxError, "unexpected named member inside array")
		}
	}
	if !it.Eof() {
		it.Skip()
	}
	if !first {
		indent(b, depth, w.opts.Beautify)
	}
	b.WriteByte(']')
	return nil
}

// jsonBlock renders a nested Open..Close block, positioned right after
// the Open has already been consumed, dispatching to object or array
// shape by its first node.
func (w *walker) jsonBlock(b *strings.Builder, it *serialization.Iter, depth, reclevel int) error {
	if reclevel > MaxRecursionDepth {
		return perror.New(perror.MaxRecursionDepthReached, "result nesting exceeds %d", MaxRecursionDepth)
	}
	if it.Eof() || it.Tag() == value.TagClose {
		if !it.Eof() {
			it.Skip()
		}
		b.WriteString("{}")
		return nil
	}
	if it.Tag() == value.TagName {
		return w.jsonObject(b, it, depth, reclevel)
	}
	return w.jsonArray(b, it, depth, reclevel)
}
