// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package result

import (
	"strconv"
	"strings"

	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/serialization"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// renderText produces the indented key-value form used for the
// plain-text sink.
func (w *walker) renderText(v value.Variant) ([]byte, error) {
	var b strings.Builder
	if err := w.textNode(&b, w.opts.RootName, v, 0, 0); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func (w *walker) textNode(b *strings.Builder, name string, v value.Variant, depth, reclevel int) error {
	if reclevel > MaxRecursionDepth {
		return perror.New(perror.MaxRecursionDepthReached, "result nesting exceeds %d", MaxRecursionDepth)
	}
	v, err := w.expandValue(v)
	if err != nil {
		return err
	}
	ser, ok := serializationOf(v)
	if !ok {
		s, err := scalarText(w.a, v)
		if err != nil {
			return err
		}
		writeTextLine(b, depth, name+": "+s)
		return nil
	}
	writeTextLine(b, depth, name+":")
	return w.textNodes(b, ser.Begin(), depth+1, reclevel+1)
}

func (w *walker) textNodes(b *strings.Builder, it *serialization.Iter, depth, reclevel int) error {
	index := 0
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
			if it.Tag() == value.TagOpen {
				it.Skip()
				writeTextLine(b, depth, name+":")
				if err := w.textNodes(b, it, depth+1, reclevel+1); err != nil {
					return err
				}
			} else {
				if err := w.textNode(b, name, it.Value(), depth, reclevel+1); err != nil {
					return err
				}
				it.Skip()
			}
		case value.TagValue:
			index++
			if err := w.textNode(b, itemLabel(index), it.Value(), depth, reclevel+1); err != nil {
				return err
			}
			it.Skip()
		case value.TagOpen:
			index++
			it.Skip()
			writeTextLine(b, depth, itemLabel(index)+":")
			if err := w.textNodes(b, it, depth+1, reclevel+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func itemLabel(index int) string {
	return "[" + strconv.Itoa(index) + "]"
}

func writeTextLine(b *strings.Builder, depth int, line string) {
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
	b.WriteString(line)
	b.WriteByte('\n')
}
