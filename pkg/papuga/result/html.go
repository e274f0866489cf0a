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

// renderHTML5 wraps the root element in a `<div class="root-name">`
// tree.
func (w *walker) renderHTML5(v value.Variant) ([]byte, error) {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString(`<meta charset="` + w.opts.Charset + `">` + "\n")
	if w.opts.HeadFragment != "" {
		b.WriteString(w.opts.HeadFragment)
		b.WriteByte('\n')
	}
	b.WriteString("</head>\n<body>\n")
	b.WriteString(`<div class="` + escapeMarkup(w.opts.RootName) + `">`)
	if err := w.htmlNode(&b, v, 1, 0); err != nil {
		return nil, err
	}
	b.WriteString("</div>\n</body>\n</html>\n")
	return []byte(b.String()), nil
}

func (w *walker) htmlNode(b *strings.Builder, v value.Variant, depth, reclevel int) error {
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
		b.WriteString(escapeMarkup(s))
		return nil
	}
	return w.htmlNodes(b, ser.Begin(), depth, reclevel+1)
}

func (w *walker) htmlNodes(b *strings.Builder, it *serialization.Iter, depth, reclevel int) error {
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
			b.WriteString(`<div class="` + escapeMarkup(name) + `">`)
			if it.Tag() == value.TagOpen {
				it.Skip()
				if err := w.htmlNodes(b, it, depth+1, reclevel+1); err != nil {
					return err
				}
			} else {
				if err := w.htmlNode(b, it.Value(), depth+1, reclevel+1); err != nil {
					return err
				}
				it.Skip()
			}
			b.WriteString("</div>")
		case value.TagValue:
			indent(b, depth, w.opts.Beautify)
			b.WriteString(`<div class="item">`)
			if err := w.htmlNode(b, it.Value(), depth+1, reclevel+1); err != nil {
				return err
			}
			b.WriteString("</div>")
			it.Skip()
		case value.TagOpen:
			it.Skip()
			indent(b, depth, w.opts.Beautify)
			b.WriteString(`<div class="item">`)
			if err := w.htmlNodes(b, it, depth+1, reclevel+1); err != nil {
				return err
			}
			b.WriteString("</div>")
		}
	}
	return nil
}
