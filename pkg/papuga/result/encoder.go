// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package result implements ResultEncoder: rendering a
// ValueVariant/Serialization tree to XML, JSON, HTML5 or plain text,
// sharing one recursive walker parameterized per style.
package result

import (
	"strconv"
	"strings"

	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/serialization"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// Style is one of the four output sinks.
type Style int

const (
	XML Style = iota
	JSON
	HTML5
	Text
)

// MaxRecursionDepth bounds the walker's nesting depth.
const MaxRecursionDepth = 200

// Options parameterizes a render: the synthetic root element name,
// beautification (indentation), and HTML5-only extras.
type Options struct {
	RootName    string
	Beautify    bool
	Charset     string // HTML5 <meta charset>, default "UTF-8"
	HeadFragment string // HTML5 caller-supplied <head> content
	Canonical   bool   // stable-sort Name-tagged siblings before rendering
}

// Encode renders v under style with opts, returning UTF-8 bytes
// registered with a: ownership of the output transfers to the result
// Allocator.
func Encode(a *allocator.Allocator, v value.Variant, style Style, opts Options) ([]byte, error) {
	if opts.RootName == "" {
		opts.RootName = "result"
	}
	if opts.Charset == "" {
		opts.Charset = "UTF-8"
	}
	if opts.Canonical {
		if ser, ok := serializationOf(v); ok {
			sorted, err := serialization.SortNamesStable(ser)
			if err != nil {
				return nil, err
			}
			v = serialization.AsVariant(sorted)
		}
	}
	w := &walker{a: a, opts: opts}
	var out []byte
	var err error
	switch style {
	case XML:
		out, err = w.renderXML(v)
	case JSON:
		out, err = w.renderJSON(v)
	case HTML5:
		out, err = w.renderHTML5(v)
	case Text:
		out, err = w.renderText(v)
	default:
		return nil, perror.New(perror.UnknownContentType, "unsupported result style %d", style)
	}
	if err != nil {
		return nil, err
	}
	if a != nil {
		owned, cerr := a.CopyBytes(out)
		if cerr != nil {
			return nil, cerr
		}
		out = owned
	}
	return out, nil
}

func serializationOf(v value.Variant) (*serialization.Serialization, bool) {
	return serialization.FromVariant(v)
}

type walker struct {
	a    *allocator.Allocator
	opts Options
}

func indent(b *strings.Builder, depth int, beautify bool) {
	if !beautify {
		return
	}
	b.WriteByte('\n')
	for i := 0; i < depth; i++ {
		b.WriteString("  ")
	}
}

// escapeMarkup entity-escapes & < > " ' for XML/HTML attribute and text
// content.
func escapeMarkup(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&#39;")
	return r.Replace(s)
}

// escapeJSONString applies the ANSI-C escapes required for JSON strings.
func escapeJSONString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func scalarText(a *allocator.Allocator, v value.Variant) (string, error) {
	b, err := v.ToString(a)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func formatScalarJSON(a *allocator.Allocator, v value.Variant) (string, error) {
	switch v.Type() {
	case value.Int:
		i, err := v.ToInt()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(i, 10), nil
	case value.Double:
		d, err := v.ToDouble()
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(d, 'g', -1, 64), nil
	case value.Bool:
		b, err := v.ToBool()
		if err != nil {
			return "", err
		}
		if b {
			return "true", nil
		}
		return "false", nil
	case value.Void:
		return "null", nil
	default:
		s, err := scalarText(a, v)
		if err != nil {
			return "", err
		}
		return escapeJSONString(s), nil
	}
}
