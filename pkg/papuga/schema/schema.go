// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package schema implements the compact SchemaMap DSL and its compiled
// validation automaton.
package schema

import (
	"fmt"
	"strings"

	"github.com/papuga-go/papuga/pkg/papuga/perror"
)

// MaxNofSchemas bounds how many top-level schemas a single source may
// define before ComplexityOfProblem.
const MaxNofSchemas = 64

// MaxNofNodes bounds the number of fields (including nested, expanded)
// a single schema may declare.
const MaxNofNodes = 64

// MaxRecursionDepth bounds inline nested-schema depth.
const MaxRecursionDepth = 200

// Kind is a field's value kind.
type Kind int

const (
	KindInteger Kind = iota
	KindFloat
	KindString
	KindObject
	KindRef
)

// Field is one member binding inside a schema body:
//
//	field = type | { ... } | (innerSchemaName) | { { innerSchemaName } }
type Field struct {
	Name     string
	Kind     Kind
	Repeated bool // true for the "{ { ... } }" array-of form
	Nested   *Schema
	RefName  string
}

// Schema is one compiled `name = { ... }` top-level definition.
type Schema struct {
	Name   string
	Fields []Field
}

// List is the result of SchemaList_parse: the raw source chunk for
// every top-level schema, in definition order. ParseMap compiles each
// chunk; parse and validation errors do not quote the chunks.
type List struct {
	Order  []string
	Chunks map[string]string
}

// ParseList extracts per-schema source chunks without resolving
// references or building automata.
func ParseList(src string) (*List, error) {
	stripped := stripComments(src)
	l := &List{Chunks: map[string]string{}}
	i := 0
	n := len(stripped)
	for {
		i = skipSpace(stripped, i)
		if i >= n {
			break
		}
		nameStart := i
		for i < n && isIdentChar(stripped[i]) {
			i++
		}
		name := stripped[nameStart:i]
		if name == "" {
			return nil, perror.New(perror.SyntaxError, "expected schema name at offset %d", i)
		}
		i = skipSpace(stripped, i)
		if i >= n || stripped[i] != '=' {
			return nil, perror.New(perror.SyntaxError, "expected '=' after schema name %q", name)
		}
		i++
		i = skipSpace(stripped, i)
		bodyStart := i
		depth := 0
		if i >= n || stripped[i] != '{' {
			return nil, perror.New(perror.SyntaxError, "expected '{' to open schema %q", name)
		}
		for i < n {
			switch stripped[i] {
			case '{':
				depth++
			case '}':
				depth--
			}
			i++
			if depth == 0 {
				break
			}
		}
		if depth != 0 {
			return nil, perror.New(perror.SyntaxError, "unterminated schema %q", name)
		}
		if _, exists := l.Chunks[name]; exists {
			return nil, perror.New(perror.DuplicateDefinition, "schema %q defined twice", name)
		}
		l.Order = append(l.Order, name)
		l.Chunks[name] = stripped[bodyStart:i]
		if len(l.Order) > MaxNofSchemas {
			return nil, perror.New(perror.ComplexityOfProblem, "more than %d schemas in source", MaxNofSchemas)
		}
	}
	return l, nil
}

func stripComments(src string) string {
	var b strings.Builder
	lines := strings.Split(src, "\n")
	for _, line := range lines {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func skipSpace(s string, i int) int {
	for i < len(s) {
		switch s[i] {
		case ' ', '\t', '\n', '\r', ',':
			i++
		default:
			return i
		}
	}
	return i
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Map is the result of SchemaMap_parse: every schema compiled, with
// inner-schema references resolved against sibling definitions.
type Map struct {
	List    *List
	schemas map[string]*Schema
}

// ParseMap builds the compiled automata for every schema in src.
func ParseMap(src string) (*Map, error) {
	list, err := ParseList(src)
	if err != nil {
		return nil, err
	}
	m := &Map{List: list, schemas: map[string]*Schema{}}
	for _, name := range list.Order {
		s, err := parseSchemaBody(name, list.Chunks[name], list, 0)
		if err != nil {
			return nil, err
		}
		if countNodes(s, map[string]bool{}) > MaxNofNodes {
			return nil, perror.New(perror.ComplexityOfProblem, "schema %q exceeds %d nodes", name, MaxNofNodes)
		}
		m.schemas[name] = s
	}
	// Resolve forward references now that every schema is registered.
	for _, s := range m.schemas {
		if err := resolveRefs(s, m, 0); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Get looks up a compiled schema by name.
func (m *Map) Get(name string) (*Schema, error) {
	s, ok := m.schemas[name]
	if !ok {
		return nil, perror.New(perror.AddressedItemNotFound, "schema %q not found", name)
	}
	return s, nil
}

func parseSchemaBody(name, body string, list *List, depth int) (*Schema, error) {
	if depth > MaxRecursionDepth {
		return nil, perror.New(perror.MaxRecursionDepthReached, "schema %q nesting too deep", name)
	}
	s := &Schema{Name: name}
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "{")
	body = strings.TrimSuffix(body, "}")
	i := 0
	n := len(body)
	for {
		i = skipSpace(body, i)
		if i >= n {
			break
		}
		fstart := i
		for i < n && isIdentChar(body[i]) {
			i++
		}
		fname := body[fstart:i]
		if fname == "" {
			return nil, perror.New(perror.SyntaxError, "expected field name in schema %q at offset %d", name, i)
		}
		i = skipSpace(body, i)
		if i >= n || body[i] != '=' {
			return nil, perror.New(perror.SyntaxError, "expected '=' after field %q in schema %q", fname, name)
		}
		i++
		i = skipSpace(body, i)
		field, next, err := parseFieldValue(name, fname, body, i, list, depth)
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, field)
		i = next
	}
	return s, nil
}

func parseFieldValue(schemaName, fname, body string, i int, list *List, depth int) (Field, int, error) {
	n := len(body)
	switch {
	case strings.HasPrefix(body[i:], "integer"):
		return Field{Name: fname, Kind: KindInteger}, i + len("integer"), nil
	case strings.HasPrefix(body[i:], "float"):
		return Field{Name: fname, Kind: KindFloat}, i + len("float"), nil
	case strings.HasPrefix(body[i:], "string"):
		return Field{Name: fname, Kind: KindString}, i + len("string"), nil
	case i < n && body[i] == '(':
		j := strings.IndexByte(body[i:], ')')
		if j < 0 {
			return Field{}, i, perror.New(perror.SyntaxError, "unterminated reference in schema %q field %q", schemaName, fname)
		}
		refName := strings.TrimSpace(body[i+1 : i+j])
		return Field{Name: fname, Kind: KindRef, RefName: refName}, i + j + 1, nil
	case i < n && body[i] == '{':
		// Either "{ { ... } }" (array of nested/ref) or "{ ... }" (inline nested).
		j := skipSpace(body, i+1)
		if j < n && body[j] == '{' {
			inner, innerEnd, err := parseArrayInner(schemaName, fname, body, j, list, depth)
			if err != nil {
				return Field{}, i, err
			}
			end := matchBrace(body, i)
			if end < 0 || end < innerEnd {
				return Field{}, i, perror.New(perror.SyntaxError, "unterminated array field %q in schema %q", fname, schemaName)
			}
			inner.Repeated = true
			return inner, end + 1, nil
		}
		end := matchBrace(body, i)
		if end < 0 {
			return Field{}, i, perror.New(perror.SyntaxError, "unterminated nested field %q in schema %q", fname, schemaName)
		}
		nested, err := parseSchemaBody(schemaName+"."+fname, body[i:end+1], list, depth+1)
		if err != nil {
			return Field{}, i, err
		}
		return Field{Name: fname, Kind: KindObject, Nested: nested}, end + 1, nil
	default:
		return Field{}, i, perror.New(perror.SyntaxError, "unrecognized type for field %q in schema %q", fname, schemaName)
	}
}

// parseArrayInner parses the inner "{ ... }" of a "{ { ... } }" array
// field, which may itself be a primitive type, a (ref), or a nested
// object body.
func parseArrayInner(schemaName, fname, body string, openIdx int, list *List, depth int) (Field, int, error) {
	innerEnd := matchBrace(body, openIdx)
	if innerEnd < 0 {
		return Field{}, openIdx, perror.New(perror.SyntaxError, "unterminated array inner for field %q in schema %q", fname, schemaName)
	}
	innerBody := strings.TrimSpace(body[openIdx+1 : innerEnd])
	switch innerBody {
	case "integer":
		return Field{Name: fname, Kind: KindInteger}, innerEnd, nil
	case "float":
		return Field{Name: fname, Kind: KindFloat}, innerEnd, nil
	case "string":
		return Field{Name: fname, Kind: KindString}, innerEnd, nil
	}
	if strings.HasPrefix(innerBody, "(") && strings.HasSuffix(innerBody, ")") {
		return Field{Name: fname, Kind: KindRef, RefName: strings.TrimSpace(innerBody[1 : len(innerBody)-1])}, innerEnd, nil
	}
	if strings.HasPrefix(innerBody, "{") {
		nested, err := parseSchemaBody(schemaName+"."+fname, innerBody, list, depth+1)
		if err != nil {
			return Field{}, innerEnd, err
		}
		return Field{Name: fname, Kind: KindObject, Nested: nested}, innerEnd, nil
	}
	return Field{}, innerEnd, perror.New(perror.SyntaxError, "unrecognized array element type for field %q in schema %q", fname, schemaName)
}

func matchBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func resolveRefs(s *Schema, m *Map, depth int) error {
	if depth > MaxRecursionDepth {
		return perror.New(perror.MaxRecursionDepthReached, "schema %q reference chain too deep", s.Name)
	}
	for i := range s.Fields {
		f := &s.Fields[i]
		switch f.Kind {
		case KindRef:
			if _, err := m.Get(f.RefName); err != nil {
				return perror.New(perror.AddressedItemNotFound, "schema %q references unknown schema %q", s.Name, f.RefName)
			}
		case KindObject:
			if err := resolveRefs(f.Nested, m, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func countNodes(s *Schema, seen map[string]bool) int {
	if seen[s.Name] {
		return 0
	}
	seen[s.Name] = true
	n := len(s.Fields)
	for _, f := range s.Fields {
		if f.Kind == KindObject {
			n += countNodes(f.Nested, seen)
		}
	}
	return n
}

func (k Kind) String() string {
	switch k {
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindRef:
		return "ref"
	default:
		return "?"
	}
}

func (f Field) String() string {
	if f.Repeated {
		return fmt.Sprintf("%s={{%s}}", f.Name, f.Kind)
	}
	return fmt.Sprintf("%s=%s", f.Name, f.Kind)
}
