// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package automaton implements the XPath-subset selector automaton that
// maps document events to scheduled values, structures and method calls.
package automaton

import (
	"strings"

	"github.com/papuga-go/papuga/pkg/papuga/perror"
)

// segment is one '/'-delimited step of a compiled selector. A choice
// union "{a,b,c}" compiles to len(Names) > 1; a plain step to one name.
type segment struct {
	Names []string
}

func (s segment) matches(name string) bool {
	for _, n := range s.Names {
		if n == name {
			return true
		}
	}
	return false
}

// selector is a compiled path expression: absolute (/a/b), descendant
// (//x), attribute axis (@k), tag-close pseudostep (~ appended), and a
// choice union ({a,b,c}).
type selector struct {
	descendant bool // leading "//"
	segments   []segment
	attr       string // non-empty for a trailing "@k" axis
	closeStep  bool   // trailing "~"
	raw        string
}

func compileSelector(expr string) (*selector, error) {
	raw := expr
	s := &selector{raw: raw}
	if strings.HasSuffix(expr, "~") {
		s.closeStep = true
		expr = expr[:len(expr)-1]
	}
	if idx := strings.LastIndex(expr, "@"); idx >= 0 && !strings.Contains(expr[idx:], "/") {
		s.attr = expr[idx+1:]
		expr = expr[:idx]
		expr = strings.TrimSuffix(expr, "/")
	}
	if strings.HasPrefix(expr, "//") {
		s.descendant = true
		expr = expr[2:]
	} else if strings.HasPrefix(expr, "/") {
		expr = expr[1:]
	} else if expr != "" {
		return nil, perror.New(perror.SyntaxError, "selector %q must be absolute (/x) or descendant (//x)", raw)
	}
	if expr == "" && s.attr == "" {
		return nil, perror.New(perror.SyntaxError, "empty selector path %q", raw)
	}
	for _, part := range strings.Split(expr, "/") {
		if part == "" {
			continue
		}
		seg, err := compileSegment(part, raw)
		if err != nil {
			return nil, err
		}
		s.segments = append(s.segments, seg)
	}
	return s, nil
}

func compileSegment(part, raw string) (segment, error) {
	if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
		inner := part[1 : len(part)-1]
		names := strings.Split(inner, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
			if names[i] == "" {
				return segment{}, perror.New(perror.SyntaxError, "empty choice alternative in selector %q", raw)
			}
		}
		return segment{Names: names}, nil
	}
	return segment{Names: []string{part}}, nil
}

// matchElementPath reports whether the element path (root-first element
// name stack, not including the attribute) satisfies s. The attribute
// name itself is checked by matchAttr.
func (s *selector) matchElementPath(path []string) bool {
	if len(s.segments) == 0 {
		return s.attr != ""
	}
	if s.descendant {
		if len(path) < len(s.segments) {
			return false
		}
		suffix := path[len(path)-len(s.segments):]
		return segMatchAll(s.segments, suffix)
	}
	if len(path) != len(s.segments) {
		return false
	}
	return segMatchAll(s.segments, path)
}

func (s *selector) matchAttr(path []string, attrName string) bool {
	if s.attr == "" || s.attr != attrName {
		return false
	}
	return s.matchElementPath(path)
}

func segMatchAll(segs []segment, path []string) bool {
	for i, seg := range segs {
		if !seg.matches(path[i]) {
			return false
		}
	}
	return true
}

func (s *selector) maxTagDepth() int {
	return len(s.segments)
}
