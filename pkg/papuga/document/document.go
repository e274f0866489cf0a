// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package document implements the streaming XML/JSON event parser that
// feeds the RequestAutomaton and SchemaMap components.
package document

import (
	"bytes"

	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// EventType is one of the token kinds emitted while traversing a
// document.
type EventType int

const (
	None EventType = iota
	AttributeName
	AttributeValue
	Open
	Close
	Value
)

func (t EventType) String() string {
	switch t {
	case AttributeName:
		return "AttributeName"
	case AttributeValue:
		return "AttributeValue"
	case Open:
		return "Open"
	case Close:
		return "Close"
	case Value:
		return "Value"
	default:
		return "None"
	}
}

// Event is one step of the document's linearized token stream. Name
// carries the element/attribute/member name where applicable; Val
// carries the scalar payload for AttributeValue/Value events.
type Event struct {
	Type EventType
	Name string
	Val  value.Variant
}

// ContentType is the sniffed or declared shape of the input document.
type ContentType int

const (
	UnknownContent ContentType = iota
	XML
	JSON
)

func (c ContentType) String() string {
	switch c {
	case XML:
		return "XML"
	case JSON:
		return "JSON"
	default:
		return "Unknown"
	}
}

// Parser streams Events out of a document, tracking a byte position for
// error attribution.
type Parser interface {
	// Next returns the next Event, or an error. At end of input Next
	// returns (Event{Type: None}, nil).
	Next() (Event, error)
	// Pos returns an approximate byte offset of the last token consumed,
	// used to build ParseError windows.
	Pos() int
}

// ParseError carries a byte position and a compact visualization of the
// tokens leading up to the fault (up to 7 tokens, followed by <!> marking
// the fault position). Tokens after the fault are not shown.
type ParseError struct {
	*perror.Error
	Position    int
	Around      string
}

// NewParseError builds a ParseError, rendering the last (up to 7) tokens
// of history (already-seen tokens) before the <!> marker.
func NewParseError(pos int, history []Event, msg string, args ...interface{}) *ParseError {
	base := perror.NewAt(perror.SyntaxError, pos, msg, args...)
	return &ParseError{Error: base, Position: pos, Around: visualize(history, pos)}
}

func visualize(history []Event, pos int) string {
	n := len(history)
	start := n - 7
	if start < 0 {
		start = 0
	}
	var buf bytes.Buffer
	for i := start; i < n; i++ {
		buf.WriteString(history[i].Type.String())
		if history[i].Name != "" {
			buf.WriteString("(")
			buf.WriteString(history[i].Name)
			buf.WriteString(")")
		}
		buf.WriteString(" ")
	}
	buf.WriteString("<!>")
	return buf.String()
}
