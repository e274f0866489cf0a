// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// jnode is the DOM the JSON front end builds before linearizing into the
// same event tokens the XML front end produces, preserving member order
// the way encoding/json's map-based Unmarshal cannot.
type jnode interface{ isJNode() }

type jobject struct {
	keys []string
	vals []jnode
}
type jarray struct{ vals []jnode }
type jscalar struct{ v value.Variant }
type jnull struct{}

func (*jobject) isJNode() {}
func (*jarray) isJNode()  {}
func (*jscalar) isJNode() {}
func (*jnull) isJNode()   {}

func parseJSONTree(dec *json.Decoder) (jnode, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return buildFromToken(dec, tok)
}

func buildFromToken(dec *json.Decoder, tok json.Token) (jnode, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := &jobject{}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("expected object key, got %v", kt)
				}
				vt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				val, err := buildFromToken(dec, vt)
				if err != nil {
					return nil, err
				}
				obj.keys = append(obj.keys, key)
				obj.vals = append(obj.vals, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		case '[':
			arr := &jarray{}
			for dec.More() {
				vt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				val, err := buildFromToken(dec, vt)
				if err != nil {
					return nil, err
				}
				arr.vals = append(arr.vals, val)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case string:
		return &jscalar{v: value.NewString(t)}, nil
	case json.Number:
		s := t.String()
		if strings.ContainsAny(s, ".eE") {
			f, err := t.Float64()
			if err != nil {
				return nil, err
			}
			return &jscalar{v: value.NewDouble(f)}, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return &jscalar{v: value.NewDouble(mustFloat(t))}, nil
		}
		return &jscalar{v: value.NewInt(n)}, nil
	case bool:
		return &jscalar{v: value.NewBool(t)}, nil
	case nil:
		return &jnull{}, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

func mustFloat(n json.Number) float64 {
	f, _ := n.Float64()
	return f
}

// JSONParser streams a document.Event sequence out of an entire JSON
// document, applying the object-key mapping rules of the event model.
type JSONParser struct {
	events []Event
	pos    int
}

// NewJSON parses content (already UTF-8 normalized) into a JSONParser.
func NewJSON(content []byte) (*JSONParser, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	root, err := parseJSONTree(dec)
	if err != nil {
		return nil, NewParseError(0, nil, "json: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF && err != nil {
		return nil, NewParseError(len(content), nil, "json: trailing data: %v", err)
	}
	var events []Event
	if err := linearizeRoot(root, &events); err != nil {
		return nil, err
	}
	return &JSONParser{events: events}, nil
}

func (p *JSONParser) Pos() int { return p.pos }

func (p *JSONParser) Next() (Event, error) {
	if p.pos >= len(p.events) {
		return Event{Type: None}, nil
	}
	ev := p.events[p.pos]
	p.pos++
	return ev, nil
}

func linearizeRoot(root jnode, out *[]Event) error {
	switch n := root.(type) {
	case *jobject:
		return linearizeObject(n, out)
	case *jarray:
		for i, e := range n.vals {
			if err := emitWrapped(strconv.Itoa(i+1), e, out); err != nil {
				return err
			}
		}
		return nil
	case *jscalar:
		*out = append(*out, Event{Type: Value, Val: n.v})
		return nil
	case *jnull:
		return nil
	}
	return nil
}

func linearizeObject(obj *jobject, out *[]Event) error {
	for i, key := range obj.keys {
		val := obj.vals[i]
		switch {
		case strings.HasPrefix(key, "-") && len(key) > 1:
			sv, ok := val.(*jscalar)
			if !ok {
				return perror.New(perror.AttributeNotAtomic, "attribute %q must be an atomic value", key[1:])
			}
			*out = append(*out, Event{Type: AttributeName, Name: key[1:]})
			*out = append(*out, Event{Type: AttributeValue, Name: key[1:], Val: sv.v})
		case key == "#text":
			sv, ok := val.(*jscalar)
			if !ok {
				return perror.New(perror.AttributeNotAtomic, "#text must be an atomic value")
			}
			*out = append(*out, Event{Type: Value, Val: sv.v})
		default:
			if err := emitMember(key, val, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// emitMember handles "key of an array produces repeated Open/Close of
// the parent key for each element" by fanning an array value out into
// one emitWrapped call per element, all sharing name.
func emitMember(name string, node jnode, out *[]Event) error {
	if arr, ok := node.(*jarray); ok {
		for _, e := range arr.vals {
			if err := emitWrapped(name, e, out); err != nil {
				return err
			}
		}
		return nil
	}
	return emitWrapped(name, node, out)
}

func emitWrapped(name string, node jnode, out *[]Event) error {
	switch n := node.(type) {
	case *jobject:
		*out = append(*out, Event{Type: Open, Name: name})
		if err := linearizeObject(n, out); err != nil {
			return err
		}
		*out = append(*out, Event{Type: Close, Name: name})
	case *jarray:
		// An array nested directly inside another array (no key):
		// anonymous, so its elements get synthesized 1-based indices.
		*out = append(*out, Event{Type: Open, Name: name})
		for i, e := range n.vals {
			if err := emitWrapped(strconv.Itoa(i+1), e, out); err != nil {
				return err
			}
		}
		*out = append(*out, Event{Type: Close, Name: name})
	case *jnull:
		*out = append(*out, Event{Type: Open, Name: name})
		*out = append(*out, Event{Type: Close, Name: name})
	case *jscalar:
		*out = append(*out, Event{Type: Open, Name: name})
		*out = append(*out, Event{Type: Value, Val: n.v})
		*out = append(*out, Event{Type: Close, Name: name})
	}
	return nil
}
