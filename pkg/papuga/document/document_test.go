// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package document

import (
	"testing"

	"github.com/papuga-go/papuga/pkg/papuga/value"
)

func drain(t *testing.T, p Parser) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := p.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if ev.Type == None {
			return out
		}
		out = append(out, ev)
	}
}

func TestJSONParserScalarMember(t *testing.T) {
	p, err := NewJSON([]byte(`{"x":5}`))
	if err != nil {
		t.Fatalf("NewJSON: %v", err)
	}
	events := drain(t, p)
	want := []EventType{Open, Value, Close}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ty := range want {
		if events[i].Type != ty {
			t.Fatalf("event %d: got %v, want %v", i, events[i].Type, ty)
		}
	}
	n, err := events[1].Val.ToInt()
	if err != nil || n != 5 {
		t.Fatalf("value = %v, %v; want 5, nil", n, err)
	}
}

func TestJSONParserArrayFansOutRepeatedOpen(t *testing.T) {
	p, err := NewJSON([]byte(`{"items":[1,2]}`))
	if err != nil {
		t.Fatalf("NewJSON: %v", err)
	}
	events := drain(t, p)
	want := []EventType{Open, Value, Close, Open, Value, Close}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ty := range want {
		if events[i].Type != ty {
			t.Fatalf("event %d: got %v, want %v", i, events[i].Type, ty)
		}
		if events[i].Type == Open || events[i].Type == Close {
			if events[i].Name != "items" {
				t.Fatalf("event %d name = %q, want \"items\"", i, events[i].Name)
			}
		}
	}
}

func TestJSONParserAttributeAndTextPrefixes(t *testing.T) {
	p, err := NewJSON([]byte(`{"-id":"7","#text":"hi"}`))
	if err != nil {
		t.Fatalf("NewJSON: %v", err)
	}
	events := drain(t, p)
	want := []EventType{AttributeName, AttributeValue, Value}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ty := range want {
		if events[i].Type != ty {
			t.Fatalf("event %d: got %v, want %v", i, events[i].Type, ty)
		}
	}
	if events[1].Name != "id" {
		t.Fatalf("attribute name = %q, want \"id\"", events[1].Name)
	}
}

func TestJSONParserRejectsTrailingData(t *testing.T) {
	if _, err := NewJSON([]byte(`{"a":1} garbage`)); err == nil {
		t.Fatal("expected a parse error for trailing data after the JSON document")
	}
}

func TestXMLParserElementWithAttributeAndText(t *testing.T) {
	p := NewXML([]byte(`<a id="7">hi</a>`))
	events := drain(t, p)
	want := []EventType{Open, AttributeName, AttributeValue, Value, Close}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, ty := range want {
		if events[i].Type != ty {
			t.Fatalf("event %d: got %v, want %v", i, events[i].Type, ty)
		}
	}
	if events[2].Val.Type() != value.String {
		t.Fatalf("attribute value type = %v, want String", events[2].Val.Type())
	}
	s, _ := events[3].Val.ToString(nil)
	if string(s) != "hi" {
		t.Fatalf("text value = %q, want \"hi\"", s)
	}
}

func TestXMLParserSkipsWhitespaceOnlyText(t *testing.T) {
	p := NewXML([]byte("<a>\n  <b>x</b>\n</a>"))
	events := drain(t, p)
	for _, ev := range events {
		if ev.Type == Value {
			s, _ := ev.Val.ToString(nil)
			if string(s) == "" {
				t.Fatal("expected whitespace-only text nodes to be skipped entirely")
			}
		}
	}
}

func TestXMLParserRejectsMalformedInput(t *testing.T) {
	p := NewXML([]byte(`<a><b></a>`))
	var sawErr bool
	for {
		ev, err := p.Next()
		if err != nil {
			sawErr = true
			break
		}
		if ev.Type == None {
			break
		}
	}
	if !sawErr {
		t.Fatal("expected a parse error for mismatched start/end tags")
	}
}

func TestStripBOMVariants(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		enc  value.Encoding
		rest int
	}{
		{"none", []byte("abc"), value.UTF8, 3},
		{"utf8", append([]byte{0xEF, 0xBB, 0xBF}, "abc"...), value.UTF8, 3},
		{"utf16be", append([]byte{0xFE, 0xFF}, 'a', 0), value.UTF16BE, 2},
		{"utf16le", append([]byte{0xFF, 0xFE}, 'a', 0), value.UTF16LE, 2},
	}
	for _, c := range cases {
		body, enc := StripBOM(c.in)
		if enc != c.enc {
			t.Fatalf("%s: encoding = %v, want %v", c.name, enc, c.enc)
		}
		if len(body) != c.rest {
			t.Fatalf("%s: remaining length = %d, want %d", c.name, len(body), c.rest)
		}
	}
}

func TestDetectContentType(t *testing.T) {
	cases := []struct {
		in   string
		want ContentType
	}{
		{`  {"a":1}`, JSON},
		{"\n<root/>", XML},
		{"[1,2]", JSON},
		{"plain text", UnknownContent},
	}
	for _, c := range cases {
		got := DetectContentType([]byte(c.in))
		if got != c.want {
			t.Fatalf("DetectContentType(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestOpenAutoDetectsJSON(t *testing.T) {
	p, ct, err := Open([]byte(`{"a":1}`), UnknownContent, value.UTF8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ct != JSON {
		t.Fatalf("content type = %v, want JSON", ct)
	}
	if _, ok := p.(*JSONParser); !ok {
		t.Fatal("expected Open to build a *JSONParser for a JSON document")
	}
}

func TestOpenAutoDetectsXML(t *testing.T) {
	p, ct, err := Open([]byte(`<a/>`), UnknownContent, value.UTF8)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ct != XML {
		t.Fatalf("content type = %v, want XML", ct)
	}
	if _, ok := p.(*XMLParser); !ok {
		t.Fatal("expected Open to build an *XMLParser for an XML document")
	}
}

func TestOpenRejectsUndetectableContent(t *testing.T) {
	if _, _, err := Open([]byte("not a document"), UnknownContent, value.UTF8); err == nil {
		t.Fatal("expected UnknownContentType error for undetectable content")
	}
}
