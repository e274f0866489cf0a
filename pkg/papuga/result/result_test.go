// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package result

import (
	"strings"
	"testing"

	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/serialization"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

func buildObject() *serialization.Serialization {
	s := serialization.New()
	s.PushNameString("a")
	s.PushValue(value.NewInt(1))
	s.PushNameString("b")
	s.PushValue(value.NewString("x"))
	return s
}

func TestEncodeJSONObject(t *testing.T) {
	a := allocator.New()
	out, err := Encode(a, serialization.AsVariant(buildObject()), JSON, Options{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(out) != `{"a":1,"b":"x"}` {
		t.Fatalf("got %q", out)
	}
}

func TestEncodeJSONEmptyObject(t *testing.T) {
	a := allocator.New()
	out, err := Encode(a, serialization.AsVariant(serialization.New()), JSON, Options{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(out) != "{}" {
		t.Fatalf("got %q, want {}", out)
	}
}

func TestEncodeXMLUsesRootName(t *testing.T) {
	a := allocator.New()
	out, err := Encode(a, serialization.AsVariant(buildObject()), XML, Options{RootName: "widget"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "<widget>") || !strings.Contains(s, "</widget>") {
		t.Fatalf("missing root element: %q", s)
	}
	if !strings.Contains(s, "<a>1</a>") || !strings.Contains(s, "<b>x</b>") {
		t.Fatalf("missing member elements: %q", s)
	}
}

func TestEncodeXMLEscapesMarkup(t *testing.T) {
	a := allocator.New()
	s := serialization.New()
	s.PushNameString("note")
	s.PushValue(value.NewString("<b>&amp;</b>"))
	out, err := Encode(a, serialization.AsVariant(s), XML, Options{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(string(out), "<b>&amp;</b>") {
		t.Fatal("expected markup characters inside the scalar to be entity-escaped")
	}
	if !strings.Contains(string(out), "&lt;b&gt;&amp;amp;&lt;/b&gt;") {
		t.Fatalf("escaped form not found: %q", out)
	}
}

func TestEncodeTextIndentedForm(t *testing.T) {
	a := allocator.New()
	out, err := Encode(a, serialization.AsVariant(buildObject()), Text, Options{RootName: "result"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "a: 1\n") || !strings.Contains(s, "b: x\n") {
		t.Fatalf("missing member lines: %q", s)
	}
}

func TestEncodeCanonicalSortsNames(t *testing.T) {
	a := allocator.New()
	s := serialization.New()
	s.PushNameString("zeta")
	s.PushValue(value.NewInt(1))
	s.PushNameString("alpha")
	s.PushValue(value.NewInt(2))
	out, err := Encode(a, serialization.AsVariant(s), JSON, Options{Canonical: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Index(string(out), "alpha") > strings.Index(string(out), "zeta") {
		t.Fatalf("expected alpha before zeta in canonical order: %q", out)
	}
}

func TestEncodeRejectsUnknownStyle(t *testing.T) {
	a := allocator.New()
	if _, err := Encode(a, serialization.AsVariant(buildObject()), Style(99), Options{}); err == nil {
		t.Fatal("expected an error for an unsupported result style")
	}
}

func TestEncodeExpandsIteratorAsArrayOfTuples(t *testing.T) {
	a := allocator.New()
	it := sliceIterator{vals: []int64{1, 2, 3}}
	out, err := Encode(a, value.NewIterator(&it), JSON, Options{})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if string(out) != "[[1],[2],[3]]" {
		t.Fatalf("got %q, want [[1],[2],[3]]", out)
	}
}

func TestEncodeHTML5WrapsRootDiv(t *testing.T) {
	a := allocator.New()
	out, err := Encode(a, serialization.AsVariant(buildObject()), HTML5, Options{RootName: "widget"})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, `<div class="widget">`) {
		t.Fatalf("missing root div: %q", s)
	}
	if !strings.Contains(s, `<div class="a">1</div>`) {
		t.Fatalf("missing member div: %q", s)
	}
}

type sliceIterator struct {
	vals []int64
	pos  int
}

func (s *sliceIterator) Next(a *allocator.Allocator) (value.Variant, value.Variant, bool, error) {
	if s.pos >= len(s.vals) {
		return value.NewVoid(), value.NewVoid(), false, nil
	}
	v := value.NewInt(s.vals[s.pos])
	s.pos++
	return value.NewVoid(), v, true, nil
}

func (s *sliceIterator) Destroy() {}
