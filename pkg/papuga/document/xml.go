// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package document

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// XMLParser streams XML via encoding/xml's token decoder and
// re-expresses each token as a papuga document Event: element start ->
// Open, each attribute -> AttributeName/AttributeValue, character data
// -> Value, element end -> Close.
type XMLParser struct {
	dec     *xml.Decoder
	pos     int
	pending []Event
	history []Event
}

// NewXML builds an XMLParser over UTF-8-normalized XML bytes.
func NewXML(content []byte) *XMLParser {
	dec := xml.NewDecoder(bytes.NewReader(content))
	dec.Strict = true
	return &XMLParser{dec: dec}
}

func (p *XMLParser) Pos() int { return p.pos }

func (p *XMLParser) Next() (Event, error) {
	if len(p.pending) > 0 {
		ev := p.pending[0]
		p.pending = p.pending[1:]
		p.record(ev)
		return ev, nil
	}
	tok, err := p.dec.Token()
	if err == io.EOF {
		return Event{Type: None}, nil
	}
	if err != nil {
		return Event{}, NewParseError(p.pos, p.history, "xml: %v", err)
	}
	p.pos = int(p.dec.InputOffset())
	switch t := tok.(type) {
	case xml.StartElement:
		name := t.Name.Local
		for _, a := range t.Attr {
			p.pending = append(p.pending, Event{Type: AttributeName, Name: a.Name.Local})
			p.pending = append(p.pending, Event{Type: AttributeValue, Name: a.Name.Local, Val: value.NewString(a.Value)})
		}
		ev := Event{Type: Open, Name: name}
		p.record(ev)
		return ev, nil
	case xml.EndElement:
		ev := Event{Type: Close, Name: t.Name.Local}
		p.record(ev)
		return ev, nil
	case xml.CharData:
		text := strings.TrimSpace(string(t))
		if text == "" {
			return p.Next()
		}
		ev := Event{Type: Value, Val: value.NewString(text)}
		p.record(ev)
		return ev, nil
	default:
		return p.Next()
	}
}

func (p *XMLParser) record(ev Event) {
	p.history = append(p.history, ev)
	if len(p.history) > 64 {
		p.history = p.history[len(p.history)-64:]
	}
}
