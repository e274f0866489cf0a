// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package luahandler

import "strings"

// ContentTypeBit is one bit of an AcceptSet's bitset, matching the
// style sinks of pkg/papuga/result.
type ContentTypeBit uint

const (
	AcceptXML ContentTypeBit = 1 << iota
	AcceptJSON
	AcceptHTML
	AcceptText
)

// AcceptSet is the bitset-per-media-type table an HTTP Accept header
// decomposes into, plus the first-listed preference (returned by
// FirstCompatible).
type AcceptSet struct {
	Bits      ContentTypeBit
	Preferred ContentTypeBit
}

// ParseAccept decomposes a comma-separated HTTP Accept header into its
// bitset, in the order listed; application/octet-stream and unrecognized
// media types are skipped (an Unknown content type can't drive output
// style selection).
func ParseAccept(header string) AcceptSet {
	var set AcceptSet
	for _, raw := range strings.Split(header, ",") {
		mt := strings.TrimSpace(raw)
		if semi := strings.IndexByte(mt, ';'); semi >= 0 {
			mt = strings.TrimSpace(mt[:semi])
		}
		bit := mediaTypeBits(mt)
		if bit == 0 {
			continue
		}
		if set.Bits == 0 {
			set.Preferred = bit
		}
		set.Bits |= bit
	}
	return set
}

// mediaTypeBits maps one media type, possibly a combined type like
// "application/json+xml", to the bits of every style it names.
func mediaTypeBits(mt string) ContentTypeBit {
	switch mt {
	case "application/octet-stream", "*/*":
		return 0
	case "application/json":
		return AcceptJSON
	case "application/xml", "text/xml":
		return AcceptXML
	case "application/xhtml+xml":
		return AcceptXML | AcceptHTML
	case "text/html":
		return AcceptHTML
	case "text/plain":
		return AcceptText
	}
	var bits ContentTypeBit
	if strings.Contains(mt, "json") {
		bits |= AcceptJSON
	}
	if strings.Contains(mt, "xml") {
		bits |= AcceptXML
	}
	if strings.Contains(mt, "html") {
		bits |= AcceptHTML
	}
	if strings.Contains(mt, "text") {
		bits |= AcceptText
	}
	return bits
}

// Accepts reports whether bit is among the set's acceptable types.
func (a AcceptSet) Accepts(bit ContentTypeBit) bool {
	return a.Bits&bit != 0
}

// FirstCompatible returns the set's preferred type, or AcceptJSON when
// the set has none. papugad's script routes and the native routes pick
// the output style from it; content() does not consult it.
func (a AcceptSet) FirstCompatible() ContentTypeBit {
	if a.Preferred != 0 {
		return a.Preferred
	}
	return AcceptJSON
}
