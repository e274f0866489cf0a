// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package luahandler

import "testing"

func TestParseAcceptSingleType(t *testing.T) {
	set := ParseAccept("application/json")
	if !set.Accepts(AcceptJSON) {
		t.Fatal("expected application/json to set AcceptJSON")
	}
	if set.Accepts(AcceptXML) {
		t.Fatal("did not expect AcceptXML to be set")
	}
}

func TestParseAcceptMultipleWithQualityParams(t *testing.T) {
	set := ParseAccept("text/html;q=0.9, application/xml;q=0.8")
	if !set.Accepts(AcceptHTML) || !set.Accepts(AcceptXML) {
		t.Fatal("expected both html and xml bits set despite q= params")
	}
}

func TestParseAcceptPreferredIsFirstListed(t *testing.T) {
	set := ParseAccept("text/plain, application/json")
	if set.Preferred != AcceptText {
		t.Fatalf("Preferred = %v, want AcceptText", set.Preferred)
	}
}

func TestParseAcceptSkipsOctetStreamAndWildcard(t *testing.T) {
	set := ParseAccept("*/*, application/octet-stream")
	if set.Bits != 0 {
		t.Fatalf("Bits = %v, want 0", set.Bits)
	}
}

func TestParseAcceptCombinedXHTML(t *testing.T) {
	set := ParseAccept("application/xhtml+xml")
	if !set.Accepts(AcceptXML) || !set.Accepts(AcceptHTML) {
		t.Fatal("expected xhtml+xml to set both XML and HTML bits")
	}
}

func TestFirstCompatibleDefaultsToJSON(t *testing.T) {
	var set AcceptSet
	if set.FirstCompatible() != AcceptJSON {
		t.Fatal("expected an empty AcceptSet to default to AcceptJSON")
	}
}

func TestFirstCompatibleHonorsPreferred(t *testing.T) {
	set := ParseAccept("text/html")
	if set.FirstCompatible() != AcceptHTML {
		t.Fatal("expected FirstCompatible to return the parsed preference")
	}
}
