// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package value

import "testing"

func TestUTF16RoundTrip(t *testing.T) {
	orig := "héllo wörld"
	enc, err := FromUTF8(UTF16LE, []byte(orig))
	if err != nil {
		t.Fatalf("FromUTF8: %v", err)
	}
	back, err := ToUTF8(UTF16LE, enc)
	if err != nil {
		t.Fatalf("ToUTF8: %v", err)
	}
	if string(back) != orig {
		t.Fatalf("round trip mismatch: got %q, want %q", back, orig)
	}
}

func TestUTF32RoundTrip(t *testing.T) {
	orig := "\U0001F600 smile"
	enc, err := FromUTF8(UTF32BE, []byte(orig))
	if err != nil {
		t.Fatalf("FromUTF8: %v", err)
	}
	back, err := ToUTF8(UTF32BE, enc)
	if err != nil {
		t.Fatalf("ToUTF8: %v", err)
	}
	if string(back) != orig {
		t.Fatalf("round trip mismatch: got %q, want %q", back, orig)
	}
}

func TestFromUTF8RejectsInvalidInput(t *testing.T) {
	if _, err := FromUTF8(UTF16LE, []byte{0xff, 0xfe, 0xfd}); err == nil {
		t.Fatal("expected error encoding invalid UTF-8")
	}
}

func TestToStringEncNoOpWhenEncodingsMatch(t *testing.T) {
	v := NewStringEnc(UTF16LE, []byte{0x41, 0x00})
	out, err := v.ToStringEnc(UTF16LE)
	if err != nil {
		t.Fatalf("ToStringEnc: %v", err)
	}
	if len(out) != 2 || out[0] != 0x41 {
		t.Fatalf("unexpected passthrough bytes: %v", out)
	}
}

func TestToStringEncRejectsCrossNonUTF8(t *testing.T) {
	v := NewStringEnc(UTF16LE, []byte{0x41, 0x00})
	if _, err := v.ToStringEnc(UTF32BE); err == nil {
		t.Fatal("expected NotImplemented transcoding between two non-UTF-8 encodings")
	}
}
