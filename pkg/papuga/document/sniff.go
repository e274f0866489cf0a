// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package document

import "github.com/papuga-go/papuga/pkg/papuga/value"

// StripBOM removes a recognized UTF-8/16/32 BOM (either endianness) from
// the front of b and returns the remaining bytes plus the encoding it
// implies, or value.UTF8 if no BOM was present.
func StripBOM(b []byte) ([]byte, value.Encoding) {
	switch {
	case len(b) >= 4 && b[0] == 0x00 && b[1] == 0x00 && b[2] == 0xFE && b[3] == 0xFF:
		return b[4:], value.UTF32BE
	case len(b) >= 4 && b[0] == 0xFF && b[1] == 0xFE && b[2] == 0x00 && b[3] == 0x00:
		return b[4:], value.UTF32LE
	case len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF:
		return b[3:], value.UTF8
	case len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF:
		return b[2:], value.UTF16BE
	case len(b) >= 2 && b[0] == 0xFF && b[1] == 0xFE:
		return b[2:], value.UTF16LE
	default:
		return b, value.UTF8
	}
}

// SniffEncoding falls back to counting zero-byte positions modulo 2 and
// 4 to distinguish UTF-16/32 endianness when no BOM is present.
func SniffEncoding(b []byte) value.Encoding {
	if len(b) < 4 {
		return value.UTF8
	}
	var zeroMod2, zeroMod4, total int
	limit := len(b)
	if limit > 256 {
		limit = 256
	}
	for i := 0; i < limit; i++ {
		if b[i] == 0 {
			total++
			if i%2 == 0 {
				zeroMod2++
			}
			if i%4 == 0 {
				zeroMod4++
			}
		}
	}
	if total == 0 {
		return value.UTF8
	}
	// Zero bytes at both even and odd offsets (three of every four bytes
	// for ASCII-heavy text): UTF-32, big-endian when offset 0 of each
	// 4-byte unit holds the zeros.
	if zeroMod2 > total/4 && total-zeroMod2 > total/4 {
		if zeroMod4 > countZerosAt(b, limit, 3) {
			return value.UTF32BE
		}
		return value.UTF32LE
	}
	// Dense zero bytes at every other position: UTF-16. Figure out which
	// half (even/odd offsets) holds the zeros to pick endianness: zeros
	// at even offsets (high byte first within the 16-bit unit starting
	// at an even address) means big-endian text for ASCII-heavy content.
	if countZerosAt(b, limit, 0)+countZerosAt(b, limit, 2) > total/2 {
		return value.UTF16BE
	}
	return value.UTF16LE
}

func countZerosAt(b []byte, limit, phase int) int {
	n := 0
	for i := phase; i < limit; i += 4 {
		if i < len(b) && b[i] == 0 {
			n++
		}
	}
	return n
}

// DetectContentType inspects the first non-whitespace byte of an
// already-BOM-stripped, UTF-8-normalized document to distinguish XML
// from JSON.
func DetectContentType(b []byte) ContentType {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		case '<':
			return XML
		case '{', '[', '"', '\'':
			return JSON
		default:
			return UnknownContent
		}
	}
	return UnknownContent
}
