// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package document

import (
	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// Open normalizes raw input to UTF-8 (stripping a BOM or sniffing
// endianness per the declared/guessed encoding) and builds the
// appropriate Parser for ct, sniffing ct itself when Unknown.
func Open(raw []byte, ct ContentType, enc value.Encoding) (Parser, ContentType, error) {
	body, bomEnc := StripBOM(raw)
	if enc == value.UTF8 && bomEnc != value.UTF8 {
		enc = bomEnc
	}
	if enc != value.UTF8 && enc != value.Binary {
		u8, err := value.ToUTF8(enc, body)
		if err != nil {
			return nil, UnknownContent, err
		}
		body = u8
	} else if enc == value.UTF8 && bomEnc == value.UTF8 && looksMultiByte(body) {
		if sniffed := SniffEncoding(body); sniffed != value.UTF8 {
			u8, err := value.ToUTF8(sniffed, body)
			if err == nil {
				body = u8
			}
		}
	}
	if ct == UnknownContent {
		ct = DetectContentType(body)
	}
	switch ct {
	case XML:
		return NewXML(body), XML, nil
	case JSON:
		p, err := NewJSON(body)
		if err != nil {
			return nil, JSON, err
		}
		return p, JSON, nil
	default:
		return nil, UnknownContent, perror.New(perror.UnknownContentType, "could not determine content type")
	}
}

// looksMultiByte is a cheap heuristic guarding SniffEncoding: only
// bother counting zero bytes when the content actually contains some,
// which plain ASCII/UTF-8 text never does.
func looksMultiByte(b []byte) bool {
	limit := len(b)
	if limit > 64 {
		limit = 64
	}
	for i := 0; i < limit; i++ {
		if b[i] == 0 {
			return true
		}
	}
	return false
}
