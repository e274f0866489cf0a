// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package value

import (
	"encoding/binary"
	"unicode/utf8"

	texenc "golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"

	"github.com/papuga-go/papuga/pkg/papuga/perror"
)

// hostIsLittleEndian mirrors "host endianness" encodings to a concrete
// byte order at program start, matching how the original C library
// resolved papuga_UTF16/papuga_UTF32 at compile time.
var hostIsLittleEndian = func() bool {
	var x uint16 = 1
	b := make([]byte, 2)
	binary.NativeEndian.PutUint16(b, x)
	return b[0] == 1
}()

func resolveHostEncoding(e Encoding) Encoding {
	switch e {
	case UTF16Host:
		if hostIsLittleEndian {
			return UTF16LE
		}
		return UTF16BE
	case UTF32Host:
		if hostIsLittleEndian {
			return UTF32LE
		}
		return UTF32BE
	default:
		return e
	}
}

func needsHostSwap(e Encoding, unitSize int) bool {
	resolved := resolveHostEncoding(e)
	hostBE := !hostIsLittleEndian
	switch unitSize {
	case 2:
		return (resolved == UTF16BE) != hostBE
	case 4:
		return (resolved == UTF32BE) != hostBE
	}
	return false
}

func swapUnits(src []byte, unitSize int) []byte {
	out := make([]byte, len(src))
	copy(out, src)
	for i := 0; i+unitSize <= len(out); i += unitSize {
		for l, r := i, i+unitSize-1; l < r; l, r = l+1, r-1 {
			out[l], out[r] = out[r], out[l]
		}
	}
	return out
}

func codecFor(resolved Encoding) (texenc.Encoding, error) {
	switch resolved {
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case UTF32BE:
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM), nil
	case UTF32LE:
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM), nil
	default:
		return nil, perror.New(perror.EncodingError, "unknown encoding %v", resolved)
	}
}

// ToUTF8 transcodes raw bytes in the given encoding to a UTF-8 byte
// slice, using golang.org/x/text's UTF-16/UTF-32 codecs for the
// multi-byte forms.
func ToUTF8(enc Encoding, b []byte) ([]byte, error) {
	resolved := resolveHostEncoding(enc)
	if resolved == UTF8 || resolved == Binary {
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	}
	codec, err := codecFor(resolved)
	if err != nil {
		return nil, err
	}
	out, err := codec.NewDecoder().Bytes(b)
	if err != nil {
		return nil, perror.New(perror.EncodingError, "decode %s: %v", resolved, err)
	}
	return out, nil
}

// FromUTF8 transcodes a UTF-8 byte slice into the destination encoding.
func FromUTF8(enc Encoding, b []byte) ([]byte, error) {
	if !utf8.Valid(b) {
		return nil, perror.New(perror.EncodingError, "source is not valid UTF-8")
	}
	resolved := resolveHostEncoding(enc)
	if resolved == UTF8 || resolved == Binary {
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	}
	codec, err := codecFor(resolved)
	if err != nil {
		return nil, err
	}
	out, err := codec.NewEncoder().Bytes(b)
	if err != nil {
		return nil, perror.New(perror.EncodingError, "encode %s: %v", resolved, err)
	}
	return out, nil
}
