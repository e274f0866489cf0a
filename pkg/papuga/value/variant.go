// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package value implements ValueVariant, the tagged-union value type used
// at every papuga API boundary.
package value

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
)

// Type is the discriminant of the union; it alone determines which
// branch of Variant is live.
type Type int

const (
	Void Type = iota
	Double
	Int
	Bool
	String
	HostObjectType
	SerializationType
	IteratorType
)

func (t Type) String() string {
	switch t {
	case Void:
		return "Void"
	case Double:
		return "Double"
	case Int:
		return "Int"
	case Bool:
		return "Bool"
	case String:
		return "String"
	case HostObjectType:
		return "HostObject"
	case SerializationType:
		return "Serialization"
	case IteratorType:
		return "Iterator"
	default:
		return "Unknown"
	}
}

// Encoding is the character-encoding tag carried by String values.
type Encoding int

const (
	UTF8 Encoding = iota
	UTF16BE
	UTF16LE
	UTF16Host
	UTF32BE
	UTF32LE
	UTF32Host
	Binary
)

func (e Encoding) String() string {
	switch e {
	case UTF8:
		return "UTF-8"
	case UTF16BE:
		return "UTF-16BE"
	case UTF16LE:
		return "UTF-16LE"
	case UTF16Host:
		return "UTF-16"
	case UTF32BE:
		return "UTF-32BE"
	case UTF32LE:
		return "UTF-32LE"
	case UTF32Host:
		return "UTF-32"
	case Binary:
		return "Binary"
	default:
		return "?"
	}
}

// UnitSize returns the native code-unit size in bytes for the encoding,
// used by deepcopy_value to size a zero-terminated copy.
func (e Encoding) UnitSize() int {
	switch e {
	case UTF8, Binary:
		return 1
	case UTF16BE, UTF16LE, UTF16Host:
		return 2
	case UTF32BE, UTF32LE, UTF32Host:
		return 4
	default:
		return 1
	}
}

// Tag is the private "_tag" byte overloaded when a Variant lives inside
// a Serialization node.
type Tag byte

const (
	TagValue Tag = iota
	TagOpen
	TagClose
	TagName
)

// HostObject is an opaque handle to an object implemented outside Go,
// carrying a class id for dynamic type checks by the Executor and an
// optional destructor.
type HostObject struct {
	ClassID int
	Obj     interface{}
	deleter func(interface{})
	owned   bool
}

// NewHostObject wraps obj with classid and an optional deleter. If
// deleter is non-nil the returned HostObject owns obj until Destroy (or
// a deepcopy_value with moveHostObjects) transfers ownership elsewhere.
func NewHostObject(classid int, obj interface{}, deleter func(interface{})) *HostObject {
	return &HostObject{ClassID: classid, Obj: obj, deleter: deleter, owned: deleter != nil}
}

// Destroy runs the deleter exactly once if this HostObject still owns
// its referent.
func (h *HostObject) Destroy() {
	if h.owned && h.deleter != nil {
		h.deleter(h.Obj)
	}
	h.owned = false
}

// Release nulls the deleter and returns ownership status, used by
// deepcopy_value(moveHostObjects=true) to transfer ownership to a copy.
func (h *HostObject) Release() (deleter func(interface{}), wasOwned bool) {
	deleter, wasOwned = h.deleter, h.owned
	h.deleter = nil
	h.owned = false
	return
}

// Iterator is implemented by iterator handles (e.g. a Serialization
// cursor, or a host-supplied generator). It is defined here rather than
// in package serialization to avoid an import cycle: serialization
// implements this interface over its own node chain.
type Iterator interface {
	// Next produces the next (key, value) tuple. ok is false at
	// exhaustion. key may be Void for plain sequences.
	Next(a *allocator.Allocator) (key Variant, val Variant, ok bool, err error)
	Destroy()
}

// Variant is the tagged union itself.
type Variant struct {
	vtype    Type
	tag      Tag
	encoding Encoding
	d        float64
	i        int64
	b        bool
	str      []byte
	host     *HostObject
	ser      interface{} // *serialization.Serialization, opaque here
	iter     Iterator
}

// NewVoid returns the zero, undefined value.
func NewVoid() Variant { return Variant{vtype: Void} }

func NewDouble(v float64) Variant { return Variant{vtype: Double, d: v} }
func NewInt(v int64) Variant      { return Variant{vtype: Int, i: v} }
func NewBool(v bool) Variant      { return Variant{vtype: Bool, b: v} }

// NewString wraps s as a UTF-8 String value; the bytes of s are copied
// into a new slice by the []byte conversion.
func NewString(s string) Variant {
	return Variant{vtype: String, encoding: UTF8, str: []byte(s)}
}

func NewStringEnc(enc Encoding, b []byte) Variant {
	return Variant{vtype: String, encoding: enc, str: b}
}

func NewBlob(b []byte) Variant {
	return Variant{vtype: String, encoding: Binary, str: b}
}

func NewHostObjectValue(h *HostObject) Variant {
	return Variant{vtype: HostObjectType, host: h}
}

func NewIterator(it Iterator) Variant {
	return Variant{vtype: IteratorType, iter: it}
}

// Type/Tag/Encoding accessors and the internal serialization escape
// hatch used by package serialization.

func (v Variant) Type() Type         { return v.vtype }
func (v Variant) Encoding() Encoding { return v.encoding }
func (v Variant) Tag() Tag           { return v.tag }
func (v *Variant) SetTag(t Tag)      { v.tag = t }
func (v Variant) Bytes() []byte      { return v.str }
func (v Variant) Host() *HostObject  { return v.host }
func (v Variant) IterRef() Iterator  { return v.iter }
func (v Variant) RawSer() interface{} {
	return v.ser
}

// NewSerializationValue and RawSer let package serialization
// stash/retrieve its *Serialization pointer without value importing
// serialization (which would create a cycle, since Serialization nodes
// each hold a Variant).
func NewSerializationValue(ser interface{}) Variant {
	return Variant{vtype: SerializationType, ser: ser}
}

// Defined reports whether the value carries content (i.e. is not Void).
func (v Variant) Defined() bool { return v.vtype != Void }

// IsNumeric reports Int, Bool or Double.
func (v Variant) IsNumeric() bool {
	return v.vtype == Int || v.vtype == Bool || v.vtype == Double
}

// IsString reports the String branch.
func (v Variant) IsString() bool { return v.vtype == String }

// IsAtomic is numeric union string.
func (v Variant) IsAtomic() bool { return v.IsNumeric() || v.IsString() }

// --- conversions ---

// asciiDigits transcodes a String value to its UTF-8 ASCII numeric
// subset, the form a Number-from-String conversion requires.
func (v Variant) asciiDigits() (string, error) {
	if v.vtype != String {
		return "", perror.New(perror.TypeError, "expected string value")
	}
	u8, err := ToUTF8(v.encoding, v.str)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(u8)), nil
}

var numGrammar = func(s string) (isInt bool, ok bool) {
	i := 0
	n := len(s)
	if i < n && (s[i] == '-' || s[i] == '+') {
		i++
	}
	start := i
	for i < n && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == start {
		return false, false
	}
	isInt = true
	if i < n && s[i] == '.' {
		isInt = false
		i++
		fstart := i
		for i < n && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == fstart {
			return false, false
		}
	}
	if i < n && (s[i] == 'e' || s[i] == 'E') {
		isInt = false
		i++
		if i < n && (s[i] == '-' || s[i] == '+') {
			i++
		}
		estart := i
		for i < n && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == estart {
			return false, false
		}
	}
	return isInt, i == n
}

// ToNumeric parses a String per the strict numeric grammar and returns
// the resulting Int or Double Variant.
func (v Variant) ToNumeric() (Variant, error) {
	switch v.vtype {
	case Int, Double, Bool:
		return v, nil
	case String:
		s, err := v.asciiDigits()
		if err != nil {
			return Variant{}, err
		}
		isInt, ok := numGrammar(s)
		if !ok {
			return Variant{}, perror.New(perror.TypeError, "not a number: %q", s)
		}
		if isInt {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return Variant{}, perror.New(perror.OutOfRangeError, "integer out of range: %q", s)
			}
			return NewInt(n), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Variant{}, perror.New(perror.TypeError, "not a number: %q", s)
		}
		return NewDouble(f), nil
	default:
		return Variant{}, perror.New(perror.AtomicValueExpected, "expected an atomic value, got %s", v.vtype)
	}
}

// ToInt converts to a signed 64-bit integer.
func (v Variant) ToInt() (int64, error) {
	switch v.vtype {
	case Int:
		return v.i, nil
	case Bool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case Double:
		return doubleToInt(v.d)
	case String:
		n, err := v.ToNumeric()
		if err != nil {
			return 0, err
		}
		return n.ToInt()
	default:
		return 0, perror.New(perror.TypeError, "cannot convert %s to int", v.vtype)
	}
}

func doubleToInt(d float64) (int64, error) {
	if math.IsNaN(d) || math.Abs(d) > (1<<53) {
		return 0, perror.New(perror.OutOfRangeError, "double %v not representable within +/- 2^53", d)
	}
	return int64(d), nil
}

// ToUint converts to an unsigned 64-bit integer (negative is an error).
func (v Variant) ToUint() (uint64, error) {
	i, err := v.ToInt()
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, perror.New(perror.OutOfRangeError, "negative value %d cannot convert to unsigned", i)
	}
	return uint64(i), nil
}

// ToDouble converts to a 64-bit float.
func (v Variant) ToDouble() (float64, error) {
	switch v.vtype {
	case Double:
		return v.d, nil
	case Int:
		return float64(v.i), nil
	case Bool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case String:
		n, err := v.ToNumeric()
		if err != nil {
			return 0, err
		}
		return n.ToDouble()
	default:
		return 0, perror.New(perror.TypeError, "cannot convert %s to double", v.vtype)
	}
}

// ToBool converts per the Bool-from-String rule: 0/1, y/n, t/f
// (case-insensitive), else integer parse, else TypeError.
func (v Variant) ToBool() (bool, error) {
	switch v.vtype {
	case Bool:
		return v.b, nil
	case Int:
		return v.i != 0, nil
	case Double:
		return v.d != 0, nil
	case String:
		s, err := v.asciiDigits()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(s) {
		case "0", "n", "f", "false":
			return false, nil
		case "1", "y", "t", "true":
			return true, nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n != 0, nil
		}
		return false, perror.New(perror.TypeError, "not a boolean: %q", s)
	default:
		return false, perror.New(perror.TypeError, "cannot convert %s to bool", v.vtype)
	}
}

// ToString renders the value as a UTF-8 string. Int, Double and Bool
// values are rendered into bytes allocated from a; String values are
// transcoded into a new slice and a is not used.
func (v Variant) ToString(a *allocator.Allocator) ([]byte, error) {
	switch v.vtype {
	case String:
		return ToUTF8(v.encoding, v.str)
	case Int:
		return a.CopyString(strconv.FormatInt(v.i, 10))
	case Double:
		return a.CopyString(formatDouble(v.d))
	case Bool:
		if v.b {
			return a.CopyString("true")
		}
		return a.CopyString("false")
	case Void:
		return nil, perror.New(perror.ValueUndefined, "value is undefined")
	default:
		return nil, perror.New(perror.AtomicValueExpected, "expected an atomic value, got %s", v.vtype)
	}
}

func formatDouble(d float64) string {
	return strconv.FormatFloat(d, 'g', -1, 64)
}

// ToStringEnc transcodes a String value to the destination encoding. A
// no-op copy is performed when encodings already match; otherwise the
// source is first normalized to UTF-8 and then re-encoded. Arbitrary
// non-UTF-8-to-non-UTF-8 transcoding is NotImplemented, matching the
// original library.
func (v Variant) ToStringEnc(dst Encoding) ([]byte, error) {
	if v.vtype != String {
		return nil, perror.New(perror.AtomicValueExpected, "expected a string value")
	}
	if v.encoding == dst {
		out := make([]byte, len(v.str))
		copy(out, v.str)
		return out, nil
	}
	if v.encoding != UTF8 && dst != UTF8 {
		return nil, perror.New(perror.NotImplemented, "transcoding %s to %s is not implemented", v.encoding, dst)
	}
	u8, err := ToUTF8(v.encoding, v.str)
	if err != nil {
		return nil, err
	}
	if dst == UTF8 {
		return u8, nil
	}
	return FromUTF8(dst, u8)
}

// ToBlob returns the value's bytes in its declared encoding, converting
// endianness to host order if the destination is host-endian and the
// source was explicitly big/little endian. Binary strings pass through
// unchanged.
func (v Variant) ToBlob(a *allocator.Allocator) ([]byte, error) {
	if v.vtype != String {
		return nil, perror.New(perror.AtomicValueExpected, "expected a string value")
	}
	if v.encoding == Binary {
		return a.CopyBytes(v.str)
	}
	src := v.str
	switch v.encoding {
	case UTF16BE, UTF16LE:
		if needsHostSwap(v.encoding, 2) {
			src = swapUnits(src, 2)
		}
	case UTF32BE, UTF32LE:
		if needsHostSwap(v.encoding, 4) {
			src = swapUnits(src, 4)
		}
	}
	return a.CopyBytes(src)
}

// ToASCII maps code units outside [0,127] to substChar if given, or
// signals loss by returning (nil, false).
func (v Variant) ToASCII(substChar byte, hasSubst bool) ([]byte, bool, error) {
	if v.vtype != String {
		return nil, false, perror.New(perror.AtomicValueExpected, "expected a string value")
	}
	u8, err := ToUTF8(v.encoding, v.str)
	if err != nil {
		return nil, false, err
	}
	out := make([]byte, 0, len(u8))
	for _, r := range string(u8) {
		if r < 128 {
			out = append(out, byte(r))
			continue
		}
		if !hasSubst {
			return nil, false, nil
		}
		out = append(out, substChar)
	}
	return out, true, nil
}

// NextChar decodes one codepoint at byte offset pos of a UTF-8 string
// value and returns the rune plus the offset of the following
// codepoint.
func (v Variant) NextChar(pos int) (rune, int, error) {
	if v.vtype != String {
		return 0, pos, perror.New(perror.AtomicValueExpected, "expected a string value")
	}
	u8, err := ToUTF8(v.encoding, v.str)
	if err != nil {
		return 0, pos, err
	}
	if pos < 0 || pos >= len(u8) {
		return 0, pos, perror.New(perror.OutOfRangeError, "position %d out of range", pos)
	}
	r, size := utf8.DecodeRune(u8[pos:])
	return r, pos + size, nil
}

// DeepCopy implements the Allocator.deepcopy_value atomic and string
// branches used directly by package value's own tests; the
// Serialization/HostObject/Iterator branches are implemented in their
// owning packages (serialization.DeepCopyValue) and dispatched from
// there since they need types this package cannot import.
func DeepCopy(a *allocator.Allocator, src Variant) (Variant, error) {
	switch src.vtype {
	case Void, Int, Double, Bool:
		return src, nil
	case String:
		buf, err := a.Alloc(len(src.str)+src.encoding.UnitSize(), 1)
		if err != nil {
			return NewVoid(), err
		}
		copy(buf, src.str)
		return Variant{vtype: String, encoding: src.encoding, str: buf[:len(src.str)]}, nil
	default:
		return NewVoid(), perror.New(perror.NotImplemented, "deepcopy of %s must go through its owning package", src.vtype)
	}
}
