// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package perror defines the error taxonomy shared by every papuga
// component: a fixed numeric code plus a formatted message.
package perror

import (
	"errors"
	"fmt"
)

// Code is one of the fixed error domains every public papuga call maps
// its failure into.
type Code int

const (
	Ok Code = iota
	LogicError
	NoMemError
	TypeError
	EncodingError
	BufferOverflowError
	OutOfRangeError
	NofArgsError
	MissingSelf
	InvalidAccess
	UnexpectedEof
	NotImplemented
	ValueUndefined
	MixedConstruction
	DuplicateDefinition
	SyntaxError
	UncaughtException
	ExecutionOrder
	AtomicValueExpected
	NotAllowed
	IteratorFailed
	AddressedItemNotFound
	HostObjectError
	AmbiguousReference
	MaxRecursionDepthReached
	ComplexityOfProblem
	InvalidRequest
	AttributeNotAtomic
	UnknownContentType
	UnknownSchema
	MissingStructureDescription
	DelegateRequestFailed
	ServiceImplementationError
	BindingLanguageError
)

var names = [...]string{
	"Ok", "LogicError", "NoMemError", "TypeError", "EncodingError",
	"BufferOverflowError", "OutOfRangeError", "NofArgsError", "MissingSelf",
	"InvalidAccess", "UnexpectedEof", "NotImplemented", "ValueUndefined",
	"MixedConstruction", "DuplicateDefinition", "SyntaxError",
	"UncaughtException", "ExecutionOrder", "AtomicValueExpected",
	"NotAllowed", "IteratorFailed", "AddressedItemNotFound",
	"HostObjectError", "AmbiguousReference", "MaxRecursionDepthReached",
	"ComplexityOfProblem", "InvalidRequest", "AttributeNotAtomic",
	"UnknownContentType", "UnknownSchema", "MissingStructureDescription",
	"DelegateRequestFailed", "ServiceImplementationError",
	"BindingLanguageError",
}

func (c Code) String() string {
	if c < 0 || int(c) >= len(names) {
		return "UnknownError"
	}
	return names[c]
}

// Error is the concrete error value carried across every failure
// channel: a code, a human message, and an optional document event
// position used to correlate execution failures back to the originating
// document region.
type Error struct {
	Code    Code
	Message string
	// Pos is the event counter at which the error occurred, or -1 if
	// the error is not attributable to a document position.
	Pos int
}

func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s: %s (at event %d)", e.Code, e.Message, e.Pos)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error with no document position attached.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Pos: -1}
}

// NewAt builds an Error attributed to a document event position.
func NewAt(code Code, pos int, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// CodeOf extracts the Code of err if it is (or wraps) a *Error, else
// LogicError.
func CodeOf(err error) Code {
	if err == nil {
		return Ok
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return LogicError
}
