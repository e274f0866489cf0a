// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package serialization

import (
	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// DeepCopyValue implements Allocator.deepcopy_value for every branch of
// value.Variant: atomics and strings go through
// value.DeepCopy, HostObjects are wrapped in a new reference (moved or
// borrowed per moveHostObjects), Serializations are walked and rebuilt
// node-by-node, and Iterators are expanded to exhaustion (bounded by
// allocator.MaxIteratorExpansion) into an Open..Close block.
//
// On failure the returned Variant is Void, matching "no partial state".
func DeepCopyValue(a *allocator.Allocator, src value.Variant, moveHostObjects bool) (value.Variant, error) {
	switch src.Type() {
	case value.Void, value.Int, value.Double, value.Bool, value.String:
		return value.DeepCopy(a, src)
	case value.HostObjectType:
		return deepCopyHostObject(a, src, moveHostObjects)
	case value.SerializationType:
		return deepCopySerialization(a, src, moveHostObjects)
	case value.IteratorType:
		return expandIterator(a, src)
	default:
		return value.NewVoid(), perror.New(perror.TypeError, "unknown value type")
	}
}

func deepCopyHostObject(a *allocator.Allocator, src value.Variant, move bool) (value.Variant, error) {
	h := src.Host()
	if h == nil {
		return value.NewVoid(), perror.New(perror.HostObjectError, "nil host object")
	}
	if move {
		deleter, wasOwned := h.Release()
		nh := value.NewHostObject(h.ClassID, h.Obj, deleter)
		if wasOwned {
			a.Register(nh)
		}
		return value.NewHostObjectValue(nh), nil
	}
	nh := value.NewHostObject(h.ClassID, h.Obj, nil)
	return value.NewHostObjectValue(nh), nil
}

func deepCopySerialization(a *allocator.Allocator, src value.Variant, move bool) (value.Variant, error) {
	s, ok := FromVariant(src)
	if !ok || s == nil {
		return value.NewVoid(), perror.New(perror.TypeError, "expected a serialization value")
	}
	dst := New()
	dst.StructID = s.StructID
	it := s.Begin()
	for !it.Eof() {
		tag, v := it.Tag(), it.Value()
		switch v.Type() {
		case value.HostObjectType, value.SerializationType, value.IteratorType:
			cv, err := DeepCopyValue(a, v, move)
			if err != nil {
				return value.NewVoid(), err
			}
			dst.Push(tag, cv)
		default:
			cv, err := value.DeepCopy(a, v)
			if err != nil {
				return value.NewVoid(), err
			}
			dst.Push(tag, cv)
		}
		it.Skip()
	}
	return AsVariant(dst), nil
}

func expandIterator(a *allocator.Allocator, src value.Variant) (value.Variant, error) {
	iter := src.IterRef()
	if iter == nil {
		return value.NewVoid(), perror.New(perror.IteratorFailed, "nil iterator")
	}
	out := New()
	for i := 0; i < allocator.MaxIteratorExpansion; i++ {
		key, val, ok, err := iter.Next(a)
		if err != nil {
			return value.NewVoid(), perror.New(perror.IteratorFailed, "%v", err)
		}
		if !ok {
			break
		}
		out.PushOpen()
		if key.Defined() {
			out.PushName(key)
		}
		out.PushValue(val)
		out.PushClose()
	}
	return AsVariant(out), nil
}
