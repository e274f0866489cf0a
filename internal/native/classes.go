// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package native

import (
	"strings"

	"github.com/papuga-go/papuga/pkg/papuga/allocator"
	"github.com/papuga-go/papuga/pkg/papuga/perror"
	"github.com/papuga-go/papuga/pkg/papuga/reqcontext"
	"github.com/papuga-go/papuga/pkg/papuga/value"
)

// BuiltinClasses registers the small, domain-free host classes a native
// binding's spec can address by ClassID: numeric and string functions
// that need no host object state of their own, every call resolving
// entirely from its arguments.
func BuiltinClasses() []*reqcontext.ClassDef {
	return []*reqcontext.ClassDef{arithClass(), stringsClass()}
}

// ArithClassID addresses the "Sum"/"Product" constructor/method pair in
// a CallSpec's classId field.
const ArithClassID = 1

// StringsClassID addresses the "Concat"/"Upper" pair.
const StringsClassID = 2

func arithClass() *reqcontext.ClassDef {
	return &reqcontext.ClassDef{
		Name:    "Arith",
		ClassID: ArithClassID,
		Constructor: reqcontext.Method{
			Name: "Sum",
			Call: func(a *allocator.Allocator, self *value.HostObject, args []value.Variant) (value.Variant, error) {
				return foldInts(args, 0, func(acc, v int64) int64 { return acc + v })
			},
		},
		Methods: []reqcontext.Method{
			{
				Name: "Product",
				Call: func(a *allocator.Allocator, self *value.HostObject, args []value.Variant) (value.Variant, error) {
					return foldInts(args, 1, func(acc, v int64) int64 { return acc * v })
				},
			},
		},
	}
}

func foldInts(args []value.Variant, seed int64, fold func(acc, v int64) int64) (value.Variant, error) {
	acc := seed
	for i, arg := range args {
		if !arg.Defined() {
			continue
		}
		n, err := arg.ToInt()
		if err != nil {
			return value.Variant{}, perror.New(perror.TypeError, "argument %d is not numeric: %v", i, err)
		}
		acc = fold(acc, n)
	}
	return value.NewInt(acc), nil
}

func stringsClass() *reqcontext.ClassDef {
	return &reqcontext.ClassDef{
		Name:    "Strings",
		ClassID: StringsClassID,
		Constructor: reqcontext.Method{
			Name: "Concat",
			Call: func(a *allocator.Allocator, self *value.HostObject, args []value.Variant) (value.Variant, error) {
				var b strings.Builder
				for i, arg := range args {
					if !arg.Defined() {
						continue
					}
					s, err := arg.ToString(a)
					if err != nil {
						return value.Variant{}, perror.New(perror.TypeError, "argument %d is not a string: %v", i, err)
					}
					b.Write(s)
				}
				return value.NewString(b.String()), nil
			},
		},
		Methods: []reqcontext.Method{
			{
				Name: "Upper",
				Call: func(a *allocator.Allocator, self *value.HostObject, args []value.Variant) (value.Variant, error) {
					if len(args) == 0 || !args[0].Defined() {
						return value.NewVoid(), nil
					}
					s, err := args[0].ToString(a)
					if err != nil {
						return value.Variant{}, perror.New(perror.TypeError, "argument 0 is not a string: %v", err)
					}
					return value.NewString(strings.ToUpper(string(s))), nil
				},
			},
		},
	}
}
