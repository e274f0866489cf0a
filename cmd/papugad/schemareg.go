// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"os"

	"github.com/papuga-go/papuga/pkg/papuga/document"
	"github.com/papuga-go/papuga/pkg/papuga/schema"
	"github.com/papuga-go/papuga/pkg/papuga/serialization"
)

// schemaRegistry adapts a compiled schema.Map to luahandler.SchemaLookup,
// loaded once per config.ScriptBinding.SchemaPath.
type schemaRegistry struct {
	m *schema.Map
}

// loadSchemaRegistry compiles the SchemaMap source at path, or returns a
// nil registry for routes that don't declare one (scripts using schema()
// are then expected to fail loudly at call time).
func loadSchemaRegistry(path string) (*schemaRegistry, error) {
	if path == "" {
		return nil, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := schema.ParseMap(string(src))
	if err != nil {
		return nil, err
	}
	return &schemaRegistry{m: m}, nil
}

// Parse implements luahandler.SchemaLookup.
func (r *schemaRegistry) Parse(name string, content []byte, withRoot bool) (*serialization.Serialization, error) {
	s, err := r.m.Get(name)
	if err != nil {
		return nil, err
	}
	stripped, enc := document.StripBOM(content)
	ct := document.DetectContentType(stripped)
	return r.m.Parse(s, withRoot, ct, enc, stripped)
}
