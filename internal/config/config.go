// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the papugad service configuration:
// which Lua scripts to bind to which routes, the delegate dispatcher
// backend, and the HTTP listen address.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/papuga-go/papuga/pkg/log"
)

// ScriptBinding maps one route to the Lua source file implementing it.
type ScriptBinding struct {
	Route      string `json:"route"`
	ScriptPath string `json:"scriptPath"`
	SchemaPath string `json:"schemaPath,omitempty"`
}

// NativeBinding maps one route to a JSON-described internal/native.Spec,
// run directly through the automaton/executor/reqcontext pipeline
// instead of a Lua script.
type NativeBinding struct {
	Route    string `json:"route"`
	SpecPath string `json:"specPath"`
	Profile  string `json:"profile,omitempty"`
}

// Keys is the process-wide configuration, populated by Init.
var Keys = ServiceConfig{
	Addr:            ":8080",
	DelegateBackend: "inprocess",
	PoolMemory:      8 << 20,
	PoolTTLSeconds:  300,
}

// ServiceConfig is the papugad service's full configuration surface.
type ServiceConfig struct {
	Addr            string          `json:"addr"`
	DelegateBackend string          `json:"delegateBackend"` // "inprocess" or "nats"
	NatsAddress     string          `json:"natsAddress,omitempty"`
	PoolMemory      int             `json:"poolMemory"`
	PoolTTLSeconds  int             `json:"poolTTLSeconds"`
	Scripts         []ScriptBinding `json:"scripts"`
	NativeBindings  []NativeBinding `json:"nativeBindings,omitempty"`
}

// configSchema is compiled once and validates every loaded config file
// before it is decoded: validate then decode, never the reverse.
const configSchema = `{
  "type": "object",
  "properties": {
    "addr": {"type": "string"},
    "delegateBackend": {"type": "string", "enum": ["inprocess", "nats"]},
    "natsAddress": {"type": "string"},
    "poolMemory": {"type": "integer", "minimum": 0},
    "poolTTLSeconds": {"type": "integer", "minimum": 0},
    "scripts": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "route": {"type": "string"},
          "scriptPath": {"type": "string"},
          "schemaPath": {"type": "string"}
        },
        "required": ["route", "scriptPath"]
      }
    },
    "nativeBindings": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "route": {"type": "string"},
          "specPath": {"type": "string"},
          "profile": {"type": "string"}
        },
        "required": ["route", "specPath"]
      }
    }
  },
  "required": ["scripts"]
}`

// Init reads and validates flagConfigFile into Keys. A missing file is
// not an error (Keys keeps its zero-script defaults); a malformed or
// schema-invalid file is fatal.
func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("config: %v", err)
		}
		return
	}
	if err := Validate(raw); err != nil {
		log.Fatalf("config: validate: %v", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		log.Fatalf("config: decode: %v", err)
	}
}

// Validate checks raw against configSchema without mutating Keys.
func Validate(raw []byte) error {
	sch, err := jsonschema.CompileString("papugad-config.json", configSchema)
	if err != nil {
		return err
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return sch.Validate(v)
}
