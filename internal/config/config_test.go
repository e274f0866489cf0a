// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	raw := []byte(`{"scripts":[{"route":"/widgets","scriptPath":"widgets.lua"}]}`)
	if err := Validate(raw); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejectsMissingScripts(t *testing.T) {
	raw := []byte(`{"addr":":8080"}`)
	if err := Validate(raw); err == nil {
		t.Fatal("expected an error for a config missing the required \"scripts\" field")
	}
}

func TestValidateRejectsBindingWithoutScriptPath(t *testing.T) {
	raw := []byte(`{"scripts":[{"route":"/widgets"}]}`)
	if err := Validate(raw); err == nil {
		t.Fatal("expected an error for a script binding missing scriptPath")
	}
}

func TestValidateRejectsUnknownDelegateBackend(t *testing.T) {
	raw := []byte(`{"delegateBackend":"carrier-pigeon","scripts":[]}`)
	if err := Validate(raw); err == nil {
		t.Fatal("expected an error for an unrecognized delegateBackend")
	}
}

func TestInitLeavesDefaultsWhenFileMissing(t *testing.T) {
	beforeAddr, beforeBackend := Keys.Addr, Keys.DelegateBackend
	Init(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if Keys.Addr != beforeAddr || Keys.DelegateBackend != beforeBackend {
		t.Fatalf("Keys changed on a missing config file: Addr=%q DelegateBackend=%q", Keys.Addr, Keys.DelegateBackend)
	}
}

func TestInitLoadsValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "papugad.json")
	raw := []byte(`{"addr":":9090","delegateBackend":"nats","natsAddress":"nats://localhost:4222","poolMemory":1024,"poolTTLSeconds":60,"scripts":[{"route":"/w","scriptPath":"w.lua"}]}`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	Init(path)
	if Keys.Addr != ":9090" || Keys.DelegateBackend != "nats" || Keys.NatsAddress != "nats://localhost:4222" {
		t.Fatalf("Keys = %+v", Keys)
	}
	if len(Keys.Scripts) != 1 || Keys.Scripts[0].Route != "/w" {
		t.Fatalf("Keys.Scripts = %+v", Keys.Scripts)
	}
}
