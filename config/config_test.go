// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Broker.Addr != "localhost:1883" {
		t.Errorf("expected default broker addr localhost:1883, got %s", cfg.Broker.Addr)
	}
	if cfg.RPC.SubscribeQoS != 1 || cfg.RPC.ResponseQoS != 1 {
		t.Errorf("expected default QoS 1, got %d/%d", cfg.RPC.SubscribeQoS, cfg.RPC.ResponseQoS)
	}
	if cfg.RPC.SubscribeTimeout != 10*time.Second {
		t.Errorf("expected default subscribe timeout 10s, got %s", cfg.RPC.SubscribeTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Log.Level)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != Default() {
		t.Error("empty path should return defaults")
	}
}

func TestLoadFile(t *testing.T) {
	content := `
broker:
  addr: broker.example.com:8883
  client_id: vehicle-17
rpc:
  model_id: m1
  client_id: c1
  command_name: unlock
  subscribe_timeout: 5s
log:
  level: debug
  format: json
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Broker.Addr != "broker.example.com:8883" {
		t.Errorf("broker addr not loaded: %s", cfg.Broker.Addr)
	}
	if cfg.RPC.ModelID != "m1" || cfg.RPC.CommandName != "unlock" {
		t.Errorf("rpc section not loaded: %+v", cfg.RPC)
	}
	if cfg.RPC.SubscribeTimeout != 5*time.Second {
		t.Errorf("subscribe timeout not loaded: %s", cfg.RPC.SubscribeTimeout)
	}
	// Untouched fields keep their defaults.
	if cfg.Broker.KeepAlive != 60*time.Second {
		t.Errorf("keep alive default lost: %s", cfg.Broker.KeepAlive)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) { c.RPC.ModelID = "m1"; c.RPC.ClientID = "c1" }, false},
		{"no model id", func(c *Config) { c.RPC.ClientID = "c1" }, true},
		{"no client id", func(c *Config) { c.RPC.ModelID = "m1" }, true},
		{"no broker", func(c *Config) { c.RPC.ModelID = "m1"; c.RPC.ClientID = "c1"; c.Broker.Addr = "" }, true},
		{"qos 2", func(c *Config) { c.RPC.ModelID = "m1"; c.RPC.ClientID = "c1"; c.RPC.ResponseQoS = 2 }, true},
		{"bad format", func(c *Config) { c.RPC.ModelID = "m1"; c.RPC.ClientID = "c1"; c.Log.Format = "xml" }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
