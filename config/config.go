// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package config loads the RPC endpoint daemon configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the RPC endpoint daemon.
type Config struct {
	Broker Broker `yaml:"broker"`
	RPC    RPC    `yaml:"rpc"`
	Log    Log    `yaml:"log"`
	Otel   Otel   `yaml:"otel"`
}

// Broker holds broker session settings.
type Broker struct {
	// Addr is the broker TCP address (host:port). Ignored when WSURL is set.
	Addr string `yaml:"addr"`
	// WSURL dials the broker over WebSocket instead of plain TCP.
	WSURL    string `yaml:"ws_url"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CleanStart     bool          `yaml:"clean_start"`

	// InboundRate caps delivered request publishes per second (0 = unlimited).
	InboundRate  float64 `yaml:"inbound_rate"`
	InboundBurst int     `yaml:"inbound_burst"`
}

// RPC holds the command endpoint settings.
type RPC struct {
	ModelID     string `yaml:"model_id"`
	ClientID    string `yaml:"client_id"`
	CommandName string `yaml:"command_name"`

	SubscribeQoS     byte          `yaml:"subscribe_qos"`
	ResponseQoS      byte          `yaml:"response_qos"`
	SubscribeTimeout time.Duration `yaml:"subscribe_timeout"`
}

// Log holds logging settings.
type Log struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Otel holds OpenTelemetry settings.
type Otel struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Broker: Broker{
			Addr:           "localhost:1883",
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			CleanStart:     true,
		},
		RPC: RPC{
			SubscribeQoS:     1,
			ResponseQoS:      1,
			SubscribeTimeout: 10 * time.Second,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Otel: Otel{
			Endpoint:       "localhost:4317",
			ServiceName:    "mqttrpc",
			ServiceVersion: "0.1.0",
		},
	}
}

// Load reads configuration from the given file, merged over defaults. An
// empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Broker.Addr == "" && c.Broker.WSURL == "" {
		return fmt.Errorf("broker: either addr or ws_url must be set")
	}
	if c.RPC.ModelID == "" {
		return fmt.Errorf("rpc: model_id must be set")
	}
	if c.RPC.ClientID == "" {
		return fmt.Errorf("rpc: client_id must be set")
	}
	if c.RPC.SubscribeQoS > 1 || c.RPC.ResponseQoS > 1 {
		return fmt.Errorf("rpc: only QoS 0 and 1 are supported")
	}
	if c.RPC.SubscribeTimeout <= 0 {
		return fmt.Errorf("rpc: subscribe_timeout must be positive")
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	return nil
}
