// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package topics_test

import (
	"testing"

	"github.com/absmach/mqttrpc/topics"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"vehicles/m1/commands/c1/get", "vehicles/m1/commands/c1/get", true},
		{"vehicles/m1/commands/c1/+", "vehicles/m1/commands/c1/get", true},
		{"vehicles/m1/commands/c1/+", "vehicles/m1/commands/c1", false},
		{"vehicles/m1/commands/c1/+", "vehicles/m1/commands/c1/get/extra", false},
		{"vehicles/+/commands/+/+", "vehicles/m1/commands/c1/get", true},
		{"vehicles/#", "vehicles/m1/commands/c1/get", true},
		{"vehicles/#", "vehicles", true},
		{"#", "anything/at/all", true},
		{"+/+", "foo/bar", true},
		{"+/+", "foo/bar/baz", false},
		{"$SYS/#", "$SYS/monitor/Clients", true},
		{"#", "$SYS/monitor/Clients", false},
		{"+/monitor/Clients", "$SYS/monitor/Clients", false},
		{"foo/bar", "foo/baz", false},
		{"", "foo", false},
		{"foo", "", false},
		// Malformed filters never match.
		{"foo/#/bar", "foo/x/bar", false},
		{"foo/ba#", "foo/ba#", false},
	}

	for _, tt := range tests {
		if got := topics.Match(tt.filter, tt.topic); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.filter, tt.topic, got, tt.want)
		}
	}
}

func TestCommandFilter(t *testing.T) {
	tests := []struct {
		name    string
		model   string
		client  string
		command string
		want    string
		wantErr bool
	}{
		{"named command", "m1", "c1", "get", "vehicles/m1/commands/c1/get", false},
		{"all commands", "m1", "c1", "", "vehicles/m1/commands/c1/+", false},
		{"empty model", "", "c1", "get", "", true},
		{"empty client", "m1", "", "get", "", true},
		{"separator in model", "m/1", "c1", "get", "", true},
		{"wildcard in command", "m1", "c1", "ge+t", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := topics.CommandFilter(tt.model, tt.client, tt.command)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CommandFilter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("CommandFilter() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateFilter(t *testing.T) {
	valid := []string{"a/b/c", "+/b/#", "vehicles/m1/commands/c1/+", "#"}
	for _, f := range valid {
		if err := topics.ValidateFilter(f); err != nil {
			t.Errorf("ValidateFilter(%q) = %v, want nil", f, err)
		}
	}
	invalid := []string{"", "a/#/b", "a+/b", "a/b#"}
	for _, f := range invalid {
		if err := topics.ValidateFilter(f); err == nil {
			t.Errorf("ValidateFilter(%q) = nil, want error", f)
		}
	}
}
