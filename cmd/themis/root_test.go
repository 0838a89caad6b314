package main

import "testing"

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"run":       false,
		"validate":  false,
		"policy":    false,
		"overrides": false,
		"version":   false,
	}

	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}

	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestPolicySubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, sub := range policyCmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"list", "activate", "history"} {
		if !names[name] {
			t.Errorf("policy subcommand %q not registered", name)
		}
	}
}

func TestOverridesSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, sub := range overridesCmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"list", "add", "remove"} {
		if !names[name] {
			t.Errorf("overrides subcommand %q not registered", name)
		}
	}
}
