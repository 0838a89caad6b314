package decision

import (
	"testing"
)

func TestFingerprintOf_Stable(t *testing.T) {
	ctx := &Context{
		User:        User{ID: "u-1", Email: "u@corp.com"},
		ResourceKey: "character.ai",
		Findings: []Finding{
			{Category: "ssn", Severity: "high", Matches: 2},
			{Category: "email", Severity: "low", Matches: 1},
		},
	}

	first := FingerprintOf(ctx)
	second := FingerprintOf(ctx)
	if first != second {
		t.Errorf("fingerprint not stable: %s != %s", first, second)
	}
}

func TestFingerprintOf_FindingOrderIndependent(t *testing.T) {
	a := &Context{
		User:        User{ID: "u-1", Email: "u@corp.com"},
		ResourceKey: "character.ai",
		Findings: []Finding{
			{Category: "ssn", Severity: "high"},
			{Category: "email", Severity: "low"},
		},
	}
	b := &Context{
		User:        User{ID: "u-1", Email: "u@corp.com"},
		ResourceKey: "character.ai",
		Findings: []Finding{
			{Category: "email", Severity: "low"},
			{Category: "ssn", Severity: "high"},
		},
	}

	if FingerprintOf(a) != FingerprintOf(b) {
		t.Error("fingerprint should not depend on finding order")
	}
}

func TestFingerprintOf_SensitiveToInputs(t *testing.T) {
	base := &Context{
		User:        User{ID: "u-1", Email: "u@corp.com"},
		ResourceKey: "character.ai",
	}

	tests := []struct {
		name   string
		mutate func(*Context)
	}{
		{"different user", func(c *Context) { c.User.ID = "u-2" }},
		{"different resource", func(c *Context) { c.ResourceKey = "chatgpt.com" }},
		{"added finding", func(c *Context) {
			c.Findings = []Finding{{Category: "ssn", Severity: "high"}}
		}},
	}

	baseFP := FingerprintOf(base)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := *base
			tt.mutate(&other)
			if FingerprintOf(&other) == baseFP {
				t.Error("fingerprint should change when decision-relevant input changes")
			}
		})
	}
}

func TestFingerprintOf_IgnoresRequestMetadata(t *testing.T) {
	a := &Context{
		RequestID:   "req-1",
		User:        User{ID: "u-1"},
		ResourceKey: "character.ai",
		Source:      "browser_plugin",
	}
	b := &Context{
		RequestID:   "req-2",
		User:        User{ID: "u-1"},
		ResourceKey: "character.ai",
		Source:      "ide_plugin",
	}

	if FingerprintOf(a) != FingerprintOf(b) {
		t.Error("fingerprint should ignore request ID and source")
	}
}

func TestNormalizeResourceKey(t *testing.T) {
	tests := []struct {
		name     string
		resource Resource
		want     string
	}{
		{"service name preferred", Resource{URL: "https://chat.openai.com/c/1", Service: "ChatGPT"}, "chatgpt"},
		{"url host", Resource{URL: "https://character.ai/chat"}, "character.ai"},
		{"bare hostname", Resource{URL: "character.ai"}, "character.ai"},
		{"www stripped", Resource{URL: "https://www.claude.ai"}, "claude.ai"},
		{"port stripped", Resource{URL: "http://internal.llm:8080/v1"}, "internal.llm"},
		{"case folded", Resource{URL: "HTTPS://Character.AI"}, "character.ai"},
		{"empty", Resource{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeResourceKey(tt.resource); got != tt.want {
				t.Errorf("NormalizeResourceKey(%+v) = %q, want %q", tt.resource, got, tt.want)
			}
		})
	}
}
