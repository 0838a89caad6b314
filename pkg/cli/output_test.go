package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTextFormatter(t *testing.T) {
	f := NewFormatter(FormatText)

	out, err := f.Format("hello")
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if string(out) != "hello\n" {
		t.Errorf("Format() = %q, want %q", out, "hello\n")
	}
}

func TestJSONFormatter(t *testing.T) {
	f := NewFormatter(FormatJSON)

	data := map[string]any{"policy_id": "standard", "generation": 3}
	out, err := f.Format(data)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["policy_id"] != "standard" {
		t.Errorf("policy_id = %v, want standard", decoded["policy_id"])
	}
	if !strings.Contains(string(out), "\n  ") {
		t.Error("JSON output should be indented")
	}
}

func TestJSONFormatter_FormatTo(t *testing.T) {
	var buf bytes.Buffer
	f := &JSONFormatter{}

	if err := f.FormatTo(&buf, map[string]string{"status": "ok"}); err != nil {
		t.Fatalf("FormatTo() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"status":"ok"`) {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNewFormatter_UnknownDefaultsToText(t *testing.T) {
	if _, ok := NewFormatter("xml").(*TextFormatter); !ok {
		t.Error("unknown format should fall back to text")
	}
}
