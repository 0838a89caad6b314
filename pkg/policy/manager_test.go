package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mercator-hq/themis/pkg/decision"
	"mercator-hq/themis/pkg/evaluator"
	"mercator-hq/themis/pkg/store"
)

type stubEvaluator struct {
	loadedID      string
	loadedContent []byte
	reloads       int
	reloadErr     error
}

func (s *stubEvaluator) Evaluate(_ context.Context, _ *decision.Context) (*evaluator.Evaluation, error) {
	return &evaluator.Evaluation{Verdict: decision.VerdictAllow, Reason: "stub"}, nil
}

func (s *stubEvaluator) Reload(_ context.Context, policyID string, definition []byte) error {
	if s.reloadErr != nil {
		return s.reloadErr
	}
	s.loadedID = policyID
	s.loadedContent = definition
	s.reloads++
	return nil
}

func (s *stubEvaluator) Healthy(_ context.Context) error { return nil }

func writeDefinition(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write definition: %v", err)
	}
}

func defsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeDefinition(t, dir, "standard.rego", `---
name: Standard governance
description: Default rules.
---
package governance
default allow := false
`)
	writeDefinition(t, dir, "strict.rego", "package governance\ndefault allow := false\ndeny := true\n")
	return dir
}

func TestNewManager_ActivatesDefault(t *testing.T) {
	eval := &stubEvaluator{}
	m, err := NewManager(context.Background(), store.NewMemoryStore(), eval, defsDir(t), "standard")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	current := m.Current()
	if current == nil || current.PolicyID != "standard" {
		t.Fatalf("current = %+v, want standard", current)
	}
	if current.Generation != 1 {
		t.Errorf("generation = %d, want 1", current.Generation)
	}
	if eval.loadedID != "standard" {
		t.Errorf("evaluator loaded %q, want standard", eval.loadedID)
	}
}

func TestNewManager_NoDefaultNoRecord(t *testing.T) {
	_, err := NewManager(context.Background(), store.NewMemoryStore(), &stubEvaluator{}, defsDir(t), "")
	if !errors.Is(err, ErrNoActivePolicy) {
		t.Fatalf("error = %v, want ErrNoActivePolicy", err)
	}
}

func TestManager_ActivateBumpsGeneration(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ctx, store.NewMemoryStore(), &stubEvaluator{}, defsDir(t), "standard")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	record, err := m.Activate(ctx, "strict", "admin@corp.com")
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if record.Generation != 2 {
		t.Errorf("generation = %d, want 2", record.Generation)
	}

	// Reactivating the same policy still bumps the generation so cached
	// decisions from the previous activation are invalidated.
	record, err = m.Activate(ctx, "strict", "admin@corp.com")
	if err != nil {
		t.Fatalf("reactivate error = %v", err)
	}
	if record.Generation != 3 {
		t.Errorf("generation after reactivation = %d, want 3", record.Generation)
	}
}

func TestManager_ActivateUnknownPolicy(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ctx, store.NewMemoryStore(), &stubEvaluator{}, defsDir(t), "standard")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	_, err = m.Activate(ctx, "nonexistent", "admin")
	var invalid *InvalidPolicyError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want *InvalidPolicyError", err)
	}

	if m.Current().PolicyID != "standard" {
		t.Error("failed activation must leave previous policy active")
	}
}

func TestManager_ActivateRejectedByEvaluator(t *testing.T) {
	ctx := context.Background()
	eval := &stubEvaluator{}
	m, err := NewManager(ctx, store.NewMemoryStore(), eval, defsDir(t), "standard")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	eval.reloadErr = &evaluator.RejectedError{PolicyID: "strict", Status: 400, Detail: "parse error"}
	_, err = m.Activate(ctx, "strict", "admin")

	var invalid *InvalidPolicyError
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want *InvalidPolicyError", err)
	}
	if got := m.Current(); got.PolicyID != "standard" || got.Generation != 1 {
		t.Errorf("current = %+v, want untouched standard gen 1", got)
	}
}

func TestManager_ActivateEvaluatorDown(t *testing.T) {
	ctx := context.Background()
	eval := &stubEvaluator{}
	m, err := NewManager(ctx, store.NewMemoryStore(), eval, defsDir(t), "standard")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	eval.reloadErr = &evaluator.UnavailableError{Endpoint: "http://opa", Cause: errors.New("refused")}
	_, err = m.Activate(ctx, "strict", "admin")

	var actErr *ActivationError
	if !errors.As(err, &actErr) {
		t.Fatalf("error = %v, want *ActivationError", err)
	}
}

func TestManager_RestartRestoresActivePolicy(t *testing.T) {
	ctx := context.Background()
	backing := store.NewMemoryStore()
	dir := defsDir(t)

	m, err := NewManager(ctx, backing, &stubEvaluator{}, dir, "standard")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if _, err := m.Activate(ctx, "strict", "admin"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	// Restart: a fresh manager over the same store must restore strict,
	// not fall back to the default, and must reload the evaluator.
	eval := &stubEvaluator{}
	restarted, err := NewManager(ctx, backing, eval, dir, "standard")
	if err != nil {
		t.Fatalf("restart NewManager() error = %v", err)
	}

	current := restarted.Current()
	if current.PolicyID != "strict" || current.Generation != 2 {
		t.Errorf("restored current = %+v, want strict gen 2", current)
	}
	if eval.loadedID != "strict" {
		t.Errorf("evaluator loaded %q on restart, want strict", eval.loadedID)
	}
}

func TestManager_RestartMissingDefinitionFails(t *testing.T) {
	ctx := context.Background()
	backing := store.NewMemoryStore()
	dir := defsDir(t)

	m, err := NewManager(ctx, backing, &stubEvaluator{}, dir, "standard")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if _, err := m.Activate(ctx, "strict", "admin"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	if err := os.Remove(filepath.Join(dir, "strict.rego")); err != nil {
		t.Fatalf("failed to remove definition: %v", err)
	}

	if _, err := NewManager(ctx, backing, &stubEvaluator{}, dir, "standard"); err == nil {
		t.Fatal("restart with missing active definition must fail, not fall back")
	}
}

func TestManager_History(t *testing.T) {
	ctx := context.Background()
	m, err := NewManager(ctx, store.NewMemoryStore(), &stubEvaluator{}, defsDir(t), "standard")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if _, err := m.Activate(ctx, "strict", "a1"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if _, err := m.Activate(ctx, "standard", "a2"); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}

	history, err := m.History(ctx)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	for i, want := range []string{"standard", "strict", "standard"} {
		if history[i].PolicyID != want {
			t.Errorf("history[%d] = %s, want %s", i, history[i].PolicyID, want)
		}
		if history[i].Generation != uint64(i+1) {
			t.Errorf("history[%d] generation = %d, want %d", i, history[i].Generation, i+1)
		}
	}
}

func TestManager_Definitions(t *testing.T) {
	m, err := NewManager(context.Background(), store.NewMemoryStore(), &stubEvaluator{}, defsDir(t), "standard")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	defs := m.Definitions()
	if len(defs) != 2 {
		t.Fatalf("definitions = %d, want 2", len(defs))
	}
	if defs[0].ID != "standard" || defs[1].ID != "strict" {
		t.Errorf("definition order = %s, %s; want standard, strict", defs[0].ID, defs[1].ID)
	}
	if defs[0].Name != "Standard governance" {
		t.Errorf("front-matter name = %q, want Standard governance", defs[0].Name)
	}
	if defs[0].Description != "Default rules." {
		t.Errorf("front-matter description = %q", defs[0].Description)
	}
}

func TestParseDefinition(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		raw         string
		wantID      string
		wantName    string
		wantContent string
		wantErr     bool
	}{
		{
			name:        "no front matter",
			filename:    "plain.rego",
			raw:         "package governance\n",
			wantID:      "plain",
			wantName:    "plain",
			wantContent: "package governance\n",
		},
		{
			name:        "with front matter",
			filename:    "meta.rego",
			raw:         "---\nname: Meta policy\n---\npackage governance\n",
			wantID:      "meta",
			wantName:    "Meta policy",
			wantContent: "package governance\n",
		},
		{
			name:     "unterminated front matter",
			filename: "broken.rego",
			raw:      "---\nname: oops\n",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := parseDefinition(tt.filename, []byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDefinition() error = %v", err)
			}
			if def.ID != tt.wantID || def.Name != tt.wantName {
				t.Errorf("def = %+v, want id=%s name=%s", def, tt.wantID, tt.wantName)
			}
			if string(def.Content) != tt.wantContent {
				t.Errorf("content = %q, want %q", def.Content, tt.wantContent)
			}
		})
	}
}
