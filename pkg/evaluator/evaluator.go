package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"mercator-hq/themis/pkg/decision"
)

// Evaluation is the parsed verdict of the external rule engine.
type Evaluation struct {
	// Verdict is the resolved outcome.
	Verdict decision.Verdict

	// Reason explains the verdict.
	Reason string

	// RiskScore is the engine-assigned risk (0-100).
	RiskScore int
}

// Evaluator sends decision requests to an external rule-evaluation engine
// and parses its verdict. Implementations never substitute a default
// verdict on failure; the decision engine owns the fallback choice.
type Evaluator interface {
	// Evaluate submits the context and returns the engine's verdict.
	// Returns *UnavailableError when the engine cannot be reached or
	// times out.
	Evaluate(ctx context.Context, dctx *decision.Context) (*Evaluation, error)

	// Reload replaces the engine's policy definition. The new definition
	// is effective for every evaluation issued after Reload returns; no
	// in-flight evaluation straddles two definitions.
	Reload(ctx context.Context, policyID string, definition []byte) error

	// Healthy reports whether the engine is reachable.
	Healthy(ctx context.Context) error
}

// Config configures the HTTP evaluator.
type Config struct {
	// URL is the base URL of the rule engine.
	URL string

	// DecisionPath is the evaluation endpoint path.
	DecisionPath string

	// Timeout bounds a single evaluation call.
	Timeout time.Duration

	// ReloadTimeout bounds a policy reload call.
	ReloadTimeout time.Duration
}

// HTTPEvaluator implements Evaluator against an OPA-style HTTP API: the
// decision input is nested under a single "input" key, and the result
// carries at minimum allow, reason, and risk_score.
type HTTPEvaluator struct {
	config Config
	client *http.Client
	logger *slog.Logger

	// mu lets Reload exclude in-flight evaluations: evaluations hold the
	// read side, reload the write side.
	mu sync.RWMutex
}

// NewHTTPEvaluator creates an evaluator client for the engine at cfg.URL.
func NewHTTPEvaluator(cfg Config) *HTTPEvaluator {
	if cfg.DecisionPath == "" {
		cfg.DecisionPath = "/v1/data/governance"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 50 * time.Millisecond
	}
	if cfg.ReloadTimeout == 0 {
		cfg.ReloadTimeout = 5 * time.Second
	}

	return &HTTPEvaluator{
		config: cfg,
		client: &http.Client{},
		logger: slog.Default().With("component", "evaluator"),
	}
}

// evaluatorInput is the wire shape of the decision input.
type evaluatorInput struct {
	User struct {
		ID                string   `json:"id"`
		Email             string   `json:"email"`
		Department        string   `json:"department"`
		TrainingCompleted bool     `json:"training_completed"`
		Roles             []string `json:"roles,omitempty"`
	} `json:"user"`
	Resource struct {
		URL      string `json:"url"`
		Service  string `json:"service,omitempty"`
		Type     string `json:"type,omitempty"`
		Key      string `json:"key"`
		Category string `json:"category,omitempty"`
		Known    bool   `json:"known"`
	} `json:"resource"`
	Findings               []decision.Finding `json:"findings"`
	ClassificationDegraded bool               `json:"classification_degraded"`
	Context                struct {
		Source    string `json:"source"`
		Timestamp string `json:"timestamp"`
	} `json:"context"`
}

// evaluatorResult is the wire shape of the engine's verdict.
type evaluatorResult struct {
	Result struct {
		Allow     bool    `json:"allow"`
		Decision  string  `json:"decision"`
		Reason    string  `json:"reason"`
		RiskScore float64 `json:"risk_score"`
	} `json:"result"`
}

// Evaluate implements Evaluator.
func (e *HTTPEvaluator) Evaluate(ctx context.Context, dctx *decision.Context) (*Evaluation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := buildInput(dctx)
	body, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return nil, fmt.Errorf("failed to encode evaluator input: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	url := strings.TrimRight(e.config.URL, "/") + e.config.DecisionPath
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build evaluator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &UnavailableError{Endpoint: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &UnavailableError{
			Endpoint: url,
			Cause:    fmt.Errorf("engine returned status %d", resp.StatusCode),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("evaluator returned unexpected status %d", resp.StatusCode)
	}

	var result evaluatorResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode evaluator response: %w", err)
	}

	return parseResult(&result), nil
}

// Reload implements Evaluator by pushing the definition to the engine's
// policy API. A rejection (4xx) surfaces as *RejectedError so callers can
// distinguish an invalid definition from an unreachable engine.
func (e *HTTPEvaluator) Reload(ctx context.Context, policyID string, definition []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, e.config.ReloadTimeout)
	defer cancel()

	url := strings.TrimRight(e.config.URL, "/") + "/v1/policies/" + policyID
	req, err := http.NewRequestWithContext(callCtx, http.MethodPut, url, bytes.NewReader(definition))
	if err != nil {
		return fmt.Errorf("failed to build reload request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := e.client.Do(req)
	if err != nil {
		return &UnavailableError{Endpoint: url, Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		e.logger.Info("policy definition reloaded", "policy_id", policyID)
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RejectedError{
			PolicyID: policyID,
			Status:   resp.StatusCode,
			Detail:   string(detail),
		}
	default:
		return &UnavailableError{
			Endpoint: url,
			Cause:    fmt.Errorf("engine returned status %d", resp.StatusCode),
		}
	}
}

// Healthy implements Evaluator.
func (e *HTTPEvaluator) Healthy(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := strings.TrimRight(e.config.URL, "/") + "/health"
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return &UnavailableError{Endpoint: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &UnavailableError{
			Endpoint: url,
			Cause:    fmt.Errorf("engine returned status %d", resp.StatusCode),
		}
	}
	return nil
}

// buildInput maps the resolved context onto the wire schema without leaking
// internal representation details.
func buildInput(dctx *decision.Context) *evaluatorInput {
	input := &evaluatorInput{}

	input.User.ID = dctx.User.ID
	input.User.Email = dctx.User.Email
	input.User.Department = dctx.User.Department
	input.User.TrainingCompleted = dctx.User.TrainingCompleted
	input.User.Roles = dctx.User.Roles

	input.Resource.URL = dctx.Resource.URL
	input.Resource.Service = dctx.Resource.Service
	input.Resource.Type = dctx.Resource.Type
	input.Resource.Key = dctx.ResourceKey
	input.Resource.Category = dctx.Category
	input.Resource.Known = dctx.KnownService

	input.Findings = dctx.Findings
	if input.Findings == nil {
		input.Findings = []decision.Finding{}
	}
	input.ClassificationDegraded = dctx.ClassificationDegraded

	input.Context.Source = dctx.Source
	input.Context.Timestamp = dctx.ReceivedAt.UTC().Format(time.RFC3339)

	return input
}

// parseResult maps the engine's output to an Evaluation. Engines that emit
// an explicit decision field (ALLOW/DENY/REVIEW) take precedence; otherwise
// the boolean allow field is mapped to ALLOW or DENY.
func parseResult(result *evaluatorResult) *Evaluation {
	eval := &Evaluation{
		Reason:    result.Result.Reason,
		RiskScore: int(result.Result.RiskScore),
	}

	if v := decision.Verdict(result.Result.Decision); v.Valid() {
		eval.Verdict = v
	} else if result.Result.Allow {
		eval.Verdict = decision.VerdictAllow
	} else {
		eval.Verdict = decision.VerdictDeny
	}

	if eval.Reason == "" {
		eval.Reason = "no reason provided"
	}

	return eval
}
