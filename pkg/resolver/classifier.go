package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"time"

	"mercator-hq/themis/pkg/decision"
)

// Classifier inspects request content and reports sensitive-data findings.
type Classifier interface {
	Classify(ctx context.Context, content string) ([]decision.Finding, error)
}

// contentPattern is one detection rule of the built-in classifier.
type contentPattern struct {
	category string
	severity string
	re       *regexp.Regexp
}

// Built-in detection rules. Categories and expressions track the common
// sensitive-data shapes seen in outbound AI traffic.
var builtinPatterns = []contentPattern{
	{"ssn", "high", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"credit_card", "high", regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)},
	{"api_key", "high", regexp.MustCompile(`(?i)(api[_-]?key|apikey|access[_-]?token|secret[_-]?key)[\s:=]+['"]?[a-zA-Z0-9_\-]{20,}['"]?`)},
	{"email", "medium", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{"phone", "medium", regexp.MustCompile(`\b(\+\d{1,2}\s?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)},
	{"ip_address", "low", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{"confidential_marker", "medium", regexp.MustCompile(`(?i)\b(CONFIDENTIAL|INTERNAL\s+ONLY|TRADE\s+SECRET|DO\s+NOT\s+SHARE|RESTRICTED\s+ACCESS)\b`)},
}

// PatternClassifier is the built-in regex-based classifier, used when no
// external classifier endpoint is configured.
type PatternClassifier struct{}

// NewPatternClassifier creates the built-in classifier.
func NewPatternClassifier() *PatternClassifier {
	return &PatternClassifier{}
}

// Classify implements Classifier. Findings are sorted by category for a
// stable output; the error result is always nil.
func (p *PatternClassifier) Classify(_ context.Context, content string) ([]decision.Finding, error) {
	if content == "" {
		return nil, nil
	}

	var findings []decision.Finding
	for _, pat := range builtinPatterns {
		matches := pat.re.FindAllStringIndex(content, -1)
		if len(matches) == 0 {
			continue
		}
		findings = append(findings, decision.Finding{
			Category: pat.category,
			Severity: pat.severity,
			Matches:  len(matches),
		})
	}

	sort.Slice(findings, func(i, j int) bool {
		return findings[i].Category < findings[j].Category
	})
	return findings, nil
}

// HTTPClassifier calls an external classification service.
type HTTPClassifier struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPClassifier creates a classifier client for the service at url.
func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	if timeout == 0 {
		timeout = 30 * time.Millisecond
	}
	return &HTTPClassifier{
		url:     url,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// Classify implements Classifier by posting the content and parsing the
// returned findings list.
func (c *HTTPClassifier) Classify(ctx context.Context, content string) ([]decision.Finding, error) {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return nil, fmt.Errorf("failed to encode classification request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build classification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var parsed struct {
		Findings []decision.Finding `json:"findings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode classifier response: %w", err)
	}
	return parsed.Findings, nil
}
