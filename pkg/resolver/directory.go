package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"mercator-hq/themis/pkg/decision"
)

// Directory resolves user identities to their governance attributes.
type Directory interface {
	Lookup(ctx context.Context, userID string) (*decision.User, error)
}

// HTTPDirectory queries an external user directory over HTTP.
type HTTPDirectory struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPDirectory creates a directory client for the service at baseURL.
func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	if timeout == 0 {
		timeout = 30 * time.Millisecond
	}
	return &HTTPDirectory{
		baseURL: baseURL,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// Lookup implements Directory. An unknown user is an error; the directory
// is authoritative when configured.
func (d *HTTPDirectory) Lookup(ctx context.Context, userID string) (*decision.User, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	endpoint := d.baseURL + "/users/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("directory unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("user %q not found in directory", userID)
	default:
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	var user decision.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode directory response: %w", err)
	}
	if user.ID == "" {
		user.ID = userID
	}
	return &user, nil
}
