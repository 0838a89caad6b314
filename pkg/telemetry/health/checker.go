package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status is the health of one dependency or of the whole service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Checker aggregates dependency probes into a single service health view.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
}

// NewChecker creates a checker. Each probe is bounded by timeout; zero
// selects 2 seconds.
func NewChecker(timeout time.Duration) *Checker {
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: timeout,
	}
}

// Register adds a named dependency probe.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Report is the aggregate health result.
type Report struct {
	Status       Status            `json:"status"`
	Dependencies map[string]Status `json:"dependencies"`
	CheckedAt    time.Time         `json:"checked_at"`
}

// Check runs all probes and aggregates them. Any unhealthy dependency makes
// the service unhealthy.
func (c *Checker) Check(ctx context.Context) *Report {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	report := &Report{
		Status:       StatusHealthy,
		Dependencies: make(map[string]Status, len(checks)),
		CheckedAt:    time.Now(),
	}

	for name, fn := range checks {
		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(probeCtx)
		cancel()

		if err != nil {
			report.Dependencies[name] = StatusUnhealthy
			report.Status = StatusUnhealthy
		} else {
			report.Dependencies[name] = StatusHealthy
		}
	}
	return report
}

// Handler returns the HTTP handler for the health endpoint. Unhealthy
// services answer 503 so load balancers can act on the status code alone.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status != StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})
}
