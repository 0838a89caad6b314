package resolver

import "fmt"

// ResolutionError indicates a required upstream failed while assembling the
// decision context. Degradable upstreams (the content classifier) never
// produce this error; they set the degraded flag instead.
type ResolutionError struct {
	Upstream string
	Cause    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("context resolution failed: %s: %v", e.Upstream, e.Cause)
}

func (e *ResolutionError) Unwrap() error {
	return e.Cause
}
