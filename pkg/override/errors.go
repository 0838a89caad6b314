package override

import "fmt"

// NotFoundError indicates no override exists for the resource key.
type NotFoundError struct {
	ResourceKey string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no override for resource %q", e.ResourceKey)
}

// ValidationError indicates a malformed override.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid override: %s: %s", e.Field, e.Reason)
}
