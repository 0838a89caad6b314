// Package override holds admin-pinned verdicts for specific resources.
// Overrides take precedence over cached and freshly evaluated decisions, and
// every mutation bumps a persisted generation counter that invalidates
// affected cache entries.
package override
