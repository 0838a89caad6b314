// Package engine orchestrates governance decisions: context resolution,
// override short-circuit, generation-checked caching, external policy
// evaluation with a configured fallback, and the mandatory audit record.
package engine
