// Themis is a policy decision service for workforce AI governance.
//
// It answers per-request ALLOW/DENY/REVIEW decisions by resolving request
// context, consulting admin overrides and a generation-tagged decision
// cache, and delegating policy evaluation to an external rule engine.
// Every decision is recorded in an append-only audit trail.
//
// Usage:
//
//	# Start the decision server with default configuration
//	themis run
//
//	# Start with a custom configuration file
//	themis run --config /etc/themis/config.yaml
//
//	# Validate configuration without starting the server
//	themis validate
//
//	# Inspect and switch policies on a running server
//	themis policy list
//	themis policy activate strict --actor admin@corp.com
//	themis policy history
//
//	# Manage admin overrides on a running server
//	themis overrides list
//	themis overrides add chatgpt DENY --reason "incident 42"
//	themis overrides remove chatgpt
//
//	# Show version information
//	themis version
package main

func main() {
	Execute()
}
