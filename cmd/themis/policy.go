package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/themis/pkg/cli"
	"mercator-hq/themis/pkg/policy"
)

var policyFlags struct {
	server string
	format string
	actor  string
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage the active policy on a running server",
	Long: `Manage the active policy on a running Themis server.

Subcommands:
  list     - Show loadable policy definitions and the active policy
  activate - Validate and activate a policy definition
  history  - Show the policy activation history

Examples:
  # Show definitions and the active policy
  themis policy list

  # Activate the strict policy
  themis policy activate strict --actor admin@corp.com

  # Show activation history
  themis policy history --format json`,
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show policy definitions and the active policy",
	RunE:  listPolicies,
}

var policyActivateCmd = &cobra.Command{
	Use:   "activate <policy-id>",
	Short: "Validate and activate a policy definition",
	Long: `Validate and activate a policy definition on a running server.

The definition is loaded into the rule engine before it is recorded as
active; a definition the engine rejects leaves the current policy in
place. Activation invalidates all cached decisions.`,
	Args: cobra.ExactArgs(1),
	RunE: activatePolicy,
}

var policyHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the policy activation history",
	RunE:  showPolicyHistory,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyListCmd, policyActivateCmd, policyHistoryCmd)

	policyCmd.PersistentFlags().StringVar(&policyFlags.server, "server", "http://127.0.0.1:8080", "base URL of the running server")
	policyCmd.PersistentFlags().StringVar(&policyFlags.format, "format", "text", "output format: text, json")

	policyActivateCmd.Flags().StringVar(&policyFlags.actor, "actor", "", "who is activating the policy")
}

func listPolicies(cmd *cobra.Command, args []string) error {
	client := newAdminClient(policyFlags.server)

	var defsResp struct {
		Definitions []*policy.Definition `json:"definitions"`
	}
	if err := client.call("GET", "/policy/definitions", nil, &defsResp); err != nil {
		return cli.NewCommandError("policy list", err)
	}

	var active policy.ActivePolicy
	activeErr := client.call("GET", "/policy/active", nil, &active)

	if policyFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, map[string]any{
			"definitions": defsResp.Definitions,
			"active":      active,
		})
	}

	fmt.Printf("Policy definitions (%d):\n", len(defsResp.Definitions))
	for _, def := range defsResp.Definitions {
		marker := " "
		if activeErr == nil && def.ID == active.PolicyID {
			marker = "*"
		}
		fmt.Printf("  %s %s", marker, def.ID)
		if def.Name != "" {
			fmt.Printf(" - %s", def.Name)
		}
		fmt.Println()
	}
	if activeErr == nil {
		fmt.Printf("\nActive: %s (generation %d, activated %s by %s)\n",
			active.PolicyID, active.Generation,
			active.ActivatedAt.Format(time.RFC3339), active.ActivatedBy)
	} else {
		fmt.Println("\nNo active policy")
	}
	return nil
}

func activatePolicy(cmd *cobra.Command, args []string) error {
	client := newAdminClient(policyFlags.server)

	var active policy.ActivePolicy
	err := client.call("POST", "/policy/activate", map[string]string{
		"policy_id":    args[0],
		"activated_by": policyFlags.actor,
	}, &active)
	if err != nil {
		return cli.NewCommandError("policy activate", err)
	}

	if policyFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, active)
	}

	fmt.Printf("✓ Activated %s (generation %d)\n", active.PolicyID, active.Generation)
	fmt.Printf("  Content hash: %s\n", active.ContentHash)
	return nil
}

func showPolicyHistory(cmd *cobra.Command, args []string) error {
	client := newAdminClient(policyFlags.server)

	var resp struct {
		History []*policy.ActivePolicy `json:"history"`
	}
	if err := client.call("GET", "/policy/history", nil, &resp); err != nil {
		return cli.NewCommandError("policy history", err)
	}

	if policyFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, resp.History)
	}

	if len(resp.History) == 0 {
		fmt.Println("No activations recorded")
		return nil
	}
	fmt.Printf("Policy activation history (%d entries):\n\n", len(resp.History))
	for _, entry := range resp.History {
		fmt.Printf("%d. %s\n", entry.Generation, entry.PolicyID)
		fmt.Printf("   Activated: %s\n", entry.ActivatedAt.Format(time.RFC3339))
		if entry.ActivatedBy != "" {
			fmt.Printf("   By:        %s\n", entry.ActivatedBy)
		}
		fmt.Println()
	}
	return nil
}
