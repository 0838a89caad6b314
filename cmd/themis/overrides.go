package main

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/themis/pkg/cli"
	"mercator-hq/themis/pkg/override"
)

var overridesFlags struct {
	server  string
	format  string
	reason  string
	actor   string
	expires string
}

var overridesCmd = &cobra.Command{
	Use:   "overrides",
	Short: "Manage admin overrides on a running server",
	Long: `Manage admin overrides on a running Themis server.

An override pins the verdict for one resource key and takes precedence
over both the decision cache and policy evaluation. Adding or removing
an override invalidates all cached decisions.

Subcommands:
  list   - Show configured overrides
  add    - Create or replace an override
  remove - Delete an override

Examples:
  # List overrides
  themis overrides list

  # Deny a service during an incident
  themis overrides add chatgpt DENY --reason "incident 42" --actor admin@corp.com

  # Temporary override with an expiry
  themis overrides add character.ai DENY --expires 2026-09-01T00:00:00Z

  # Remove an override
  themis overrides remove chatgpt`,
}

var overridesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show configured overrides",
	RunE:  listOverrides,
}

var overridesAddCmd = &cobra.Command{
	Use:   "add <resource-key> <ALLOW|DENY|REVIEW>",
	Short: "Create or replace an override",
	Args:  cobra.ExactArgs(2),
	RunE:  addOverride,
}

var overridesRemoveCmd = &cobra.Command{
	Use:   "remove <resource-key>",
	Short: "Delete an override",
	Args:  cobra.ExactArgs(1),
	RunE:  removeOverride,
}

func init() {
	rootCmd.AddCommand(overridesCmd)
	overridesCmd.AddCommand(overridesListCmd, overridesAddCmd, overridesRemoveCmd)

	overridesCmd.PersistentFlags().StringVar(&overridesFlags.server, "server", "http://127.0.0.1:8080", "base URL of the running server")
	overridesCmd.PersistentFlags().StringVar(&overridesFlags.format, "format", "text", "output format: text, json")

	overridesAddCmd.Flags().StringVar(&overridesFlags.reason, "reason", "", "why the override exists")
	overridesAddCmd.Flags().StringVar(&overridesFlags.actor, "actor", "", "who is setting the override")
	overridesAddCmd.Flags().StringVar(&overridesFlags.expires, "expires", "", "expiry time (RFC3339)")
}

func listOverrides(cmd *cobra.Command, args []string) error {
	client := newAdminClient(overridesFlags.server)

	var resp struct {
		Overrides  []*override.Override `json:"overrides"`
		Generation uint64               `json:"generation"`
	}
	if err := client.call("GET", "/overrides", nil, &resp); err != nil {
		return cli.NewCommandError("overrides list", err)
	}

	if overridesFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, resp)
	}

	if len(resp.Overrides) == 0 {
		fmt.Println("No overrides configured")
		return nil
	}
	fmt.Printf("Overrides (%d, generation %d):\n\n", len(resp.Overrides), resp.Generation)
	for _, o := range resp.Overrides {
		fmt.Printf("  %s -> %s\n", o.ResourceKey, o.Verdict)
		if o.Reason != "" {
			fmt.Printf("    Reason:  %s\n", o.Reason)
		}
		if o.CreatedBy != "" {
			fmt.Printf("    By:      %s\n", o.CreatedBy)
		}
		if o.ExpiresAt != nil {
			state := "expires"
			if o.ExpiresAt.Before(time.Now()) {
				state = "expired"
			}
			fmt.Printf("    %s: %s\n", state, o.ExpiresAt.Format(time.RFC3339))
		}
	}
	return nil
}

func addOverride(cmd *cobra.Command, args []string) error {
	client := newAdminClient(overridesFlags.server)

	body := map[string]any{
		"resource_key": args[0],
		"decision":     args[1],
		"reason":       overridesFlags.reason,
		"created_by":   overridesFlags.actor,
	}
	if overridesFlags.expires != "" {
		expires, err := time.Parse(time.RFC3339, overridesFlags.expires)
		if err != nil {
			return fmt.Errorf("invalid expiry time (want RFC3339): %w", err)
		}
		body["expires_at"] = expires
	}

	var resp struct {
		Override   override.Override `json:"override"`
		Generation uint64            `json:"generation"`
	}
	if err := client.call("POST", "/overrides", body, &resp); err != nil {
		return cli.NewCommandError("overrides add", err)
	}

	if overridesFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, resp)
	}

	fmt.Printf("✓ Override set: %s -> %s (generation %d)\n",
		resp.Override.ResourceKey, resp.Override.Verdict, resp.Generation)
	return nil
}

func removeOverride(cmd *cobra.Command, args []string) error {
	client := newAdminClient(overridesFlags.server)

	var resp struct {
		Deleted    string `json:"deleted"`
		Generation uint64 `json:"generation"`
	}
	if err := client.call("DELETE", "/overrides/"+url.PathEscape(args[0]), nil, &resp); err != nil {
		return cli.NewCommandError("overrides remove", err)
	}

	if overridesFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, resp)
	}

	fmt.Printf("✓ Override removed: %s (generation %d)\n", resp.Deleted, resp.Generation)
	return nil
}
