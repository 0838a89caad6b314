package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"mercator-hq/themis/pkg/cli"
	"mercator-hq/themis/pkg/config"
	"mercator-hq/themis/pkg/policy"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file, apply defaults and environment overrides,
and report validation errors without starting the server.

The policy definitions directory is also checked: every definition file
must parse, and the configured default definition must exist.

Examples:
  # Validate the default config
  themis validate

  # Validate a specific config file
  themis validate --config /etc/themis/config.yaml`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verrs *config.ValidationErrors
		if errors.As(err, &verrs) {
			fmt.Println("✗ Configuration invalid:")
			fmt.Println(verrs.Error())
			return cli.NewConfigError("", "validation failed")
		}
		return cli.NewConfigError("", err.Error())
	}

	definitions, err := policy.LoadDefinitions(cfg.Policy.DefinitionsDir)
	if err != nil {
		return cli.NewConfigError("policy.definitions_dir", err.Error())
	}
	if cfg.Policy.DefaultDefinition != "" {
		if _, ok := definitions[cfg.Policy.DefaultDefinition]; !ok {
			return cli.NewConfigError("policy.default_definition",
				fmt.Sprintf("definition %q not found in %s", cfg.Policy.DefaultDefinition, cfg.Policy.DefinitionsDir))
		}
	}

	fmt.Println("✓ Configuration valid")
	fmt.Printf("✓ Policy definitions: %d found in %s\n", len(definitions), cfg.Policy.DefinitionsDir)
	fmt.Printf("  Listen address:  %s\n", cfg.Server.ListenAddress)
	fmt.Printf("  Evaluator:       %s\n", cfg.Evaluator.URL)
	fmt.Printf("  Fallback mode:   %s\n", cfg.Engine.FallbackMode)
	fmt.Printf("  State store:     %s\n", cfg.Store.Path)
	fmt.Printf("  Audit trail:     %s\n", cfg.Audit.Path)
	return nil
}
