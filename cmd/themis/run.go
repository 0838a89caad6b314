package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/themis/pkg/audit"
	"mercator-hq/themis/pkg/audit/retention"
	"mercator-hq/themis/pkg/audit/storage"
	"mercator-hq/themis/pkg/cli"
	"mercator-hq/themis/pkg/config"
	"mercator-hq/themis/pkg/decision/cache"
	"mercator-hq/themis/pkg/engine"
	"mercator-hq/themis/pkg/evaluator"
	"mercator-hq/themis/pkg/override"
	"mercator-hq/themis/pkg/policy"
	"mercator-hq/themis/pkg/resolver"
	"mercator-hq/themis/pkg/server"
	"mercator-hq/themis/pkg/store"
	"mercator-hq/themis/pkg/telemetry/health"
	"mercator-hq/themis/pkg/telemetry/logging"
	"mercator-hq/themis/pkg/telemetry/metrics"
	"mercator-hq/themis/pkg/telemetry/tracing"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Themis decision server",
	Long: `Start the Themis decision server with the specified configuration.

The server restores the persisted active policy into the evaluator before
accepting traffic, then serves decision and admin requests on the
configured address.

Examples:
  # Start with default config
  themis run

  # Start with custom config
  themis run --config /etc/themis/config.yaml

  # Override listen address
  themis run --listen 0.0.0.0:8080

  # Validate config without starting server
  themis run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	if _, err := logging.Setup(&cfg.Telemetry.Logging, os.Stdout); err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Themis %s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	ctx := cli.SetupSignalHandler()

	tracer, err := tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()

	// Control-plane state: active policy record, history, overrides.
	backing, err := store.NewSQLiteStore(store.SQLiteConfig{
		Path:        cfg.Store.Path,
		BusyTimeout: cfg.Store.BusyTimeout,
	})
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open state store: %w", err))
	}
	defer backing.Close()
	fmt.Printf("✓ State store opened (%s)\n", cfg.Store.Path)

	// Audit trail.
	auditStore, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{Path: cfg.Audit.Path})
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to open audit store: %w", err))
	}
	defer auditStore.Close()

	recorder := audit.NewRecorder(auditStore, &audit.RecorderConfig{
		AsyncBuffer:     cfg.Audit.AsyncBuffer,
		WriteTimeout:    cfg.Audit.WriteTimeout,
		RetryMaxElapsed: cfg.Audit.RetryMaxElapsed,
	})
	defer recorder.Close()

	pruner := retention.NewPruner(auditStore, retention.Config{
		Days:     cfg.Audit.Retention.Days,
		Schedule: cfg.Audit.Retention.PruneSchedule,
	})
	if err := pruner.Start(); err != nil {
		slog.Warn("failed to start retention scheduler", "error", err)
	} else {
		defer pruner.Stop()
	}
	fmt.Printf("✓ Audit trail initialized (%s)\n", cfg.Audit.Path)

	// External policy evaluator.
	eval := evaluator.NewHTTPEvaluator(evaluator.Config{
		URL:           cfg.Evaluator.URL,
		DecisionPath:  cfg.Evaluator.DecisionPath,
		Timeout:       cfg.Evaluator.Timeout,
		ReloadTimeout: cfg.Evaluator.ReloadTimeout,
	})

	// The manager restores the persisted active policy into the evaluator
	// before the server accepts traffic.
	policies, err := policy.NewManager(ctx, backing, eval, cfg.Policy.DefinitionsDir, cfg.Policy.DefaultDefinition)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize policy manager: %w", err))
	}
	if active := policies.Current(); active != nil {
		fmt.Printf("✓ Active policy: %s (generation %d)\n", active.PolicyID, active.Generation)
	}

	if cfg.Policy.Watch {
		go func() {
			if err := policies.Watch(ctx); err != nil {
				slog.Warn("definitions watcher stopped", "error", err)
			}
		}()
	}

	overrides, err := override.NewStore(ctx, backing)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to load overrides: %w", err))
	}
	fmt.Printf("✓ Overrides loaded (%d active, generation %d)\n",
		len(overrides.List()), overrides.Generation())

	// Context resolution: user directory and content classifier.
	var directory resolver.Directory
	if cfg.Resolver.DirectoryURL != "" {
		directory = resolver.NewHTTPDirectory(cfg.Resolver.DirectoryURL, cfg.Resolver.DirectoryTimeout)
	}
	var classifier resolver.Classifier
	if cfg.Resolver.ClassifierURL != "" {
		classifier = resolver.NewHTTPClassifier(cfg.Resolver.ClassifierURL, cfg.Resolver.ClassifierTimeout)
	} else {
		classifier = resolver.NewPatternClassifier()
	}

	cacheTTL := cfg.Engine.Cache.TTL
	if !cfg.Engine.Cache.Enabled {
		cacheTTL = 0
	}

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	eng := engine.New(
		resolver.New(directory, classifier),
		overrides,
		policies,
		cache.New(cfg.Engine.Cache.MaxEntries),
		eval,
		recorder,
		collector,
		engine.Config{
			FallbackMode:    cfg.Engine.FallbackMode,
			CacheTTL:        cacheTTL,
			DecisionTimeout: cfg.Engine.DecisionTimeout,
		},
	)

	checker := health.NewChecker(5 * time.Second)
	checker.Register("evaluator", eval.Healthy)
	checker.Register("store", func(ctx context.Context) error {
		return backing.View(ctx, func(store.Tx) error { return nil })
	})
	checker.Register("audit", func(ctx context.Context) error {
		_, err := auditStore.RecentDecisions(ctx, 1)
		return err
	})

	srv := server.NewServer(&cfg.Server, eng, policies, overrides, recorder,
		auditStore, checker, collector, &cfg.Telemetry.Metrics)

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.Server.ListenAddress)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Server stopped")
	return nil
}
