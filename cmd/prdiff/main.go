// Package main provides the entry point for the prdiff CLI tool.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lindara-dev/prdiff/adapters/govet"
	"github.com/lindara-dev/prdiff/adapters/staticgrep"
	"github.com/lindara-dev/prdiff/pkg/cache"
	"github.com/lindara-dev/prdiff/pkg/config"
	"github.com/lindara-dev/prdiff/pkg/issue"
	"github.com/lindara-dev/prdiff/pkg/observability"
	"github.com/lindara-dev/prdiff/pkg/orchestrator"
	"github.com/lindara-dev/prdiff/pkg/repomanager"
	"github.com/lindara-dev/prdiff/pkg/version"
)

var (
	verbose          bool
	quiet            bool
	configPath       string
	otlpEndpoint     string
	prometheusAddr   string
	prometheusEnable bool
	outputFormat     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "prdiff",
		Short: "Two-branch static analysis diff for pull requests",
		Long: `prdiff analyzes a pull request by running static-analysis tools against
both its target branch and its head, then reports which issues are new,
which were fixed, and which persisted unchanged.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress per-issue output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC collector address (traces and metrics)")
	rootCmd.PersistentFlags().BoolVar(&prometheusEnable, "prometheus", false, "expose metrics in Prometheus exposition format")
	rootCmd.PersistentFlags().StringVar(&prometheusAddr, "metrics-addr", ":9464", "listen address for --prometheus's /metrics endpoint")

	rootCmd.AddCommand(newAnalyzePRCommand())
	rootCmd.AddCommand(newCacheCommand())
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "prdiff %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func newAnalyzePRCommand() *cobra.Command {
	var matchThreshold int

	cmd := &cobra.Command{
		Use:   "analyze-pr <pr-url>",
		Short: "Analyze a pull request's main-vs-head static-analysis diff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			if matchThreshold > 0 {
				cfg.Analysis.MatchConfidenceThreshold = matchThreshold
			}

			providers, err := initObservability(cfg)
			if err != nil {
				return fmt.Errorf("init observability: %w", err)
			}
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = providers.Shutdown(shutdownCtx)
			}()

			if prometheusEnable {
				metricsShutdown, err := observability.ServeMetrics(prometheusAddr)
				if err != nil {
					providers.Logger.WarnContext(ctx, "metrics_server_failed", "error", err)
				} else {
					defer func() { _ = metricsShutdown(context.Background()) }()
				}
			}

			orch, cleanup, err := buildOrchestrator(cfg, providers)
			if err != nil {
				return fmt.Errorf("build orchestrator: %w", err)
			}
			defer cleanup()

			report, err := orch.AnalyzePR(ctx, args[0])
			if err != nil {
				return fmt.Errorf("analyze pr: %w", err)
			}

			printReport(cmd, report)

			return nil
		},
	}

	cmd.Flags().IntVar(&matchThreshold, "match-threshold", 0, "override the issue-match confidence threshold (0-100)")
	cmd.Flags().StringVar(&outputFormat, "output", "text", "report format: text, json, or yaml")

	return cmd
}

func newCacheCommand() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the pipeline cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand())

	return cacheCmd
}

func newCacheStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print cache hit/miss/compression counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			c, closeStore, err := buildCache(cfg)
			if err != nil {
				return fmt.Errorf("build cache: %w", err)
			}
			defer closeStore()

			stats := c.Stats()

			fmt.Fprintf(cmd.OutOrStdout(),
				"hits=%d misses=%d errors=%d memory_fallbacks=%d compressions=%d avg_hit=%s avg_miss=%s local_entries=%d local_evictions=%d\n",
				stats.Hits, stats.Misses, stats.Errors, stats.MemoryFallbacks, stats.Compressions,
				stats.AvgHitLatency, stats.AvgMissLatency, stats.Local.Entries, stats.Local.Evictions)

			return nil
		},
	}
}

// initObservability builds the OTel tracer/meter providers and the
// context-aware structured logger from cfg and the --otlp-endpoint/
// --prometheus flags. Callers must invoke the returned Providers.Shutdown
// before process exit.
func initObservability(cfg *config.Config) (observability.Providers, error) {
	level := slog.LevelInfo

	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.LogLevel = level
	obsCfg.LogJSON = cfg.Logging.Format != "text"
	obsCfg.OTLPEndpoint = otlpEndpoint
	obsCfg.PrometheusEnabled = prometheusEnable
	obsCfg.ServiceVersion = version.Version

	return observability.Init(obsCfg)
}

func buildCache(cfg *config.Config) (*cache.Cache, func(), error) {
	var (
		store   cache.DistributedStore
		closeFn = func() {}
	)

	switch cfg.Cache.Backend {
	case "bbolt":
		bolt, err := cache.NewBoltStore(cfg.Cache.BoltPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open bbolt cache: %w", err)
		}

		store = bolt
		closeFn = func() { _ = bolt.Close() }
	default:
		store = cache.NewMemoryStore()
	}

	c := cache.New(cache.Options{
		Distributed:          store,
		LocalCapacity:        cfg.Cache.LocalCapacity,
		CompressionThreshold: cfg.Cache.CompressionThreshold,
	})

	return c, closeFn, nil
}

func buildOrchestrator(cfg *config.Config, providers observability.Providers) (*orchestrator.Orchestrator, func(), error) {
	c, closeCache, err := buildCache(cfg)
	if err != nil {
		return nil, nil, err
	}

	if providers.Meter != nil {
		if err := observability.RegisterCacheMetrics(providers.Meter, c, c.LocalStats()); err != nil {
			providers.Logger.Warn("register_cache_metrics_failed", "error", err)
		}
	}

	repos, err := repomanager.New(cfg.Repository.BaseDir,
		repomanager.WithCloneTimeout(cfg.Repository.CloneTimeout),
		repomanager.WithPRRefFetchTimeout(cfg.Repository.PRRefFetchTimeout),
		repomanager.WithShallowDepth(cfg.Repository.ShallowDepth),
	)
	if err != nil {
		closeCache()
		return nil, nil, fmt.Errorf("build repo manager: %w", err)
	}

	adapters := []issue.Adapter{govet.New(), staticgrep.New()}

	orch := orchestrator.New(cfg, orchestrator.Dependencies{
		Cache:    c,
		Repos:    repos,
		Adapters: adapters,
		Logger:   providers.Logger,
	})

	cleanup := func() {
		_ = repos.CleanupAll()
		closeCache()
	}

	return orch, cleanup, nil
}

func printReport(cmd *cobra.Command, report *orchestrator.Report) {
	out := cmd.OutOrStdout()

	switch outputFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)

		return
	case "yaml":
		_ = yaml.NewEncoder(out).Encode(report)

		return
	}

	fmt.Fprintf(out, "PR #%d (%s/%s)\n", report.PRRef.Number, report.PRRef.Owner, report.PRRef.Repo)

	if report.Metadata != nil {
		fmt.Fprintf(out, "  %q by %s [%s]\n", report.Metadata.Title, report.Metadata.Author, report.Metadata.State)
	}

	if report.Comparison == nil {
		return
	}

	fmt.Fprintf(out, "  new:       %d\n", len(report.Comparison.NewIssues))
	fmt.Fprintf(out, "  fixed:     %d\n", len(report.Comparison.FixedIssues))
	fmt.Fprintf(out, "  unchanged: %d\n", len(report.Comparison.UnchangedIssues))
	fmt.Fprintf(out, "  risk:      %s\n", report.Comparison.Metrics.RiskLevel)
	fmt.Fprintf(out, "  overall score: %.1f\n", report.Comparison.Metrics.Scores.Overall)

	if quiet {
		return
	}

	for _, e := range report.Comparison.NewIssues {
		fmt.Fprintf(out, "    NEW [%s/%s] %s:%d %s\n", e.Severity, e.Category, e.File, e.StartLine, e.Message)
	}

	if verbose {
		for _, e := range report.Comparison.FixedIssues {
			fmt.Fprintf(out, "    FIXED [%s/%s] %s:%d %s\n", e.Severity, e.Category, e.File, e.StartLine, e.Message)
		}
	}
}
