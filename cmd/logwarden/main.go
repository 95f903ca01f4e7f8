// Package main is the CLI entry point for logwarden.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"logwarden/internal/config"
	"logwarden/internal/correlate"
	"logwarden/internal/detect"
	"logwarden/internal/intel"
	"logwarden/internal/observability"
	"logwarden/internal/pipeline"
	"logwarden/internal/respond"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "logwarden",
		Short: "Log ingestion and threat detection pipeline",
		Long: `logwarden ingests web server and syslog-style log lines, matches them
against an OWASP-derived rule set with threat-intelligence escalation,
correlates detections into incidents, and drives deduplicated blocking,
alerting, and reporting.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "configs/config.yaml", "path to config file")
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newTailCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newIntelCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the assembled pipeline and its collaborators.
type app struct {
	cfg          *config.Config
	logger       *zap.Logger
	registry     *prometheus.Registry
	metrics      *observability.Metrics
	intel        *intel.Engine
	engine       *detect.Engine
	correlator   *correlate.Engine
	firewall     *respond.Firewall
	orchestrator *respond.Orchestrator
	pipeline     *pipeline.Pipeline
}

// newApp loads configuration and assembles the full pipeline. A missing
// config file falls back to defaults so the CLI works out of the box.
func newApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	if _, err := os.Stat(configPath); err == nil {
		cfg, err = config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	intelEngine := intel.NewEngine(cfg.Intel, logger)
	metrics.IOCSetSize.Set(float64(intelEngine.Size()))

	enricher, err := intel.NewEnricher(cfg.Enrichment, logger)
	if err != nil {
		return nil, fmt.Errorf("enricher: %w", err)
	}

	engine := detect.NewEngine(intelEngine, logger)
	correlator := correlate.NewEngine(cfg.Correlation.Window, logger)

	firewall := respond.NewFirewall(cfg.Firewall, logger)
	alerter := respond.NewEmailAlerter(cfg.Email, logger)
	reporter := respond.NewJSONReporter(cfg.Response.ReportDir, enricher, logger)
	orchestrator := respond.NewOrchestrator(cfg.Response, firewall, alerter, reporter, logger)

	return &app{
		cfg:          cfg,
		logger:       logger,
		registry:     registry,
		metrics:      metrics,
		intel:        intelEngine,
		engine:       engine,
		correlator:   correlator,
		firewall:     firewall,
		orchestrator: orchestrator,
		pipeline:     pipeline.New(engine, correlator, orchestrator, metrics, logger),
	}, nil
}

func (a *app) close() {
	a.logger.Sync()
}
