package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prompt-general/pulsecheck/internal/api"
	"github.com/prompt-general/pulsecheck/internal/comms"
	"github.com/prompt-general/pulsecheck/internal/config"
	"github.com/prompt-general/pulsecheck/internal/events"
	"github.com/prompt-general/pulsecheck/internal/health"
	"github.com/prompt-general/pulsecheck/internal/resolver"
	"github.com/prompt-general/pulsecheck/internal/risk"
	"github.com/prompt-general/pulsecheck/internal/status"
	"github.com/prompt-general/pulsecheck/internal/store"
	"github.com/prompt-general/pulsecheck/internal/summary"
	"github.com/prompt-general/pulsecheck/internal/usage"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "config/config.yaml", "Configuration file path")
		showVersion = flag.Bool("version", false, "Show version information")
		help        = flag.Bool("help", false, "Show help information")
	)
	flag.Parse()

	if *help {
		printHelp()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Logging)
	log.WithFields(logrus.Fields{
		"version": version,
		"commit":  commit,
		"built":   date,
	}).Info("Starting PulseCheck")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	warehouse, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to the billing warehouse")
	}
	defer warehouse.Close()

	var commsReader comms.Reader = warehouse
	if !cfg.Comms.Enabled {
		commsReader = comms.Disabled()
		log.Info("Communication history collaborator disabled")
	}

	var publisher summary.Publisher
	if cfg.Events.Enabled {
		producer, err := events.NewProducer(cfg.Events)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize event producer")
		}
		defer producer.Close()
		publisher = producer
		log.WithField("topic", cfg.Events.Topic).Info("Event publishing enabled")
	}

	res := resolver.New(warehouse)
	analyzer := usage.New(warehouse, cfg.Scoring.Anomalies)
	riskEngine := risk.NewEngine(warehouse, cfg.Scoring.Risk)
	healthScorer := health.New(warehouse, cfg.Scoring.Health)
	classifier := status.New(cfg.Status)
	summaries := summary.NewService(
		warehouse, analyzer, commsReader, classifier, riskEngine,
		warehouse, publisher, cfg.Comms, log,
	)

	gateway := api.NewGateway(
		cfg.API, res, warehouse, analyzer, riskEngine, healthScorer, summaries, warehouse, log,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := gateway.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.WithError(err).Fatal("API gateway failed")
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("Shutdown signal received, stopping services")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := gateway.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
	log.Info("PulseCheck stopped")
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

func printHelp() {
	fmt.Printf(`PulseCheck - Customer Health Analytics Engine

Usage:
  pulsecheck [flags]

Flags:
  -config string
        Configuration file path (default "config/config.yaml")
  -version
        Show version information
  -help
        Show this help message

Examples:
  pulsecheck                                   # Start with default config
  pulsecheck -config config/production.yaml    # Start with production config
`)
}

func printVersion() {
	fmt.Printf("PulseCheck version %s\n", version)
	fmt.Printf("Commit: %s\n", commit)
	fmt.Printf("Built: %s\n", date)
}
