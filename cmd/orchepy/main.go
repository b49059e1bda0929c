// Package main provides the orchepy binary entry point.
// Orchepy is a workflow orchestration service: cases advance through
// workflow phases with automations, and events trigger flows whose runs
// are recorded as executions.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orchehq/orchepy/api"
	"github.com/orchehq/orchepy/config"
	"github.com/orchehq/orchepy/engine"
	"github.com/orchehq/orchepy/eventbus"
	"github.com/orchehq/orchepy/service"
	"github.com/orchehq/orchepy/store"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "orchepy"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "orchepy",
		Short: "Workflow orchestration service",
		Long: `Orchepy is a workflow orchestration service.

It provides:
- Workflows with phases, per-phase automations and SLAs
- Cases that move through workflow phases with full history
- Events matched against flows, executed step by step
- A REST API with a real-time Kanban dashboard`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd.Context(), configPath, logLevel)
		},
	})

	return cmd
}

func setupLogging(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func migrate(ctx context.Context, configPath, logLevel string) error {
	logger := setupLogging(logLevel)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("Migrations applied")
	return nil
}

func run(ctx context.Context, configPath, logLevel string) error {
	logger := setupLogging(logLevel)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("Database ready")

	workflows := store.NewWorkflowStore(db)
	cases := store.NewCaseStore(db, logger)
	events := store.NewEventStore(db)
	flows := store.NewFlowStore(db)
	executions := store.NewExecutionStore(db)

	metrics := service.NewMetrics(nil)

	eventService := service.NewEventService(events, flows, executions, engine.NewFlowExecutor(logger), metrics, logger)
	caseService := service.NewCaseService(
		workflows,
		cases,
		engine.NewAutomationExecutor(logger),
		eventService,
		service.NewWebhookSender(logger),
		service.CaseServiceOptions{
			WebhookOnCaseCreate: cfg.Webhooks.OnCaseCreate,
			WebhookOnCaseMove:   cfg.Webhooks.OnCaseMove,
		},
		metrics,
		logger,
	)

	var whitelist *api.Whitelist
	if cfg.Whitelist.Enabled {
		whitelist = api.NewWhitelist(cfg.Whitelist.IPs, logger)
		logger.Info("IP whitelist enabled", "ips", len(cfg.Whitelist.IPs))
	}

	server := api.NewServer(api.Deps{
		Workflows:  workflows,
		Cases:      cases,
		CaseOps:    caseService,
		Events:     eventService,
		EventStore: events,
		Flows:      flows,
		Executions: executions,
		DB:         db,
	}, whitelist, logger)

	var bridge *eventbus.Bridge
	if cfg.NATS.URL != "" {
		bridge, err = eventbus.NewBridge(cfg.NATS.URL, eventService, logger)
		if err != nil {
			return fmt.Errorf("start NATS bridge: %w", err)
		}
		defer bridge.Close()
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Orchepy listening", "addr", cfg.Addr(), "version", Version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-signalCtx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", "error", err)
	}

	logger.Info("Orchepy shutdown complete")
	return nil
}
