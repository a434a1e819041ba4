// Package main is the entry point of the planner API server.
//
// plannerd serves the planner items, the free-text command interpreter,
// the calendar views and the course module passthrough over HTTP. The
// caller is identified by the X-User-ID header set by the upstream gateway.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/brainamp/planner-engine/config"
	"github.com/brainamp/planner-engine/internal/app"
	httpapi "github.com/brainamp/planner-engine/internal/interface/http"
	"github.com/brainamp/planner-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := app.NewLogger(cfg, os.Stdout)
	log.Info("starting planner engine",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("storage", cfg.Storage.Driver),
		logger.String("write_lock", cfg.Features.WriteLock),
		logger.Bool("resolver", cfg.ResolverEnabled()),
	)
	if cfg.Features.Flags != nil {
		for name, f := range cfg.Features.Flags.GetAllFeatures() {
			log.Debug("feature flag",
				logger.String("feature", name),
				logger.Bool("enabled", f.Enabled),
				logger.Int("rollout_percent", f.RolloutPercent),
			)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE, RESOLVER, HANDLERS
	// ─────────────────────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer func() {
		log.Info("releasing resources...")
		application.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Host = cfg.HTTP.Host
	httpCfg.Port = cfg.HTTP.Port
	httpCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	httpCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	httpCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	httpCfg.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	httpCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	httpCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute

	server := httpapi.NewServer(httpCfg, httpapi.Dependencies{
		PlannerItems:     application.PlannerItems,
		Interpreter:      application.Interpreter,
		UpdateModuleDate: application.UpdateModuleDate,
		Calendar:         application.Calendar,
		ListModules:      application.ListModules,
		CommandAllowed:   application.CommandAllowed,
		Logger:           log,
		HealthChecker:    application.Health,
		Version:          cfg.App.Version,
	})
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("planner engine is running", logger.String("http_address", httpCfg.Address()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok && err != nil {
			log.Error("http server error", logger.Err(err))
			return err
		}
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}
