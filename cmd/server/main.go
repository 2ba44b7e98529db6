package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/spbulk/internal/config"
	"github.com/JonMunkholm/spbulk/internal/core"
	"github.com/JonMunkholm/spbulk/internal/history"
	"github.com/JonMunkholm/spbulk/internal/logging"
	"github.com/JonMunkholm/spbulk/internal/sharepoint"
	"github.com/JonMunkholm/spbulk/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"site", cfg.SharePoint.SiteURL,
		"history", cfg.Database.Enabled(),
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	client, err := sharepoint.New(sharepoint.Options{
		SiteURL:      cfg.SharePoint.SiteURL,
		AccessToken:  cfg.SharePoint.AccessToken,
		Timeout:      cfg.SharePoint.Timeout,
		RegistryList: cfg.SharePoint.RegistryList,
		Logger:       logger,
	})
	if err != nil {
		slog.Error("failed to create sharepoint client", "error", err)
		os.Exit(1)
	}

	deps := core.Deps{
		Digest:    client,
		Lists:     client,
		Libraries: client,
		Items:     client,
		Fields:    client,
		Registry:  client,
		Logger:    logger,
	}
	webDeps := web.Deps{Registry: client}

	// Background jobs stop on shutdown.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	if cfg.Database.Enabled() {
		pool, err := history.Open(jobCtx, &cfg.Database)
		if err != nil {
			slog.Error("failed to open run history", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		slog.Info("connected to database", "name", history.DatabaseName(cfg.Database.URL))

		store := history.New(pool)
		if err := store.Migrate(jobCtx); err != nil {
			slog.Error("failed to migrate run history", "error", err)
			os.Exit(1)
		}
		deps.Recorder = store
		webDeps.Runs = store

		go store.StartPruner(jobCtx, history.RetentionConfig{
			RetentionDays: cfg.History.RetentionDays,
			CheckInterval: cfg.History.PruneInterval,
		})
	} else {
		slog.Info("run history disabled, DATABASE_URL not set")
	}

	webDeps.Workflow = core.NewWorkflow(deps)
	server := web.NewServer(cfg, webDeps)

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Drains running workflows before closing listeners.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		cancelJobs()
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-stopped
	slog.Info("server stopped")
}
