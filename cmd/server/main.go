package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/chemviz/internal/auth"
	"github.com/JonMunkholm/chemviz/internal/cache"
	"github.com/JonMunkholm/chemviz/internal/config"
	"github.com/JonMunkholm/chemviz/internal/core"
	"github.com/JonMunkholm/chemviz/internal/database"
	"github.com/JonMunkholm/chemviz/internal/logging"
	"github.com/JonMunkholm/chemviz/internal/report"
	"github.com/JonMunkholm/chemviz/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	os.Exit(run())
}

// run wires the server and blocks until it has shut down. Deferred closes
// run before the exit code reaches the process.
func run() int {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		return 1
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()

	// Connect to the store (Postgres, or memory:// for local runs)
	store, err := database.Open(ctx, database.Options{
		URL:             cfg.Database.URL,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		Migrate:         cfg.Database.Migrate,
	})
	if err != nil {
		slog.Error("failed to open database", "error", err)
		return 1
	}
	defer store.Close()
	slog.Info("connected to store", "backend", store.Name())

	aliases := core.DefaultAliases()
	if cfg.Parser.AliasesFile != "" {
		aliases, err = core.LoadAliases(cfg.Parser.AliasesFile)
		if err != nil {
			slog.Error("failed to load header aliases", "path", cfg.Parser.AliasesFile, "error", err)
			return 1
		}
		slog.Info("header aliases loaded", "path", cfg.Parser.AliasesFile)
	}

	// Optional Redis summary memo. A nil *SummaryCache must not reach the
	// interfaces below, so they stay unset when Redis is off.
	var (
		memo      core.SummaryMemo
		cacheDeps web.Pinger
	)
	if cfg.Redis.URL != "" {
		summaries, err := cache.Connect(ctx, cfg.Redis.URL, cfg.Redis.TTL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			return 1
		}
		defer summaries.Close()
		memo, cacheDeps = summaries, summaries
		slog.Info("summary cache enabled", "ttl", cfg.Redis.TTL.String())
	}

	authService := auth.NewService(store, auth.Config{
		TokenTTL:          cfg.Auth.TokenTTL,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
	})

	if cfg.Auth.AdminEnabled() {
		created, err := authService.EnsureUser(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword)
		if err != nil {
			slog.Error("failed to bootstrap admin user", "error", err)
			return 1
		}
		if created {
			slog.Info("admin user created", "username", cfg.Auth.AdminUsername)
		}
	}

	limiter := core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)

	service := core.NewService(store, core.ServiceConfig{
		Retention:    cfg.Retention.Keep,
		HistoryLimit: cfg.Retention.HistoryLimit,
		Aliases:      aliases,
		Limiter:      limiter,
		Memo:         memo,
		Renderer:     report.NewPDFRenderer(cfg.Report.RowLimit),
		Timeout:      cfg.Upload.Timeout,
	})

	server := web.NewServer(cfg, web.Deps{
		Service: service,
		Auth:    authService,
		Store:   store,
		Cache:   cacheDeps,
	})

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	go core.RunPeriodic(jobCtx, "token-sweep", cfg.Auth.SweepInterval, authService.SweepExpired)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start server (uses addr from config internally); serve returns once
	// shutdown has drained, before the deferred store and cache closes run.
	slog.Info("server starting", "addr", cfg.Server.Addr())
	err = serve(server, sigCh, cfg.Server.ShutdownTimeout, func(ctx context.Context) {
		// Stop background jobs
		cancelJobs()

		// Wait for active uploads to complete (with timeout)
		if active := limiter.ActiveCount(); active > 0 {
			slog.Info("waiting for uploads to complete", "active", active)
			if err := limiter.WaitForDrain(ctx); err != nil {
				slog.Warn("uploads did not complete in time", "error", err)
			} else {
				slog.Info("all uploads completed")
			}
		}
	})
	if err != nil {
		slog.Error("server failed", "error", err)
		return 1
	}
	slog.Info("server stopped")
	return 0
}
