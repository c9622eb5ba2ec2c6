// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/olegiv/criminology-go/internal/cache"
	"github.com/olegiv/criminology-go/internal/config"
	"github.com/olegiv/criminology-go/internal/logging"
	"github.com/olegiv/criminology-go/internal/metrics"
	"github.com/olegiv/criminology-go/internal/middleware"
	"github.com/olegiv/criminology-go/internal/model"
	"github.com/olegiv/criminology-go/internal/scheduler"
	"github.com/olegiv/criminology-go/internal/session"
	"github.com/olegiv/criminology-go/internal/store"
	"github.com/olegiv/criminology-go/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = ""
	appBuildTime = ""
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "criminology - criminal records service\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CRIM_SECRET_KEY        Session and CSRF key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CRIM_DB_DRIVER         sqlite or postgres (default: sqlite)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CRIM_DB_PATH           SQLite database path (default: ./data/criminology.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CRIM_DATABASE_URL      Postgres connection string\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CRIM_SERVER_PORT       Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CRIM_ENV               development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  CRIM_REDIS_URL         Redis URL for the counts cache (optional)\n")
	}
	flag.Parse()

	info := version.Info{Version: appVersion, GitCommit: appGitCommit, BuildTime: appBuildTime}
	if *showVersion {
		_, _ = fmt.Printf("criminology %s\n", info.String())
		os.Exit(0)
	}

	if err := run(info); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func run(info version.Info) error {
	// .env is optional outside development
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := parseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	slog.Info("starting criminology", "version", info.String(), "env", cfg.Env)

	if cfg.DBDriver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o750); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	ctx := context.Background()
	slog.Info("initializing database", "driver", cfg.DBDriver)
	db, err := store.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}()

	slog.Info("running database migrations")
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// WARN and above also go to the event log from here on.
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(logging.NewEventLogHandler(textHandler, db))
	slog.SetDefault(logger)

	if err := store.Seed(ctx, db, store.SeedUser{
		Username: cfg.SuperuserUsername,
		Email:    cfg.SuperuserEmail,
		Password: cfg.SuperuserPassword,
	}); err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}
	slog.Info("database ready")

	counts := cache.New(cache.Config{
		RedisURL:   cfg.RedisURL,
		Prefix:     cfg.CachePrefix,
		DefaultTTL: cfg.CacheTTLDuration(),
	}, logger)
	defer func() { _ = counts.Close() }()

	sm := session.New(db, cfg.IsDevelopment())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	lp := middleware.NewLoginProtection(middleware.DefaultLoginProtectionConfig())
	defer lp.Close()

	app, err := newApp(cfg, db, counts, sm, m, lp, logger)
	if err != nil {
		return err
	}
	_ = app.events.LogSystemEvent(ctx, model.EventLevelInfo, "Application started", nil, "",
		map[string]any{"version": info.String(), "cache": cacheBackend(cfg, counts)})

	sched := scheduler.New(db, logger)
	if err := sched.Add(scheduler.ExpiredUsersJob(app.users, app.events, m, cfg.CleanupMode, cfg.CleanupSchedule, logger)); err != nil {
		return fmt.Errorf("adding cleanup job: %w", err)
	}
	retention := time.Duration(cfg.EventRetentionDays) * 24 * time.Hour
	if err := sched.Add(scheduler.PruneEventsJob(app.events, retention, logger)); err != nil {
		return fmt.Errorf("adding prune job: %w", err)
	}
	app.jobs = sched.Registry()
	sched.Start()

	router, err := app.routes(reg, info)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second, // CSV uploads
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sched.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	_ = app.events.LogSystemEvent(shutdownCtx, model.EventLevelInfo, "Application stopped", nil, "", nil)
	slog.Info("server stopped")
	return nil
}

// cacheBackend names the cache in use. A configured Redis that could not be
// reached reports the memory fallback.
func cacheBackend(cfg *config.Config, c cache.Cache) string {
	if _, ok := c.(*cache.RedisCache); ok {
		return "redis"
	}
	if cfg.UseRedisCache() {
		return "memory (redis unavailable)"
	}
	return "memory"
}
