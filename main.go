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
	"syscall"
	"time"

	"github.com/bryan-buckman/greadersync/internal/config"
	"github.com/bryan-buckman/greadersync/internal/database"
	"github.com/bryan-buckman/greadersync/internal/greader"
	"github.com/bryan-buckman/greadersync/internal/mirror"
	"github.com/bryan-buckman/greadersync/internal/server"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var (
		configPath string
		once       bool
	)
	flag.StringVar(&configPath, "config", "", "path to config file (overrides CONFIG_PATH env)")
	flag.BoolVar(&once, "once", false, "run a single sync and exit")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	if err := run(cfg, once || cfg.Sync.RunOnce, log, prometheus.DefaultRegisterer); err != nil {
		log.Error("greadersync failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, once bool, log *slog.Logger, reg prometheus.Registerer) error {
	log.Info("starting greadersync", "env", cfg.Env, "db", cfg.DB.Driver)

	db, err := openStore(cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	log.Info("database ready", "type", db.DatabaseType())

	session, err := greader.New(cfg.Reader.Username, cfg.Reader.Password, cfg.Reader.URL,
		greader.WithHTTPClient(&http.Client{Timeout: cfg.Reader.Timeout}),
		greader.WithLogger(log.With("component", "greader")),
	)
	if err != nil {
		return fmt.Errorf("reader session: %w", err)
	}

	m := mirror.New(session, db, mirror.Options{
		MaxPages:     cfg.Sync.MaxPages,
		RequestDelay: cfg.Sync.RequestDelay,
		Metrics:      mirror.NewMetrics(reg),
		Logger:       log.With("component", "mirror"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		res, err := m.Sync(ctx)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		log.Info("sync done",
			"pages", res.Pull.Pages,
			"new_items", res.Pull.NewItems,
			"read_elsewhere", res.Pull.Reconciled,
			"pushed", res.Push.Pushed,
			"pending", res.Push.Pending)
		return nil
	}

	poller := mirror.NewPoller(m, db)
	poller.Start()
	defer poller.Stop()

	srv := server.New(db, m, log.With("component", "server"))
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.HTTP.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	log.Info("stopped")
	return runErr
}

func openStore(cfg config.DBConfig) (database.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return database.NewPostgres(cfg.URL)
	default:
		return database.New(cfg.Path)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	return log
}
