package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/lingoswap/backend/internal/config"
	"github.com/lingoswap/backend/internal/db"
	"github.com/lingoswap/backend/internal/handlers"
	"github.com/lingoswap/backend/internal/httpserver"
	"github.com/lingoswap/backend/internal/logging"
	"github.com/lingoswap/backend/internal/middleware"
)

const usage = "expected command: serve, migrate, seed, reconcile, inspect, or onboard-all"

// stdout receives command output; tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// Run bootstraps the LingoSwap backend application.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	case "reconcile":
		return runReconcile(ctx)
	case "inspect":
		return runInspect(ctx, args[1:])
	case "onboard-all":
		return runOnboardAll(ctx)
	default:
		return fmt.Errorf("unknown command %q (%s)", args[0], usage)
	}
}

func setupLogger(cfg config.Config) *slog.Logger {
	logger := logging.New(cfg.LogLevel, &slog.HandlerOptions{AddSource: true}, os.Stdout)
	slog.SetDefault(logger)
	return logger
}

// openPool connects to Postgres unless the memory store is selected, in which case the
// returned pool is nil.
func openPool(ctx context.Context, cfg config.Config) (db.Pool, func(), error) {
	if cfg.Store == config.StoreMemory {
		return nil, func() {}, nil
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg)

	pool, closePool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePool()

	deps, cleanup, err := buildDependencies(ctx, pool, cfg)
	if err != nil {
		_ = cleanup(ctx)
		return err
	}
	defer func() {
		if err := cleanup(context.Background()); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}()

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	handler := middleware.RequestLogger(logger)(middleware.Metrics(mux))

	srv := httpserver.New(cfg.AppPort, handler)

	logger.Info("starting http server", "port", cfg.AppPort, "store", cfg.Store, "sessionStore", cfg.SessionStore)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil {
			return err
		}
		return nil
	}

	return httpserver.Drain(srv)
}
