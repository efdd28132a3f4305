// Package main serves the results API: run backtests over HTTP, browse stored
// runs and reports, verify runs by replay, and stream trades over a websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"options-spread-lab/internal/api"
	"options-spread-lab/internal/app"
	"options-spread-lab/internal/backtest"
	"options-spread-lab/internal/config"
	"options-spread-lab/internal/logging"
	"options-spread-lab/internal/observability"
	"options-spread-lab/internal/reporting"
	"options-spread-lab/internal/verification"
)

const shutdownTimeout = 10 * time.Second

func main() {
	envFile := flag.String("env", ".env", "dotenv file with OSL_* settings")
	addr := flag.String("addr", "", "HTTP listen address (overrides OSL_HTTP_ADDR)")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.App.HTTPAddr = *addr
	}

	logger, err := logging.New(cfg.App.LogLevel, cfg.App.LogFormat, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(2)
	}
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := app.Open(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatalf("open: %v", err)
	}
	defer env.Close()

	hub := api.NewHub(observability.DefaultMetrics, logger)
	runner, err := backtest.NewRunner(env.Manager, env.Provider, env.Store, logger, backtest.WithSinks(hub))
	if err != nil {
		logger.Fatalf("runner: %v", err)
	}

	srv := api.NewServer(api.Deps{
		Runner:    runner,
		Store:     env.Store,
		Generator: reporting.NewGenerator(env.Store, cfg.Strategy),
		Verifier:  verification.NewReplayVerifier(env.Store, env.Manager),
		Hub:       hub,
		Location:  cfg.Strategy.Location(),
		Log:       logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.App.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.App.HTTPAddr).Info("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Errorf("HTTP server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
