// Command minumd runs the application server: it loads configuration,
// registers a handful of example routes and a static asset directory,
// and serves until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/minumserver/minum/internal/config"
	"github.com/minumserver/minum/internal/dispatcher"
	"github.com/minumserver/minum/internal/httprequest"
	"github.com/minumserver/minum/internal/logging"
	"github.com/minumserver/minum/internal/metrics"
	"github.com/minumserver/minum/internal/registry"
	"github.com/minumserver/minum/internal/response"
	"github.com/minumserver/minum/internal/security"
	"github.com/minumserver/minum/internal/server"
	"github.com/minumserver/minum/internal/startline"
	"github.com/minumserver/minum/internal/staticfiles"
)

func main() {
	cfg := config.Default()
	if path := os.Getenv("MINUM_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger := logging.New(os.Stdout, "info")

	reg := registry.New()
	reg.Register(startline.GET, "/health", handleHealth)
	reg.Register(startline.GET, "/", handleHome)

	static := staticfiles.New()
	if cfg.StaticFilesDirectory != "" {
		if err := static.Build(cfg.StaticFilesDirectory); err != nil {
			logger.Warn("failed to build static asset cache", logging.Field{Key: "error", Value: err.Error()}, logging.Field{Key: "dir", Value: cfg.StaticFilesDirectory})
		}
	}

	brig := security.NewBrig(cfg.IsTheBrigEnabled, cfg.BrigSweepInterval())
	inv := security.NewUnderInvestigation(cfg.SuspiciousPaths)
	m := metrics.New()

	d := dispatcher.New(reg, static, brig, inv, logger, m, cfg)
	srv := server.New(cfg, d, logger, nil)

	go func() {
		logger.Info("starting server", logging.Field{Key: "host", Value: cfg.HostName}, logging.Field{Key: "port", Value: cfg.ServerPort})
		if err := srv.ListenAndServe(); err != nil {
			logger.Error("server stopped", logging.Field{Key: "error", Value: err.Error()})
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}

	snap := m.Snapshot()
	logger.Info("stopped",
		logging.Field{Key: "requests_total", Value: snap.RequestsTotal},
		logging.Field{Key: "errors_total", Value: snap.ErrorsTotal},
	)
}

func handleHealth(httprequest.Request) response.Response {
	return response.JSON(response.StatusOK, []byte(`{"status":"healthy"}`))
}

func handleHome(httprequest.Request) response.Response {
	return response.Text(response.StatusOK, "minum is running")
}
