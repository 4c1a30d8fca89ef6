package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"liquiditygauge/config"
	nativecommon "liquiditygauge/native/common"
	"liquiditygauge/observability/logging"
	"liquiditygauge/observability/telemetry"
)

func main() {
	cfgPath := flag.String("config", "./gaugesd.toml", "path to the daemon configuration")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	// Validate already accepted the level.
	level, _ := logging.ParseLevel(cfg.Logging.Level)
	output := logging.Output(cfg.Logging.File, logging.FileRotation{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	logger := logging.SetupWriter(output, cfg.Logging.Service, cfg.Logging.Env, level)

	if err := run(cfg, logger); err != nil {
		logger.Error("gaugesd stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	telemetryCfg := telemetry.Config{
		ServiceName: cfg.Logging.Service,
		Environment: cfg.Logging.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Traces:      cfg.Telemetry.Traces,
		Metrics:     cfg.Telemetry.Metrics,
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	db, err := openDatabase(cfg.Server.DataDir)
	if err != nil {
		return err
	}
	n, err := buildNode(cfg, db, nativecommon.SystemClock{}, logger)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			logger.Warn("close database", slog.Any("error", err))
		}
	}()

	handler, err := n.handler(cfg, logger)
	if err != nil {
		return err
	}
	if telemetryCfg.Enabled() {
		handler = otelhttp.NewHandler(handler, cfg.Logging.Service)
	}

	logger.Info("gaugesd configured",
		slog.String("gauge", n.gauge.Address().Hex()),
		slog.String("dataDir", cfg.Server.DataDir),
		slog.Bool("telemetry", telemetryCfg.Enabled()),
		logging.MaskField("adminSecret", adminSecret(cfg)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go n.watchEpochs(ctx, time.Minute)

	server := &http.Server{
		Addr:              cfg.Server.ListenAddress,
		Handler:           handler,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", cfg.Server.ListenAddress)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("address", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.Any("error", err))
	}
	return nil
}
