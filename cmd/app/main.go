package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // For pprof profiling
	"os"
	"os/signal"
	"syscall"
	"time"

	"signal_bridge/internal/app"
	"signal_bridge/internal/infra"
)

func main() {
	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(infra.ConfigPath()); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	cfg := bootstrap.Config

	// 2. Pprof Server (opt-in, keep it on localhost)
	if cfg.Server.PprofAddr != "" {
		go func() {
			slog.Info("Pprof server started", slog.String("addr", cfg.Server.PprofAddr))
			if err := http.ListenAndServe(cfg.Server.PprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Recorder outlives ctx; it is stopped last in Shutdown
	bootstrap.StartRecorder()

	// 5. Gateway session (connects and reconnects in the background)
	if err := bootstrap.Session.Start(ctx); err != nil {
		slog.Error("Failed to start gateway session", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("Gateway session started", slog.String("url", bootstrap.Session.URL()))

	// 6. HTTP server
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           bootstrap.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Webhook server listening", slog.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Webhook server failed", slog.Any("error", err))
			stop()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), infra.Seconds(cfg.Server.ShutdownTimeoutSec))
	defer cancel()
	if err := bootstrap.Shutdown(shutdownCtx, srv); err != nil {
		slog.Error("Shutdown incomplete", slog.Any("error", err))
	}
	slog.Info("Shutdown complete")
}
