package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"stock_sim/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("🕵️ Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Tick driver (single goroutine, non-overlapping ticks)
	go bootstrap.Scheduler.Run(ctx)
	slog.InfoContext(ctx, "✅ Tick scheduler started")

	// 5. Tick stream for external renderers
	if addr := bootstrap.Config.Stream.ListenAddr; addr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", bootstrap.Hub.HandleWS)
		server := &http.Server{Addr: addr, Handler: mux}
		go func() {
			slog.Info("✅ Tick stream listening", slog.String("addr", addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Tick stream server failed", slog.Any("error", err))
			}
		}()
		defer server.Close()
	}

	slog.InfoContext(ctx, "✨ Market simulator fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.InfoContext(ctx, "👋 Shutting down gracefully...")
}
