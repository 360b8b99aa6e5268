// SkyRadar Web Server
// Serves the radar state as a REST API and a WebSocket frame stream
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unklstewy/skyradar/internal/app"
	"github.com/unklstewy/skyradar/internal/logging"
	"github.com/unklstewy/skyradar/pkg/config"
)

var (
	// Version information (set by build flags)
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: user config dir)")
	addr := flag.String("addr", "", "Listen address (default: server.host:server.port from config)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("skyradar-web version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	live, err := config.LoadLive(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := live.Config()

	logger, closer := logging.New(cfg.Logging, true)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, live, logger, app.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start tracker")
	}
	defer a.Close()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	listen := *addr
	if listen == "" {
		listen = cfg.Server.Addr()
	}

	srv := NewServer(a, cfg.Server, logger)
	httpServer := &http.Server{
		Addr:         listen,
		Handler:      srv,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	httpServer.RegisterOnShutdown(srv.Close)

	go func() {
		logger.Info().Str("addr", listen).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Server failed")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("Tracker stopped with error")
	}

	logger.Info().Msg("Server stopped")
}
