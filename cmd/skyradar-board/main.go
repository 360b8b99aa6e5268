package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/rs/zerolog"

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
	showVersion := flag.Bool("version", false, "Show version information")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("skyradar-board version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	live, err := config.LoadLive(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := live.Config()

	// Log to file and to the log panel; the terminal belongs to tview
	logs := newLogPanel(200)
	logger, closer := logging.NewWithWriters(cfg.Logging, zerolog.ConsoleWriter{
		Out:        logs,
		NoColor:    true,
		TimeFormat: "15:04:05",
	})
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, live, logger, app.Options{})
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	board := NewBoard(a, logs)
	if err := board.Run(cfg.UI.FPS); err != nil {
		logger.Error().Err(err).Msg("UI error")
	}

	cancel()
	if err := <-done; err != nil {
		logger.Error().Err(err).Msg("Tracker stopped with error")
	}
}

// printHelp prints usage information
func printHelp() {
	fmt.Println("skyradar-board - aircraft table for SkyRadar")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  skyradar-board [options]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to configuration file (default: <user config dir>/skyradar/config.json)")
	fmt.Println("  -version")
	fmt.Println("        Show version information")
	fmt.Println("  -help")
	fmt.Println("        Show this help message")
	fmt.Println()
	fmt.Println("KEYBOARD SHORTCUTS:")
	fmt.Println("    ↑/↓ or j/k     Select aircraft")
	fmt.Println("    r              Refresh now")
	fmt.Println("    a              Toggle auto refresh")
	fmt.Println("    o              Cycle sort order (range, altitude, callsign, age)")
	fmt.Println("    +/-            Shrink/grow the highlighted range")
	fmt.Println("    q or Esc       Quit")
	fmt.Println()
	fmt.Println("ENVIRONMENT:")
	fmt.Println("  Every setting can be overridden with SKYRADAR_<SECTION>_<KEY>,")
	fmt.Println("  e.g. SKYRADAR_ADSB_PROVIDER=opensky or SKYRADAR_REFRESH_INTERVAL_SECONDS=45")
}
