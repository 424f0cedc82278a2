package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"manualkb/internal/config"
	"manualkb/internal/logger"
	"manualkb/internal/mcp"
	"manualkb/internal/service"
	"manualkb/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (falls back to MANUALKB_CONFIG, then built-in defaults)")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ManualKB MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
		os.Exit(0)
	}

	// stdout is reserved for the MCP protocol; everything else goes to stderr
	log.SetOutput(os.Stderr)

	// .env is optional and never overrides real environment variables
	_ = godotenv.Load()

	if *configPath == "" {
		*configPath = os.Getenv("MANUALKB_CONFIG")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.Log.Level, cfg.Log.Format)
	logg.Info("manualkb MCP server starting",
		"version", version,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName,
		"source", cfg.Source.Path,
		"backend", cfg.VectorStore.Backend)

	svc, err := service.New(cfg, logg)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer func() { _ = svc.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build the first index in the background so the server answers protocol
	// traffic immediately; get_status reports the build's progress.
	go func() {
		if err := svc.Initialize(ctx); err != nil {
			logg.Error("initial index build failed", "error", err)
			return
		}
		stats := svc.Statistics()
		logg.Info("initial index built",
			"build_id", stats.BuildID,
			"documents", stats.SourceDocuments,
			"chunks", stats.ChunksCreated,
			"duration", stats.Duration)
	}()

	server := mcp.NewServer(svc, logg)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in a goroutine
	errChan := make(chan error, 1)
	go func() {
		logg.Info("MCP server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logg.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}

	logg.Info("server stopped")
}
