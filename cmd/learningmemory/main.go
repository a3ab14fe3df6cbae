package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mindtrail/learningmemory"
	"github.com/mindtrail/learningmemory/internal/config"
	"github.com/mindtrail/learningmemory/internal/logging"
)

func main() {
	configPath := flag.String("config", config.DefaultConfigFilename, "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfigWithPath(*configPath)
	if err != nil {
		logging.Setup(os.Stderr, "info", "text").Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Stdout carries the MCP stdio transport; logs go to stderr.
	logger := logging.Setup(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Learning Memory MCP Server - Starting...")

	srv, err := learningmemory.NewServer(learningmemory.ServerOptions{
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		logger.Error("Failed to initialize server", "error", err)
		os.Exit(1)
	}

	setupSignalHandler(srv, logger)

	logger.Info("Starting MCP server...")
	if err := srv.Start(); err != nil {
		logger.Error("MCP server failed", "error", err)
		os.Exit(1)
	}
}

// setupSignalHandler stops the service cleanly on SIGINT/SIGTERM.
func setupSignalHandler(srv *learningmemory.Server, logger *slog.Logger) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		logger.Info("Received shutdown signal, terminating gracefully...")
		_ = srv.Stop()
		os.Exit(0)
	}()
}
