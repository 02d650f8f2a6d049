// Package main is the entry point for the postboard API server.
//
// Its job is deliberately small: load configuration, set up logging, make
// sure the data directory exists, and hand off to internal/server. All
// actual behaviour lives in the internal packages.
package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/daryonoff/postboard/internal/config"
	"github.com/daryonoff/postboard/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config failed before the logger level is known; a default text
		// logger is good enough to report it.
		slog.New(slog.NewTextHandler(os.Stderr, nil)).
			Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	// SQLite needs the parent directory to exist before it can create the
	// database file.
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dir),
				slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
