// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orrery starts the Orrery game server.
//
// Configuration is read from ~/.orrery/orrery.yaml (created with defaults
// on first run) and can be overridden per-deployment with environment
// variables.
//
// # Environment Variables
//
//   - ORRERY_CONFIG: Config file path (default: ~/.orrery/orrery.yaml)
//   - ORRERY_HTTP_ADDR: HTTP listen address (overrides server.http_addr)
//   - ORRERY_TCP_ADDR: TCP listen address (overrides server.tcp_addr)
//   - ORRERY_SNAPSHOT_PATH: Snapshot store directory (overrides snapshots.path)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (overrides server.otlp_endpoint)
//
// # Usage
//
//	# Build
//	go build -o orrery ./cmd/orrery
//
//	# Run
//	./orrery
package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/AleutianAI/orrery/pkg/config"
	"github.com/AleutianAI/orrery/pkg/logging"
	"github.com/AleutianAI/orrery/services/relay"
)

func main() {
	configPath := os.Getenv("ORRERY_CONFIG")
	if configPath == "" {
		var err error
		configPath, err = config.DefaultPath()
		if err != nil {
			log.Fatalf("Failed to resolve config path: %v", err)
		}
	}

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", configPath, err)
	}
	applyEnvOverrides(&cfg)

	closeLogs, err := logging.Setup(logging.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Service: "orrery",
	})
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer func() {
		if err := closeLogs(); err != nil {
			log.Printf("Log close error: %v", err)
		}
	}()

	slog.Info("Starting orrery",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"tcp_addr", cfg.Server.TCPAddr,
		"tick_rate", cfg.Sim.TickRate,
	)

	svc, err := relay.New(relay.FromConfig(cfg, configPath))
	if err != nil {
		log.Fatalf("Failed to create relay: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Relay error: %v", err)
	}
}

// applyEnvOverrides applies per-deployment environment variables on top
// of the file configuration.
func applyEnvOverrides(cfg *config.OrreryConfig) {
	cfg.Server.HTTPAddr = getEnvString("ORRERY_HTTP_ADDR", cfg.Server.HTTPAddr)
	cfg.Server.TCPAddr = getEnvString("ORRERY_TCP_ADDR", cfg.Server.TCPAddr)
	cfg.Snapshots.Path = getEnvString("ORRERY_SNAPSHOT_PATH", cfg.Snapshots.Path)
	cfg.Server.OTLPEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Server.OTLPEndpoint)
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
