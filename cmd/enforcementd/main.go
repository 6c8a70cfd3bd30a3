// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command enforcementd starts the AleutianGuardian enforcement HTTP server.
//
// This is the main entry point for the containerized enforcement service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ENFORCEMENT_PORT: HTTP server port (default: 12310)
//   - ENFORCEMENT_STORE_PATH: Badger store directory (default: in-memory)
//   - GUARDIAN_CREDENTIALS_FILE: platform credential YAML file (optional)
//   - NEXTDNS_API_URL: NextDNS API base URL (default: https://api.nextdns.io)
//   - NETFLIX_API_URL: Netflix API base URL (default: https://api.netflix.com)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: guardian-otel-collector:4317)
//   - ENFORCEMENT_TRACING: "true" enables OTLP trace export (default: false)
//   - ENFORCEMENT_LOG_DIR: directory for JSON log files (default: stderr only)
//
// # Usage
//
//	# Build
//	go build -o enforcementd ./cmd/enforcementd
//
//	# Run
//	./enforcementd
//
//	# Or via container
//	podman-compose up enforcement
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianGuardian/pkg/logging"
	"github.com/AleutianAI/AleutianGuardian/services/enforcement"
)

func main() {
	// Setup structured logging
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		Service: "enforcement",
		LogDir:  os.Getenv("ENFORCEMENT_LOG_DIR"),
		JSON:    true,
	})
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	// Build configuration from environment variables
	cfg := enforcement.Config{
		Port:            getEnvInt("ENFORCEMENT_PORT", 12310),
		StorePath:       os.Getenv("ENFORCEMENT_STORE_PATH"),
		CredentialsPath: os.Getenv("GUARDIAN_CREDENTIALS_FILE"),
		NextDNSBaseURL:  getEnvString("NEXTDNS_API_URL", "https://api.nextdns.io"),
		NetflixBaseURL:  getEnvString("NETFLIX_API_URL", "https://api.netflix.com"),
		OTelEndpoint:    getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "guardian-otel-collector:4317"),
		EnableTracing:   os.Getenv("ENFORCEMENT_TRACING") == "true",
	}

	slog.Info("Starting enforcement service",
		"port", cfg.Port,
		"store_path", cfg.StorePath,
		"tracing", cfg.EnableTracing,
	)

	// Create the service with default (no-op) extension options
	// Enterprise builds will pass custom ServiceOptions here
	svc, err := enforcement.New(cfg, nil)
	if err != nil {
		log.Fatalf("Failed to create enforcement service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Enforcement service error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
