// Package testevents drives a running service through a synthetic CTV
// delivery workload: it simulates ad sessions, submits them over the
// ingestion API and verifies the resulting temporal graph.
package testevents

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/adkite/tempograph/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "run_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the event generator tool.
func ShowHelp() {
	os.Stdout.WriteString(`Tempograph Event Generator
==========================

A concurrent tool that simulates CTV ad sessions against a running
service and verifies the resulting temporal graph.

Usage:
  go run cmd/test-events/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -sessions int
        Number of ad sessions to simulate (default 5000)
  -campaigns int
        Size of the campaign pool (default 20)
  -creatives int
        Size of the creative pool (default 60)
  -devices int
        Size of the device pool (default 2000)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Output file for generated events (default: generated_events_TIMESTAMP.json)
  -log string
        Log file for run output (default: run_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Run with default settings
  go run cmd/test-events/main.go

  # Run with custom parameters
  go run cmd/test-events/main.go -sessions 50000 -workers 16 -url http://localhost:8080

  # Run with a small entity pool to force dense session overlap
  go run cmd/test-events/main.go -sessions 10000 -campaigns 3 -devices 50

  # Run with verbose output and a custom log file
  go run cmd/test-events/main.go -verbose -sessions 10000 -log my_run.log
`)
}
