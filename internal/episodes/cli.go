package episodes

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/okian/critic/pkg/logger"
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
		logFile = "episode_log_" + timestamp + ".log"
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

// ShowHelp prints usage information for the episode driver.
func ShowHelp() {
	os.Stdout.WriteString(`Critic Episode Driver
=====================

A concurrent driver that feeds deterministic event batches to a running
critic service and verifies reward determinism, duplicate handling, and
output bounds.

Usage:
  go run cmd/episodes/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -sessions int
        Number of sessions to drive (default 16)
  -batches int
        Batches submitted per session (default 200)
  -records int
        Records per batch (default 12)
  -seed int
        Seed for deterministic batch generation (default 42)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -stream
        Submit batches over the WebSocket stream instead of HTTP
  -replay float
        Fraction of batches replayed for duplicate checks (default 0.05)
  -twins int
        Number of sessions re-driven for determinism checks (default 3)
  -output string
        Output file for the run report (default: episode_report_TIMESTAMP.md)
  -log string
        Log file for driver output (default: episode_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Drive a local service with default settings
  go run cmd/episodes/main.go

  # Longer run over the stream transport
  go run cmd/episodes/main.go -stream -sessions 32 -batches 500

  # Reproduce a previous run exactly
  go run cmd/episodes/main.go -seed 1234 -sessions 8 -batches 100

  # Verbose run with a custom report location
  go run cmd/episodes/main.go -verbose -output reports/nightly.md
`)
}
