package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/critic/internal/episodes"
)

// Default configuration constants.
const (
	defaultSessions       = 16
	defaultBatches        = 200
	defaultRecords        = 12
	defaultSeed           = 42
	defaultWorkers        = 2 // multiplier for runtime.NumCPU()
	defaultTimeout        = 30 * time.Second
	defaultRunTimeout     = 10 * time.Minute
	defaultReplayFraction = 0.05
	defaultTwins          = 3
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		sessions = flag.Int("sessions", defaultSessions, "Number of sessions to drive")
		batches  = flag.Int("batches", defaultBatches, "Batches submitted per session")
		records  = flag.Int("records", defaultRecords, "Records per batch")
		seed     = flag.Int64("seed", defaultSeed, "Seed for deterministic batch generation")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		stream   = flag.Bool("stream", false, "Submit batches over the WebSocket stream instead of HTTP")
		replay   = flag.Float64("replay", defaultReplayFraction, "Fraction of batches replayed for duplicate checks")
		twins    = flag.Int("twins", defaultTwins, "Number of sessions re-driven for determinism checks")
		output   = flag.String("output", "", "Output file for the run report (default: episode_report_TIMESTAMP.md)")
		logFile  = flag.String("log", "", "Log file for driver output (default: episode_log_TIMESTAMP.log)")
		verbose  = flag.Bool("verbose", false, "Enable verbose logging")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		episodes.ShowHelp()
		return
	}

	// Setup logging
	if err := episodes.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	// Create run configuration
	config := &episodes.Config{
		BaseURL:         *baseURL,
		Sessions:        *sessions,
		Batches:         *batches,
		RecordsPerBatch: *records,
		Seed:            *seed,
		Workers:         *workers,
		Timeout:         *timeout,
		UseStream:       *stream,
		ReplayFraction:  *replay,
		ReplaySessions:  *twins,
		OutputFile:      *output,
		LogFile:         *logFile,
		Verbose:         *verbose,
	}

	// Run the episodes
	if err := episodes.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Episode run failed: " + err.Error() + "\n")
		return
	}
}
