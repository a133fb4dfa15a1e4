package episodes

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/critic/pkg/logger"
)

// Diagnostics collection constants.
const (
	maxDiagFetch = 500
)

// Run executes the complete episode run.
func Run(ctx context.Context, config *Config) error {
	if config.Sessions < 1 || config.Batches < 1 || config.Workers < 1 {
		return fmt.Errorf("sessions, batches, and workers must all be at least 1")
	}

	stats := &Stats{
		StartTime: time.Now(),
	}

	logger.Get().Info(ctx, "starting critic episode run",
		logger.String("baseURL", config.BaseURL),
		logger.Int("sessions", config.Sessions),
		logger.Int("batches", config.Batches),
		logger.Int("recordsPerBatch", config.RecordsPerBatch),
		logger.Int64("seed", config.Seed),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Bool("stream", config.UseStream),
		logger.String("logFile", config.LogFile),
		logger.Any("verbose", config.Verbose))

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate the deterministic episode plans
	plans, err := generateEpisodes(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("episode generation failed: %w", err)
	}

	// Step 3: Register one session per episode
	if err := createSessions(ctx, config, plans, stats); err != nil {
		return fmt.Errorf("session creation failed: %w", err)
	}

	// Step 4: Submit batches concurrently
	results, err := submitEpisodes(ctx, config, plans, stats)
	if err != nil {
		return fmt.Errorf("batch submission failed: %w", err)
	}

	// Step 5: Replay sampled batches, expecting duplicate acks
	if err := verifyDuplicateReplay(ctx, config, plans, stats); err != nil {
		return fmt.Errorf("duplicate replay failed: %w", err)
	}

	// Step 6: Re-drive twin sessions, expecting bit-identical rewards
	if err := verifyDeterminism(ctx, config, plans, results, stats); err != nil {
		return fmt.Errorf("determinism verification failed: %w", err)
	}

	// Step 7: Let the diagnostics pipeline drain, then collect it
	logger.Get().Info(ctx, "waiting for diagnostics to drain")
	time.Sleep(DrainDelay)
	diags := collectDiagnostics(ctx, config, plans, stats)

	// Step 8: Summarize and write the report
	summary := summarize(plans, results, diags)
	displayRegimeOutcomes(summary, config.Verbose)
	if err := saveReport(ctx, config, summary, stats); err != nil {
		logger.Get().Warn(ctx, "failed to save report", logger.Error(err))
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "episode run completed")
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, config *Config) error {
	logger.Get().Info(ctx, "checking service health")

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/healthz"

	resp, err := client.Get(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close response body", logger.Error(err))
		}
	}()

	// Any 200 counts as healthy; the body is a Prometheus exposition
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}

	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// createSessions registers one session per episode and records the ids
// the service assigned.
func createSessions(ctx context.Context, config *Config, plans []Episode, stats *Stats) error {
	logger.Get().Info(ctx, "creating sessions", logger.Int("count", len(plans)))

	client := newHTTPClient(config.Timeout)
	for i := range plans {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during session creation: %w", ctx.Err())
		default:
		}

		id, err := createSession(ctx, client, config.BaseURL, "")
		if err != nil {
			return fmt.Errorf("failed to create session %d: %w", i, err)
		}
		plans[i].SessionID = id
		stats.SessionsCreated++
	}

	logger.Get().Info(ctx, "sessions created", logger.Int("count", stats.SessionsCreated))
	return nil
}

// collectDiagnostics pulls recent diagnostics for every session. A
// fetch failure only skips that session; the report covers whatever
// came back.
func collectDiagnostics(ctx context.Context, config *Config, plans []Episode, stats *Stats) []Diagnostic {
	client := newHTTPClient(config.Timeout)

	limit := minInt(config.Batches, maxDiagFetch)
	if limit < 1 {
		limit = 1
	}

	all := make([]Diagnostic, 0, limit*len(plans))
	for _, ep := range plans {
		if ep.SessionID == "" {
			continue
		}
		diags, err := fetchDiagnostics(ctx, client, config.BaseURL, ep.SessionID, limit)
		if err != nil {
			logger.Get().Warn(ctx, "failed to fetch diagnostics",
				logger.String("sessionID", ep.SessionID), logger.Error(err))
			continue
		}
		all = append(all, diags...)
	}

	stats.DiagnosticsFetched = len(all)
	logger.Get().Info(ctx, "collected diagnostics", logger.Int("records", len(all)))
	return all
}

// displayFinalStats prints the final run statistics.
func displayFinalStats(stats *Stats) {
	var successRate, batchesPerSecond float64

	if stats.BatchesSubmitted > 0 {
		successRate = float64(stats.BatchesComputed) / float64(stats.BatchesSubmitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		batchesPerSecond = float64(stats.BatchesSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("episodesPlanned", stats.EpisodesPlanned),
		logger.Int("sessionsCreated", stats.SessionsCreated),
		logger.Int("batchesSubmitted", stats.BatchesSubmitted),
		logger.Int("batchesComputed", stats.BatchesComputed),
		logger.Int("batchesDuplicate", stats.BatchesDuplicate),
		logger.Int("batchesFailed", stats.BatchesFailed),
		logger.Int("recordsSubmitted", stats.RecordsSubmitted),
		logger.Int("duplicateChecks", stats.DuplicateChecks),
		logger.Int("duplicateMisses", stats.DuplicateMisses),
		logger.Int("replayChecks", stats.ReplayChecks),
		logger.Int("replayMismatches", stats.ReplayMismatches),
		logger.Int("boundsViolations", stats.BoundsViolations),
		logger.Int("diagnosticsFetched", stats.DiagnosticsFetched),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("batchesPerSecond", batchesPerSecond))
}
