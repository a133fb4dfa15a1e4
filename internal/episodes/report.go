package episodes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/critic/pkg/logger"
)

// File permission constants.
const (
	directoryPermission  = 0750
	reportFilePermission = 0600
)

// Constants for latency conversion.
const (
	nanosPerMilli = 1e6
)

// Distribution describes one sample of values.
type Distribution struct {
	Count  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	P50    float64
	P90    float64
	P99    float64
}

// RegimeSummary aggregates reward outcomes for one value regime.
type RegimeSummary struct {
	Regime  string
	Batches int
	Mean    float64
	StdDev  float64
}

// Summary aggregates the run's reward and latency distributions.
type Summary struct {
	Rewards         Distribution
	Raw             Distribution
	LatencyMillis   Distribution
	Regimes         []RegimeSummary
	WarningCounts   map[string]int
	NormalizedShare float64
}

// describe computes summary statistics over a sample. Quantiles use the
// empirical distribution, which needs the sample sorted.
func describe(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	return Distribution{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		StdDev: stat.StdDev(sorted, nil),
		Min:    floats.Min(sorted),
		Max:    floats.Max(sorted),
		P50:    stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P90:    stat.Quantile(0.9, stat.Empirical, sorted, nil),
		P99:    stat.Quantile(0.99, stat.Empirical, sorted, nil),
	}
}

// summarize folds acknowledgements and diagnostics into the run
// summary. Latencies come from diagnostics because acknowledgements do
// not carry timing.
func summarize(plans []Episode, results []episodeResult, diags []Diagnostic) *Summary {
	var rewards, raws []float64
	normalized := 0
	regimeRewards := make(map[string][]float64)

	for i := range plans {
		if i >= len(results) {
			break
		}
		for _, ack := range results[i].Acks {
			if ack.Reward == nil {
				continue
			}
			rewards = append(rewards, ack.Reward.Value)
			raws = append(raws, ack.Reward.Raw)
			if ack.Reward.Normalized {
				normalized++
			}
			regimeRewards[plans[i].Regime] = append(regimeRewards[plans[i].Regime], ack.Reward.Value)
		}
	}

	latencies := make([]float64, 0, len(diags))
	warnings := make(map[string]int)
	for _, d := range diags {
		latencies = append(latencies, float64(d.Elapsed)/nanosPerMilli)
		for _, w := range d.Warnings {
			warnings[w]++
		}
	}

	regimes := make([]RegimeSummary, 0, len(regimeRewards))
	for name, values := range regimeRewards {
		regimes = append(regimes, RegimeSummary{
			Regime:  name,
			Batches: len(values),
			Mean:    stat.Mean(values, nil),
			StdDev:  stat.StdDev(values, nil),
		})
	}
	sort.Slice(regimes, func(i, j int) bool { return regimes[i].Mean > regimes[j].Mean })

	share := 0.0
	if len(rewards) > 0 {
		share = float64(normalized) / float64(len(rewards))
	}

	return &Summary{
		Rewards:         describe(rewards),
		Raw:             describe(raws),
		LatencyMillis:   describe(latencies),
		Regimes:         regimes,
		WarningCounts:   warnings,
		NormalizedShare: share,
	}
}

// saveReport writes the run report as markdown.
func saveReport(ctx context.Context, config *Config, summary *Summary, stats *Stats) error {
	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "episode_report_" + timestamp + ".md"
	}

	// Ensure the directory exists
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	var b strings.Builder
	writeReport(&b, config, summary, stats)

	if err := os.WriteFile(filename, []byte(b.String()), reportFilePermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Get().Info(ctx, "report saved", logger.String("filename", filename))
	return nil
}

// writeReport renders the markdown document.
func writeReport(b *strings.Builder, config *Config, summary *Summary, stats *Stats) {
	transport := "http"
	if config.UseStream {
		transport = "stream"
	}

	fmt.Fprintf(b, "# Critic Episode Run\n\n")
	fmt.Fprintf(b, "Generated: %s\n\n", time.Now().UTC().Format(time.RFC3339))

	fmt.Fprintf(b, "## Run\n\n")
	fmt.Fprintf(b, "| Setting | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Base URL | %s |\n", config.BaseURL)
	fmt.Fprintf(b, "| Sessions | %d |\n", config.Sessions)
	fmt.Fprintf(b, "| Batches per session | %d |\n", config.Batches)
	fmt.Fprintf(b, "| Records per batch | %d |\n", config.RecordsPerBatch)
	fmt.Fprintf(b, "| Seed | %d |\n", config.Seed)
	fmt.Fprintf(b, "| Transport | %s |\n", transport)
	fmt.Fprintf(b, "| Workers | %d |\n\n", config.Workers)

	fmt.Fprintf(b, "## Outcome\n\n")
	fmt.Fprintf(b, "| Counter | Value |\n|---|---|\n")
	fmt.Fprintf(b, "| Sessions created | %d |\n", stats.SessionsCreated)
	fmt.Fprintf(b, "| Batches submitted | %d |\n", stats.BatchesSubmitted)
	fmt.Fprintf(b, "| Batches computed | %d |\n", stats.BatchesComputed)
	fmt.Fprintf(b, "| Batches failed | %d |\n", stats.BatchesFailed)
	fmt.Fprintf(b, "| Records submitted | %d |\n", stats.RecordsSubmitted)
	fmt.Fprintf(b, "| Duplicate replays | %d |\n", stats.DuplicateChecks)
	fmt.Fprintf(b, "| Duplicate misses | %d |\n", stats.DuplicateMisses)
	fmt.Fprintf(b, "| Determinism comparisons | %d |\n", stats.ReplayChecks)
	fmt.Fprintf(b, "| Determinism mismatches | %d |\n", stats.ReplayMismatches)
	fmt.Fprintf(b, "| Bounds violations | %d |\n", stats.BoundsViolations)
	fmt.Fprintf(b, "| Diagnostics collected | %d |\n\n", stats.DiagnosticsFetched)

	switch {
	case stats.ReplayMismatches > 0:
		fmt.Fprintf(b, "**%d determinism replays diverged.** Identical inputs must produce bit-identical rewards; inspect the run log.\n\n", stats.ReplayMismatches)
	case stats.ReplayChecks > 0:
		fmt.Fprintf(b, "All %d determinism replays matched bit for bit.\n\n", stats.ReplayChecks)
	}

	fmt.Fprintf(b, "## Reward distribution\n\n")
	fmt.Fprintf(b, "| Stat | Final value | Raw aggregate |\n|---|---|---|\n")
	fmt.Fprintf(b, "| Count | %d | %d |\n", summary.Rewards.Count, summary.Raw.Count)
	fmt.Fprintf(b, "| Mean | %.6f | %.6f |\n", summary.Rewards.Mean, summary.Raw.Mean)
	fmt.Fprintf(b, "| StdDev | %.6f | %.6f |\n", summary.Rewards.StdDev, summary.Raw.StdDev)
	fmt.Fprintf(b, "| Min | %.6f | %.6f |\n", summary.Rewards.Min, summary.Raw.Min)
	fmt.Fprintf(b, "| Max | %.6f | %.6f |\n", summary.Rewards.Max, summary.Raw.Max)
	fmt.Fprintf(b, "| P50 | %.6f | %.6f |\n", summary.Rewards.P50, summary.Raw.P50)
	fmt.Fprintf(b, "| P90 | %.6f | %.6f |\n", summary.Rewards.P90, summary.Raw.P90)
	fmt.Fprintf(b, "| P99 | %.6f | %.6f |\n\n", summary.Rewards.P99, summary.Raw.P99)
	fmt.Fprintf(b, "Normalized share: %.1f%% of computed rewards went through the adaptive path.\n\n",
		summary.NormalizedShare*PercentageMultiplier)

	fmt.Fprintf(b, "## Compute latency\n\n")
	if summary.LatencyMillis.Count == 0 {
		fmt.Fprintf(b, "No diagnostics were collected.\n\n")
	} else {
		fmt.Fprintf(b, "Milliseconds per batch, measured service side (%d samples).\n\n", summary.LatencyMillis.Count)
		fmt.Fprintf(b, "| Stat | ms |\n|---|---|\n")
		fmt.Fprintf(b, "| Mean | %.4f |\n", summary.LatencyMillis.Mean)
		fmt.Fprintf(b, "| P50 | %.4f |\n", summary.LatencyMillis.P50)
		fmt.Fprintf(b, "| P90 | %.4f |\n", summary.LatencyMillis.P90)
		fmt.Fprintf(b, "| P99 | %.4f |\n", summary.LatencyMillis.P99)
		fmt.Fprintf(b, "| Max | %.4f |\n\n", summary.LatencyMillis.Max)
	}

	fmt.Fprintf(b, "## Rewards by regime\n\n")
	fmt.Fprintf(b, "| Regime | Batches | Mean | StdDev |\n|---|---|---|---|\n")
	for _, regime := range summary.Regimes {
		fmt.Fprintf(b, "| %s | %d | %+.4f | %.4f |\n",
			regime.Regime, regime.Batches, regime.Mean, regime.StdDev)
	}
	fmt.Fprintf(b, "\n")

	fmt.Fprintf(b, "## Warnings\n\n")
	if len(summary.WarningCounts) == 0 {
		fmt.Fprintf(b, "None recorded.\n")
		return
	}
	names := make([]string, 0, len(summary.WarningCounts))
	for name := range summary.WarningCounts {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(b, "| Warning | Count |\n|---|---|\n")
	for _, name := range names {
		fmt.Fprintf(b, "| %s | %d |\n", name, summary.WarningCounts[name])
	}
}
