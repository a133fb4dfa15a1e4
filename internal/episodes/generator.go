package episodes

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/okian/critic/pkg/logger"
)

// Constants for deterministic random generation.
const (
	episodeSeedStride = 1_000_003
	timestampStep     = 0.05
)

// Constants for value regime ranges.
const (
	steadyLevel       = 0.5
	steadyJitter      = 0.1
	driftStart        = -0.8
	driftSpan         = 1.6
	burstChance       = 0.1
	burstMagnitude    = 5.0
	calmJitter        = 0.05
	sparseEmptyChance = 0.25
	wideHalfRange     = 3.0
	nearZeroScale     = 0.01
)

// Constants for value regime cases.
const (
	caseSteadyPositive = 0
	caseSteadyNegative = 1
	caseAlternating    = 2
	caseDrifting       = 3
	caseBursty         = 4
	caseSparse         = 5
	caseHighVariance   = 6
	caseNearZero       = 7
	regimeCount        = 8
)

// regimeNames maps regime cases to the labels used in reports.
var regimeNames = [regimeCount]string{
	"steady_positive",
	"steady_negative",
	"alternating",
	"drifting",
	"bursty",
	"sparse",
	"high_variance",
	"near_zero",
}

// generateEpisodes builds the full deterministic plan for the run. The
// same seed always yields the same records, which is what makes the
// replay verification meaningful.
func generateEpisodes(ctx context.Context, config *Config, stats *Stats) ([]Episode, error) {
	logger.Get().Info(ctx, "generating episode plans",
		logger.Int("sessions", config.Sessions),
		logger.Int("batchesPerSession", config.Batches),
		logger.Int64("seed", config.Seed))

	plans := make([]Episode, config.Sessions)

	type planResult struct {
		index   int
		episode Episode
		err     error
	}

	resultChan := make(chan planResult, config.Sessions)

	// Each episode derives its own generator from the base seed, so the
	// plan does not depend on how workers interleave.
	workerCount := minInt(config.Workers, config.Sessions)
	perWorker := config.Sessions / workerCount

	for worker := 0; worker < workerCount; worker++ {
		start := worker * perWorker
		end := start + perWorker
		if worker == workerCount-1 {
			end = config.Sessions // Last worker gets the remainder
		}

		go func(start, end int) {
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					resultChan <- planResult{index: i, err: ctx.Err()}
					return
				default:
					resultChan <- planResult{index: i, episode: generateSingleEpisode(i, config)}
				}
			}
		}(start, end)
	}

	for i := 0; i < config.Sessions; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during episode generation: %w", ctx.Err())
		case result := <-resultChan:
			if result.err != nil {
				return nil, fmt.Errorf("failed to generate episode %d: %w", result.index, result.err)
			}
			plans[result.index] = result.episode
		}
	}

	stats.EpisodesPlanned = len(plans)
	logger.Get().Info(ctx, "generated episode plans", logger.Int("count", len(plans)))

	return plans, nil
}

// generateSingleEpisode builds one session's batches. Cycling the
// regimes by index guarantees every run covers all of them.
func generateSingleEpisode(index int, config *Config) Episode {
	rng := rand.New(rand.NewSource(config.Seed + int64(index)*episodeSeedStride))
	regime := index % regimeCount

	batches := make([]Batch, config.Batches)
	for j := range batches {
		batches[j] = Batch{
			BatchID: fmt.Sprintf("batch-%04d", j),
			Records: generateBatchRecords(rng, regime, j, config),
		}
	}

	return Episode{
		Regime:  regimeNames[regime],
		Batches: batches,
	}
}

// generateBatchRecords fills one batch with chronologically ordered
// records. Timestamps start at zero and advance by a jittered step, so
// they never decrease.
func generateBatchRecords(rng *rand.Rand, regime, batchIdx int, config *Config) []Record {
	if regime == caseSparse && rng.Float64() < sparseEmptyChance {
		return []Record{}
	}

	records := make([]Record, config.RecordsPerBatch)
	ts := 0.0
	for k := range records {
		records[k] = Record{
			Timestamp: ts,
			Value:     regimeValue(rng, regime, batchIdx, k, config.Batches),
		}
		ts += timestampStep * (1 + rng.Float64())
	}
	return records
}

// regimeValue produces one record value under the given regime.
func regimeValue(rng *rand.Rand, regime, batchIdx, recordIdx, totalBatches int) float64 {
	jitter := (rng.Float64()*2 - 1) * steadyJitter

	switch regime {
	case caseSteadyPositive:
		// Stable positive signal; warms the normalizer quickly
		return steadyLevel + jitter
	case caseSteadyNegative:
		// Mirror image of the positive regime
		return -steadyLevel + jitter
	case caseAlternating:
		// Sign flips per record, so raw sums stay near zero
		if recordIdx%2 == 1 {
			return -steadyLevel + jitter
		}
		return steadyLevel + jitter
	case caseDrifting:
		// Level walks from driftStart across the episode
		frac := 0.0
		if totalBatches > 1 {
			frac = float64(batchIdx) / float64(totalBatches-1)
		}
		return driftStart + driftSpan*frac + jitter
	case caseBursty:
		// Mostly calm with rare large spikes that should saturate tanh
		if rng.Float64() < burstChance {
			return (rng.Float64()*2 - 1) * burstMagnitude
		}
		return (rng.Float64()*2 - 1) * calmJitter
	case caseSparse:
		// Non-empty sparse batches look like the steady regime
		return steadyLevel + jitter
	case caseHighVariance:
		return (rng.Float64()*2 - 1) * wideHalfRange
	case caseNearZero:
		// Values tiny enough to keep the variance near its floor
		return (rng.Float64()*2 - 1) * nearZeroScale
	default:
		return jitter
	}
}

// minInt returns the minimum of two integers.
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
