package episodes

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Progress reporting constants.
const (
	reportInterval = 1 * time.Second
)

// episodeResult holds one episode's acknowledgements in submission
// order.
type episodeResult struct {
	Acks []Ack
}

// submitCounters aggregates submission progress across workers.
type submitCounters struct {
	total      int
	submitted  atomic.Int64
	computed   atomic.Int64
	duplicate  atomic.Int64
	failed     atomic.Int64
	records    atomic.Int64
	bounds     atomic.Int64
	lastReport atomic.Int64
}

// count records the outcome of one batch.
func (c *submitCounters) count(batch Batch, ack Ack, result string) {
	c.submitted.Add(1)
	c.records.Add(int64(len(batch.Records)))

	switch result {
	case resultComputed:
		c.computed.Add(1)
	case resultDuplicate:
		c.duplicate.Add(1)
	default:
		c.failed.Add(1)
	}

	if ack.Reward != nil && !rewardInBounds(*ack.Reward) {
		c.bounds.Add(1)
	}
}

// report prints progress at most once per reportInterval. The CAS on
// lastReport lets exactly one worker claim each report slot.
func (c *submitCounters) report(verbose bool) {
	now := time.Now().UnixNano()
	last := c.lastReport.Load()
	if now-last < int64(reportInterval) || !c.lastReport.CompareAndSwap(last, now) {
		return
	}

	total := c.submitted.Load()
	comp := c.computed.Load()
	dup := c.duplicate.Load()
	fail := c.failed.Load()

	if verbose {
		log.Printf("📊 Progress: %d/%d batches (computed: %d, duplicate: %d, failed: %d)",
			total, c.total, comp, dup, fail)
	} else {
		fmt.Printf("\r📤 Submitted: %d/%d (computed: %d, duplicate: %d, failed: %d)",
			total, c.total, comp, dup, fail)
	}
}

// submitEpisodes drives every episode concurrently. Workers take whole
// episodes, never single batches, so batches within a session always
// arrive in order; the normalizer state depends on that order.
func submitEpisodes(ctx context.Context, config *Config, plans []Episode, stats *Stats) ([]episodeResult, error) {
	transport := "http"
	if config.UseStream {
		transport = "stream"
	}

	totalBatches := 0
	for i := range plans {
		totalBatches += len(plans[i].Batches)
	}

	log.Printf("📤 Submitting %d batches across %d sessions with %d workers over %s...",
		totalBatches, len(plans), config.Workers, transport)

	client := newHTTPClient(config.Timeout)
	results := make([]episodeResult, len(plans))
	counters := &submitCounters{total: totalBatches}
	counters.lastReport.Store(time.Now().UnixNano())

	episodeChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for index := range episodeChan {
				select {
				case <-ctx.Done():
					return
				default:
					results[index] = episodeResult{
						Acks: driveEpisode(ctx, config, client, plans[index], counters),
					}
				}
			}
		}()
	}

	// Send episode indices to workers
	go func() {
		defer close(episodeChan)
		for i := range plans {
			select {
			case <-ctx.Done():
				return
			case episodeChan <- i:
			}
		}
	}()

	wg.Wait()

	// Final progress report
	if !config.Verbose {
		fmt.Println() // New line after progress indicator
	}

	stats.BatchesSubmitted = int(counters.submitted.Load())
	stats.BatchesComputed = int(counters.computed.Load())
	stats.BatchesDuplicate = int(counters.duplicate.Load())
	stats.BatchesFailed = int(counters.failed.Load())
	stats.RecordsSubmitted = int(counters.records.Load())
	stats.BoundsViolations = int(counters.bounds.Load())

	log.Printf(`✅ Batch submission completed:
   Computed: %d
   Duplicate: %d
   Failed: %d
`, stats.BatchesComputed, stats.BatchesDuplicate, stats.BatchesFailed)

	return results, nil
}

// driveEpisode submits one episode's batches in order over the
// configured transport.
func driveEpisode(ctx context.Context, config *Config, client *HTTPClient, ep Episode, counters *submitCounters) []Ack {
	if config.UseStream {
		return driveEpisodeStream(ctx, config, ep, counters)
	}
	return driveEpisodeHTTP(ctx, config, client, ep, counters)
}

// driveEpisodeHTTP posts each batch to the rewards endpoint.
func driveEpisodeHTTP(ctx context.Context, config *Config, client *HTTPClient, ep Episode, counters *submitCounters) []Ack {
	acks := make([]Ack, len(ep.Batches))
	for j, batch := range ep.Batches {
		select {
		case <-ctx.Done():
			return acks
		default:
		}

		ack, result := submitBatch(ctx, client, config.BaseURL, ep.SessionID, batch)
		acks[j] = ack
		counters.count(batch, ack, result)
		counters.report(config.Verbose)
	}
	return acks
}

// driveEpisodeStream sends each batch as a frame over one stream
// connection and waits for its ack before the next frame.
func driveEpisodeStream(ctx context.Context, config *Config, ep Episode, counters *submitCounters) []Ack {
	acks := make([]Ack, len(ep.Batches))

	sc, err := dialStream(ctx, config.BaseURL, ep.SessionID)
	if err != nil {
		log.Printf("⚠️  Failed to dial stream for session %s: %v", ep.SessionID, err)
		for _, batch := range ep.Batches {
			counters.count(batch, Ack{}, resultFailed)
		}
		return acks
	}
	defer func() {
		if err := sc.Close(); err != nil {
			log.Printf("failed to close stream: %v", err)
		}
	}()

	for j, batch := range ep.Batches {
		select {
		case <-ctx.Done():
			return acks
		default:
		}

		ack, result := sc.submit(batch)
		acks[j] = ack
		counters.count(batch, ack, result)
		counters.report(config.Verbose)
	}
	return acks
}
