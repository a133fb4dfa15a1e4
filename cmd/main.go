package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/critic/internal/adapters/http/api"
	"github.com/okian/critic/internal/adapters/http/stream"
	"github.com/okian/critic/internal/adapters/http/swagger"
	"github.com/okian/critic/internal/adapters/mq/worker"
	"github.com/okian/critic/internal/adapters/repository"
	"github.com/okian/critic/internal/adapters/repository/clickhouse"
	"github.com/okian/critic/internal/adapters/repository/postgres"
	app "github.com/okian/critic/internal/app"
	"github.com/okian/critic/internal/config"
	"github.com/okian/critic/pkg/logger"
	"github.com/okian/critic/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			logger.Error(err)
		}
	}()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Build the external diagnostics sinks named in the configuration.
	// The cleanup closes connection pools after the sinks have drained.
	sinks, cleanup, err := buildSinks(ctx, cfg)
	if err != nil {
		os.Stderr.WriteString("failed to build diagnostics sinks: " + err.Error() + "\n")
		return
	}
	defer cleanup()

	// Create and start the service with configuration options
	opts := []app.Option{
		app.WithLogger(loggerInstance),
		app.WithDiscountRate(cfg.DiscountRate),
		app.WithAggregator(cfg.Aggregator),
		app.WithWindowSize(cfg.WindowSize),
		app.WithClipRange(cfg.ClipMin, cfg.ClipMax),
		app.WithNormalize(cfg.Normalize),
		app.WithLatencyBudget(time.Duration(cfg.LatencyBudgetMS) * time.Millisecond),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithQueueSize(cfg.DiagQueueSize),
		app.WithWorkerCount(cfg.SinkWorkerCount),
		app.WithHistorySize(cfg.HistorySize),
	}
	for _, sink := range sinks {
		opts = append(opts, app.WithSink(sink))
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// HTTP mux and routes.
	mux := http.NewServeMux()

	// Register API docs under /api-docs
	swagger.Register(ctx, mux)

	// Register business API routes with the service dependency.
	apiServer := api.NewServer(svc, svc, cfg.MaxHistoryLimit)
	apiServer.Register(ctx, mux)

	// Register the reward stream under /stream/
	stream.NewHandler(svc, stream.WithLogger(loggerInstance.Named("stream"))).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// buildSinks constructs the optional diagnostics sinks. Stores that
// implement Close are closed by the service once drained; the returned
// cleanup only releases the connections underneath them.
func buildSinks(ctx context.Context, cfg *config.Config) ([]worker.Sink, func(), error) {
	var sinks []worker.Sink
	var closers []func()

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.JSONLPath != "" {
		store, err := repository.NewJSONLStore(cfg.JSONLPath)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("jsonl sink: %w", err)
		}
		sinks = append(sinks, store)
	}

	if cfg.PostgresDSN != "" {
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres sink: %w", err)
		}
		store := postgres.NewDiagnosticStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			cleanup()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		sinks = append(sinks, store)
		closers = append(closers, pool.Close)
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := clickhouse.NewConn(ctx, cfg.ClickHouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse sink: %w", err)
		}
		store := clickhouse.NewDiagnosticStore(conn)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = conn.Close()
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		sinks = append(sinks, store)
		closers = append(closers, func() { _ = conn.Close() })
	}

	return sinks, cleanup, nil
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval) // Update every 10 seconds
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	// Update memory usage
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	// Update goroutine count
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	// Update GC pause time
	if m.NumGC > 0 {
		// Calculate average GC pause time
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
