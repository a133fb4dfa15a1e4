package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/okian/critic/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with defaults only", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.DiscountRate, convey.ShouldEqual, 0.05)
				convey.So(cfg.WindowSize, convey.ShouldEqual, 100)
				convey.So(cfg.Normalize, convey.ShouldBeTrue)
				convey.So(cfg.LatencyBudgetMS, convey.ShouldEqual, 5)
				convey.So(cfg.DiagQueueSize, convey.ShouldEqual, 100_000)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("CRITIC_ADDR", ":8080")
			_ = os.Setenv("CRITIC_DISCOUNT_RATE", "0.1")
			_ = os.Setenv("CRITIC_WINDOW_SIZE", "50")
			_ = os.Setenv("CRITIC_NORMALIZE", "false")
			_ = os.Setenv("CRITIC_SINK_WORKER_COUNT", "8")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.DiscountRate, convey.ShouldEqual, 0.1)
				convey.So(cfg.WindowSize, convey.ShouldEqual, 50)
				convey.So(cfg.Normalize, convey.ShouldBeFalse)
				convey.So(cfg.SinkWorkerCount, convey.ShouldEqual, 8)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
discount_rate: 0.2
window_size: 25
clip_min: -0.5
clip_max: 0.5
jsonl_path: "/tmp/diag.jsonl"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("CRITIC_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DiscountRate, convey.ShouldEqual, 0.2)
				convey.So(cfg.WindowSize, convey.ShouldEqual, 25)
				convey.So(cfg.ClipMin, convey.ShouldEqual, -0.5)
				convey.So(cfg.ClipMax, convey.ShouldEqual, 0.5)
				convey.So(cfg.JSONLPath, convey.ShouldEqual, "/tmp/diag.jsonl")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
discount_rate: 0.2
window_size: 25
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("CRITIC_CONFIG", tmpFile)
			_ = os.Setenv("CRITIC_ADDR", ":8080")
			_ = os.Setenv("CRITIC_WINDOW_SIZE", "75")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")       // Overridden by env
				convey.So(cfg.WindowSize, convey.ShouldEqual, 75)      // Overridden by env
				convey.So(cfg.DiscountRate, convey.ShouldEqual, 0.2)   // From file
				convey.So(cfg.DiagQueueSize, convey.ShouldEqual, 100_000) // From defaults
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			invalidYaml := `invalid: yaml: content: [`
			tmpFile := createTempConfigFile(invalidYaml)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("CRITIC_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("CRITIC_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with partial YAML file", func() {
			yamlContent := `
addr: ":9090"
sink_worker_count: 4
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("CRITIC_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should merge with defaults for missing fields", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")     // From file
				convey.So(cfg.SinkWorkerCount, convey.ShouldEqual, 4) // From file
				convey.So(cfg.DiscountRate, convey.ShouldEqual, 0.05) // From defaults
				convey.So(cfg.WindowSize, convey.ShouldEqual, 100)    // From defaults
				convey.So(cfg.Normalize, convey.ShouldBeTrue)         // From defaults
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("CRITIC_WINDOW_SIZE", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestConfigLoaderValidation(t *testing.T) {
	convey.Convey("Given config validation rules", t, func() {
		ctx := context.Background()

		convey.Convey("When addr is empty", func() {
			_ = os.Setenv("CRITIC_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When discount_rate is negative", func() {
			_ = os.Setenv("CRITIC_DISCOUNT_RATE", "-0.5")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When discount_rate is zero", func() {
			_ = os.Setenv("CRITIC_DISCOUNT_RATE", "0")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then plain-sum aggregation is accepted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DiscountRate, convey.ShouldEqual, 0.0)
			})
		})

		convey.Convey("When window_size is not positive", func() {
			_ = os.Setenv("CRITIC_WINDOW_SIZE", "0")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the clip range is empty", func() {
			_ = os.Setenv("CRITIC_CLIP_MIN", "1.0")
			_ = os.Setenv("CRITIC_CLIP_MAX", "-1.0")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When latency_budget_ms is negative", func() {
			_ = os.Setenv("CRITIC_LATENCY_BUDGET_MS", "-5")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"CRITIC_CONFIG",
		"CRITIC_ADDR",
		"CRITIC_DISCOUNT_RATE",
		"CRITIC_AGGREGATOR",
		"CRITIC_WINDOW_SIZE",
		"CRITIC_CLIP_MIN",
		"CRITIC_CLIP_MAX",
		"CRITIC_NORMALIZE",
		"CRITIC_LATENCY_BUDGET_MS",
		"CRITIC_DEDUPE_SIZE",
		"CRITIC_DIAG_QUEUE_SIZE",
		"CRITIC_SINK_WORKER_COUNT",
		"CRITIC_HISTORY_SIZE",
		"CRITIC_MAX_HISTORY_LIMIT",
		"CRITIC_JSONL_PATH",
		"CRITIC_POSTGRES_DSN",
		"CRITIC_CLICKHOUSE_DSN",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "critic-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
