package config

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if CRITIC_CONFIG is set
//  3. env (prefix CRITIC_)
//
// Context is accepted to satisfy the project-wide convention; it is reserved
// for future remote providers.
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("CRITIC_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: CRITIC_ADDR, CRITIC_WINDOW_SIZE, ...
	// Map env keys like CRITIC_WINDOW_SIZE -> window_size (flat keys),
	// preserving underscores to match koanf tags on the struct.
	envProvider := env.Provider("CRITIC_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "critic_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects parameter combinations the reward pipeline cannot accept.
func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.DiscountRate < 0 || math.IsNaN(c.DiscountRate) || math.IsInf(c.DiscountRate, 0) {
		return fmt.Errorf("%w: discount_rate must be finite and non-negative, got %v", ErrInvalidConfig, c.DiscountRate)
	}
	if c.WindowSize < 1 {
		return fmt.Errorf("%w: window_size must be positive, got %d", ErrInvalidConfig, c.WindowSize)
	}
	if c.ClipMin >= c.ClipMax {
		return fmt.Errorf("%w: clip range [%v, %v] is empty", ErrInvalidConfig, c.ClipMin, c.ClipMax)
	}
	if math.IsNaN(c.ClipMin) || math.IsNaN(c.ClipMax) {
		return fmt.Errorf("%w: clip range must not contain NaN", ErrInvalidConfig)
	}
	if c.LatencyBudgetMS < 0 {
		return fmt.Errorf("%w: latency_budget_ms must not be negative, got %d", ErrInvalidConfig, c.LatencyBudgetMS)
	}
	return nil
}
