package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):.
//  1. defaults (New())
//  2. file (YAML) if BREWTASTE_CONFIG is set
//  3. env (prefix BREWTASTE_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("BREWTASTE_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: BREWTASTE_ADDR, BREWTASTE_BATCH_SIZE, ...
	// Map env keys like BREWTASTE_BATCH_SIZE -> batch_size (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("BREWTASTE_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "brewtaste_")
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

	// Basic validation
	if cfg.Addr == "" {
		return nil, fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if cfg.Store != "memory" && cfg.Store != "mongo" {
		return nil, fmt.Errorf("%w: store must be memory or mongo, got %q", ErrInvalidConfig, cfg.Store)
	}
	if cfg.Store == "mongo" && cfg.MongoURI == "" {
		return nil, fmt.Errorf("%w: mongo_uri required when store is mongo", ErrInvalidConfig)
	}
	if cfg.FullUpdateRatio <= 0 || cfg.FullUpdateRatio > 1 {
		return nil, fmt.Errorf("%w: full_update_ratio must be in (0,1]", ErrInvalidConfig)
	}
	return &cfg, nil
}
