package config

import (
	"context"
	"errors"
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
//  2. file (YAML) if TEMPOGRAPH_CONFIG is set
//  3. env (prefix TEMPOGRAPH_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("TEMPOGRAPH_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// Environment variables: TEMPOGRAPH_ADDR, TEMPOGRAPH_QUEUE_CAPACITY, ...
	// Map env keys like TEMPOGRAPH_QUEUE_CAPACITY -> queue_capacity (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("TEMPOGRAPH_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "tempograph_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	// Basic validation
	if cfg.Addr == "" {
		return nil, errors.New("addr must not be empty")
	}
	switch cfg.GraphBackend {
	case "memory", "bolt":
	default:
		return nil, errors.New("graph_backend must be memory or bolt")
	}
	if cfg.ResolveConfidenceThreshold < 0 || cfg.ResolveConfidenceThreshold > 1 {
		return nil, errors.New("resolve_confidence_threshold must be within [0, 1]")
	}
	return &cfg, nil
}
