// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"runtime"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// GraphBackend selects the graph store: "memory" or "bolt".
	GraphBackend string `koanf:"graph_backend"`

	// BoltURI, BoltUser and BoltPassword configure the bolt graph backend.
	BoltURI      string `koanf:"bolt_uri"`
	BoltUser     string `koanf:"bolt_user"`
	BoltPassword string `koanf:"bolt_password"`

	// Partitions sets the number of transport partitions consumed; one
	// ingestion worker runs per partition.
	Partitions int `koanf:"partitions"`

	// QueueCapacity bounds each partition's in-memory message buffer.
	QueueCapacity int `koanf:"queue_capacity"`

	// DedupeSize sets the size of the episode idempotency index.
	DedupeSize int `koanf:"dedupe_size"`

	// ShardCount configures the number of shards in the in-memory graph store.
	ShardCount int `koanf:"shard_count"`

	// ResolveConfidenceThreshold is the minimum scoring confidence accepted
	// when deterministic entity resolution keys are absent.
	ResolveConfidenceThreshold float64 `koanf:"resolve_confidence_threshold"`

	// MutateMaxRetries and MutateBackoffBaseMS control write-conflict retries.
	MutateMaxRetries    int `koanf:"mutate_max_retries"`
	MutateBackoffBaseMS int `koanf:"mutate_backoff_base_ms"`

	// Community detection job settings.
	CommunityIntervalMS    int `koanf:"community_interval_ms"`
	CommunityWindowHours   int `koanf:"community_window_hours"`
	CommunityMaxIterations int `koanf:"community_max_iterations"`

	// Rule engine settings.
	RuleTickMS            int `koanf:"rule_tick_ms"`
	RuleMinSamples        int `koanf:"rule_min_samples"`
	RuleFailureAlertCount int `koanf:"rule_failure_alert_count"`

	// Action dispatch settings.
	DispatchTimeoutMS     int `koanf:"dispatch_timeout_ms"`
	DispatchMaxRetries    int `koanf:"dispatch_max_retries"`
	DispatchBackoffBaseMS int `koanf:"dispatch_backoff_base_ms"`

	// MaxTraversalHops caps graph traversal queries.
	MaxTraversalHops int `koanf:"max_traversal_hops"`
}

// New creates a Config with defaults.
func New() *Config {
	c := &Config{
		LogLevel:                   "info",
		Addr:                       ":9080",
		GraphBackend:               "memory",
		BoltURI:                    "bolt://localhost:7687",
		Partitions:                 runtime.NumCPU(),
		QueueCapacity:              100_000,
		DedupeSize:                 500_000,
		ShardCount:                 8,
		ResolveConfidenceThreshold: 0.75,
		MutateMaxRetries:           5,
		MutateBackoffBaseMS:        5,
		CommunityIntervalMS:        60_000,
		CommunityWindowHours:       24,
		CommunityMaxIterations:     20,
		RuleTickMS:                 30_000,
		RuleMinSamples:             30,
		RuleFailureAlertCount:      3,
		DispatchTimeoutMS:          2_000,
		DispatchMaxRetries:         4,
		DispatchBackoffBaseMS:      100,
		MaxTraversalHops:           6,
	}
	return c
}
