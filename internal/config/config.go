// Package config loads vigil's root YAML configuration. Each internal
// package owns its Config type and defaults; this package composes them
// so a single file drives the whole binary.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nexus-trading/vigil/internal/bundle"
	"github.com/nexus-trading/vigil/internal/bus"
	"github.com/nexus-trading/vigil/internal/cache"
	"github.com/nexus-trading/vigil/internal/enrich"
	"github.com/nexus-trading/vigil/internal/filter"
	"github.com/nexus-trading/vigil/internal/guard"
	"github.com/nexus-trading/vigil/internal/momentum"
	"github.com/nexus-trading/vigil/internal/profiler"
	"github.com/nexus-trading/vigil/internal/providers"
	"github.com/nexus-trading/vigil/internal/scoring"
)

// Config is the root configuration structure for vigil.
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	HTTP       HTTPConfig       `yaml:"http"`

	Filter        filter.Config                 `yaml:"filter"`
	Cache         cache.Config                  `yaml:"cache"`
	Actors        cache.ActorsConfig            `yaml:"actors"`
	Enrich        EnrichConfig                  `yaml:"enrich"`
	EarlyMomentum providers.EarlyMomentumConfig `yaml:"early_momentum"`
	Momentum      momentum.Config               `yaml:"momentum"`
	Bundle        BundleConfig                  `yaml:"bundle"`
	Guard         GuardConfig                   `yaml:"guard"`
	Profiler      profiler.Config               `yaml:"profiler"`
	Tuner         scoring.TunerConfig           `yaml:"tuner"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	Venue       string `yaml:"venue"`       // launch venue suffix for bus topics
	LogLevel    string `yaml:"log_level"`   // trace|debug|info|warn|error
	LogFormat   string `yaml:"log_format"`  // json|console
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	GroupID       string   `yaml:"group_id"`
	SchemaVersion string   `yaml:"schema_version"`
}

type ClickHouseConfig struct {
	Enabled           bool   `yaml:"enabled"`
	DSN               string `yaml:"dsn"`
	Database          string `yaml:"database"`
	BatchSize         int    `yaml:"batch_size"`
	FlushIntervalSecs int    `yaml:"flush_interval_secs"`
}

type HTTPConfig struct {
	Addr            string `yaml:"addr"`
	HealthCheckSecs int    `yaml:"health_check_secs"`
}

// EnrichConfig pairs the upstream HTTP client with the fetch service
// that fans out over it.
type EnrichConfig struct {
	Client  enrich.ClientConfig  `yaml:"client"`
	Service enrich.ServiceConfig `yaml:"service"`
}

// BundleConfig pairs the launch-window detector with the funding
// clusterer it consults.
type BundleConfig struct {
	Detector bundle.Config        `yaml:"detector"`
	Cluster  bundle.ClusterConfig `yaml:"cluster"`
}

// GuardConfig pairs the holder watcher with the kill switch built on it.
type GuardConfig struct {
	Holders    guard.HolderConfig     `yaml:"holders"`
	KillSwitch guard.KillSwitchConfig `yaml:"kill_switch"`
}

// Default returns the full default configuration with every package's
// own defaults composed in.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			InstanceID:  "vigil-1",
			Environment: "development",
			Venue:       bus.VenuePumpFun,
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			GroupID:       "vigil",
			SchemaVersion: "1.0.0",
		},
		ClickHouse: ClickHouseConfig{
			Enabled:           true,
			DSN:               "clickhouse://localhost:9000/vigil",
			Database:          "vigil",
			BatchSize:         500,
			FlushIntervalSecs: 5,
		},
		HTTP: HTTPConfig{
			Addr:            ":8090",
			HealthCheckSecs: 30,
		},
		Filter: filter.DefaultConfig(),
		Cache:  cache.DefaultConfig(),
		Actors: cache.DefaultActorsConfig(),
		Enrich: EnrichConfig{
			Client:  enrich.DefaultClientConfig(),
			Service: enrich.DefaultServiceConfig(),
		},
		EarlyMomentum: providers.DefaultEarlyMomentumConfig(),
		Momentum:      momentum.DefaultConfig(),
		Bundle: BundleConfig{
			Detector: bundle.DefaultConfig(),
			Cluster:  bundle.DefaultClusterConfig(),
		},
		Guard: GuardConfig{
			Holders:    guard.DefaultHolderConfig(),
			KillSwitch: guard.DefaultKillSwitchConfig(),
		},
		Profiler: profiler.DefaultConfig(),
		Tuner:    scoring.DefaultTunerConfig(),
	}
}

// Load reads and parses a YAML configuration file. The file is applied
// on top of Default(), so omitted keys keep their package defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults restores required fields that the YAML explicitly
// blanked. Package-level defaults were already seeded by Default().
func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "vigil-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.Venue == "" {
		cfg.General.Venue = bus.VenuePumpFun
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "vigil"
	}
	if cfg.Kafka.SchemaVersion == "" {
		cfg.Kafka.SchemaVersion = "1.0.0"
	}
	if cfg.ClickHouse.DSN == "" {
		cfg.ClickHouse.DSN = "clickhouse://localhost:9000/vigil"
	}
	if cfg.ClickHouse.Database == "" {
		cfg.ClickHouse.Database = "vigil"
	}
	if cfg.ClickHouse.BatchSize == 0 {
		cfg.ClickHouse.BatchSize = 500
	}
	if cfg.ClickHouse.FlushIntervalSecs == 0 {
		cfg.ClickHouse.FlushIntervalSecs = 5
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8090"
	}
	if cfg.HTTP.HealthCheckSecs == 0 {
		cfg.HTTP.HealthCheckSecs = 30
	}
}

// Validate rejects configurations that would misbehave at runtime
// rather than fail fast.
func (c *Config) Validate() error {
	switch c.General.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("config: log_format %q not one of json|console", c.General.LogFormat)
	}

	switch c.General.LogLevel {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log_level %q not one of trace|debug|info|warn|error", c.General.LogLevel)
	}

	if c.Filter.HotPath.MaxLatencyMs <= 0 {
		return fmt.Errorf("config: filter.hot_path.max_latency_ms must be positive, got %d", c.Filter.HotPath.MaxLatencyMs)
	}

	t := c.Filter.Thresholds
	if !(t.StrongBuy > t.Opportunity && t.Opportunity > t.Probe && t.Probe > t.Avoid) {
		return fmt.Errorf("config: thresholds must descend strong_buy > opportunity > probe > avoid, got %.2f/%.2f/%.2f/%.2f",
			t.StrongBuy, t.Opportunity, t.Probe, t.Avoid)
	}

	if c.Momentum.MinObservationSecs >= c.Momentum.MaxObservationSecs {
		return fmt.Errorf("config: momentum min_observation_secs %d must be below max_observation_secs %d",
			c.Momentum.MinObservationSecs, c.Momentum.MaxObservationSecs)
	}

	if c.Guard.Holders.HoldersToWatch < 1 {
		return fmt.Errorf("config: guard.holders.holders_to_watch must be at least 1, got %d", c.Guard.Holders.HoldersToWatch)
	}

	if c.Tuner.LearningRate <= 0 || c.Tuner.LearningRate > 1 {
		return fmt.Errorf("config: tuner.learning_rate %.3f must be in (0, 1]", c.Tuner.LearningRate)
	}

	return nil
}
