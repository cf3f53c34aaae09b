// Package config loads the YAML cluster/run configuration
// cmd/swarmstep-node and cmd/swarmstep-cli both read at startup: peer
// addresses, per-step tuning, and the snapshot store a run persists
// exports to.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/swarmstep/swarmstep/pkg/security"
)

// Config is one run's cluster topology and tuning. Self is not part of
// the file — each swarmstep-node process is told its own index by flag,
// since every node in a run shares the identical Masters list.
type Config struct {
	// Masters lists every peer's dial address, in MasterID order
	// (index 0 plays coordinator, per §6's process layout).
	Masters []string `yaml:"masters"`

	// Groups is the number of handler.Pool worker groups each master
	// fans its agents out across (§4.4). 0 defaults to runtime.NumCPU()
	// at the call site.
	Groups int `yaml:"groups"`

	// Period is the initial CHANGE_PERIOD value: steps advanced per
	// `run` unit before the CLI issues its own set_period.
	Period int `yaml:"period"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
}

// RateLimitConfig tunes internal/window's public-attribute RMA fetch
// guards (internal/window.NewPublic).
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxFailures       int     `yaml:"max_failures"`
	ResetAfterSecs    float64 `yaml:"reset_after_secs"`
}

// SnapshotConfig selects and configures pkg/snapshot's pluggable Store.
type SnapshotConfig struct {
	// Backend is "file" (default) or "redis".
	Backend string `yaml:"backend"`

	// Dir is the FileBackend's base directory. Empty uses
	// ~/.swarmstep/exports.
	Dir string `yaml:"dir,omitempty"`

	// RedisAddr/RedisPrefix configure the RedisBackend; only consulted
	// when Backend is "redis".
	RedisAddr   string `yaml:"redis_addr,omitempty"`
	RedisPrefix string `yaml:"redis_prefix,omitempty"`
}

// Load reads and parses a cluster config file, applying defaults for
// every field a run can sensibly proceed without. YAML is parsed through
// security.SafeYAMLParser, bounding file size and structural complexity
// against a malformed or hostile config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	parser := security.NewSafeYAMLParser(security.DefaultYAMLLimits())
	var cfg Config
	if err := parser.UnmarshalYAML(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Period == 0 {
		cfg.Period = 1
	}
	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 1000
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 100
	}
	if cfg.RateLimit.MaxFailures == 0 {
		cfg.RateLimit.MaxFailures = 3
	}
	if cfg.RateLimit.ResetAfterSecs == 0 {
		cfg.RateLimit.ResetAfterSecs = 5
	}
	if cfg.Snapshot.Backend == "" {
		cfg.Snapshot.Backend = "file"
	}
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// Validate checks that cfg describes a runnable cluster.
func (c *Config) Validate() error {
	if len(c.Masters) == 0 {
		return fmt.Errorf("config: masters must list at least one peer address")
	}
	if c.Period < 1 {
		return fmt.Errorf("config: period must be >= 1, got %d", c.Period)
	}
	switch c.Snapshot.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("config: snapshot.backend must be \"file\" or \"redis\", got %q", c.Snapshot.Backend)
	}
	if c.Snapshot.Backend == "redis" && c.Snapshot.RedisAddr == "" {
		return fmt.Errorf("config: snapshot.redis_addr is required when snapshot.backend is \"redis\"")
	}
	return nil
}
