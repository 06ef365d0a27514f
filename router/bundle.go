package router

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full router configuration, loadable from a YAML file.
// Fields absent from the file keep their DefaultConfig values.
type Config struct {
	Policy    PolicyConfig    `yaml:"policy"`
	Features  FeaturesConfig  `yaml:"features"`
	Decisions DecisionsConfig `yaml:"decisions"`
	Rewards   RewardsConfig   `yaml:"rewards"`
	Arms      []Arm           `yaml:"arms"`
}

// FeaturesConfig describes the context vectors served by the feature store.
type FeaturesConfig struct {
	Dim          int           `yaml:"dim"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"` // upper bound per lookup; 0 means the caller's deadline only
}

// DecisionsConfig bounds the decision log.
type DecisionsConfig struct {
	Retention time.Duration `yaml:"retention"` // rewards for older decisions are rejected
	Shards    int           `yaml:"shards"`
	Capacity  int           `yaml:"capacity"` // 0 means unbounded (retention still applies)
}

// RewardsConfig bounds reward values and sizes the ingestion queue.
type RewardsConfig struct {
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
	Workers   int     `yaml:"workers"`
	QueueSize int     `yaml:"queue_size"`
}

// DefaultConfig returns the defaults applied under any loaded file.
func DefaultConfig() Config {
	return Config{
		Policy: DefaultPolicyConfig(),
		Features: FeaturesConfig{
			Dim:          4,
			FetchTimeout: 50 * time.Millisecond,
		},
		Decisions: DecisionsConfig{
			Retention: 10 * time.Minute,
			Shards:    16,
			Capacity:  100_000,
		},
		Rewards: RewardsConfig{
			Min:       0,
			Max:       1,
			Workers:   4,
			QueueSize: 1024,
		},
	}
}

// LoadConfig reads and parses a YAML router configuration file over DefaultConfig.
// Unknown fields are rejected so that typos surface as errors.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading router config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML bytes over DefaultConfig with strict field checking.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing router config: %w", err)
	}
	return &cfg, nil
}

// Validate checks names and parameter ranges.
func (c *Config) Validate() error {
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	if c.Features.Dim < 0 {
		return fmt.Errorf("features.dim must be non-negative, got %d", c.Features.Dim)
	}
	linear := c.Policy.Algorithm == "linucb" || c.Policy.Algorithm == "lints"
	if linear && c.Features.Dim == 0 && !c.Policy.Intercept {
		return fmt.Errorf("algorithm %q needs features.dim > 0 or intercept", c.Policy.Algorithm)
	}
	if c.Features.FetchTimeout < 0 {
		return fmt.Errorf("features.fetch_timeout must be non-negative, got %v", c.Features.FetchTimeout)
	}
	if c.Decisions.Retention <= 0 {
		return fmt.Errorf("decisions.retention must be positive, got %v", c.Decisions.Retention)
	}
	if c.Decisions.Shards < 1 {
		return fmt.Errorf("decisions.shards must be >= 1, got %d", c.Decisions.Shards)
	}
	if c.Decisions.Capacity < 0 {
		return fmt.Errorf("decisions.capacity must be non-negative, got %d", c.Decisions.Capacity)
	}
	if !isFinite(c.Rewards.Min) || !isFinite(c.Rewards.Max) || c.Rewards.Min >= c.Rewards.Max {
		return fmt.Errorf("rewards bounds must be finite with min < max, got [%v, %v]", c.Rewards.Min, c.Rewards.Max)
	}
	if c.Rewards.Workers < 1 {
		return fmt.Errorf("rewards.workers must be >= 1, got %d", c.Rewards.Workers)
	}
	if c.Rewards.QueueSize < 0 {
		return fmt.Errorf("rewards.queue_size must be non-negative, got %d", c.Rewards.QueueSize)
	}
	seen := make(map[string]bool, len(c.Arms))
	for i, a := range c.Arms {
		if a.ID == "" {
			return fmt.Errorf("arms[%d]: id must not be empty", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("arms[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
		if a.Health != "" && !IsValidHealthState(string(a.Health)) {
			return fmt.Errorf("arms[%d]: unknown health %q", i, a.Health)
		}
		if a.CostWeight < 0 || !isFinite(a.CostWeight) {
			return fmt.Errorf("arms[%d]: cost_weight must be a finite non-negative number, got %v", i, a.CostWeight)
		}
		if a.CapacityHint < 0 {
			return fmt.Errorf("arms[%d]: capacity_hint must be non-negative, got %d", i, a.CapacityHint)
		}
	}
	return nil
}

// validNamesList returns the sorted keys of a validity map, skipping the empty name.
func validNamesList(valid map[string]bool) []string {
	names := make([]string, 0, len(valid))
	for name := range valid {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
