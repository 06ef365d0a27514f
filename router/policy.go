package router

import (
	"fmt"
	"math"
	"math/rand"
)

// ArmModel is the immutable per-arm statistical state of a bandit family.
// Update never mutates the receiver; it returns the successor model. This lets
// the engine publish new state with a single atomic swap.
type ArmModel interface {
	// Observations is the number of rewards folded into the model.
	Observations() int64
	// TotalReward is the cumulative reward folded into the model.
	TotalReward() float64
	// Estimate is the point estimate of expected reward for features x.
	Estimate(x []float64) float64
	// Uncertainty is the confidence width for x. totalObservations is the
	// engine-wide observation count (used by context-free UCB).
	// Must be non-increasing in Observations, all else equal.
	Uncertainty(x []float64, totalObservations int64) float64
	// Sample draws a reward from the posterior for x. Families that do not
	// sample return Estimate(x).
	Sample(x []float64, rng *rand.Rand) float64
	// Update folds one observation. reset is true when the state degenerated
	// and the successor was reset to the prior.
	Update(x []float64, reward float64) (next ArmModel, reset bool)
}

// Algorithm is a bandit family selected at construction time.
type Algorithm interface {
	Name() string
	// Sampling is true for posterior-sampling families (score = Sample) and
	// false for upper-confidence families (score = Estimate + c*Uncertainty).
	Sampling() bool
	// NewArmModel returns the prior state for an arm over dim features.
	NewArmModel(dim int) ArmModel
}

// PolicyConfig holds the tuning knobs of the Policy Engine.
type PolicyConfig struct {
	Algorithm      string  `yaml:"algorithm"`
	Exploration    float64 `yaml:"exploration"`     // UCB coefficient c >= 0
	PriorPrecision float64 `yaml:"prior_precision"` // ridge / prior precision lambda > 0
	PriorMean      float64 `yaml:"prior_mean"`      // estimate for arms without observations
	NoiseStdDev    float64 `yaml:"noise_stddev"`    // reward noise scale for sampling families
	UncertaintyCap float64 `yaml:"uncertainty_cap"` // upper clamp on uncertainty terms
	CostPenalty    float64 `yaml:"cost_penalty"`    // subtracted as CostPenalty * Arm.CostWeight
	Intercept      bool    `yaml:"intercept"`       // linear families prepend a constant 1 feature
	Seed           int64   `yaml:"seed"`
}

// DefaultPolicyConfig returns a LinUCB configuration with unit priors.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		Algorithm:      "linucb",
		Exploration:    1.0,
		PriorPrecision: 1.0,
		NoiseStdDev:    0.5,
		UncertaintyCap: 1000,
		Intercept:      true,
		Seed:           42,
	}
}

// validAlgorithms maps algorithm names to validity. Unexported to prevent mutation.
var validAlgorithms = map[string]bool{
	"ucb1":     true,
	"linucb":   true,
	"thompson": true,
	"lints":    true,
}

// IsValidAlgorithm returns true if name is a recognized bandit family.
func IsValidAlgorithm(name string) bool { return validAlgorithms[name] }

// ValidAlgorithmNames returns sorted valid algorithm names.
func ValidAlgorithmNames() []string { return validNamesList(validAlgorithms) }

// Validate returns an error if the config is invalid.
func (c PolicyConfig) Validate() error {
	if !IsValidAlgorithm(c.Algorithm) {
		return fmt.Errorf("unknown algorithm %q; valid: %v", c.Algorithm, ValidAlgorithmNames())
	}
	if c.Exploration < 0 || !isFinite(c.Exploration) {
		return fmt.Errorf("exploration must be a finite non-negative number, got %v", c.Exploration)
	}
	if c.PriorPrecision <= 0 || !isFinite(c.PriorPrecision) {
		return fmt.Errorf("prior_precision must be a finite positive number, got %v", c.PriorPrecision)
	}
	if !isFinite(c.PriorMean) {
		return fmt.Errorf("prior_mean must be finite, got %v", c.PriorMean)
	}
	if c.NoiseStdDev <= 0 || !isFinite(c.NoiseStdDev) {
		return fmt.Errorf("noise_stddev must be a finite positive number, got %v", c.NoiseStdDev)
	}
	if c.UncertaintyCap <= 0 || !isFinite(c.UncertaintyCap) {
		return fmt.Errorf("uncertainty_cap must be a finite positive number, got %v", c.UncertaintyCap)
	}
	if c.CostPenalty < 0 || !isFinite(c.CostPenalty) {
		return fmt.Errorf("cost_penalty must be a finite non-negative number, got %v", c.CostPenalty)
	}
	return nil
}

// NewAlgorithmFunc constructs an Algorithm from a validated config.
// Set by router/bandit's init(); nil until that package is imported.
var NewAlgorithmFunc func(cfg PolicyConfig) Algorithm

// NewAlgorithm creates the configured bandit family.
// Panics on unrecognized names or if router/bandit was never imported.
func NewAlgorithm(cfg PolicyConfig) Algorithm {
	if !IsValidAlgorithm(cfg.Algorithm) {
		panic(fmt.Sprintf("unknown algorithm %q", cfg.Algorithm))
	}
	if NewAlgorithmFunc == nil {
		panic("NewAlgorithmFunc is nil: import github.com/inference-sim/bandit-router/router/bandit")
	}
	return NewAlgorithmFunc(cfg)
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
