// Package bandit implements the bandit families behind router.Algorithm:
//
//   - ucb1: context-free upper confidence bound, uncertainty sqrt(2 ln(N+1) / n)
//   - thompson: context-free Gaussian Thompson sampling
//   - linucb: disjoint linear UCB with a ridge prior (Li et al., 2010)
//   - lints: linear Thompson sampling over the same ridge posterior
//
// Every ArmModel here is immutable; Update returns a fresh successor.
package bandit

import (
	"fmt"

	"github.com/inference-sim/bandit-router/router"
)

// New creates the Algorithm named by cfg.Algorithm.
// Panics on unrecognized names (callers validate first).
func New(cfg router.PolicyConfig) router.Algorithm {
	switch cfg.Algorithm {
	case "ucb1":
		return &UCB1{priorMean: cfg.PriorMean}
	case "thompson":
		return &Thompson{priorMean: cfg.PriorMean, priorPrecision: cfg.PriorPrecision, noise: cfg.NoiseStdDev}
	case "linucb":
		return &LinUCB{lambda: cfg.PriorPrecision, intercept: cfg.Intercept}
	case "lints":
		return &LinTS{lambda: cfg.PriorPrecision, intercept: cfg.Intercept, noise: cfg.NoiseStdDev}
	default:
		panic(fmt.Sprintf("unhandled algorithm %q", cfg.Algorithm))
	}
}
