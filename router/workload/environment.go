// Package workload provides a seeded synthetic environment for exercising a
// router: hidden per-arm reward models, per-key feature vectors, and injected
// feature-store faults and health flaps.
package workload

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/bandit-router/router"
)

// RNG subsystem names. Each concern draws from its own stream so that, e.g.,
// changing the fault rate does not perturb the hidden weights.
const (
	subsystemWeights  = "workload/weights"
	subsystemFeatures = "workload/features"
	subsystemNoise    = "workload/noise"
	subsystemFaults   = "workload/faults"
	subsystemFlaps    = "workload/flaps"
	subsystemKeys     = "workload/keys"
)

// Config parameterizes an Environment.
type Config struct {
	Arms        int
	ArmIDs      []string // optional arm ids; overrides Arms when set
	Dim         int
	Keys        int           // size of the request key space
	Seed        int64
	NoiseStdDev float64       // reward noise around the expected reward
	FaultRate   float64       // probability a context lookup fails
	FlapRate    float64       // probability a Flap call toggles an arm's health
	Latency     time.Duration // context lookup latency
}

// DefaultConfig returns a five-arm, four-feature environment.
func DefaultConfig() Config {
	return Config{Arms: 5, Dim: 4, Keys: 1000, Seed: 42, NoiseStdDev: 0.1}
}

// lockedRand serializes access to a *rand.Rand.
type lockedRand struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (l *lockedRand) float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Float64()
}

func (l *lockedRand) norm() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.NormFloat64()
}

func (l *lockedRand) intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rng.Intn(n)
}

// Environment is the hidden world a router learns about. Expected reward for
// arm a and features x is sigmoid(bias_a + w_a . x); observed rewards add
// Gaussian noise and are clamped to [0, 1]. Safe for concurrent use.
type Environment struct {
	cfg      Config
	arms     []router.Arm
	weights  map[string][]float64 // bias first
	features map[string][]float64

	noise  *lockedRand
	faults *lockedRand
	flaps  *lockedRand
	keys   *lockedRand

	flapMu sync.Mutex // keeps the last-healthy-arm check and the toggle atomic
}

// NewEnvironment builds an Environment. Panics on non-positive arm or key
// counts or a negative dimension.
func NewEnvironment(cfg Config) *Environment {
	if len(cfg.ArmIDs) > 0 {
		cfg.Arms = len(cfg.ArmIDs)
	}
	if cfg.Arms < 1 || cfg.Keys < 1 || cfg.Dim < 0 {
		panic(fmt.Sprintf("workload.NewEnvironment: invalid config arms=%d keys=%d dim=%d", cfg.Arms, cfg.Keys, cfg.Dim))
	}
	rngs := router.NewPartitionedRNG(cfg.Seed)
	env := &Environment{
		cfg:      cfg,
		weights:  make(map[string][]float64, cfg.Arms),
		features: make(map[string][]float64, cfg.Keys),
		noise:    &lockedRand{rng: rngs.ForSubsystem(subsystemNoise)},
		faults:   &lockedRand{rng: rngs.ForSubsystem(subsystemFaults)},
		flaps:    &lockedRand{rng: rngs.ForSubsystem(subsystemFlaps)},
		keys:     &lockedRand{rng: rngs.ForSubsystem(subsystemKeys)},
	}

	wr := rngs.ForSubsystem(subsystemWeights)
	for i := 0; i < cfg.Arms; i++ {
		id := fmt.Sprintf("arm-%d", i)
		if len(cfg.ArmIDs) > 0 {
			id = cfg.ArmIDs[i]
		}
		w := make([]float64, cfg.Dim+1)
		for j := range w {
			w[j] = wr.NormFloat64()
		}
		env.weights[id] = w
		env.arms = append(env.arms, router.Arm{
			ID:           id,
			Target:       fmt.Sprintf("backend-%d.local:8000", i),
			Health:       router.HealthHealthy,
			CapacityHint: 100,
			CostWeight:   1,
		})
	}

	fr := rngs.ForSubsystem(subsystemFeatures)
	for i := 0; i < cfg.Keys; i++ {
		x := make([]float64, cfg.Dim)
		for j := range x {
			x[j] = fr.Float64()*2 - 1
		}
		env.features[Key(i)] = x
	}
	return env
}

// Key returns the i-th request key.
func Key(i int) string { return fmt.Sprintf("req-%d", i) }

// Arms returns the environment's arms, all healthy.
func (e *Environment) Arms() []router.Arm {
	return append([]router.Arm(nil), e.arms...)
}

// NextKey draws a request key uniformly from the key space.
func (e *Environment) NextKey() string {
	return Key(e.keys.intn(e.cfg.Keys))
}

// Features returns a copy of the true features for key, or nil if unknown.
func (e *Environment) Features(key string) []float64 {
	f, ok := e.features[key]
	if !ok {
		return nil
	}
	return append([]float64(nil), f...)
}

// ExpectedReward is the noise-free reward of armID for key.
func (e *Environment) ExpectedReward(armID, key string) float64 {
	w, ok := e.weights[armID]
	x, known := e.features[key]
	if !ok || !known {
		return 0
	}
	z := w[0]
	for i, f := range x {
		z += w[i+1] * f
	}
	return 1 / (1 + math.Exp(-z))
}

// BestArm returns the arm with the highest expected reward for key among arms.
func (e *Environment) BestArm(key string, arms []router.Arm) (string, float64) {
	best, bestReward := "", math.Inf(-1)
	for _, a := range arms {
		if r := e.ExpectedReward(a.ID, key); r > bestReward || (r == bestReward && a.ID < best) {
			best, bestReward = a.ID, r
		}
	}
	return best, bestReward
}

// Reward draws an observed reward for armID on key.
func (e *Environment) Reward(armID, key string) float64 {
	r := e.ExpectedReward(armID, key) + e.cfg.NoiseStdDev*e.noise.norm()
	return math.Min(1, math.Max(0, r))
}

// FeatureStore returns a router.FeatureStore serving the environment's
// features. With probability FaultRate a lookup fails: half of the faults are
// misses, the other half hang until ctx is done.
func (e *Environment) FeatureStore() router.FeatureStore {
	return router.FeatureStoreFunc(func(ctx context.Context, key string) (router.Context, error) {
		if e.cfg.FaultRate > 0 && e.faults.float64() < e.cfg.FaultRate {
			if e.faults.float64() < 0.5 {
				return router.Context{}, fmt.Errorf("%w: injected miss for %q", router.ErrContextUnavailable, key)
			}
			<-ctx.Done()
			return router.Context{}, fmt.Errorf("%w: injected stall: %v", router.ErrContextUnavailable, ctx.Err())
		}
		if e.cfg.Latency > 0 {
			t := time.NewTimer(e.cfg.Latency)
			defer t.Stop()
			select {
			case <-t.C:
			case <-ctx.Done():
				return router.Context{}, fmt.Errorf("%w: %v", router.ErrContextUnavailable, ctx.Err())
			}
		}
		x, ok := e.features[key]
		if !ok {
			return router.Context{}, fmt.Errorf("%w: unknown key %q", router.ErrContextUnavailable, key)
		}
		return router.NewContext(key, x), nil
	})
}

// Flap toggles the health of a random arm with probability FlapRate: healthy
// arms become degraded and vice versa. At least one arm is always left
// healthy. Returns the toggled arm id, or "" if nothing changed.
func (e *Environment) Flap(reg *router.Registry) string {
	if e.cfg.FlapRate <= 0 || e.flaps.float64() >= e.cfg.FlapRate {
		return ""
	}
	e.flapMu.Lock()
	defer e.flapMu.Unlock()
	all := reg.List()
	if len(all) == 0 {
		return ""
	}
	a := all[e.flaps.intn(len(all))]
	next := router.HealthDegraded
	if a.Health != router.HealthHealthy {
		next = router.HealthHealthy
	} else if len(reg.ListHealthy()) <= 1 {
		return ""
	}
	if err := reg.MarkHealth(a.ID, next); err != nil {
		logrus.Warnf("workload: flap %s: %v", a.ID, err)
		return ""
	}
	return a.ID
}
