package router

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// testConfig returns a small config for algo over dim features.
func testConfig(algo string, dim int) Config {
	cfg := DefaultConfig()
	cfg.Policy.Algorithm = algo
	cfg.Features.Dim = dim
	cfg.Decisions.Shards = 4
	cfg.Rewards.Workers = 2
	return cfg
}

func mustRegistry(t *testing.T, ids ...string) *Registry {
	t.Helper()
	arms := make([]Arm, len(ids))
	for i, id := range ids {
		arms[i] = Arm{ID: id, Target: id + ".svc:8000"}
	}
	reg, err := NewRegistry(arms...)
	require.NoError(t, err)
	return reg
}

// fixedStore serves the same features for every key.
func fixedStore(features ...float64) FeatureStore {
	return FeatureStoreFunc(func(_ context.Context, key string) (Context, error) {
		return NewContext(key, features), nil
	})
}

func newTestRouter(t *testing.T, cfg Config, arms ArmSource, store FeatureStore, opts ...Option) *Router {
	t.Helper()
	r, err := New(cfg, arms, store, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

// nanAlgorithm produces models whose estimates are NaN once they have seen a
// reward, to drive the engine into SelectionFailed.
type nanAlgorithm struct{}

func (nanAlgorithm) Name() string               { return "nan" }
func (nanAlgorithm) Sampling() bool             { return false }
func (nanAlgorithm) NewArmModel(_ int) ArmModel { return nanModel{} }

type nanModel struct{ n int64 }

func (m nanModel) Observations() int64                      { return m.n }
func (m nanModel) TotalReward() float64                     { return 0 }
func (m nanModel) Estimate(_ []float64) float64             { return math.NaN() }
func (m nanModel) Uncertainty(_ []float64, _ int64) float64 { return math.NaN() }
func (m nanModel) Sample(_ []float64, _ *rand.Rand) float64 { return math.NaN() }
func (m nanModel) Update(_ []float64, _ float64) (ArmModel, bool) {
	return nanModel{n: m.n + 1}, false
}
