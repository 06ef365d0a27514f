package bandit

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/bandit-router/router"
)

func policy(algo string) router.PolicyConfig {
	cfg := router.DefaultPolicyConfig()
	cfg.Algorithm = algo
	return cfg
}

func TestNew_AllValidNames(t *testing.T) {
	for _, name := range router.ValidAlgorithmNames() {
		algo := New(policy(name))
		assert.Equal(t, name, algo.Name())
		assert.NotNil(t, algo.NewArmModel(3))
	}
	assert.Panics(t, func() { New(policy("softmax")) })
}

func TestRegister_SetsFactory(t *testing.T) {
	require.NotNil(t, router.NewAlgorithmFunc)
	assert.Equal(t, "lints", router.NewAlgorithm(policy("lints")).Name())
}

func TestSamplingFlag(t *testing.T) {
	assert.False(t, New(policy("ucb1")).Sampling())
	assert.False(t, New(policy("linucb")).Sampling())
	assert.True(t, New(policy("thompson")).Sampling())
	assert.True(t, New(policy("lints")).Sampling())
}

func TestModels_UpdateIsCopyOnWrite(t *testing.T) {
	for _, name := range router.ValidAlgorithmNames() {
		t.Run(name, func(t *testing.T) {
			// GIVEN a prior model
			m0 := New(policy(name)).NewArmModel(2)
			x := []float64{0.5, 1}
			est0 := m0.Estimate(x)

			// WHEN it is updated
			m1, reset := m0.Update(x, 1)

			// THEN the predecessor is unchanged and the successor counts the observation
			require.False(t, reset)
			assert.Zero(t, m0.Observations())
			assert.Equal(t, est0, m0.Estimate(x))
			assert.Equal(t, int64(1), m1.Observations())
			assert.Equal(t, 1.0, m1.TotalReward())
		})
	}
}

func TestUCB1_EstimateAndUncertainty(t *testing.T) {
	cfg := policy("ucb1")
	cfg.PriorMean = 0.3
	m := New(cfg).NewArmModel(0)

	// Prior
	assert.Equal(t, 0.3, m.Estimate(nil))
	assert.True(t, math.IsInf(m.Uncertainty(nil, 10), 1))

	// Two observations, ten engine-wide
	m, _ = m.Update(nil, 1)
	m, _ = m.Update(nil, 0)
	assert.InDelta(t, 0.5, m.Estimate(nil), 1e-12)
	assert.InDelta(t, math.Sqrt(2*math.Log(11)/2), m.Uncertainty(nil, 10), 1e-12)

	// Engine-wide count never below the arm's own count
	assert.InDelta(t, math.Sqrt(2*math.Log(3)/2), m.Uncertainty(nil, 0), 1e-12)
	assert.Equal(t, m.Estimate(nil), m.Sample(nil, rand.New(rand.NewSource(1))))
}

func TestThompson_PosteriorShrinksTowardMean(t *testing.T) {
	cfg := policy("thompson")
	cfg.PriorMean = 0
	cfg.PriorPrecision = 1
	cfg.NoiseStdDev = 0.5
	m := New(cfg).NewArmModel(0)

	for i := 0; i < 99; i++ {
		m, _ = m.Update(nil, 1)
	}

	// posterior mean (1*0 + 99) / (1 + 99), stddev 0.5 / sqrt(100)
	assert.InDelta(t, 0.99, m.Estimate(nil), 1e-12)
	assert.InDelta(t, 0.05, m.Uncertainty(nil, 0), 1e-12)

	rng := rand.New(rand.NewSource(3))
	var sum float64
	const draws = 2000
	for i := 0; i < draws; i++ {
		sum += m.Sample(nil, rng)
	}
	assert.InDelta(t, 0.99, sum/draws, 0.01)
}

func TestThompson_SameSeedSameDraws(t *testing.T) {
	m := New(policy("thompson")).NewArmModel(0)
	m, _ = m.Update(nil, 0.4)

	a := rand.New(rand.NewSource(9))
	b := rand.New(rand.NewSource(9))
	for i := 0; i < 10; i++ {
		assert.Equal(t, m.Sample(nil, a), m.Sample(nil, b))
	}
}

func TestLinUCB_LearnsLinearReward(t *testing.T) {
	// GIVEN reward = 0.2 + 0.5*x0 - 0.3*x1 observed without noise
	m := New(policy("linucb")).NewArmModel(2)
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 500; i++ {
		x := []float64{rng.Float64()*2 - 1, rng.Float64()*2 - 1}
		m, _ = m.Update(x, 0.2+0.5*x[0]-0.3*x[1])
	}

	// THEN the ridge estimate is close to the truth
	x := []float64{0.4, -0.6}
	assert.InDelta(t, 0.2+0.5*0.4+0.3*0.6, m.Estimate(x), 0.02)
}

func TestLinUCB_UncertaintyMatchesClosedForm(t *testing.T) {
	// GIVEN one observation at x with λ=1 and an intercept: A = I + x̃x̃ᵀ
	m := New(policy("linucb")).NewArmModel(1)
	m, _ = m.Update([]float64{1}, 1)

	// THEN x̃ᵀA⁻¹x̃ = |x̃|² / (1 + |x̃|²) for the same x̃ = (1, 1)
	assert.InDelta(t, math.Sqrt(2.0/3.0), m.Uncertainty([]float64{1}, 0), 1e-9)
	// AND θ = A⁻¹b = x̃ / 3, so the estimate is 2/3
	assert.InDelta(t, 2.0/3.0, m.Estimate([]float64{1}), 1e-9)
}

func TestLinUCB_UncertaintyNonIncreasing(t *testing.T) {
	m := New(policy("linucb")).NewArmModel(3)
	x := []float64{0.1, -0.7, 0.4}
	prev := m.Uncertainty(x, 0)
	for i := 0; i < 200; i++ {
		m, _ = m.Update(x, 0.5)
		u := m.Uncertainty(x, 0)
		require.LessOrEqual(t, u, prev+1e-12, "observation %d", i)
		prev = u
	}
}

func TestLinUCB_RefactorKeepsInverseAccurate(t *testing.T) {
	// GIVEN many more updates than the refactor interval
	lm := New(policy("linucb")).NewArmModel(2).(*linearModel)
	var m router.ArmModel = lm
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 3*refactorInterval+5; i++ {
		m, _ = m.Update([]float64{rng.NormFloat64(), rng.NormFloat64()}, rng.Float64())
	}

	// THEN A·A⁻¹ is the identity
	got := m.(*linearModel)
	d := got.dim()
	for i := 0; i < d; i++ {
		for j := 0; j < d; j++ {
			var v float64
			for k := 0; k < d; k++ {
				v += got.a.At(i, k) * got.aInv.At(k, j)
			}
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, v, 1e-8, "(%d,%d)", i, j)
		}
	}
}

func TestLinear_DegenerateUpdate_ResetsToPrior(t *testing.T) {
	// GIVEN a model fed an overflowing feature
	m := New(policy("linucb")).NewArmModel(1)
	m, _ = m.Update([]float64{0.5}, 1)

	// WHEN x is so large that A overflows
	next, reset := m.Update([]float64{1e300}, 1)

	// THEN the successor is the prior
	assert.True(t, reset)
	assert.Zero(t, next.Observations())
	assert.Zero(t, next.Estimate([]float64{0.5}))
}

func TestLinTS_SamplesAroundEstimate(t *testing.T) {
	cfg := policy("lints")
	cfg.NoiseStdDev = 0.1
	m := New(cfg).NewArmModel(1)
	for i := 0; i < 400; i++ {
		m, _ = m.Update([]float64{1}, 0.7)
	}
	x := []float64{1}

	rng := rand.New(rand.NewSource(2))
	var sum float64
	const draws = 1000
	for i := 0; i < draws; i++ {
		sum += m.Sample(x, rng)
	}
	assert.InDelta(t, m.Estimate(x), sum/draws, 0.01)
	assert.InDelta(t, 0.7, m.Estimate(x), 0.01)

	a := rand.New(rand.NewSource(4))
	b := rand.New(rand.NewSource(4))
	assert.Equal(t, m.Sample(x, a), m.Sample(x, b))
}

func TestLinear_WithoutIntercept(t *testing.T) {
	cfg := policy("linucb")
	cfg.Intercept = false
	m := New(cfg).NewArmModel(2).(*linearModel)
	assert.Equal(t, 2, m.dim())
	assert.Zero(t, m.Estimate([]float64{1, 1}))
	assert.InDelta(t, math.Sqrt(2), m.Uncertainty([]float64{1, 1}, 0), 1e-12)
}
