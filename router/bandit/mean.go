package bandit

import (
	"math"
	"math/rand"

	"github.com/inference-sim/bandit-router/router"
)

// meanStats holds the running mean of observed rewards.
type meanStats struct {
	n    int64
	sum  float64
	mean float64
}

func (s meanStats) add(r float64) meanStats {
	s.n++
	s.sum += r
	s.mean += (r - s.mean) / float64(s.n)
	return s
}

// UCB1 is the context-free upper-confidence-bound family. Features are ignored.
type UCB1 struct {
	priorMean float64
}

// Name implements router.Algorithm.
func (u *UCB1) Name() string { return "ucb1" }

// Sampling implements router.Algorithm.
func (u *UCB1) Sampling() bool { return false }

// NewArmModel implements router.Algorithm.
func (u *UCB1) NewArmModel(_ int) router.ArmModel {
	return &ucb1Model{priorMean: u.priorMean}
}

type ucb1Model struct {
	stats     meanStats
	priorMean float64
}

func (m *ucb1Model) Observations() int64  { return m.stats.n }
func (m *ucb1Model) TotalReward() float64 { return m.stats.sum }

func (m *ucb1Model) Estimate(_ []float64) float64 {
	if m.stats.n == 0 {
		return m.priorMean
	}
	return m.stats.mean
}

// Uncertainty is sqrt(2 ln(N+1) / n). The +1 keeps the width positive after
// the very first observation engine-wide.
func (m *ucb1Model) Uncertainty(_ []float64, totalObservations int64) float64 {
	if m.stats.n == 0 {
		return math.Inf(1)
	}
	n := totalObservations
	if n < m.stats.n {
		n = m.stats.n
	}
	return math.Sqrt(2 * math.Log(float64(n)+1) / float64(m.stats.n))
}

func (m *ucb1Model) Sample(x []float64, _ *rand.Rand) float64 { return m.Estimate(x) }

func (m *ucb1Model) Update(_ []float64, reward float64) (router.ArmModel, bool) {
	return &ucb1Model{stats: m.stats.add(reward), priorMean: m.priorMean}, false
}

// Thompson is context-free Gaussian Thompson sampling. With a N(mu0, sigma^2/lambda)
// prior and known noise sigma, the posterior after n observations is
// N((lambda*mu0 + sum) / (lambda + n), sigma^2 / (lambda + n)).
type Thompson struct {
	priorMean      float64
	priorPrecision float64
	noise          float64
}

// Name implements router.Algorithm.
func (t *Thompson) Name() string { return "thompson" }

// Sampling implements router.Algorithm.
func (t *Thompson) Sampling() bool { return true }

// NewArmModel implements router.Algorithm.
func (t *Thompson) NewArmModel(_ int) router.ArmModel {
	return &thompsonModel{params: t}
}

type thompsonModel struct {
	stats  meanStats
	params *Thompson
}

func (m *thompsonModel) Observations() int64  { return m.stats.n }
func (m *thompsonModel) TotalReward() float64 { return m.stats.sum }

func (m *thompsonModel) precision() float64 {
	return m.params.priorPrecision + float64(m.stats.n)
}

func (m *thompsonModel) Estimate(_ []float64) float64 {
	return (m.params.priorPrecision*m.params.priorMean + m.stats.sum) / m.precision()
}

func (m *thompsonModel) Uncertainty(_ []float64, _ int64) float64 {
	return m.params.noise / math.Sqrt(m.precision())
}

func (m *thompsonModel) Sample(x []float64, rng *rand.Rand) float64 {
	return m.Estimate(x) + m.Uncertainty(x, 0)*rng.NormFloat64()
}

func (m *thompsonModel) Update(_ []float64, reward float64) (router.ArmModel, bool) {
	return &thompsonModel{stats: m.stats.add(reward), params: m.params}, false
}
