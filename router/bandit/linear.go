package bandit

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/inference-sim/bandit-router/router"
)

// refactorInterval is how often (in observations) A⁻¹ is re-derived from a
// fresh Cholesky factorization of A to flush Sherman–Morrison rounding drift.
const refactorInterval = 64

// LinUCB is the disjoint linear upper-confidence-bound family: each arm keeps a
// ridge regression of reward on features.
//
//	A = λI + Σ x xᵀ,  b = Σ r x,  θ = A⁻¹ b
//	estimate = θ·x,   uncertainty = √(xᵀ A⁻¹ x)
type LinUCB struct {
	lambda    float64
	intercept bool
}

// Name implements router.Algorithm.
func (l *LinUCB) Name() string { return "linucb" }

// Sampling implements router.Algorithm.
func (l *LinUCB) Sampling() bool { return false }

// NewArmModel implements router.Algorithm.
func (l *LinUCB) NewArmModel(dim int) router.ArmModel {
	return newLinearModel(dim, l.lambda, l.intercept, 1, false)
}

// LinTS is linear Thompson sampling over the LinUCB posterior: the score is
// θ̃·x with θ̃ ~ N(θ, v² A⁻¹), where v is the configured noise scale.
type LinTS struct {
	lambda    float64
	intercept bool
	noise     float64
}

// Name implements router.Algorithm.
func (l *LinTS) Name() string { return "lints" }

// Sampling implements router.Algorithm.
func (l *LinTS) Sampling() bool { return true }

// NewArmModel implements router.Algorithm.
func (l *LinTS) NewArmModel(dim int) router.ArmModel {
	return newLinearModel(dim, l.lambda, l.intercept, l.noise, true)
}

// linearModel is an immutable ridge posterior. Successors never share
// matrices with their predecessor.
type linearModel struct {
	features  int
	lambda    float64
	intercept bool
	scale     float64 // multiplies √(xᵀA⁻¹x)
	sampling  bool

	a     *mat.SymDense
	aInv  *mat.SymDense
	chol  *mat.Cholesky // factorization of a; used for sampling and repair
	b     *mat.VecDense
	theta *mat.VecDense

	n   int64
	sum float64
}

func newLinearModel(features int, lambda float64, intercept bool, scale float64, sampling bool) *linearModel {
	d := features
	if intercept {
		d++
	}
	m := &linearModel{
		features:  features,
		lambda:    lambda,
		intercept: intercept,
		scale:     scale,
		sampling:  sampling,
		a:         mat.NewSymDense(d, nil),
		aInv:      mat.NewSymDense(d, nil),
		b:         mat.NewVecDense(d, nil),
		theta:     mat.NewVecDense(d, nil),
	}
	for i := 0; i < d; i++ {
		m.a.SetSym(i, i, lambda)
		m.aInv.SetSym(i, i, 1/lambda)
	}
	var chol mat.Cholesky
	chol.Factorize(m.a)
	m.chol = &chol
	return m
}

func (m *linearModel) prior() *linearModel {
	return newLinearModel(m.features, m.lambda, m.intercept, m.scale, m.sampling)
}

func (m *linearModel) dim() int {
	d, _ := m.a.Dims()
	return d
}

// augment returns x as a vector, with a leading 1 when the model has an intercept.
func (m *linearModel) augment(x []float64) *mat.VecDense {
	v := make([]float64, 0, m.dim())
	if m.intercept {
		v = append(v, 1)
	}
	v = append(v, x...)
	return mat.NewVecDense(len(v), v)
}

func (m *linearModel) Observations() int64  { return m.n }
func (m *linearModel) TotalReward() float64 { return m.sum }

func (m *linearModel) Estimate(x []float64) float64 {
	return mat.Dot(m.theta, m.augment(x))
}

// Uncertainty is scale·√(xᵀA⁻¹x). A negative quadratic form can only come
// from rounding and is clamped to zero; NaN is passed through for the engine.
func (m *linearModel) Uncertainty(x []float64, _ int64) float64 {
	xv := m.augment(x)
	q := mat.Inner(xv, m.aInv, xv)
	if q < 0 {
		q = 0
	}
	return m.scale * math.Sqrt(q)
}

// Sample draws θ̃ = θ + v·w with w ~ N(0, A⁻¹), obtained by solving U w = z for
// z ~ N(0, I), where A = UᵀU. Falls back to the estimate if the solve fails.
func (m *linearModel) Sample(x []float64, rng *rand.Rand) float64 {
	if !m.sampling {
		return m.Estimate(x)
	}
	d := m.dim()
	z := mat.NewVecDense(d, nil)
	for i := 0; i < d; i++ {
		z.SetVec(i, rng.NormFloat64())
	}
	var w mat.VecDense
	if err := w.SolveVec(m.chol.RawU(), z); err != nil {
		return m.Estimate(x)
	}
	sampled := mat.NewVecDense(d, nil)
	sampled.AddScaledVec(m.theta, m.scale, &w)
	return mat.Dot(sampled, m.augment(x))
}

// Update applies the rank-one update A += xxᵀ, b += r·x and refreshes A⁻¹ with
// Sherman–Morrison. A⁻¹ is re-derived from a Cholesky factorization when the
// incremental result is unhealthy or on every refactorInterval-th observation;
// if A itself is no longer positive definite the successor is the prior.
func (m *linearModel) Update(x []float64, reward float64) (router.ArmModel, bool) {
	d := m.dim()
	xv := m.augment(x)

	next := &linearModel{
		features:  m.features,
		lambda:    m.lambda,
		intercept: m.intercept,
		scale:     m.scale,
		sampling:  m.sampling,
		a:         mat.NewSymDense(d, nil),
		aInv:      mat.NewSymDense(d, nil),
		b:         mat.NewVecDense(d, nil),
		theta:     mat.NewVecDense(d, nil),
		n:         m.n + 1,
		sum:       m.sum + reward,
	}
	next.a.SymRankOne(m.a, 1, xv)
	next.b.AddScaledVec(m.b, reward, xv)

	var chol mat.Cholesky
	if !chol.Factorize(next.a) {
		return m.prior(), true
	}
	next.chol = &chol

	u := mat.NewVecDense(d, nil)
	u.MulVec(m.aInv, xv)
	denom := 1 + mat.Dot(xv, u)
	incremental := denom > 0 && !math.IsInf(denom, 0) && !math.IsNaN(denom)
	if incremental {
		next.aInv.SymRankOne(m.aInv, -1/denom, u)
	}
	if !incremental || next.n%refactorInterval == 0 || !healthyInverse(next.aInv) {
		if err := chol.InverseTo(next.aInv); err != nil || !healthyInverse(next.aInv) {
			return m.prior(), true
		}
	}

	next.theta.MulVec(next.aInv, next.b)
	if !finiteVec(next.theta) {
		return m.prior(), true
	}
	return next, false
}

// healthyInverse reports whether s has finite entries and a positive diagonal,
// both necessary for a positive-definite inverse.
func healthyInverse(s *mat.SymDense) bool {
	n := s.SymmetricDim()
	for i := 0; i < n; i++ {
		if s.At(i, i) <= 0 {
			return false
		}
		for j := i; j < n; j++ {
			v := s.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		f := v.AtVec(i)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
