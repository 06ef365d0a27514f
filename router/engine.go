package router

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/bandit-router/router/metrics"
)

// coldStartScore is assigned to arms that have never been selected. It is the
// largest finite float64, so a cold arm beats every warm arm without making the
// score vector non-finite.
const coldStartScore = math.MaxFloat64

// modelRef boxes an ArmModel so it can be published through atomic.Pointer.
type modelRef struct {
	model ArmModel
}

// armShard owns the state of one arm. Updates are serialized by mu; readers
// load the current model without locking.
type armShard struct {
	id     string
	mu     sync.Mutex
	model  atomic.Pointer[modelRef]
	pulls  atomic.Int64
	resets atomic.Int64

	rngMu sync.Mutex
	rng   *rand.Rand
}

func (s *armShard) load() ArmModel {
	return s.model.Load().model
}

func (s *armShard) sample(m ArmModel, x []float64) float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return m.Sample(x, s.rng)
}

// ArmStats is a read-only view of one arm's policy state.
type ArmStats struct {
	ArmID        string
	Pulls        int64
	Observations int64
	TotalReward  float64
	MeanReward   float64
	Resets       int64
}

// Selection is the outcome of Engine.Select.
type Selection struct {
	ArmID       string
	Scores      []ArmScore // sorted by ArmID
	Exploration bool
	Reason      string
}

// Engine is the Policy Engine. State is sharded per arm: a burst of updates to
// one arm never blocks selection or updates touching another.
//
// Select reads a snapshot of each arm's model (consistent as of the latest
// published update) and claims the chosen arm's pull atomically. Update
// serializes per arm and publishes the successor model with one atomic swap,
// so a failed or concurrent update is never observed half-applied.
type Engine struct {
	algo Algorithm
	cfg  PolicyConfig
	dim  int
	rngs *PartitionedRNG

	mu     sync.RWMutex // guards the shards map, not shard contents
	shards map[string]*armShard

	observations atomic.Int64
}

// NewEngine creates an Engine over dim features.
// Panics if dim is negative.
func NewEngine(algo Algorithm, cfg PolicyConfig, dim int) *Engine {
	if dim < 0 {
		panic(fmt.Sprintf("NewEngine: negative dimension %d", dim))
	}
	return &Engine{
		algo:   algo,
		cfg:    cfg,
		dim:    dim,
		rngs:   NewPartitionedRNG(cfg.Seed),
		shards: make(map[string]*armShard),
	}
}

// Algorithm returns the bandit family in use.
func (e *Engine) Algorithm() Algorithm { return e.algo }

// Dim returns the feature dimension the engine expects.
func (e *Engine) Dim() int { return e.dim }

func (e *Engine) shard(armID string) *armShard {
	e.mu.RLock()
	s, ok := e.shards[armID]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.shards[armID]; ok {
		return s
	}
	s = &armShard{id: armID, rng: e.rngs.ForSubsystem(SubsystemArm(armID))}
	s.model.Store(&modelRef{model: e.algo.NewArmModel(e.dim)})
	e.shards[armID] = s
	return s
}

// Score computes the per-arm score vector for features x, sorted by arm id.
// Non-finite scores are reported as-is; Select skips them.
func (e *Engine) Score(x []float64, arms []Arm) []ArmScore {
	total := e.observations.Load()
	scores := make([]ArmScore, 0, len(arms))
	for _, arm := range arms {
		scores = append(scores, e.scoreArm(arm, x, total))
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].ArmID < scores[j].ArmID })
	return scores
}

func (e *Engine) scoreArm(arm Arm, x []float64, totalObs int64) ArmScore {
	s := e.shard(arm.ID)
	m := s.load()
	pulls := s.pulls.Load()
	as := ArmScore{ArmID: arm.ID, Pulls: pulls}

	if pulls == 0 {
		as.ColdStart = true
		as.Estimate = e.cfg.PriorMean
		as.Uncertainty = e.cfg.UncertaintyCap
		as.Score = coldStartScore
		return as
	}

	penalty := e.cfg.CostPenalty * arm.CostWeight
	if m.Observations() == 0 {
		// Pulled but no reward yet: prior estimate with maximal width.
		as.Estimate = e.cfg.PriorMean
		as.Uncertainty = e.cfg.UncertaintyCap
	} else {
		as.Estimate = m.Estimate(x)
		as.Uncertainty = e.clampUncertainty(arm.ID, m.Uncertainty(x, totalObs))
	}

	if e.algo.Sampling() {
		if m.Observations() == 0 {
			as.Score = as.Estimate + as.Uncertainty
		} else {
			as.Score = s.sample(m, x)
		}
	} else {
		as.Score = as.Estimate + e.cfg.Exploration*as.Uncertainty
	}
	as.Score -= penalty
	return as
}

// clampUncertainty keeps uncertainty in [0, UncertaintyCap]. A NaN width
// means the arm's state has degenerated; it is treated as maximal.
func (e *Engine) clampUncertainty(armID string, u float64) float64 {
	switch {
	case math.IsNaN(u):
		logrus.Warnf("engine: arm %s produced NaN uncertainty; using cap %v", armID, e.cfg.UncertaintyCap)
		return e.cfg.UncertaintyCap
	case u < 0:
		return 0
	case u > e.cfg.UncertaintyCap:
		return e.cfg.UncertaintyCap
	default:
		return u
	}
}

// Select scores arms for context c and picks one.
//
// Ties on score resolve by lower pull count, then lexicographically smaller
// arm id. A cold-start arm is claimed with compare-and-swap so concurrent
// decisions do not both spend their forced trial on the same arm; losers
// rescore. Returns *SelectionError if no arm has a finite score.
func (e *Engine) Select(c Context, arms []Arm) (Selection, error) {
	if len(arms) == 0 {
		return Selection{}, ErrNoCandidates
	}
	if c.Dim() != e.dim {
		return Selection{}, &SelectionError{
			ArmID:      arms[0].ID,
			RequestKey: c.Key,
			Reason:     fmt.Sprintf("context dimension %d, want %d", c.Dim(), e.dim),
		}
	}
	for attempt := 0; ; attempt++ {
		scores := e.Score(c.Features, arms)
		best, ok := pickMax(scores, func(s ArmScore) float64 { return s.Score })
		if !ok {
			last := scores[len(scores)-1]
			return Selection{}, &SelectionError{
				ArmID:      last.ArmID,
				RequestKey: c.Key,
				Reason:     fmt.Sprintf("no finite score among %d candidates (last: score=%v estimate=%v uncertainty=%v)", len(scores), last.Score, last.Estimate, last.Uncertainty),
			}
		}

		s := e.shard(best.ArmID)
		var pulls int64
		if best.ColdStart && attempt < len(arms) {
			if !s.pulls.CompareAndSwap(0, 1) {
				continue
			}
			pulls = 1
		} else {
			pulls = s.pulls.Add(1)
		}
		metrics.RecordArmPulls(best.ArmID, pulls)

		greedy, _ := pickMax(scores, func(s ArmScore) float64 { return s.Estimate })
		sel := Selection{
			ArmID:       best.ArmID,
			Scores:      scores,
			Exploration: best.ColdStart || greedy.ArmID != best.ArmID,
		}
		switch {
		case best.ColdStart:
			sel.Reason = fmt.Sprintf("%s cold-start (arm=%s)", e.algo.Name(), best.ArmID)
		case sel.Exploration:
			sel.Reason = fmt.Sprintf("%s explore (score=%.4f, greedy=%s)", e.algo.Name(), best.Score, greedy.ArmID)
		default:
			sel.Reason = fmt.Sprintf("%s exploit (score=%.4f)", e.algo.Name(), best.Score)
		}
		return sel, nil
	}
}

// pickMax returns the entry maximizing key among entries with finite keys.
// Ties resolve by lower Pulls, then smaller ArmID.
func pickMax(scores []ArmScore, key func(ArmScore) float64) (ArmScore, bool) {
	var best ArmScore
	found := false
	for _, s := range scores {
		v := key(s)
		if !isFinite(v) {
			continue
		}
		if !found {
			best, found = s, true
			continue
		}
		bv := key(best)
		switch {
		case v > bv:
			best = s
		case v == bv && s.Pulls < best.Pulls:
			best = s
		case v == bv && s.Pulls == best.Pulls && s.ArmID < best.ArmID:
			best = s
		}
	}
	return best, found
}

// Update folds reward for features x into armID's state. Updates to the same
// arm are serialized; updates to different arms run independently.
// Returns an error, leaving state untouched, if the input is unusable.
func (e *Engine) Update(armID string, x []float64, reward float64) error {
	if len(x) != e.dim {
		return fmt.Errorf("update arm %s: context dimension %d, want %d", armID, len(x), e.dim)
	}
	if !isFinite(reward) {
		return fmt.Errorf("update arm %s: %w: %v", armID, ErrInvalidReward, reward)
	}
	for i, f := range x {
		if !isFinite(f) {
			return fmt.Errorf("update arm %s: non-finite feature %d", armID, i)
		}
	}

	s := e.shard(armID)
	s.mu.Lock()
	defer s.mu.Unlock()

	next, reset := s.load().Update(x, reward)
	if reset {
		s.resets.Add(1)
		metrics.RecordNumericReset(armID)
		logrus.Warnf("engine: arm %s state degenerated; reset to prior", armID)
	}
	s.model.Store(&modelRef{model: next})
	e.observations.Add(1)
	return nil
}

// Snapshot returns the current stats for armID. Unknown arms report zero stats.
func (e *Engine) Snapshot(armID string) ArmStats {
	e.mu.RLock()
	s, ok := e.shards[armID]
	e.mu.RUnlock()
	if !ok {
		return ArmStats{ArmID: armID}
	}
	m := s.load()
	st := ArmStats{
		ArmID:        armID,
		Pulls:        s.pulls.Load(),
		Observations: m.Observations(),
		TotalReward:  m.TotalReward(),
		Resets:       s.resets.Load(),
	}
	if st.Observations > 0 {
		st.MeanReward = st.TotalReward / float64(st.Observations)
	}
	return st
}

// Observations returns the engine-wide number of folded rewards.
func (e *Engine) Observations() int64 { return e.observations.Load() }
