package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/inference-sim/bandit-router/router/metrics"
	"github.com/inference-sim/bandit-router/router/trace"
)

// Router is the Router Decision Service. Decide and IngestReward are safe for
// concurrent use.
type Router struct {
	cfg    Config
	arms   ArmSource
	store  FeatureStore
	engine *Engine
	log    *decisionLog
	queue  *ingestQueue
	clock  clock.PassiveClock
	trace  *trace.DecisionTrace
	algo   Algorithm

	closeOnce sync.Once
}

// Option customizes a Router.
type Option func(*Router)

// WithClock injects the clock used for decision timestamps and retention.
func WithClock(c clock.PassiveClock) Option {
	return func(r *Router) { r.clock = c }
}

// WithTrace records decisions and applied rewards into dt.
func WithTrace(dt *trace.DecisionTrace) Option {
	return func(r *Router) { r.trace = dt }
}

// WithAlgorithm overrides the algorithm built from cfg.Policy.Algorithm.
func WithAlgorithm(a Algorithm) Option {
	return func(r *Router) { r.algo = a }
}

// New creates a Router and starts its reward workers and decision log janitors.
// Call Close to stop them.
func New(cfg Config, arms ArmSource, store FeatureStore, opts ...Option) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid router config: %w", err)
	}
	if arms == nil || store == nil {
		return nil, fmt.Errorf("router needs an arm source and a feature store")
	}
	r := &Router{
		cfg:   cfg,
		arms:  arms,
		store: store,
		clock: clock.RealClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.algo == nil {
		r.algo = NewAlgorithm(cfg.Policy)
	}
	r.engine = NewEngine(r.algo, cfg.Policy, cfg.Features.Dim)
	r.log = newDecisionLog(cfg.Decisions.Shards, cfg.Decisions.Capacity, cfg.Decisions.Retention, r.clock)
	r.log.start()
	r.queue = newIngestQueue(r.engine, cfg.Rewards.Workers, cfg.Rewards.QueueSize, r.recordReward)

	logrus.Infof("router: algorithm=%s dim=%d exploration=%v retention=%v workers=%d",
		r.algo.Name(), cfg.Features.Dim, cfg.Policy.Exploration, cfg.Decisions.Retention, cfg.Rewards.Workers)
	return r, nil
}

// Engine exposes the policy engine for read-only inspection.
func (r *Router) Engine() *Engine { return r.engine }

// Decide picks an arm for requestKey. The context lookup is bounded by ctx's
// deadline and the configured fetch timeout; when it fails, Decide proceeds
// with the neutral context and flags the decision as degraded.
//
// Returns ErrNoCandidates if no arm is healthy (nothing is recorded), or an
// error wrapping ErrSelectionFailed if no candidate scored finitely.
func (r *Router) Decide(ctx context.Context, requestKey string) (*Decision, error) {
	start := time.Now()

	if len(r.arms.ListHealthy()) == 0 {
		metrics.RecordDecisionError(CodeNoCandidates)
		return nil, fmt.Errorf("decide %q: %w", requestKey, ErrNoCandidates)
	}

	c, degraded := r.fetchContext(ctx, requestKey)

	// Health may have changed while the context was in flight.
	candidates := r.arms.ListHealthy()
	if len(candidates) == 0 {
		metrics.RecordDecisionError(CodeNoCandidates)
		return nil, fmt.Errorf("decide %q: %w", requestKey, ErrNoCandidates)
	}

	sel, err := r.engine.Select(c, candidates)
	if err != nil {
		metrics.RecordDecisionError(ErrorCode(err))
		logrus.Warnf("router: %v", err)
		return nil, err
	}

	var target string
	for _, a := range candidates {
		if a.ID == sel.ArmID {
			target = a.Target
			break
		}
	}
	d := &Decision{
		ID:              uuid.NewString(),
		ArmID:           sel.ArmID,
		Target:          target,
		RequestKey:      requestKey,
		Context:         c,
		Scores:          sel.Scores,
		Exploration:     sel.Exploration,
		ContextDegraded: degraded,
		Reason:          sel.Reason,
		Timestamp:       r.clock.Now(),
	}
	// Recorded before returning, so a reward can never race ahead of its decision.
	r.log.put(d)
	r.recordDecision(d)

	metrics.RecordDecision(d.ArmID, d.Exploration, time.Since(start))
	logrus.Debugf("router: decision %s key=%s arm=%s %s", d.ID, requestKey, d.ArmID, d.Reason)
	return cloneDecision(d), nil
}

type fetchResult struct {
	c   Context
	err error
}

// fetchContext returns the feature store's context, or the neutral context and
// degraded=true if the lookup fails, times out, or returns an unusable vector.
// It never waits past the budget, even if the store ignores ctx.
func (r *Router) fetchContext(ctx context.Context, requestKey string) (Context, bool) {
	dim := r.cfg.Features.Dim
	budget := r.cfg.Features.FetchTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); budget <= 0 || remaining < budget {
			budget = remaining
		}
	}
	if budget <= 0 {
		return r.degrade(requestKey, fmt.Errorf("%w: no deadline budget left", ErrContextUnavailable))
	}

	fctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	ch := make(chan fetchResult, 1)
	go func() {
		c, err := r.store.FetchContext(fctx, requestKey)
		ch <- fetchResult{c: c, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return r.degrade(requestKey, res.err)
		}
		if res.c.Dim() != dim {
			return r.degrade(requestKey, fmt.Errorf("%w: dimension %d, want %d", ErrContextUnavailable, res.c.Dim(), dim))
		}
		if !res.c.IsFinite() {
			return r.degrade(requestKey, fmt.Errorf("%w: non-finite features", ErrContextUnavailable))
		}
		return NewContext(requestKey, res.c.Features), false
	case <-fctx.Done():
		return r.degrade(requestKey, fmt.Errorf("%w: %v", ErrContextUnavailable, fctx.Err()))
	}
}

func (r *Router) degrade(requestKey string, cause error) (Context, bool) {
	metrics.RecordContextDegraded()
	logrus.Debugf("router: neutral context for %s: %v", requestKey, cause)
	return NeutralContext(requestKey, r.cfg.Features.Dim), true
}

// IngestReward folds reward into the policy for decisionID. Ingestion is
// at-most-once per decision: a second call fails with ErrDuplicateReward.
// Unknown ids and ids older than the retention window fail with
// ErrUnknownDecision; out-of-bounds values fail with ErrInvalidReward and leave
// the decision open.
//
// The update is applied asynchronously by the arm's ingestion worker; use
// Flush to wait for it.
func (r *Router) IngestReward(ctx context.Context, decisionID string, reward float64) error {
	if !isFinite(reward) || reward < r.cfg.Rewards.Min || reward > r.cfg.Rewards.Max {
		metrics.RecordRewardError(CodeInvalidReward)
		return fmt.Errorf("%w: %v outside [%v, %v]", ErrInvalidReward, reward, r.cfg.Rewards.Min, r.cfg.Rewards.Max)
	}

	d, err := r.log.claim(decisionID)
	if err != nil {
		metrics.RecordRewardError(ErrorCode(err))
		return err
	}

	ev := RewardEvent{
		DecisionID: d.ID,
		ArmID:      d.ArmID,
		Context:    d.Context,
		Reward:     reward,
		ObservedAt: r.clock.Now(),
	}
	if err := r.queue.enqueue(ctx, ev); err != nil {
		r.log.release(d)
		metrics.RecordRewardError(CodeCanceled)
		return fmt.Errorf("ingest reward %q: %w: %w", decisionID, errCanceled, err)
	}
	return nil
}

// Lookup returns a recorded decision that has not been rewarded or expired.
func (r *Router) Lookup(decisionID string) (*Decision, bool) {
	d, ok := r.log.get(decisionID)
	if !ok {
		return nil, false
	}
	return cloneDecision(d), true
}

// Flush blocks until every accepted reward has been applied or ctx is done.
func (r *Router) Flush(ctx context.Context) error {
	return r.queue.flush(ctx)
}

// Close applies buffered rewards and stops background goroutines. Rewards
// ingested after Close fail. Safe to call more than once.
func (r *Router) Close() {
	r.closeOnce.Do(func() {
		r.queue.close()
		r.log.stop()
	})
}

func (r *Router) recordDecision(d *Decision) {
	if !r.trace.Enabled() {
		return
	}
	candidates, regret := computeCounterfactual(d.ArmID, d.Scores, r.trace.Config.CounterfactualK)
	r.trace.RecordDecision(trace.DecisionRecord{
		DecisionID:      d.ID,
		RequestKey:      d.RequestKey,
		ArmID:           d.ArmID,
		Timestamp:       d.Timestamp,
		Exploration:     d.Exploration,
		ContextDegraded: d.ContextDegraded,
		Reason:          d.Reason,
		Scores:          scoreMap(d.Scores),
		Candidates:      candidates,
		Regret:          regret,
	})
}

func (r *Router) recordReward(ev RewardEvent) {
	if !r.trace.Enabled() {
		return
	}
	r.trace.RecordReward(trace.RewardRecord{
		DecisionID: ev.DecisionID,
		ArmID:      ev.ArmID,
		Reward:     ev.Reward,
		ObservedAt: ev.ObservedAt,
	})
}

// cloneDecision copies d so callers cannot mutate the logged record.
func cloneDecision(d *Decision) *Decision {
	cp := *d
	cp.Context = d.Context.Clone()
	cp.Scores = append([]ArmScore(nil), d.Scores...)
	return &cp
}
