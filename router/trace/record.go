// Package trace provides decision-trace recording for routing policy analysis.
// This package has no dependencies on router/; it stores pure data types.
package trace

import "time"

// CandidateScore captures a counterfactual candidate arm with its policy view.
type CandidateScore struct {
	ArmID       string
	Score       float64
	Estimate    float64
	Uncertainty float64
	Pulls       int64
}

// DecisionRecord captures a single routing decision with optional counterfactual analysis.
type DecisionRecord struct {
	DecisionID      string
	RequestKey      string
	ArmID           string
	Timestamp       time.Time
	Exploration     bool
	ContextDegraded bool
	Reason          string
	Scores          map[string]float64 // arm ID → score at selection time
	Candidates      []CandidateScore   // top-k candidates sorted by estimate desc (nil if k=0)
	Regret          float64            // max(alternative estimates) - estimate(chosen); 0 if chosen is best
}

// RewardRecord captures a reward folded into policy state.
type RewardRecord struct {
	DecisionID string
	ArmID      string
	Reward     float64
	ObservedAt time.Time
}
